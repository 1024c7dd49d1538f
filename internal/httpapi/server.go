// Package httpapi is the JSON-over-HTTP façade for gate terminals and operator
// tools.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/parking/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

const (
	errorInvalidPayload = "invalid_payload"
	allowAllOrigins     = "*"
)

// ParkingService is the domain surface the façade calls.
type ParkingService interface {
	grpcserver.ParkingService
	DashboardMetrics(ctx context.Context) (parking.DashboardMetrics, error)
}

// Run serves the façade until ctx is cancelled.
func Run(ctx context.Context, cfg Config, parkingService ParkingService, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewRouter(cfg, parkingService, logger),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine. cfg must already be validated.
func NewRouter(cfg Config, parkingService ParkingService, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	handler := &httpHandler{
		logger:         logger,
		parkingService: parkingService,
		cfg:            cfg,
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/entries", handler.handleEntry)
	api.POST("/exits", handler.handleExit)
	api.PUT("/spots/:spotID/status", handler.handleSpotStatus)
	api.GET("/dashboard/metrics", handler.handleMetrics)

	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == allowAllOrigins {
			config.AllowAllOrigins = true
			return config
		}
	}
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}

type httpHandler struct {
	logger         *zap.Logger
	parkingService ParkingService
	cfg            Config
}

type spotStatusRequest struct {
	Status  string `json:"status"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func (handler *httpHandler) handleEntry(ctx *gin.Context) {
	var request grpcserver.EntryRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	plate, err := parking.NewPlateNumber(request.VehicleNumber)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	category, err := parking.ParseVehicleCategory(request.VehicleType)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	gateID, err := parking.NewGateID(request.GateID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	ticket, err := handler.parkingService.HandleEntry(requestCtx, parking.EntryRequest{
		Plate:    plate,
		Category: category,
		GateID:   gateID,
		ActorID:  actorID,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"ticket": grpcserver.NewTicket(ticket)})
}

func (handler *httpHandler) handleExit(ctx *gin.Context) {
	var request grpcserver.ExitRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	ticketNumber, err := parking.NewTicketNumber(request.TicketNumber)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	gateID, err := parking.NewGateID(request.GateID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	method, err := parking.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	receipt, err := handler.parkingService.HandleExit(requestCtx, parking.ExitRequest{
		TicketNumber: ticketNumber,
		GateID:       gateID,
		Method:       method,
		ActorID:      actorID,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, grpcserver.ExitResponse{
		Ticket:  grpcserver.NewTicket(receipt.Ticket),
		Payment: grpcserver.NewPayment(receipt.Payment),
	})
}

func (handler *httpHandler) handleSpotStatus(ctx *gin.Context) {
	var request spotStatusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, "expected JSON body"))
		return
	}
	spotID, err := parking.NewSpotID(ctx.Param("spotID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	spotStatus, err := parking.ParseSpotStatus(request.Status)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	spot, err := handler.parkingService.SetSpotStatus(requestCtx, parking.SpotStatusChange{
		SpotID:  spotID,
		Status:  spotStatus,
		ActorID: actorID,
		Reason:  request.Reason,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"spot": grpcserver.NewSpot(spot)})
}

func (handler *httpHandler) handleMetrics(ctx *gin.Context) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	metrics, err := handler.parkingService.DashboardMetrics(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, metrics)
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	code, reason := grpcserver.Classify(err)
	httpStatus := httpStatusFor(code)
	message := err.Error()
	if httpStatus >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		message = reason
	}
	ctx.JSON(httpStatus, errorResponse(reason, message))
}

func httpStatusFor(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.ResourceExhausted:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.Aborted:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
