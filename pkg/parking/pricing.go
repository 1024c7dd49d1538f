package parking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	fareStepHourly = "hourly"
	fareStepSurge  = "surge"
	fareStepNight  = "night"

	basisPointsPerUnit  = 10000
	minutesPerHour      = 60
	hoursPerDay         = 24
	neutralMultiplier   = 1.0
	defaultGraceMinutes = 15

	multiplierPrecisionTolerance = 1e-6
)

// RateWindow is a time-of-day range, evaluated on the exit hour, that scales the fare.
type RateWindow struct {
	Enabled    bool
	Multiplier float64
	StartHour  int
	EndHour    int
}

// Contains reports whether hour falls in [StartHour, EndHour), wrapping past
// midnight when StartHour > EndHour.
func (window RateWindow) Contains(hour int) bool {
	if window.StartHour <= window.EndHour {
		return hour >= window.StartHour && hour < window.EndHour
	}
	return hour >= window.StartHour || hour < window.EndHour
}

func (window RateWindow) validate(name string) error {
	if window.Multiplier <= 0 || math.IsNaN(window.Multiplier) || math.IsInf(window.Multiplier, 0) {
		return fmt.Errorf("%w: %s multiplier must be positive", ErrInvalidPricingSettings, name)
	}
	// Fares apply multipliers in whole basis points.
	scaled := window.Multiplier * basisPointsPerUnit
	if math.Abs(scaled-math.Round(scaled)) > multiplierPrecisionTolerance {
		return fmt.Errorf("%w: %s multiplier %v has more than 4 decimal places", ErrInvalidPricingSettings, name, window.Multiplier)
	}
	if window.StartHour < 0 || window.StartHour >= hoursPerDay || window.EndHour < 0 || window.EndHour >= hoursPerDay {
		return fmt.Errorf("%w: %s hours must be within 0-23", ErrInvalidPricingSettings, name)
	}
	return nil
}

// PricingSettings configures fare computation.
type PricingSettings struct {
	GracePeriodMinutes int
	HourlyRates        map[VehicleCategory]AmountCents
	Surge              RateWindow
	Night              RateWindow
	// Location is the time zone used to read the exit hour. Nil means UTC.
	Location *time.Location
}

// DefaultPricingSettings returns the stock tariff.
func DefaultPricingSettings() PricingSettings {
	return PricingSettings{
		GracePeriodMinutes: defaultGraceMinutes,
		HourlyRates: map[VehicleCategory]AmountCents{
			VehicleCar:   4000,
			VehicleBike:  2000,
			VehicleTruck: 8000,
		},
		Surge:    RateWindow{Enabled: true, Multiplier: 1.2, StartHour: 17, EndHour: 21},
		Night:    RateWindow{Enabled: true, Multiplier: 1.1, StartHour: 22, EndHour: 6},
		Location: time.Local,
	}
}

// Validate checks the settings for values the engine cannot price with.
func (settings PricingSettings) Validate() error {
	if settings.GracePeriodMinutes < 0 {
		return fmt.Errorf("%w: grace period must not be negative", ErrInvalidPricingSettings)
	}
	for _, category := range []VehicleCategory{VehicleCar, VehicleBike, VehicleTruck} {
		rate, ok := settings.HourlyRates[category]
		if !ok {
			return fmt.Errorf("%w: missing hourly rate for %s", ErrInvalidPricingSettings, category)
		}
		if rate < 0 {
			return fmt.Errorf("%w: negative hourly rate for %s", ErrInvalidPricingSettings, category)
		}
	}
	if err := settings.Surge.validate(fareStepSurge); err != nil {
		return err
	}
	return settings.Night.validate(fareStepNight)
}

// SettingsProvider supplies the pricing settings in force for a computation.
type SettingsProvider interface {
	PricingSettings(ctx context.Context) (PricingSettings, error)
}

// StaticSettings serves a fixed PricingSettings value.
type StaticSettings struct {
	Settings PricingSettings
}

// PricingSettings returns the fixed settings.
func (static StaticSettings) PricingSettings(context.Context) (PricingSettings, error) {
	return static.Settings, nil
}

// PricingInput describes one stay to be priced.
type PricingInput struct {
	EntryTime time.Time
	ExitTime  time.Time
	Category  VehicleCategory
}

// FareMultipliers records which multipliers applied; 1 means not applied.
type FareMultipliers struct {
	Surge float64 `json:"surge"`
	Night float64 `json:"night"`
}

// FareBreakdown is the full trace of a fare computation.
type FareBreakdown struct {
	DurationMinutes int
	BillableHours   int
	BaseRateCents   AmountCents
	GraceApplied    bool
	Multipliers     FareMultipliers
	TotalCents      AmountCents
}

type fareBreakdownJSON struct {
	DurationMinutes int             `json:"durationMinutes"`
	BillableHours   int             `json:"billableHours"`
	BaseRate        float64         `json:"baseRate"`
	BaseRateCents   int64           `json:"baseRateCents"`
	GraceApplied    bool            `json:"graceApplied"`
	Multipliers     FareMultipliers `json:"multipliers"`
	TotalAmount     float64         `json:"totalAmount"`
	TotalCents      int64           `json:"totalCents"`
}

// MarshalJSON renders the breakdown with currency-unit amounts alongside cents.
func (breakdown FareBreakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(fareBreakdownJSON{
		DurationMinutes: breakdown.DurationMinutes,
		BillableHours:   breakdown.BillableHours,
		BaseRate:        breakdown.BaseRateCents.Float64(),
		BaseRateCents:   breakdown.BaseRateCents.Int64(),
		GraceApplied:    breakdown.GraceApplied,
		Multipliers:     breakdown.Multipliers,
		TotalAmount:     breakdown.TotalCents.Float64(),
		TotalCents:      breakdown.TotalCents.Int64(),
	})
}

// UnmarshalJSON restores a breakdown from its cents fields.
func (breakdown *FareBreakdown) UnmarshalJSON(data []byte) error {
	var wire fareBreakdownJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*breakdown = FareBreakdown{
		DurationMinutes: wire.DurationMinutes,
		BillableHours:   wire.BillableHours,
		BaseRateCents:   AmountCents(wire.BaseRateCents),
		GraceApplied:    wire.GraceApplied,
		Multipliers:     wire.Multipliers,
		TotalCents:      AmountCents(wire.TotalCents),
	}
	return nil
}

type fareStep struct {
	name  string
	apply func(input PricingInput, settings PricingSettings, breakdown *FareBreakdown)
}

// fareSteps run in order over one shared breakdown. Steps after hourly must
// leave a zero total untouched so the grace short-circuit holds.
var fareSteps = []fareStep{
	{name: fareStepHourly, apply: applyHourlyRate},
	{name: fareStepSurge, apply: applySurge},
	{name: fareStepNight, apply: applyNight},
}

// CalculateFare prices a stay with the given settings.
func CalculateFare(input PricingInput, settings PricingSettings) (FareBreakdown, error) {
	if err := settings.Validate(); err != nil {
		return FareBreakdown{}, err
	}
	if _, ok := settings.HourlyRates[input.Category]; !ok {
		return FareBreakdown{}, fmt.Errorf("%w: %q", ErrInvalidVehicleCategory, input.Category)
	}
	breakdown := FareBreakdown{
		Multipliers: FareMultipliers{Surge: neutralMultiplier, Night: neutralMultiplier},
	}
	for _, step := range fareSteps {
		step.apply(input, settings, &breakdown)
	}
	return breakdown, nil
}

func applyHourlyRate(input PricingInput, settings PricingSettings, breakdown *FareBreakdown) {
	breakdown.DurationMinutes = durationMinutes(input.EntryTime, input.ExitTime)
	breakdown.BaseRateCents = settings.HourlyRates[input.Category]
	if breakdown.DurationMinutes <= settings.GracePeriodMinutes {
		breakdown.GraceApplied = true
		breakdown.BillableHours = 0
		breakdown.TotalCents = 0
		return
	}
	breakdown.BillableHours = (breakdown.DurationMinutes + minutesPerHour - 1) / minutesPerHour
	breakdown.TotalCents = AmountCents(int64(breakdown.BillableHours)) * breakdown.BaseRateCents
}

func applySurge(input PricingInput, settings PricingSettings, breakdown *FareBreakdown) {
	if applyWindow(settings.Surge, exitHour(input, settings), breakdown) {
		breakdown.Multipliers.Surge = settings.Surge.Multiplier
	}
}

func applyNight(input PricingInput, settings PricingSettings, breakdown *FareBreakdown) {
	if applyWindow(settings.Night, exitHour(input, settings), breakdown) {
		breakdown.Multipliers.Night = settings.Night.Multiplier
	}
}

func applyWindow(window RateWindow, hour int, breakdown *FareBreakdown) bool {
	if !window.Enabled || breakdown.TotalCents == 0 || !window.Contains(hour) {
		return false
	}
	breakdown.TotalCents = multiplyCents(breakdown.TotalCents, window.Multiplier)
	return true
}

// multiplyCents scales a non-negative amount, rounding half up to the cent.
func multiplyCents(amount AmountCents, multiplier float64) AmountCents {
	basisPoints := int64(math.Round(multiplier * basisPointsPerUnit))
	return AmountCents((amount.Int64()*basisPoints + basisPointsPerUnit/2) / basisPointsPerUnit)
}

func durationMinutes(entryTime time.Time, exitTime time.Time) int {
	elapsed := exitTime.Sub(entryTime)
	if elapsed <= 0 {
		return 1
	}
	minutes := int((elapsed + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		return 1
	}
	return minutes
}

func exitHour(input PricingInput, settings PricingSettings) int {
	location := settings.Location
	if location == nil {
		location = time.UTC
	}
	return input.ExitTime.In(location).Hour()
}
