package parking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TicketNumberGenerator produces human-readable ticket numbers.
type TicketNumberGenerator interface {
	NextTicketNumber(issuedAt time.Time, category VehicleCategory) (TicketNumber, error)
}

// RandomTicketNumbers builds numbers shaped TKT-<category initial>-<base36 millis>-<random>.
type RandomTicketNumbers struct{}

// NextTicketNumber returns a fresh ticket number.
func (RandomTicketNumbers) NextTicketNumber(issuedAt time.Time, category VehicleCategory) (TicketNumber, error) {
	if category == "" {
		return TicketNumber{}, fmt.Errorf("%w: empty category", ErrInvalidVehicleCategory)
	}
	suffix, err := randomBase36(ticketRandomSuffixSize)
	if err != nil {
		return TicketNumber{}, WrapError("service", "ticket_number", "random", err)
	}
	raw := strings.Join([]string{
		ticketNumberPrefix,
		strings.ToUpper(category.String()[:1]),
		strings.ToUpper(strconv.FormatInt(issuedAt.UnixMilli(), 36)),
		suffix,
	}, ticketNumberSeparator)
	return NewTicketNumber(raw)
}

func randomBase36(length int) (string, error) {
	limit := big.NewInt(int64(len(base36Alphabet)))
	var builder strings.Builder
	builder.Grow(length)
	for index := 0; index < length; index++ {
		position, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		builder.WriteByte(base36Alphabet[position.Int64()])
	}
	return builder.String(), nil
}
