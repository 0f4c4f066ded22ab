// Package seating generates seat codes and derives the next free seat of a
// zone from the orders already sold in it.
//
// A seat code is the zone's initials followed by a 1-based running number:
// "General Admission" seats are GA1, GA2, ... The numbers of a zone only ever
// grow; seats of cancelled orders are not handed out again.
package seating

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

// ErrCapacity is returned when a request would push a zone past its size.
var ErrCapacity = errors.New("not enough seats available in this zone")

// Seat is a generated seat: its printable code and the number it encodes.
type Seat struct {
	Code   string
	Number int
}

// Prefix returns the upper-cased initials of the words in zoneName.
func Prefix(zoneName string) string {
	var b strings.Builder
	for _, word := range strings.Fields(zoneName) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Codes returns count seats for zoneName numbered offset+1 through
// offset+count. It does not check capacity.
func Codes(zoneName string, count, offset int) []Seat {
	if count <= 0 {
		return nil
	}
	prefix := Prefix(zoneName)
	seats := make([]Seat, 0, count)
	for i := 1; i <= count; i++ {
		n := offset + i
		seats = append(seats, Seat{Code: prefix + strconv.Itoa(n), Number: n})
	}
	return seats
}

// ParseSeatNumber strips the non-digit prefix of code and parses the rest.
// It reports false when nothing numeric remains.
func ParseSeatNumber(code string) (int, bool) {
	digits := strings.TrimLeftFunc(code, func(r rune) bool { return !unicode.IsDigit(r) })
	end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) })
	if end >= 0 {
		digits = digits[:end]
	}
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LastSeat returns the highest seat number held by a SUCCESS order of the
// given zone, or 0 when none exist. Tickets without a stored number fall
// back to parsing their code; codes that do not parse are skipped.
func LastSeat(orders []model.Order, zoneID string) int {
	last := 0
	for _, o := range orders {
		if o.Status != model.OrderStatusSuccess || o.ZoneID != zoneID {
			continue
		}
		for _, t := range o.Tickets {
			n := t.SeatNumber
			if n <= 0 {
				parsed, ok := ParseSeatNumber(t.SeatNo)
				if !ok {
					continue
				}
				n = parsed
			}
			if n > last {
				last = n
			}
		}
	}
	return last
}

// CheckCapacity fails with ErrCapacity when requested more seats after
// lastSeat would not fit in zone.
func CheckCapacity(zone model.Zone, lastSeat, requested int) error {
	if requested+lastSeat > zone.Size {
		return fmt.Errorf("%w: requested %d, %d of %d already issued",
			ErrCapacity, requested, lastSeat, zone.Size)
	}
	return nil
}

// Remaining returns how many seats can still be issued in zone.
func Remaining(zone model.Zone, lastSeat int) int {
	if r := zone.Size - lastSeat; r > 0 {
		return r
	}
	return 0
}
