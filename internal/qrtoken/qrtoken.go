// Package qrtoken builds and parses the opaque strings printed on tickets.
//
// A token looks like
//
//	EVT-<EVENT>-<REGISTRATION>-<N>-<SUFFIX>
//
// where EVENT and REGISTRATION are the 32-digit hex forms of the owning ids,
// N is the ticket number and SUFFIX is 12 random hex digits. The embedded ids
// make tokens unique across all events; the suffix keeps them unguessable.
// Tokens are upper case and use only [0-9A-Z-] so staff can type them in when
// a code will not scan.
package qrtoken

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	prefix     = "EVT"
	suffixLen  = 12
	separator  = "-"
	tokenParts = 5
)

// ErrMalformed is returned by Parse for strings that are not tokens.
var ErrMalformed = errors.New("malformed ticket token")

// Parts are the components embedded in a token.
type Parts struct {
	EventID        string
	RegistrationID string
	TicketNumber   int
	Suffix         string
}

func newSuffix() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))[:suffixLen]
}

// New returns a fresh token for ticket n of a registration.
func New(eventID, registrationID string, n int) (string, error) {
	ev, err := compact(eventID)
	if err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	reg, err := compact(registrationID)
	if err != nil {
		return "", fmt.Errorf("registration id: %w", err)
	}
	if n < 1 {
		return "", fmt.Errorf("ticket number must be positive, got %d", n)
	}
	return strings.Join([]string{prefix, ev, reg, strconv.Itoa(n), newSuffix()}, separator), nil
}

// Normalize canonicalises manually entered input before lookup.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Parse splits a token into its parts.
func Parse(token string) (Parts, error) {
	fields := strings.Split(Normalize(token), separator)
	if len(fields) != tokenParts || fields[0] != prefix {
		return Parts{}, ErrMalformed
	}

	ev, err := uuid.Parse(fields[1])
	if err != nil {
		return Parts{}, ErrMalformed
	}
	reg, err := uuid.Parse(fields[2])
	if err != nil {
		return Parts{}, ErrMalformed
	}
	n, err := strconv.Atoi(fields[3])
	if err != nil || n < 1 {
		return Parts{}, ErrMalformed
	}
	if len(fields[4]) != suffixLen {
		return Parts{}, ErrMalformed
	}

	return Parts{
		EventID:        ev.String(),
		RegistrationID: reg.String(),
		TicketNumber:   n,
		Suffix:         fields[4],
	}, nil
}

// PNG renders token as a QR code image of size x size pixels.
func PNG(token string, size int) ([]byte, error) {
	qr, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func compact(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")), nil
}
