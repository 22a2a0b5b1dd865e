// Package apperr definuje taxonomii chyb platformy.
//
// Každá chyba obaluje jeden ze sentinelů přes %w, takže volající se rozhoduje
// pomocí errors.Is a nikdy neporovnává texty.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation: nevalidní vstup (např. payload ze zařízení). Nikdy se neukládá.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: odkazovaný senzor nebo grant neexistuje.
	ErrNotFound = errors.New("not found")
	// ErrConflict: duplicitní grant nebo sensor_id.
	ErrConflict = errors.New("conflict")
	// ErrForbidden: Access Resolver operaci zamítl.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized: identitu se nepodařilo ověřit.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransientIO: úložiště je dočasně nedostupné.
	ErrTransientIO = errors.New("storage unavailable")
)

// Validation vytvoří chybu třídy ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound vytvoří chybu třídy ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict vytvoří chybu třídy ErrConflict.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Forbidden vytvoří chybu třídy ErrForbidden.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Unauthorized vytvoří chybu třídy ErrUnauthorized.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Transient obalí chybu úložiště. Nil zůstává nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransientIO, op, err)
}

// IsTransient vrací true pro chyby, u kterých má smysl opakovat pokus.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransientIO) ||
		errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus mapuje chybu na HTTP status kód pro tenkou REST vrstvu.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
