// Package errs holds the error taxonomy shared by every component of the bot.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks a missing or invalid setting. Fatal at the point of use.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks network failures and upstream 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrRateLimited marks an upstream 429; callers move on to the next credential.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound marks an unknown run id or missing artifact.
	ErrNotFound = errors.New("not found")
)

// Wrap tags err with marker so callers can classify it with errors.Is while the
// message keeps the operation context.
func Wrap(marker error, op string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	op = strings.TrimSpace(op)
	switch {
	case err != nil && op != "":
		return fmt.Errorf("%w: %s: %w", marker, op, err)
	case err != nil:
		return fmt.Errorf("%w: %w", marker, err)
	case op != "":
		return fmt.Errorf("%w: %s", marker, op)
	default:
		return marker
	}
}

// Configuration is shorthand for a configuration error naming the missing setting.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
