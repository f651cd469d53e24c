package core

import (
	"errors"
	"fmt"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/database"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = database.ErrNotFound
	ErrUnsupportedFormat = commands.ErrUnsupportedFormat
)

// invalidInput marks user caused failures unless they already carry a
// more specific sentinel.
func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, commands.ErrBudgetUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
