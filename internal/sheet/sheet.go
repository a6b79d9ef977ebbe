// Package sheet defines the external spreadsheet boundary. The real
// implementation (OAuth-backed spreadsheet client) lives outside this
// repository; the runner only depends on the append contract.
package sheet

import (
	"context"
	"fmt"

	"github.com/leadforge/pipeline/internal/domain"
)

// Appender appends rows to an external spreadsheet. Implementations must
// wrap failures with domain.ErrSheetWrite so the runner can classify them.
type Appender interface {
	AppendRows(ctx context.Context, sheetID string, rows [][]string) error
}

// WriteError wraps an underlying append failure with the domain sentinel.
func WriteError(sheetID string, err error) error {
	return fmt.Errorf("%w: sheet %s: %v", domain.ErrSheetWrite, sheetID, err)
}
