// Package sheets defines the outbound ports for mirroring the ledger and its
// reports into a spreadsheet.
package sheets

import (
	"context"

	"casheye/internal/core"
	"casheye/internal/report"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends lines the sheet does not hold yet and returns how
	// many rows were written.
	LedgerWriter interface {
		AppendLines(ctx context.Context, lines []core.ReceiptLine) (int, error)
	}

	// LedgerReader lists the lines already mirrored.
	LedgerReader interface {
		ListLines(ctx context.Context) ([]core.ReceiptLine, error)
	}

	// TableWriter replaces the contents of a named sheet with a report table.
	TableWriter interface {
		WriteTable(ctx context.Context, sheet string, t report.Table) error
	}

	Sink interface {
		LedgerWriter
		LedgerReader
		TableWriter
	}
)
