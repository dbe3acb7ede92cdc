package sheets

import (
	"context"

	"cajero/internal/core"
)

// Entry is one exported ledger row.
type Entry struct {
	TransactionID int64
	AccountNumber string
	Date          string
	Label         string
	Detail        string
	SignedAmount  core.Money
	BalanceAfter  core.Money
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, e Entry) (rowRef string, err error)
	}

	// LedgerReader lists transactions already exported, so a restarted
	// worker does not write them twice.
	LedgerReader interface {
		ListTransactionIDs(ctx context.Context) ([]int64, error)
	}
)
