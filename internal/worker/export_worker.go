// Package worker turns ledger events into rows of the external transaction sheet.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cajero/internal/amqp"
	"cajero/internal/cache"
	"cajero/internal/log"
	"cajero/internal/sheets"
	"cajero/internal/view"
)

// Export results reported to the ExportRecorder.
const (
	ResultWritten   = "written"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

const (
	defaultSeenSize = 10_000
	defaultSeenTTL  = 24 * time.Hour
)

// ExportRecorder counts export results.
type ExportRecorder interface {
	ObserveExport(result string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveExport(string) {}

// ExportWorker appends each applied transaction to a LedgerWriter once.
// Transaction ids already written are remembered in an LRU so redelivered
// messages are acknowledged without writing a second row.
type ExportWorker struct {
	writer    sheets.LedgerWriter
	reader    sheets.LedgerReader
	projector *view.Projector
	seen      *cache.LRUCache[struct{}]
	recorder  ExportRecorder
	logger    *log.Logger
}

// Option configures an ExportWorker.
type Option func(*ExportWorker)

// WithReader lets Warm preload ids that are already in the sheet.
func WithReader(r sheets.LedgerReader) Option {
	return func(w *ExportWorker) { w.reader = r }
}

func WithProjector(p *view.Projector) Option {
	return func(w *ExportWorker) {
		if p != nil {
			w.projector = p
		}
	}
}

// WithSeenCache replaces the default dedupe cache.
func WithSeenCache(c *cache.LRUCache[struct{}]) Option {
	return func(w *ExportWorker) {
		if c != nil {
			w.seen = c
		}
	}
}

func WithRecorder(r ExportRecorder) Option {
	return func(w *ExportWorker) {
		if r != nil {
			w.recorder = r
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(w *ExportWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewExportWorker(writer sheets.LedgerWriter, opts ...Option) *ExportWorker {
	w := &ExportWorker{
		writer:    writer,
		projector: view.NewProjector(),
		seen:      cache.NewLRUCache[struct{}](defaultSeenSize, defaultSeenTTL),
		recorder:  noopRecorder{},
		logger:    log.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent(log.ComponentWorker)
	return w
}

// SeenCache exposes the dedupe cache so it can be registered for cleanup.
func (w *ExportWorker) SeenCache() *cache.LRUCache[struct{}] { return w.seen }

// Warm marks every id the reader reports as already exported.
func (w *ExportWorker) Warm(ctx context.Context) (int, error) {
	if w.reader == nil {
		return 0, nil
	}
	ids, err := w.reader.ListTransactionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list exported transactions: %w", err)
	}
	for _, id := range ids {
		w.seen.Set(seenKey(id), struct{}{})
	}
	w.logger.InfoContext(ctx, "Export cache warmed", "ids", len(ids))
	return len(ids), nil
}

// HandleMessage exports one TransactionAppliedMessage. A returned error asks
// the consumer to redeliver the message unless it wraps amqp.ErrRejected.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionAppliedMessage) error {
	tx, err := msg.Transaction()
	if err != nil {
		w.recorder.ObserveExport(ResultFailed)
		return fmt.Errorf("%w: decode transaction %d: %w", amqp.ErrRejected, msg.TransactionID, err)
	}

	key := seenKey(tx.ID)
	if w.seen.Contains(key) {
		w.recorder.ObserveExport(ResultDuplicate)
		w.logger.DebugContext(ctx, "Transaction already exported", log.FieldTxID, tx.ID)
		return nil
	}

	entry := sheets.Entry{
		TransactionID: tx.ID,
		AccountNumber: msg.AccountNumber,
		Date:          w.projector.FormatDate(tx.Date),
		Label:         view.Label(tx.Type),
		Detail:        view.Detail(tx),
		SignedAmount:  view.SignedAmount(tx),
		BalanceAfter:  tx.BalanceAfter,
	}

	ref, err := w.writer.AppendTransaction(ctx, entry)
	if err != nil {
		w.recorder.ObserveExport(ResultFailed)
		return fmt.Errorf("append transaction %d: %w", tx.ID, err)
	}
	w.seen.Set(key, struct{}{})
	w.recorder.ObserveExport(ResultWritten)

	w.logger.InfoContext(ctx, "Transaction exported",
		log.FieldTxID, tx.ID,
		log.FieldTxType, tx.Type.String(),
		log.FieldSheetsRef, ref)
	return nil
}

func seenKey(id int64) string { return strconv.FormatInt(id, 10) }
