package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajero/internal/amqp"
	"cajero/internal/core"
	"cajero/internal/sheets"
	"cajero/internal/sheets/memory"
)

type countingRecorder struct{ results []string }

func (r *countingRecorder) ObserveExport(result string) { r.results = append(r.results, result) }

type failingWriter struct{ calls int }

func (f *failingWriter) AppendTransaction(context.Context, sheets.Entry) (string, error) {
	f.calls++
	return "", errors.New("quota exceeded")
}

var when = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func paymentMessage(id int64) *amqp.TransactionAppliedMessage {
	return amqp.NewTransactionAppliedMessage("1234567890", core.Transaction{
		ID:             id,
		Type:           core.TxServicePayment,
		Amount:         core.FromCents(5000),
		Description:    "Pago aplicado a Luz",
		ServicePayment: &core.ServicePayment{Service: "Luz", Reference: "ABC123"},
		Date:           when,
		BalanceAfter:   core.FromCents(45000),
	})
}

func TestHandleMessageWritesEntry(t *testing.T) {
	store := memory.New()
	rec := &countingRecorder{}
	w := NewExportWorker(store, WithRecorder(rec))

	require.NoError(t, w.HandleMessage(context.Background(), paymentMessage(7)))

	entries := store.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, int64(7), e.TransactionID)
	assert.Equal(t, "1234567890", e.AccountNumber)
	assert.Equal(t, "05/03/24 14:30", e.Date)
	assert.Equal(t, "Pago de servicio", e.Label)
	assert.Equal(t, "Servicio: Luz | Referencia: ABC123 | Pago aplicado a Luz", e.Detail)
	assert.Equal(t, int64(-5000), e.SignedAmount.Cents)
	assert.Equal(t, int64(45000), e.BalanceAfter.Cents)
	assert.Equal(t, []string{ResultWritten}, rec.results)
}

func TestHandleMessageSkipsDuplicates(t *testing.T) {
	store := memory.New()
	rec := &countingRecorder{}
	w := NewExportWorker(store, WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, w.HandleMessage(ctx, paymentMessage(7)))
	require.NoError(t, w.HandleMessage(ctx, paymentMessage(7)))

	assert.Len(t, store.Entries(), 1)
	assert.Equal(t, []string{ResultWritten, ResultDuplicate}, rec.results)
}

func TestWarmPreloadsExportedIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.AppendTransaction(ctx, sheets.Entry{TransactionID: 7})
	require.NoError(t, err)

	w := NewExportWorker(store, WithReader(store))
	n, err := w.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, w.SeenCache().Size())

	require.NoError(t, w.HandleMessage(ctx, paymentMessage(7)))
	assert.Len(t, store.Entries(), 1)
}

func TestWarmWithoutReader(t *testing.T) {
	w := NewExportWorker(memory.New())
	n, err := w.Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleMessageWriterFailureIsRetried(t *testing.T) {
	writer := &failingWriter{}
	rec := &countingRecorder{}
	w := NewExportWorker(writer, WithRecorder(rec))
	ctx := context.Background()

	err := w.HandleMessage(ctx, paymentMessage(9))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	// Not remembered, so a redelivery tries again.
	require.Error(t, w.HandleMessage(ctx, paymentMessage(9)))
	assert.Equal(t, 2, writer.calls)
	assert.Equal(t, []string{ResultFailed, ResultFailed}, rec.results)
}

func TestHandleMessageRejectsInvalidTransaction(t *testing.T) {
	store := memory.New()
	w := NewExportWorker(store)
	msg := paymentMessage(3)
	msg.Reference = ""

	err := w.HandleMessage(context.Background(), msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, amqp.ErrRejected)
	assert.Empty(t, store.Entries())
}

func TestInquiryExportsZeroAmount(t *testing.T) {
	store := memory.New()
	w := NewExportWorker(store)
	msg := amqp.NewTransactionAppliedMessage("1234567890", core.Transaction{
		ID:           11,
		Type:         core.TxBalanceInquiry,
		Description:  "Revisión de saldo disponible",
		Date:         when,
		BalanceAfter: core.FromCents(50000),
	})

	require.NoError(t, w.HandleMessage(context.Background(), msg))
	e := store.Entries()[0]
	assert.Equal(t, "Consulta de saldo", e.Label)
	assert.True(t, e.SignedAmount.IsZero())
}
