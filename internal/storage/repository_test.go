package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajero/internal/core"
	"cajero/internal/ledger"
)

type failingStore struct {
	readErr  error
	writeErr error
	writes   int
}

func (f *failingStore) ReadBlob(context.Context, string) ([]byte, error) { return nil, f.readErr }
func (f *failingStore) WriteBlob(context.Context, string, []byte) error {
	f.writes++
	return f.writeErr
}
func (f *failingStore) Close() error { return nil }

func TestLoadMissingWritesSeed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := NewRepository(store)

	acct := repo.Load(ctx)
	assert.True(t, acct.Equal(core.SeedAccount()))

	data, err := store.ReadBlob(ctx, DefaultAccountKey)
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "Ash Ketchum", stored["name"])
	assert.Equal(t, []any{}, stored["transactions"])
}

func TestLoadCorruptReplacesWithSeed(t *testing.T) {
	ctx := context.Background()
	for _, blob := range []string{"not json", "[1,2,3]", `"text"`, "", `{"name": `} {
		t.Run(blob, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.WriteBlob(ctx, DefaultAccountKey, []byte(blob)))

			acct := NewRepository(store).Load(ctx)
			assert.True(t, acct.Equal(core.SeedAccount()))

			data, err := store.ReadBlob(ctx, DefaultAccountKey)
			require.NoError(t, err)
			assert.True(t, json.Valid(data))
		})
	}
}

func TestLoadReadErrorReturnsSeed(t *testing.T) {
	store := &failingStore{readErr: errors.New("boom"), writeErr: errors.New("still boom")}
	acct := NewRepository(store).Load(context.Background())
	assert.True(t, acct.Equal(core.SeedAccount()))
	assert.Equal(t, 1, store.writes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NewMemoryStore(), WithKey("acct"))
	e := ledger.NewEngine(ledger.WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 14, 30, 0, 123_000_000, time.UTC)
	}))

	acct := repo.Load(ctx)
	acct, _, err := e.Deposit(acct, ledger.DepositRequest{Amount: "150.25"})
	require.NoError(t, err)
	acct, _, err = e.PayService(acct, ledger.ServicePaymentRequest{Service: "Luz", Reference: "ABC-123", Amount: "50"})
	require.NoError(t, err)
	acct, _ = e.InquireBalance(acct)

	require.NoError(t, repo.Save(ctx, acct))
	loaded := repo.Load(ctx)
	assert.True(t, loaded.Equal(acct))

	require.NoError(t, repo.Save(ctx, loaded))
	assert.True(t, repo.Load(ctx).Equal(acct))
}

func TestSaveError(t *testing.T) {
	repo := NewRepository(&failingStore{writeErr: errors.New("disk full")})
	err := repo.Save(context.Background(), core.SeedAccount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLoadNormalisesFields(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		blob  string
		check func(t *testing.T, acct core.Account)
	}{
		{
			name: "empty name and account",
			blob: `{"name":"  ","accountNumber":"","pin":"4321","balance":10}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, "Ash Ketchum", acct.Name)
				assert.Equal(t, "0987654321", acct.AccountNumber)
				assert.Equal(t, "4321", acct.PIN)
				assert.Equal(t, int64(1000), acct.Balance.Cents)
			},
		},
		{
			name: "bad pin",
			blob: `{"name":"Misty","pin":"12a4","balance":10}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, "Misty", acct.Name)
				assert.Equal(t, "1234", acct.PIN)
			},
		},
		{
			name: "numeric pin",
			blob: `{"pin":1234,"balance":10}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, "1234", acct.PIN)
			},
		},
		{
			name: "negative balance",
			blob: `{"balance":-5}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, int64(50000), acct.Balance.Cents)
			},
		},
		{
			name: "string balance rounded",
			blob: `{"balance":"12.345"}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, int64(1235), acct.Balance.Cents)
			},
		},
		{
			name: "garbage balance",
			blob: `{"balance":"lots"}`,
			check: func(t *testing.T, acct core.Account) {
				assert.Equal(t, int64(50000), acct.Balance.Cents)
			},
		},
		{
			name: "transactions not an array",
			blob: `{"balance":1,"transactions":{"a":1}}`,
			check: func(t *testing.T, acct core.Account) {
				assert.NotNil(t, acct.Transactions)
				assert.Empty(t, acct.Transactions)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.WriteBlob(ctx, DefaultAccountKey, []byte(tt.blob)))
			tt.check(t, NewRepository(store).Load(ctx))
		})
	}
}

func TestLoadLegacyDocument(t *testing.T) {
	ctx := context.Background()
	legacy := `{
	  "name": "Ash Ketchum",
	  "pin": "1234",
	  "account": "0987654321",
	  "balance": 600,
	  "transactions": [
	    {"id": 1709670600000, "type": "Depósito", "amount": 150, "description": "Depósito en cuenta",
	     "date": "2024-03-05T20:30:00.000Z", "balanceAfter": 650},
	    {"id": 1709670660000, "type": "Pago de servicio", "amount": 50, "service": "Luz",
	     "reference": "ABC123", "description": "Pago aplicado a Luz",
	     "date": "2024-03-05T20:31:00.000Z", "balanceAfter": 600},
	    {"id": 1709670700000, "type": "Transferencia", "amount": 10,
	     "date": "2024-03-05T20:32:00.000Z", "balanceAfter": 590},
	    {"id": "x", "type": "Retiro"}
	  ]
	}`
	store := NewMemoryStore()
	require.NoError(t, store.WriteBlob(ctx, DefaultAccountKey, []byte(legacy)))

	acct := NewRepository(store).Load(ctx)
	assert.Equal(t, "0987654321", acct.AccountNumber)
	assert.Equal(t, int64(60000), acct.Balance.Cents)
	require.Len(t, acct.Transactions, 2)

	assert.Equal(t, core.TxDeposit, acct.Transactions[0].Type)
	pay := acct.Transactions[1]
	assert.Equal(t, core.TxServicePayment, pay.Type)
	require.NotNil(t, pay.ServicePayment)
	assert.Equal(t, "Luz", pay.Service)
	assert.Equal(t, "ABC123", pay.Reference)
	require.NoError(t, ledger.Verify(acct))
}

func TestWithSeed(t *testing.T) {
	seed := core.SeedAccount()
	seed.Name = "Brock"
	acct := NewRepository(NewMemoryStore(), WithSeed(seed)).Load(context.Background())
	assert.Equal(t, "Brock", acct.Name)
}
