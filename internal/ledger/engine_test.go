package ledger

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajero/internal/core"
)

// fixedClock returns a clock that never advances.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestEngine() *Engine {
	return NewEngine(WithClock(fixedClock(time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC))))
}

func TestEngineScenario(t *testing.T) {
	e := newTestEngine()
	acct := core.SeedAccount()

	acct, dep, err := e.Deposit(acct, DepositRequest{Amount: "150"})
	require.NoError(t, err)
	assert.Equal(t, int64(65000), acct.Balance.Cents)
	assert.Equal(t, core.TxDeposit, dep.Type)
	assert.Equal(t, DefaultDepositDescription, dep.Description)
	assert.Equal(t, int64(65000), dep.BalanceAfter.Cents)

	before := acct
	acct, _, err = e.Withdraw(acct, WithdrawalRequest{Amount: "700"})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.True(t, acct.Equal(before))

	acct, pay, err := e.PayService(acct, ServicePaymentRequest{Service: "Electricity", Reference: "ABC123", Amount: "50"})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), acct.Balance.Cents)
	assert.Equal(t, "Pago aplicado a Electricity", pay.Description)
	require.NotNil(t, pay.ServicePayment)
	assert.Equal(t, "Electricity", pay.Service)
	assert.Equal(t, "ABC123", pay.Reference)

	require.Len(t, acct.Transactions, 2)
	assert.Greater(t, acct.Transactions[1].ID, acct.Transactions[0].ID)
	require.NoError(t, acct.CheckInvariants())
}

func TestWithdrawWholeBalance(t *testing.T) {
	e := newTestEngine()
	acct, tx, err := e.Withdraw(core.SeedAccount(), WithdrawalRequest{Amount: "500.00"})
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
	assert.Equal(t, DefaultWithdrawalDescription, tx.Description)
	assert.Equal(t, int64(-50000), tx.Delta().Cents)
}

func TestWithdrawOneCentOver(t *testing.T) {
	e := newTestEngine()
	_, _, err := e.Withdraw(core.SeedAccount(), WithdrawalRequest{Amount: "500.01"})
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestInvalidAmounts(t *testing.T) {
	e := newTestEngine()
	seed := core.SeedAccount()

	for _, amount := range []string{"0", "0.00", "-5", "abc", "0.004", "1e400"} {
		t.Run(amount, func(t *testing.T) {
			acct, _, err := e.Deposit(seed, DepositRequest{Amount: amount})
			assert.ErrorIs(t, err, core.ErrInvalidAmount)
			assert.True(t, acct.Equal(seed))

			_, _, err = e.Withdraw(seed, WithdrawalRequest{Amount: amount})
			assert.ErrorIs(t, err, core.ErrInvalidAmount)

			_, _, err = e.PayService(seed, ServicePaymentRequest{Service: "Agua", Reference: "REF1", Amount: amount})
			assert.ErrorIs(t, err, core.ErrInvalidAmount)
		})
	}
}

func TestAmountRounding(t *testing.T) {
	e := newTestEngine()
	acct, tx, err := e.Deposit(core.SeedAccount(), DepositRequest{Amount: "10,005"})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), tx.Amount.Cents)
	assert.Equal(t, int64(51001), acct.Balance.Cents)
}

func TestDepositValidation(t *testing.T) {
	e := newTestEngine()
	seed := core.SeedAccount()

	_, _, err := e.Deposit(seed, DepositRequest{Amount: "  ", Description: strings.Repeat("x", 81)})
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{
		"Ingrese el monto a depositar.",
		"La descripción debe contener máximo 80 caracteres.",
	}, ve.Messages())
	assert.True(t, ve.Has(FieldAmount))
	assert.True(t, ve.Has(FieldDescription))

	// 80 runes including multibyte characters is accepted.
	acct, tx, err := e.Deposit(seed, DepositRequest{Amount: "1", Description: strings.Repeat("ñ", 80)})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ñ", 80), tx.Description)
	assert.Equal(t, int64(50100), acct.Balance.Cents)
}

func TestDescriptionMustBeValidUTF8(t *testing.T) {
	e := newTestEngine()
	seed := core.SeedAccount()

	for _, run := range []func() (core.Account, error){
		func() (core.Account, error) {
			acct, _, err := e.Deposit(seed, DepositRequest{Amount: "1", Description: "caf\xff"})
			return acct, err
		},
		func() (core.Account, error) {
			acct, _, err := e.Withdraw(seed, WithdrawalRequest{Amount: "1", Description: "\xc3("})
			return acct, err
		},
	} {
		acct, err := run()
		var ve *core.ValidationError
		require.True(t, errors.As(err, &ve), "got %v", err)
		assert.Equal(t, []string{"La descripción contiene caracteres no válidos."}, ve.Messages())
		assert.True(t, acct.Equal(seed))
	}
}

func TestWithdrawValidation(t *testing.T) {
	e := newTestEngine()
	_, _, err := e.Withdraw(core.SeedAccount(), WithdrawalRequest{})
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"Ingrese el monto a retirar."}, ve.Messages())
}

func TestPayServiceValidation(t *testing.T) {
	e := newTestEngine()
	seed := core.SeedAccount()

	tests := []struct {
		name     string
		req      ServicePaymentRequest
		messages []string
	}{
		{
			name: "everything missing",
			req:  ServicePaymentRequest{},
			messages: []string{
				"Ingrese el nombre del servicio.",
				"Ingrese la referencia del pago.",
				"Ingrese el monto a pagar.",
			},
		},
		{
			name:     "service too long",
			req:      ServicePaymentRequest{Service: strings.Repeat("s", 51), Reference: "ABCD", Amount: "1"},
			messages: []string{"El servicio debe tener máximo 50 caracteres."},
		},
		{
			name:     "reference too short",
			req:      ServicePaymentRequest{Service: "Gas", Reference: "ab1", Amount: "1"},
			messages: []string{"La referencia debe tener entre 4 y 20 caracteres alfanuméricos."},
		},
		{
			name:     "service with invalid utf-8",
			req:      ServicePaymentRequest{Service: "Gas\xff", Reference: "ABCD", Amount: "1"},
			messages: []string{"El servicio contiene caracteres no válidos."},
		},
		{
			name:     "reference with invalid utf-8",
			req:      ServicePaymentRequest{Service: "Gas", Reference: "AB\xff12", Amount: "1"},
			messages: []string{"La referencia debe tener entre 4 y 20 caracteres alfanuméricos."},
		},
		{
			name:     "reference with spaces",
			req:      ServicePaymentRequest{Service: "Gas", Reference: "AB 12", Amount: "1"},
			messages: []string{"La referencia debe tener entre 4 y 20 caracteres alfanuméricos."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct, _, err := e.PayService(seed, tt.req)
			var ve *core.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.messages, ve.Messages())
			assert.True(t, acct.Equal(seed))
		})
	}
}

func TestPayServiceTrimsAndAcceptsHyphenReference(t *testing.T) {
	e := newTestEngine()
	_, tx, err := e.PayService(core.SeedAccount(), ServicePaymentRequest{
		Service:   "  Internet  ",
		Reference: " REF-2024-01 ",
		Amount:    "99.90",
	})
	require.NoError(t, err)
	assert.Equal(t, "Internet", tx.Service)
	assert.Equal(t, "REF-2024-01", tx.Reference)
	assert.Equal(t, int64(9990), tx.Amount.Cents)
}

func TestPayServiceLongServiceDescriptionFits(t *testing.T) {
	e := newTestEngine()
	_, tx, err := e.PayService(core.SeedAccount(), ServicePaymentRequest{
		Service:   strings.Repeat("s", 50),
		Reference: "ABCD",
		Amount:    "1",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Validate())
}

func TestInquireBalance(t *testing.T) {
	e := newTestEngine()
	seed := core.SeedAccount()
	acct, tx := e.InquireBalance(seed)

	assert.Equal(t, core.TxBalanceInquiry, tx.Type)
	assert.True(t, tx.Amount.IsZero())
	assert.Equal(t, seed.Balance, tx.BalanceAfter)
	assert.Equal(t, seed.Balance, acct.Balance)
	assert.Equal(t, DefaultInquiryDescription, tx.Description)
	assert.Len(t, acct.Transactions, 1)
}

func TestIDsStrictlyIncreaseWithStalledClock(t *testing.T) {
	e := newTestEngine()
	acct := core.SeedAccount()
	for range 5 {
		acct, _ = e.InquireBalance(acct)
	}
	_, tx, err := e.Deposit(acct, DepositRequest{Amount: "1"})
	require.NoError(t, err)
	assert.Equal(t, acct.LastID()+1, tx.ID)
	require.NoError(t, acct.CheckInvariants())
}

func TestIDsSurviveClockGoingBackwards(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e := NewEngine(WithClock(clock))

	acct, first := e.InquireBalance(core.SeedAccount())
	now = now.Add(-time.Hour)
	_, second := e.InquireBalance(acct)
	assert.Greater(t, second.ID, first.ID)
}

func TestOperationsDoNotAliasInput(t *testing.T) {
	e := newTestEngine()
	base := core.SeedAccount()
	base, _ = e.InquireBalance(base)
	base.Transactions = append(make([]core.Transaction, 0, 8), base.Transactions...)

	a, _, err := e.Deposit(base, DepositRequest{Amount: "1"})
	require.NoError(t, err)
	b, _, err := e.Deposit(base, DepositRequest{Amount: "2"})
	require.NoError(t, err)

	assert.Len(t, base.Transactions, 1)
	assert.Equal(t, int64(100), a.Transactions[1].Amount.Cents)
	assert.Equal(t, int64(200), b.Transactions[1].Amount.Cents)
}

func TestDatesAreUTC(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	e := NewEngine(WithClock(fixedClock(time.Date(2024, 1, 1, 8, 0, 0, 0, loc))))
	_, tx := e.InquireBalance(core.SeedAccount())
	assert.Equal(t, time.UTC, tx.Date.Location())
	assert.Equal(t, 14, tx.Date.Hour())
}

func TestVerify(t *testing.T) {
	e := newTestEngine()
	acct, _, err := e.Deposit(core.SeedAccount(), DepositRequest{Amount: "25"})
	require.NoError(t, err)
	acct, _ = e.InquireBalance(acct)
	require.NoError(t, Verify(acct))

	broken := acct.Clone()
	broken.Balance = core.FromCents(1)
	assert.ErrorIs(t, Verify(broken), core.ErrLedgerCorrupted)

	broken = acct.Clone()
	broken.Transactions[0].Description = strings.Repeat("d", 81)
	assert.ErrorIs(t, Verify(broken), core.ErrLedgerCorrupted)
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{"whole", "150"},
		{"cents", "0.01"},
		{"decimal comma", "12,34"},
		{"rounded input", "10.005"},
		{"large", "999999.99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			start := core.SeedAccount()

			acct, dep, err := e.Deposit(start, DepositRequest{Amount: tt.amount})
			require.NoError(t, err)
			acct, wd, err := e.Withdraw(acct, WithdrawalRequest{Amount: tt.amount})
			require.NoError(t, err)

			assert.Equal(t, dep.Amount, wd.Amount)
			assert.Equal(t, start.Balance, acct.Balance)
			assert.Len(t, acct.Transactions, len(start.Transactions)+2)
			require.NoError(t, Verify(acct))
		})
	}
}

func TestRandomOperationSequencesKeepInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*7919))
			e := newTestEngine()
			acct := core.SeedAccount()

			for step := range 60 {
				amount := fmt.Sprintf("%d.%02d", rng.IntN(800), rng.IntN(100))
				before := acct
				var (
					next core.Account
					err  error
				)
				switch rng.IntN(4) {
				case 0:
					next, _, err = e.Deposit(acct, DepositRequest{Amount: amount})
				case 1:
					next, _, err = e.Withdraw(acct, WithdrawalRequest{Amount: amount})
				case 2:
					next, _, err = e.PayService(acct, ServicePaymentRequest{Service: "Agua", Reference: "REF-2024", Amount: amount})
				default:
					next, _ = e.InquireBalance(acct)
				}

				if err != nil {
					assert.True(t, next.Equal(before), "step %d", step)
					assert.True(t, errors.Is(err, core.ErrInsufficientFunds) || errors.Is(err, core.ErrInvalidAmount),
						"step %d: unexpected error %v", step, err)
					continue
				}
				require.Len(t, next.Transactions, len(before.Transactions)+1, "step %d", step)
				require.NoError(t, next.CheckInvariants(), "step %d", step)
				last, ok := next.Last()
				require.True(t, ok)
				assert.Equal(t, next.Balance, last.BalanceAfter, "step %d", step)
				assert.GreaterOrEqual(t, next.Balance.Cents, int64(0), "step %d", step)
				acct = next
			}
			require.NoError(t, Verify(acct))
		})
	}
}
