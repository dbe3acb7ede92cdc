// Package ledger validates terminal operations and applies them to an account.
//
// Every operation takes the current account by value and returns the new
// account together with the applied transaction. When an operation fails the
// input account is returned unchanged: there is no partial success.
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"cajero/internal/core"
)

// Default descriptions used when the client leaves the field blank.
const (
	DefaultDepositDescription    = "Depósito en cuenta"
	DefaultWithdrawalDescription = "Retiro de efectivo"
	DefaultInquiryDescription    = "Consulta de saldo registrada en cajero web"
	paymentDescriptionPrefix     = "Pago aplicado a "
)

// Field names reported in validation errors.
const (
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldService     = "service"
	FieldReference   = "reference"
)

type (
	DepositRequest struct {
		Amount      string
		Description string
	}

	WithdrawalRequest struct {
		Amount      string
		Description string
	}

	ServicePaymentRequest struct {
		Service   string
		Reference string
		Amount    string
	}
)

// Engine applies operations to accounts. It holds no account state.
type Engine struct {
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for transaction dates and ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine using the wall clock unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deposit credits the account.
func (e *Engine) Deposit(acct core.Account, req DepositRequest) (core.Account, core.Transaction, error) {
	var ve core.ValidationError
	amountText := strings.TrimSpace(req.Amount)
	description := strings.TrimSpace(req.Description)
	if amountText == "" {
		ve.Add(FieldAmount, "Ingrese el monto a depositar.")
	}
	checkDescription(&ve, description)
	if err := ve.Err(); err != nil {
		return acct, core.Transaction{}, err
	}

	amount, err := positiveAmount(amountText)
	if err != nil {
		return acct, core.Transaction{}, err
	}

	if description == "" {
		description = DefaultDepositDescription
	}
	next, tx := e.apply(acct, core.Transaction{
		Type:        core.TxDeposit,
		Amount:      amount,
		Description: description,
	})
	return next, tx, nil
}

// Withdraw debits the account. Withdrawing the whole balance is allowed.
func (e *Engine) Withdraw(acct core.Account, req WithdrawalRequest) (core.Account, core.Transaction, error) {
	var ve core.ValidationError
	amountText := strings.TrimSpace(req.Amount)
	description := strings.TrimSpace(req.Description)
	if amountText == "" {
		ve.Add(FieldAmount, "Ingrese el monto a retirar.")
	}
	checkDescription(&ve, description)
	if err := ve.Err(); err != nil {
		return acct, core.Transaction{}, err
	}

	amount, err := positiveAmount(amountText)
	if err != nil {
		return acct, core.Transaction{}, err
	}
	if amount.Cents > acct.Balance.Cents {
		return acct, core.Transaction{}, core.ErrInsufficientFunds
	}

	if description == "" {
		description = DefaultWithdrawalDescription
	}
	next, tx := e.apply(acct, core.Transaction{
		Type:        core.TxWithdrawal,
		Amount:      amount,
		Description: description,
	})
	return next, tx, nil
}

// PayService debits the account for a bill identified by service and reference.
func (e *Engine) PayService(acct core.Account, req ServicePaymentRequest) (core.Account, core.Transaction, error) {
	var ve core.ValidationError
	service := strings.TrimSpace(req.Service)
	reference := strings.TrimSpace(req.Reference)
	amountText := strings.TrimSpace(req.Amount)

	switch {
	case service == "":
		ve.Add(FieldService, "Ingrese el nombre del servicio.")
	case !utf8.ValidString(service):
		ve.Add(FieldService, "El servicio contiene caracteres no válidos.")
	case utf8.RuneCountInString(service) > core.MaxServiceLength:
		ve.Add(FieldService, "El servicio debe tener máximo 50 caracteres.")
	}
	switch {
	case reference == "":
		ve.Add(FieldReference, "Ingrese la referencia del pago.")
	case !core.ValidReference(reference):
		ve.Add(FieldReference, "La referencia debe tener entre 4 y 20 caracteres alfanuméricos.")
	}
	if amountText == "" {
		ve.Add(FieldAmount, "Ingrese el monto a pagar.")
	}
	if err := ve.Err(); err != nil {
		return acct, core.Transaction{}, err
	}

	amount, err := positiveAmount(amountText)
	if err != nil {
		return acct, core.Transaction{}, err
	}
	if amount.Cents > acct.Balance.Cents {
		return acct, core.Transaction{}, core.ErrInsufficientFunds
	}

	next, tx := e.apply(acct, core.Transaction{
		Type:           core.TxServicePayment,
		Amount:         amount,
		Description:    paymentDescription(service),
		ServicePayment: &core.ServicePayment{Service: service, Reference: reference},
	})
	return next, tx, nil
}

// InquireBalance records that the balance was consulted. It never fails.
func (e *Engine) InquireBalance(acct core.Account) (core.Account, core.Transaction) {
	return e.apply(acct, core.Transaction{
		Type:        core.TxBalanceInquiry,
		Description: DefaultInquiryDescription,
	})
}

// apply stamps tx, computes the balance after it and appends it to a copy
// of the history. The caller's backing array is never written.
func (e *Engine) apply(acct core.Account, tx core.Transaction) (core.Account, core.Transaction) {
	now := e.now().UTC()
	tx.ID = nextID(now, acct.LastID())
	tx.Date = now

	next := acct
	next.Balance = acct.Balance.Add(tx.Delta())
	tx.BalanceAfter = next.Balance
	next.Transactions = append(slices.Clip(acct.Transactions), tx)
	return next, tx
}

// nextID derives a time-based id that is strictly greater than last, even
// when the clock stalls or moves backwards.
func nextID(now time.Time, last int64) int64 {
	id := now.UnixMilli()
	if id <= last {
		id = last + 1
	}
	return id
}

func positiveAmount(text string) (core.Money, error) {
	amount, err := core.ParseAmount(text)
	if err != nil || amount.Cents <= 0 {
		return core.Money{}, core.ErrInvalidAmount
	}
	return amount, nil
}

// checkDescription rejects text that is too long or not valid UTF-8. Invalid
// bytes would be replaced when the account is encoded, so the stored ledger
// would no longer match the committed one.
func checkDescription(ve *core.ValidationError, description string) {
	switch {
	case !utf8.ValidString(description):
		ve.Add(FieldDescription, "La descripción contiene caracteres no válidos.")
	case utf8.RuneCountInString(description) > core.MaxDescriptionLength:
		ve.Add(FieldDescription, "La descripción debe contener máximo 80 caracteres.")
	}
}

// paymentDescription synthesizes the description of a service payment,
// trimmed to the description limit for long service names.
func paymentDescription(service string) string {
	d := paymentDescriptionPrefix + service
	if utf8.RuneCountInString(d) <= core.MaxDescriptionLength {
		return d
	}
	r := []rune(d)
	return string(r[:core.MaxDescriptionLength])
}

// Verify checks the ledger invariants of acct. A non-nil result wraps
// core.ErrLedgerCorrupted and always indicates a defect, never bad input.
func Verify(acct core.Account) error {
	if err := acct.CheckInvariants(); err != nil {
		return err
	}
	for _, tx := range acct.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrLedgerCorrupted, err)
		}
	}
	return nil
}
