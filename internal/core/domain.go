package core

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// TxType identifies the kind of a ledger transaction. The set is closed.
type TxType int

const (
	TxDeposit TxType = iota + 1
	TxWithdrawal
	TxServicePayment
	TxBalanceInquiry
)

// TxTypes lists every transaction type in fixed category order.
var TxTypes = []TxType{TxDeposit, TxWithdrawal, TxServicePayment, TxBalanceInquiry}

var txTypeNames = map[TxType]string{
	TxDeposit:        "Deposit",
	TxWithdrawal:     "Withdrawal",
	TxServicePayment: "ServicePayment",
	TxBalanceInquiry: "BalanceInquiry",
}

// legacyTxTypeNames maps the type names written by the first version of the
// terminal, which stored display labels instead of identifiers.
var legacyTxTypeNames = map[string]TxType{
	"Depósito":          TxDeposit,
	"Retiro":            TxWithdrawal,
	"Pago de servicio":  TxServicePayment,
	"Consulta de saldo": TxBalanceInquiry,
}

const (
	MaxDescriptionLength = 80
	MaxServiceLength     = 50
)

var (
	pinPattern       = regexp.MustCompile(`^[0-9]{4}$`)
	referencePattern = regexp.MustCompile(`^[0-9A-Za-z-]{4,20}$`)
)

type (
	// Account is the single persisted account. Transactions are kept in
	// creation order and are never edited or removed.
	Account struct {
		Name          string        `json:"name"`
		PIN           string        `json:"pin"`
		AccountNumber string        `json:"accountNumber"`
		Balance       Money         `json:"balance"`
		Transactions  []Transaction `json:"transactions"`
	}

	// ServicePayment holds the fields only a service payment carries.
	ServicePayment struct {
		Service   string `json:"service,omitempty"`
		Reference string `json:"reference,omitempty"`
	}

	// Transaction is an applied, immutable ledger entry.
	Transaction struct {
		ID          int64  `json:"id"`
		Type        TxType `json:"type"`
		Amount      Money  `json:"amount"`
		Description string `json:"description,omitempty"`
		// Set only when Type is TxServicePayment.
		*ServicePayment
		Date         time.Time `json:"date"`
		BalanceAfter Money     `json:"balanceAfter"`
	}
)

// SeedAccount returns the default account used when nothing valid is stored.
func SeedAccount() Account {
	return Account{
		Name:          "Ash Ketchum",
		PIN:           "1234",
		AccountNumber: "0987654321",
		Balance:       FromCents(50000),
		Transactions:  []Transaction{},
	}
}

// String implements fmt.Stringer.
func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TxType(%d)", int(t))
}

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	_, ok := txTypeNames[t]
	return ok
}

// ParseTxType accepts the identifier ("Deposit") or the legacy label ("Depósito").
func ParseTxType(s string) (TxType, error) {
	s = strings.TrimSpace(s)
	for t, name := range txTypeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	if t, ok := legacyTxTypeNames[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// MarshalText encodes t by its identifier and rejects unknown values.
func (t TxType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid transaction type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts anything ParseTxType does.
func (t *TxType) UnmarshalText(text []byte) error {
	parsed, err := ParseTxType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Delta returns the signed effect of the transaction on the balance:
// positive for deposits, negative for withdrawals and payments, zero for inquiries.
func (tx Transaction) Delta() Money {
	switch tx.Type {
	case TxDeposit:
		return tx.Amount
	case TxWithdrawal, TxServicePayment:
		return tx.Amount.Neg()
	case TxBalanceInquiry:
		return Money{}
	}
	panic(fmt.Sprintf("core: unhandled transaction type %v", tx.Type))
}

// Validate checks the stored shape of a transaction.
func (tx Transaction) Validate() error {
	if tx.ID <= 0 {
		return fmt.Errorf("transaction id must be positive, got %d", tx.ID)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("invalid transaction type %d", int(tx.Type))
	}
	if tx.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if tx.Type == TxBalanceInquiry && !tx.Amount.IsZero() {
		return fmt.Errorf("balance inquiry %d carries an amount", tx.ID)
	}
	if tx.Type != TxBalanceInquiry && tx.Amount.IsZero() {
		return fmt.Errorf("transaction %d has a zero amount", tx.ID)
	}
	if utf8.RuneCountInString(tx.Description) > MaxDescriptionLength {
		return fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	}
	if tx.Type == TxServicePayment {
		if tx.ServicePayment == nil {
			return fmt.Errorf("service payment %d has no service details", tx.ID)
		}
		if err := tx.ServicePayment.Validate(); err != nil {
			return err
		}
	} else if tx.ServicePayment != nil {
		return fmt.Errorf("transaction %d of type %v carries service details", tx.ID, tx.Type)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("transaction %d has no date", tx.ID)
	}
	if tx.BalanceAfter.Cents < 0 {
		return fmt.Errorf("transaction %d leaves a negative balance", tx.ID)
	}
	return nil
}

// Validate checks service name and reference formats.
func (p ServicePayment) Validate() error {
	if strings.TrimSpace(p.Service) == "" {
		return ErrEmptyService
	}
	if utf8.RuneCountInString(p.Service) > MaxServiceLength {
		return fmt.Errorf("service too long (max %d characters)", MaxServiceLength)
	}
	if !ValidReference(p.Reference) {
		return ErrInvalidReference
	}
	return nil
}

// ValidPIN reports whether pin is exactly four digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// ValidReference reports whether ref matches the payment reference format.
func ValidReference(ref string) bool {
	return referencePattern.MatchString(ref)
}

// Clone returns a deep copy of the account so callers never share the
// transaction backing array.
func (a Account) Clone() Account {
	out := a
	out.Transactions = make([]Transaction, len(a.Transactions))
	for i, tx := range a.Transactions {
		if tx.ServicePayment != nil {
			p := *tx.ServicePayment
			tx.ServicePayment = &p
		}
		out.Transactions[i] = tx
	}
	return out
}

// Last returns the most recently applied transaction, if any.
func (a Account) Last() (Transaction, bool) {
	if len(a.Transactions) == 0 {
		return Transaction{}, false
	}
	return a.Transactions[len(a.Transactions)-1], true
}

// LastID returns the id of the most recent transaction or 0.
func (a Account) LastID() int64 {
	if tx, ok := a.Last(); ok {
		return tx.ID
	}
	return 0
}

// CheckInvariants verifies the ledger: non-negative balance, strictly
// increasing ids, balance-after chaining, and balance equal to the last
// balance-after. A failure is a programming defect, never a user error.
func (a Account) CheckInvariants() error {
	if a.Balance.Cents < 0 {
		return fmt.Errorf("%w: negative balance %s", ErrLedgerCorrupted, a.Balance)
	}
	for i, tx := range a.Transactions {
		if i == 0 {
			continue
		}
		prev := a.Transactions[i-1]
		if tx.ID <= prev.ID {
			return fmt.Errorf("%w: transaction id %d does not follow %d", ErrLedgerCorrupted, tx.ID, prev.ID)
		}
		if want := prev.BalanceAfter.Add(tx.Delta()); tx.BalanceAfter != want {
			return fmt.Errorf("%w: transaction %d balance after %s, want %s", ErrLedgerCorrupted, tx.ID, tx.BalanceAfter, want)
		}
	}
	if last, ok := a.Last(); ok && last.BalanceAfter != a.Balance {
		return fmt.Errorf("%w: balance %s differs from last balance after %s", ErrLedgerCorrupted, a.Balance, last.BalanceAfter)
	}
	return nil
}

// Equal reports whether two accounts hold the same data.
func (a Account) Equal(b Account) bool {
	if a.Name != b.Name || a.PIN != b.PIN || a.AccountNumber != b.AccountNumber || a.Balance != b.Balance {
		return false
	}
	return slices.EqualFunc(a.Transactions, b.Transactions, func(x, y Transaction) bool {
		if (x.ServicePayment == nil) != (y.ServicePayment == nil) {
			return false
		}
		if x.ServicePayment != nil && *x.ServicePayment != *y.ServicePayment {
			return false
		}
		return x.ID == y.ID && x.Type == y.Type && x.Amount == y.Amount &&
			x.Description == y.Description && x.Date.Equal(y.Date) && x.BalanceAfter == y.BalanceAfter
	})
}
