// Package view derives display data from an account: history rows, category
// counts, the last-transaction banner and receipt lines. It never mutates
// the account it is given.
package view

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"cajero/internal/core"
)

const (
	// DateLayout renders dates as dd/mm/yy hh:mm.
	DateLayout = "02/01/06 15:04"

	// ZeroAmountPlaceholder is shown instead of a zero signed amount.
	ZeroAmountPlaceholder = "—"

	receiptTitle    = "Pokémon Bank"
	receiptSubtitle = "Sistema de Cajero Automático"
	receiptFooter   = "Gracias por utilizar Pokémon Bank. Para cualquier duda comuníquese con nuestro centro de atención."
)

var labels = map[core.TxType]string{
	core.TxDeposit:        "Depósito",
	core.TxWithdrawal:     "Retiro",
	core.TxServicePayment: "Pago de servicio",
	core.TxBalanceInquiry: "Consulta de saldo",
}

var defaultDetails = map[core.TxType]string{
	core.TxDeposit:        "Depósito en cuenta",
	core.TxWithdrawal:     "Retiro de efectivo",
	core.TxServicePayment: "Pago de servicio",
	core.TxBalanceInquiry: "Revisión de saldo disponible",
}

type (
	// Row is one line of the transaction history table.
	Row struct {
		ID           int64       `json:"id"`
		Date         time.Time   `json:"date"`
		DateText     string      `json:"dateText"`
		Type         core.TxType `json:"type"`
		Label        string      `json:"label"`
		Detail       string      `json:"detail"`
		SignedAmount core.Money  `json:"signedAmount"`
		AmountText   string      `json:"amountText"`
		BalanceAfter core.Money  `json:"balanceAfter"`
		BalanceText  string      `json:"balanceText"`
	}

	// CategoryCount is the number of transactions of one type.
	CategoryCount struct {
		Type  core.TxType `json:"type"`
		Label string      `json:"label"`
		Count int         `json:"count"`
	}

	// Receipt is the printable content of a transaction receipt.
	Receipt struct {
		Title    string   `json:"title"`
		Subtitle string   `json:"subtitle"`
		Lines    []string `json:"lines"`
		Footer   string   `json:"footer"`
		Filename string   `json:"filename"`
	}
)

// Projector formats dates in a fixed location and amounts with a currency formatter.
type Projector struct {
	loc      *time.Location
	currency *core.CurrencyFormatter
}

// Option configures a Projector.
type Option func(*Projector)

// WithLocation sets the time zone dates are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(p *Projector) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithCurrencyFormatter replaces the default es-MX peso formatter.
func WithCurrencyFormatter(f *core.CurrencyFormatter) Option {
	return func(p *Projector) {
		if f != nil {
			p.currency = f
		}
	}
}

// NewProjector creates a projector rendering in UTC with peso formatting unless configured.
func NewProjector(opts ...Option) *Projector {
	p := &Projector{loc: time.UTC}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Label returns the display label of a transaction type.
func Label(t core.TxType) string {
	if l, ok := labels[t]; ok {
		return l
	}
	return t.String()
}

// SignedAmount returns the amount with the sign of its effect on the balance.
func SignedAmount(tx core.Transaction) core.Money {
	switch tx.Type {
	case core.TxDeposit:
		return tx.Amount
	case core.TxWithdrawal, core.TxServicePayment:
		return tx.Amount.Neg()
	default:
		return core.Money{}
	}
}

// Detail returns the free-text column of the history table.
func Detail(tx core.Transaction) string {
	if tx.Type == core.TxServicePayment {
		var parts []string
		if tx.ServicePayment != nil && tx.Service != "" {
			parts = append(parts, "Servicio: "+tx.Service)
		}
		if tx.ServicePayment != nil && tx.Reference != "" {
			parts = append(parts, "Referencia: "+tx.Reference)
		}
		if tx.Description != "" {
			parts = append(parts, tx.Description)
		}
		if len(parts) == 0 {
			return defaultDetails[tx.Type]
		}
		return strings.Join(parts, " | ")
	}
	if tx.Description != "" {
		return tx.Description
	}
	return defaultDetails[tx.Type]
}

// FormatDate renders t in the projector's location.
func (p *Projector) FormatDate(t time.Time) string {
	return t.In(p.loc).Format(DateLayout)
}

// FormatMoney renders m as currency text.
func (p *Projector) FormatMoney(m core.Money) string {
	if p.currency != nil {
		return p.currency.Format(m)
	}
	return core.FormatCurrency(m)
}

// FormatSigned renders the signed amount of tx, or the placeholder when zero.
func (p *Projector) FormatSigned(tx core.Transaction) string {
	s := SignedAmount(tx)
	if s.IsZero() {
		return ZeroAmountPlaceholder
	}
	return p.FormatMoney(s)
}

// History returns the account's transactions newest first. Ties on date are
// broken by id, newest first.
func (p *Projector) History(acct core.Account) []Row {
	txs := slices.Clone(acct.Transactions)
	slices.SortStableFunc(txs, func(a, b core.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, p.Row(tx))
	}
	return rows
}

// Row renders one transaction as a history line.
func (p *Projector) Row(tx core.Transaction) Row {
	return Row{
		ID:           tx.ID,
		Date:         tx.Date,
		DateText:     p.FormatDate(tx.Date),
		Type:         tx.Type,
		Label:        Label(tx.Type),
		Detail:       Detail(tx),
		SignedAmount: SignedAmount(tx),
		AmountText:   p.FormatSigned(tx),
		BalanceAfter: tx.BalanceAfter,
		BalanceText:  p.FormatMoney(tx.BalanceAfter),
	}
}

// CategoryCounts counts transactions per type in fixed category order,
// including types with no transactions.
func CategoryCounts(acct core.Account) []CategoryCount {
	counts := make(map[core.TxType]int, len(core.TxTypes))
	for _, tx := range acct.Transactions {
		counts[tx.Type]++
	}
	out := make([]CategoryCount, 0, len(core.TxTypes))
	for _, t := range core.TxTypes {
		out = append(out, CategoryCount{Type: t, Label: Label(t), Count: counts[t]})
	}
	return out
}

// Summarize renders the last-transaction banner. It returns "" for nil.
func (p *Projector) Summarize(tx *core.Transaction) string {
	if tx == nil {
		return ""
	}
	fragments := []string{p.FormatDate(tx.Date), Label(tx.Type)}
	if s := SignedAmount(*tx); !s.IsZero() {
		fragments = append(fragments, p.FormatMoney(s))
	}
	fragments = append(fragments, "Saldo: "+p.FormatMoney(tx.BalanceAfter))
	return "Última transacción: " + strings.Join(fragments, " · ")
}

// Receipt builds the receipt for tx issued from acct.
func (p *Projector) Receipt(acct core.Account, tx core.Transaction) Receipt {
	lines := []string{
		"Fecha: " + p.FormatDate(tx.Date),
		"Cliente: " + acct.Name,
		"Cuenta: " + acct.AccountNumber,
		"Tipo de transacción: " + Label(tx.Type),
	}
	if tx.Type == core.TxBalanceInquiry {
		lines = append(lines, "Monto: ----")
	} else {
		lines = append(lines, "Monto: "+p.FormatMoney(tx.Amount))
	}
	if tx.ServicePayment != nil {
		if tx.Service != "" {
			lines = append(lines, "Servicio: "+tx.Service)
		}
		if tx.Reference != "" {
			lines = append(lines, "Referencia: "+tx.Reference)
		}
	}
	if tx.Description != "" {
		lines = append(lines, "Detalle: "+tx.Description)
	}
	lines = append(lines, "Saldo posterior: "+p.FormatMoney(tx.BalanceAfter))

	return Receipt{
		Title:    receiptTitle,
		Subtitle: receiptSubtitle,
		Lines:    lines,
		Footer:   receiptFooter,
		Filename: ReceiptFilename(tx),
	}
}

// ReceiptFilename returns comprobante_<label>_<id>.pdf with the label
// lowercased and whitespace runs replaced by underscores.
func ReceiptFilename(tx core.Transaction) string {
	label := strings.ToLower(strings.Join(strings.Fields(Label(tx.Type)), "_"))
	return "comprobante_" + label + "_" + strconv.FormatInt(tx.ID, 10) + ".pdf"
}
