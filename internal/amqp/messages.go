package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cajero/internal/core"
)

// TransactionAppliedMessage announces a transaction committed to the ledger.
// It carries the full transaction so consumers never read the account store.
type TransactionAppliedMessage struct {
	AccountNumber     string    `json:"account_number"`
	TransactionID     int64     `json:"transaction_id"`
	Type              string    `json:"type"`
	AmountCents       int64     `json:"amount_cents"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	Description       string    `json:"description,omitempty"`
	Service           string    `json:"service,omitempty"`
	Reference         string    `json:"reference,omitempty"`
	Date              time.Time `json:"date"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewTransactionAppliedMessage builds the message for tx applied to accountNumber
func NewTransactionAppliedMessage(accountNumber string, tx core.Transaction) *TransactionAppliedMessage {
	msg := &TransactionAppliedMessage{
		AccountNumber:     accountNumber,
		TransactionID:     tx.ID,
		Type:              tx.Type.String(),
		AmountCents:       tx.Amount.Cents,
		BalanceAfterCents: tx.BalanceAfter.Cents,
		Description:       tx.Description,
		Date:              tx.Date,
		Timestamp:         time.Now(),
	}
	if tx.ServicePayment != nil {
		msg.Service = tx.Service
		msg.Reference = tx.Reference
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *TransactionAppliedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Transaction rebuilds the ledger transaction carried by the message.
func (m *TransactionAppliedMessage) Transaction() (core.Transaction, error) {
	txType, err := core.ParseTxType(m.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		ID:           m.TransactionID,
		Type:         txType,
		Amount:       core.FromCents(m.AmountCents),
		Description:  m.Description,
		Date:         m.Date,
		BalanceAfter: core.FromCents(m.BalanceAfterCents),
	}
	if txType == core.TxServicePayment {
		tx.ServicePayment = &core.ServicePayment{Service: m.Service, Reference: m.Reference}
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// TransactionAppliedMessageFromJSON decodes and checks a message
func TransactionAppliedMessageFromJSON(data []byte) (*TransactionAppliedMessage, error) {
	var msg TransactionAppliedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID <= 0 {
		return nil, errors.New("message has no transaction id")
	}
	if _, err := core.ParseTxType(msg.Type); err != nil {
		return nil, fmt.Errorf("message type: %w", err)
	}
	return &msg, nil
}
