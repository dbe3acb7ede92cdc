package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cajero/internal/core"
	"cajero/internal/ledger"
	"cajero/internal/log"
)

var (
	ErrWrongPIN         = errors.New("wrong PIN")
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// Operation outcomes reported to the Recorder.
const (
	OutcomeSuccess           = "success"
	OutcomeValidation        = "validation_error"
	OutcomeInvalidAmount     = "invalid_amount"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeWrongPIN          = "wrong_pin"
	OutcomeUnauthenticated   = "unauthenticated"
	OutcomeStorageError      = "storage_error"
)

// AccountStore persists the single account.
type AccountStore interface {
	Load(ctx context.Context) core.Account
	Save(ctx context.Context, acct core.Account) error
}

// TransactionPublisher announces committed transactions.
type TransactionPublisher interface {
	PublishTransaction(ctx context.Context, accountNumber string, tx core.Transaction) error
}

// Recorder receives operation outcomes and the current balance.
type Recorder interface {
	ObserveOperation(op, outcome string)
	SetBalance(cents int64)
}

// TerminalService runs the terminal session: it gates operations behind the
// PIN, applies them with the ledger engine, persists the result and only
// then commits it in memory. Calls are serialised.
type TerminalService struct {
	store     AccountStore
	engine    *ledger.Engine
	publisher TransactionPublisher
	recorder  Recorder
	logger    *log.Logger
	events    *log.StructuredLogger

	mu            sync.Mutex
	acct          core.Account
	authenticated bool
	last          *core.Transaction
}

// Option configures a TerminalService.
type Option func(*TerminalService)

func WithEngine(e *ledger.Engine) Option {
	return func(s *TerminalService) {
		if e != nil {
			s.engine = e
		}
	}
}

func WithPublisher(p TransactionPublisher) Option {
	return func(s *TerminalService) { s.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *TerminalService) { s.recorder = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *TerminalService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentTerminal)
		}
	}
}

// NewTerminalService loads the account from store and returns a service with
// no open session.
func NewTerminalService(ctx context.Context, store AccountStore, opts ...Option) *TerminalService {
	s := &TerminalService{
		store:  store,
		engine: ledger.NewEngine(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = log.NewStructuredLogger(s.logger)
	s.acct = store.Load(ctx)
	s.setBalance()
	return s
}

// Login opens the session when pin matches the account PIN. The account is
// reloaded from the store first.
func (s *TerminalService) Login(ctx context.Context, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pin = strings.TrimSpace(pin)
	var ve core.ValidationError
	switch {
	case pin == "":
		ve.Add("pin", "Ingrese su PIN para continuar.")
	case !core.ValidPIN(pin):
		ve.Add("pin", "El PIN debe contener 4 dígitos numéricos.")
	}
	if err := ve.Err(); err != nil {
		s.observe(log.OpLogin, err)
		return err
	}

	s.acct = s.store.Load(ctx)
	s.setBalance()
	if pin != s.acct.PIN {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldAccount, s.acct.AccountNumber)
		s.observe(log.OpLogin, ErrWrongPIN)
		return ErrWrongPIN
	}

	s.authenticated = true
	s.last = nil
	if tx, ok := s.acct.Last(); ok {
		s.last = &tx
	}
	s.logger.InfoContext(ctx, "Session opened", log.FieldAccount, s.acct.AccountNumber)
	s.observe(log.OpLogin, nil)
	return nil
}

// Logout closes the session and forgets the last transaction.
func (s *TerminalService) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authenticated {
		s.logger.InfoContext(ctx, "Session closed", log.FieldAccount, s.acct.AccountNumber)
	}
	s.authenticated = false
	s.last = nil
}

// Authenticated reports whether a session is open.
func (s *TerminalService) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Account returns a copy of the current account.
func (s *TerminalService) Account() core.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acct.Clone()
}

// LastTransaction returns the transaction shown on the receipt banner.
func (s *TerminalService) LastTransaction() (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return core.Transaction{}, false
	}
	tx := *s.last
	return tx, true
}

func (s *TerminalService) Deposit(ctx context.Context, req ledger.DepositRequest) (core.Transaction, error) {
	return s.apply(ctx, log.OpDeposit, func(acct core.Account) (core.Account, core.Transaction, error) {
		return s.engine.Deposit(acct, req)
	})
}

func (s *TerminalService) Withdraw(ctx context.Context, req ledger.WithdrawalRequest) (core.Transaction, error) {
	return s.apply(ctx, log.OpWithdraw, func(acct core.Account) (core.Account, core.Transaction, error) {
		return s.engine.Withdraw(acct, req)
	})
}

func (s *TerminalService) PayService(ctx context.Context, req ledger.ServicePaymentRequest) (core.Transaction, error) {
	return s.apply(ctx, log.OpPayment, func(acct core.Account) (core.Account, core.Transaction, error) {
		return s.engine.PayService(acct, req)
	})
}

func (s *TerminalService) InquireBalance(ctx context.Context) (core.Transaction, error) {
	return s.apply(ctx, log.OpInquiry, func(acct core.Account) (core.Account, core.Transaction, error) {
		next, tx := s.engine.InquireBalance(acct)
		return next, tx, nil
	})
}

// apply runs op against the current account. The in-memory account changes
// only after the new state has been saved.
func (s *TerminalService) apply(ctx context.Context, op string, run func(core.Account) (core.Account, core.Transaction, error)) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		s.observe(op, ErrNotAuthenticated)
		return core.Transaction{}, ErrNotAuthenticated
	}

	next, tx, err := run(s.acct)
	if err != nil {
		s.logger.DebugContext(ctx, "Operation rejected", log.FieldOperation, op, log.FieldError, err)
		s.observe(op, err)
		return core.Transaction{}, err
	}

	if err := s.store.Save(ctx, next); err != nil {
		err = fmt.Errorf("persist %s: %w", op, err)
		s.events.LogError(ctx, "Transaction not committed", err, op, nil)
		s.observe(op, err)
		return core.Transaction{}, err
	}

	s.acct = next
	s.last = &tx
	s.setBalance()
	s.observe(op, nil)
	s.events.LogTransactionApplied(ctx, op, tx.ID, tx.Type.String(), tx.Amount.Cents, tx.BalanceAfter.Cents)

	if s.publisher != nil {
		if err := s.publisher.PublishTransaction(ctx, next.AccountNumber, tx); err != nil {
			s.logger.WarnContext(ctx, "Publishing transaction failed",
				log.FieldOperation, log.OpPublish, log.FieldTxID, tx.ID, log.FieldError, err)
		}
	}
	return tx, nil
}

func (s *TerminalService) observe(op string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveOperation(op, Outcome(err))
	}
}

func (s *TerminalService) setBalance() {
	if s.recorder != nil {
		s.recorder.SetBalance(s.acct.Balance.Cents)
	}
}

// Outcome classifies an operation error for metrics.
func Outcome(err error) string {
	var ve *core.ValidationError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &ve):
		return OutcomeValidation
	case errors.Is(err, core.ErrInvalidAmount):
		return OutcomeInvalidAmount
	case errors.Is(err, core.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, ErrWrongPIN):
		return OutcomeWrongPIN
	case errors.Is(err, ErrNotAuthenticated):
		return OutcomeUnauthenticated
	default:
		return OutcomeStorageError
	}
}
