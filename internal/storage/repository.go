package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cajero/internal/core"
	"cajero/internal/ledger"
	"cajero/internal/log"
)

// DefaultAccountKey is the key the account document is stored under.
const DefaultAccountKey = "pkbankUser"

// Repository loads and saves the single account document.
type Repository struct {
	store  BlobStore
	key    string
	seed   core.Account
	logger *log.Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithKey overrides the storage key.
func WithKey(key string) RepositoryOption {
	return func(r *Repository) {
		if key != "" {
			r.key = key
		}
	}
}

// WithSeed overrides the account used when nothing valid is stored.
func WithSeed(seed core.Account) RepositoryOption {
	return func(r *Repository) { r.seed = seed.Clone() }
}

// WithLogger sets the logger used for recovery warnings.
func WithLogger(l *log.Logger) RepositoryOption {
	return func(r *Repository) {
		if l != nil {
			r.logger = l.WithComponent(log.ComponentStorage)
		}
	}
}

func NewRepository(store BlobStore, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:  store,
		key:    DefaultAccountKey,
		seed:   core.SeedAccount(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the storage key of the account document.
func (r *Repository) Key() string { return r.key }

// Load returns the persisted account. It never fails: when the document is
// missing or unreadable the seed account is written back and returned.
// Readable documents are normalised field by field.
func (r *Repository) Load(ctx context.Context) core.Account {
	data, err := r.store.ReadBlob(ctx, r.key)
	switch {
	case errors.Is(err, ErrBlobNotFound):
		r.logger.InfoContext(ctx, "No stored account, writing seed", log.FieldKey, r.key)
		return r.reseed(ctx)
	case err != nil:
		r.logger.WarnContext(ctx, "Reading account failed, falling back to seed",
			log.FieldKey, r.key, log.FieldError, err)
		return r.reseed(ctx)
	}

	acct, dropped, err := decodeAccount(data, r.seed)
	if err != nil {
		r.logger.WarnContext(ctx, "Stored account is not valid JSON, replacing with seed",
			log.FieldKey, r.key, log.FieldError, err)
		return r.reseed(ctx)
	}
	if dropped > 0 {
		r.logger.WarnContext(ctx, "Dropped malformed transactions", log.FieldKey, r.key, "dropped", dropped)
	}
	if err := ledger.Verify(acct); err != nil {
		r.logger.WarnContext(ctx, "Stored ledger is inconsistent", log.FieldKey, r.key, log.FieldError, err)
	}
	return acct
}

// Save overwrites the stored document with the full account.
func (r *Repository) Save(ctx context.Context, acct core.Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	if err := r.store.WriteBlob(ctx, r.key, data); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (r *Repository) reseed(ctx context.Context) core.Account {
	seed := r.seed.Clone()
	if err := r.Save(ctx, seed); err != nil {
		r.logger.WarnContext(ctx, "Writing seed account failed", log.FieldKey, r.key, log.FieldError, err)
	}
	return seed
}

func encodeAccount(acct core.Account) ([]byte, error) {
	if acct.Transactions == nil {
		acct.Transactions = []core.Transaction{}
	}
	data, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return data, nil
}

// storedAccount mirrors the document loosely so each field can be
// validated on its own. "account" is the legacy name of accountNumber.
type storedAccount struct {
	Name          json.RawMessage `json:"name"`
	PIN           json.RawMessage `json:"pin"`
	AccountNumber json.RawMessage `json:"accountNumber"`
	LegacyAccount json.RawMessage `json:"account"`
	Balance       json.RawMessage `json:"balance"`
	Transactions  json.RawMessage `json:"transactions"`
}

// decodeAccount parses data and repairs invalid fields from seed. It fails
// only when data is not a JSON object. It reports how many transactions were
// dropped.
func decodeAccount(data []byte, seed core.Account) (core.Account, int, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return core.Account{}, 0, errors.New("account document is not an object")
	}
	var raw storedAccount
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return core.Account{}, 0, err
	}

	acct := core.Account{
		Name:          seed.Name,
		PIN:           seed.PIN,
		AccountNumber: seed.AccountNumber,
		Balance:       seed.Balance,
		Transactions:  []core.Transaction{},
	}
	if s, ok := rawString(raw.Name); ok {
		acct.Name = s
	}
	if s, ok := rawString(raw.AccountNumber); ok {
		acct.AccountNumber = s
	} else if s, ok := rawString(raw.LegacyAccount); ok {
		acct.AccountNumber = s
	}
	if s, ok := rawString(raw.PIN); ok && core.ValidPIN(s) {
		acct.PIN = s
	}
	if len(raw.Balance) > 0 {
		var m core.Money
		if err := m.UnmarshalJSON(raw.Balance); err == nil && m.Cents >= 0 {
			acct.Balance = m
		}
	}

	var items []json.RawMessage
	if len(raw.Transactions) == 0 || json.Unmarshal(raw.Transactions, &items) != nil {
		return acct, 0, nil
	}
	dropped := 0
	for _, item := range items {
		var tx core.Transaction
		if err := json.Unmarshal(item, &tx); err != nil || tx.Validate() != nil {
			dropped++
			continue
		}
		acct.Transactions = append(acct.Transactions, tx)
	}
	return acct, dropped, nil
}

// rawString returns the trimmed string value of raw when it is a non-empty
// JSON string.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
