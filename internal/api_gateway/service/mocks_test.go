package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/dalasi-wallet-core/internal/domain/card"
	"github.com/dalasi-wallet-core/internal/domain/conversion"
	"github.com/dalasi-wallet-core/internal/domain/provider"
	"github.com/dalasi-wallet-core/internal/domain/shared"
	"github.com/dalasi-wallet-core/internal/domain/transaction"
	"github.com/dalasi-wallet-core/internal/domain/wallet"
	"github.com/dalasi-wallet-core/internal/idempotency"
	"github.com/dalasi-wallet-core/internal/platform/messaging/producers"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTxRunner runs the callback directly; repositories are mocked, so no
// real transaction handle is needed.
type fakeTxRunner struct {
	err error
}

func (f *fakeTxRunner) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type memoryGuardStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryGuardStore() *memoryGuardStore {
	return &memoryGuardStore{data: make(map[string][]byte)}
}

func (s *memoryGuardStore) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memoryGuardStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	return raw, ok, nil
}

func (s *memoryGuardStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func newTestGuard(t *testing.T) *idempotency.Guard {
	t.Helper()
	return idempotency.NewGuard(newTestLogger(), newMemoryGuardStore(), nil, time.Hour)
}

type MockTransactionRepo struct {
	mock.Mock
}

func (m *MockTransactionRepo) Create(ctx context.Context, txn *transaction.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) GetByProviderRef(ctx context.Context, providerName, providerRef string) (*transaction.Transaction, error) {
	args := m.Called(ctx, providerName, providerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, walletID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to shared.TransactionStatus, reason shared.FailureReason) error {
	args := m.Called(ctx, id, from, to, reason)
	return args.Error(0)
}

func (m *MockTransactionRepo) MarkProviderAcked(ctx context.Context, id uuid.UUID, providerName, providerRef string) error {
	args := m.Called(ctx, id, providerName, providerRef)
	return args.Error(0)
}

func (m *MockTransactionRepo) SetReviewFlag(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepo) WithTx(pgx.Tx) transaction.Repository {
	return m
}

type MockConversionRepo struct {
	mock.Mock
}

func (m *MockConversionRepo) Create(ctx context.Context, r *conversion.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockConversionRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*conversion.Record, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversion.Record), args.Error(1)
}

func (m *MockConversionRepo) WithTx(pgx.Tx) conversion.Repository {
	return m
}

type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) Create(ctx context.Context, w *wallet.Wallet) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) GetByAccountAndCurrency(ctx context.Context, accountID uuid.UUID, currency shared.Currency) (*wallet.Wallet, error) {
	args := m.Called(ctx, accountID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) Update(ctx context.Context, w *wallet.Wallet) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWalletRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) WithTx(pgx.Tx) wallet.Repository {
	return m
}

type MockCardRepo struct {
	mock.Mock
}

func (m *MockCardRepo) Create(ctx context.Context, c *card.Card) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCardRepo) GetByID(ctx context.Context, id uuid.UUID) (*card.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*card.Card), args.Error(1)
}

func (m *MockCardRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*card.Card, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*card.Card), args.Error(1)
}

func (m *MockCardRepo) Update(ctx context.Context, c *card.Card) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCardRepo) WithTx(pgx.Tx) card.Repository {
	return m
}

type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) Save(ctx context.Context, event *provider.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*provider.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Event), args.Error(1)
}

func (m *MockEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventRepo) ListUnprocessed(ctx context.Context, limit int) ([]*provider.Event, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*provider.Event), args.Error(1)
}

type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Name() string {
	return "mockpay"
}

func (m *MockAdapter) Initiate(ctx context.Context, intent provider.Intent) (provider.Reference, error) {
	args := m.Called(ctx, intent)
	return args.Get(0).(provider.Reference), args.Error(1)
}

func (m *MockAdapter) ParseWebhook(raw []byte) (*provider.Event, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Event), args.Error(1)
}

func (m *MockAdapter) ReconcileStatus(ctx context.Context, ref provider.Reference) (provider.Outcome, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(provider.Outcome), args.Error(1)
}

type MockProviderResolver struct {
	mock.Mock
}

func (m *MockProviderResolver) Get(name string) (provider.Adapter, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Adapter), args.Error(1)
}

type MockMessagingProducer struct {
	mock.Mock
}

func (m *MockMessagingProducer) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagingProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}

var (
	_ transaction.Repository       = (*MockTransactionRepo)(nil)
	_ conversion.Repository        = (*MockConversionRepo)(nil)
	_ wallet.Repository            = (*MockWalletRepo)(nil)
	_ card.Repository              = (*MockCardRepo)(nil)
	_ provider.EventRepository     = (*MockEventRepo)(nil)
	_ provider.Adapter             = (*MockAdapter)(nil)
	_ ProviderResolver             = (*MockProviderResolver)(nil)
	_ producers.MessagePublisher   = (*MockMessagingProducer)(nil)
	_ TxRunner                     = (*fakeTxRunner)(nil)
	_ idempotency.Store            = (*memoryGuardStore)(nil)
)
