package accounting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/cache"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

type memoryStore struct {
	mu       sync.Mutex
	accounts map[int64]Account
	nextID   int64
	lookups  int
}

func newMemoryStore(accounts ...Account) *memoryStore {
	s := &memoryStore{accounts: make(map[int64]Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
		if a.ID > s.nextID {
			s.nextID = a.ID
		}
	}
	return s
}

func (s *memoryStore) List(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *memoryStore) GetByID(ctx context.Context, id int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memoryStore) GetByCode(ctx context.Context, code string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	for _, a := range s.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *memoryStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Code == NormalizeCode(in.Code) {
			return Account{}, ErrDuplicateCode
		}
	}
	s.nextID++
	a := Account{ID: s.nextID, Code: NormalizeCode(in.Code), Name: in.Name, Type: in.Type, IsActive: true}
	s.accounts[a.ID] = a
	return a, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newCachedDirectory(t *testing.T, store Store, audit AuditPort) *Directory {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDirectory(store, cache.NewJSON(client, "accounts", time.Minute), audit, nil)
}

func TestDefaultMissingIsConfigurationError(t *testing.T) {
	store := newMemoryStore(Account{ID: 1, Code: "PARTY-ACME", Name: "Acme", Type: AccountTypeAsset, IsActive: true})
	dir := newCachedDirectory(t, store, nil)

	_, err := dir.Default(context.Background(), CodeCash)
	require.ErrorIs(t, err, ErrDefaultAccountMissing)
	require.True(t, errors.Is(err, shared.ErrConfiguration))
	require.False(t, errors.Is(err, shared.ErrValidation))
}

func TestDefaultInactiveIsConfigurationError(t *testing.T) {
	store := newMemoryStore(Account{ID: 1, Code: CodeCash, Name: "Cash", Type: AccountTypeAsset, IsActive: false})
	dir := newCachedDirectory(t, store, nil)

	_, err := dir.Default(context.Background(), CodeCash)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestByCodeUsesCache(t *testing.T) {
	store := newMemoryStore(Account{ID: 7, Code: CodeSales, Name: "Sales", Type: AccountTypeRevenue, IsActive: true})
	dir := newCachedDirectory(t, store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acct, err := dir.ByCode(ctx, "sales")
		require.NoError(t, err)
		require.Equal(t, int64(7), acct.ID)
	}
	require.Equal(t, 1, store.lookups)
}

func TestResolveUnknownAccountIsValidationError(t *testing.T) {
	dir := NewDirectory(newMemoryStore(), nil, nil, nil)

	_, err := dir.Resolve(context.Background(), Ref{ID: 99})
	require.ErrorIs(t, err, ErrUnknownAccount)
	require.True(t, errors.Is(err, shared.ErrValidation))

	_, err = dir.Resolve(context.Background(), Ref{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateBumpsCacheAndAudits(t *testing.T) {
	store := newMemoryStore()
	audit := &recordingAudit{}
	dir := newCachedDirectory(t, store, audit)
	ctx := context.Background()

	_, err := dir.ByCode(ctx, CodeCash)
	require.ErrorIs(t, err, ErrAccountNotFound)

	created, err := dir.Create(ctx, CreateInput{Code: "cash", Name: "Cash in hand", Type: AccountTypeAsset, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, CodeCash, created.Code)

	acct, err := dir.Default(ctx, CodeCash)
	require.NoError(t, err)
	require.Equal(t, created.ID, acct.ID)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "account.create", audit.logs[0].Action)

	_, err = dir.Create(ctx, CreateInput{Code: "CASH", Name: "Dup", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = dir.Create(ctx, CreateInput{Code: "X", Name: "Bad", Type: "ASSETS"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
