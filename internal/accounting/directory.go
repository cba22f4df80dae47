package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/cache"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Store abstracts account persistence.
type Store interface {
	List(ctx context.Context) ([]Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	Create(ctx context.Context, in CreateInput) (Account, error)
}

// AuditPort records directory events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Directory resolves ledger accounts by id, code or default role.
type Directory struct {
	store  Store
	cache  *cache.JSON
	audit  AuditPort
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewDirectory constructs the account directory. cache and audit may be nil.
func NewDirectory(store Store, c *cache.JSON, audit AuditPort, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, cache: c, audit: audit, logger: logger, now: time.Now}
}

// List returns all accounts.
func (d *Directory) List(ctx context.Context) ([]Account, error) {
	return d.store.List(ctx)
}

// ByID loads an account through the cache.
func (d *Directory) ByID(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, ErrAccountNotFound
	}
	return d.load(ctx, "id", strconv.FormatInt(id, 10), func(ctx context.Context) (Account, error) {
		return d.store.GetByID(ctx, id)
	})
}

// ByCode loads an account by its stable code through the cache.
func (d *Directory) ByCode(ctx context.Context, code string) (Account, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Account{}, ErrAccountNotFound
	}
	return d.load(ctx, "code", code, func(ctx context.Context) (Account, error) {
		return d.store.GetByCode(ctx, code)
	})
}

// Default resolves one of the engine's default ledgers. A missing or inactive
// default is a configuration error; callers must not substitute another account.
func (d *Directory) Default(ctx context.Context, code string) (Account, error) {
	acct, err := d.ByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fmt.Errorf("%w: %s", ErrDefaultAccountMissing, NormalizeCode(code))
		}
		return Account{}, err
	}
	if !acct.IsActive {
		return Account{}, fmt.Errorf("%w: %s is inactive", ErrDefaultAccountMissing, acct.Code)
	}
	return acct, nil
}

// Resolve loads a caller-referenced account. Unknown or inactive accounts are
// validation errors.
func (d *Directory) Resolve(ctx context.Context, ref Ref) (Account, error) {
	if ref.IsZero() {
		return Account{}, shared.Validation("accounting: account reference required")
	}
	var (
		acct Account
		err  error
	)
	if ref.ID != 0 {
		acct, err = d.ByID(ctx, ref.ID)
	} else {
		acct, err = d.ByCode(ctx, ref.Code)
	}
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, describeRef(ref))
		}
		return Account{}, err
	}
	if !acct.IsActive {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, acct.Code)
	}
	return acct, nil
}

// Create adds an account and invalidates cached lookups.
func (d *Directory) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	acct, err := d.store.Create(ctx, in)
	if err != nil {
		return Account{}, err
	}
	if err := d.cache.Bump(ctx); err != nil {
		d.logger.Warn("account cache bump", slog.Any("error", err))
	}
	if d.audit != nil {
		if err := d.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "account.create",
			Entity:   "account",
			EntityID: strconv.FormatInt(acct.ID, 10),
			NewValue: map[string]any{"code": acct.Code, "name": acct.Name, "type": acct.Type},
			At:       d.now(),
		}); err != nil {
			d.logger.Warn("audit account create", slog.Any("error", err))
		}
	}
	return acct, nil
}

func (d *Directory) load(ctx context.Context, kind, value string, fetch func(context.Context) (Account, error)) (Account, error) {
	key, err := d.cache.BuildKey(ctx, kind, value)
	if err != nil {
		d.logger.Warn("account cache key", slog.Any("error", err))
		return fetch(ctx)
	}
	res, err, _ := d.group.Do(key, func() (any, error) {
		var acct Account
		err := d.cache.Fetch(ctx, key, &acct, func(ctx context.Context) (any, error) {
			return fetch(ctx)
		})
		return acct, err
	})
	if err != nil {
		return Account{}, err
	}
	return res.(Account), nil
}

func describeRef(ref Ref) string {
	if ref.ID != 0 {
		return "id " + strconv.FormatInt(ref.ID, 10)
	}
	return "code " + NormalizeCode(ref.Code)
}
