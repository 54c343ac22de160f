package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// mockCouponRepo is an in-process Repository keyed by code.
type mockCouponRepo struct {
	mu           sync.Mutex
	coupons      map[string]*Coupon
	findErr      error
	incrementErr error
	increments   []string
}

func newMockRepo(coupons ...*Coupon) *mockCouponRepo {
	m := &mockCouponRepo{coupons: make(map[string]*Coupon)}
	for _, c := range coupons {
		m.coupons[c.Code] = c
	}
	return m
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Code]; ok {
		return ErrDuplicateCode
	}
	cp := *c
	m.coupons[c.Code] = &cp
	return nil
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCouponRepo) List(_ context.Context, activeOnly bool) ([]Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Coupon
	for _, c := range m.coupons {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCouponRepo) IncrementUsage(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.increments = append(m.increments, id)
	if m.incrementErr != nil {
		return 0, m.incrementErr
	}
	for _, c := range m.coupons {
		if c.ID != id {
			continue
		}
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return 0, ErrUsageLimitReached
		}
		c.UsedCount++
		return c.UsedCount, nil
	}
	return 0, ErrNotFound
}

func newTestLedger(t *testing.T, repo Repository, now time.Time) *Ledger {
	t.Helper()
	l, err := NewLedger(repo, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	l.now = func() time.Time { return now }
	return l
}

func intPtr(v int) *int { return &v }

func TestLedger_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name    string
		coupon  Coupon
		wantErr error
	}{
		{
			name:   "active unexpired unlimited",
			coupon: Coupon{Active: true, ExpiryDate: futureTime},
		},
		{
			name:    "inactive",
			coupon:  Coupon{Active: false, ExpiryDate: futureTime},
			wantErr: ErrCouponInactive,
		},
		{
			name:    "expired",
			coupon:  Coupon{Active: true, ExpiryDate: pastTime},
			wantErr: ErrCouponExpired,
		},
		{
			name:    "inactive wins over expired",
			coupon:  Coupon{Active: false, ExpiryDate: pastTime},
			wantErr: ErrCouponInactive,
		},
		{
			name:    "expired wins over limit",
			coupon:  Coupon{Active: true, ExpiryDate: pastTime, UsageLimit: intPtr(1), UsedCount: 1},
			wantErr: ErrCouponExpired,
		},
		{
			name:    "limit reached",
			coupon:  Coupon{Active: true, ExpiryDate: futureTime, UsageLimit: intPtr(3), UsedCount: 3},
			wantErr: ErrUsageLimitReached,
		},
		{
			name:   "under limit",
			coupon: Coupon{Active: true, ExpiryDate: futureTime, UsageLimit: intPtr(3), UsedCount: 2},
		},
		{
			name:   "expiring exactly now is still valid",
			coupon: Coupon{Active: true, ExpiryDate: fixedNow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, newMockRepo(), fixedNow)
			err := l.Validate(&tt.coupon, l.Now())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLedger_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("increments and returns new count", func(t *testing.T) {
		repo := newMockRepo(&Coupon{ID: "c1", Code: "SAVE10", Active: true, UsageLimit: intPtr(2)})
		l := newTestLedger(t, repo, time.Now())

		used, err := l.Consume(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 1, used)

		used, err = l.Consume(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, used)

		_, err = l.Consume(ctx, "c1")
		require.ErrorIs(t, err, ErrUsageLimitReached)
		assert.Equal(t, []string{"c1", "c1", "c1"}, repo.increments)
	})

	t.Run("unknown id", func(t *testing.T) {
		l := newTestLedger(t, newMockRepo(), time.Now())
		_, err := l.Consume(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("store failure is wrapped", func(t *testing.T) {
		repo := newMockRepo()
		repo.incrementErr = errors.New("db error")
		l := newTestLedger(t, repo, time.Now())

		_, err := l.Consume(ctx, "c1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "increment coupon usage")
	})
}

func TestLedger_ConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	const (
		limit   = 5
		callers = 40
	)
	repo := newMockRepo(&Coupon{ID: "c1", Code: "RUSH", Active: true, UsageLimit: intPtr(limit)})
	l := newTestLedger(t, repo, time.Now())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Consume(context.Background(), "c1")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if errors.Is(err, ErrUsageLimitReached) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, succeeded)
	assert.Equal(t, callers-limit, rejected)

	c, err := repo.FindByCode(context.Background(), "RUSH")
	require.NoError(t, err)
	assert.Equal(t, limit, c.UsedCount)
	assert.Equal(t, 0, c.Remaining())
}

func TestCoupon_Remaining(t *testing.T) {
	assert.Equal(t, -1, (&Coupon{UsedCount: 10}).Remaining())
	assert.Equal(t, 2, (&Coupon{UsageLimit: intPtr(5), UsedCount: 3}).Remaining())
	assert.Equal(t, 0, (&Coupon{UsageLimit: intPtr(5), UsedCount: 7}).Remaining())
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
	assert.Equal(t, "", NormalizeCode("   "))
	assert.Equal(t, "MIXED-CASE", NormalizeCode("Mixed-Case"))
}
