//go:build integration

package mongo_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
	mongostore "github.com/xenking/promo-orders/internal/storage/mongo"
)

var store *mongostore.Store

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Transactions need a replica set, so run a single-node one.
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			Cmd:          []string{"--replSet", "rs0", "--bind_ip_all"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start mongo: %v", err)
	}
	defer func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			log.Printf("terminate mongo: %v", err)
		}
	}()

	code, _, err := ctr.Exec(ctx, []string{"mongosh", "--quiet", "--eval",
		`rs.initiate({_id: "rs0", members: [{_id: 0, host: "localhost:27017"}]})`,
	})
	if err != nil || code != 0 {
		log.Fatalf("initiate replica set: exit %d: %v", code, err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "27017/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	uri := fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, port.Port())
	store, err = mongostore.Connect(ctx, uri, "promo_test")
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatalf("indexes: %v", err)
	}

	return m.Run()
}

func createCoupon(t *testing.T, code string, limit *int) *coupon.Coupon {
	t.Helper()
	c := &coupon.Coupon{
		ID:            uuid.New().String(),
		Code:          code,
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.RequireFromString("4.99"),
		ExpiryDate:    time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
		Active:        true,
		UsageLimit:    limit,
		CreatedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Coupons().Create(context.Background(), c))
	return c
}

func TestCouponRepository(t *testing.T) {
	ctx := context.Background()
	repo := store.Coupons()
	limit := 2
	c := createCoupon(t, "MONGO1", &limit)

	got, err := repo.FindByCode(ctx, "MONGO1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.True(t, c.DiscountValue.Equal(got.DiscountValue))
	assert.Equal(t, c.ExpiryDate, got.ExpiryDate)

	err = repo.Create(ctx, &coupon.Coupon{ID: uuid.New().String(), Code: "MONGO1", CreatedAt: time.Now()})
	require.ErrorIs(t, err, coupon.ErrDuplicateCode)

	_, err = repo.FindByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = repo.IncrementUsage(ctx, "missing-id")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCouponRepository_ConcurrentIncrement(t *testing.T) {
	const limit, callers = 5, 40
	l := limit
	c := createCoupon(t, "MONGORACE", &l)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Coupons().IncrementUsage(context.Background(), c.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, coupon.ErrUsageLimitReached):
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, ok)
	assert.Equal(t, callers-limit, full)

	got, err := store.Coupons().FindByCode(context.Background(), "MONGORACE")
	require.NoError(t, err)
	assert.Equal(t, limit, got.UsedCount)
}

func TestInTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	c := createCoupon(t, "MONGOTX", nil)

	err := store.InTx(ctx, func(ctx context.Context) error {
		if _, err := store.Coupons().IncrementUsage(ctx, c.ID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := store.Coupons().FindByCode(ctx, "MONGOTX")
	require.NoError(t, err)
	assert.Zero(t, got.UsedCount)
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := store.Orders()
	o := &order.Order{
		ID:           uuid.New().String(),
		UserIdentity: "mongo@example.com",
		Items: []json.RawMessage{
			json.RawMessage(`{"sku":"x","qty":1}`),
			json.RawMessage(`{"ref":{"$oid":"abc"},"qty":{"$numberLong":"1"}}`),
		},
		TotalAmount: decimal.RequireFromString("20"),
		FinalTotal:  decimal.RequireFromString("15.01"),
		AppliedCoupon: &order.AppliedCoupon{
			Code:           "MONGO1",
			DiscountType:   coupon.DiscountFixed,
			DiscountValue:  decimal.RequireFromString("4.99"),
			DiscountAmount: decimal.RequireFromString("4.99"),
		},
		Status:    order.StatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, o.FinalTotal.Equal(got.FinalTotal))
	require.NotNil(t, got.AppliedCoupon)
	assert.Equal(t, "MONGO1", got.AppliedCoupon.Code)
	require.Len(t, got.Items, 2)
	assert.JSONEq(t, `{"sku":"x","qty":1}`, string(got.Items[0]))
	assert.JSONEq(t, `{"ref":{"$oid":"abc"},"qty":{"$numberLong":"1"}}`, string(got.Items[1]))

	list, err := repo.ListByUser(ctx, "mongo@example.com")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusShipped))
	require.ErrorIs(t, repo.UpdateStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled), order.ErrStatusConflict)
	require.ErrorIs(t, repo.UpdateStatus(ctx, "missing", order.StatusPending, order.StatusShipped), order.ErrOrderNotFound)

	report, err := repo.SalesReport(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.TotalOrders, 1)
	assert.True(t, report.TotalRevenue.GreaterThanOrEqual(decimal.RequireFromString("15.01")))
	assert.NotEmpty(t, report.Monthly)
}
