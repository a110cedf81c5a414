package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type product struct {
	price     decimal.Decimal
	stock     int
	backorder bool
}

// fakeBackend prices and clamps like the storefront does, and can be switched offline.
type fakeBackend struct {
	m        sync.RWMutex
	products map[string]product
	cart     []dto.SyncItem
	offline  bool
	creds    client.Credentials
	gate     chan struct{}

	getCalls  atomic.Int32
	syncCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: map[string]product{
			"mug":   {price: decimal.RequireFromString("12.50"), stock: 5},
			"shirt": {price: decimal.RequireFromString("20.00"), stock: 2},
			"print": {price: decimal.RequireFromString("7.00"), stock: 0, backorder: true},
		},
	}
}

func (f *fakeBackend) SetCredentials(creds client.Credentials) {
	f.m.Lock()
	defer f.m.Unlock()
	f.creds = creds
}

func (f *fakeBackend) setOffline(v bool) {
	f.m.Lock()
	defer f.m.Unlock()
	f.offline = v
}

func (f *fakeBackend) setPrice(id string, price string) {
	f.m.Lock()
	defer f.m.Unlock()
	p := f.products[id]
	p.price = decimal.RequireFromString(price)
	f.products[id] = p
}

func (f *fakeBackend) setStock(id string, stock int) {
	f.m.Lock()
	defer f.m.Unlock()
	p := f.products[id]
	p.stock = stock
	f.products[id] = p
}

func (f *fakeBackend) GetCart(context.Context) (*dto.CartResponse, error) {
	f.getCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.m.RLock()
	defer f.m.RUnlock()
	if f.offline {
		return nil, errors.New("connection refused")
	}
	return f.render(), nil
}

func (f *fakeBackend) SyncCart(_ context.Context, req *dto.CartSyncRequest) (*dto.CartResponse, error) {
	f.syncCalls.Add(1)
	f.m.Lock()
	defer f.m.Unlock()
	if f.offline {
		return nil, errors.New("connection refused")
	}

	f.cart = nil
	for _, item := range req.Items {
		p, ok := f.products[item.ProductID]
		if !ok {
			continue
		}
		qty := item.Quantity
		if !p.backorder && qty > p.stock {
			qty = p.stock
		}
		if qty < 1 {
			continue
		}
		f.cart = append(f.cart, dto.SyncItem{ProductID: item.ProductID, VariantID: item.VariantID, Quantity: qty})
	}
	return f.render(), nil
}

func (f *fakeBackend) render() *dto.CartResponse {
	resp := &dto.CartResponse{Items: []dto.CartItem{}, Totals: dto.CartTotals{Currency: "USD", Subtotal: decimal.Zero}}
	for _, item := range f.cart {
		p := f.products[item.ProductID]
		resp.Items = append(resp.Items, dto.CartItem{
			ID:             model.LineID(item.ProductID, item.VariantID),
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.ProductID,
			UnitPrice:      p.price,
			Currency:       "USD",
			Quantity:       item.Quantity,
			MaxQuantity:    p.stock,
			AllowBackorder: p.backorder,
		})
		resp.Totals.ItemCount += item.Quantity
		resp.Totals.Subtotal = resp.Totals.Subtotal.Add(p.price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return resp
}

type fixture struct {
	backend *fakeBackend
	cache   store.CartCache
	metrics *metrics.Metrics
	sync    *Synchronizer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	f := &fixture{
		backend: newFakeBackend(),
		cache:   store.NewSQLCartCache(db),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.sync = NewSynchronizer(f.backend, f.cache, zap.NewNop(), f.metrics)
	f.sync.SetIdentity(Identity{SessionID: "sess-1"})
	return f
}

// seed puts a mug (stock 5) and a shirt (stock 2) into the cart.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.sync.Add(ctx, "mug", "", 1)
	require.NoError(t, err)
	_, err = f.sync.Add(ctx, "shirt", "", 1)
	require.NoError(t, err)
	require.False(t, f.sync.Stale())
}

func TestIdentity_CacheKey(t *testing.T) {
	assert.Equal(t, "session:abc", Identity{SessionID: "abc"}.CacheKey())
	assert.Equal(t, "user:42", Identity{SessionID: "abc", UserID: "42", Token: "t"}.CacheKey())
}

func TestSynchronizer_LoadPersists(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	snap, err := f.sync.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 2)
	assert.Equal(t, 2, snap.ItemCount)
	assert.True(t, decimal.RequireFromString("32.50").Equal(snap.Subtotal))

	cached, err := f.cache.Get(ctx, "session:sess-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestSynchronizer_LoadFallsBackToCache(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	f.backend.setOffline(true)
	snap, err := f.sync.Load(ctx)
	require.NoError(t, err)
	assert.True(t, f.sync.Stale())
	assert.Len(t, snap.Lines, 2)

	f.backend.setOffline(false)
	_, err = f.sync.Load(ctx)
	require.NoError(t, err)
	assert.False(t, f.sync.Stale())
}

func TestSynchronizer_LoadPersistsLinesAboveStock(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	// someone else bought the last shirts; the stored cart still holds one
	f.backend.setStock("shirt", 0)
	snap, err := f.sync.Load(ctx)
	require.NoError(t, err)
	shirt, ok := snap.Line("shirt")
	require.True(t, ok)
	assert.Equal(t, 0, shirt.Stock)

	cached, err := f.cache.Get(ctx, "session:sess-1")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "shirt", cached[1].ID)
	assert.Equal(t, 0, cached[1].Stock)

	f.backend.setOffline(true)
	snap, err = f.sync.Load(ctx)
	require.NoError(t, err)
	assert.True(t, f.sync.Stale())
	shirt, ok = snap.Line("shirt")
	require.True(t, ok)
	assert.Equal(t, 0, shirt.Stock)
}

func TestSynchronizer_LoadOfflineWithoutCacheIsEmpty(t *testing.T) {
	f := setup(t)
	f.backend.setOffline(true)

	snap, err := f.sync.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
	assert.True(t, snap.Subtotal.IsZero())
	assert.True(t, f.sync.Stale())
}

func TestSynchronizer_ConcurrentLoadsShareOneRequest(t *testing.T) {
	f := setup(t)
	f.backend.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.Load(context.Background())
			assert.NoError(t, err)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(f.backend.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.backend.getCalls.Load())
}

func TestSynchronizer_QuantityBounds(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		quantity int
		valid    bool
	}{
		{"zero", 0, false},
		{"negative", -3, false},
		{"one", 1, true},
		{"at stock", 5, true},
		{"above stock", 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.sync.Snapshot()
			syncs := f.backend.syncCalls.Load()

			snap, err := f.sync.UpdateQuantity(ctx, "mug", tt.quantity)
			if tt.valid {
				require.NoError(t, err)
				line, ok := snap.Line("mug")
				require.True(t, ok)
				assert.Equal(t, tt.quantity, line.Quantity)
				return
			}

			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "quantity", verr.Field)
			assert.Equal(t, before, f.sync.Snapshot())
			assert.Equal(t, syncs, f.backend.syncCalls.Load(), "rejected mutation must not reach the backend")
		})
	}
}

func TestSynchronizer_BackorderIgnoresStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.sync.Add(ctx, "print", "", 1)
	require.NoError(t, err)

	snap, err := f.sync.UpdateQuantity(ctx, "print", 40)
	require.NoError(t, err)
	line, _ := snap.Line("print")
	assert.Equal(t, 40, line.Quantity)
}

func TestSynchronizer_ServerResponseWins(t *testing.T) {
	f := setup(t)
	f.seed(t)
	f.backend.setPrice("mug", "15.00")

	snap, err := f.sync.UpdateQuantity(context.Background(), "mug", 2)
	require.NoError(t, err)

	line, _ := snap.Line("mug")
	assert.True(t, decimal.RequireFromString("15.00").Equal(line.UnitPrice))
	assert.True(t, decimal.RequireFromString("50.00").Equal(snap.Subtotal))
}

func TestSynchronizer_SyncFailureKeepsLocalState(t *testing.T) {
	f := setup(t)
	f.seed(t)
	f.backend.setOffline(true)
	ctx := context.Background()

	snap, err := f.sync.UpdateQuantity(ctx, "mug", 3)
	require.NoError(t, err)
	line, _ := snap.Line("mug")
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, f.sync.Stale())

	cached, err := f.cache.Get(ctx, "session:sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cached[0].Quantity)
}

func TestSynchronizer_SyncLoadRoundTrip(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	synced, err := f.sync.Sync(ctx, f.sync.Snapshot().Lines)
	require.NoError(t, err)

	loaded, err := f.sync.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, synced, loaded)

	again, err := f.sync.Sync(ctx, loaded.Lines)
	require.NoError(t, err)
	assert.Equal(t, loaded, again)
}

func TestSynchronizer_SyncRejectsInvalidLines(t *testing.T) {
	f := setup(t)
	f.seed(t)
	before := f.sync.Snapshot()

	lines := before.Clone().Lines
	lines[0].Quantity = 0
	_, err := f.sync.Sync(context.Background(), lines)

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, before, f.sync.Snapshot())
}

func TestSynchronizer_AddMergesLines(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	snap, err := f.sync.Add(ctx, "mug", "", 2)
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 2)
	line, _ := snap.Line("mug")
	assert.Equal(t, 3, line.Quantity)

	_, err = f.sync.Add(ctx, "shirt", "", 5)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.sync.Add(ctx, "mug", "", 0)
	assert.ErrorAs(t, err, &verr)
}

func TestSynchronizer_AddUnknownProductDroppedByServer(t *testing.T) {
	f := setup(t)
	snap, err := f.sync.Add(context.Background(), "ghost", "", 1)
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestSynchronizer_RemoveAndClear(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()

	_, err := f.sync.Remove(ctx, "nope")
	assert.ErrorIs(t, err, ErrLineNotFound)

	snap, err := f.sync.Remove(ctx, "mug")
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 1)

	snap, err = f.sync.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())

	_, err = f.sync.UpdateQuantity(ctx, "shirt", 1)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestSynchronizer_SnapshotIsACopy(t *testing.T) {
	f := setup(t)
	f.seed(t)

	snap := f.sync.Snapshot()
	snap.Lines[0].Quantity = 99

	line, _ := f.sync.Snapshot().Line(snap.Lines[0].ID)
	assert.NotEqual(t, 99, line.Quantity)
}

func TestSynchronizer_SetIdentity(t *testing.T) {
	f := setup(t)
	f.seed(t)

	f.sync.SetIdentity(Identity{SessionID: "sess-1", UserID: "7", Token: "jwt"})
	assert.True(t, f.sync.Snapshot().IsEmpty())
	assert.Equal(t, "user:7", f.sync.Identity().CacheKey())
	assert.Equal(t, client.Credentials{SessionID: "sess-1", Token: "jwt"}, f.backend.creds)
}
