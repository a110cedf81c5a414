// Package cart keeps the local cart mirror consistent with the storefront's authoritative
// cart. The Synchronizer is the only writer of cart state; everything else reads snapshots.
package cart

import (
	"context"
	"errors"
	"sync"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrLineNotFound = errors.New("cart line not found")

// Backend is the part of the storefront API the synchronizer talks to.
type Backend interface {
	SetCredentials(creds client.Credentials)
	GetCart(ctx context.Context) (*dto.CartResponse, error)
	SyncCart(ctx context.Context, req *dto.CartSyncRequest) (*dto.CartResponse, error)
}

// Identity addresses a cart. SessionID is always set; UserID and Token only after login.
type Identity struct {
	SessionID string
	UserID    string
	Token     string
}

// CacheKey is "user:<id>" once authenticated, "session:<sid>" otherwise.
func (i Identity) CacheKey() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	return "session:" + i.SessionID
}

type Synchronizer struct {
	backend Backend
	cache   store.CartCache
	log     *zap.Logger
	metrics *metrics.Metrics
	sfg     singleflight.Group

	// held across local update and backend round-trip so responses apply in issue order
	mutate sync.Mutex

	mu       sync.RWMutex
	identity Identity
	snapshot model.CartSnapshot
	stale    bool
}

func NewSynchronizer(backend Backend, cache store.CartCache, log *zap.Logger, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		backend:  backend,
		cache:    cache,
		log:      log,
		metrics:  m,
		snapshot: model.NewSnapshot(nil),
	}
}

// SetIdentity switches the cart being mirrored. The in-memory snapshot is dropped; call
// Load to fetch the cart for the new identity.
func (s *Synchronizer) SetIdentity(id Identity) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	s.backend.SetCredentials(client.Credentials{
		SessionID: id.SessionID,
		Token:     id.Token,
	})

	s.mu.Lock()
	s.identity = id
	s.snapshot = model.NewSnapshot(nil)
	s.stale = true
	s.mu.Unlock()
}

func (s *Synchronizer) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Snapshot returns a copy of the current cart.
func (s *Synchronizer) Snapshot() model.CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Stale reports whether the last backend round-trip failed and the snapshot is local only.
func (s *Synchronizer) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Load fetches the authoritative cart. When the backend cannot be reached it falls back to
// the last persisted lines (empty when none) and marks the synchronizer stale; a network
// failure is never returned. Concurrent loads of the same cart share one request.
func (s *Synchronizer) Load(ctx context.Context) (model.CartSnapshot, error) {
	key := s.Identity().CacheKey()

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		s.mutate.Lock()
		defer s.mutate.Unlock()

		resp, err := s.backend.GetCart(ctx)
		if err == nil {
			lines := linesFromResponse(resp)
			s.persist(ctx, key, lines)
			s.replace(lines, false)
			return s.Snapshot(), nil
		}

		s.log.Warn("cart load failed, using local copy",
			zap.String("cart", key),
			zap.Error(err))
		s.metrics.CartSyncFailure("load")

		lines, cacheErr := s.cache.Get(ctx, key)
		switch {
		case errors.Is(cacheErr, store.ErrCacheMiss):
			s.replace(nil, true)
		case cacheErr != nil:
			// keep whatever is in memory
			s.mu.Lock()
			s.stale = true
			s.mu.Unlock()
			return s.Snapshot(), cacheErr
		default:
			s.replace(lines, true)
		}
		return s.Snapshot(), nil
	})

	snap, _ := v.(model.CartSnapshot)
	return snap, err
}

// Sync makes lines the local cart and pushes them to the backend. The backend's answer,
// not the request, becomes the snapshot. On failure the local lines are kept.
func (s *Synchronizer) Sync(ctx context.Context, lines []model.CartLine) (model.CartSnapshot, error) {
	for _, l := range lines {
		if err := l.ValidateQuantity(l.Quantity); err != nil {
			return s.Snapshot(), err
		}
	}

	s.mutate.Lock()
	defer s.mutate.Unlock()

	s.applyAndPush(ctx, lines)
	return s.Snapshot(), nil
}

// UpdateQuantity sets the quantity of one line. An out of range quantity is rejected with a
// *model.ValidationError and leaves the cart untouched.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, lineID string, quantity int) (model.CartSnapshot, error) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	current := s.Snapshot()
	line, ok := current.Line(lineID)
	if !ok {
		return current, ErrLineNotFound
	}
	if err := line.ValidateQuantity(quantity); err != nil {
		return current, err
	}

	lines := current.Lines
	for i := range lines {
		if lines[i].ID == lineID {
			lines[i].Quantity = quantity
		}
	}

	s.applyAndPush(ctx, lines)
	return s.Snapshot(), nil
}

// Add puts quantity units of a product into the cart, merging with an existing line. A new
// line is provisional until the backend fills in its price, name and stock.
func (s *Synchronizer) Add(ctx context.Context, productID, variantID string, quantity int) (model.CartSnapshot, error) {
	if quantity < 1 {
		return s.Snapshot(), &model.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	s.mutate.Lock()
	defer s.mutate.Unlock()

	current := s.Snapshot()
	id := model.LineID(productID, variantID)
	lines := current.Lines

	if line, ok := current.Line(id); ok {
		if err := line.ValidateQuantity(line.Quantity + quantity); err != nil {
			return current, err
		}
		for i := range lines {
			if lines[i].ID == id {
				lines[i].Quantity += quantity
			}
		}
	} else {
		lines = append(lines, model.CartLine{
			ID:        id,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			Stock:     quantity,
		})
	}

	s.applyAndPush(ctx, lines)
	return s.Snapshot(), nil
}

func (s *Synchronizer) Remove(ctx context.Context, lineID string) (model.CartSnapshot, error) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	current := s.Snapshot()
	if _, ok := current.Line(lineID); !ok {
		return current, ErrLineNotFound
	}

	lines := make([]model.CartLine, 0, len(current.Lines)-1)
	for _, l := range current.Lines {
		if l.ID != lineID {
			lines = append(lines, l)
		}
	}

	s.applyAndPush(ctx, lines)
	return s.Snapshot(), nil
}

func (s *Synchronizer) Clear(ctx context.Context) (model.CartSnapshot, error) {
	s.mutate.Lock()
	defer s.mutate.Unlock()

	s.applyAndPush(ctx, nil)
	return s.Snapshot(), nil
}

// applyAndPush must be called with mutate held.
func (s *Synchronizer) applyAndPush(ctx context.Context, lines []model.CartLine) {
	key := s.Identity().CacheKey()

	s.persist(ctx, key, lines)
	s.replace(lines, s.Stale())

	resp, err := s.backend.SyncCart(ctx, toSyncRequest(lines))
	if err != nil {
		s.log.Warn("cart sync failed, keeping local changes",
			zap.String("cart", key),
			zap.Int("lines", len(lines)),
			zap.Error(err))
		s.metrics.CartSyncFailure("sync")

		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		return
	}

	serverLines := linesFromResponse(resp)
	s.persist(ctx, key, serverLines)
	s.replace(serverLines, false)
}

func (s *Synchronizer) replace(lines []model.CartLine, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = model.NewSnapshot(lines)
	s.stale = stale
}

// persist logs and continues: a cache write failure must not fail the cart operation.
func (s *Synchronizer) persist(ctx context.Context, key string, lines []model.CartLine) {
	if err := s.cache.Set(ctx, key, lines); err != nil {
		s.log.Error("cart cache write failed",
			zap.String("cart", key),
			zap.Error(err))
	}
}

func toSyncRequest(lines []model.CartLine) *dto.CartSyncRequest {
	items := make([]dto.SyncItem, len(lines))
	for i, l := range lines {
		items[i] = dto.SyncItem{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
		}
	}
	return &dto.CartSyncRequest{Items: items}
}

func linesFromResponse(resp *dto.CartResponse) []model.CartLine {
	lines := make([]model.CartLine, len(resp.Items))
	for i, item := range resp.Items {
		id := item.ID
		if id == "" {
			id = model.LineID(item.ProductID, item.VariantID)
		}
		currency := item.Currency
		if currency == "" {
			currency = resp.Totals.Currency
		}
		lines[i] = model.CartLine{
			ID:             id,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           item.Name,
			UnitPrice:      item.UnitPrice,
			Currency:       currency,
			Quantity:       item.Quantity,
			Stock:          item.MaxQuantity,
			AllowBackorder: item.AllowBackorder,
			ImageURL:       item.ImageURL,
		}
	}
	return lines
}
