package service

import (
	"context"
	"fmt"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/model"
	"storefront-checkout/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CartService interface {
	Get(ctx context.Context, caller Caller) (*dto.CartResponse, error)
	Sync(ctx context.Context, caller Caller, req *dto.CartSyncRequest) (*dto.CartResponse, error)
	// ResolveOwner picks the cart a caller works on. A user with an empty cart adopts the
	// anonymous session cart they built before logging in.
	ResolveOwner(ctx context.Context, caller Caller) (string, error)
}

type cartServiceImpl struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	log         *zap.Logger
}

func NewCartService(
	db *gorm.DB,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	log *zap.Logger,
) CartService {
	return &cartServiceImpl{
		db:          db,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		log:         log,
	}
}

func (s *cartServiceImpl) ResolveOwner(ctx context.Context, caller Caller) (string, error) {
	owner := caller.Owner()
	if owner == "" {
		return "", ErrMissingIdentity
	}
	if caller.UserID == "" || caller.SessionID == "" {
		return owner, nil
	}

	userItems, err := s.cartRepo.Get(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("get user cart: %w", err)
	}
	if len(userItems) > 0 {
		return owner, nil
	}

	sessionItems, err := s.cartRepo.Get(ctx, caller.SessionOwner())
	if err != nil {
		return "", fmt.Errorf("get session cart: %w", err)
	}
	if len(sessionItems) == 0 {
		return owner, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.cartRepo.Replace(ctx, tx, owner, sessionItems); err != nil {
			return fmt.Errorf("adopt session cart: %w", err)
		}
		return s.cartRepo.Clear(ctx, tx, caller.SessionOwner())
	})
	if err != nil {
		return "", err
	}

	s.log.Info("session cart adopted by user",
		zap.String("user_id", caller.UserID),
		zap.Int("lines", len(sessionItems)))
	return owner, nil
}

func (s *cartServiceImpl) Get(ctx context.Context, caller Caller) (*dto.CartResponse, error) {
	owner, err := s.ResolveOwner(ctx, caller)
	if err != nil {
		return nil, err
	}

	items, err := s.cartRepo.Get(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	products, err := s.products(ctx, items)
	if err != nil {
		return nil, err
	}

	kept, changed := clampToStock(items, products)
	if changed {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.cartRepo.Replace(ctx, tx, owner, kept)
		})
		if err != nil {
			return nil, fmt.Errorf("store clamped cart: %w", err)
		}
		s.log.Info("cart clamped to stock",
			zap.String("owner", owner),
			zap.Int("lines", len(kept)))
	}
	return render(kept, products), nil
}

// Sync replaces the cart with the requested lines, re-priced and re-validated: unknown
// products are dropped, repeated lines merged and quantities clamped to stock unless the
// product takes backorders.
func (s *cartServiceImpl) Sync(ctx context.Context, caller Caller, req *dto.CartSyncRequest) (*dto.CartResponse, error) {
	owner, err := s.ResolveOwner(ctx, caller)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	found, err := s.productRepo.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	products := indexProducts(found)

	var items []*model.CartItem
	byLine := make(map[string]*model.CartItem)
	for _, in := range req.Items {
		if _, ok := products[in.ProductID]; !ok {
			continue
		}
		lineID := model.LineID(in.ProductID, in.VariantID)
		if existing, ok := byLine[lineID]; ok {
			existing.Quantity += in.Quantity
			continue
		}
		item := &model.CartItem{
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Quantity:  in.Quantity,
		}
		byLine[lineID] = item
		items = append(items, item)
	}

	kept, _ := clampToStock(items, products)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.cartRepo.Replace(ctx, tx, owner, kept)
	})
	if err != nil {
		return nil, fmt.Errorf("store cart: %w", err)
	}

	return render(kept, products), nil
}

func (s *cartServiceImpl) products(ctx context.Context, items []*model.CartItem) (map[string]*model.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	found, err := s.productRepo.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return indexProducts(found), nil
}

// clampToStock caps quantities at stock unless the product takes backorders, and drops
// lines that end up empty or whose product is gone. It reports whether anything changed.
func clampToStock(items []*model.CartItem, products map[string]*model.Product) ([]*model.CartItem, bool) {
	kept := make([]*model.CartItem, 0, len(items))
	changed := false
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			changed = true
			continue
		}
		if !p.AllowBackorder && item.Quantity > p.Stock {
			item.Quantity = p.Stock
			changed = true
		}
		if item.Quantity < 1 {
			changed = true
			continue
		}
		kept = append(kept, item)
	}
	return kept, changed
}

func indexProducts(products []*model.Product) map[string]*model.Product {
	m := make(map[string]*model.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

func render(items []*model.CartItem, products map[string]*model.Product) *dto.CartResponse {
	resp := &dto.CartResponse{
		Items: []dto.CartItem{},
		Totals: dto.CartTotals{
			Subtotal: decimal.Zero,
		},
	}

	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		resp.Items = append(resp.Items, dto.CartItem{
			ID:             model.LineID(item.ProductID, item.VariantID),
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Name:           p.Name,
			UnitPrice:      p.Price,
			Currency:       p.Currency,
			Quantity:       item.Quantity,
			MaxQuantity:    max(p.Stock, 0),
			AllowBackorder: p.AllowBackorder,
			ImageURL:       p.ImageURL,
		})
		if resp.Totals.Currency == "" {
			resp.Totals.Currency = p.Currency
		}
		resp.Totals.ItemCount += item.Quantity
		resp.Totals.Subtotal = resp.Totals.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return resp
}
