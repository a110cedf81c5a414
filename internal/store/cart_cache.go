package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartCache is the local durable mirror of cart lines, keyed by cart key
// ("session:<id>" or "user:<id>"). It only checks structural bounds; pricing and stock are
// the backend's business, so lines are stored as the server last sent them even when stock
// has since dropped below the quantity.
type CartCache interface {
	Get(ctx context.Context, key string) ([]model.CartLine, error)
	Set(ctx context.Context, key string, lines []model.CartLine) error
	Delete(ctx context.Context, key string) error
}

var (
	ErrCacheMiss   = errors.New("cache miss")
	ErrInvalidLine = errors.New("invalid cart line")
)

func validateLines(lines []model.CartLine) error {
	for _, l := range lines {
		if l.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidLine)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %s: quantity %d", ErrInvalidLine, l.ID, l.Quantity)
		}
	}
	return nil
}

type sqlCartCache struct {
	db *gorm.DB
}

func NewSQLCartCache(db *gorm.DB) CartCache {
	return &sqlCartCache{
		db: db,
	}
}

func (c *sqlCartCache) Get(ctx context.Context, key string) ([]model.CartLine, error) {
	var entry model.CartCacheEntry
	err := c.db.WithContext(ctx).
		Where("cache_key = ?", key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cart cache: %w", err)
	}

	var lines []model.CartLine
	if err := json.Unmarshal([]byte(entry.Lines), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return lines, nil
}

func (c *sqlCartCache) Set(ctx context.Context, key string, lines []model.CartLine) error {
	if err := validateLines(lines); err != nil {
		return err
	}
	if lines == nil {
		lines = []model.CartLine{}
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"lines":      string(data),
			"updated_at": time.Now(),
		}),
	}).Create(&model.CartCacheEntry{
		CacheKey: key,
		Lines:    string(data),
	}).Error
}

func (c *sqlCartCache) Delete(ctx context.Context, key string) error {
	return c.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Delete(&model.CartCacheEntry{}).Error
}
