package store

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const anonymousSession = "anonymous"

type SessionStore interface {
	// SessionID returns the persisted anonymous cart session id, generating one on first use.
	SessionID(ctx context.Context) (string, error)
	// Reset forgets the current id so the next call generates a fresh cart session.
	Reset(ctx context.Context) error
}

type sessionStoreImpl struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) SessionStore {
	return &sessionStoreImpl{
		db: db,
	}
}

func (s *sessionStoreImpl) SessionID(ctx context.Context) (string, error) {
	var session model.ClientSession
	err := s.db.WithContext(ctx).
		Where("name = ?", anonymousSession).
		First(&session).Error
	if err == nil {
		return session.SessionID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("read session: %w", err)
	}

	session = model.ClientSession{
		Name:      anonymousSession,
		SessionID: uuid.NewString(),
	}
	// a concurrent caller may have won the insert; re-read whatever is stored
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&session).Error
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	var stored model.ClientSession
	if err := s.db.WithContext(ctx).Where("name = ?", anonymousSession).First(&stored).Error; err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return stored.SessionID, nil
}

func (s *sessionStoreImpl) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("name = ?", anonymousSession).
		Delete(&model.ClientSession{}).Error
}
