package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-checkout/internal/dto"
	"storefront-checkout/internal/repository"

	"gorm.io/gorm"
)

type ContentService interface {
	GetPage(ctx context.Context, slug string) (*dto.PageResponse, error)
}

type contentServiceImpl struct {
	pageRepo repository.PageRepository
}

func NewContentService(pageRepo repository.PageRepository) ContentService {
	return &contentServiceImpl{pageRepo: pageRepo}
}

func (s *contentServiceImpl) GetPage(ctx context.Context, slug string) (*dto.PageResponse, error) {
	page, err := s.pageRepo.FindBySlug(ctx, slug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find page: %w", err)
	}

	return &dto.PageResponse{
		Slug:  page.Slug,
		Title: page.Title,
		Body:  page.Body,
	}, nil
}
