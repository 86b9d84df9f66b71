package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// TemplateRepository resolves the active message template of a (type, channel) pair.
// A missing template is reported as (nil, nil).
type TemplateRepository interface {
	GetActive(ctx context.Context, templateType domain.NotificationType, channel domain.Channel) (*domain.MessageTemplate, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetActive(ctx context.Context, templateType domain.NotificationType, channel domain.Channel) (*domain.MessageTemplate, error) {
	var model MessageTemplateModel
	err := r.db.WithContext(ctx).
		Where("template_type = ? AND channel = ? AND is_active = ?", templateType, channel, true).
		Order("updated_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

// CachedTemplateRepo keeps template lookups, including misses, in memory for a TTL.
type CachedTemplateRepo struct {
	next  TemplateRepository
	cache *cache.Cache
}

func NewCachedTemplateRepo(next TemplateRepository, ttl time.Duration) *CachedTemplateRepo {
	return &CachedTemplateRepo{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (r *CachedTemplateRepo) GetActive(ctx context.Context, templateType domain.NotificationType, channel domain.Channel) (*domain.MessageTemplate, error) {
	key := string(templateType) + ":" + string(channel)
	if cached, ok := r.cache.Get(key); ok {
		tmpl, _ := cached.(*domain.MessageTemplate)
		return tmpl, nil
	}

	tmpl, err := r.next.GetActive(ctx, templateType, channel)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, tmpl)
	return tmpl, nil
}

// Invalidate drops every cached lookup.
func (r *CachedTemplateRepo) Invalidate() {
	r.cache.Flush()
}
