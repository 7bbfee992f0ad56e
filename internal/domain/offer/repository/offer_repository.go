package repository

import (
	"errors"

	"loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/pkg/errs"

	"gorm.io/gorm"
)

type OfferRepository interface {
	Create(offer *model.Offer) error
	GetByID(id string) (*model.Offer, error)
	GetList(businessID string, offset, limit int) ([]model.Offer, int64, error)
	ListActive(businessID string) ([]model.Offer, error)
	UpdateTierLevels(id string, tiers model.TierLevels) error
	UpdateStatus(id string, status int) error
}

type offerRepository struct {
	db *gorm.DB
}

func NewOfferRepository(db *gorm.DB) OfferRepository {
	return &offerRepository{db: db}
}

func (r *offerRepository) Create(offer *model.Offer) error {
	return r.db.Create(offer).Error
}

func (r *offerRepository) GetByID(id string) (*model.Offer, error) {
	var offer model.Offer
	if err := r.db.Where("id = ?", id).First(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrOfferNotFound
		}
		return nil, err
	}
	return &offer, nil
}

func (r *offerRepository) GetList(businessID string, offset, limit int) ([]model.Offer, int64, error) {
	var offers []model.Offer
	var total int64

	query := r.db.Model(&model.Offer{}).Where("business_id = ?", businessID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&offers).Error; err != nil {
		return nil, 0, err
	}

	return offers, total, nil
}

// ListActive 扫码匹配用：某商户全部进行中的卡券
func (r *offerRepository) ListActive(businessID string) ([]model.Offer, error) {
	var offers []model.Offer
	err := r.db.Where("business_id = ? AND status = ?", businessID, model.StatusActive).
		Order("created_at ASC").
		Find(&offers).Error
	return offers, err
}

func (r *offerRepository) UpdateTierLevels(id string, tiers model.TierLevels) error {
	result := r.db.Model(&model.Offer{}).
		Where("id = ?", id).
		Update("tier_levels", tiers)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrOfferNotFound
	}
	return nil
}

func (r *offerRepository) UpdateStatus(id string, status int) error {
	result := r.db.Model(&model.Offer{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.ErrOfferNotFound
	}
	return nil
}
