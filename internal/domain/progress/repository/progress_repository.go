package repository

import (
	"context"
	"errors"
	"time"

	offerModel "loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/domain/progress/model"
	"loyalty_wallet/internal/pkg/errs"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository interface {
	FindOrCreate(ctx context.Context, customerID, offerID, businessID string) (*model.CustomerProgress, error)
	GetByCustomerAndOffer(ctx context.Context, customerID, offerID string) (*model.CustomerProgress, error)
	AddStamp(ctx context.Context, customerID, offerID string, count int) (*model.CustomerProgress, bool, error)
	ClaimReward(ctx context.Context, customerID, offerID, claimedBy, notes string) (*model.CustomerProgress, error)
	GetClaims(ctx context.Context, customerID, offerID string, offset, limit int) ([]model.RewardClaim, int64, error)
}

type progressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

// PostgreSQL 并发类错误码，统一折叠为 ErrProgressConflict 让上层重试
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
)

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// reload 事务提交后重读进度行，所有变更接口都只返回这个规范快照
func (r *progressRepository) reload(ctx context.Context, customerID, offerID string) (*model.CustomerProgress, error) {
	var progress model.CustomerProgress
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND offer_id = ?", customerID, offerID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// FindOrCreate 取出或创建进度行（幂等）
//
// 首次创建时从卡券拷贝 MaxStamps，并在同一个事务里给卡券的
// customers_count 加一，保证每个客户只被计数一次。
func (r *progressRepository) FindOrCreate(ctx context.Context, customerID, offerID, businessID string) (*model.CustomerProgress, error) {
	existing, err := r.GetByCustomerAndOffer(ctx, customerID, offerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer offerModel.Offer
		if err := tx.Where("id = ?", offerID).First(&offer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrOfferNotFound
			}
			return err
		}

		progress := &model.CustomerProgress{
			CustomerID: customerID,
			OfferID:    offerID,
			BusinessID: businessID,
			MaxStamps:  offer.StampsRequired,
		}
		if err := tx.Create(progress).Error; err != nil {
			return err
		}

		return tx.Model(&offerModel.Offer{}).
			Where("id = ?", offerID).
			UpdateColumn("customers_count", gorm.Expr("customers_count + 1")).Error
	})

	if err != nil {
		// 并发首扫：另一个请求先建了行，直接用它的
		if isUniqueViolation(err) {
			return r.reload(ctx, customerID, offerID)
		}
		if isConflict(err) {
			return nil, errs.ErrProgressConflict
		}
		return nil, err
	}

	return r.reload(ctx, customerID, offerID)
}

func (r *progressRepository) GetByCustomerAndOffer(ctx context.Context, customerID, offerID string) (*model.CustomerProgress, error) {
	var progress model.CustomerProgress
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND offer_id = ?", customerID, offerID).
		First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// AddStamp 发放积点
//
// 整个变更在一个 SELECT ... FOR UPDATE 事务里完成：封顶到 MaxStamps、
// 到顶翻转 IsCompleted。已完成未核销的行不再累积，原样返回（调用方由
// IsCompleted && !rewardEarned 判断"早已攒满"）。返回值第二项表示本次
// 变更是否攒满了一个周期。
func (r *progressRepository) AddStamp(ctx context.Context, customerID, offerID string, count int) (*model.CustomerProgress, bool, error) {
	if count < 1 {
		count = 1
	}

	rewardEarned := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var progress model.CustomerProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("customer_id = ? AND offer_id = ?", customerID, offerID).
			First(&progress).Error; err != nil {
			return err
		}

		if progress.IsCompleted {
			// 已攒满待核销，不再累积
			return nil
		}

		progress.CurrentStamps += count
		if progress.CurrentStamps >= progress.MaxStamps {
			progress.CurrentStamps = progress.MaxStamps
			progress.IsCompleted = true
			rewardEarned = true
		}
		now := time.Now()
		progress.LastScanAt = &now

		return tx.Model(&model.CustomerProgress{}).
			Where("id = ?", progress.ID).
			Updates(map[string]interface{}{
				"current_stamps": progress.CurrentStamps,
				"is_completed":   progress.IsCompleted,
				"last_scan_at":   progress.LastScanAt,
			}).Error
	})

	if err != nil {
		if isConflict(err) {
			return nil, false, errs.ErrProgressConflict
		}
		return nil, false, err
	}

	snapshot, err := r.reload(ctx, customerID, offerID)
	if err != nil {
		return nil, false, err
	}

	return snapshot, rewardEarned, nil
}

// ClaimReward 核销奖励并重置进度，开始下一个周期
//
// 要求行处于已完成状态，否则返回 ErrNotCompleted。核销计数加一、
// 积点清零、完成位复位、写入核销流水，全部在一个事务里。
func (r *progressRepository) ClaimReward(ctx context.Context, customerID, offerID, claimedBy, notes string) (*model.CustomerProgress, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var progress model.CustomerProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("customer_id = ? AND offer_id = ?", customerID, offerID).
			First(&progress).Error; err != nil {
			return err
		}

		if !progress.IsCompleted {
			return errs.ErrNotCompleted
		}

		cycle := progress.RewardsClaimed + 1

		if err := tx.Model(&model.CustomerProgress{}).
			Where("id = ?", progress.ID).
			Updates(map[string]interface{}{
				"rewards_claimed": cycle,
				"current_stamps":  0,
				"is_completed":    false,
			}).Error; err != nil {
			return err
		}

		claim := &model.RewardClaim{
			ProgressID: progress.ID,
			CustomerID: customerID,
			OfferID:    offerID,
			Cycle:      cycle,
			ClaimedBy:  claimedBy,
			Notes:      notes,
			ClaimedAt:  time.Now(),
		}
		return tx.Create(claim).Error
	})

	if err != nil {
		if isConflict(err) {
			return nil, errs.ErrProgressConflict
		}
		return nil, err
	}

	return r.reload(ctx, customerID, offerID)
}

func (r *progressRepository) GetClaims(ctx context.Context, customerID, offerID string, offset, limit int) ([]model.RewardClaim, int64, error) {
	var claims []model.RewardClaim
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RewardClaim{}).
		Where("customer_id = ?", customerID)
	if offerID != "" {
		query = query.Where("offer_id = ?", offerID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("claimed_at DESC").Offset(offset).Limit(limit).Find(&claims).Error; err != nil {
		return nil, 0, err
	}

	return claims, total, nil
}
