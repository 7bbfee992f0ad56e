package model

import (
	"time"

	baseModel "loyalty_wallet/pkg/model"
)

// CustomerProgress 客户在一张卡券上的集点进度
//
// 每个 (customer, offer) 只有一行，整个集点周期（攒满→核销→清零）
// 都在这一行上滚动。不变式：
//   - 0 <= CurrentStamps <= MaxStamps
//   - IsCompleted 当且仅当 CurrentStamps >= MaxStamps
//
// MaxStamps 在建行时从卡券拷贝，之后卡券改配置不影响已开卡客户。
type CustomerProgress struct {
	baseModel.BaseModel
	CustomerID     string     `gorm:"type:uuid;uniqueIndex:idx_progress_customer_offer;not null" json:"customerId"`
	OfferID        string     `gorm:"type:uuid;uniqueIndex:idx_progress_customer_offer;not null" json:"offerId"`
	BusinessID     string     `gorm:"type:uuid;index;not null" json:"businessId"`
	CurrentStamps  int        `gorm:"not null;default:0" json:"currentStamps"`
	MaxStamps      int        `gorm:"not null" json:"maxStamps"`
	IsCompleted    bool       `gorm:"not null;default:false" json:"isCompleted"`
	RewardsClaimed int        `gorm:"not null;default:0" json:"rewardsClaimed"`
	LastScanAt     *time.Time `json:"lastScanAt,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// TableName 避免默认复数化出 customer_progresses
func (CustomerProgress) TableName() string {
	return "customer_progress"
}

// RewardClaim 核销流水
//
// RewardsClaimed 计数以进度行为准，这张表只做审计。
type RewardClaim struct {
	baseModel.BaseModel
	ProgressID string    `gorm:"type:uuid;index;not null" json:"progressId"`
	CustomerID string    `gorm:"type:uuid;index;not null" json:"customerId"`
	OfferID    string    `gorm:"type:uuid;index;not null" json:"offerId"`
	Cycle      int       `gorm:"not null" json:"cycle"` // 第几个集点周期
	ClaimedBy  string    `gorm:"type:varchar(100)" json:"claimedBy"`
	Notes      string    `gorm:"type:varchar(500)" json:"notes"`
	ClaimedAt  time.Time `gorm:"not null" json:"claimedAt"`
}
