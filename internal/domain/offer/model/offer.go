package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	baseModel "loyalty_wallet/pkg/model"
)

// 卡券状态
const (
	StatusActive   = 1 // 进行中
	StatusPaused   = 2 // 暂停发放
	StatusArchived = 3 // 已归档
)

// 条码符号偏好
const (
	BarcodePDF417 = "pdf417"
	BarcodeQR     = "qr"
)

// TierUnbounded 最高等级的无上限标记
const TierUnbounded = -1

// TierLevel 等级阶梯中的一级
//
// MinRewards/MaxRewards 按累计核销次数划定区间，区间连续不重叠，
// 只有最后一级允许 MaxRewards = TierUnbounded。
type TierLevel struct {
	Name        string  `json:"name"`
	MinRewards  int     `json:"minRewards"`
	MaxRewards  int     `json:"maxRewards"`
	Color       string  `json:"color"`
	Icon        string  `json:"icon"`
	RewardBoost float64 `json:"rewardBoost"`
}

// TierLevels jsonb 列类型
type TierLevels []TierLevel

func (t TierLevels) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *TierLevels) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported source type for TierLevels")
	}

	return json.Unmarshal(data, t)
}

// StringList jsonb 字符串数组列（门店范围等）
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported source type for StringList")
	}

	return json.Unmarshal(data, s)
}

// Offer 集点卡券定义
type Offer struct {
	baseModel.BaseModel
	BusinessID     string     `gorm:"type:uuid;index;not null" json:"businessId"`
	Title          string     `gorm:"type:varchar(100);not null" json:"title"`
	Description    string     `gorm:"type:varchar(500)" json:"description"`
	StampsRequired int        `gorm:"not null;default:10" json:"stampsRequired"`
	TierLevels     TierLevels `gorm:"type:jsonb" json:"tierLevels"`
	BranchIDs      StringList `gorm:"type:jsonb" json:"branchIds"` // 为空表示全部门店可用
	BarcodeFormat  string     `gorm:"type:varchar(10);default:pdf417" json:"barcodeFormat"`
	Status         int        `gorm:"default:1" json:"status"`
	CustomersCount int        `gorm:"default:0" json:"customersCount"`
}

// IsActive 卡券是否可继续集点
func (o *Offer) IsActive() bool {
	return o.Status == StatusActive
}
