package model

import (
	baseModel "loyalty_wallet/pkg/model"
)

// 客户状态
const (
	StatusNormal  = 1 // 正常
	StatusDeleted = 3 // 已注销
)

// Customer 商户的会员客户
//
// 扫码身份令牌编码的就是 (Customer.ID, Customer.BusinessID)。
type Customer struct {
	baseModel.BaseModel
	BusinessID string `gorm:"type:uuid;index;not null" json:"businessId"`
	FullName   string `gorm:"type:varchar(100);not null" json:"fullName"`
	Email      string `gorm:"type:varchar(255);index" json:"email"`
	Status     int    `gorm:"default:1" json:"status"`
}
