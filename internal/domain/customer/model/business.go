package model

import (
	baseModel "loyalty_wallet/pkg/model"
)

// 商户后台账号角色
const (
	RoleStaff = 1 // 门店员工：扫码、核销
	RoleAdmin = 2 // 管理员：卡券与阶梯配置
)

// 商户状态
const (
	BusinessActive    = 1
	BusinessSuspended = 2
)

// Business 商户
//
// 注册/登录不在本服务范围内，这张表为卡券和客户提供归属，
// 扫码鉴权按它做租户隔离。
type Business struct {
	baseModel.BaseModel
	Name   string `gorm:"type:varchar(100);not null" json:"name"`
	Status int    `gorm:"default:1" json:"status"`
}
