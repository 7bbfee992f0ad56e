package service

import (
	"errors"
	"fmt"
	"time"

	"loyalty_wallet/internal/domain/customer/model"
	"loyalty_wallet/internal/domain/customer/repository"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/internal/pkg/token"
)

type CustomerService interface {
	Signup(businessID, fullName, email string) (*model.Customer, error)
	GetCustomer(businessID, customerID string) (*model.Customer, error)
	GetCustomers(businessID string, page, limit int) ([]model.Customer, int64, error)
	ScanPayload(businessID, customerID, offerID string) (string, error)
}

type customerService struct {
	repo repository.CustomerRepository
}

func NewCustomerService(repo repository.CustomerRepository) CustomerService {
	return &customerService{repo: repo}
}

// Signup 创建客户档案
//
// 同一商户下邮箱唯一；重复注册返回已有档案的冲突错误而不是悄悄复用，
// 让前端能提示"已注册，请直接添加到钱包"。
func (s *customerService) Signup(businessID, fullName, email string) (*model.Customer, error) {
	if email != "" {
		existing, err := s.repo.GetByEmail(businessID, email)
		if err != nil && !errors.Is(err, errs.ErrCustomerNotFound) {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrCustomerExists, email)
		}
	}

	customer := &model.Customer{
		BusinessID: businessID,
		FullName:   fullName,
		Email:      email,
		Status:     model.StatusNormal,
	}

	if err := s.repo.Create(customer); err != nil {
		return nil, err
	}

	return customer, nil
}

func (s *customerService) GetCustomer(businessID, customerID string) (*model.Customer, error) {
	customer, err := s.repo.GetByID(customerID)
	if err != nil {
		return nil, err
	}

	// 租户隔离
	if customer.BusinessID != businessID {
		return nil, errs.ErrCustomerNotFound
	}

	return customer, nil
}

func (s *customerService) GetCustomers(businessID string, page, limit int) ([]model.Customer, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	offset := (page - 1) * limit
	return s.repo.GetList(businessID, offset, limit)
}

// ScanPayload 生成客户在某张卡券上的扫码负载（token:hash）
//
// 这串内容就是钱包卡面条码里编码的文本。
func (s *customerService) ScanPayload(businessID, customerID, offerID string) (string, error) {
	customer, err := s.GetCustomer(businessID, customerID)
	if err != nil {
		return "", err
	}

	tok := token.Encode(customer.ID, customer.BusinessID, time.Now())
	hash := token.OfferHash(offerID, customer.BusinessID)

	return tok + ":" + hash, nil
}
