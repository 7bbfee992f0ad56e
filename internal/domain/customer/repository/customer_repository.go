package repository

import (
	"errors"

	"loyalty_wallet/internal/domain/customer/model"
	"loyalty_wallet/internal/pkg/errs"

	"gorm.io/gorm"
)

type CustomerRepository interface {
	Create(customer *model.Customer) error
	GetByID(id string) (*model.Customer, error)
	GetByEmail(businessID, email string) (*model.Customer, error)
	GetList(businessID string, offset, limit int) ([]model.Customer, int64, error)
	GetBusiness(id string) (*model.Business, error)
}

type customerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(customer *model.Customer) error {
	return r.db.Create(customer).Error
}

func (r *customerRepository) GetByID(id string) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.Where("id = ?", id).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetByEmail(businessID, email string) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.Where("business_id = ? AND email = ?", businessID, email).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCustomerNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) GetList(businessID string, offset, limit int) ([]model.Customer, int64, error) {
	var customers []model.Customer
	var total int64

	query := r.db.Model(&model.Customer{}).Where("business_id = ?", businessID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&customers).Error; err != nil {
		return nil, 0, err
	}

	return customers, total, nil
}

func (r *customerRepository) GetBusiness(id string) (*model.Business, error) {
	var business model.Business
	if err := r.db.Where("id = ?", id).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}
