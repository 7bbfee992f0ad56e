package handler

import (
	"errors"
	"net/http"

	"loyalty_wallet/internal/domain/customer/service"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/response"
	"loyalty_wallet/pkg/utils"

	"github.com/gin-gonic/gin"
)

type CustomerHandler struct {
	service service.CustomerService
}

func NewCustomerHandler(service service.CustomerService) *CustomerHandler {
	return &CustomerHandler{service: service}
}

type SignupInput struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"omitempty,email"`
}

// Signup 创建客户档案
// @Summary 创建客户档案
// @Tags customers
// @Accept json
// @Produce json
// @Param body body SignupInput true "客户信息"
// @Success 200 {object} response.Response{data=model.Customer}
// @Security BearerAuth
// @Router /customers [post]
func (h *CustomerHandler) Signup(c *gin.Context) {
	var input SignupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	customer, err := h.service.Signup(c.GetString("businessID"), input.FullName, input.Email)
	if err != nil {
		if errors.Is(err, errs.ErrCustomerExists) {
			response.Fail(c, response.ErrCustomerExists, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, customer)
}

// GetCustomer 查询客户档案
// @Summary 查询客户档案
// @Tags customers
// @Produce json
// @Param id path string true "客户 ID"
// @Success 200 {object} response.Response{data=model.Customer}
// @Security BearerAuth
// @Router /customers/{id} [get]
func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	customer, err := h.service.GetCustomer(c.GetString("businessID"), c.Param("id"))
	if err != nil {
		if errors.Is(err, errs.ErrCustomerNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "Customer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, customer)
}

// GetCustomers 查询客户列表
func (h *CustomerHandler) GetCustomers(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	customers, total, err := h.service.GetCustomers(c.GetString("businessID"), p.Page, p.Limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	_, limit := p.GetPageOffset()
	response.Success(c, utils.PageResult{
		List:  customers,
		Total: total,
		Page:  p.Page,
		Limit: limit,
	})
}

// GetScanPayload 获取客户某张卡券的扫码负载
// @Summary 获取客户扫码负载
// @Description 返回钱包卡面条码里编码的 token:hash 字符串
// @Tags customers
// @Produce json
// @Param id path string true "客户 ID"
// @Param offerId query string true "卡券 ID"
// @Success 200 {object} response.Response
// @Security BearerAuth
// @Router /customers/{id}/scan-payload [get]
func (h *CustomerHandler) GetScanPayload(c *gin.Context) {
	offerID := c.Query("offerId")
	if offerID == "" {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "offerId is required")
		return
	}

	payload, err := h.service.ScanPayload(c.GetString("businessID"), c.Param("id"), offerID)
	if err != nil {
		if errors.Is(err, errs.ErrCustomerNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "Customer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, gin.H{"payload": payload})
}
