package handler

import (
	"errors"
	"net/http"

	"loyalty_wallet/internal/domain/offer/model"
	"loyalty_wallet/internal/domain/offer/service"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/response"
	"loyalty_wallet/pkg/utils"

	"github.com/gin-gonic/gin"
)

type OfferHandler struct {
	service service.OfferService
}

func NewOfferHandler(service service.OfferService) *OfferHandler {
	return &OfferHandler{service: service}
}

type CreateOfferInput struct {
	Title          string           `json:"title" binding:"required"`
	Description    string           `json:"description"`
	StampsRequired int              `json:"stampsRequired" binding:"required,min=1,max=50"`
	TierLevels     model.TierLevels `json:"tierLevels"`
	BarcodeFormat  string           `json:"barcodeFormat"`
}

// CreateOffer 创建集点卡券
// @Summary 创建集点卡券
// @Tags offers
// @Accept json
// @Produce json
// @Param body body CreateOfferInput true "卡券配置"
// @Success 200 {object} response.Response{data=model.Offer}
// @Security BearerAuth
// @Router /offers [post]
func (h *OfferHandler) CreateOffer(c *gin.Context) {
	var input CreateOfferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	offer, err := h.service.CreateOffer(businessID, input.Title, input.Description, input.StampsRequired, input.TierLevels, input.BarcodeFormat)
	if err != nil {
		response.Fail(c, response.ErrTierConfig, err.Error())
		return
	}

	response.Success(c, offer)
}

// GetOffer 查询单个卡券
// @Summary 查询单个卡券
// @Tags offers
// @Produce json
// @Param id path string true "卡券 ID"
// @Success 200 {object} response.Response{data=model.Offer}
// @Security BearerAuth
// @Router /offers/{id} [get]
func (h *OfferHandler) GetOffer(c *gin.Context) {
	id := c.Param("id")

	offer, err := h.service.GetOffer(id)
	if err != nil {
		if errors.Is(err, errs.ErrOfferNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "Offer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	// 不暴露别家商户的卡券
	if offer.BusinessID != c.GetString("businessID") {
		response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "Offer not found")
		return
	}

	response.Success(c, offer)
}

// GetOffers 查询卡券列表
// @Summary 查询卡券列表
// @Tags offers
// @Produce json
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Security BearerAuth
// @Router /offers [get]
func (h *OfferHandler) GetOffers(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	businessID := c.GetString("businessID")
	offers, total, err := h.service.GetOffers(businessID, p.Page, p.Limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	_, limit := p.GetPageOffset()
	response.Success(c, utils.PageResult{
		List:  offers,
		Total: total,
		Page:  p.Page,
		Limit: limit,
	})
}

type UpdateTiersInput struct {
	TierLevels model.TierLevels `json:"tierLevels" binding:"required"`
}

// UpdateTierLevels 更新等级阶梯
// @Summary 更新卡券等级阶梯
// @Tags offers
// @Accept json
// @Produce json
// @Param id path string true "卡券 ID"
// @Param body body UpdateTiersInput true "等级阶梯"
// @Success 200 {object} response.Response{data=model.Offer}
// @Security BearerAuth
// @Router /offers/{id}/tiers [put]
func (h *OfferHandler) UpdateTierLevels(c *gin.Context) {
	var input UpdateTiersInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	offer, err := h.service.UpdateTierLevels(c.GetString("businessID"), c.Param("id"), input.TierLevels)
	if err != nil {
		if errors.Is(err, errs.ErrOfferNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "Offer not found")
			return
		}
		response.Fail(c, response.ErrTierConfig, err.Error())
		return
	}

	response.Success(c, offer)
}

type UpdateStatusInput struct {
	Status int `json:"status" binding:"required"`
}

// UpdateStatus 更新卡券状态
// @Summary 更新卡券状态
// @Tags offers
// @Accept json
// @Produce json
// @Param id path string true "卡券 ID"
// @Param body body UpdateStatusInput true "目标状态"
// @Success 200 {object} response.Response
// @Security BearerAuth
// @Router /offers/{id}/status [put]
func (h *OfferHandler) UpdateStatus(c *gin.Context) {
	var input UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	if err := h.service.UpdateStatus(c.GetString("businessID"), c.Param("id"), input.Status); err != nil {
		if errors.Is(err, errs.ErrOfferNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "Offer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, "Offer status updated")
}
