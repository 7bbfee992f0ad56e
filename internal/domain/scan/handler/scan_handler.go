package handler

import (
	"errors"
	"net/http"
	"strconv"

	"loyalty_wallet/internal/domain/scan/service"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	service service.ScanService
}

func NewScanHandler(service service.ScanService) *ScanHandler {
	return &ScanHandler{service: service}
}

// ScanProgress 扫码发积点
// @Summary 扫码发积点
// @Description 解析二维码负载，给对应客户在对应卡券上累积一个积点，并异步回写钱包卡
// @Tags scan
// @Produce json
// @Param payload path string true "身份令牌（或 token:hash 合并格式）"
// @Param hash path string false "卡券摘要"
// @Success 200 {object} response.Response{data=service.ScanOutcome}
// @Security BearerAuth
// @Router /scan/progress/{payload}/{hash} [post]
func (h *ScanHandler) ScanProgress(c *gin.Context) {
	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	outcome, err := h.service.Progress(c.Request.Context(), businessID, c.Param("payload"), c.Param("hash"))
	if err != nil {
		h.mapScanError(c, err)
		return
	}

	response.Success(c, outcome)
}

// VerifyScan 只读校验二维码
// @Summary 校验二维码
// @Description 解析负载并返回客户、卡券与当前进度，不做任何变更
// @Tags scan
// @Produce json
// @Param payload path string true "身份令牌（或 token:hash 合并格式）"
// @Param hash path string false "卡券摘要"
// @Success 200 {object} response.Response{data=service.VerifyOutcome}
// @Security BearerAuth
// @Router /scan/verify/{payload}/{hash} [get]
func (h *ScanHandler) VerifyScan(c *gin.Context) {
	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	outcome, err := h.service.Verify(c.Request.Context(), businessID, c.Param("payload"), c.Param("hash"))
	if err != nil {
		h.mapScanError(c, err)
		return
	}

	response.Success(c, outcome)
}

// ClaimPrize 核销已攒满的奖励
// @Summary 核销奖励
// @Description 进度攒满后由店员扫码核销，清零进度并累加核销计数
// @Tags scan
// @Produce json
// @Param payload path string true "身份令牌（或 token:hash 合并格式）"
// @Param hash path string false "卡券摘要"
// @Success 200 {object} response.Response{data=service.PrizeOutcome}
// @Security BearerAuth
// @Router /scan/prize/{payload}/{hash} [post]
func (h *ScanHandler) ClaimPrize(c *gin.Context) {
	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	outcome, err := h.service.Prize(c.Request.Context(), businessID, c.GetString("userID"), c.Param("payload"), c.Param("hash"))
	if err != nil {
		h.mapScanError(c, err)
		return
	}

	response.Success(c, outcome)
}

// ListClaims 查询客户的核销历史
// @Summary 查询核销历史
// @Tags scan
// @Produce json
// @Param customerId query string true "客户 ID"
// @Param offerId query string false "卡券 ID，不传则返回全部卡券"
// @Param page query int false "页码，默认 1"
// @Param limit query int false "每页条数，默认 20"
// @Success 200 {object} response.Response
// @Security BearerAuth
// @Router /scan/claims [get]
func (h *ScanHandler) ListClaims(c *gin.Context) {
	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	customerID := c.Query("customerId")
	if customerID == "" {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "customerId is required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	claims, total, err := h.service.Claims(c.Request.Context(), businessID, customerID, c.Query("offerId"), page, limit)
	if err != nil {
		if errors.Is(err, errs.ErrCustomerNotFound) {
			response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "Customer not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, gin.H{
		"claims": claims,
		"total":  total,
		"page":   page,
		"limit":  limit,
	})
}

// mapScanError 扫码错误统一映射
//
// 钱包推送失败不会出现在这里：同步结果永远折叠进 walletUpdates 返回。
func (h *ScanHandler) mapScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrTokenDecode):
		response.Error(c, http.StatusBadRequest, response.ErrScanTokenInvalid, "Unable to decode scan token")
	case errors.Is(err, errs.ErrOfferNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "Offer not found")
	case errors.Is(err, errs.ErrCustomerNotFound):
		response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "Customer not found")
	case errors.Is(err, errs.ErrOfferInactive):
		response.Fail(c, response.ErrOfferPaused, "Offer is paused")
	case errors.Is(err, errs.ErrNotCompleted):
		response.Error(c, http.StatusConflict, response.ErrNotCompleted, "Progress is not completed yet")
	case errors.Is(err, errs.ErrScanCooldown):
		response.Error(c, http.StatusTooManyRequests, response.ErrScanCooldown, "Scan too soon, please retry later")
	case errors.Is(err, errs.ErrProgressConflict):
		response.Error(c, http.StatusInternalServerError, response.ErrScanConflict, "Progress update conflict, please retry")
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}
