package handler

import (
	"errors"
	"net/http"

	"loyalty_wallet/internal/domain/wallet/repository"
	"loyalty_wallet/internal/domain/wallet/service"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/response"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	passService service.PassService
	repo        repository.WalletPassRepository
}

func NewWalletHandler(passService service.PassService, repo repository.WalletPassRepository) *WalletHandler {
	return &WalletHandler{passService: passService, repo: repo}
}

type IssuePassInput struct {
	CustomerID string `json:"customerId" binding:"required"`
	OfferID    string `json:"offerId" binding:"required"`
	WalletType string `json:"walletType" binding:"required"`
}

// IssuePass 为客户签发钱包会员卡
// @Summary 签发钱包会员卡
// @Tags wallet
// @Accept json
// @Produce json
// @Param body body IssuePassInput true "签发参数"
// @Success 200 {object} response.Response{data=service.PassIssueResult}
// @Security BearerAuth
// @Router /wallet/passes [post]
func (h *WalletHandler) IssuePass(c *gin.Context) {
	var input IssuePassInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	businessID := c.GetString("businessID")
	if businessID == "" {
		response.Error(c, http.StatusUnauthorized, response.ErrTokenInvalid, "Business not authenticated")
		return
	}

	result, err := h.passService.IssuePass(c.Request.Context(), businessID, input.CustomerID, input.OfferID, input.WalletType)
	if err != nil {
		h.mapIssueError(c, err)
		return
	}

	response.Success(c, result)
}

func (h *WalletHandler) mapIssueError(c *gin.Context, err error) {
	var adapterErr *errs.WalletAdapterError

	switch {
	case errors.Is(err, errs.ErrWalletUnsupported):
		response.Fail(c, response.ErrWalletUnsupported, "unsupported wallet type")
	case errors.Is(err, errs.ErrCustomerNotFound):
		response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "customer not found")
	case errors.Is(err, errs.ErrOfferNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOfferNotFound, "offer not found")
	case errors.Is(err, errs.ErrOfferInactive):
		response.Fail(c, response.ErrOfferPaused, "offer is not active")
	case errors.As(err, &adapterErr):
		// 渠道未配置或远端不可用
		response.Error(c, http.StatusServiceUnavailable, response.ErrWalletDisabled, "wallet channel unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

// ListPasses 客户在某张卡券下的钱包卡列表
// @Summary 查询客户的钱包卡
// @Tags wallet
// @Produce json
// @Param customerId query string true "客户 ID"
// @Param offerId query string true "卡券 ID"
// @Success 200 {object} response.Response
// @Security BearerAuth
// @Router /wallet/passes [get]
func (h *WalletHandler) ListPasses(c *gin.Context) {
	customerID := c.Query("customerId")
	offerID := c.Query("offerId")
	if customerID == "" || offerID == "" {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "customerId and offerId are required")
		return
	}

	businessID := c.GetString("businessID")
	passes, err := h.repo.GetByCustomerAndOffer(c.Request.Context(), customerID, offerID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	// 过滤掉不属于当前商户的数据
	filtered := passes[:0]
	for _, p := range passes {
		if p.BusinessID == businessID {
			filtered = append(filtered, p)
		}
	}

	response.Success(c, gin.H{"passes": filtered, "total": len(filtered)})
}
