package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loyalty_wallet/internal/domain/wallet/service"
	"loyalty_wallet/internal/pkg/errs"
	"loyalty_wallet/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PassKitHandler Apple PassKit Web Service 回调
//
// 响应格式和状态码按 Apple 协议来，不走统一响应封装。
// 调用方是 iOS 系统钱包，不是我们的客户端。
type PassKitHandler struct {
	passService service.PassService
}

func NewPassKitHandler(passService service.PassService) *PassKitHandler {
	return &PassKitHandler{passService: passService}
}

// authToken 从 "Authorization: ApplePass <token>" 里取令牌
func authToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "ApplePass "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func (h *PassKitHandler) abortWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrPassAuthFailed):
		c.Status(http.StatusUnauthorized)
	case errors.Is(err, errs.ErrPassNotFound):
		c.Status(http.StatusNotFound)
	default:
		if logger.Log != nil {
			logger.Log.Error("passkit web service error", zap.Error(err))
		}
		c.Status(http.StatusInternalServerError)
	}
}

type registerDeviceInput struct {
	PushToken string `json:"pushToken" binding:"required"`
}

// RegisterDevice 设备订阅卡更新
// POST /v1/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber
func (h *PassKitHandler) RegisterDevice(c *gin.Context) {
	var input registerDeviceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	created, err := h.passService.RegisterAppleDevice(
		c.Request.Context(),
		c.Param("deviceLibraryIdentifier"),
		c.Param("passTypeIdentifier"),
		c.Param("serialNumber"),
		authToken(c),
		input.PushToken,
	)
	if err != nil {
		h.abortWith(c, err)
		return
	}

	// 协议：新注册 201，已存在 200
	if created {
		c.Status(http.StatusCreated)
	} else {
		c.Status(http.StatusOK)
	}
}

// UnregisterDevice 设备退订
// DELETE /v1/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier/:serialNumber
func (h *PassKitHandler) UnregisterDevice(c *gin.Context) {
	err := h.passService.UnregisterAppleDevice(
		c.Request.Context(),
		c.Param("deviceLibraryIdentifier"),
		c.Param("passTypeIdentifier"),
		c.Param("serialNumber"),
		authToken(c),
	)
	if err != nil {
		h.abortWith(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// ListSerials 设备登记过的序列号，支持增量水位
// GET /v1/devices/:deviceLibraryIdentifier/registrations/:passTypeIdentifier?passesUpdatedSince=<tag>
func (h *PassKitHandler) ListSerials(c *gin.Context) {
	var updatedSince *time.Time
	if tag := c.Query("passesUpdatedSince"); tag != "" {
		ts, err := strconv.ParseInt(tag, 10, 64)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		t := time.Unix(ts, 0)
		updatedSince = &t
	}

	serials, lastUpdated, err := h.passService.AppleSerialsForDevice(
		c.Request.Context(),
		c.Param("deviceLibraryIdentifier"),
		c.Param("passTypeIdentifier"),
		updatedSince,
	)
	if err != nil {
		h.abortWith(c, err)
		return
	}

	// 协议：没有可返回的序列号时回 204
	if len(serials) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serialNumbers": serials,
		"lastUpdated":   strconv.FormatInt(lastUpdated.Unix(), 10),
	})
}

// GetPass 设备回拉最新 pass.json
// GET /v1/passes/:passTypeIdentifier/:serialNumber
func (h *PassKitHandler) GetPass(c *gin.Context) {
	payload, err := h.passService.ApplePassPayload(
		c.Request.Context(),
		c.Param("passTypeIdentifier"),
		c.Param("serialNumber"),
		authToken(c),
	)
	if err != nil {
		h.abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, payload)
}

type deviceLogInput struct {
	Logs []string `json:"logs"`
}

// DeviceLog 设备侧错误日志上报
// POST /v1/log
func (h *PassKitHandler) DeviceLog(c *gin.Context) {
	var input deviceLogInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if logger.Log != nil {
		for _, line := range input.Logs {
			logger.Log.Warn("passkit device log", zap.String("message", line))
		}
	}

	c.Status(http.StatusOK)
}
