package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/database"
	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/jazzcash"
	"jazzcash-gateway/internal/logger"
	"jazzcash-gateway/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	checkout service.CheckoutService
	callback service.CallbackService
	db       database.Service
	gw       config.Gateway
	log      *zap.Logger
}

func NewHandler(
	checkout service.CheckoutService,
	callback service.CallbackService,
	db database.Service,
	gw config.Gateway,
	log *zap.Logger,
) *Handler {
	return &Handler{checkout: checkout, callback: callback, db: db, gw: gw, log: log}
}

type checkoutForm struct {
	MobileNumber string `form:"jazzcash_mobile_number"`
	CNIC         string `form:"jazzcash_cnic"`
}

type formField struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Pattern     string `json:"pattern"`
	MaxLength   int    `json:"maxlength"`
	Placeholder string `json:"placeholder"`
}

// PaymentMethod describes the checkout fields the storefront must render.
func (h *Handler) PaymentMethod(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":          domain.PaymentMethodJazzCash,
		"title":       h.gw.Title,
		"description": h.gw.Description,
		"enabled":     h.gw.Enabled,
		"fields": []formField{
			{
				Name:        jazzcash.FieldMobileNumber,
				Label:       "JazzCash Mobile Number",
				Required:    true,
				Pattern:     "03[0-9]{9}",
				MaxLength:   11,
				Placeholder: "03XXXXXXXXX",
			},
			{
				Name:        jazzcash.FieldCNIC,
				Label:       "CNIC (Optional)",
				Pattern:     "[0-9]{13}",
				MaxLength:   13,
				Placeholder: "Enter 13-digit CNIC without dashes",
			},
		},
	})
}

// Checkout handles POST /orders/:id/jazzcash and sends the shopper to JazzCash.
func (h *Handler) Checkout(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}

	var form checkoutForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	// Validated as posted; cleaning happens only on what gets stored.
	req, err := h.checkout.InitiatePayment(c.Request.Context(), service.CheckoutInput{
		OrderID:      orderID,
		MobileNumber: form.MobileNumber,
		CNIC:         form.CNIC,
	})
	if err != nil {
		h.checkoutError(c, orderID, err)
		return
	}

	c.Redirect(http.StatusSeeOther, req.RedirectURL)
}

func (h *Handler) checkoutError(c *gin.Context, orderID int64, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, domain.ErrWrongPaymentMethod), errors.Is(err, domain.ErrOrderNotPayable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrGatewayDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "JazzCash is currently unavailable"})
	default:
		logger.FromContext(c, h.log).Error("initiate jazzcash payment", zap.Int64("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment could not be started"})
	}
}

// Callback handles the browser POST from JazzCash. It always redirects.
func (h *Handler) Callback(c *gin.Context) {
	fields := service.CallbackFields{}
	if err := c.Request.ParseForm(); err != nil {
		logger.FromContext(c, h.log).Warn("parse jazzcash callback", zap.Error(err))
	}
	for key, values := range c.Request.PostForm {
		if strings.HasPrefix(key, "pp_") && len(values) > 0 {
			fields[key] = values[0]
		}
	}

	target := h.callback.HandleCallback(c.Request.Context(), fields)
	c.Redirect(http.StatusSeeOther, target.URL)
}

func (h *Handler) Health(c *gin.Context) {
	stats := h.db.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
