package handler

import (
	"pesos-ledger/internal/adapter/http/dto"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/pkg/apperror"
	"pesos-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CheckoutHandler handles the service-to-service reservation endpoints
// called by the order system during checkout.
type CheckoutHandler struct {
	checkoutSvc ports.CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkoutSvc ports.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutSvc: checkoutSvc}
}

// Reserve handles POST /api/v1/internal/checkout/reserve.
func (h *CheckoutHandler) Reserve(c *gin.Context) {
	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	movement, err := h.checkoutSvc.ReserveDebit(c.Request.Context(), ports.ReserveRequest{
		UserID:      userID,
		Amount:      req.Amount,
		CallerRef:   req.CallerRef,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toMovementResponse(movement))
}

// Attach handles POST /api/v1/internal/checkout/:movement_id/attach.
func (h *CheckoutHandler) Attach(c *gin.Context) {
	movementID, err := uuid.Parse(c.Param("movement_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid movement_id"))
		return
	}

	var req dto.AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid order_id"))
		return
	}

	movement, err := h.checkoutSvc.Attach(c.Request.Context(), movementID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toMovementResponse(movement))
}

// Revert handles POST /api/v1/internal/checkout/:movement_id/revert.
func (h *CheckoutHandler) Revert(c *gin.Context) {
	movementID, err := uuid.Parse(c.Param("movement_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid movement_id"))
		return
	}

	result, err := h.checkoutSvc.Revert(c.Request.Context(), movementID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RevertResponse{
		Released: result.Released,
		Balance:  result.Balance.String(),
	})
}
