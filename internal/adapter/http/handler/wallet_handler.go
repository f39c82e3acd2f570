package handler

import (
	"math"
	"strconv"
	"time"

	"pesos-ledger/internal/adapter/http/dto"
	"pesos-ledger/internal/adapter/http/middleware"
	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/core/ports"
	"pesos-ledger/pkg/apperror"
	"pesos-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles the user-facing wallet endpoints.
type WalletHandler struct {
	ledgerSvc    ports.LedgerService
	reportingSvc ports.ReportingService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerSvc ports.LedgerService, reportingSvc ports.ReportingService) *WalletHandler {
	return &WalletHandler{ledgerSvc: ledgerSvc, reportingSvc: reportingSvc}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	info, err := h.reportingSvc.GetBalance(c.Request.Context(), userID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletID:  info.WalletID.String(),
		UserID:    info.UserID.String(),
		Balance:   info.Balance.String(),
		IsBlocked: info.IsBlocked,
	})
}

// ListMovements handles GET /api/v1/wallet/movements. Users only ever see
// their own history; the user filter is pinned to the token subject.
func (h *WalletHandler) ListMovements(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := parseMovementListParams(c)
	uid := userID.(uuid.UUID)
	params.UserID = &uid

	movements, total, err := h.reportingSvc.ListMovements(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toMovementListResponse(movements, total, params))
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.ledgerSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderUserID:   userID.(uuid.UUID),
		RecipientEmail: req.RecipientEmail,
		Amount:         req.Amount,
		Description:    req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{
		OutMovement:    toMovementResponse(result.OutMovement),
		InMovement:     toMovementResponse(result.InMovement),
		SenderBalance:  result.SenderBalance.String(),
		RecipientEmail: result.Recipient.Email,
	})
}

// parseMovementListParams reads the shared filter + pagination query params.
func parseMovementListParams(c *gin.Context) ports.MovementListParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}

	params := ports.MovementListParams{
		Page:     page,
		PageSize: pageSize,
	}

	if t := c.Query("type"); t != "" {
		mType := domain.MovementType(t)
		params.Type = &mType
	}
	if f := c.Query("from"); f != "" {
		if v, err := parseTimeParam(f); err == nil {
			params.From = &v
		}
	}
	if t := c.Query("to"); t != "" {
		if v, err := parseTimeParam(t); err == nil {
			params.To = &v
		}
	}

	return params
}

// parseTimeParam accepts RFC3339 timestamps or plain dates.
func parseTimeParam(s string) (time.Time, error) {
	if v, err := time.Parse(time.RFC3339, s); err == nil {
		return v, nil
	}
	return time.Parse("2006-01-02", s)
}

// toMovementResponse converts domain.Movement to DTO.
func toMovementResponse(m *domain.Movement) dto.MovementResponse {
	resp := dto.MovementResponse{
		ID:          m.ID.String(),
		WalletID:    m.WalletID.String(),
		Type:        string(m.Type),
		Amount:      m.Amount.String(),
		Description: m.Description,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
	if m.OrderID != nil {
		s := m.OrderID.String()
		resp.OrderID = &s
	}
	if m.ExpiresAt != nil {
		s := m.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

// toWalletResponse converts domain.Wallet to DTO.
func toWalletResponse(w *domain.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID.String(),
		Balance:   w.Balance.String(),
		IsBlocked: w.IsBlocked,
	}
}

func toMovementListResponse(movements []domain.Movement, total int64, params ports.MovementListParams) dto.MovementListResponse {
	items := make([]dto.MovementResponse, 0, len(movements))
	for i := range movements {
		items = append(items, toMovementResponse(&movements[i]))
	}

	totalPages := int(math.Ceil(float64(total) / float64(params.PageSize)))

	return dto.MovementListResponse{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}
}
