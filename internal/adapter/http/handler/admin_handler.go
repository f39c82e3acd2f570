package handler

import (
	"fmt"
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
	"github.com/shopspring/decimal"
)

// AdminHandler handles the back-office wallet endpoints.
type AdminHandler struct {
	ledgerSvc    ports.LedgerService
	reportingSvc ports.ReportingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledgerSvc ports.LedgerService, reportingSvc ports.ReportingService) *AdminHandler {
	return &AdminHandler{ledgerSvc: ledgerSvc, reportingSvc: reportingSvc}
}

// Credit handles POST /api/v1/admin/wallet/credit.
func (h *AdminHandler) Credit(c *gin.Context) {
	adminID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreditRequest
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

	var expiresAt *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		v, err := time.Parse("2006-01-02", *req.ExpiresAt)
		if err != nil {
			response.Error(c, apperror.Validation("expires_at must be a YYYY-MM-DD date"))
			return
		}
		expiresAt = &v
	}

	movement, wallet, err := h.ledgerSvc.Credit(c.Request.Context(), ports.CreditRequest{
		UserID:      userID,
		AdminUserID: adminID.(uuid.UUID),
		Type:        domain.MovementType(req.Type),
		Amount:      req.Amount,
		Reason:      req.Reason,
		Description: req.Description,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreditResponse{
		Movement: toMovementResponse(movement),
		Wallet:   toWalletResponse(wallet),
	})
}

// Debit handles POST /api/v1/admin/wallet/debit.
func (h *AdminHandler) Debit(c *gin.Context) {
	adminID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DebitRequest
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

	movement, wallet, err := h.ledgerSvc.Debit(c.Request.Context(), ports.DebitRequest{
		UserID:          userID,
		AdminUserID:     adminID.(uuid.UUID),
		Type:            domain.MovementManualDebit,
		Amount:          req.Amount,
		Reason:          req.Reason,
		InternalComment: req.InternalComment,
		Description:     req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreditResponse{
		Movement: toMovementResponse(movement),
		Wallet:   toWalletResponse(wallet),
	})
}

// SetBlocked handles PUT /api/v1/admin/wallet/:user_id/block.
func (h *AdminHandler) SetBlocked(c *gin.Context) {
	adminID, ok := c.Get(middleware.CtxUserID)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid user_id"))
		return
	}

	var req dto.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.ledgerSvc.SetBlocked(c.Request.Context(), ports.BlockRequest{
		UserID:      userID,
		AdminUserID: adminID.(uuid.UUID),
		Blocked:     *req.Blocked,
		Reason:      req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toWalletResponse(wallet))
}

// ListMovements handles GET /api/v1/admin/wallet/movements.
func (h *AdminHandler) ListMovements(c *gin.Context) {
	params := parseMovementListParams(c)
	if s := c.Query("user_id"); s != "" {
		uid, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid user_id"))
			return
		}
		params.UserID = &uid
	}

	movements, total, err := h.reportingSvc.ListMovements(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toMovementListResponse(movements, total, params))
}

// ExportMovements handles GET /api/v1/admin/wallet/movements/export.
// Streams the filtered history as CSV.
func (h *AdminHandler) ExportMovements(c *gin.Context) {
	params := parseMovementListParams(c)
	if s := c.Query("user_id"); s != "" {
		uid, err := uuid.Parse(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid user_id"))
			return
		}
		params.UserID = &uid
	}

	filename := fmt.Sprintf("movements-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.reportingSvc.ExportMovementsCSV(c.Request.Context(), c.Writer, params); err != nil {
		response.Error(c, err)
		return
	}
}

// Anomalies handles GET /api/v1/admin/wallet/reports/anomalies.
func (h *AdminHandler) Anomalies(c *gin.Context) {
	minAdjustments, _ := strconv.Atoi(c.DefaultQuery("min_adjustments", "0"))
	minAmount := decimal.Zero
	if s := c.Query("min_amount"); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			response.Error(c, apperror.Validation("invalid min_amount"))
			return
		}
		minAmount = v
	}

	report, err := h.reportingSvc.DetectAnomalies(c.Request.Context(), minAdjustments, minAmount)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.AnomalyReportResponse{
		HeavyAdjusters: make([]dto.HeavyAdjusterResponse, 0, len(report.HeavyAdjusters)),
		LargeMovements: make([]dto.LargeMovementResponse, 0, len(report.LargeMovements)),
	}
	for _, a := range report.HeavyAdjusters {
		resp.HeavyAdjusters = append(resp.HeavyAdjusters, dto.HeavyAdjusterResponse{
			UserID:          a.UserID.String(),
			FirstName:       a.FirstName,
			LastName:        a.LastName,
			Email:           a.Email,
			AdjustmentCount: a.AdjustmentCount,
		})
	}
	for i := range report.LargeMovements {
		m := &report.LargeMovements[i]
		resp.LargeMovements = append(resp.LargeMovements, dto.LargeMovementResponse{
			Movement:  toMovementResponse(&m.Movement),
			UserID:    m.UserID.String(),
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Email:     m.Email,
		})
	}

	response.OK(c, resp)
}

// ExpiringCredits handles GET /api/v1/admin/wallet/reports/expiring-credits.
func (h *AdminHandler) ExpiringCredits(c *gin.Context) {
	withinDays, _ := strconv.Atoi(c.DefaultQuery("within_days", "0"))

	credits, err := h.reportingSvc.ExpiringCredits(c.Request.Context(), withinDays)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ExpiringCreditResponse, 0, len(credits))
	for _, ec := range credits {
		items = append(items, dto.ExpiringCreditResponse{
			UserID:          ec.UserID.String(),
			Email:           ec.Email,
			FirstName:       ec.FirstName,
			LastName:        ec.LastName,
			ExpiringBalance: ec.ExpiringBalance.String(),
			EarliestExpiry:  ec.EarliestExpiry.Format(time.RFC3339),
		})
	}

	response.OK(c, items)
}

// StaleReservations handles GET /api/v1/admin/wallet/reports/stale-reservations.
func (h *AdminHandler) StaleReservations(c *gin.Context) {
	stale, err := h.reportingSvc.StaleReservations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.MovementResponse, 0, len(stale))
	for i := range stale {
		items = append(items, toMovementResponse(&stale[i]))
	}

	response.OK(c, items)
}
