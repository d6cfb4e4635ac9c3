package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/storhubdata/facilityops_backend/middlewares"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"bitbucket.org/storhubdata/facilityops_backend/workflow"
	"github.com/gin-gonic/gin"
)

// requestScope pulls the authenticated session out of the request context and
// hydrates the username so audit columns carry a name, not just an id.
func requestScope(c *gin.Context) (context.Context, int, models.UserRole, bool) {
	ctx := c.Request.Context()
	claims := middlewares.CtxValue(ctx)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, 0, "", false
	}
	if user, err := models.GetUser(ctx, claims.ID); err == nil {
		ctx = utils.SetUserNameInContext(ctx, user.Username)
	}
	return ctx, claims.FacilityId, models.UserRole(claims.Role), true
}

func queryInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return v, true
}

func writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorFacilityMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func matchCandidatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, facilityId, _, ok := requestScope(c)
		if !ok {
			return
		}
		bankAccountId, ok := queryInt(c, "bank_account_id")
		if !ok {
			return
		}
		month, ok := queryInt(c, "month")
		if !ok {
			return
		}
		year, ok := queryInt(c, "year")
		if !ok {
			return
		}

		candidates, summary, err := workflow.FindMatchCandidates(ctx, facilityId, bankAccountId, month, year)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidates": candidates, "summary": summary})
	}
}

type autoMatchApiRequest struct {
	BankAccountId int      `json:"bank_account_id" binding:"required"`
	Month         int      `json:"month" binding:"required"`
	Year          int      `json:"year" binding:"required"`
	MinConfidence *float64 `json:"min_confidence"`
}

func autoMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, facilityId, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req autoMatchApiRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		minConfidence := workflow.DefaultAutoMatchConfidence
		if req.MinConfidence != nil {
			minConfidence = *req.MinConfidence
		}

		result, err := workflow.RunAutoMatch(ctx, facilityId, req.BankAccountId, req.Month, req.Year, minConfidence)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func validateMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req workflow.ManualMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := workflow.ValidateManualMatch(ctx, req)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createManualMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req workflow.ManualMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		match, validation, err := workflow.CreateManualMatch(ctx, req)
		if err != nil {
			if errors.Is(err, utils.ErrorValidationFailed) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"validation": validation})
				return
			}
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"match": match, "validation": validation})
	}
}

func createPartialMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req workflow.PartialMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := workflow.CreatePartialMatch(ctx, req)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func createMultiDayMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req workflow.MultiDayMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := workflow.CreateMultiDayMatch(ctx, req)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

type unmatchApiRequest struct {
	BankTransactionId int    `json:"bank_transaction_id" binding:"required"`
	DailyPaymentId    int    `json:"daily_payment_id" binding:"required"`
	Reason            string `json:"reason"`
}

func unmatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, _, ok := requestScope(c)
		if !ok {
			return
		}
		var req unmatchApiRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := workflow.UnmatchTransaction(ctx, req.BankTransactionId, req.DailyPaymentId, req.Reason); err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"bank_transaction_id": req.BankTransactionId,
			"daily_payment_id":    req.DailyPaymentId,
			"unmatched":           true,
		})
	}
}

func listDiscrepanciesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, facilityId, _, ok := requestScope(c)
		if !ok {
			return
		}
		filter := models.DiscrepancyFilter{FacilityId: facilityId}
		if v := c.Query("status"); v != "" {
			status, err := models.ParseDiscrepancyStatus(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Status = &status
		}
		if v := c.Query("year"); v != "" {
			year, ok := queryInt(c, "year")
			if !ok {
				return
			}
			month, ok := queryInt(c, "month")
			if !ok {
				return
			}
			filter.Year, filter.Month = year, month
		}
		filter.CriticalOnly = c.Query("critical_only") == "true"

		discrepancies, summary, err := models.ReviewDiscrepancies(ctx, filter)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"discrepancies": discrepancies, "summary": summary})
	}
}

type discrepancyReviewRequest struct {
	DiscrepancyIds []int  `json:"discrepancy_ids" binding:"required"`
	Note           string `json:"note"`
}

func reviewDiscrepanciesHandler(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, role, ok := requestScope(c)
		if !ok {
			return
		}
		if !role.CanReviewDiscrepancies() {
			c.JSON(http.StatusForbidden, gin.H{"error": "role is not allowed to review discrepancies"})
			return
		}
		var req discrepancyReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if len(req.DiscrepancyIds) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "discrepancy_ids is required"})
			return
		}

		var outcomes []models.DiscrepancyActionOutcome
		if approve {
			outcomes = models.BulkApproveDiscrepancies(ctx, req.DiscrepancyIds, req.Note)
		} else {
			outcomes = models.BulkRejectDiscrepancies(ctx, req.DiscrepancyIds, req.Note)
		}
		c.JSON(http.StatusOK, gin.H{"results": outcomes})
	}
}

func getPeriodHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, facilityId, _, ok := requestScope(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		period, err := models.GetReconciliationPeriod(ctx, facilityId, id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}

type periodStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func setPeriodStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, facilityId, role, ok := requestScope(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		var req periodStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		next, err := models.ParseReconciliationStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Completing or rejecting a period is a review decision.
		if (next == models.ReconciliationStatusCompleted || next == models.ReconciliationStatusRejected) &&
			!role.CanReviewDiscrepancies() {
			c.JSON(http.StatusForbidden, gin.H{"error": "role is not allowed to close periods"})
			return
		}

		period, err := models.SetPeriodStatus(ctx, facilityId, id, next)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, period)
	}
}
