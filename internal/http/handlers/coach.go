package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repos "github.com/yungbote/habitloop-backend/internal/data/repos/coach"
	types "github.com/yungbote/habitloop-backend/internal/domain"
	"github.com/yungbote/habitloop-backend/internal/http/response"
	coach "github.com/yungbote/habitloop-backend/internal/modules/coach"
	"github.com/yungbote/habitloop-backend/internal/platform/apierr"
	"github.com/yungbote/habitloop-backend/internal/platform/ctxutil"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type CoachHandler struct {
	log *logger.Logger
	uc  *coach.Usecases
}

func NewCoachHandler(log *logger.Logger, uc *coach.Usecases) *CoachHandler {
	return &CoachHandler{log: log.With("handler", "CoachHandler"), uc: uc}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "NotAuthenticated", errors.New("no authenticated user"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func respondFailure(c *gin.Context, err error) {
	var ae *apierr.Error
	switch {
	case errors.As(err, &ae):
		response.RespondError(c, ae.Status, ae.Code, ae.Err)
	case errors.Is(err, coach.ErrDecisionNotFound), errors.Is(err, coach.ErrExperienceNotFound), errors.Is(err, repos.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "NotFound", err)
	case errors.Is(err, repos.ErrConflict):
		response.RespondError(c, http.StatusConflict, "Conflict", err)
	case errors.Is(err, repos.ErrRetryable):
		response.RespondError(c, http.StatusServiceUnavailable, "Unavailable", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "Internal", err)
	}
}

func (h *CoachHandler) CheckIn(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	out, err := h.uc.CheckIn(c.Request.Context(), userID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, out)
}

type feedbackRequest struct {
	DecisionID      string `json:"decision_id" binding:"required"`
	Kind            string `json:"kind" binding:"required"`
	Explicit        string `json:"explicit"`
	TimeToActionSec int    `json:"time_to_action_sec"`
}

func (h *CoachHandler) Feedback(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	decisionID, err := uuid.Parse(req.DecisionID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", fmt.Errorf("bad decision_id: %w", err))
		return
	}
	out, err := h.uc.RecordFeedback(c.Request.Context(), coach.RecordFeedbackInput{
		UserID:       userID,
		DecisionID:   decisionID,
		Kind:         req.Kind,
		Explicit:     req.Explicit,
		TimeToAction: time.Duration(req.TimeToActionSec) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, coach.ErrDecisionNotFound),
			errors.Is(err, repos.ErrNotFound),
			errors.Is(err, repos.ErrConflict),
			errors.Is(err, repos.ErrRetryable):
			respondFailure(c, err)
		default:
			// Anything else from feedback recording is input validation.
			response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		}
		return
	}
	if out.Status == coach.StatusSkippedConsent {
		response.RespondOK(c, gin.H{"skipped": "consent_denied"})
		return
	}
	response.RespondOK(c, gin.H{
		"status":        out.Status,
		"feedback_id":   out.FeedbackID,
		"experience_id": out.ExperienceID,
	})
}

func (h *CoachHandler) ListInterventions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.uc.Interventions(c.Request.Context(), userID, limit)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"interventions": rows})
}

type interventionStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *CoachHandler) UpdateInterventionStatus(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", fmt.Errorf("bad intervention id: %w", err))
		return
	}
	var req interventionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	if !types.TerminalInterventionStatus(req.Status) {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", fmt.Errorf("status %q is not terminal", req.Status))
		return
	}
	updated, err := h.uc.ResolveIntervention(c.Request.Context(), userID, id, req.Status)
	if err != nil {
		respondFailure(c, err)
		return
	}
	if !updated {
		response.RespondError(c, http.StatusConflict, "Conflict", errors.New("intervention not pending or not found"))
		return
	}
	response.RespondOK(c, gin.H{"status": req.Status})
}

func (h *CoachHandler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.uc.LearningStats(c.Request.Context(), userID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, stats)
}

func (h *CoachHandler) Snapshot(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	snap, err := h.uc.Snapshot(c.Request.Context(), userID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, snap)
}

func (h *CoachHandler) Recommendations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "3"))
	recs, err := h.uc.Recommendations(c.Request.Context(), userID, limit)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": recs})
}

func (h *CoachHandler) Signals(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	window, err := time.ParseDuration(c.DefaultQuery("window", "168h"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", fmt.Errorf("bad window: %w", err))
		return
	}
	rows, err := h.uc.RecentSignals(c.Request.Context(), userID, window, limit)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"signals": rows})
}

func (h *CoachHandler) GetConsent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	flags, err := h.uc.ConsentFlags(c.Request.Context(), userID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	response.RespondOK(c, gin.H{"consent": flags})
}

type consentRequest struct {
	Purpose string `json:"purpose" binding:"required"`
	Granted *bool  `json:"granted" binding:"required"`
}

func (h *CoachHandler) SetConsent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	if err := h.uc.SetConsent(c.Request.Context(), userID, req.Purpose, *req.Granted); err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	response.RespondOK(c, gin.H{"purpose": req.Purpose, "granted": *req.Granted})
}

func (h *CoachHandler) ExportPolicy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	blob, err := h.uc.ExportPolicy(c.Request.Context(), userID)
	if err != nil {
		respondFailure(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", blob)
}

func (h *CoachHandler) ImportPolicy(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	blob, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	if err := h.uc.ImportPolicy(c.Request.Context(), userID, blob); err != nil {
		response.RespondError(c, http.StatusBadRequest, "BadRequest", err)
		return
	}
	response.RespondOK(c, gin.H{"status": "imported"})
}
