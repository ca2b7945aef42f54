package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"mailsort-be/internal/models"
	"mailsort-be/internal/repository"
	"mailsort-be/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sahilm/fuzzy"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SortingHandler struct {
	dispatcher  *services.Dispatcher
	flagRepo    *repository.FlagRepository
	sessionRepo *repository.SessionRepository
	logRepo     *repository.ProcessingLogRepository
	enhancer    services.KeywordEnhancer
}

func NewSortingHandler(dispatcher *services.Dispatcher, flagRepo *repository.FlagRepository, sessionRepo *repository.SessionRepository, logRepo *repository.ProcessingLogRepository, enhancer services.KeywordEnhancer) *SortingHandler {
	return &SortingHandler{
		dispatcher:  dispatcher,
		flagRepo:    flagRepo,
		sessionRepo: sessionRepo,
		logRepo:     logRepo,
		enhancer:    enhancer,
	}
}

// Start queues a sorting run over the caller's inbox.
// POST /api/sorting/start
func (h *SortingHandler) Start(c *gin.Context) {
	email := c.GetString("email")
	ctx := c.Request.Context()

	activeFlags, err := h.flagRepo.GetActiveFlags(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load flags",
		})
		return
	}
	if len(activeFlags) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "no_active_flags",
			Message: "At least one active flag is required to start sorting",
		})
		return
	}

	flagNames := make([]string, 0, len(activeFlags))
	for _, f := range activeFlags {
		flagNames = append(flagNames, f.Name)
	}

	req := services.RunRequest{
		SessionID: primitive.NewObjectID().Hex(),
		Email:     email,
		Kind:      services.RunSort,
		FlagNames: flagNames,
	}
	if err := h.enqueue(c, req); err != nil {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Sorting started",
		"session_id": req.SessionID,
	})
}

// Revert queues a revert of the most recent completed sorting run.
// POST /api/sorting/revert
func (h *SortingHandler) Revert(c *gin.Context) {
	email := c.GetString("email")
	ctx := c.Request.Context()

	target, err := h.sessionRepo.LatestCompletedSort(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to look up sorting sessions",
		})
		return
	}
	if target == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_completed_session",
			Message: "No completed sorting session to revert",
		})
		return
	}

	req := services.RunRequest{
		SessionID:       primitive.NewObjectID().Hex(),
		Email:           email,
		Kind:            services.RunRevert,
		TargetSessionID: target.SessionID,
	}
	if err := h.enqueue(c, req); err != nil {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":           "Revert started",
		"session_id":        req.SessionID,
		"reverting_session": target.SessionID,
	})
}

// Status returns the caller's most recent session.
// GET /api/sorting/status
func (h *SortingHandler) Status(c *gin.Context) {
	email := c.GetString("email")

	session, err := h.sessionRepo.Latest(c.Request.Context(), email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load session",
		})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_sessions",
			Message: "No sorting sessions yet",
		})
		return
	}

	c.JSON(http.StatusOK, session)
}

// History returns the caller's sessions, newest first.
// GET /api/sorting/history?limit=
func (h *SortingHandler) History(c *gin.Context) {
	email := c.GetString("email")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	sessions, err := h.sessionRepo.History(c.Request.Context(), email, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SessionDetails returns one session together with its per-message log.
// GET /api/sorting/sessions/:sessionId
func (h *SortingHandler) SessionDetails(c *gin.Context) {
	email := c.GetString("email")
	sessionID := c.Param("sessionId")
	ctx := c.Request.Context()

	session, err := h.sessionRepo.BySessionID(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load session",
		})
		return
	}
	if session == nil || session.Email != email {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "session_not_found",
			Message: "Session not found",
		})
		return
	}

	entries, err := h.logRepo.BySession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load processing log",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
		"log":     entries,
	})
}

// EnhanceKeywords returns AI keyword expansions for a flag description.
// Empty when the enhancer is unconfigured.
// POST /api/sorting/ai/enhance-keywords
func (h *SortingHandler) EnhanceKeywords(c *gin.Context) {
	var req struct {
		Description string `json:"description" binding:"required"`
		Subject     string `json:"subject"`
		Body        string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	keywords := h.enhancer.EnhanceKeywords(c.Request.Context(), req.Description, req.Subject, req.Body)
	if keywords == nil {
		keywords = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"keywords":  keywords,
		"available": h.enhancer.Available(),
	})
}

// SuggestFlags asks the AI which of the caller's flags fit a message and
// fuzzy-matches the returned names back onto the actual flag set, so minor
// spelling drift in the model output still resolves to a real flag.
// POST /api/sorting/ai/suggest-flags
func (h *SortingHandler) SuggestFlags(c *gin.Context) {
	email := c.GetString("email")

	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Subject) == "" && strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Subject or body is required",
		})
		return
	}

	ctx := c.Request.Context()
	activeFlags, err := h.flagRepo.GetActiveFlags(ctx, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to load flags",
		})
		return
	}

	candidates := make([]string, 0, len(activeFlags))
	for _, f := range activeFlags {
		candidates = append(candidates, f.Name)
	}

	content := strings.TrimSpace(req.Subject + "\n" + req.Body)
	raw := h.enhancer.SuggestFlags(ctx, content, candidates)

	suggestions := make([]models.FlagSuggestion, 0, len(raw))
	for _, s := range raw {
		if name, ok := resolveFlagName(s.Flag, candidates); ok {
			s.Flag = name
			suggestions = append(suggestions, s)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"suggestions": suggestions,
		"available":   h.enhancer.Available(),
	})
}

// AIStatus reports whether the keyword enhancer is configured.
// GET /api/sorting/ai/status
func (h *SortingHandler) AIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"available": h.enhancer.Available()})
}

func (h *SortingHandler) enqueue(c *gin.Context, req services.RunRequest) error {
	err := h.dispatcher.Enqueue(req)
	switch err {
	case nil:
		return nil
	case services.ErrRunInProgress:
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "run_in_progress",
			Message: "A sorting run is already in progress",
		})
	case services.ErrQueueFull:
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "queue_full",
			Message: "Too many pending runs, try again later",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "server_error",
			Message: "Failed to queue run",
		})
	}
	return err
}

// resolveFlagName maps a possibly-misspelled flag name onto the closest
// candidate.
func resolveFlagName(name string, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		if strings.EqualFold(candidate, name) {
			return candidate, true
		}
	}
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return "", false
	}
	return candidates[matches[0].Index], true
}
