package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/models"
	"github.com/shiftbot/backend/internal/service"
	"github.com/shiftbot/backend/internal/store"
)

type Handler struct {
	Processor *service.Processor
	Store     *store.Store
	Logger    zerolog.Logger
}

// WebhookPayload is the GroupMe bot callback body. Preview is not part of
// GroupMe's callback; test harnesses set it to request a dry run.
type WebhookPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
	GroupID    string `json:"group_id"`
	SenderID   string `json:"sender_id"`
	SenderType string `json:"sender_type"`
	System     bool   `json:"system"`
	Preview    bool   `json:"preview"`
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary GroupMe webhook
// @Description Receives a GroupMe bot callback and runs it through the triage pipeline
// @Tags webhook
// @Accept json
// @Produce json
// @Param preview query bool false "Echo the calendar command without applying it"
// @Success 200 {object} service.Result
// @Failure 400 {object} map[string]any
// @Router /webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	var payload WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid webhook payload", err.Error())
		return
	}

	// The bot's own posts and GroupMe system notices come back through the
	// callback too; dropping them here prevents feedback loops.
	if payload.System || payload.SenderType == "bot" {
		h.Logger.Debug().Str("sender_type", payload.SenderType).Msg("skipping non-user message")
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": "non-user message"})
		return
	}

	// The flag is honored from either the body or the query string.
	queryPreview, _ := strconv.ParseBool(c.Query("preview"))
	preview := payload.Preview || queryPreview

	msg := models.Message{
		SenderName: payload.Name,
		Text:       payload.Text,
		Timestamp:  payload.CreatedAt,
		GroupID:    payload.GroupID,
		MessageID:  payload.ID,
		SenderID:   payload.SenderID,
		Preview:    preview,
	}

	result := h.Processor.Process(c.Request.Context(), msg)
	c.JSON(http.StatusOK, result)
}

// @Summary Processing log
// @Description Lists the most recent message processing results
// @Tags logs
// @Produce json
// @Param limit query int false "Maximum entries to return" default(50)
// @Success 200 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /api/logs [get]
func (h *Handler) LogsList(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
		return
	}

	records, err := h.Store.RecentRecords(c.Request.Context(), limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list processing log")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "failed to list processing log", nil)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
