package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/models"
	"github.com/shiftbot/backend/internal/roster"
)

// shiftKeywords is the cheap high-recall filter that keeps unrelated chatter
// away from the model.
var shiftKeywords = []string{
	"crew",
	"shift",
	"squad",
	"tonight",
	"tomorrow",
	"morning",
	"afternoon",
	"evening",
	"saturday",
	"sunday",
	"monday",
	"tuesday",
	"wednesday",
	"thursday",
	"friday",
	"staffed",
	"no crew",
	"covering",
}

// FallbackClassifier answers whether a message with no keyword hits might
// still be a shift request. Implementations must not fail loudly: any error
// counts as "no evidence found".
type FallbackClassifier interface {
	MightBeShiftRequest(ctx context.Context, text string) bool
}

// Gate decides whether an inbound message is worth interpreting.
type Gate struct {
	Roster   *roster.Roster
	Fallback FallbackClassifier
	Logger   zerolog.Logger
}

// ShouldProcess applies authorization, then the keyword heuristic, then the
// optional model fallback.
func (g *Gate) ShouldProcess(ctx context.Context, msg models.Message) bool {
	if !g.Roster.IsAuthorized(msg.SenderName) {
		g.Logger.Info().Str("sender", msg.SenderName).Msg("ignoring message from unauthorized sender")
		return false
	}

	lower := strings.ToLower(msg.Text)
	for _, kw := range shiftKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	g.Logger.Debug().Str("message_id", msg.MessageID).Msg("no shift keywords matched")
	if g.Fallback != nil && g.Fallback.MightBeShiftRequest(ctx, msg.Text) {
		g.Logger.Info().Str("message_id", msg.MessageID).Msg("fallback classifier flagged potential shift request")
		return true
	}
	return false
}

const classifierSystemPrompt = "You are a precise classifier. Answer only 'yes' or 'no'."

const classifierPromptTemplate = `You are analyzing messages for a rescue squad shift management system.

Context: This is a rescue squad calendar system where chiefs and members coordinate crew availability for shifts. Squads (34, 35, 42, 43, 54) need to staff 12-hour shifts (typically 0600-1800 or 1800-0600).

Message: "%s"

Question: Does this message seem like a request to add, remove, or modify crew availability for a shift? This could include:
- Reporting that a crew is unavailable
- Confirming crew availability
- Requesting coverage
- Canceling or modifying a scheduled shift
- Any scheduling or staffing issue related to rescue squad shifts

Answer with ONLY "yes" or "no" (lowercase).`

func classifierPrompt(text string) string {
	return fmt.Sprintf(classifierPromptTemplate, text)
}

// LLMClassifier is the advisory yes/no fallback behind the keyword filter.
type LLMClassifier struct {
	Provider llm.Provider
	Logger   zerolog.Logger
}

func (c *LLMClassifier) MightBeShiftRequest(ctx context.Context, text string) bool {
	resp, err := c.Provider.Chat(ctx, llm.Request{
		System:      classifierSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: classifierPrompt(text)}},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		c.Logger.Warn().Err(err).Msg("fallback classification failed, defaulting to no")
		return false
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	c.Logger.Debug().Str("answer", answer).Msg("fallback classification")
	return answer == "yes"
}
