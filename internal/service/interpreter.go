package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/models"
)

const interpreterSystemPrompt = "You are a precise shift management interpreter. Always respond with valid JSON only."

// SimpleInterpreter asks the model for a single-shot structured parse of one
// message.
type SimpleInterpreter struct {
	Provider llm.Provider
	Logger   zerolog.Logger
}

// Interpret parses one message into an Interpretation. It never returns an
// error: any provider or parse failure yields a zero-confidence non-request
// carrying the failure in the reasoning field.
func (s *SimpleInterpreter) Interpret(ctx context.Context, senderName string, senderSquad int, senderRole, text string, timestamp int64) models.Interpretation {
	prompt := buildInterpreterPrompt(senderName, senderSquad, senderRole, text, timestamp)

	s.Logger.Info().Str("sender", senderName).Msg("interpreting message")

	resp, err := s.Provider.Chat(ctx, llm.Request{
		System:      interpreterSystemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.3,
		JSONOnly:    true,
	})
	if err != nil {
		return errorInterpretation(senderSquad, err)
	}

	raw, ok := extractJSON(resp.Content)
	if !ok {
		return errorInterpretation(senderSquad, fmt.Errorf("no JSON found in response"))
	}

	var interp models.Interpretation
	if err := json.Unmarshal([]byte(raw), &interp); err != nil {
		return errorInterpretation(senderSquad, err)
	}
	if err := interp.Validate(); err != nil {
		return errorInterpretation(senderSquad, fmt.Errorf("interpretation failed validation: %w", err))
	}

	if corrected := interp.Normalize(); corrected {
		s.Logger.Warn().
			Str("action", interp.Action).
			Msg("model contradiction: action set with is_shift_request false, corrected to true")
	}
	if interp.Squad == 0 {
		interp.Squad = senderSquad
	}

	s.Logger.Info().
		Bool("is_shift_request", interp.IsShiftRequest).
		Int("confidence", interp.Confidence).
		Msg("interpretation complete")
	return interp
}

func errorInterpretation(senderSquad int, err error) models.Interpretation {
	return models.Interpretation{
		IsShiftRequest: false,
		Squad:          senderSquad,
		Confidence:     0,
		Reasoning:      fmt.Sprintf("Error during interpretation: %v", err),
	}
}

// extractJSON slices the first top-level-looking JSON object out of model
// output, which may be wrapped in prose.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

func buildInterpreterPrompt(senderName string, senderSquad int, senderRole, text string, timestamp int64) string {
	// The message timestamp is "now" so relative references resolve against
	// when the message was sent, not when it is processed.
	now := time.Unix(timestamp, 0).Format("2006-01-02 15:04:05")

	squadStr := "Unknown"
	if senderSquad != 0 {
		squadStr = fmt.Sprintf("%d", senderSquad)
	}
	roleStr := senderRole
	if roleStr == "" {
		roleStr = "Unknown"
	}

	return fmt.Sprintf(`You are a rescue squad shift management assistant. Analyze the following group chat message and extract shift change information.

**Message Details:**
- Sender: %s
- Sender's Squad: %s
- Sender's Role: %s
- Message: "%s"
- Message Sent At: %s
- Current Date/Time (use this as "now"): %s

**Your Task:**
Extract and return a JSON object with the following structure:

{
  "is_shift_request": boolean,
  "action": "noCrew" | "addShift" | "obliterateShift" | null,
  "squad": number (34, 35, 42, 43, or 54),
  "date": "YYYYMMDD",
  "shift_start": "HHMM",
  "shift_end": "HHMM",
  "confidence": number (0-100),
  "reasoning": "Brief explanation of interpretation"
}

**Rules:**
1. If squad not explicitly mentioned in message, use sender's squad: %s
2. If sender mentions another squad explicitly, use that squad instead
3. Interpret colloquial time references:
   - "tonight" = today's evening shift (1800-0600 next day)
   - "tomorrow" = next day
   - "morning" = 0600-1800
   - "afternoon" = 1200-1800 (or use context)
   - "evening" = 1800-0600
   - "Saturday", "Sunday", etc. = next occurrence of that day; if today is that day, it means 7 days from now
4. Weekend shifts are 12 hours: 0600-1800 or 1800-0600
5. Weeknight shifts are 12 hours: 0600-1800 or 1800-0600
6. If specific times are mentioned (e.g., "1800 - midnight"), use those times
7. "midnight" = 0000, "noon" = 1200
8. When a shift spans midnight, the end time (like 0600) refers to the next day

**CRITICAL - Date Interpretation (Always Future Dates):**
- ALL date references are for FUTURE shifts, never past dates
- Current date is: %s
- If a month is mentioned (e.g., "March 15th"), determine if that date has already passed this year:
  * If the date HAS passed this year, use NEXT year
  * If the date has NOT passed yet this year, use THIS year

**IMPORTANT - Determining is_shift_request:**
- If the message mentions crew availability, staffing, shifts, or schedule changes, set is_shift_request: true
- Phrases like "no crew", "does not have a crew", "fully staffed", "crew available" mean is_shift_request: true
- If you can extract an action (noCrew, addShift, obliterateShift), is_shift_request MUST be true
- Only set is_shift_request: false for casual conversation, greetings, or off-topic messages
- Messages about future dates (like "March 15th") ARE shift requests

Respond ONLY with valid JSON. Do not include any explanation outside the JSON structure.`,
		senderName, squadStr, roleStr, text, now, now, squadStr, now)
}
