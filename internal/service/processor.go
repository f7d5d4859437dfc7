package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/config"
	"github.com/shiftbot/backend/internal/models"
	"github.com/shiftbot/backend/internal/roster"
)

const defaultMaxDispatchAttempts = 3

// Result is the record of one message's trip through the pipeline. Every
// outcome, including failures, resolves into one of these; Process never
// returns an error.
type Result struct {
	MessageID        string                 `json:"message_id"`
	Sender           string                 `json:"sender"`
	Timestamp        time.Time              `json:"timestamp"`
	Processed        bool                   `json:"processed"`
	Reason           string                 `json:"reason"`
	Interpretation   *models.Interpretation `json:"interpretation,omitempty"`
	CommandSent      bool                   `json:"command_sent"`
	CalendarResponse map[string]any         `json:"calendar_response,omitempty"`
	ExecutionResults []ExecutionResult      `json:"execution_results,omitempty"`
	Warnings         []string               `json:"warnings,omitempty"`
	CriticalWarnings []string               `json:"critical_warnings,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

// Recorder persists diagnostic records for later review. A nil Recorder
// disables recording (the serverless deployment relies on platform logs
// instead).
type Recorder interface {
	RecordProcessing(ctx context.Context, msg models.Message, result Result) error
}

// Processor is the single entry point the webhook and poller invoke. It owns
// the lifetime of one message's processing from gate to dispatch.
type Processor struct {
	Gate                *Gate
	Roster              *roster.Roster
	Simple              *SimpleInterpreter
	Agentic             *AgenticInterpreter
	Calendar            *calendar.Client
	Recorder            Recorder
	Mode                string
	ConfidenceThreshold int
	MaxAttempts         int
	Logger              zerolog.Logger
}

// Process runs one message through gate, interpretation and dispatch.
func (p *Processor) Process(ctx context.Context, msg models.Message) Result {
	p.Logger.Info().Str("sender", msg.SenderName).Str("message_id", msg.MessageID).Msg("processing message")

	result := Result{
		MessageID: msg.MessageID,
		Sender:    msg.SenderName,
		Timestamp: time.Now().UTC(),
	}

	if !p.Gate.ShouldProcess(ctx, msg) {
		result.Reason = "Filtered out (no keywords or unauthorized sender)"
		p.record(ctx, msg, result)
		return result
	}

	senderSquad := p.Roster.MemberSquad(msg.SenderName)
	senderRole := p.Roster.MemberRole(msg.SenderName)

	if p.Mode == config.ModeAgentic && p.Agentic != nil {
		return p.processAgentic(ctx, msg, senderSquad, senderRole, result)
	}
	return p.processSimple(ctx, msg, senderSquad, senderRole, result)
}

func (p *Processor) processSimple(ctx context.Context, msg models.Message, senderSquad int, senderRole string, result Result) Result {
	interp := p.Simple.Interpret(ctx, msg.SenderName, senderSquad, senderRole, msg.Text, msg.Timestamp)
	result.Interpretation = &interp

	if !interp.IsShiftRequest {
		result.Reason = "Not a shift request"
		p.record(ctx, msg, result)
		return result
	}

	if interp.Confidence < p.ConfidenceThreshold {
		result.Reason = fmt.Sprintf("Low confidence (%d < %d)", interp.Confidence, p.ConfidenceThreshold)
		p.Logger.Warn().Int("confidence", interp.Confidence).Msg("low confidence interpretation, flagging for manual review")
		p.record(ctx, msg, result)
		return result
	}

	if !interp.Complete() {
		result.Reason = "Missing required fields in interpretation"
		p.record(ctx, msg, result)
		return result
	}

	cmd, err := models.NewCalendarCommand(interp.Action, interp.Squad, interp.Date, interp.ShiftStart, interp.ShiftEnd, msg.Preview)
	if err != nil {
		result.Reason = fmt.Sprintf("Invalid command: %v", err)
		result.Error = err.Error()
		p.record(ctx, msg, result)
		return result
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxDispatchAttempts
	}
	response, err := p.Calendar.SendCommandWithRetry(ctx, cmd, maxAttempts)
	if err != nil {
		result.Reason = fmt.Sprintf("Error: %v", err)
		result.Error = err.Error()
		p.record(ctx, msg, result)
		return result
	}

	result.Processed = true
	result.CommandSent = true
	result.CalendarResponse = response
	result.Reason = "Successfully processed and command sent"
	p.record(ctx, msg, result)

	p.Logger.Info().Str("message_id", msg.MessageID).Msg("message processed and command sent")
	return result
}

func (p *Processor) processAgentic(ctx context.Context, msg models.Message, senderSquad int, senderRole string, result Result) Result {
	state := p.Agentic.Run(ctx, msg.Text, msg.SenderName, senderSquad, senderRole, msg.Timestamp)

	result.Interpretation = &models.Interpretation{
		IsShiftRequest: state.IsShiftRequest,
		Confidence:     state.Confidence,
	}
	result.Warnings = state.Warnings
	result.CriticalWarnings = state.CriticalWarnings
	result.ExecutionResults = state.ExecutionResults

	if !state.IsShiftRequest {
		result.Reason = "Not a shift request"
		p.record(ctx, msg, result)
		return result
	}

	if state.Confidence < p.ConfidenceThreshold {
		result.Reason = fmt.Sprintf("Low confidence (%d < %d)", state.Confidence, p.ConfidenceThreshold)
		p.Logger.Warn().Int("confidence", state.Confidence).Msg("low confidence interpretation, flagging for manual review")
		p.record(ctx, msg, result)
		return result
	}

	if len(state.ExecutionResults) == 0 {
		result.Reason = "No commands executed"
		p.record(ctx, msg, result)
		return result
	}

	result.Processed = true
	result.CommandSent = true
	result.Reason = fmt.Sprintf("Successfully processed %d command(s)", len(state.ExecutionResults))
	p.record(ctx, msg, result)

	p.Logger.Info().Str("message_id", msg.MessageID).Int("commands", len(state.ExecutionResults)).Msg("agentic workflow complete")
	return result
}

func (p *Processor) record(ctx context.Context, msg models.Message, result Result) {
	if p.Recorder == nil {
		return
	}
	if err := p.Recorder.RecordProcessing(ctx, msg, result); err != nil {
		p.Logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to record processing result")
	}
}
