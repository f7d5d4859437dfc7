package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/models"
)

// Notifier posts proactive warnings back into the group chat.
type Notifier interface {
	SendWarning(ctx context.Context, text string) error
	SendCriticalAlert(ctx context.Context, text string) error
}

// AgentState is the single mutable record threaded through the workflow
// stages. Execution is strictly sequential per message.
type AgentState struct {
	OriginalMessage  string
	SenderName       string
	SenderSquad      int
	SenderRole       string
	MessageTimestamp int64

	Messages []llm.Message

	IsShiftRequest   bool
	Confidence       int
	ParsedRequests   []models.ParsedRequest
	Warnings         []string
	CriticalWarnings []string

	ValidationPassed  bool
	CommandsToExecute []models.ParsedRequest
	ExecutionResults  []ExecutionResult
}

// ExecutionResult is the outcome of dispatching one parsed request.
type ExecutionResult struct {
	Command  models.ParsedRequest `json:"command"`
	Status   string               `json:"status"`
	Response map[string]any       `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`
}

type workflowStage string

const (
	stageValidate     workflowStage = "validate"
	stageSendWarnings workflowStage = "send_warnings"
	stageExecute      workflowStage = "execute"
	stageTerminal     workflowStage = "terminal"
)

// AgenticInterpreter runs the tool-augmented multi-step workflow:
// interpret -> validate -> (send_warnings) -> execute.
type AgenticInterpreter struct {
	Provider            llm.Provider
	Tools               *Tools
	Calendar            *calendar.Client
	Notifier            Notifier
	ConfidenceThreshold int
	Logger              zerolog.Logger
}

// Run processes one message through the workflow and returns the final
// state. It never returns an error; failures degrade to a terminal
// non-request state.
func (a *AgenticInterpreter) Run(ctx context.Context, text, senderName string, senderSquad int, senderRole string, timestamp int64) AgentState {
	state := AgentState{
		OriginalMessage:  text,
		SenderName:       senderName,
		SenderSquad:      senderSquad,
		SenderRole:       senderRole,
		MessageTimestamp: timestamp,
		ValidationPassed: true,
	}

	a.interpret(ctx, &state)
	if a.routeAfterInterpret(&state) == stageTerminal {
		return state
	}

	a.validate(&state)
	switch a.routeAfterValidate(&state) {
	case stageTerminal:
		return state
	case stageSendWarnings:
		a.sendWarnings(ctx, &state)
	}

	a.execute(ctx, &state)
	return state
}

// agenticAnalysis is the JSON shape the model must produce after its tool
// calls.
type agenticAnalysis struct {
	IsShiftRequest   bool                   `json:"is_shift_request"`
	Confidence       int                    `json:"confidence"`
	ParsedRequests   []models.ParsedRequest `json:"parsed_requests"`
	Warnings         []string               `json:"warnings"`
	CriticalWarnings []string               `json:"critical_warnings"`
	Reasoning        string                 `json:"reasoning"`
}

// interpret drives the two-turn tool conversation: the first turn may issue
// tool calls, which are executed and fed back before the second turn yields
// the final JSON analysis.
func (a *AgenticInterpreter) interpret(ctx context.Context, state *AgentState) {
	a.Logger.Info().Msg("workflow stage: interpret")

	state.Messages = []llm.Message{{Role: "user", Content: state.OriginalMessage}}
	system := a.buildSystemPrompt(state)

	resp, err := a.Provider.Chat(ctx, llm.Request{
		System:      system,
		Messages:    state.Messages,
		Tools:       a.Tools.Definitions(),
		Temperature: 0.3,
	})
	if err != nil {
		a.failInterpret(state, fmt.Errorf("model call failed: %w", err))
		return
	}

	if len(resp.ToolCalls) > 0 {
		state.Messages = append(state.Messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := a.Tools.Execute(ctx, call)
			state.Messages = append(state.Messages, llm.Message{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    result,
			})
		}
		state.Messages = append(state.Messages, llm.Message{
			Role:    "user",
			Content: "Based on the tool results above, provide your complete analysis in the required JSON format as specified in the system prompt.",
		})

		resp, err = a.Provider.Chat(ctx, llm.Request{
			System:      system,
			Messages:    state.Messages,
			Temperature: 0.3,
		})
		if err != nil {
			a.failInterpret(state, fmt.Errorf("final analysis call failed: %w", err))
			return
		}
	}
	state.Messages = append(state.Messages, llm.Message{Role: "assistant", Content: resp.Content})

	raw, ok := extractJSON(resp.Content)
	if !ok {
		// No JSON anywhere in the final turn: treat as off-topic.
		state.IsShiftRequest = false
		state.Confidence = 0
		return
	}

	var analysis agenticAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		a.failInterpret(state, fmt.Errorf("failed to parse analysis: %w", err))
		return
	}

	state.IsShiftRequest = analysis.IsShiftRequest
	state.Confidence = analysis.Confidence
	state.ParsedRequests = analysis.ParsedRequests
	state.Warnings = analysis.Warnings
	state.CriticalWarnings = analysis.CriticalWarnings

	a.Logger.Info().
		Int("parsed_requests", len(state.ParsedRequests)).
		Int("warnings", len(state.Warnings)).
		Int("critical_warnings", len(state.CriticalWarnings)).
		Msg("interpretation parsed")
}

func (a *AgenticInterpreter) failInterpret(state *AgentState, err error) {
	a.Logger.Error().Err(err).Msg("interpret stage failed")
	state.IsShiftRequest = false
	state.Confidence = 0
	state.ParsedRequests = nil
	state.Warnings = []string{fmt.Sprintf("Error interpreting message: %v", err)}
	state.CriticalWarnings = nil
}

func (a *AgenticInterpreter) routeAfterInterpret(state *AgentState) workflowStage {
	if !state.IsShiftRequest {
		a.Logger.Info().Msg("not a shift request, ending workflow")
		return stageTerminal
	}
	if state.Confidence < a.ConfidenceThreshold {
		a.Logger.Info().Int("confidence", state.Confidence).Msg("confidence too low, ending workflow")
		return stageTerminal
	}
	if len(state.ParsedRequests) == 0 {
		a.Logger.Info().Msg("no parsed requests, ending workflow")
		return stageTerminal
	}
	return stageValidate
}

// validate currently only promotes parsed requests to commands; it is the
// seam for stronger checks such as cross-referencing crew counts.
func (a *AgenticInterpreter) validate(state *AgentState) {
	a.Logger.Info().Msg("workflow stage: validate")
	state.CommandsToExecute = state.ParsedRequests
	state.ValidationPassed = true
}

func (a *AgenticInterpreter) routeAfterValidate(state *AgentState) workflowStage {
	if !state.ValidationPassed {
		return stageTerminal
	}
	if len(state.Warnings)+len(state.CriticalWarnings) > 0 {
		return stageSendWarnings
	}
	return stageExecute
}

// sendWarnings posts critical alerts first, then regular warnings. Failure
// to notify never blocks command execution.
func (a *AgenticInterpreter) sendWarnings(ctx context.Context, state *AgentState) {
	total := len(state.Warnings) + len(state.CriticalWarnings)
	a.Logger.Info().Int("count", total).Msg("workflow stage: send warnings")

	if a.Notifier == nil {
		return
	}
	for _, w := range state.CriticalWarnings {
		if err := a.Notifier.SendCriticalAlert(ctx, w); err != nil {
			a.Logger.Error().Err(err).Msg("failed to send critical alert")
		}
	}
	for _, w := range state.Warnings {
		if err := a.Notifier.SendWarning(ctx, w); err != nil {
			a.Logger.Error().Err(err).Msg("failed to send warning")
		}
	}
}

// execute dispatches each command once. A failed command is recorded and
// does not prevent the rest from being attempted.
func (a *AgenticInterpreter) execute(ctx context.Context, state *AgentState) {
	a.Logger.Info().Int("commands", len(state.CommandsToExecute)).Msg("workflow stage: execute")

	for _, req := range state.CommandsToExecute {
		if req.Action != models.ActionNoCrew && req.Action != models.ActionAddShift && req.Action != models.ActionObliterateShift {
			continue
		}

		cmd, err := models.NewCalendarCommand(req.Action, req.Squad, req.Date, req.ShiftStart, req.ShiftEnd, false)
		if err != nil {
			state.ExecutionResults = append(state.ExecutionResults, ExecutionResult{
				Command: req,
				Status:  "error",
				Error:   err.Error(),
			})
			a.Logger.Error().Err(err).Str("action", req.Action).Msg("command failed validation")
			continue
		}

		response, err := a.Calendar.SendCommand(ctx, cmd)
		if err != nil {
			state.ExecutionResults = append(state.ExecutionResults, ExecutionResult{
				Command: req,
				Status:  "error",
				Error:   err.Error(),
			})
			a.Logger.Error().Err(err).Str("action", req.Action).Msg("command dispatch failed")
			continue
		}

		state.ExecutionResults = append(state.ExecutionResults, ExecutionResult{
			Command:  req,
			Status:   "success",
			Response: response,
		})
		a.Logger.Info().Str("action", req.Action).Int("squad", req.Squad).Msg("command executed")
	}
}

func (a *AgenticInterpreter) buildSystemPrompt(state *AgentState) string {
	now := time.Unix(state.MessageTimestamp, 0).Format("2006-01-02 15:04:05")

	squadStr := "Unknown"
	if state.SenderSquad != 0 {
		squadStr = fmt.Sprintf("%d", state.SenderSquad)
	}
	roleStr := state.SenderRole
	if roleStr == "" {
		roleStr = "Unknown"
	}

	return fmt.Sprintf(`You are an intelligent rescue squad shift management assistant.

**Current Context:**
- Current Date/Time: %s
- Sender: %s
- Sender's Squad: %s
- Sender's Role: %s

**Your Task:**
Analyze the message and use the available tools to:
1. Check the current schedule for relevant dates and squads
2. Verify that requested changes make sense
3. Identify any warnings or conflicts
4. Extract the list of commands to execute

**Available Tools:**
- get_schedule: Fetch current schedule for a date range
- check_squad_scheduled: Check if a specific squad is scheduled
- count_active_crews: Count how many crews are active during a shift
- parse_time_reference: Parse natural language time references

**Important Rules:**
1. ALWAYS check the schedule before making recommendations
2. If removing a crew would leave zero crews on duty, add a CRITICAL warning
3. If a user expects a squad to be scheduled but it's not (or vice versa), add a warning
4. Parse complex messages that contain multiple requests
5. For each action (noCrew, addShift, obliterateShift), verify it's appropriate

**Response Format:**
After using tools to gather information, respond with a JSON object:
{
    "is_shift_request": true/false,
    "confidence": 0-100,
    "parsed_requests": [
        {"action": "noCrew", "squad": 42, "date": "20251203", "shift_start": "0000", "shift_end": "0600"}
    ],
    "warnings": ["Warning message 1"],
    "critical_warnings": ["Critical warning 1"],
    "reasoning": "Explanation of your analysis"
}

**Message to analyze:**
"%s"

Begin by using the tools to check the schedule, then provide your analysis.`,
		now, state.SenderName, squadStr, roleStr, state.OriginalMessage)
}
