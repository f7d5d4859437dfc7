package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/config"
	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/models"
)

type capturingRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (c *capturingRecorder) RecordProcessing(_ context.Context, _ models.Message, result Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return nil
}

func (c *capturingRecorder) last(t *testing.T) Result {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		t.Fatalf("nothing recorded")
	}
	return c.results[len(c.results)-1]
}

func simpleInterpretation(t *testing.T, fields map[string]any) llm.Response {
	t.Helper()
	b, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal interpretation: %v", err)
	}
	return llm.Response{Content: string(b)}
}

func newTestProcessor(t *testing.T, provider llm.Provider, cal *calendar.Client, rec Recorder) *Processor {
	t.Helper()
	return &Processor{
		Gate:                &Gate{Roster: loadTestRoster(t), Logger: zerolog.Nop()},
		Roster:              loadTestRoster(t),
		Simple:              &SimpleInterpreter{Provider: provider, Logger: zerolog.Nop()},
		Calendar:            cal,
		Recorder:            rec,
		Mode:                config.ModeSimple,
		ConfidenceThreshold: 70,
		Logger:              zerolog.Nop(),
	}
}

func TestProcessorNoCrewTonight(t *testing.T) {
	var params atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params.Store(r.URL.Query())
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "message": "shift updated"})
	}))
	defer srv.Close()

	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": true,
			"action":           "noCrew",
			"squad":            43,
			"date":             "20251122",
			"shift_start":      "1800",
			"shift_end":        "0600",
			"confidence":       95,
			"reasoning":        "Chief reports no crew for tonight's shift",
		}),
	}}
	rec := &capturingRecorder{}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}, rec)

	result := p.Process(context.Background(), models.Message{
		SenderName: "George Nowakowski",
		Text:       "Squad 43 will not have a crew tonight",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-1",
	})

	if !result.Processed || !result.CommandSent {
		t.Fatalf("expected processed result, got %+v", result)
	}
	if result.Reason != "Successfully processed and command sent" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.CalendarResponse["message"] != "shift updated" {
		t.Fatalf("calendar response not propagated: %+v", result.CalendarResponse)
	}

	q := params.Load().(url.Values)
	if q.Get("action") != "noCrew" || q.Get("squad") != "43" || q.Get("date") != "20251122" {
		t.Fatalf("unexpected calendar params: %v", q)
	}
	if q.Get("preview") != "false" {
		t.Fatalf("live message must not request preview: %v", q)
	}

	if rec.last(t).MessageID != "msg-1" {
		t.Fatalf("result not recorded")
	}
}

func TestProcessorUnauthorizedSenderFiltered(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	provider := &scriptedProvider{t: t} // any call fails the test
	rec := &capturingRecorder{}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}, rec)

	result := p.Process(context.Background(), models.Message{
		SenderName: "Random Person",
		Text:       "no crew for squad 43 tonight",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-2",
	})

	if result.Processed {
		t.Fatalf("unauthorized sender must be filtered")
	}
	if result.Reason != "Filtered out (no keywords or unauthorized sender)" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if calls != 0 {
		t.Fatalf("filtered message must not reach the calendar")
	}
	if rec.last(t).Reason != result.Reason {
		t.Fatalf("filtered result not recorded")
	}
}

func TestProcessorKeywordlessMessageFiltered(t *testing.T) {
	provider := &scriptedProvider{t: t}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: "http://unused", Logger: zerolog.Nop()}, nil)

	result := p.Process(context.Background(), models.Message{
		SenderName: "George Nowakowski",
		Text:       "thanks for the birthday wishes",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-3",
	})

	if result.Processed || !strings.Contains(result.Reason, "Filtered out") {
		t.Fatalf("keywordless message without fallback must be filtered: %+v", result)
	}
}

func TestProcessorNotShiftRequest(t *testing.T) {
	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": false,
			"confidence":       90,
			"reasoning":        "Scheduling question, not a change request",
		}),
	}}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: "http://unused", Logger: zerolog.Nop()}, nil)

	result := p.Process(context.Background(), models.Message{
		SenderName: "Katie Sowden",
		Text:       "who is covering tonight?",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-4",
	})

	if result.Processed || result.Reason != "Not a shift request" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessorLowConfidence(t *testing.T) {
	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": true,
			"action":           "noCrew",
			"squad":            35,
			"date":             "20251122",
			"shift_start":      "1800",
			"shift_end":        "0600",
			"confidence":       55,
		}),
	}}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: "http://unused", Logger: zerolog.Nop()}, nil)

	result := p.Process(context.Background(), models.Message{
		SenderName: "Katie Sowden",
		Text:       "35 might not have a crew tonight",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-5",
	})

	if result.Processed {
		t.Fatalf("low confidence must not dispatch")
	}
	if result.Reason != "Low confidence (55 < 70)" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestProcessorMissingFields(t *testing.T) {
	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": true,
			"action":           "noCrew",
			"squad":            35,
			"confidence":       90,
		}),
	}}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: "http://unused", Logger: zerolog.Nop()}, nil)

	result := p.Process(context.Background(), models.Message{
		SenderName: "Katie Sowden",
		Text:       "no crew for 35",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-6",
	})

	if result.Processed || result.Reason != "Missing required fields in interpretation" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestProcessorPreviewPassthrough(t *testing.T) {
	var preview atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preview.Store(r.URL.Query().Get("preview"))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "preview": true})
	}))
	defer srv.Close()

	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": true,
			"action":           "addShift",
			"squad":            35,
			"date":             "20251123",
			"shift_start":      "0600",
			"shift_end":        "1800",
			"confidence":       92,
		}),
	}}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}, nil)

	result := p.Process(context.Background(), models.Message{
		SenderName: "Katie Sowden",
		Text:       "add 35 tomorrow morning",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-7",
		Preview:    true,
	})

	if !result.Processed {
		t.Fatalf("preview command should still dispatch: %+v", result)
	}
	if preview.Load().(string) != "true" {
		t.Fatalf("preview flag must pass through to the calendar")
	}
}

func TestProcessorDispatchFailure(t *testing.T) {
	attempts := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	provider := &scriptedProvider{t: t, responses: []llm.Response{
		simpleInterpretation(t, map[string]any{
			"is_shift_request": true,
			"action":           "noCrew",
			"squad":            43,
			"date":             "20251122",
			"shift_start":      "1800",
			"shift_end":        "0600",
			"confidence":       95,
		}),
	}}
	rec := &capturingRecorder{}
	p := newTestProcessor(t, provider, &calendar.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}, rec)

	result := p.Process(context.Background(), models.Message{
		SenderName: "George Nowakowski",
		Text:       "no crew tonight for 43",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-8",
	})

	if result.Processed || result.CommandSent {
		t.Fatalf("failed dispatch must not be marked processed: %+v", result)
	}
	if result.Error == "" || !strings.HasPrefix(result.Reason, "Error:") {
		t.Fatalf("dispatch error must surface in the result: %+v", result)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 dispatch attempts, got %d", got)
	}
	if rec.last(t).Error == "" {
		t.Fatalf("failure not recorded")
	}
}

func TestProcessorAgenticMode(t *testing.T) {
	var commands []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		commands = append(commands, r.URL.Query().Get("action"))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()
	cal := &calendar.Client{BaseURL: srv.URL, Logger: zerolog.Nop()}

	provider := &scriptedProvider{t: t, responses: []llm.Response{
		analysisResponse(t, map[string]any{
			"is_shift_request": true,
			"confidence":       90,
			"parsed_requests": []map[string]any{
				{"action": "noCrew", "squad": 43, "date": "20251122", "shift_start": "1800", "shift_end": "0600"},
				{"action": "addShift", "squad": 34, "date": "20251122", "shift_start": "1800", "shift_end": "0600"},
			},
		}),
	}}

	rec := &capturingRecorder{}
	p := newTestProcessor(t, provider, cal, rec)
	p.Mode = config.ModeAgentic
	p.Agentic = &AgenticInterpreter{
		Provider:            provider,
		Tools:               &Tools{Calendar: cal, Logger: zerolog.Nop()},
		Calendar:            cal,
		ConfidenceThreshold: 70,
		Logger:              zerolog.Nop(),
	}

	result := p.Process(context.Background(), models.Message{
		SenderName: "George Nowakowski",
		Text:       "43 is out tonight, 34 will cover",
		Timestamp:  saturdayNoon,
		MessageID:  "msg-9",
	})

	if !result.Processed {
		t.Fatalf("agentic result should be processed: %+v", result)
	}
	if result.Reason != "Successfully processed 2 command(s)" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if len(result.ExecutionResults) != 2 {
		t.Fatalf("execution results missing: %+v", result.ExecutionResults)
	}
	if len(commands) != 2 || commands[0] != "noCrew" || commands[1] != "addShift" {
		t.Fatalf("unexpected calendar traffic: %v", commands)
	}
	if rec.last(t).MessageID != "msg-9" {
		t.Fatalf("agentic result not recorded")
	}
}
