package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/roster"
)

// scriptedProvider replays a fixed sequence of responses, failing the test
// if called more often than scripted.
type scriptedProvider struct {
	t         *testing.T
	responses []llm.Response
	errs      []error
	calls     int
	requests  []llm.Request
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Chat(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.calls >= len(s.responses) {
		s.t.Fatalf("unexpected provider call %d", s.calls+1)
	}
	resp := s.responses[s.calls]
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	return resp, err
}

// failingProvider always errors.
type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Chat(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{}, fmt.Errorf("provider unavailable")
}

func loadTestRoster(t *testing.T) *roster.Roster {
	t.Helper()
	content := `{
  "members": [
    {"name": "George Nowakowski", "title": "Chief", "squad": 43, "groupme_name": "George Nowakowski"},
    {"name": "Katie Sowden", "title": "Chief", "squad": 35, "groupme_name": "Katie Sowden"}
  ]
}`
	path := filepath.Join(t.TempDir(), "roster.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	r, err := roster.Load(path)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	return r
}
