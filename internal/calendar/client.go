// Package calendar talks to the external shift calendar service. All
// operations ride one GET endpoint selected by an action query parameter.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiftbot/backend/internal/models"
)

var ErrStatus = errors.New("calendar service error status")

// RequestSigner authenticates an outbound request when the execution
// environment requires it. A nil signer sends plain requests.
type RequestSigner interface {
	Sign(req *http.Request) error
}

type Client struct {
	BaseURL string
	Client  *http.Client
	Signer  RequestSigner
	Logger  zerolog.Logger
}

// Shift is one squad's coverage window on a schedule date.
type Shift struct {
	Squad      int    `json:"squad"`
	ShiftStart string `json:"shift_start"`
	ShiftEnd   string `json:"shift_end"`
	CrewStatus string `json:"crew_status"`
}

type ScheduleDate struct {
	Date   string  `json:"date"`
	Shifts []Shift `json:"shifts"`
}

type Schedule struct {
	Dates []ScheduleDate `json:"dates"`
}

func (c *Client) httpClient() *http.Client {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return c.Client
}

func (c *Client) get(ctx context.Context, params map[string]string) (*http.Response, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.Signer != nil {
		if err := c.Signer.Sign(req); err != nil {
			return nil, fmt.Errorf("sign calendar request: %w", err)
		}
	}
	return c.httpClient().Do(req)
}

// SendCommand dispatches one validated command to the calendar service.
// The response body is parsed as JSON, falling back to a generic success
// wrapper around the raw text.
func (c *Client) SendCommand(ctx context.Context, cmd models.CalendarCommand) (map[string]any, error) {
	c.Logger.Info().
		Str("action", cmd.Action).
		Int("squad", cmd.Squad).
		Str("date", cmd.Date).
		Str("window", cmd.ShiftStart+"-"+cmd.ShiftEnd).
		Bool("preview", cmd.Preview).
		Msg("sending calendar command")

	resp, err := c.get(ctx, cmd.ToQueryParams())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return map[string]any{"status": "success", "message": string(raw)}, nil
	}
	return body, nil
}

// SendCommandWithRetry wraps SendCommand with up to maxAttempts sequential
// attempts. Retries are immediate; after exhaustion the last error is
// returned.
func (c *Client) SendCommandWithRetry(ctx context.Context, cmd models.CalendarCommand, maxAttempts int) (map[string]any, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := c.SendCommand(ctx, cmd)
		if err == nil {
			return body, nil
		}
		lastErr = err
		c.Logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("calendar command failed")
	}
	c.Logger.Error().Err(lastErr).Int("max_attempts", maxAttempts).Msg("all calendar attempts failed")
	return nil, lastErr
}

// GetSchedule queries the schedule for an inclusive date range. A squad of 0
// means no squad filter.
func (c *Client) GetSchedule(ctx context.Context, startDate, endDate string, squad int) (Schedule, error) {
	params := map[string]string{
		"action":     "getSchedule",
		"start_date": startDate,
		"end_date":   endDate,
	}
	if squad != 0 {
		params["squad"] = strconv.Itoa(squad)
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		return Schedule{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Schedule{}, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	var schedule Schedule
	if err := json.NewDecoder(resp.Body).Decode(&schedule); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}
