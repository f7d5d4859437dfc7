// Package groupme wraps the two GroupMe API surfaces the bot needs: posting
// as a bot into the group chat and fetching group messages for the poller.
package groupme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBotPostURL = "https://api.groupme.com/v3/bots/post"
	defaultAPIBase    = "https://api.groupme.com/v3"

	warningBanner  = "⚠️ WARNING ⚠️"
	criticalBanner = "🚨 CRITICAL ALERT 🚨"
)

type Client struct {
	BotID    string
	APIToken string
	GroupID  string
	PostURL  string
	APIBase  string
	Client   *http.Client
	Logger   zerolog.Logger
}

// RawMessage is one message as returned by the group messages API.
type RawMessage struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"created_at"`
	GroupID    string `json:"group_id"`
	SenderID   string `json:"sender_id"`
	SenderType string `json:"sender_type"`
	System     bool   `json:"system"`
}

func (c *Client) httpClient() *http.Client {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return c.Client
}

// SendMessage posts plain text into the group chat as the bot.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	postURL := c.PostURL
	if postURL == "" {
		postURL = defaultBotPostURL
	}

	payload := map[string]string{
		"bot_id": c.BotID,
		"text":   text,
	}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("post to group chat: %w", err)
	}
	defer resp.Body.Close()

	// The bot post endpoint answers 202 Accepted on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("group chat post error: %s", resp.Status)
	}

	c.Logger.Info().Int("status", resp.StatusCode).Msg("message posted to group chat")
	return nil
}

func (c *Client) SendWarning(ctx context.Context, text string) error {
	return c.SendMessage(ctx, warningBanner+"\n"+text)
}

func (c *Client) SendCriticalAlert(ctx context.Context, text string) error {
	return c.SendMessage(ctx, criticalBanner+"\n"+text)
}

// FetchMessages retrieves up to limit recent group messages, newest first as
// the API returns them. beforeID pages further back when set.
func (c *Client) FetchMessages(ctx context.Context, limit int, beforeID string) ([]RawMessage, error) {
	base := c.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	q := url.Values{}
	q.Set("token", c.APIToken)
	q.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		q.Set("before_id", beforeID)
	}

	endpoint := fmt.Sprintf("%s/groups/%s/messages?%s", base, c.GroupID, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch group messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("group messages error: %s", resp.Status)
	}

	var body struct {
		Meta struct {
			Code int `json:"code"`
		} `json:"meta"`
		Response struct {
			Messages []RawMessage `json:"messages"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Meta.Code != 0 && body.Meta.Code != http.StatusOK {
		return nil, fmt.Errorf("group messages API code %d", body.Meta.Code)
	}

	c.Logger.Debug().Int("count", len(body.Response.Messages)).Msg("fetched group messages")
	return body.Response.Messages, nil
}
