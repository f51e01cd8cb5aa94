// internal/app/system/bot/client.go

// Package bot is a thin client for the OneBot-compatible HTTP API the bot
// host exposes. It is the engine's only external side-effect surface:
// delivering reminders and leaving groups. Every call carries a bounded
// timeout and is best-effort from the engine's point of view.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNoEndpoints is returned when no bot endpoint is configured.
var ErrNoEndpoints = errors.New("no bot endpoints configured")

// Endpoint is one bot host instance. ID matches the managed_by_bot value
// the consoles store on a membership record.
type Endpoint struct {
	ID  string
	URL string
}

// ParseEndpoints reads the bot_api_urls config value: comma-separated
// entries of either "bot_id=http://host:port" or a bare URL (the URL then
// doubles as the id).
func ParseEndpoints(s string) []Endpoint {
	var out []Endpoint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, rest, ok := strings.Cut(part, "="); ok && !strings.Contains(id, "://") {
			out = append(out, Endpoint{ID: strings.TrimSpace(id), URL: strings.TrimRight(strings.TrimSpace(rest), "/")})
			continue
		}
		out = append(out, Endpoint{ID: part, URL: strings.TrimRight(part, "/")})
	}
	return out
}

// Client calls the bot host(s) over HTTP.
type Client struct {
	endpoints []Endpoint
	token     string
	http      *http.Client
	log       *zap.Logger
}

// New builds a client. The timeout bounds every individual API call.
func New(endpoints []Endpoint, accessToken string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoints: endpoints,
		token:     accessToken,
		http:      &http.Client{Timeout: timeout},
		log:       logger,
	}
}

// ordered returns the endpoints with the group's preferred bot first, so a
// reminder goes out through the bot that manages the group when possible
// and falls back to the others.
func (c *Client) ordered(preferred string) []Endpoint {
	if preferred == "" {
		return c.endpoints
	}
	out := make([]Endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		if ep.ID == preferred {
			out = append(out, ep)
		}
	}
	for _, ep := range c.endpoints {
		if ep.ID != preferred {
			out = append(out, ep)
		}
	}
	return out
}

type apiResponse struct {
	Status  string `json:"status"`
	RetCode int    `json:"retcode"`
	Message string `json:"message,omitempty"`
}

func (c *Client) call(ctx context.Context, ep Endpoint, action string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", action, resp.StatusCode)
	}

	var r apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("%s: decoding response: %w", action, err)
	}
	if r.RetCode != 0 {
		return fmt.Errorf("%s: bot host returned retcode %d (%s)", action, r.RetCode, r.Message)
	}
	return nil
}

// groupIDValue sends numeric group ids as numbers, which is what OneBot
// hosts expect, while leaving non-numeric ids untouched.
func groupIDValue(groupID string) any {
	if n, err := strconv.ParseInt(groupID, 10, 64); err == nil {
		return n
	}
	return groupID
}

// NotifyGroup sends content to the group, preferring the managing bot and
// falling back to the remaining endpoints. It returns the last error when
// every endpoint fails.
func (c *Client) NotifyGroup(ctx context.Context, groupID, preferredBot, content string) error {
	lastErr := ErrNoEndpoints
	for _, ep := range c.ordered(preferredBot) {
		err := c.call(ctx, ep, "send_group_msg", map[string]any{
			"group_id": groupIDValue(groupID),
			"message":  content,
		})
		if err == nil {
			return nil
		}
		c.log.Debug("send_group_msg failed",
			zap.String("bot", ep.ID),
			zap.String("group_id", groupID),
			zap.Error(err))
		lastErr = err
	}
	return fmt.Errorf("notify group %s: %w", groupID, lastErr)
}

// LeaveGroup makes a bot leave the group, same preference and fallback
// rules as NotifyGroup.
func (c *Client) LeaveGroup(ctx context.Context, groupID, preferredBot string) error {
	lastErr := ErrNoEndpoints
	for _, ep := range c.ordered(preferredBot) {
		err := c.call(ctx, ep, "set_group_leave", map[string]any{
			"group_id":   groupIDValue(groupID),
			"is_dismiss": false,
		})
		if err == nil {
			return nil
		}
		c.log.Debug("set_group_leave failed",
			zap.String("bot", ep.ID),
			zap.String("group_id", groupID),
			zap.Error(err))
		lastErr = err
	}
	return fmt.Errorf("leave group %s: %w", groupID, lastErr)
}
