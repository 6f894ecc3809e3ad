package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"membership-bridge/internal/config"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	defaultTimeoutMs = 10_000
)

// Client is a thin JSON client for the messaging-platform bot API,
// covering only the methods this service calls.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(cfg config.Telegram, logger *slog.Logger) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultTimeoutMs
	}

	return &Client{
		token:   cfg.BotToken,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		logger:  logger,
	}
}

// InviteLink is a single-use, time-bounded credential for joining the group.
type InviteLink struct {
	URL         string `json:"invite_link"`
	MemberLimit int    `json:"member_limit"`
	ExpireDate  int64  `json:"expire_date"`
}

// CreateInviteLink requests a fresh invite link for chatID, admitting at
// most memberLimit joins and expiring at expiresAt.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, memberLimit int, expiresAt time.Time) (*InviteLink, error) {
	var link InviteLink
	err := c.call(ctx, "createChatInviteLink", map[string]any{
		"chat_id":      chatID,
		"member_limit": memberLimit,
		"expire_date":  expiresAt.Unix(),
	}, &link)
	if err != nil {
		return nil, errors.Wrap(err, "creating invite link")
	}
	return &link, nil
}

// SendMessage delivers a direct message to chatID. parseMode may be empty
// for plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		params["parse_mode"] = parseMode
	}

	if err := c.call(ctx, "sendMessage", params, nil); err != nil {
		return errors.Wrap(err, "sending message")
	}
	return nil
}

func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	err := c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "banning chat member")
	}
	return nil
}

// UnbanChatMember lifts a ban so the user may rejoin via a fresh invite.
// only_if_banned makes the call a no-op when no ban is in place.
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	err := c.call(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "unbanning chat member")
	}
	return nil
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "marshalling request")
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return errors.Wrapf(err, "unmarshalling response (status %s)", resp.Status)
	}

	if !api.Ok {
		if api.Description != "" {
			return errors.Errorf("%s: %s", method, api.Description)
		}
		return errors.Errorf("%s: error response: %s", method, resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(api.Result, out); err != nil {
			return errors.Wrap(err, "unmarshalling result")
		}
	}

	c.logger.DebugContext(ctx, "Platform call succeeded", "method", method)
	return nil
}
