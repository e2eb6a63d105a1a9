// Package discord implements the Notification Dispatcher collaborator over
// the Discord REST API: per-approver DMs with reaction-style voting.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
)

const defaultAPIURL = "https://discord.com/api/v10"

// Client is a minimal Discord REST client.
type Client struct {
	apiURL string
	token  string
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(botToken string, logger zerolog.Logger) *Client {
	return &Client{
		apiURL: defaultAPIURL,
		token:  botToken,
		http:   &http.Client{},
		logger: logger.With().Str("service", "discord").Logger(),
	}
}

// NewClientWithURL is for tests pointing at a local server.
func NewClientWithURL(apiURL, botToken string, logger zerolog.Logger) *Client {
	c := NewClient(botToken, logger)
	c.apiURL = apiURL
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord %s %s: %s: %s", method, path, resp.Status, errBody)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateDM opens (or reuses) the DM channel with a user.
func (c *Client) CreateDM(ctx context.Context, userID int64) (int64, error) {
	var channel struct {
		ID string `json:"id"`
	}
	body := map[string]string{"recipient_id": strconv.FormatInt(userID, 10)}
	if err := c.do(ctx, "POST", "/users/@me/channels", body, &channel); err != nil {
		return 0, err
	}
	return strconv.ParseInt(channel.ID, 10, 64)
}

// SendMessage posts a message and returns its id.
func (c *Client) SendMessage(ctx context.Context, channelID int64, content, nonce string) (int64, error) {
	var msg struct {
		ID string `json:"id"`
	}
	body := map[string]string{"content": content, "nonce": nonce}
	path := fmt.Sprintf("/channels/%d/messages", channelID)
	if err := c.do(ctx, "POST", path, body, &msg); err != nil {
		return 0, err
	}
	return strconv.ParseInt(msg.ID, 10, 64)
}

// AddReaction seeds a reaction on a message.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID int64, emoji string) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/@me",
		channelID, messageID, url.PathEscape(emoji))
	return c.do(ctx, "PUT", path, nil, nil)
}
