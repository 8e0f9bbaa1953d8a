// Package gateway wraps the backend REST API into typed operations with a
// uniform error taxonomy. It never retries on its own; retry policy belongs
// to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ast-secret/inboxcore/internal/domain"
)

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:5000/api"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) CreateUser(ctx context.Context, username string, usePin bool, pin string, isPublic bool) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if usePin {
		if err := domain.ValidatePin(pin); err != nil {
			return nil, err
		}
	}
	var user domain.User
	err := c.do(ctx, http.MethodPost, "/users", map[string]any{
		"username": username,
		"usePin":   usePin,
		"pin":      pin,
		"isPublic": isPublic,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) FetchUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) FetchUserByUsername(ctx context.Context, name string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/users/by-username/"+url.PathEscape(name), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchMessages returns the inbox in server-defined order; callers must not
// assume it is chronological.
func (c *Client) FetchMessages(ctx context.Context, userID string) ([]*domain.Message, error) {
	var messages []*domain.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(userID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) SendMessage(ctx context.Context, recipientID, content string, isPublic bool) (*domain.Message, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}
	var msg domain.Message
	err := c.do(ctx, http.MethodPost, "/messages", map[string]any{
		"userId":   recipientID,
		"content":  content,
		"isPublic": isPublic,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// AddReaction returns the full updated message so callers can reconcile the
// server's authoritative counts instead of trusting a local increment.
func (c *Client) AddReaction(ctx context.Context, messageID, actingUserID string, kind domain.ReactionKind) (*domain.Message, error) {
	var msg domain.Message
	err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", map[string]any{
		"userId":       actingUserID,
		"reactionType": string(kind),
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, ownerID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(ownerID)+"/"+url.PathEscape(messageID), nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, messageID, ownerID string) (*domain.Message, error) {
	var msg domain.Message
	err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/read", map[string]any{
		"userId": ownerID,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) Reply(ctx context.Context, messageID, ownerID, text string) (*domain.Message, error) {
	if err := domain.ValidateContent(text); err != nil {
		return nil, err
	}
	var msg domain.Message
	err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reply", map[string]any{
		"userId": ownerID,
		"reply":  text,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return domain.WrapError(domain.CodeUnknown, "encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return domain.WrapError(domain.CodeUnknown, "build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NetworkFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatus(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.CodeServer, "decode response", err)
	}
	return nil
}

// mapStatus parses an error body once at the boundary. The "error" field is
// kept for display; branching happens only on the status code.
func mapStatus(resp *http.Response) error {
	message := fmt.Sprintf("unexpected status %d", resp.StatusCode)
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return domain.NewError(domain.CodeNotFound, message)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return domain.NewError(domain.CodeValidation, message)
	default:
		return domain.NewError(domain.CodeServer, message)
	}
}
