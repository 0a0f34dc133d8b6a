package deliveryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/originpress/inkwell/pkg/apierr"
)

// ChatMessage is a rendered outbound chat notification.
type ChatMessage struct {
	Title string
	Body  string
}

// ChatClient reaches a chat platform's bot API: it can enumerate the
// chats the bot has joined and push a message to one of them.
type ChatClient interface {
	JoinedChatIDs(ctx context.Context) ([]string, error)
	Send(ctx context.Context, chatID string, msg ChatMessage) error
}

// WebhookChatClient is a generic app-id/app-secret bot client speaking a
// JSON webhook protocol, the shape shared by most group-chat bot APIs.
type WebhookChatClient struct {
	Endpoint   string
	AppID      string
	AppSecret  string
	HTTPClient *http.Client
}

// NewWebhookChatClient builds a WebhookChatClient with a bounded-timeout
// *http.Client when none is supplied.
func NewWebhookChatClient(endpoint, appID, appSecret string, httpClient *http.Client) *WebhookChatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChatClient{Endpoint: endpoint, AppID: appID, AppSecret: appSecret, HTTPClient: httpClient}
}

type joinedChatsResponse struct {
	ChatIDs []string `json:"chat_ids"`
}

// JoinedChatIDs implements ChatClient.
func (c *WebhookChatClient) JoinedChatIDs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/chats?app_id="+c.AppID, nil)
	if err != nil {
		return nil, apierr.Permanent("chat:build_request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.AppSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apierr.Transient("chat:joined_chats", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Transient("chat:joined_chats", err)
	}
	if err := statusToErr("chat:joined_chats", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var parsed joinedChatsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apierr.Permanent("chat:joined_chats", err)
	}
	return parsed.ChatIDs, nil
}

type sendChatRequest struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Send implements ChatClient.
func (c *WebhookChatClient) Send(ctx context.Context, chatID string, msg ChatMessage) error {
	payload, err := json.Marshal(sendChatRequest{ChatID: chatID, Title: msg.Title, Body: msg.Body})
	if err != nil {
		return apierr.Permanent("chat:marshal_request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/send?app_id="+c.AppID, bytes.NewReader(payload))
	if err != nil {
		return apierr.Permanent("chat:build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AppSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return apierr.Transient("chat:send", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Transient("chat:send", err)
	}
	return statusToErr("chat:send", resp.StatusCode, body)
}

func statusToErr(op string, status int, body []byte) error {
	if status < 400 {
		return nil
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return apierr.Transient(op, fmt.Errorf("status %d: %s", status, body))
	}
	return apierr.Permanent(op, fmt.Errorf("status %d: %s", status, body))
}
