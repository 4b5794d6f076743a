package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
)

// listTimeout is deliberately generous: list_groups/list_contacts can
// stream large catalogues and the Sync Coordinator, not a short per-call
// deadline, owns cancellation for those.
const listTimeout = 20 * time.Minute

// Client wraps the upstream WhatsApp-protocol provider's REST surface.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

// New builds a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string, logger *log.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, timeout time.Duration) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	client := c.http
	if timeout > 0 && timeout != c.http.Timeout {
		clone := *c.http
		clone.Timeout = timeout
		client = &clone
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransientError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

func decodeOrFail(op string, resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return &TransientError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &PermanentError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// EnsureInstance creates the named instance if it doesn't already exist.
// Idempotent: both outcomes are reported via created, not as an error.
func (c *Client) EnsureInstance(ctx context.Context, name string) (created bool, err error) {
	resp, err := c.do(ctx, http.MethodPost, "/instance/create/"+name, nil, 0)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return false, &TransientError{Op: "ensure_instance", Err: fmt.Errorf("status %d: %s", resp.StatusCode, body)}
		}
		return false, &PermanentError{Op: "ensure_instance", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return true, nil
}

// RequestQR fetches a fresh pairing QR (or textual code) for name.
func (c *Client) RequestQR(ctx context.Context, name string) (QR, error) {
	resp, err := c.do(ctx, http.MethodGet, "/instance/connect/"+name, nil, 0)
	if err != nil {
		return QR{}, err
	}
	var qr QR
	if err := decodeOrFail("request_qr", resp, &qr); err != nil {
		return QR{}, err
	}
	return qr, nil
}

// ConnectionStatus reports name's folded connection state.
func (c *Client) ConnectionStatus(ctx context.Context, name string) (Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+name, nil, 0)
	if err != nil {
		return Status{}, err
	}
	var raw struct {
		State string `json:"state"`
		Phone string `json:"phone"`
	}
	if err := decodeOrFail("connection_status", resp, &raw); err != nil {
		return Status{}, err
	}
	return Status{State: foldState(raw.State), Phone: raw.Phone}, nil
}

// Disconnect logs the named instance out.
func (c *Client) Disconnect(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/instance/logout/"+name, nil, 0)
	if err != nil {
		return err
	}
	return decodeOrFail("disconnect", resp, nil)
}

// ListGroups attempts a primary endpoint, then a fall-back, and returns
// the union of both (deduplicated by id). Either attempt's failure is
// logged and does not abort the other.
func (c *Client) ListGroups(ctx context.Context, name string) ([]Chat, error) {
	return c.listWithFallback(ctx, name,
		"/group/fetchAllGroups/"+name,
		"/chat/findChats/"+name+"?type=group",
		"group",
	)
}

// ListContacts follows the same primary/fall-back union strategy as
// ListGroups.
func (c *Client) ListContacts(ctx context.Context, name string) ([]Chat, error) {
	return c.listWithFallback(ctx, name,
		"/chat/findContacts/"+name,
		"/chat/findChats/"+name+"?type=direct",
		"direct",
	)
}

func (c *Client) listWithFallback(ctx context.Context, name, primaryPath, fallbackPath, kind string) ([]Chat, error) {
	var (
		primary, fallback       []Chat
		primaryErr, fallbackErr error
	)

	primary, primaryErr = c.fetchChatList(ctx, primaryPath, kind)
	if primaryErr != nil {
		c.logger.Warn("primary listing endpoint failed, trying fall-back", "instance", name, "path", primaryPath, "error", primaryErr)
	}

	fallback, fallbackErr = c.fetchChatList(ctx, fallbackPath, kind)
	if fallbackErr != nil {
		c.logger.Warn("fall-back listing endpoint failed", "instance", name, "path", fallbackPath, "error", fallbackErr)
	}

	if primaryErr != nil && fallbackErr != nil {
		return nil, primaryErr
	}

	union := lo.UniqBy(append(primary, fallback...), func(ch Chat) string { return ch.ID })
	return union, nil
}

func (c *Client) fetchChatList(ctx context.Context, path, kind string) ([]Chat, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, listTimeout)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID                  string `json:"id"`
		Name                string `json:"name"`
		PhoneNumber         string `json:"phone_number"`
		LastMessageUnixSecs *int64 `json:"last_message_timestamp"`
	}
	if err := decodeOrFail("list_"+kind, resp, &raw); err != nil {
		return nil, err
	}
	chats := make([]Chat, 0, len(raw))
	for _, r := range raw {
		chat := Chat{ID: r.ID, Kind: kind, DisplayName: r.Name, PhoneNumber: r.PhoneNumber}
		if r.LastMessageUnixSecs != nil {
			t := time.Unix(*r.LastMessageUnixSecs, 0).UTC()
			chat.LastActivityAt = &t
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// SendText sends a plain-text message to to and returns the provider's
// assigned message id.
func (c *Client) SendText(ctx context.Context, instance, to, text string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/message/sendText/"+instance, map[string]interface{}{
		"number": to,
		"text":   text,
	}, 0)
	if err != nil {
		return "", err
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := decodeOrFail("send_text", resp, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// SendMedia sends a media message (image/video/document/...) referenced
// by url, with an optional caption.
func (c *Client) SendMedia(ctx context.Context, instance, to, url, kind, caption string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/message/sendMedia/"+instance, map[string]interface{}{
		"number":  to,
		"media":   url,
		"kind":    kind,
		"caption": caption,
	}, 0)
	if err != nil {
		return "", err
	}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := decodeOrFail("send_media", resp, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// ConfigureWebhook points the provider's outbound webhook at url for the
// given event kinds. Idempotent.
func (c *Client) ConfigureWebhook(ctx context.Context, instance, url string, eventKinds []string) error {
	resp, err := c.do(ctx, http.MethodPost, "/webhook/set/"+instance, map[string]interface{}{
		"url":    url,
		"events": eventKinds,
	}, 0)
	if err != nil {
		return err
	}
	return decodeOrFail("configure_webhook", resp, nil)
}

// ApplySettings updates instance-level provider settings. Idempotent.
func (c *Client) ApplySettings(ctx context.Context, instance string, settings map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, "/settings/set/"+instance, settings, 0)
	if err != nil {
		return err
	}
	return decodeOrFail("apply_settings", resp, nil)
}
