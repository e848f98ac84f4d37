package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Client calls the messaging provider's REST API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	partnerUser string
	partnerPass string
	tokens      *TokenCache
	logger      *slog.Logger
}

// NewClient creates a provider Client. timeout bounds every request;
// tokenTTL controls how long partner tokens are reused.
func NewClient(baseURL, partnerUser, partnerPass string, timeout, tokenTTL time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		partnerUser: partnerUser,
		partnerPass: partnerPass,
		tokens:      NewTokenCache(tokenTTL),
		logger:      logger,
	}
}

// SendTemplate sends a pre-approved template message with positional
// body parameters.
func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to, templateName, lang string, params []string) (SendResult, error) {
	components := []map[string]any{}
	if len(params) > 0 {
		body := make([]map[string]string, len(params))
		for i, p := range params {
			body[i] = map[string]string{"type": "text", "text": p}
		}
		components = append(components, map[string]any{"type": "body", "parameters": body})
	}

	payload := map[string]any{
		"to":   to,
		"type": "template",
		"template": map[string]any{
			"name":       templateName,
			"language":   map[string]string{"code": lang},
			"components": components,
		},
	}
	return c.send(ctx, creds, payload)
}

// SendText sends a free-form session message.
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (SendResult, error) {
	payload := map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]string{"body": body},
	}
	return c.send(ctx, creds, payload)
}

// SendMedia sends a media session message referenced by URL.
func (c *Client) SendMedia(ctx context.Context, creds Credentials, to string, kind MediaKind, url, caption string) (SendResult, error) {
	media := map[string]string{"link": url}
	if caption != "" && (kind == MediaImage || kind == MediaVideo || kind == MediaDocument) {
		media["caption"] = caption
	}
	payload := map[string]any{
		"to":         to,
		"type":       string(kind),
		string(kind): media,
	}
	return c.send(ctx, creds, payload)
}

func (c *Client) send(ctx context.Context, creds Credentials, payload map[string]any) (SendResult, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	path := fmt.Sprintf("/v1/%s/messages", creds.PhoneNumberID)
	if err := c.do(ctx, http.MethodPost, path, "Bearer "+creds.AccessToken, payload, &resp); err != nil {
		return SendResult{}, err
	}
	if len(resp.Messages) == 0 {
		return SendResult{}, &Error{Status: http.StatusBadGateway, Message: "provider returned no message id"}
	}
	return SendResult{MessageID: resp.Messages[0].ID}, nil
}

// CheckHealth verifies that the credentials can reach the provider.
func (c *Client) CheckHealth(ctx context.Context, creds Credentials) error {
	path := fmt.Sprintf("/v1/%s/health", creds.PhoneNumberID)
	return c.do(ctx, http.MethodGet, path, "Bearer "+creds.AccessToken, nil, nil)
}

// GetBusinessProfile fetches the tenant's profile from the provider.
func (c *Client) GetBusinessProfile(ctx context.Context, creds Credentials) (BusinessProfile, error) {
	var profile BusinessProfile
	path := fmt.Sprintf("/v1/%s/business_profile", creds.PhoneNumberID)
	if err := c.do(ctx, http.MethodGet, path, "Bearer "+creds.AccessToken, nil, &profile); err != nil {
		return BusinessProfile{}, err
	}
	return profile, nil
}

// UpdateBusinessProfile pushes profile changes to the provider.
func (c *Client) UpdateBusinessProfile(ctx context.Context, creds Credentials, profile BusinessProfile) error {
	path := fmt.Sprintf("/v1/%s/business_profile", creds.PhoneNumberID)
	return c.do(ctx, http.MethodPost, path, "Bearer "+creds.AccessToken, profile, nil)
}

// SubmitTemplate registers a template for review. Partner-level operation.
func (c *Client) SubmitTemplate(ctx context.Context, creds Credentials, sub TemplateSubmission) (string, error) {
	token, err := c.partnerToken(ctx)
	if err != nil {
		return "", err
	}

	components := []map[string]any{}
	if sub.HeaderText != "" {
		components = append(components, map[string]any{
			"type": "HEADER", "format": "TEXT", "text": sub.HeaderText,
		})
	}
	bodyComp := map[string]any{"type": "BODY", "text": sub.Body}
	if len(sub.Examples) > 0 {
		bodyComp["example"] = map[string]any{"body_text": [][]string{sub.Examples}}
	}
	components = append(components, bodyComp)
	if sub.FooterText != "" {
		components = append(components, map[string]any{"type": "FOOTER", "text": sub.FooterText})
	}
	if len(sub.Buttons) > 0 {
		buttons := make([]map[string]string, len(sub.Buttons))
		for i, b := range sub.Buttons {
			buttons[i] = map[string]string{"type": "QUICK_REPLY", "text": b}
		}
		components = append(components, map[string]any{"type": "BUTTONS", "buttons": buttons})
	}

	payload := map[string]any{
		"phone_number_id": creds.PhoneNumberID,
		"name":            sub.Name,
		"category":        sub.Category,
		"language":        sub.Language,
		"components":      components,
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/partner/templates", "Bearer "+token, payload, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListTemplates fetches the provider's template records for the tenant's
// phone number. Partner-level operation.
func (c *Client) ListTemplates(ctx context.Context, creds Credentials) ([]RemoteTemplate, error) {
	token, err := c.partnerToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Templates []RemoteTemplate `json:"templates"`
	}
	path := "/v1/partner/templates?phone_number_id=" + creds.PhoneNumberID
	if err := c.do(ctx, http.MethodGet, path, "Bearer "+token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Templates, nil
}

// partnerToken returns a cached partner bearer token, logging in when needed.
func (c *Client) partnerToken(ctx context.Context) (string, error) {
	return c.tokens.Get(ctx, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/partner/login", nil)
		if err != nil {
			return "", fmt.Errorf("building login request: %w", err)
		}
		req.SetBasicAuth(c.partnerUser, c.partnerPass)

		res, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("partner login: %w", err)
		}
		defer res.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if res.StatusCode != http.StatusOK {
			return "", extractError(res.StatusCode, body)
		}

		var out struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
			return "", fmt.Errorf("partner login returned no token")
		}
		return out.Token, nil
	})
}

// do executes one provider request and decodes the response into out.
// Non-2xx responses become *Error with a message extracted from the body.
func (c *Client) do(ctx context.Context, method, path, authorization string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding provider request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading provider response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return extractError(res.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding provider response: %w", err)
		}
	}
	return nil
}

// extractError pulls a human-readable message out of the provider's error
// body. Two shapes are seen in the wild, {"error":{"message":...}} and
// {"message":...}; anything else falls back to the status text.
func extractError(status int, body []byte) *Error {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		if nested.Error.Message != "" {
			return &Error{Status: status, Message: nested.Error.Message}
		}
		if nested.Message != "" {
			return &Error{Status: status, Message: nested.Message}
		}
	}
	msg := http.StatusText(status)
	if msg == "" {
		msg = "status " + strconv.Itoa(status)
	}
	return &Error{Status: status, Message: msg}
}
