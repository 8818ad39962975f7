package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// ClientConfig holds configuration for the REST client.
type ClientConfig struct {
	// Timeout bounds each transport call. A call exceeding it is treated
	// as a transient failure for retry purposes.
	Timeout time.Duration

	// Logger for request diagnostics. If nil, a default logger writing to
	// stderr is used.
	Logger *log.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		Logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client is the REST implementation of Transport.
//
// The wire shape is deliberately minimal: every call posts an opaque JSON
// document and expects either {"id": "..."} or {"error": "...", "id": "..."}
// back. The JSON/Drive layout behind those routes is the store's concern.
type Client struct {
	baseURL string
	creds   CredentialProvider
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a REST transport client for the store at baseURL.
//
// Example:
//
//	creds := remote.NewFileProvider("~/.inkwell/token")
//	client := remote.NewClient("https://api.inkwell.example", creds, nil)
func NewClient(baseURL string, creds CredentialProvider, config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: config.Timeout},
		logger:  config.Logger,
	}
}

// CreateProject implements Transport.CreateProject.
func (c *Client) CreateProject(ctx context.Context, metadata map[string]any) (string, error) {
	return c.call(ctx, "create-project", http.MethodPost, c.baseURL+"/projects", metadata)
}

// CreateOrUpdate implements Transport.CreateOrUpdate.
func (c *Client) CreateOrUpdate(ctx context.Context, remoteProjectID, kind string, payload map[string]any) (string, error) {
	var method, url string
	switch kind {
	case "create-chapter":
		method = http.MethodPost
		url = fmt.Sprintf("%s/projects/%s/chapters", c.baseURL, remoteProjectID)
	case "create-entity":
		method = http.MethodPost
		url = fmt.Sprintf("%s/projects/%s/entities", c.baseURL, remoteProjectID)
	case "update-project":
		method = http.MethodPatch
		url = fmt.Sprintf("%s/projects/%s", c.baseURL, remoteProjectID)
	default:
		return "", &Error{Kind: KindMalformed, Op: kind, Message: fmt.Sprintf("unknown operation kind %q", kind)}
	}
	return c.call(ctx, kind, method, url, payload)
}

// responseBody is the envelope every store route answers with.
type responseBody struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// call performs one bounded HTTP round trip and maps the outcome to the
// error taxonomy.
func (c *Client) call(ctx context.Context, op, method, url string, payload map[string]any) (string, error) {
	token, ok := c.creds.Token()
	if !ok {
		return "", &Error{Kind: KindAuth, Op: op, Message: "no credential available"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Op: op, Message: fmt.Sprintf("encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failure or timeout: retryable.
		return "", &Error{Kind: KindTransient, Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindTransient, Op: op, Message: fmt.Sprintf("read response: %v", err)}
	}

	var parsed responseBody
	// An unparseable body is not fatal by itself; classification falls back
	// to the status code.
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if parsed.ID == "" {
			return "", &Error{Kind: KindTransient, Op: op, Message: "response missing object id"}
		}
		return parsed.ID, nil
	}

	msg := parsed.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = resp.Status
	}

	kind := classifyStatus(resp.StatusCode, msg)
	if kind == KindDuplicate {
		c.logger.Printf("%s: store reports duplicate (id=%q): %s", op, parsed.ID, msg)
	}
	return "", &Error{Kind: kind, Op: op, RemoteID: parsed.ID, Message: msg}
}

// classifyStatus maps an HTTP status and error message to the taxonomy.
// The message check comes first: the store signals duplicates through the
// "already exists" substring, not through a dedicated status code.
func classifyStatus(status int, msg string) Kind {
	if strings.Contains(msg, duplicateMarker) {
		return KindDuplicate
	}
	switch {
	case status == http.StatusConflict:
		return KindDuplicate
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindMalformed
	default:
		return KindTransient
	}
}
