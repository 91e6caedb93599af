package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 64 << 10

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Name      string
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// HTTPTransport implements Transport for the REST API.
type HTTPTransport struct {
	name       string
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	now        func() time.Time
}

// NewHTTPTransport creates a new REST transport.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	if cfg.Name == "" {
		cfg.Name = "rest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vidgate"
	}
	return &HTTPTransport{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Name returns the transport's name.
func (t *HTTPTransport) Name() string {
	return t.name
}

// CreateJob starts a prediction.
func (t *HTTPTransport) CreateJob(ctx context.Context, req JobRequest) (*Job, error) {
	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	var job Job
	if err := t.do(ctx, "createJob", http.MethodPost, "/v1/predictions", header, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a prediction.
func (t *HTTPTransport) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	path := "/v1/predictions/" + url.PathEscape(id)
	if err := t.do(ctx, "getJob", http.MethodGet, path, nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// CancelJob cancels a prediction.
func (t *HTTPTransport) CancelJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	path := "/v1/predictions/" + url.PathEscape(id) + "/cancel"
	if err := t.do(ctx, "cancelJob", http.MethodPost, path, nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListModels returns every model visible to the token, following pagination.
func (t *HTTPTransport) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	path := "/v1/models"
	for path != "" {
		var page struct {
			Next    string  `json:"next"`
			Results []Model `json:"results"`
		}
		if err := t.do(ctx, "listModels", http.MethodGet, path, nil, nil, &page); err != nil {
			return nil, err
		}
		models = append(models, page.Results...)
		path = t.relative(page.Next)
	}
	return models, nil
}

// GetModel describes a single model.
func (t *HTTPTransport) GetModel(ctx context.Context, owner, name string) (*Model, error) {
	var m Model
	path := "/v1/models/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
	if err := t.do(ctx, "getModel", http.MethodGet, path, nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close cleans up resources.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// relative strips the base URL from pagination links.
func (t *HTTPTransport) relative(next string) string {
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, t.baseURL) {
		return strings.TrimPrefix(next, t.baseURL)
	}
	if u, err := url.Parse(next); err == nil && u.IsAbs() {
		return u.RequestURI()
	}
	return next
}

func (t *HTTPTransport) do(
	ctx context.Context,
	op, method, path string,
	header http.Header,
	in, out any,
) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Drop the *url.Error wrapper so the request URL stays out of the
		// message the classifier matches on.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return t.apiError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parse response: %w", op, err)
	}
	return nil
}

// apiError builds an APIError from a non-2xx response. Both
// {"detail": ..., "code": ...} and {"error": {"message": ..., "code": ...}}
// bodies are understood.
func (t *HTTPTransport) apiError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &APIError{
		Operation: op,
		Status:    resp.StatusCode,
		Wait:      parseRetryAfter(resp.Header.Get("Retry-After"), t.now()),
	}

	var body struct {
		Detail string          `json:"detail"`
		Title  string          `json:"title"`
		Code   string          `json:"code"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Detail = body.Detail
		if e.Detail == "" {
			e.Detail = body.Title
		}
		e.ErrCode = body.Code

		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		var flat string
		switch {
		case len(body.Error) == 0:
		case json.Unmarshal(body.Error, &nested) == nil:
			if e.Detail == "" {
				e.Detail = nested.Message
			}
			if e.ErrCode == "" {
				e.ErrCode = nested.Code
			}
		case json.Unmarshal(body.Error, &flat) == nil && e.Detail == "":
			e.Detail = flat
		}
	}
	if e.Detail == "" {
		e.Detail = strings.TrimSpace(string(raw))
	}

	if e.Status != http.StatusTooManyRequests && e.Status != http.StatusUnauthorized &&
		detectThrottle(e.Detail) {
		e.Status = http.StatusTooManyRequests
	}
	return e
}
