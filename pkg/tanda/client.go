// Package tanda is an HTTP client for the collective-savings (tanda)
// validation service.
package tanda

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/conductores/onboarding-engine/internal/resilience"
)

const defaultBaseURL = "/api"

// Client talks to the tanda service.
type Client interface {
	Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error)
	Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error)
	UploadRoster(ctx context.Context, req RosterUploadRequest) (*RosterUploadResponse, error)
}

// ValidateRequest is the body of POST /v1/tanda/validate.
type ValidateRequest struct {
	Market       string    `json:"market"`
	ClientType   string    `json:"clientType"`
	Members      int       `json:"members"`
	Contribution float64   `json:"contribution"`
	Rounds       int       `json:"rounds"`
	Rotation     []int     `json:"rotation"`
	StartDate    time.Time `json:"startDate"`
	AdvisorID    *string   `json:"advisorId"`
	GroupName    *string   `json:"groupName"`
}

// ValidateResponse is returned by POST /v1/tanda/validate.
type ValidateResponse struct {
	ValidationID string         `json:"validationId"`
	Status       string         `json:"status"`
	Warnings     []string       `json:"warnings,omitempty"`
	Metrics      map[string]any `json:"metrics,omitempty"`
}

// ScheduleRequest is the body of POST /v1/tanda/schedule.
type ScheduleRequest struct {
	ValidationID string    `json:"validationId"`
	Members      int       `json:"members"`
	Contribution float64   `json:"contribution"`
	Rounds       int       `json:"rounds"`
	StartDate    time.Time `json:"startDate"`
}

// ScheduleEntry is one payout round.
type ScheduleEntry struct {
	Round       int       `json:"round"`
	MemberIndex int       `json:"memberIndex"`
	Payout      float64   `json:"payout"`
	ETA         time.Time `json:"eta"`
	MemberID    string    `json:"memberId,omitempty"`
}

// ScheduleResponse is returned by POST /v1/tanda/schedule.
type ScheduleResponse struct {
	Schedule    []ScheduleEntry `json:"schedule"`
	GeneratedAt string          `json:"generatedAt"`
}

// RosterDocument references an uploaded member document.
type RosterDocument struct {
	DocumentID string  `json:"documentId"`
	FileURL    *string `json:"fileUrl"`
}

// RosterMember carries one member's identity documents.
type RosterMember struct {
	MemberIndex int            `json:"memberIndex"`
	INE         RosterDocument `json:"ine"`
	RFC         RosterDocument `json:"rfc"`
}

// RosterUploadRequest is the body of POST /v1/tanda/roster/upload.
type RosterUploadRequest struct {
	ValidationID string          `json:"validationId"`
	ClientID     *string         `json:"clientId"`
	Roster       []RosterMember  `json:"roster"`
	Consent      *RosterDocument `json:"consent,omitempty"`
}

// RosterUploadResponse is returned by POST /v1/tanda/roster/upload.
type RosterUploadResponse struct {
	UploadID string `json:"uploadId"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *httpClient) {
		c.token = token
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a tanda service client. Callers bound each call with
// their own deadline; the http.Client timeout is only a backstop.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	if req.Rotation == nil {
		req.Rotation = []int{}
	}
	var out ValidateResponse
	if err := c.post(ctx, "/v1/tanda/validate", req, &out); err != nil {
		return nil, err
	}
	if out.ValidationID == "" {
		return nil, eris.New("tanda: validate response missing validationId")
	}
	return &out, nil
}

func (c *httpClient) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResponse, error) {
	var out ScheduleResponse
	if err := c.post(ctx, "/v1/tanda/schedule", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) UploadRoster(ctx context.Context, req RosterUploadRequest) (*RosterUploadResponse, error) {
	var out RosterUploadResponse
	if err := c.post(ctx, "/v1/tanda/roster/upload", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "tanda: rate limit")
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "tanda: marshal %s", path)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "tanda: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "tanda: send %s", path), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "tanda: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := eris.Errorf("tanda: %s unexpected status %d: %s", path, resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return statusErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "tanda: unmarshal %s response", path)
	}
	return nil
}
