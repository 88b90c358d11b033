// Package idfy talks to the IDfy document extraction and face comparison
// API: asynchronous task submission, fixed-delay polling with a single
// retry, and normalization of the task documents it returns.
package idfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/logging"
	"github.com/example/kyc-voice/internal/metrics"
)

// TaskKind selects the vendor task endpoint.
type TaskKind string

const (
	TaskAadhaar     TaskKind = "aadhaar"
	TaskPAN         TaskKind = "pan"
	TaskFaceCompare TaskKind = "face_compare"
	TaskLiveness    TaskKind = "liveness"
)

var taskPaths = map[TaskKind]string{
	TaskAadhaar:     "extract/ind_aadhaar_plus",
	TaskPAN:         "extract/ind_pan",
	TaskFaceCompare: "compare/face",
	TaskLiveness:    "check_photo_liveness/face",
}

const maxResponseBytes = 10 << 20

// Config holds the credentials and timings for the client.
type Config struct {
	BaseURL   string
	APIKey    string
	AccountID string
	// GroupID is the group orchestrated KYC tasks are filed under.
	GroupID string
	// ProxyGroupID is used by the pass-through proxy endpoints.
	ProxyGroupID string
	PollDelay    time.Duration
	RetryDelay   time.Duration
}

// SubmitResponse is the immediate answer to a task submission.
type SubmitResponse struct {
	RequestID string
	Body      map[string]any
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	poller     *Poller
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient constructs a vendor client. A nil httpClient uses a 30s timeout client.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		poller:     NewPoller(cfg.PollDelay, cfg.RetryDelay),
		logger:     logger.Named("idfy"),
		metrics:    m,
	}
}

// SubmitAndPoll files an orchestrated KYC task and waits for its result
// using the fixed-delay poll-and-retry-once policy. The normalized result is
// returned as is; interpreting it is up to the caller.
func (c *Client) SubmitAndPoll(ctx context.Context, kind TaskKind, taskID string, data map[string]any) (Result, error) {
	opLogger := logging.WithOperation(c.logger, "idfy.submit_and_poll", taskID).With(zap.String("task", string(kind)))

	submitted, err := c.Submit(ctx, kind, taskID, c.cfg.GroupID, data)
	if err != nil {
		opLogger.Error("task submission failed", zap.Error(err))
		return Result{}, err
	}
	opLogger = opLogger.With(zap.String("request_id", submitted.RequestID))
	opLogger.Info("task submitted")

	outcome, err := c.poller.Run(ctx, func(ctx context.Context, attempt int) (Result, error) {
		result, err := c.Poll(ctx, kind, submitted.RequestID)
		switch {
		case err != nil:
			c.metrics.ObservePoll(string(kind), strconv.Itoa(attempt), "error")
		case result.Failed():
			c.metrics.ObservePoll(string(kind), strconv.Itoa(attempt), "failed")
			opLogger.Warn("task poll returned failure",
				zap.Int("attempt", attempt),
				zap.String("status", result.Status()),
				zap.String("message", result.Message()))
		default:
			c.metrics.ObservePoll(string(kind), strconv.Itoa(attempt), "ok")
		}
		return result, err
	})
	if err != nil {
		opLogger.Error("task polling failed", zap.Error(err), zap.Int("attempts", outcome.Attempts))
		return Result{}, err
	}

	opLogger.Info("task polled",
		zap.Int("attempts", outcome.Attempts),
		zap.String("status", outcome.Result.Status()),
		zap.Bool("failed", outcome.Result.Failed()))
	return outcome.Result, nil
}

// Submit posts a task to the asynchronous endpoint for kind.
func (c *Client) Submit(ctx context.Context, kind TaskKind, taskID, groupID string, data map[string]any) (SubmitResponse, error) {
	status, body, err := c.submit(ctx, kind, taskID, groupID, data)
	if err != nil {
		return SubmitResponse{}, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SubmitResponse{}, &TransportError{Call: "submit", Err: fmt.Errorf("decode response (status %d): %w", status, err)}
	}

	requestID, _ := decoded["request_id"].(string)
	if requestID == "" {
		return SubmitResponse{}, &APIError{
			StatusCode: status,
			Message:    vendorMessage(decoded, status),
			Body:       decoded,
			Err:        ErrMissingRequestID,
		}
	}
	return SubmitResponse{RequestID: requestID, Body: decoded}, nil
}

// SubmitRaw posts a task and hands back the vendor's status and body
// untouched. Used by the pass-through proxy routes.
func (c *Client) SubmitRaw(ctx context.Context, kind TaskKind, taskID, groupID string, data map[string]any) (int, json.RawMessage, error) {
	status, body, err := c.submit(ctx, kind, taskID, groupID, data)
	if err != nil {
		return 0, nil, err
	}
	if !json.Valid(body) {
		return 0, nil, &TransportError{Call: "submit", Err: fmt.Errorf("non-JSON response (status %d)", status)}
	}
	return status, json.RawMessage(body), nil
}

// Poll fetches the current state of a submitted task.
func (c *Client) Poll(ctx context.Context, kind TaskKind, requestID string) (Result, error) {
	endpoint := fmt.Sprintf("%s/tasks?request_id=%s", c.cfg.BaseURL, url.QueryEscape(requestID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, &TransportError{Call: "poll", Err: err}
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveVendorLatency(string(kind), "poll", time.Since(start))
	if err != nil {
		return Result{}, &TransportError{Call: "poll", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &TransportError{Call: "poll", Err: err}
	}

	result, err := Normalize(body)
	if err != nil {
		return Result{}, &TransportError{Call: "poll", Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
	}
	return result, nil
}

func (c *Client) submit(ctx context.Context, kind TaskKind, taskID, groupID string, data map[string]any) (int, []byte, error) {
	path, ok := taskPaths[kind]
	if !ok {
		return 0, nil, fmt.Errorf("unknown idfy task kind %q", kind)
	}

	payload, err := json.Marshal(map[string]any{
		"task_id":  taskID,
		"group_id": groupID,
		"data":     data,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("encode idfy task: %w", err)
	}

	endpoint := fmt.Sprintf("%s/tasks/async/%s", c.cfg.BaseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &TransportError{Call: "submit", Err: err}
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveVendorLatency(string(kind), "submit", time.Since(start))
	if err != nil {
		return 0, nil, &TransportError{Call: "submit", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &TransportError{Call: "submit", Err: err}
	}
	return resp.StatusCode, body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("account-id", c.cfg.AccountID)
	req.Header.Set("api-key", c.cfg.APIKey)
}

func vendorMessage(body map[string]any, status int) string {
	for _, key := range []string{"message", "error"} {
		if message, ok := body[key].(string); ok && message != "" {
			return message
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown error"
}
