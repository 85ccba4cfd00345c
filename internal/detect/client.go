package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ecosort/wastelens/internal/capture"
	"github.com/ecosort/wastelens/internal/logger"
)

// Client is an HTTP client for the external waste detection service. It is
// stateless: one request in, one structured result out, no retries.
type Client struct {
	serviceURL        string
	httpClient        *http.Client
	logger            *logger.Logger
	defaultConfidence float64
}

// ClientConfig contains configuration for the detection client
type ClientConfig struct {
	ServiceURL          string
	Timeout             time.Duration
	ConfidenceThreshold float64
}

// NewClient creates a new detection service client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ConfidenceThreshold == 0 {
		config.ConfidenceThreshold = 0.25
	}

	return &Client{
		serviceURL: config.ServiceURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:            log,
		defaultConfidence: config.ConfidenceThreshold,
	}
}

// DetectImage runs detection on an uploaded still image. The upload variant
// of the service returns both the original and the annotated image.
func (c *Client) DetectImage(ctx context.Context, frame *capture.Frame) *Result {
	return c.detect(ctx, "/detect", frame)
}

// DetectFrame runs detection on a live camera frame. The frame variant is
// optimized for speed; the annotated image may be absent.
func (c *Client) DetectFrame(ctx context.Context, frame *capture.Frame) *Result {
	return c.detect(ctx, "/detect_frame", frame)
}

// detect performs one request against the given endpoint variant.
func (c *Client) detect(ctx context.Context, path string, frame *capture.Frame) *Result {
	confidence := frame.Confidence
	if confidence <= 0 {
		confidence = c.defaultConfidence
	}

	req := request{
		Image:      base64.StdEncoding.EncodeToString(frame.Data),
		Confidence: confidence,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return c.failure(fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := c.serviceURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return c.failure(fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending detection request", "url", url, "confidence", confidence)
	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.failure(fmt.Sprintf("detection service unreachable: %v", err))
	}
	defer resp.Body.Close()

	requestDuration := time.Since(startTime)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.failure(fmt.Sprintf("failed to read response: %v", err))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return c.failure(fmt.Sprintf("malformed response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		if result.Error == "" {
			result.Error = fmt.Sprintf("detection service returned status %d", resp.StatusCode)
		}
		result.Success = false
		c.logger.Warn("Detection service returned error",
			"status", resp.StatusCode,
			"error", result.Error,
		)
		return &result
	}

	c.logger.Debug("Detection completed",
		"detection_count", len(result.Detections),
		"request_duration_ms", requestDuration.Milliseconds(),
	)

	return &result
}

// failure builds a failed result with a descriptive error.
func (c *Client) failure(msg string) *Result {
	c.logger.Warn("Detection request failed", "error", msg)
	return &Result{Success: false, Error: msg}
}

// Ready checks whether the detection service is reachable and has its model
// loaded.
func (c *Client) Ready(ctx context.Context) error {
	url := c.serviceURL + "/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service health check failed: status %d", resp.StatusCode)
	}

	return nil
}
