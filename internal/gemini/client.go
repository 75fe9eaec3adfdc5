// Package gemini implements the extraction oracle on top of Google's Gemini API.
// It turns a free-text operator message into one structured extraction.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/uptimebot/internal/config"
	"github.com/edgard/uptimebot/internal/ledger"
	"github.com/edgard/uptimebot/internal/metrics"
)

var (
	// ErrOracleUnavailable is returned when no backend produced a usable reply.
	ErrOracleUnavailable = errors.New("extraction oracle unavailable")
	// ErrQuotaExhausted marks a quota-class failure of one API key.
	ErrQuotaExhausted = errors.New("api key quota exhausted")
	// ErrNoJSON is returned when a reply contains no JSON object.
	ErrNoJSON = errors.New("no JSON object in response")
)

// Client defines the extraction operation used by the tracker.
type Client interface {
	Extract(ctx context.Context, text string, ec ledger.ExtractionContext) (ledger.RawExtraction, error)
}

// generator is the subset of genai.Models the client calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type backend struct {
	index int
	gen   generator
}

type sdkClient struct {
	backends         []backend
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
	timeout          time.Duration
}

var extractionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"phone":        {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "Phone number, digits only."},
		"started":      {Type: genai.TypeBoolean, Description: "The number started working."},
		"stopped":      {Type: genai.TypeBoolean, Description: "The number stopped working."},
		"started_time": {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "Start time HH:MM."},
		"stopped_time": {Type: genai.TypeString, Nullable: genai.Ptr(true), Description: "Stop time HH:MM."},
		"topic_id":     {Type: genai.TypeInteger, Nullable: genai.Ptr(true), Description: "Topic id from an 'id: N' marker."},
	},
	Required: []string{"phone", "started", "stopped", "started_time", "stopped_time", "topic_id"},
}

// NewClient creates one genai client per configured API key, in order.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("at least one gemini API key is required")
	}

	backends := make([]backend, 0, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		gi, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create genai client for key %d: %w", i+1, err)
		}
		backends = append(backends, backend{index: i, gen: gi.Models})
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName, "api_keys", len(backends))
	return newSDKClient(backends, cfg, logger), nil
}

func newSDKClient(backends []backend, cfg config.GeminiConfig, log *slog.Logger) *sdkClient {
	temperature := cfg.Temperature
	return &sdkClient{
		backends: backends,
		log:      log,
		contentConfig: &genai.GenerateContentConfig{
			Temperature:       &temperature,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: ExtractionInstruction}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    extractionSchema,
		},
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       cfg.RetryDelay,
		timeout:          cfg.Timeout,
	}
}

// Extract asks the model for a structured extraction of text. Quota failures
// move on to the next API key; any other failure, including a timeout, is
// reported as ErrOracleUnavailable.
func (c *sdkClient) Extract(ctx context.Context, text string, ec ledger.ExtractionContext) (ledger.RawExtraction, error) {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(extractionPrompt, ec.SentAt.Format("2006-01-02 15:04 MST"), text)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	for _, b := range c.backends {
		resp, err := c.generateContentWithRetries(ctx, b, contents)
		if err != nil {
			if isQuotaError(err) {
				c.log.WarnContext(ctx, "Gemini API key quota exhausted, trying next key", "key_index", b.index, "error", err)
				continue
			}
			metrics.ObserveOracle("error", time.Since(start))
			return ledger.RawExtraction{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}

		reply, err := c.extractTextFromResponse(ctx, resp)
		if err != nil {
			metrics.ObserveOracle("empty", time.Since(start))
			return ledger.RawExtraction{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}

		raw, err := ParseResponse(reply, text, ec.DefaultTopicID)
		if err != nil {
			c.log.WarnContext(ctx, "Failed to parse extraction", "error", err, "response_text", reply)
			metrics.ObserveOracle("unparsable", time.Since(start))
			return ledger.RawExtraction{}, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}

		metrics.ObserveOracle("ok", time.Since(start))
		c.log.DebugContext(ctx, "Extraction parsed", "key_index", b.index, "phone", raw.Phone,
			"started", raw.Started, "stopped", raw.Stopped, "topic_id", raw.TopicID)
		return raw, nil
	}

	metrics.ObserveOracle("quota", time.Since(start))
	return ledger.RawExtraction{}, fmt.Errorf("%w: all %d api keys: %w", ErrOracleUnavailable, len(c.backends), ErrQuotaExhausted)
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, b backend, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		var resp *genai.GenerateContentResponse
		resp, err = b.gen.GenerateContent(ctx, c.defaultModelName, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "key_index", b.index, "error", err)

		if !isRetriable(err) {
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}
		if i < c.maxRetries {
			c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay)
			if err := sleepContext(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("gemini API call failed after %d retries: %w", c.maxRetries, err)
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("extraction blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("extraction returned no content, finish reason: %s", finishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("extraction returned empty text")
	}
	return text, nil
}

func apiError(err error) (genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	return genai.APIError{}, false
}

func isQuotaError(err error) bool {
	apiErr, ok := apiError(err)
	return ok && (apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED")
}

func isRetriable(err error) bool {
	apiErr, ok := apiError(err)
	return ok && (apiErr.Code == http.StatusInternalServerError || apiErr.Code == http.StatusServiceUnavailable)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
