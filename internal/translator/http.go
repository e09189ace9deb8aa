package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxSplitDepth bounds the self-healing batch-split retry (spec.md §12
// "Self-healing batch split on desync"): a batch desync splits the batch
// in half and retries each half independently, never recursing deeper
// than this, grounded on the teacher's
// pipeline.translateBatchWithRetry split-in-half strategy.
const maxSplitDepth = 3

// maxStyleSamples and maxStyleSampleChars bound the automatic style-hint
// derivation sample, per spec.md §4.9 step 6b.
const (
	maxStyleSamples     = 30
	maxStyleSampleChars = 500
)

// HTTPClient is the default Client implementation: an OpenAI-chat-style
// HTTP backend, adapted from the teacher's ai.OpenAIAdapter and
// generalized from subtitle Line structs to plain ordered string batches.
type HTTPClient struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
}

// NewHTTPClient builds the default HTTP-backed translation client.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
		log:    slog.Default().With("component", "translator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string         `json:"model"`
	Messages    []chatMessage  `json:"messages"`
	Temperature float64        `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// buildSystemPrompt produces the system instruction of the JSON-array
// protocol (spec.md §4.3). The batch itself is sent in the user message
// as a JSON array, not as a numbered list, and the reply must be a JSON
// array of the same length.
func buildSystemPrompt(styleHint, targetLanguage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional game-mod localization translator. ")
	fmt.Fprintf(&b, "Translate each string in the provided JSON array into %s. ", targetLanguage)
	b.WriteString("Preserve placeholders, punctuation, and line breaks written as \\n. ")
	if styleHint != "" {
		fmt.Fprintf(&b, "Match this tone and style: %s. ", styleHint)
	}
	b.WriteString("Respond with ONLY a JSON array of translated strings, in the same order and the same length as the input array. Do not add commentary.")
	return b.String()
}

// Translate implements Client.
func (c *HTTPClient) Translate(ctx context.Context, batch []string, styleHint, targetLanguage string) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	return c.translateWithSplit(ctx, batch, styleHint, targetLanguage, 0)
}

func (c *HTTPClient) translateWithSplit(ctx context.Context, batch []string, styleHint, targetLanguage string, depth int) ([]string, error) {
	var result []string
	err := withRetry(ctx, DefaultRetryPolicy, func() error {
		out, callErr := c.call(ctx, batch, styleHint, targetLanguage)
		if callErr != nil {
			return callErr
		}
		if len(out) != len(batch) {
			return fmt.Errorf("translator: expected %d lines, got %d", len(batch), len(out))
		}
		result = out
		return nil
	})
	if err == nil {
		return result, nil
	}

	if len(batch) <= 1 || depth >= maxSplitDepth {
		return nil, err
	}

	c.log.Warn("batch desync, splitting and retrying", "size", len(batch), "depth", depth, "error", err)
	mid := len(batch) / 2
	left, leftErr := c.translateWithSplit(ctx, batch[:mid], styleHint, targetLanguage, depth+1)
	if leftErr != nil {
		return nil, leftErr
	}
	right, rightErr := c.translateWithSplit(ctx, batch[mid:], styleHint, targetLanguage, depth+1)
	if rightErr != nil {
		return nil, rightErr
	}
	return append(left, right...), nil
}

func (c *HTTPClient) call(ctx context.Context, batch []string, styleHint, targetLanguage string) ([]string, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(styleHint, targetLanguage)},
			{Role: "user", Content: string(payload)},
		},
		Temperature: c.cfg.Temperature,
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.log.Debug("sending translate batch", "size", len(batch), "target", targetLanguage)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: "http", Code: "network_error", Message: err.Error(), Retry: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response envelope: %w", err)
	}

	if apiResp.Error != nil {
		code, retry := classifyAPIError(apiResp.Error.Type, apiResp.Error.Code)
		return nil, &Error{Provider: "http", Code: code, Message: apiResp.Error.Message, Retry: retry}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &Error{Provider: "http", Code: "empty_response", Message: "no choices in response", Retry: true}
	}

	content := stripCodeFence(apiResp.Choices[0].Message.Content)

	var translated []string
	if err := json.Unmarshal([]byte(content), &translated); err != nil {
		return nil, fmt.Errorf("parse translated array: %w", err)
	}
	return translated, nil
}

func classifyAPIError(errType, errCode string) (code string, retry bool) {
	switch {
	case errType == "insufficient_quota" || errCode == "rate_limit_exceeded":
		return "rate_limit", true
	case errType == "invalid_request_error" && errCode == "invalid_api_key":
		return "invalid_key", false
	default:
		return "unknown", false
	}
}

// stripCodeFence removes a leading/trailing ``` or ```json fence some
// models wrap JSON responses in, per spec.md §4.3.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// AnalyzeStyle implements Client's style-derivation mode, grounded on
// original_source/core/agents/translate_style_analysis.py. It sends a
// bounded, truncated sample through the same chat endpoint with a
// dedicated instruction and returns the free-form style description
// verbatim rather than parsing a JSON array.
func (c *HTTPClient) AnalyzeStyle(ctx context.Context, samples []string) (string, error) {
	bounded := samples
	if len(bounded) > maxStyleSamples {
		bounded = bounded[:maxStyleSamples]
	}
	truncated := make([]string, len(bounded))
	for i, s := range bounded {
		if len(s) > maxStyleSampleChars {
			s = s[:maxStyleSampleChars]
		}
		truncated[i] = s
	}

	payload, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshal samples: %w", err)
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Describe, in one short sentence, the tone and register of the following game-mod text samples, so a translator can match it. Respond with plain text, not JSON."},
			{Role: "user", Content: string(payload)},
		},
		Temperature: c.cfg.Temperature,
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var hint string
	err = withRetry(ctx, DefaultRetryPolicy, func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqJSON))
		if reqErr != nil {
			return reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, doErr := c.client.Do(httpReq)
		if doErr != nil {
			return &Error{Provider: "http", Code: "network_error", Message: doErr.Error(), Retry: true}
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		var apiResp chatResponse
		if jsonErr := json.Unmarshal(body, &apiResp); jsonErr != nil {
			return jsonErr
		}
		if apiResp.Error != nil {
			code, retry := classifyAPIError(apiResp.Error.Type, apiResp.Error.Code)
			return &Error{Provider: "http", Code: code, Message: apiResp.Error.Message, Retry: retry}
		}
		if len(apiResp.Choices) == 0 {
			return &Error{Provider: "http", Code: "empty_response", Message: "no choices in response", Retry: true}
		}
		hint = strings.TrimSpace(apiResp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		// Style derivation failures are never fatal to the task: the
		// coordinator falls back to a neutral default (spec.md §4.9
		// step 6b), so the caller just logs this and moves on.
		c.log.Warn("style analysis failed", "error", err)
		return "", err
	}
	return hint, nil
}
