package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/statement-extract/bank-statement-api/internal/utils"
)

// instruction is the fixed prompt sent with every statement. The schema block
// appended to it is advisory: the model is asked to follow it, nothing
// enforces that it does.
const instruction = `You are a bank statement data extractor. Extract all data from the attached bank statement PDF and respond ONLY with a valid JSON object (no markdown, no code blocks, no explanatory text) matching the schema below.`

// schemaDescriptor names the expected output fields. Field names and example
// formats only, never data.
var schemaDescriptor = map[string]any{
	"statement_info": map[string]any{
		"bank_name":      "string",
		"account_holder": "string",
		"account_number": "string",
		"period_start":   "YYYY-MM-DD",
		"period_end":     "YYYY-MM-DD",
	},
	"account_summary": map[string]any{
		"opening_balance":   "number",
		"closing_balance":   "number",
		"total_credits":     "number",
		"total_debits":      "number",
		"transaction_count": "number",
	},
	"transactions": []any{
		map[string]any{
			"id":          "string",
			"date":        "YYYY-MM-DD",
			"description": "string",
			"amount":      "number, negative for debits",
			"balance":     "number, running balance after this transaction",
		},
	},
}

// Response is one decoded generateContent payload. Payload keeps the full
// loosely-typed body for fragment collection; the typed fields are the parts
// we select on.
type Response struct {
	Payload       map[string]any
	Candidate     any
	UsageMetadata map[string]any
}

type Client interface {
	GenerateContent(ctx context.Context, document []byte) (*Response, error)
}

type client struct {
	apiKey          string
	model           string
	baseURL         string
	maxOutputTokens int
	temperature     float64
	logger          *utils.Logger
	httpc           *http.Client
}

func NewClient(apiKey, model, baseURL string, maxOutputTokens int, temperature float64, timeout time.Duration, logger *utils.Logger) Client {
	return &client{
		apiKey:          apiKey,
		model:           model,
		baseURL:         baseURL,
		maxOutputTokens: maxOutputTokens,
		temperature:     temperature,
		logger:          logger,
		httpc:           &http.Client{Timeout: timeout},
	}
}

func (c *client) GenerateContent(ctx context.Context, document []byte) (*Response, error) {
	if c.apiKey == "" {
		return nil, utils.NewInternalError("GEMINI_API_KEY is not configured")
	}

	schemaJSON, err := json.Marshal(schemaDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"text": instruction + "\n\nSchema:\n" + string(schemaJSON)},
					map[string]any{"inline_data": map[string]any{
						"mime_type": "application/pdf",
						"data":      base64.StdEncoding.EncodeToString(document),
					}},
				},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      c.temperature,
			"maxOutputTokens":  c.maxOutputTokens,
			"responseMimeType": "application/json",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, utils.NewUpstreamError(fmt.Sprintf("Gemini request failed: %v", err), nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewUpstreamError(fmt.Sprintf("failed to read Gemini response: %v", err), nil)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini API error", "status", resp.StatusCode, "body", utils.Truncate(string(raw), 2000))
		return nil, utils.NewUpstreamError(
			fmt.Sprintf("Gemini API returned status %d", resp.StatusCode),
			map[string]any{"upstream_body": utils.Truncate(string(raw), 2000)},
		)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, utils.NewUpstreamError(fmt.Sprintf("Gemini response is not JSON: %v", err), nil)
	}

	out := &Response{Payload: decoded}
	if usage, ok := decoded["usageMetadata"].(map[string]any); ok {
		out.UsageMetadata = usage
	}
	if candidates, ok := decoded["candidates"].([]any); ok && len(candidates) > 0 {
		out.Candidate = candidates[0]
	}

	return out, nil
}
