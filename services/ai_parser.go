package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/kr/text"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/nlp"
)

// ============================================================================
// CLAUDE PARSER - the "ai" engine of the NLP endpoints
// ============================================================================

const anthropicVersion = "2023-06-01"

var ErrAINotConfigured = errors.New("ANTHROPIC_API_KEY not set")

type ClaudeParser struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	attempts   uint
	delay      time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type ClaudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []ClaudeMessage `json:"messages"`
}

type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ClaudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// apiStatusError is a non-200 reply from the messages API.
type apiStatusError struct {
	Code int
	Body string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

func NewClaudeParser(apiKey, model, baseURL string, logger *slog.Logger) *ClaudeParser {
	return &ClaudeParser{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxTokens:  400,
		attempts:   3,
		delay:      500 * time.Millisecond,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
	}
}

func (s *ClaudeParser) Enabled() bool {
	return s != nil && s.apiKey != ""
}

const systemPrompt = `You extract a single personal finance transaction from a Vietnamese sentence.
Reply with ONE JSON object and nothing else, matching exactly:
{"type":"income"|"expense","amount":number,"category":string,"date":"YYYY-MM-DD","description":string,
 "confidence":{"type":number,"amount":number,"category":number}}
Rules:
1. amount is in VND as a plain number. "k"/"nghìn"/"ngàn" mean x1000, "tr"/"triệu" mean x1000000.
2. category MUST be one of the listed category names for that type, copied exactly.
3. "hôm qua" is yesterday and "hôm kia" is two days ago relative to today.
4. confidence values are between 0 and 1.
5. If no amount is present use 0 and set confidence.amount to 0.`

// Parse asks the model to extract a transaction and validates its answer
// against cfg. Amounts are clamped at zero and confidences into [0, 1].
func (s *ClaudeParser) Parse(ctx context.Context, input string, cfg nlp.Config, now time.Time) (nlp.Candidate, error) {
	if !s.Enabled() {
		return nlp.Candidate{}, ErrAINotConfigured
	}

	requestBody := ClaudeRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    systemPrompt,
		Messages: []ClaudeMessage{{
			Role:    "user",
			Content: buildUserPrompt(input, cfg, now),
		}},
	}

	raw, err := s.executeRequest(ctx, requestBody)
	if err != nil {
		return nlp.Candidate{}, err
	}
	return decodeCandidate(raw, input, cfg, now)
}

func buildUserPrompt(input string, cfg nlp.Config, now time.Time) string {
	var expense, income []string
	for _, c := range cfg.Categories {
		if c.Type == nlp.TypeIncome {
			income = append(income, c.Name)
		} else {
			expense = append(expense, c.Name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Today: %s\n", now.Format(models.DateLayout))
	b.WriteString("Expense categories:\n")
	b.WriteString(text.Indent(text.Wrap(strings.Join(expense, ", "), 72), "  "))
	b.WriteString("\nIncome categories:\n")
	b.WriteString(text.Indent(text.Wrap(strings.Join(income, ", "), 72), "  "))
	fmt.Fprintf(&b, "\nFallback category: %s\n", cfg.FallbackCategory())
	fmt.Fprintf(&b, "Sentence: %q\n", input)
	return b.String()
}

type aiAnswer struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Confidence  struct {
		Type     float64 `json:"type"`
		Amount   float64 `json:"amount"`
		Category float64 `json:"category"`
	} `json:"confidence"`
}

func decodeCandidate(raw, input string, cfg nlp.Config, now time.Time) (nlp.Candidate, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nlp.Candidate{}, fmt.Errorf("no JSON object in model reply")
	}

	var a aiAnswer
	if err := json.Unmarshal([]byte(raw[start:end+1]), &a); err != nil {
		return nlp.Candidate{}, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if a.Type != nlp.TypeIncome && a.Type != nlp.TypeExpense {
		return nlp.Candidate{}, fmt.Errorf("model returned invalid type %q", a.Type)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	c := nlp.Candidate{
		Type:        a.Type,
		Amount:      math.Round(math.Max(a.Amount, 0)*100) / 100,
		Category:    cfg.DefaultCategory,
		Date:        today,
		Description: strings.TrimSpace(input),
		Confidence: nlp.Confidence{
			Type:     clamp01(a.Confidence.Type),
			Amount:   clamp01(a.Confidence.Amount),
			Category: 0,
		},
	}
	if c.Amount == 0 {
		c.Confidence.Amount = 0
	}
	if d := strings.TrimSpace(a.Description); d != "" {
		c.Description = d
	}
	if d, err := time.ParseInLocation(models.DateLayout, a.Date, now.Location()); err == nil && !d.After(today) {
		c.Date = d
	}

	want := nlp.Normalize(a.Category)
	for _, rule := range cfg.Categories {
		if rule.Type == a.Type && nlp.Normalize(rule.Name) == want {
			c.Category = rule.Name
			c.Confidence.Category = clamp01(a.Confidence.Category)
			break
		}
	}
	if c.Category == "" {
		c.Category = nlp.DefaultCategoryName
	}
	return c, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ============================================================================
// HELPER: EXECUTE REQUEST
// ============================================================================

func (s *ClaudeParser) executeRequest(ctx context.Context, requestBody ClaudeRequest) (string, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var claudeResp ClaudeResponse
	err = retry.Do(
		func() error {
			return s.post(ctx, jsonData, &claudeResp)
		},
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var statusErr *apiStatusError
			if errors.As(err, &statusErr) &&
				(statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500) {
				s.logger.Warn("model API unavailable, will retry", "status", statusErr.Code)
				return true
			}
			return false
		}),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	if len(claudeResp.Content) == 0 {
		return "", fmt.Errorf("empty response from Claude")
	}

	s.logger.Debug("model call finished",
		"model", claudeResp.Model,
		"input_tokens", claudeResp.Usage.InputTokens,
		"output_tokens", claudeResp.Usage.OutputTokens,
	)
	return claudeResp.Content[0].Text, nil
}

func (s *ClaudeParser) post(ctx context.Context, body []byte, out *ClaudeResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &apiStatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
