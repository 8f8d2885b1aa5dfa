package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cellarworks/cellar-cli/internal/model"
	"github.com/cellarworks/cellar-cli/internal/resilience"
	"github.com/cellarworks/cellar-cli/pkg/anthropic"
)

// DefaultTimeout is the hard per-call deadline for the extraction service.
const DefaultTimeout = 10 * time.Second

// defaultConfidence is assumed when the model omits a confidence value.
const defaultConfidence = 0.8

const extractSystem = `You are a sommelier's assistant converting single lines from restaurant wine lists into structured data. Respond with a single JSON object and nothing else. If the line is not a wine entry (a section header, a price column, decoration), respond with an empty object {}.`

const extractPrompt = `Wine list line:
%s

Return JSON with these fields (omit any you cannot determine):
{"name": "...", "vintage": "...", "producer": "...", "region": "...", "country": "...", "varietals": "...", "price": "...", "style": "...", "aroma": "...", "taste": "...", "food_pairings": "...", "confidence": 0.0-1.0}`

// ClaudeConfig tunes the knowledge-extraction client.
type ClaudeConfig struct {
	Model          string
	Timeout        time.Duration
	RequestsPerMin float64
}

// ClaudeExtractor asks Claude for a structured record for one line,
// under a hard timeout and a requests-per-minute budget.
type ClaudeExtractor struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClaudeExtractor creates the knowledge-extraction client.
func NewClaudeExtractor(client anthropic.Client, cfg ClaudeConfig) *ClaudeExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 50
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxBackoff = 2 * time.Second
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return &ClaudeExtractor{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60.0), 1),
		retry:   retry,
	}
}

// Extract sends one line to the extraction service. Returns (nil, nil)
// when the service classifies the line as not a wine; errors wrap
// ErrTimeout or ErrFailed so the caller can fall back.
func (e *ClaudeExtractor) Extract(ctx context.Context, line model.CandidateLine) (*model.Extraction, error) {
	// Throttle against the outer context so waiting for budget does not
	// eat into the call deadline.
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(ErrFailed, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := resilience.DoVal(callCtx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 512,
			System:    extractSystem,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(extractPrompt, line.Text)},
			},
		})
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrapf(ErrTimeout, "line %d", line.Index)
		}
		return nil, eris.Wrapf(ErrFailed, "line %d: %v", line.Index, err)
	}

	resp.Usage.LogCost(e.model, "extract")

	ex, err := parseExtraction(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(ErrFailed, "line %d: %v", line.Index, err)
	}
	if ex == nil {
		zap.L().Debug("extract: line classified as not a wine",
			zap.Int("line", line.Index),
			zap.String("text", line.Text),
		)
	}
	return ex, nil
}

// parseExtraction validates the model payload. A nil extraction with nil
// error means "not a wine": an empty object or a payload without a
// usable name.
func parseExtraction(text string) (*model.Extraction, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "parse payload")
	}

	name := strings.TrimSpace(asString(raw["name"]))
	if name == "" {
		return nil, nil
	}

	conf, ok := toFloat64(raw["confidence"])
	if !ok || conf <= 0 || conf > 1 {
		conf = defaultConfidence
	}

	ex := &model.Extraction{
		Name:       name,
		Vintage:    asString(raw["vintage"]),
		Producer:   asString(raw["producer"]),
		Region:     asString(raw["region"]),
		Country:    asString(raw["country"]),
		Varietals:  asString(raw["varietals"]),
		Confidence: conf,
		Source:     model.SourceClaude,
	}

	attrs := model.Attributes{}
	for _, key := range []string{"price", "style", "aroma", "taste", "food_pairings"} {
		if v := strings.TrimSpace(asString(raw[key])); v != "" {
			attrs[key] = model.FieldValue{Value: v, Confidence: conf, Source: model.SourceClaude}
		}
	}
	if len(attrs) > 0 {
		ex.Attributes = attrs
	}

	return ex, nil
}

// cleanJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object. Returns "" when no object is present.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// Years and prices come back as numbers often enough.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%g", s)
	case []any:
		parts := make([]string, 0, len(s))
		for _, item := range s {
			if p := asString(item); p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
