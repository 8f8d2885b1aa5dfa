package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/cellarworks/cellar-cli/internal/model"
	"github.com/cellarworks/cellar-cli/internal/resilience"
	"github.com/cellarworks/cellar-cli/pkg/anthropic"
)

// MinNotesLength is the default floor for usable tasting notes. Shorter
// answers are usually boilerplate and are discarded.
const MinNotesLength = 75

const profileSystem = `You are a sommelier writing tasting profiles for a wine catalog. Respond with a single JSON object and nothing else. Only describe what you actually know about this specific wine; if you are unsure, say so via a low confidence.`

const profilePrompt = `Wine:
%s

Return JSON:
{"tasting_notes": "rich prose description, at least two sentences", "flavor_notes": "...", "aroma_notes": "...", "body": "light|medium|full", "food_pairing": "...", "serving_temp": "...", "aging_potential": "...", "blend_description": "...", "confidence": "low|medium|high"}`

// Generator produces a tasting profile for a stored wine.
type Generator interface {
	Generate(ctx context.Context, rec *model.WineRecord) (*model.Profile, error)
}

// Config tunes the profile generation client.
type Config struct {
	Model          string
	Timeout        time.Duration
	RequestsPerMin float64
}

// ClaudeGenerator asks Claude for a tasting profile. Enrichment is a
// background job, so it uses the slower, richer model and tolerates a
// longer deadline than extraction.
type ClaudeGenerator struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClaudeGenerator creates the profile generation client.
func NewClaudeGenerator(client anthropic.Client, cfg Config) *ClaudeGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 50
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "enrich")
	return &ClaudeGenerator{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMin/60.0), 1),
		retry:   retry,
	}
}

// Generate asks for a profile for one wine record.
func (g *ClaudeGenerator) Generate(ctx context.Context, rec *model.WineRecord) (*model.Profile, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enrich: rate limit wait")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := resilience.DoVal(callCtx, g.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     g.model,
			MaxTokens: 1024,
			System:    profileSystem,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(profilePrompt, describeWine(rec))},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: generate profile for %s", rec.ID)
	}

	resp.Usage.LogCost(g.model, "enrich")

	return parseProfile(resp.Text())
}

// describeWine renders the identity fields the model needs to recognize
// the wine; attributes from extraction are included as hints.
func describeWine(rec *model.WineRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s", rec.Name)
	if rec.Vintage != "" {
		fmt.Fprintf(&b, "\nVintage: %s", rec.Vintage)
	}
	if rec.Producer != "" {
		fmt.Fprintf(&b, "\nProducer: %s", rec.Producer)
	}
	if rec.Region != "" {
		fmt.Fprintf(&b, "\nRegion: %s", rec.Region)
	}
	if rec.Country != "" {
		fmt.Fprintf(&b, "\nCountry: %s", rec.Country)
	}
	if rec.Varietals != "" {
		fmt.Fprintf(&b, "\nVarietals: %s", rec.Varietals)
	}
	return b.String()
}

func parseProfile(text string) (*model.Profile, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("enrich: no JSON object in response")
	}

	var raw struct {
		TastingNotes     string `json:"tasting_notes"`
		FlavorNotes      string `json:"flavor_notes"`
		AromaNotes       string `json:"aroma_notes"`
		Body             string `json:"body"`
		FoodPairing      string `json:"food_pairing"`
		ServingTemp      string `json:"serving_temp"`
		AgingPotential   string `json:"aging_potential"`
		BlendDescription string `json:"blend_description"`
		Confidence       string `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "enrich: parse payload")
	}

	return &model.Profile{
		TastingNotes:     strings.TrimSpace(raw.TastingNotes),
		FlavorNotes:      strings.TrimSpace(raw.FlavorNotes),
		AromaNotes:       strings.TrimSpace(raw.AromaNotes),
		Body:             strings.TrimSpace(raw.Body),
		FoodPairing:      strings.TrimSpace(raw.FoodPairing),
		ServingTemp:      strings.TrimSpace(raw.ServingTemp),
		AgingPotential:   strings.TrimSpace(raw.AgingPotential),
		BlendDescription: strings.TrimSpace(raw.BlendDescription),
		Confidence:       strings.ToLower(strings.TrimSpace(raw.Confidence)),
	}, nil
}

// cleanJSON strips markdown fences and surrounding prose, keeping the
// outermost JSON object.
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

// Acceptable is the quality gate: a profile is persisted only when the
// tasting notes carry real substance and the model did not flag its own
// answer as a guess.
func Acceptable(p *model.Profile, minNotesLength int) bool {
	if p == nil {
		return false
	}
	if minNotesLength <= 0 {
		minNotesLength = MinNotesLength
	}
	if len(strings.TrimSpace(p.TastingNotes)) < minNotesLength {
		return false
	}
	return p.Confidence != "low"
}
