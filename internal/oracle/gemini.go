package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	logx "animefinder/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel         = "gemini-2.5-flash"
)

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// RatePerSec caps outgoing requests; <= 0 disables throttling.
	RatePerSec float64
}

// Gemini calls the Google AI Studio generateContent API.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	timeout    atomic.Int64
	limiter    *rate.Limiter
	log        logx.Logger
}

func NewGemini(cfg GeminiConfig, log logx.Logger) (*Gemini, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gemini{
		apiKey:     key,
		model:      normalizeModel(cfg.Model),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{},
		log:        log.With(logx.String("comp", "oracle")),
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.baseURL == "" {
		g.baseURL = defaultGeminiBaseURL
	}
	g.timeout.Store(int64(30 * time.Second))
	g.SetTimeout(cfg.Timeout)
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return g, nil
}

// SetTimeout changes the per-request timeout. Safe for concurrent use.
func (g *Gemini) SetTimeout(d time.Duration) {
	if d > 0 {
		g.timeout.Store(int64(d))
	}
}

func (g *Gemini) Suggest(ctx context.Context, query string, candidates []string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeout.Load()))
	defer cancel()

	start := time.Now()
	out, err := g.generate(ctx, BuildPrompt(query, candidates))
	if err != nil {
		g.log.Warn("gemini request failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return "", err
	}
	g.log.Debug("gemini answered",
		logx.String("query", query),
		logx.String("answer", out),
		logx.Int("candidates", len(candidates)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	zero := 0.0
	reqBody := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{Temperature: &zero},
	}
	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	if err := g.doJSON(ctx, url, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyAnswer
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}

func normalizeModel(model string) string {
	return strings.TrimPrefix(strings.TrimSpace(model), "models/")
}

func (g *Gemini) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// the key stays out of the URL, which *url.Error echoes into logs
	req.Header.Set("x-goog-api-key", g.apiKey)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("gemini api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("gemini api error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
