// Package ai provides the Claude-backed completion capability behind the
// extraction fallback stage and the normalizer's escalation path. One
// Client serves every worker: the per-tick call budget and the prompt
// cache are process-wide.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
)

const (
	defaultModel      = "claude-sonnet-4-5"
	defaultMaxTokens  = 1024
	defaultTickBudget = 200
	defaultCacheSize  = 1024
	defaultTimeout    = 30 * time.Second
)

// Call outcome labels.
const (
	outcomeOK              = "ok"
	outcomeError           = "error"
	outcomeBudgetExhausted = "budget_exhausted"
)

// Client answers prompts through the Anthropic API under a per-tick call
// budget, with completions cached by prompt hash. Cache hits are free;
// every miss spends one budget slot whether or not the call succeeds.
type Client struct {
	api         anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
	budget      int64
	metrics     *metrics.Metrics
	log         logger.Interface

	spent atomic.Int64
	cache *lru.Cache[string, string]
}

// New builds a Client from config. The API key may be a SECRET:NAME
// reference resolved through the given resolver; the resolved value never
// appears in logs. Extra request options are appended after the key, so
// tests can point the client at a local server.
func New(cfg *config.AIConfig, resolver secrets.Resolver, log logger.Interface, opts ...option.RequestOption) (*Client, error) {
	key, err := secrets.Expand(resolver, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}
	if key == "" {
		return nil, errors.New("ai: api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	budget := cfg.TickBudget
	if budget <= 0 {
		budget = defaultTickBudget
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("ai: cache: %w", err)
	}

	// One Complete is one wire call: the SDK's own retry layer is off so
	// the budget stays an upper bound on API traffic.
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}, opts...)

	log.Debug("AI client initialized",
		"model", model,
		"max_tokens", maxTokens,
		"tick_budget", budget,
		"cache_size", cacheSize)

	return &Client{
		api:         anthropic.NewClient(clientOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		budget:      int64(budget),
		log:         log,
		cache:       cache,
	}, nil
}

// SetMetrics attaches call and cache instrumentation. Call before the
// first Complete; leaving it unset disables recording.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

type bypassKey struct{}

// WithoutBudget marks ctx so completions on it ignore the per-tick call
// ceiling. Calls still count as spent. Operator-triggered runs use it;
// scheduled runs never do.
func WithoutBudget(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func budgetBypassed(ctx context.Context) bool {
	bypass, _ := ctx.Value(bypassKey{}).(bool)
	return bypass
}

// ResetBudget opens a fresh spending window. The scheduler calls this at
// the top of every tick.
func (c *Client) ResetBudget() {
	c.spent.Store(0)
}

// Spent reports the calls charged in the current window.
func (c *Client) Spent() int64 {
	n := c.spent.Load()
	if n > c.budget {
		return c.budget
	}
	return n
}

// Complete answers one prompt. A cached completion returns without
// touching the budget; an exhausted budget fails fast so callers can stop
// escalating for the rest of the tick, unless the context carries
// WithoutBudget.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	key := promptKey(prompt)
	if reply, ok := c.cache.Get(key); ok {
		if c.metrics != nil {
			c.metrics.AICacheHitsTotal.Inc()
		}
		return reply, nil
	}

	if n := c.spent.Add(1); n > c.budget && !budgetBypassed(ctx) {
		c.record(outcomeBudgetExhausted)
		return "", domain.NewPipelineError(domain.ErrAIBudgetExhausted, false,
			fmt.Errorf("budget of %d calls spent this tick", c.budget))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.record(outcomeError)
		c.log.Warn("AI completion failed", "model", c.model, "error", err.Error())
		return "", classifyAPIError(err)
	}

	reply := textOf(resp)
	if reply == "" {
		c.record(outcomeError)
		return "", domain.NewPipelineError(domain.ErrAIProviderError, false,
			errors.New("completion has no text content"))
	}

	c.record(outcomeOK)
	c.cache.Add(key, reply)
	c.log.Debug("AI completion",
		"model", c.model,
		"spent", c.Spent(),
		"prompt_bytes", len(prompt),
		"reply_bytes", len(reply))

	return reply, nil
}

// record counts one budget-charged call by outcome.
func (c *Client) record(outcome string) {
	if c.metrics != nil {
		c.metrics.AICallsTotal.WithLabelValues(outcome).Inc()
	}
}

// promptKey is the cache key for a prompt. Identical prompts are the
// dedupe unit, so the prompt builders upstream must stay deterministic.
func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// textOf joins the text blocks of a completion.
func textOf(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// classifyAPIError maps SDK failures onto the ai.* kinds. Rate limits and
// server trouble may clear by the next run; auth and request-shape
// problems will not.
func classifyAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retriable := apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= http.StatusInternalServerError
		return domain.NewPipelineError(domain.ErrAIProviderError, retriable, err)
	}
	// No HTTP status means transport or timeout trouble.
	return domain.NewPipelineError(domain.ErrAIProviderError, true, err)
}
