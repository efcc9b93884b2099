package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
)

const (
	opClassify = "classify_message"
	opExplain  = "explain_url"
	opChat     = "chat"
	opAdvice   = "summarize_activity"
)

// Config configures the completion client.
type Config struct {
	APIKey       string
	BaseURL      string
	MessageModel string
	AdviceModel  string
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	// FailurePolicy is the verdict committed when a message cannot be
	// classified because the endpoint is unreachable or unconfigured.
	FailurePolicy models.RiskLevel
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.MessageModel == "" {
		c.MessageModel = "llama-3.1-8b-instant"
	}
	if c.AdviceModel == "" {
		c.AdviceModel = "llama-3.3-70b-versatile"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.FailurePolicy != models.RiskDangerous {
		c.FailurePolicy = models.RiskSafe
	}
	return c
}

type sampling struct {
	model       string
	temperature float32
	maxTokens   int
}

// AIClassifier talks to an OpenAI-compatible chat completion endpoint.
type AIClassifier struct {
	client  *openai.Client
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewAIClassifier(cfg Config, m *metrics.Metrics, logger *zap.Logger) *AIClassifier {
	cfg = cfg.withDefaults()
	c := &AIClassifier{cfg: cfg, metrics: m, logger: logger.Named("classifier")}

	if cfg.APIKey == "" {
		c.logger.Warn("AI API key is not configured, AI features are disabled")
		return c
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	c.client = openai.NewClientWithConfig(clientCfg)
	return c
}

// ClassifyMessage returns safe or dangerous for an SMS. Unparseable replies
// are keyword-sniffed; transport failures yield the failure policy.
func (c *AIClassifier) ClassifyMessage(ctx context.Context, sender, text string) models.Verdict {
	content, err := c.complete(ctx, opClassify, sampling{c.cfg.MessageModel, 0.3, 150}, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: messageSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: messageUserPrompt(sender, text)},
	})
	if errors.Is(err, ErrNotConfigured) {
		return models.Verdict{RiskLevel: c.cfg.FailurePolicy, Explanation: "AI analysis unavailable"}
	}
	if err != nil {
		c.logger.Error("Failed to classify message",
			zap.Error(err),
			zap.String("sender", sender),
			zap.String("policy", string(c.cfg.FailurePolicy)))
		return models.Verdict{
			RiskLevel:   c.cfg.FailurePolicy,
			Explanation: fmt.Sprintf("Analysis failed - defaulting to %s", c.cfg.FailurePolicy),
		}
	}

	verdict := parseVerdict(content)
	c.logger.Debug("Message classified",
		zap.String("sender", sender),
		zap.String("risk_level", string(verdict.RiskLevel)))
	return verdict
}

// ExplainURL asks for threats and tips for a medium-risk URL. Only missing
// configuration and transport failures are returned as errors.
func (c *AIClassifier) ExplainURL(ctx context.Context, url string) (*models.RiskDetails, error) {
	content, err := c.complete(ctx, opExplain, sampling{c.cfg.AdviceModel, 0.7, 500}, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: explainSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: explainUserPrompt(url)},
	})
	if err != nil {
		return nil, err
	}

	details, ok := parseRiskDetails(content)
	if !ok {
		c.logger.Warn("Failed to parse URL explanation, using fallback",
			zap.String("url", url),
			zap.String("response", content))
		return FallbackRiskDetails(), nil
	}
	return details, nil
}

// Chat continues a coach conversation. activity, newest first, is folded into
// the system prompt.
func (c *AIClassifier) Chat(ctx context.Context, history []models.ChatMessage, activity []*models.ActivityLog) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: chatSystemMessage(activity)})
	for _, m := range history {
		if m.Role != models.ChatRoleUser && m.Role != models.ChatRoleAssistant {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	content, err := c.complete(ctx, opChat, sampling{c.cfg.AdviceModel, 0.8, 1024}, msgs)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "I'm having trouble responding right now.", nil
	}
	return content, nil
}

// SummarizeActivity produces security advice for a batch of scans.
func (c *AIClassifier) SummarizeActivity(ctx context.Context, logs []*models.ActivityLog) (string, error) {
	content, err := c.complete(ctx, opAdvice, sampling{c.cfg.AdviceModel, 0.7, 1024}, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: adviceSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: adviceUserPrompt(logs)},
	})
	if err != nil {
		return "", err
	}
	if content == "" {
		return "No advice generated", nil
	}
	return content, nil
}

func (c *AIClassifier) complete(ctx context.Context, op string, s sampling, msgs []openai.ChatCompletionMessage) (string, error) {
	if c.client == nil {
		c.metrics.ObserveAIRequest(op, "not_configured")
		return "", ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}

	var content string
	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Completion request failed",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		if len(resp.Choices) > 0 {
			content = strings.TrimSpace(resp.Choices[0].Message.Content)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryDelay
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(operation, retry); err != nil {
		c.metrics.ObserveAIRequest(op, "error")
		return "", &TransportError{Op: op, Err: err}
	}
	c.metrics.ObserveAIRequest(op, "ok")
	return content, nil
}

// retryable limits retries to network failures, rate limiting and server
// errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
