package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/models"
)

const (
	Greeting       = "Hi! I'm your CyberShield AI assistant. I can help you understand online threats, analyze URLs, and answer any cybersecurity questions. How can I help you today?"
	ApologyMessage = "I'm sorry, I encountered an error. Please check your API key and try again."
	AdviceApology  = "I'm sorry, I couldn't analyze your activity. Please try again."

	adviceRequest = "Please analyze my recent browsing activity and provide security recommendations."

	// activityWindow is how many recent scans are loaded as chat context.
	activityWindow    = 50
	defaultMaxHistory = 20
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoActivity   = errors.New("no activity logs found, start monitoring URLs first")
)

// ActivitySource returns a user's scans, newest first.
type ActivitySource interface {
	Recent(ctx context.Context, userID string, limit int) ([]*models.ActivityLog, error)
}

// Coach holds one conversation per user and relays it to the assistant with
// the user's recent activity as context.
type Coach struct {
	assistant  classifier.Assistant
	activity   ActivitySource
	maxHistory int
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string][]models.ChatMessage
}

func New(assistant classifier.Assistant, activity ActivitySource, maxHistory int, logger *zap.Logger) *Coach {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Coach{
		assistant:  assistant,
		activity:   activity,
		maxHistory: maxHistory,
		logger:     logger.Named("coach"),
		sessions:   make(map[string][]models.ChatMessage),
	}
}

// Reply answers text within the user's conversation. On failure the apology
// is returned together with the error and the exchange is not kept.
func (c *Coach) Reply(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	question := models.ChatMessage{Role: models.ChatRoleUser, Content: text}
	history := c.append(userID, question)

	logs, err := c.activity.Recent(ctx, userID, activityWindow)
	if err != nil {
		c.logger.Warn("Failed to load activity for chat context", zap.String("user_id", userID), zap.Error(err))
		logs = nil
	}

	reply, err := c.assistant.Chat(ctx, history, logs)
	if err != nil {
		c.logger.Error("Failed to get chat reply", zap.String("user_id", userID), zap.Error(err))
		c.drop(userID, question)
		return ApologyMessage, err
	}

	c.append(userID, models.ChatMessage{Role: models.ChatRoleAssistant, Content: reply})
	return reply, nil
}

// Advice summarizes the user's recent scans into security recommendations.
func (c *Coach) Advice(ctx context.Context, userID string) (string, error) {
	logs, err := c.activity.Recent(ctx, userID, activityWindow)
	if err != nil {
		return "", fmt.Errorf("loading activity: %w", err)
	}
	if len(logs) == 0 {
		return "", ErrNoActivity
	}

	advice, err := c.assistant.SummarizeActivity(ctx, logs)
	if err != nil {
		c.logger.Error("Failed to get activity advice", zap.String("user_id", userID), zap.Error(err))
		return AdviceApology, err
	}

	c.append(userID, models.ChatMessage{Role: models.ChatRoleUser, Content: adviceRequest})
	c.append(userID, models.ChatMessage{Role: models.ChatRoleAssistant, Content: advice})
	return advice, nil
}

// History returns a copy of the user's conversation.
func (c *Coach) History(userID string) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.sessions[userID]...)
}

// Reset forgets the user's conversation.
func (c *Coach) Reset(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, userID)
}

// drop removes the most recent occurrence of msg from the conversation.
func (c *Coach) drop(userID string, msg models.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := c.sessions[userID]
	for i := len(history) - 1; i >= 0; i-- {
		if history[i] == msg {
			c.sessions[userID] = append(history[:i:i], history[i+1:]...)
			return
		}
	}
}

// append adds msg and trims the conversation to maxHistory, returning a copy.
func (c *Coach) append(userID string, msg models.ChatMessage) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.sessions[userID], msg)
	if len(history) > c.maxHistory {
		history = append([]models.ChatMessage(nil), history[len(history)-c.maxHistory:]...)
	}
	c.sessions[userID] = history
	return append([]models.ChatMessage(nil), history...)
}
