package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
)

type Scanner interface {
	Scan(ctx context.Context, userID, url string) (*activity.ScanResult, error)
	Dashboard(ctx context.Context, userID string) (*activity.Dashboard, error)
}

type Messages interface {
	Send(ctx context.Context, sender, receiver, text string) (*models.Message, error)
	Get(ctx context.Context, id string) (*models.Message, error)
	List(ctx context.Context, receiver string, level models.RiskLevel) ([]*models.Message, error)
	Delete(ctx context.Context, id string) error
	ReportAndDelete(ctx context.Context, id string) (*reputation.ReportResult, error)
}

type Views interface {
	Open(ctx context.Context, kind liveview.Kind, phone string, onChange func(liveview.State)) (*liveview.View, error)
}

type Coach interface {
	Reply(ctx context.Context, userID, text string) (string, error)
	Advice(ctx context.Context, userID string) (string, error)
	Reset(userID string)
}

// Services are the components the bot talks to.
type Services struct {
	Scanner  Scanner
	Messages Messages
	Views    Views
	Coach    Coach
}

// sender is the part of the Telegram client the bot writes through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	client   *tgbotapi.BotAPI
	api      sender
	services Services
	logger   *zap.Logger

	mu      sync.Mutex
	phones  map[int64]string
	watches map[int64]map[liveview.Kind]*liveview.View
}

func New(token string, services Services, logger *zap.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(client, services, logger)
	b.client = client
	return b, nil
}

func newBot(api sender, services Services, logger *zap.Logger) *Bot {
	return &Bot{
		api:      api,
		services: services,
		logger:   logger.Named("bot"),
		phones:   make(map[int64]string),
		watches:  make(map[int64]map[liveview.Kind]*liveview.View),
	}
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.client.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.client.Self.UserName))

	defer b.stopWatches()
	for {
		select {
		case <-ctx.Done():
			b.client.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}
	if text == "" {
		return
	}
	b.handleChat(ctx, message, text)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "scan":
		b.handleScan(ctx, message)
	case "dashboard":
		b.handleDashboard(ctx, message)
	case "setphone":
		b.handleSetPhone(message)
	case "inbox":
		b.handleList(ctx, message, liveview.KindInbox)
	case "flagged":
		b.handleList(ctx, message, liveview.KindFlagged)
	case "send":
		b.handleSend(ctx, message)
	case "templates":
		b.handleTemplates(message)
	case "template":
		b.handleSendTemplate(ctx, message)
	case "report":
		b.handleReport(ctx, message)
	case "delete":
		b.handleDelete(ctx, message)
	case "watch":
		b.handleWatch(ctx, message)
	case "unwatch":
		b.handleUnwatch(message)
	case "advice":
		b.handleAdvice(ctx, message)
	case "reset":
		b.services.Coach.Reset(userKey(message))
		b.sendMessage(message.Chat.ID, "Conversation cleared.")
	case "tip":
		b.handleTip(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) phone(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.phones[chatID]
	return p, ok
}

func (b *Bot) setPhone(chatID int64, phone string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.phones[chatID] = phone
}

// userKey identifies a Telegram user in activity logs and coach sessions.
func userKey(message *tgbotapi.Message) string {
	return "tg:" + strconv.FormatInt(message.From.ID, 10)
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// sendMarkdown sends text already escaped for MarkdownV2.
func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send formatted message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
