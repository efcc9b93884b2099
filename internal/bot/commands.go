package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/coach"
	"github.com/xaenox/shieldbot/internal/lifecycle"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/storage"
)

const listLimit = 10

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to ShieldBot! 🛡️
I check links before you open them, screen SMS messages for scams, and answer your security questions.

` + coach.Greeting + `

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/scan <url> - Check a link
/dashboard - Your scan statistics
/advice - Security advice based on your scans
/tip - A random safety tip

/setphone <number> - Register your phone number
/inbox - Messages judged safe
/flagged - Messages judged dangerous
/send <number> <text> - Send an SMS from your number
/templates - List sample messages
/template <name> <number> - Send a sample message
/report <id> - Report the sender and delete the message
/delete <id> - Delete a message
/watch inbox|flagged - Get notified about new messages
/unwatch inbox|flagged - Stop notifications
/reset - Clear the assistant conversation

Any other text is answered by the security assistant.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleScan(ctx context.Context, message *tgbotapi.Message) {
	url := strings.TrimSpace(message.CommandArguments())
	if url == "" {
		b.sendMessage(message.Chat.ID, "Usage: /scan <url>")
		return
	}

	res, err := b.services.Scanner.Scan(ctx, userKey(message), url)
	if err != nil {
		b.logger.Error("Failed to scan URL",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, userError(err))
		return
	}
	if res.DetailsErr != nil {
		b.logger.Warn("Scan recorded without details",
			zap.Error(res.DetailsErr),
			zap.Int64("user_id", message.From.ID))
	}

	b.sendMarkdown(message.Chat.ID, formatScan(res))
}

func (b *Bot) handleDashboard(ctx context.Context, message *tgbotapi.Message) {
	d, err := b.services.Scanner.Dashboard(ctx, userKey(message))
	if err != nil {
		b.logger.Error("Failed to load dashboard",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your dashboard.")
		return
	}
	b.sendMarkdown(message.Chat.ID, formatDashboard(d))
}

func (b *Bot) handleSetPhone(message *tgbotapi.Message) {
	number := strings.TrimSpace(message.CommandArguments())
	if number == "" || strings.ContainsAny(number, " \t") {
		b.sendMessage(message.Chat.ID, "Usage: /setphone <number>")
		return
	}

	b.setPhone(message.Chat.ID, number)
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Phone number set to %s.", number))
}

// requirePhone returns the chat's registered number or tells the user to
// register one.
func (b *Bot) requirePhone(message *tgbotapi.Message) (string, bool) {
	phone, ok := b.phone(message.Chat.ID)
	if !ok {
		b.sendMessage(message.Chat.ID, "Register your phone number first with /setphone <number>.")
	}
	return phone, ok
}

func (b *Bot) handleList(ctx context.Context, message *tgbotapi.Message, kind liveview.Kind) {
	phone, ok := b.requirePhone(message)
	if !ok {
		return
	}

	msgs, err := b.services.Messages.List(ctx, phone, kind.Level())
	if err != nil {
		b.logger.Error("Failed to list messages",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("phone", phone))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your messages.")
		return
	}

	if len(msgs) == 0 {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Your %s is empty.", kind))
		return
	}
	b.sendMarkdown(message.Chat.ID, formatMessages(kind, msgs, listLimit))
}

func (b *Bot) handleSend(ctx context.Context, message *tgbotapi.Message) {
	phone, ok := b.requirePhone(message)
	if !ok {
		return
	}

	receiver, text, found := strings.Cut(strings.TrimSpace(message.CommandArguments()), " ")
	if !found || strings.TrimSpace(text) == "" {
		b.sendMessage(message.Chat.ID, "Usage: /send <number> <text>")
		return
	}
	b.send(ctx, message, phone, receiver, text)
}

func (b *Bot) handleTemplates(message *tgbotapi.Message) {
	var sb strings.Builder
	sb.WriteString("*Sample messages:*\n")
	for _, t := range lifecycle.Templates() {
		sb.WriteString(fmt.Sprintf("`%s` %s\n", escapeMarkdown(t.Name), escapeMarkdown("("+string(t.Expected)+")")))
	}
	b.sendMarkdown(message.Chat.ID, sb.String())
}

func (b *Bot) handleSendTemplate(ctx context.Context, message *tgbotapi.Message) {
	phone, ok := b.requirePhone(message)
	if !ok {
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		b.sendMessage(message.Chat.ID, "Usage: /template <name> <number>")
		return
	}
	tmpl, found := lifecycle.TemplateByName(args[0])
	if !found {
		b.sendMessage(message.Chat.ID, "Unknown template. Use /templates to list them.")
		return
	}
	b.send(ctx, message, phone, args[1], tmpl.Text)
}

func (b *Bot) send(ctx context.Context, message *tgbotapi.Message, sender, receiver, text string) {
	msg, err := b.services.Messages.Send(ctx, sender, receiver, text)
	if err != nil {
		b.logger.Warn("Failed to send SMS",
			zap.Error(err),
			zap.String("sender", sender),
			zap.String("receiver", receiver))
		b.sendErrorMessage(message.Chat.ID, userError(err))
		return
	}
	b.sendMarkdown(message.Chat.ID, "*Sent\\.*\n"+formatMessage(msg))
}

// ownedMessage loads a message addressed to the chat's phone number.
func (b *Bot) ownedMessage(ctx context.Context, message *tgbotapi.Message) (*models.Message, bool) {
	phone, ok := b.requirePhone(message)
	if !ok {
		return nil, false
	}

	id := strings.TrimSpace(message.CommandArguments())
	if id == "" {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Usage: /%s <id>", message.Command()))
		return nil, false
	}

	msg, err := b.services.Messages.Get(ctx, id)
	if err == nil && msg.ReceiverNumber != phone {
		err = storage.ErrNotFound
	}
	if err != nil {
		b.sendErrorMessage(message.Chat.ID, userError(err))
		return nil, false
	}
	return msg, true
}

func (b *Bot) handleReport(ctx context.Context, message *tgbotapi.Message) {
	msg, ok := b.ownedMessage(ctx, message)
	if !ok {
		return
	}

	res, err := b.services.Messages.ReportAndDelete(ctx, msg.ID)
	if err != nil {
		b.logger.Error("Failed to report sender",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		b.sendErrorMessage(message.Chat.ID, userError(err))
		return
	}

	text := fmt.Sprintf("Reported %s (%d reports). The message was deleted.", msg.SenderNumber, res.ReportCount)
	if res.IsBlocked {
		text += " This sender is now blocked."
	}
	b.sendMessage(message.Chat.ID, text)
}

func (b *Bot) handleDelete(ctx context.Context, message *tgbotapi.Message) {
	msg, ok := b.ownedMessage(ctx, message)
	if !ok {
		return
	}

	if err := b.services.Messages.Delete(ctx, msg.ID); err != nil {
		b.sendErrorMessage(message.Chat.ID, userError(err))
		return
	}
	b.sendMessage(message.Chat.ID, "Message deleted.")
}

func (b *Bot) handleAdvice(ctx context.Context, message *tgbotapi.Message) {
	advice, err := b.services.Coach.Advice(ctx, userKey(message))
	if err != nil {
		b.logger.Warn("Failed to generate advice",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		if errors.Is(err, coach.ErrNoActivity) {
			b.sendMessage(message.Chat.ID, "No scans yet. Check a link with /scan first.")
			return
		}
		b.sendErrorMessage(message.Chat.ID, coach.AdviceApology)
		return
	}
	b.sendMessage(message.Chat.ID, advice)
}

func (b *Bot) handleTip(message *tgbotapi.Message) {
	b.sendMessage(message.Chat.ID, "💡 "+coach.RandomTip())
}

func (b *Bot) handleChat(ctx context.Context, message *tgbotapi.Message, text string) {
	reply, err := b.services.Coach.Reply(ctx, userKey(message), text)
	if err != nil {
		b.logger.Warn("Assistant reply failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
	}
	if reply == "" {
		reply = coach.ApologyMessage
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send assistant reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// userError turns a service error into a message for the chat.
func userError(err error) string {
	var transportErr *classifier.TransportError
	switch {
	case errors.Is(err, lifecycle.ErrBlocked):
		return "This sender has been blocked by the receiver."
	case errors.Is(err, lifecycle.ErrValidation):
		return "Sender, receiver and text are required, and sender and receiver must differ."
	case errors.Is(err, storage.ErrNotFound):
		return "Message not found."
	case errors.Is(err, classifier.ErrNotConfigured):
		return "AI features are not configured."
	case errors.As(err, &transportErr):
		return "The AI service is unavailable. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}
