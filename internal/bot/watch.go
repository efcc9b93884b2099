package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
)

// newArrivals tracks which view members have been announced and returns the
// members not seen before.
type newArrivals struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newNewArrivals(initial []*models.Message) *newArrivals {
	n := &newArrivals{seen: make(map[string]struct{}, len(initial))}
	for _, m := range initial {
		n.seen[m.ID] = struct{}{}
	}
	return n
}

func (n *newArrivals) diff(state liveview.State) []*models.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	var fresh []*models.Message
	current := make(map[string]struct{}, len(state.Messages))
	for _, m := range state.Messages {
		current[m.ID] = struct{}{}
		if _, ok := n.seen[m.ID]; !ok {
			fresh = append(fresh, m)
		}
	}
	n.seen = current
	return fresh
}

func (b *Bot) handleWatch(ctx context.Context, message *tgbotapi.Message) {
	phone, ok := b.requirePhone(message)
	if !ok {
		return
	}

	kind, err := liveview.ParseKind(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /watch inbox|flagged")
		return
	}

	chatID := message.Chat.ID
	var arrivals *newArrivals
	ready := make(chan struct{})
	view, err := b.services.Views.Open(ctx, kind, phone, func(state liveview.State) {
		<-ready
		for _, m := range arrivals.diff(state) {
			b.sendMarkdown(chatID, fmt.Sprintf("*New in your %s:*\n", escapeMarkdown(string(kind)))+formatMessage(m))
		}
	})
	if err != nil {
		b.logger.Error("Failed to open view",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("phone", phone))
		b.sendErrorMessage(chatID, "Sorry, I couldn't start watching.")
		return
	}
	arrivals = newNewArrivals(view.Snapshot().Messages)
	close(ready)

	b.mu.Lock()
	if b.watches[chatID] == nil {
		b.watches[chatID] = make(map[liveview.Kind]*liveview.View)
	}
	prior := b.watches[chatID][kind]
	b.watches[chatID][kind] = view
	b.mu.Unlock()
	if prior != nil && prior != view {
		prior.Close()
	}

	go func() {
		<-view.Done()
		b.mu.Lock()
		if b.watches[chatID][kind] == view {
			delete(b.watches[chatID], kind)
		}
		b.mu.Unlock()
	}()

	b.sendMessage(chatID, fmt.Sprintf("Watching your %s. Use /unwatch %s to stop.", kind, kind))
}

func (b *Bot) handleUnwatch(message *tgbotapi.Message) {
	kind, err := liveview.ParseKind(message.CommandArguments())
	if err != nil {
		b.sendMessage(message.Chat.ID, "Usage: /unwatch inbox|flagged")
		return
	}

	b.mu.Lock()
	view := b.watches[message.Chat.ID][kind]
	delete(b.watches[message.Chat.ID], kind)
	b.mu.Unlock()

	if view == nil {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("You are not watching your %s.", kind))
		return
	}
	view.Close()
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Stopped watching your %s.", kind))
}

func (b *Bot) stopWatches() {
	b.mu.Lock()
	var views []*liveview.View
	for _, byKind := range b.watches {
		for _, v := range byKind {
			views = append(views, v)
		}
	}
	b.watches = make(map[int64]map[liveview.Kind]*liveview.View)
	b.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}
