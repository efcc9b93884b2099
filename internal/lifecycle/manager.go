package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
	"github.com/xaenox/shieldbot/internal/storage"
)

var (
	// ErrValidation marks a submission rejected before anything is stored.
	ErrValidation = errors.New("invalid message")
	// ErrBlocked is returned when the receiver has blocked the sender.
	ErrBlocked = errors.New("sender is blocked by receiver")
)

// Reputation gates submissions and records reports.
type Reputation interface {
	IsBlocked(ctx context.Context, sender, receiver string) (bool, error)
	ReportSender(ctx context.Context, sender, reporter string) (*reputation.ReportResult, error)
}

type Config struct {
	// PromoteSuspicious commits a keyword-sniffed "suspicious" verdict as
	// dangerous so it lands in a view.
	PromoteSuspicious bool
	// WatchWorkers bounds concurrent classifications started by Watch.
	WatchWorkers int
}

// Manager owns the pending to final transition of SMS messages. It is the
// only component that commits verdicts.
type Manager struct {
	store      storage.MessageStore
	feed       storage.ChangeFeed
	classifier classifier.MessageClassifier
	reputation Reputation
	cfg        Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewManager(
	store storage.MessageStore,
	feed storage.ChangeFeed,
	c classifier.MessageClassifier,
	rep Reputation,
	cfg Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Manager {
	if cfg.WatchWorkers <= 0 {
		cfg.WatchWorkers = 4
	}
	return &Manager{
		store:      store,
		feed:       feed,
		classifier: c,
		reputation: rep,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Named("lifecycle"),
		now:        time.Now,
		inflight:   make(map[string]chan struct{}),
	}
}

// Send validates and stores a message as pending, then classifies it inline
// and returns the analyzed row. Blocked or invalid submissions store nothing.
func (m *Manager) Send(ctx context.Context, sender, receiver, text string) (*models.Message, error) {
	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	text = strings.TrimSpace(text)

	switch {
	case sender == "" || receiver == "" || text == "":
		return nil, fmt.Errorf("%w: sender, receiver and text are required", ErrValidation)
	case sender == receiver:
		return nil, fmt.Errorf("%w: sender and receiver must differ", ErrValidation)
	}

	blocked, err := m.reputation.IsBlocked(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	if blocked {
		m.metrics.ObserveBlockedSend()
		m.logger.Info("Blocked submission",
			zap.String("sender", sender),
			zap.String("receiver", receiver))
		return nil, ErrBlocked
	}

	msg := &models.Message{
		SenderNumber:   sender,
		ReceiverNumber: receiver,
		MessageText:    text,
		RiskLevel:      models.RiskPending,
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("storing message: %w", err)
	}

	return m.Analyze(ctx, msg.ID)
}

// Analyze classifies a pending message and commits the verdict. Analyzing a
// message that already has a verdict returns the stored row unchanged.
// Concurrent calls for one id within this process share a single
// classification. Once classification starts it runs to the commit even if
// ctx is cancelled.
func (m *Manager) Analyze(ctx context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	if wait, busy := m.inflight[id]; busy {
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return m.store.GetMessage(ctx, id)
	}
	done := make(chan struct{})
	m.inflight[id] = done
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, id)
		m.mu.Unlock()
		close(done)
	}()

	msg, err := m.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}
	if msg.RiskLevel.IsFinal() {
		return msg, nil
	}

	// A caller going away must not turn into a fail-open verdict; the
	// classifier's own timeout bounds the call.
	work := context.WithoutCancel(ctx)
	verdict := m.classifier.ClassifyMessage(work, msg.SenderNumber, msg.MessageText)
	if verdict.RiskLevel == models.RiskSuspicious && m.cfg.PromoteSuspicious {
		verdict.RiskLevel = models.RiskDangerous
	}

	committed, err := m.store.CommitVerdict(work, id, verdict, m.now())
	if errors.Is(err, storage.ErrAlreadyAnalyzed) {
		m.logger.Debug("Verdict already committed",
			zap.String("message_id", id),
			zap.String("risk_level", string(committed.RiskLevel)))
		return committed, nil
	}
	if err != nil {
		m.logger.Error("Failed to commit verdict",
			zap.String("message_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("committing verdict for %s: %w", id, err)
	}

	m.metrics.ObserveVerdict(committed.RiskLevel)
	m.logger.Info("Message analyzed",
		zap.String("message_id", id),
		zap.String("risk_level", string(committed.RiskLevel)))
	return committed, nil
}

// Delete removes a message. Open views see a delete event.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("deleting message %s: %w", id, err)
	}
	return nil
}

// ReportAndDelete reports the sender of a message on behalf of its receiver
// and then deletes the message.
func (m *Manager) ReportAndDelete(ctx context.Context, id string) (*reputation.ReportResult, error) {
	msg, err := m.store.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", id, err)
	}

	result, err := m.reputation.ReportSender(ctx, msg.SenderNumber, msg.ReceiverNumber)
	if err != nil {
		return nil, err
	}

	if err := m.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return result, err
	}
	return result, nil
}

// List returns the receiver's messages at the given level, newest first. An
// empty level lists every message.
func (m *Manager) List(ctx context.Context, receiver string, level models.RiskLevel) ([]*models.Message, error) {
	msgs, err := m.store.ListMessages(ctx, storage.MessageFilter{ReceiverNumber: receiver, RiskLevel: level})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// Get returns a single message.
func (m *Manager) Get(ctx context.Context, id string) (*models.Message, error) {
	return m.store.GetMessage(ctx, id)
}

// Watch classifies every pending insert seen on the change feed until ctx is
// done. It picks up messages written by other producers, and on start it
// sweeps rows left pending by an earlier run, and again whenever the feed
// signals a resync.
func (m *Manager) Watch(ctx context.Context) error {
	sub, err := m.feed.Subscribe(ctx, "")
	if err != nil {
		return fmt.Errorf("subscribing to change feed: %w", err)
	}
	defer sub.Close()

	sem := make(chan struct{}, m.cfg.WatchWorkers)
	var wg sync.WaitGroup
	defer wg.Wait()

	analyze := func(id string) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := m.Analyze(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("Background analysis failed", zap.String("message_id", id), zap.Error(err))
			}
		}()
	}

	sweep := func() {
		pending, err := m.store.ListMessages(ctx, storage.MessageFilter{RiskLevel: models.RiskPending})
		if err != nil {
			m.logger.Warn("Failed to sweep pending messages", zap.Error(err))
			return
		}
		for _, msg := range pending {
			analyze(msg.ID)
		}
	}
	sweep()

	m.logger.Info("Watching for pending messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			switch {
			case ev.Type == storage.EventResync:
				m.logger.Info("Change feed resync, sweeping pending messages")
				sweep()
			case ev.Type == storage.EventInsert && ev.Message.RiskLevel == models.RiskPending:
				analyze(ev.Message.ID)
			}
		}
	}
}
