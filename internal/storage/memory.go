package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/shieldbot/internal/models"
)

// MemoryStorage keeps every table in maps. Changes are published while the
// write lock is held, so the feed observes commit order.
type MemoryStorage struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	reports  map[string]*models.ReportedNumber
	activity map[string][]*models.ActivityLog
	feed     *Broadcaster
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		messages: make(map[string]*models.Message),
		reports:  make(map[string]*models.ReportedNumber),
		activity: make(map[string][]*models.ActivityLog),
		feed:     NewBroadcaster(),
		now:      time.Now,
	}
}

// Message methods
func (s *MemoryStorage) InsertMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.now().UTC()
	}
	if m.RiskLevel == "" {
		m.RiskLevel = models.RiskPending
	}

	s.messages[m.ID] = m.Clone()
	s.feed.Publish(ChangeEvent{Type: EventInsert, Message: m})
	return nil
}

func (s *MemoryStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, exists := s.messages[id]; exists {
		return m.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListMessages(ctx context.Context, filter MessageFilter) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Message, 0)
	for _, m := range s.messages {
		if filter.ReceiverNumber != "" && m.ReceiverNumber != filter.ReceiverNumber {
			continue
		}
		if filter.RiskLevel != "" && m.RiskLevel != filter.RiskLevel {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SentAt.After(out[j].SentAt)
	})
	return out, nil
}

func (s *MemoryStorage) CommitVerdict(ctx context.Context, id string, verdict models.Verdict, analyzedAt time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.messages[id]
	if !exists {
		return nil, ErrNotFound
	}
	if m.RiskLevel != models.RiskPending {
		return m.Clone(), ErrAlreadyAnalyzed
	}

	explanation := verdict.Explanation
	at := analyzedAt.UTC()
	m.RiskLevel = verdict.RiskLevel
	m.AIExplanation = &explanation
	m.AnalyzedAt = &at

	s.feed.Publish(ChangeEvent{Type: EventUpdate, Message: m})
	return m.Clone(), nil
}

func (s *MemoryStorage) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.messages[id]
	if !exists {
		return ErrNotFound
	}
	delete(s.messages, id)
	s.feed.Publish(ChangeEvent{Type: EventDelete, Message: m})
	return nil
}

// Reputation methods
func (s *MemoryStorage) GetReportedNumber(ctx context.Context, sender string) (*models.ReportedNumber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.reports[sender]; exists {
		return cloneReport(r), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) AddReport(ctx context.Context, sender, reporter string, allowDuplicate bool) (*models.ReportedNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.reports[sender]
	if !exists {
		r = &models.ReportedNumber{SenderNumber: sender, ReportedBy: []string{}}
		s.reports[sender] = r
	}

	if !allowDuplicate && r.HasReporter(reporter) {
		return cloneReport(r), nil
	}

	r.ReportedBy = append(r.ReportedBy, reporter)
	r.ReportCount = len(r.ReportedBy)
	r.UpdatedAt = s.now().UTC()
	return cloneReport(r), nil
}

// Activity methods
func (s *MemoryStorage) AppendActivity(ctx context.Context, log *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = s.now().UTC()
	}

	entry := *log
	s.activity[log.UserID] = append(s.activity[log.UserID], &entry)
	return nil
}

func (s *MemoryStorage) ListActivity(ctx context.Context, filter ActivityFilter) ([]*models.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var source []*models.ActivityLog
	if filter.UserID != "" {
		source = s.activity[filter.UserID]
	} else {
		for _, logs := range s.activity {
			source = append(source, logs...)
		}
	}

	out := make([]*models.ActivityLog, 0, len(source))
	for i := len(source) - 1; i >= 0; i-- {
		l := source[i]
		if filter.RiskLevel != "" && l.RiskLevel != filter.RiskLevel {
			continue
		}
		if !filter.Since.IsZero() && l.Timestamp.Before(filter.Since) {
			continue
		}
		entry := *l
		out = append(out, &entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) Subscribe(ctx context.Context, receiver string) (*Subscription, error) {
	return s.feed.Subscribe(ctx, receiver)
}

func (s *MemoryStorage) Close() error {
	s.feed.Close()
	return nil
}

func cloneReport(r *models.ReportedNumber) *models.ReportedNumber {
	c := *r
	c.ReportedBy = append([]string(nil), r.ReportedBy...)
	return &c
}
