package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/shieldbot/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyAnalyzed is returned by CommitVerdict when the message is no
	// longer pending. The stored row is returned alongside it.
	ErrAlreadyAnalyzed = errors.New("message already analyzed")
)

// EventType is the kind of change carried on the feed.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventResync carries no message. It is sent after the feed may have
	// lost events, and consumers should reload what they track.
	EventResync EventType = "resync"
)

// ChangeEvent is one change to an sms_messages row. For deletes Message holds
// the last stored state; for resyncs it is nil.
type ChangeEvent struct {
	Type    EventType       `json:"type"`
	Message *models.Message `json:"message"`
}

// MessageFilter selects messages by equality. Zero fields match everything.
type MessageFilter struct {
	ReceiverNumber string
	RiskLevel      models.RiskLevel
}

// ActivityFilter selects activity logs. Results are always newest first.
type ActivityFilter struct {
	UserID    string
	RiskLevel models.URLRisk
	Since     time.Time
	Limit     int
}

type MessageStore interface {
	// InsertMessage stores m as pending, assigning ID and SentAt when empty.
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns matching messages newest first.
	ListMessages(ctx context.Context, filter MessageFilter) ([]*models.Message, error)
	// CommitVerdict moves a pending message to its final level. It is a
	// compare-and-swap on risk_level = pending.
	CommitVerdict(ctx context.Context, id string, verdict models.Verdict, analyzedAt time.Time) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

type ReputationStore interface {
	GetReportedNumber(ctx context.Context, sender string) (*models.ReportedNumber, error)
	// AddReport creates or increments the record for sender. With
	// allowDuplicate false a repeat reporter leaves the record unchanged.
	AddReport(ctx context.Context, sender, reporter string, allowDuplicate bool) (*models.ReportedNumber, error)
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, log *models.ActivityLog) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]*models.ActivityLog, error)
}

// ChangeFeed delivers message changes. receiver limits the feed to one
// partition; empty means all.
type ChangeFeed interface {
	Subscribe(ctx context.Context, receiver string) (*Subscription, error)
}

type Storage interface {
	MessageStore
	ReputationStore
	ActivityStore
	ChangeFeed
	Close() error
}
