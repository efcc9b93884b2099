package reputation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/storage"
)

// DefaultThreshold is the report count at which a sender is blocked.
const DefaultThreshold = 3

type Config struct {
	Threshold int
	// AllowDuplicateReporters lets one receiver report the same sender more
	// than once, each report counting toward the threshold.
	AllowDuplicateReporters bool
}

// ReportResult is the state of a sender after a report.
type ReportResult struct {
	ReportCount int  `json:"report_count"`
	IsBlocked   bool `json:"is_blocked"`
}

// Ledger accumulates reports per sender and decides block status.
type Ledger struct {
	store   storage.ReputationStore
	cfg     Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewLedger(store storage.ReputationStore, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Ledger{store: store, cfg: cfg, metrics: m, logger: logger.Named("reputation")}
}

// IsBlocked reports whether receiver has blocked sender: the sender has
// reached the threshold and receiver is one of the reporters. A sender with
// no record is never blocked.
func (l *Ledger) IsBlocked(ctx context.Context, sender, receiver string) (bool, error) {
	record, err := l.store.GetReportedNumber(ctx, sender)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking reputation of %s: %w", sender, err)
	}
	return record.ReportCount >= l.cfg.Threshold && record.HasReporter(receiver), nil
}

// ReportSender records a report from reporter against sender.
func (l *Ledger) ReportSender(ctx context.Context, sender, reporter string) (*ReportResult, error) {
	record, err := l.store.AddReport(ctx, sender, reporter, l.cfg.AllowDuplicateReporters)
	if err != nil {
		return nil, fmt.Errorf("reporting %s: %w", sender, err)
	}

	result := &ReportResult{
		ReportCount: record.ReportCount,
		IsBlocked:   record.ReportCount >= l.cfg.Threshold,
	}
	l.metrics.ObserveReport()
	l.logger.Info("Sender reported",
		zap.String("sender", sender),
		zap.String("reporter", reporter),
		zap.Int("report_count", result.ReportCount),
		zap.Bool("blocked", result.IsBlocked))
	return result, nil
}

// Threshold returns the configured block threshold.
func (l *Ledger) Threshold() int {
	return l.cfg.Threshold
}
