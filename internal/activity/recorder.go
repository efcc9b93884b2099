package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/rules"
	"github.com/xaenox/shieldbot/internal/storage"
)

var (
	ErrInvalidScan = errors.New("user id and url are required")
	ErrUnknownRisk = errors.New("unknown risk level")
)

// DetailsCache stores AI explanations keyed by URL.
type DetailsCache interface {
	GetDetails(ctx context.Context, url string) (*models.RiskDetails, bool, error)
	SetDetails(ctx context.Context, url string, details *models.RiskDetails) error
}

// ScanResult is the outcome of one scan. DetailsErr is set when a medium-risk
// URL could not be explained; the scan itself is still recorded.
type ScanResult struct {
	Log        *models.ActivityLog `json:"log"`
	Rule       rules.Rule          `json:"rule"`
	Alert      Alert               `json:"alert"`
	Details    *models.RiskDetails `json:"details,omitempty"`
	DetailsErr error               `json:"-"`
}

// Previewable reports whether the URL may be opened in a preview.
func (r *ScanResult) Previewable() bool {
	return r.Log.RiskLevel != models.URLRiskHigh
}

type Recorder struct {
	engine    *rules.Engine
	store     storage.ActivityStore
	explainer classifier.URLExplainer
	cache     DetailsCache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecorder builds a recorder. explainer and cache may be nil.
func NewRecorder(engine *rules.Engine, store storage.ActivityStore, explainer classifier.URLExplainer, cache DetailsCache, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	return &Recorder{
		engine:    engine,
		store:     store,
		explainer: explainer,
		cache:     cache,
		metrics:   m,
		logger:    logger.Named("activity"),
		now:       time.Now,
	}
}

// Scan classifies url, appends it to the user's activity log, and explains
// medium-risk results.
func (r *Recorder) Scan(ctx context.Context, userID, url string) (*ScanResult, error) {
	userID = strings.TrimSpace(userID)
	url = strings.TrimSpace(url)
	if userID == "" || url == "" {
		return nil, ErrInvalidScan
	}

	eval := r.engine.Evaluate(url)
	entry := &models.ActivityLog{
		UserID:    userID,
		URL:       url,
		RiskLevel: eval.Risk,
		Timestamp: r.now().UTC(),
	}

	result := &ScanResult{Log: entry, Rule: eval.Rule}
	if eval.Risk == models.URLRiskMedium {
		result.Details, result.DetailsErr = r.explain(ctx, url)
	}

	if err := r.store.AppendActivity(ctx, entry); err != nil {
		r.logger.Error("Failed to append activity",
			zap.String("user_id", userID),
			zap.String("url", url),
			zap.Error(err))
		return nil, fmt.Errorf("recording scan: %w", err)
	}

	r.metrics.ObserveScan(eval.Risk)
	r.logger.Info("URL scanned",
		zap.String("user_id", userID),
		zap.String("risk_level", string(eval.Risk)),
		zap.String("rule", string(eval.Rule)),
		zap.String("match", eval.Match))

	result.Alert = AlertFor(eval.Risk, result.Details)
	return result, nil
}

func (r *Recorder) explain(ctx context.Context, url string) (*models.RiskDetails, error) {
	if r.explainer == nil {
		return nil, classifier.ErrNotConfigured
	}

	if r.cache != nil {
		details, ok, err := r.cache.GetDetails(ctx, url)
		if err != nil {
			r.logger.Warn("Details cache read failed", zap.String("url", url), zap.Error(err))
		} else if ok {
			return details, nil
		}
	}

	details, err := r.explainer.ExplainURL(ctx, url)
	if err != nil {
		r.logger.Warn("Failed to explain URL", zap.String("url", url), zap.Error(err))
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetDetails(ctx, url, details); err != nil {
			r.logger.Warn("Details cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return details, nil
}

// Recent returns the user's latest scans, newest first. limit <= 0 returns
// everything.
func (r *Recorder) Recent(ctx context.Context, userID string, limit int) ([]*models.ActivityLog, error) {
	logs, err := r.store.ListActivity(ctx, storage.ActivityFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return logs, nil
}

// Filter returns the user's scans at one tier, newest first.
func (r *Recorder) Filter(ctx context.Context, userID string, risk models.URLRisk) ([]*models.ActivityLog, error) {
	if !risk.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownRisk, risk)
	}
	logs, err := r.store.ListActivity(ctx, storage.ActivityFilter{UserID: userID, RiskLevel: risk})
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return logs, nil
}
