package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
	"github.com/xaenox/shieldbot/internal/storage"
)

type fakeClassifier struct {
	verdict models.Verdict
	calls   atomic.Int32
	gate    chan struct{}
}

func (f *fakeClassifier) ClassifyMessage(ctx context.Context, sender, text string) models.Verdict {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.verdict
}

type fixture struct {
	store      *storage.MemoryStorage
	ledger     *reputation.Ledger
	classifier *fakeClassifier
	manager    *Manager
}

func newFixture(t *testing.T, verdict models.Verdict, cfg Config) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	ledger := reputation.NewLedger(store, reputation.Config{AllowDuplicateReporters: true}, nil, zap.NewNop())
	fc := &fakeClassifier{verdict: verdict}
	return &fixture{
		store:      store,
		ledger:     ledger,
		classifier: fc,
		manager:    NewManager(store, store, fc, ledger, cfg, nil, zap.NewNop()),
	}
}

func dangerous(explanation string) models.Verdict {
	return models.Verdict{RiskLevel: models.RiskDangerous, Explanation: explanation}
}

func TestSend_AnalyzesInline(t *testing.T) {
	f := newFixture(t, dangerous("Phishing link"), Config{})

	msg, err := f.manager.Send(context.Background(), " +100 ", "+200", "Verify your account at http://x.tk")
	require.NoError(t, err)
	assert.Equal(t, "+100", msg.SenderNumber)
	assert.Equal(t, models.RiskDangerous, msg.RiskLevel)
	assert.Equal(t, "Phishing link", msg.Explanation())
	assert.NotNil(t, msg.AnalyzedAt)

	stored, err := f.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RiskDangerous, stored.RiskLevel)
}

// cancelAwareClassifier fails open like the AI classifier when its context
// is done by the time the endpoint answers.
type cancelAwareClassifier struct {
	started chan struct{}
	release chan struct{}
}

func (c *cancelAwareClassifier) ClassifyMessage(ctx context.Context, sender, text string) models.Verdict {
	close(c.started)
	<-c.release
	if ctx.Err() != nil {
		return models.Verdict{RiskLevel: models.RiskSafe, Explanation: "Analysis failed - defaulting to safe"}
	}
	return dangerous("Prize scam")
}

func TestSend_CallerCancellationDoesNotFailOpen(t *testing.T) {
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })
	ledger := reputation.NewLedger(store, reputation.Config{AllowDuplicateReporters: true}, nil, zap.NewNop())
	clf := &cancelAwareClassifier{started: make(chan struct{}), release: make(chan struct{})}
	manager := NewManager(store, store, clf, ledger, Config{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		msg *models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := manager.Send(ctx, "+100", "+200", "You won a prize!")
		done <- result{msg, err}
	}()

	<-clf.started
	cancel()
	close(clf.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return")
	}
	require.NoError(t, res.err)
	assert.Equal(t, models.RiskDangerous, res.msg.RiskLevel)
	assert.Equal(t, "Prize scam", res.msg.Explanation())

	stored, err := store.GetMessage(context.Background(), res.msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RiskDangerous, stored.RiskLevel)
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t, dangerous("x"), Config{})
	ctx := context.Background()

	tests := []struct {
		name             string
		sender, receiver string
		text             string
	}{
		{"empty text", "+100", "+200", "   "},
		{"empty sender", "", "+200", "hi"},
		{"empty receiver", "+100", "", "hi"},
		{"self send", "+100", "+100", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.Send(ctx, tt.sender, tt.receiver, tt.text)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	all, err := f.store.ListMessages(ctx, storage.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, f.classifier.calls.Load())
}

func TestSend_BlockedSenderStoresNothing(t *testing.T) {
	f := newFixture(t, dangerous("x"), Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.ledger.ReportSender(ctx, "+100", "+200")
		require.NoError(t, err)
	}

	_, err := f.manager.Send(ctx, "+100", "+200", "hello again")
	assert.ErrorIs(t, err, ErrBlocked)

	all, err := f.store.ListMessages(ctx, storage.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	msg, err := f.manager.Send(ctx, "+100", "+300", "hello stranger")
	require.NoError(t, err, "only receivers that reported the sender block it")
	assert.Equal(t, "+300", msg.ReceiverNumber)
}

type brokenReputation struct{}

func (brokenReputation) IsBlocked(context.Context, string, string) (bool, error) {
	return false, errors.New("store unavailable")
}

func (brokenReputation) ReportSender(context.Context, string, string) (*reputation.ReportResult, error) {
	return nil, errors.New("store unavailable")
}

func TestSend_ReputationFailurePropagates(t *testing.T) {
	store := storage.NewMemoryStorage()
	defer store.Close()
	m := NewManager(store, store, &fakeClassifier{verdict: dangerous("x")}, brokenReputation{}, Config{}, nil, zap.NewNop())

	_, err := m.Send(context.Background(), "+100", "+200", "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlocked)

	all, err := store.ListMessages(context.Background(), storage.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAnalyze_IsIdempotent(t *testing.T) {
	f := newFixture(t, dangerous("first"), Config{})
	ctx := context.Background()

	msg, err := f.manager.Send(ctx, "+100", "+200", "hi")
	require.NoError(t, err)

	f.classifier.verdict = models.Verdict{RiskLevel: models.RiskSafe, Explanation: "second"}
	again, err := f.manager.Analyze(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RiskDangerous, again.RiskLevel)
	assert.Equal(t, "first", again.Explanation())
	assert.Equal(t, int32(1), f.classifier.calls.Load())
}

func TestAnalyze_LosingCommitReturnsStoredRow(t *testing.T) {
	f := newFixture(t, models.Verdict{RiskLevel: models.RiskSafe, Explanation: "late"}, Config{})
	ctx := context.Background()

	msg := &models.Message{SenderNumber: "+100", ReceiverNumber: "+200", MessageText: "hi"}
	require.NoError(t, f.store.InsertMessage(ctx, msg))

	f.classifier.gate = make(chan struct{})
	type result struct {
		msg *models.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := f.manager.Analyze(ctx, msg.ID)
		done <- result{m, err}
	}()

	require.Eventually(t, func() bool { return f.classifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, err := f.store.CommitVerdict(ctx, msg.ID, dangerous("other writer"), time.Now())
	require.NoError(t, err)
	close(f.classifier.gate)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, models.RiskDangerous, res.msg.RiskLevel)
	assert.Equal(t, "other writer", res.msg.Explanation())
}

func TestAnalyze_ConcurrentCallsShareClassification(t *testing.T) {
	f := newFixture(t, dangerous("once"), Config{})
	ctx := context.Background()

	msg := &models.Message{SenderNumber: "+100", ReceiverNumber: "+200", MessageText: "hi"}
	require.NoError(t, f.store.InsertMessage(ctx, msg))

	f.classifier.gate = make(chan struct{})
	var wg sync.WaitGroup
	results := make([]*models.Message, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := f.manager.Analyze(ctx, msg.ID)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}

	require.Eventually(t, func() bool { return f.classifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(f.classifier.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.classifier.calls.Load())
	for _, m := range results {
		require.NotNil(t, m)
		assert.Equal(t, models.RiskDangerous, m.RiskLevel)
	}
}

func TestAnalyze_PromoteSuspicious(t *testing.T) {
	sniffed := models.Verdict{RiskLevel: models.RiskSuspicious, Explanation: "looks suspicious"}

	f := newFixture(t, sniffed, Config{PromoteSuspicious: true})
	msg, err := f.manager.Send(context.Background(), "+100", "+200", "hi")
	require.NoError(t, err)
	assert.Equal(t, models.RiskDangerous, msg.RiskLevel)

	f = newFixture(t, sniffed, Config{})
	msg, err = f.manager.Send(context.Background(), "+100", "+200", "hi")
	require.NoError(t, err)
	assert.Equal(t, models.RiskSuspicious, msg.RiskLevel)
}

func TestReportAndDelete(t *testing.T) {
	f := newFixture(t, dangerous("scam"), Config{})
	ctx := context.Background()

	msg, err := f.manager.Send(ctx, "+100", "+200", "claim-prize now")
	require.NoError(t, err)

	res, err := f.manager.ReportAndDelete(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReportCount)
	assert.False(t, res.IsBlocked)

	_, err = f.manager.Get(ctx, msg.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.manager.ReportAndDelete(ctx, msg.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t, dangerous("scam"), Config{})
	ctx := context.Background()

	_, err := f.manager.Send(ctx, "+100", "+200", "one")
	require.NoError(t, err)
	f.classifier.verdict = models.Verdict{RiskLevel: models.RiskSafe, Explanation: "fine"}
	_, err = f.manager.Send(ctx, "+101", "+200", "two")
	require.NoError(t, err)

	flagged, err := f.manager.List(ctx, "+200", models.RiskDangerous)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "one", flagged[0].MessageText)

	all, err := f.manager.List(ctx, "+200", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWatch_ClassifiesPendingInserts(t *testing.T) {
	f := newFixture(t, dangerous("async"), Config{WatchWorkers: 2})
	ctx, cancel := context.WithCancel(context.Background())

	leftover := &models.Message{SenderNumber: "+100", ReceiverNumber: "+200", MessageText: "from last run"}
	require.NoError(t, f.store.InsertMessage(ctx, leftover))

	done := make(chan error, 1)
	go func() { done <- f.manager.Watch(ctx) }()

	require.Eventually(t, func() bool {
		m, err := f.store.GetMessage(ctx, leftover.ID)
		return err == nil && m.RiskLevel == models.RiskDangerous
	}, time.Second, 5*time.Millisecond)

	fresh := &models.Message{SenderNumber: "+101", ReceiverNumber: "+200", MessageText: "new"}
	require.NoError(t, f.store.InsertMessage(ctx, fresh))
	require.Eventually(t, func() bool {
		m, err := f.store.GetMessage(ctx, fresh.ID)
		return err == nil && m.RiskLevel == models.RiskDangerous
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_ResyncSweepsPending(t *testing.T) {
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })
	// The store's own events never reach this feed, like notifications lost
	// while the listener reconnects.
	feed := storage.NewBroadcaster()
	t.Cleanup(feed.Close)

	core, logs := observer.New(zapcore.InfoLevel)
	ledger := reputation.NewLedger(store, reputation.Config{AllowDuplicateReporters: true}, nil, zap.NewNop())
	mgr := NewManager(store, feed, &fakeClassifier{verdict: dangerous("missed")}, ledger, Config{}, nil, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Watch(ctx) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Watching for pending messages").Len() == 1
	}, time.Second, 5*time.Millisecond)

	missed := &models.Message{SenderNumber: "+100", ReceiverNumber: "+200", MessageText: "sent during outage"}
	require.NoError(t, store.InsertMessage(ctx, missed))
	time.Sleep(20 * time.Millisecond)
	m, err := store.GetMessage(ctx, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RiskPending, m.RiskLevel)

	feed.Resync()

	require.Eventually(t, func() bool {
		m, err := store.GetMessage(ctx, missed.ID)
		return err == nil && m.RiskLevel == models.RiskDangerous
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestTemplates(t *testing.T) {
	all := Templates()
	require.NotEmpty(t, all)

	tmpl, ok := TemplateByName("BANK-ALERT")
	require.True(t, ok)
	assert.Equal(t, models.RiskDangerous, tmpl.Expected)

	_, ok = TemplateByName("nope")
	assert.False(t, ok)

	all[0].Name = "mutated"
	_, ok = TemplateByName("bank-alert")
	assert.True(t, ok)
}
