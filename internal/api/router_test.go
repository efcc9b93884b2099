package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/coach"
	"github.com/xaenox/shieldbot/internal/lifecycle"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
	"github.com/xaenox/shieldbot/internal/rules"
	"github.com/xaenox/shieldbot/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockCoach is a mock implementation of Coach
type MockCoach struct {
	mock.Mock
}

func (m *MockCoach) Reply(ctx context.Context, userID, text string) (string, error) {
	args := m.Called(userID, text)
	return args.String(0), args.Error(1)
}

func (m *MockCoach) Advice(ctx context.Context, userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

func (m *MockCoach) History(userID string) []models.ChatMessage {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.ChatMessage)
}

func (m *MockCoach) Reset(userID string) {
	m.Called(userID)
}

// MockMessages is a mock implementation of Messages
type MockMessages struct {
	mock.Mock
}

func (m *MockMessages) Send(ctx context.Context, sender, receiver, text string) (*models.Message, error) {
	args := m.Called(sender, receiver, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessages) Get(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessages) List(ctx context.Context, receiver string, level models.RiskLevel) ([]*models.Message, error) {
	args := m.Called(receiver, level)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockMessages) Delete(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *MockMessages) ReportAndDelete(ctx context.Context, id string) (*reputation.ReportResult, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reputation.ReportResult), args.Error(1)
}

type stubClassifier struct {
	verdict models.Verdict
}

func (s stubClassifier) ClassifyMessage(ctx context.Context, sender, text string) models.Verdict {
	return s.verdict
}

type stack struct {
	store    *storage.MemoryStorage
	manager  *lifecycle.Manager
	views    *liveview.Synchronizer
	coach    *MockCoach
	router   *Router
	recorder *activity.Recorder
}

func newStack(t *testing.T, verdict models.Verdict) *stack {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	ledger := reputation.NewLedger(store, reputation.Config{Threshold: 2, AllowDuplicateReporters: true}, nil, logger)
	manager := lifecycle.NewManager(store, store, stubClassifier{verdict: verdict}, ledger, lifecycle.Config{}, nil, logger)
	views := liveview.NewSynchronizer(store, store, nil, logger)
	t.Cleanup(views.CloseAll)
	recorder := activity.NewRecorder(rules.NewEngine(nil), store, nil, nil, nil, logger)
	mc := new(MockCoach)

	router := NewRouter(Deps{
		Scanner:    recorder,
		Messages:   manager,
		Reputation: ledger,
		Views:      views,
		Coach:      mc,
		Metrics:    metrics.New().Handler(),
	}, logger)

	return &stack{store: store, manager: manager, views: views, coach: mc, router: router, recorder: recorder}
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestHealthAndMetrics(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})

	w, resp := do(t, s.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = do(t, s.router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = do(t, s.router, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", resp["error"])
}

func TestScan(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		checkResponse  func(*testing.T, map[string]interface{})
	}{
		{
			name:           "trusted domain",
			body:           map[string]interface{}{"user_id": "u1", "url": "https://google.com/search?q=go"},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp map[string]interface{}) {
				log := resp["log"].(map[string]interface{})
				assert.Equal(t, "low", log["risk_level"])
				assert.Equal(t, true, resp["previewable"])
			},
		},
		{
			name:           "high risk is not previewable",
			body:           map[string]interface{}{"user_id": "u1", "url": "http://secure-bank-verify.tk/verify-account"},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp map[string]interface{}) {
				log := resp["log"].(map[string]interface{})
				assert.Equal(t, "high", log["risk_level"])
				assert.Equal(t, false, resp["previewable"])
			},
		},
		{
			name:           "medium risk without explainer still recorded",
			body:           map[string]interface{}{"user_id": "u1", "url": "http://example.com/files/app.exe?ref=1"},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp map[string]interface{}) {
				log := resp["log"].(map[string]interface{})
				assert.Equal(t, "medium", log["risk_level"])
				assert.Equal(t, classifier.ErrNotConfigured.Error(), resp["details_error"])
			},
		},
		{
			name:           "missing url",
			body:           map[string]interface{}{"user_id": "u1"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "blank url",
			body:           map[string]interface{}{"user_id": "u1", "url": "   "},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})
			w, resp := do(t, s.router, http.MethodPost, "/api/v1/scans", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestActivityAndDashboard(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})
	for _, u := range []string{
		"https://google.com/search?q=go",
		"http://secure-bank-verify.tk/verify-account",
		"https://github.com/golang/go",
	} {
		w, _ := do(t, s.router, http.MethodPost, "/api/v1/scans", map[string]interface{}{"user_id": "u1", "url": u})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, resp := do(t, s.router, http.MethodGet, "/api/v1/users/u1/activity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, resp["count"])

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/users/u1/activity?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["count"])

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/users/u1/activity?risk_level=HIGH", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["count"])

	w, _ = do(t, s.router, http.MethodGet, "/api/v1/users/u1/activity?risk_level=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, s.router, http.MethodGet, "/api/v1/users/u1/activity?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/users/u1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, resp["total"])
	counts := resp["counts"].(map[string]interface{})
	assert.EqualValues(t, 2, counts["low"])
	assert.EqualValues(t, 1, counts["high"])
	assert.Len(t, resp["daily"], activity.DashboardDays)
}

func TestMessageLifecycle(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskDangerous, Explanation: "Phishing link"})

	w, resp := do(t, s.router, http.MethodPost, "/api/v1/messages/template", map[string]interface{}{
		"sender_number":   "+15550001",
		"receiver_number": "+15550002",
		"template":        "bank-alert",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "dangerous", resp["risk_level"])
	assert.Equal(t, "Phishing link", resp["ai_explanation"])
	id := resp["id"].(string)

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/messages?receiver=%2B15550002&view=flagged", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["count"])

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/messages?receiver=%2B15550002&view=inbox", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, resp["count"])

	w, _ = do(t, s.router, http.MethodGet, "/api/v1/messages?receiver=%2B15550002&view=spam", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = do(t, s.router, http.MethodPost, "/api/v1/messages/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, resp["report_count"])

	w, _ = do(t, s.router, http.MethodGet, "/api/v1/messages/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, s.router, http.MethodPost, "/api/v1/messages/template", map[string]interface{}{
		"sender_number":   "+15550001",
		"receiver_number": "+15550002",
		"template":        "no-such-template",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, resp["code"])
}

func TestReportsBlockSender(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})

	for i := 0; i < 2; i++ {
		w, _ := do(t, s.router, http.MethodPost, "/api/v1/reports", map[string]interface{}{
			"sender_number":   "+15550001",
			"reporter_number": "+15550002",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, resp := do(t, s.router, http.MethodGet, "/api/v1/reports/blocked?sender=%2B15550001&receiver=%2B15550002", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["blocked"])

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/reports/blocked?sender=%2B15550001&receiver=%2B15550009", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["blocked"])

	w, resp = do(t, s.router, http.MethodPost, "/api/v1/messages", map[string]interface{}{
		"sender_number":   "+15550001",
		"receiver_number": "+15550002",
		"message_text":    "hello again",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, codeSenderBlocked, resp["code"])
}

func TestMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"validation", fmt.Errorf("%w: sender equals receiver", lifecycle.ErrValidation), http.StatusBadRequest, codeInvalidRequest},
		{"blocked", lifecycle.ErrBlocked, http.StatusForbidden, codeSenderBlocked},
		{"transport", &classifier.TransportError{Op: "classify", Err: errors.New("boom")}, http.StatusBadGateway, codeAIUnavailable},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mm := new(MockMessages)
			mm.On("Send", "a", "b", "hi").Return(nil, tt.err)
			router := NewRouter(Deps{Messages: mm}, zap.NewNop())

			w, resp := do(t, router, http.MethodPost, "/api/v1/messages", map[string]interface{}{
				"sender_number":   "a",
				"receiver_number": "b",
				"message_text":    "hi",
			})
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, resp["code"])
			if tt.expectedStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal error", resp["error"])
			}
			mm.AssertExpectations(t)
		})
	}
}

func TestCoachRoutes(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})

	s.coach.On("Reply", "u1", "is this safe?").Return("Probably not.", nil).Once()
	w, resp := do(t, s.router, http.MethodPost, "/api/v1/coach/u1/chat", map[string]interface{}{"message": "is this safe?"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Probably not.", resp["reply"])

	s.coach.On("Reply", "u1", "again").Return(coach.ApologyMessage, classifier.ErrNotConfigured).Once()
	w, resp = do(t, s.router, http.MethodPost, "/api/v1/coach/u1/chat", map[string]interface{}{"message": "again"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, coach.ApologyMessage, resp["reply"])

	w, _ = do(t, s.router, http.MethodPost, "/api/v1/coach/u1/chat", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.coach.On("Advice", "u2").Return("", coach.ErrNoActivity).Once()
	w, resp = do(t, s.router, http.MethodPost, "/api/v1/coach/u2/advice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeNoActivity, resp["code"])

	s.coach.On("History", "u3").Return(nil).Once()
	w, resp = do(t, s.router, http.MethodGet, "/api/v1/coach/u3/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["history"])
	assert.NotEmpty(t, resp["quick_questions"])

	s.coach.On("Reset", "u1").Return().Once()
	w, _ = do(t, s.router, http.MethodDelete, "/api/v1/coach/u1/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	s.coach.AssertExpectations(t)
}

func TestTips(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})

	w, resp := do(t, s.router, http.MethodGet, "/api/v1/tips", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["tips"], len(coach.SafetyTips()))

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/tips/random", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, coach.SafetyTips(), resp["tip"])

	w, resp = do(t, s.router, http.MethodGet, "/api/v1/templates", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["templates"], len(lifecycle.Templates()))
}

func TestStream_FlaggedViewFollowsVerdict(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskDangerous, Explanation: "Lottery scam"})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/views/flagged/%2B15550002/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(match func(string) bool) string {
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if match(line) {
					return line
				}
			case <-timeout:
				t.Fatal("timed out waiting for stream event")
			}
		}
	}

	waitFor(func(l string) bool { return l == "event:snapshot" })

	msg, err := s.manager.Send(context.Background(), "+15550001", "+15550002", "You won a prize!")
	require.NoError(t, err)

	line := waitFor(func(l string) bool {
		return strings.HasPrefix(l, "data:") && strings.Contains(l, msg.ID) && strings.Contains(l, `"analyzing":false`)
	})
	assert.Contains(t, line, "Lottery scam")
}

func TestStream_UnknownKind(t *testing.T) {
	s := newStack(t, models.Verdict{RiskLevel: models.RiskSafe})
	w, _ := do(t, s.router, http.MethodGet, "/api/v1/views/spam/%2B15550002/stream", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
