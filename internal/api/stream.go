package api

import (
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
)

const streamHeartbeat = 25 * time.Second

type viewPayload struct {
	Kind      liveview.Kind     `json:"kind"`
	Phone     string            `json:"phone"`
	Messages  []*models.Message `json:"messages"`
	Analyzing bool              `json:"analyzing"`
	Pending   []string          `json:"pending"`
}

func newViewPayload(kind liveview.Kind, phone string, s liveview.State) viewPayload {
	p := viewPayload{
		Kind:      kind,
		Phone:     phone,
		Messages:  s.Messages,
		Analyzing: s.IsAnalyzing(),
		Pending:   make([]string, 0, len(s.Analyzing)),
	}
	if p.Messages == nil {
		p.Messages = []*models.Message{}
	}
	for id := range s.Analyzing {
		p.Pending = append(p.Pending, id)
	}
	return p
}

// latest holds the most recent state and drops anything the client has not
// yet received.
type latest struct {
	mu    sync.Mutex
	state liveview.State
	ready chan struct{}
}

func newLatest() *latest {
	return &latest{ready: make(chan struct{}, 1)}
}

func (l *latest) put(s liveview.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latest) take() liveview.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// handleStream serves a live view as server-sent events: one "snapshot"
// event followed by a "state" event per change.
func (r *Router) handleStream(c *gin.Context) {
	kind, err := liveview.ParseKind(c.Param("kind"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	phone := c.Param("phone")

	updates := newLatest()
	view, err := r.deps.Views.Open(c.Request.Context(), kind, phone, updates.put)
	if err != nil {
		r.fail(c, "open view", err)
		return
	}
	defer view.Close()

	r.logger.Info("Live view streaming", zap.String("kind", string(kind)), zap.String("phone", phone))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", newViewPayload(kind, phone, view.Snapshot()))
	c.Writer.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-updates.ready:
			c.SSEvent("state", newViewPayload(kind, phone, updates.take()))
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-view.Done():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}
