package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/coach"
	"github.com/xaenox/shieldbot/internal/lifecycle"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/models"
)

const maxActivityLimit = 500

type scanRequest struct {
	UserID string `json:"user_id" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

type scanResponse struct {
	Log         *models.ActivityLog `json:"log"`
	Rule        string              `json:"rule"`
	Alert       interface{}         `json:"alert"`
	Details     *models.RiskDetails `json:"details,omitempty"`
	DetailsErr  string              `json:"details_error,omitempty"`
	Previewable bool                `json:"previewable"`
}

type sendRequest struct {
	SenderNumber   string `json:"sender_number" binding:"required"`
	ReceiverNumber string `json:"receiver_number" binding:"required"`
	MessageText    string `json:"message_text" binding:"required"`
}

type templateRequest struct {
	SenderNumber   string `json:"sender_number" binding:"required"`
	ReceiverNumber string `json:"receiver_number" binding:"required"`
	Template       string `json:"template" binding:"required"`
}

type reportRequest struct {
	SenderNumber   string `json:"sender_number" binding:"required"`
	ReporterNumber string `json:"reporter_number" binding:"required"`
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (r *Router) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	res, err := r.deps.Scanner.Scan(c.Request.Context(), req.UserID, req.URL)
	if err != nil {
		r.fail(c, "scan", err)
		return
	}

	resp := scanResponse{
		Log:         res.Log,
		Rule:        string(res.Rule),
		Alert:       res.Alert,
		Details:     res.Details,
		Previewable: res.Previewable(),
	}
	if res.DetailsErr != nil {
		resp.DetailsErr = res.DetailsErr.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (r *Router) handleActivity(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	if level := c.Query("risk_level"); level != "" {
		logs, err := r.deps.Scanner.Filter(ctx, userID, models.URLRisk(strings.ToLower(level)))
		if err != nil {
			r.fail(c, "filter activity", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"activity": logs, "count": len(logs)})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxActivityLimit {
			badRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	logs, err := r.deps.Scanner.Recent(ctx, userID, limit)
	if err != nil {
		r.fail(c, "list activity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": logs, "count": len(logs)})
}

func (r *Router) handleDashboard(c *gin.Context) {
	d, err := r.deps.Scanner.Dashboard(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		r.fail(c, "dashboard", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleSendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	r.send(c, req.SenderNumber, req.ReceiverNumber, req.MessageText)
}

func (r *Router) handleSendTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	tmpl, ok := lifecycle.TemplateByName(req.Template)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown template", "code": codeNotFound})
		return
	}
	r.send(c, req.SenderNumber, req.ReceiverNumber, tmpl.Text)
}

func (r *Router) send(c *gin.Context, sender, receiver, text string) {
	msg, err := r.deps.Messages.Send(c.Request.Context(), sender, receiver, text)
	if err != nil {
		r.fail(c, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (r *Router) handleListMessages(c *gin.Context) {
	receiver := c.Query("receiver")
	if receiver == "" {
		badRequest(c, "receiver is required")
		return
	}

	var level models.RiskLevel
	if raw := c.Query("view"); raw != "" {
		kind, err := liveview.ParseKind(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		level = kind.Level()
	}

	msgs, err := r.deps.Messages.List(c.Request.Context(), receiver, level)
	if err != nil {
		r.fail(c, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

func (r *Router) handleGetMessage(c *gin.Context) {
	msg, err := r.deps.Messages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.fail(c, "get message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (r *Router) handleDeleteMessage(c *gin.Context) {
	if err := r.deps.Messages.Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.fail(c, "delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleReportMessage(c *gin.Context) {
	res, err := r.deps.Messages.ReportAndDelete(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.fail(c, "report message", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": lifecycle.Templates()})
}

func (r *Router) handleReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	res, err := r.deps.Reputation.ReportSender(c.Request.Context(), req.SenderNumber, req.ReporterNumber)
	if err != nil {
		r.fail(c, "report sender", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleIsBlocked(c *gin.Context) {
	sender, receiver := c.Query("sender"), c.Query("receiver")
	if sender == "" || receiver == "" {
		badRequest(c, "sender and receiver are required")
		return
	}

	blocked, err := r.deps.Reputation.IsBlocked(c.Request.Context(), sender, receiver)
	if err != nil {
		r.fail(c, "check blocked", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sender": sender, "receiver": receiver, "blocked": blocked})
}

func (r *Router) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	reply, err := r.deps.Coach.Reply(c.Request.Context(), c.Param("user_id"), req.Message)
	if err != nil {
		status, code := classify(err)
		if status == http.StatusBadRequest {
			r.fail(c, "coach chat", err)
			return
		}
		// The coach already produced a user-facing apology.
		r.logger.Warn("Coach reply failed", zap.String("user_id", c.Param("user_id")), zap.Error(err))
		c.JSON(status, gin.H{"reply": reply, "error": errorMessage(status, err), "code": code})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (r *Router) handleAdvice(c *gin.Context) {
	advice, err := r.deps.Coach.Advice(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		r.fail(c, "coach advice", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advice": advice})
}

func (r *Router) handleHistory(c *gin.Context) {
	history := r.deps.Coach.History(c.Param("user_id"))
	if history == nil {
		history = []models.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "quick_questions": coach.QuickQuestions()})
}

func (r *Router) handleResetHistory(c *gin.Context) {
	r.deps.Coach.Reset(c.Param("user_id"))
	c.Status(http.StatusNoContent)
}

func (r *Router) handleTips(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tips": coach.SafetyTips()})
}

func (r *Router) handleRandomTip(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tip": coach.RandomTip()})
}
