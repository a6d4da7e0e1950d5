package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qchat-dev/qchat-go/internal/arbiter"
	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/ctxutil"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/sentry"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

const (
	// maxMessageBytes rejects pasted documents before they reach the LLM.
	maxMessageBytes = 4000
	// extractionHistory is how many recent turns go to profile extraction.
	extractionHistory = 10
)

// Profile actions accepted by POST /api/profile.
const (
	actionGet            = "get"
	actionUpdate         = "update"
	actionAddClass       = "add_class"
	actionAddActivity    = "add_activity"
	actionSetPreferences = "set_preferences"
)

// Preference keys accepted by set_preferences, mapped to profile paths.
var preferencePaths = map[string]string{
	"favorite_dining_halls": profile.PathFavoriteDiningHalls,
	"dietary_restrictions":  profile.PathDietary,
	"study_locations":       profile.PathStudyLocations,
	"topics_of_interest":    profile.PathTopicsOfInterest,
}

func errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// handleChat answers one message. The reply payload never carries an error:
// arbiter failures come back as its fallback reply with source "error".
func (a *Application) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Older clients send the message as query parameters.
		req = chatRequest{}
	}
	if req.Message == "" {
		req.Message = c.Query("message")
	}
	if req.UserID == "" {
		req.UserID = c.Query("userId")
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		errorJSON(c, http.StatusBadRequest, "missing message")
		return
	}
	if len(msg) > maxMessageBytes {
		errorJSON(c, http.StatusBadRequest, "message too long")
		return
	}
	user := strings.TrimSpace(req.UserID)
	if user == "" {
		user = arbiter.Anonymous
	}

	limitKey := user
	if user == arbiter.Anonymous {
		limitKey = "ip:" + c.ClientIP()
	}
	if !a.chatLimiter.Allow(limitKey) {
		retry := a.chatLimiter.RetryAfter(limitKey)
		a.metrics.RecordHTTPError("rate_limited", "/api/chat")
		c.Header("Retry-After", strconv.Itoa(int(retry/time.Second)))
		errorJSON(c, http.StatusTooManyRequests, "too many requests, slow down")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ChatProcessing)
	defer cancel()

	areq := arbiter.Request{Message: msg, Username: user}
	if user != arbiter.Anonymous {
		ctx = ctxutil.WithUserID(ctx, user)
		areq.History = a.history.Recent(ctx, user, extractionHistory)
	}

	reply := a.arbiter.Answer(ctx, areq)
	c.JSON(http.StatusOK, reply)

	a.history.LogChat(ctxutil.PreserveTracing(ctx), storage.ChatLog{
		UserID:      user,
		Message:     msg,
		Reply:       reply.Reply,
		Source:      reply.Source,
		FAQCategory: reply.Category,
		FAQScore:    reply.FAQScore,
	})
}

// handleGetProfile returns the user's profile, creating an empty one on
// first sight.
func (a *Application) handleGetProfile(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		errorJSON(c, http.StatusBadRequest, "Missing username parameter")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HistoryRequest)
	defer cancel()

	p, err := profile.EnsureExists(ctx, a.profiles, username)
	if err != nil {
		a.storeError(c, err, "profile_get")
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

type profileRequest struct {
	Username string         `json:"username"`
	Action   string         `json:"action"`
	Data     map[string]any `json:"data"`
}

// handlePostProfile dispatches a profile action. Missing profiles are
// created first so every action applies to an existing document.
func (a *Application) handlePostProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		errorJSON(c, http.StatusBadRequest, "Missing username in request")
		return
	}
	if req.Action == "" {
		req.Action = actionUpdate
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HistoryRequest)
	defer cancel()

	p, err := profile.EnsureExists(ctx, a.profiles, username)
	if err != nil {
		a.storeError(c, err, "profile_"+req.Action)
		return
	}

	switch req.Action {
	case actionGet:
		c.JSON(http.StatusOK, gin.H{"profile": p})

	case actionUpdate:
		if len(req.Data) == 0 {
			errorJSON(c, http.StatusBadRequest, "Missing data to update")
			return
		}
		if err := profile.ValidateUpdates(req.Data); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		if !a.profiles.Update(ctx, username, req.Data) {
			errorJSON(c, http.StatusInternalServerError, "Failed to update profile")
			return
		}
		updated, err := a.profiles.Get(ctx, username)
		if err != nil {
			a.storeError(c, err, "profile_update")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "profile": updated})

	case actionAddClass:
		name, _ := req.Data["name"].(string)
		if strings.TrimSpace(name) == "" {
			errorJSON(c, http.StatusBadRequest, "Missing class name")
			return
		}
		now := time.Now().UTC()
		class := profile.Class{
			Name:      strings.TrimSpace(name),
			Code:      stringField(req.Data, "code"),
			Professor: stringField(req.Data, "professor"),
			Schedule:  stringField(req.Data, "schedule"),
			Location:  stringField(req.Data, "location"),
			AddedAt:   &now,
		}
		if !a.profiles.AppendToArray(ctx, username, profile.PathClasses, class) {
			errorJSON(c, http.StatusInternalServerError, "Failed to add class")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Class added successfully", "class": class})

	case actionAddActivity:
		activity := stringField(req.Data, "activity")
		if activity == "" {
			errorJSON(c, http.StatusBadRequest, "Missing activity")
			return
		}
		if !a.profiles.AppendToArray(ctx, username, profile.PathExtracurriculars, activity) {
			errorJSON(c, http.StatusInternalServerError, "Failed to add activity")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Activity added successfully", "activity": activity})

	case actionSetPreferences:
		updates := make(map[string]any)
		for key, path := range preferencePaths {
			if v, ok := req.Data[key]; ok {
				updates[path] = v
			}
		}
		if len(updates) == 0 {
			errorJSON(c, http.StatusBadRequest, "No valid preferences provided")
			return
		}
		if err := profile.ValidateUpdates(updates); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
		if !a.profiles.Update(ctx, username, updates) {
			errorJSON(c, http.StatusInternalServerError, "Failed to update preferences")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Preferences updated successfully"})

	default:
		errorJSON(c, http.StatusBadRequest, "Unknown action: "+req.Action)
	}
}

// handleListHistory returns the user's saved conversations, newest first.
func (a *Application) handleListHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HistoryRequest)
	defer cancel()

	convs, err := a.history.List(ctx, strings.TrimSpace(c.Query("username")), 0)
	if err != nil {
		a.storeError(c, err, "history_list")
		return
	}
	if convs == nil {
		convs = []storage.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

type historyRequest struct {
	Action         string                `json:"action"`
	Username       string                `json:"username"`
	Conversation   *storage.Conversation `json:"conversation"`
	ConversationID string                `json:"conversationId"`
}

// handlePostHistory saves or deletes one conversation.
func (a *Application) handlePostHistory(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "Invalid conversation data")
		return
	}
	username := strings.TrimSpace(req.Username)

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.HistoryRequest)
	defer cancel()

	switch req.Action {
	case "save":
		var conv storage.Conversation
		if req.Conversation != nil {
			conv = *req.Conversation
		}
		if err := a.history.Save(ctx, username, conv); err != nil {
			a.storeError(c, err, "history_save")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	case "delete":
		if _, err := a.history.Delete(ctx, username, req.ConversationID); err != nil {
			a.storeError(c, err, "history_delete")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	default:
		if username == "" {
			errorJSON(c, http.StatusBadRequest, "Username required")
			return
		}
		errorJSON(c, http.StatusBadRequest, "Invalid action")
	}
}

// handleHealth reports component state for the web client's status page.
func (a *Application) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheck)
	defer cancel()

	body := gin.H{
		"dbReady":        a.db.Ping(ctx) == nil,
		"profileStore":   a.cfg.Profile.Backend,
		"indexReady":     a.readiness.IndexReady(),
		"strategy":       a.arbiter.Strategy(),
		"ragMode":        a.cfg.Arbiter.RAGMode,
		"faqEnabled":     a.cfg.Arbiter.FAQFirst,
		"loggingEnabled": a.history.LogEnabled(),
		"llmProviders":   a.cfg.LLM.ConfiguredProviders(),
	}
	if h := a.core.Index.Loaded(); h != nil {
		body["indexStats"] = h.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// storeError maps a store failure to a response. Validation problems are
// the caller's fault; everything else is reported and answered with 500.
func (a *Application) storeError(c *gin.Context, err error, op string) {
	if errors.Is(err, domerrors.ErrInvalidInput) {
		errorJSON(c, http.StatusBadRequest, domerrors.UserMessage(err, err.Error()))
		return
	}
	a.logger.WithError(err).WithField("operation", op).ErrorContext(c.Request.Context(), "Store request failed")
	a.metrics.RecordHTTPError("store", c.FullPath())
	sentry.CaptureExceptionWithContext(c.Request.Context(), err, map[string]string{"operation": op})
	errorJSON(c, http.StatusInternalServerError, domerrors.UserMessage(err, "Internal server error"))
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}
