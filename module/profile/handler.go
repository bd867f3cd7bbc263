package profile

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ReadCamp/middleware/security"
	"ReadCamp/module/presence"
	"ReadCamp/module/profile/model"
	"ReadCamp/service/storage"
	"ReadCamp/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler exposes the coordinator's read/write surface over HTTP. The
// session context outlives requests: coordinators keep their subscriptions
// open until logout or shutdown.
type Handler struct {
	reg     *Registry
	store   *MongoStore
	sessCtx context.Context
}

func NewHandler(sessCtx context.Context, reg *Registry, store *MongoStore) *Handler {
	return &Handler{reg: reg, store: store, sessCtx: sessCtx}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/activities", h.ListActivities)
	rg.POST("/progress", h.UpdateProgress)
	rg.POST("/activities", h.LogActivity)
	rg.POST("/reading/bible", h.TrackBible)
	rg.DELETE("/activities/:id", h.ClearActivity)
	rg.DELETE("/activities", h.ClearAll)
	rg.POST("/sync/retry", h.RetrySync)
	rg.POST("/logout", h.Logout)
	rg.GET("/members", h.Members)
}

func (h *Handler) coordinator(c *gin.Context) (*Coordinator, bool) {
	userID := security.UserID(c)
	coord, err := h.reg.Acquire(h.sessCtx, userID)
	if err != nil {
		// coordinator exists but is Fatal; report the persistent state
		fail(c, err)
		return coord, false
	}
	return coord, true
}

func (h *Handler) GetStats(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":  coord.State().String(),
		"stats":  coord.Stats(),
		"streak": coord.StreakValue(),
	})
}

func (h *Handler) ListActivities(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	f := Filter{
		Type:   model.ActivityType(c.Query("type")),
		Range:  TimeRange(c.DefaultQuery("range", string(RangeAll))),
		Search: c.Query("q"),
		Sort:   SortOrder(c.DefaultQuery("sort", string(SortNewest))),
	}
	if f.Type != "" && !f.Type.Valid() {
		fail(c, errs.ErrArgs.WrapMsg("unknown activity type", "type", string(f.Type)))
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": coord.Activities(f)})
}

type progressReq struct {
	Day       int32 `json:"day" binding:"required"`
	Completed bool  `json:"completed"`
}

func (h *Handler) UpdateProgress(c *gin.Context) {
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad progress body", "err", err))
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.UpdateReadingProgress(c.Request.Context(), req.Day, req.Completed); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": coord.Stats()})
}

type activityReq struct {
	Type model.ActivityType `json:"type" binding:"required"`
	Data map[string]any     `json:"data"`
}

func (h *Handler) LogActivity(c *gin.Context) {
	var req activityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad activity body", "err", err))
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	rec := model.ActivityRecord{Type: req.Type, Data: req.Data}
	if err := coord.LogActivity(c.Request.Context(), rec); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged": true})
}

type bibleReq struct {
	Book    string `json:"book" binding:"required"`
	Chapter int32  `json:"chapter" binding:"required"`
	Minutes int64  `json:"minutes"`
}

func (h *Handler) TrackBible(c *gin.Context) {
	var req bibleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad bible reading body", "err", err))
		return
	}
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.TrackBibleReading(c.Request.Context(), req.Book, req.Chapter, req.Minutes); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logged": true})
}

func (h *Handler) ClearActivity(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.ClearActivity(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (h *Handler) ClearAll(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.ClearAllActivities(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// RetrySync is the manual affordance behind the Fatal banner.
func (h *Handler) RetrySync(c *gin.Context) {
	userID := security.UserID(c)
	coord, ok := h.reg.Peek(userID)
	if !ok {
		fail(c, errs.ErrArgs.WrapMsg("no session"))
		return
	}
	if err := coord.Retry(h.sessCtx); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": coord.State().String()})
}

// Logout ends the session; the registry tears the subscriptions down.
func (h *Handler) Logout(c *gin.Context) {
	h.reg.Drop(security.UserID(c))
	c.JSON(http.StatusOK, gin.H{"bye": true})
}

// Members returns the reading roster overlaid with the live presence set.
func (h *Handler) Members(c *gin.Context) {
	ctx := c.Request.Context()
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	docs, err := h.store.Roster(ctx, limit)
	if err != nil {
		fail(c, err)
		return
	}
	ids, err := storage.PresenceSnapshot(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	roster := make([]presence.Entry, len(docs))
	for i, d := range docs {
		roster[i] = presence.Entry{ID: d.UserID, Name: d.Nickname, LastActiveDate: d.LastActiveDate}
	}
	c.JSON(http.StatusOK, gin.H{
		"members": presence.Merge(roster, presence.NewSet(ids), time.Now()),
	})
}

func fail(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.CodeArgs:
		status = http.StatusBadRequest
	case errs.CodeTokenInvalid:
		status = http.StatusUnauthorized
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeNotReady:
		status = http.StatusServiceUnavailable
	case errs.CodeTransientSync, errs.CodeFatalSync:
		status = http.StatusServiceUnavailable
	case errs.CodeWriteFailure:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"code": code, "msg": errs.Unwrap(err).Error()})
}
