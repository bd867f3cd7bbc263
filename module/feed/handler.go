package feed

import (
	"net/http"
	"time"

	"ReadCamp/middleware/security"
	"ReadCamp/module/feed/model"
	"ReadCamp/module/presence"
	"ReadCamp/service/storage"
	"ReadCamp/tools/errs"
	"ReadCamp/tools/ids"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store  *Store
	mirror *Mirror
	idgen  *ids.Generator
}

func NewHandler(store *Store, mirror *Mirror, gen *ids.Generator) *Handler {
	if gen == nil {
		gen = ids.NewGenerator(1)
	}
	return &Handler{store: store, mirror: mirror, idgen: gen}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/feed", h.GetFeed)
	rg.GET("/feed/authors", h.Authors)
	rg.POST("/feed/posts", h.CreatePost)
	rg.POST("/feed/posts/:id/like", h.Like)
	rg.POST("/feed/posts/:id/comment", h.QuickComment)
	rg.POST("/feed/posts/:id/share", h.Share)
}

// GetFeed ranks the live mirror snapshot for the requested view. Scores are
// derived here on every call, never cached.
func (h *Handler) GetFeed(c *gin.Context) {
	view, err := ParseView(c.DefaultQuery("view", string(ViewRecent)))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"view":  view,
		"posts": Rank(view, h.mirror.Snapshot(), time.Now()),
	})
}

// Authors overlays the presence set onto the distinct authors of the
// current snapshot. The two inputs refresh independently; a momentary skew
// between them is expected and harmless.
func (h *Handler) Authors(c *gin.Context) {
	onlineIDs, err := storage.PresenceSnapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	seen := map[string]bool{}
	var roster []presence.Entry
	for _, p := range h.mirror.Snapshot() {
		if seen[p.AuthorID] {
			continue
		}
		seen[p.AuthorID] = true
		roster = append(roster, presence.Entry{
			ID:             p.AuthorID,
			Name:           p.AuthorName,
			LastActiveDate: p.CreateTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"authors": presence.Merge(roster, presence.NewSet(onlineIDs), time.Now()),
	})
}

type createPostReq struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body"`
	Role  int32  `json:"role"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg("bad post body", "err", err))
		return
	}
	p := &model.Post{
		PostID:     h.idgen.NextString(),
		AuthorID:   security.UserID(c),
		AuthorRole: req.Role,
		Title:      req.Title,
		Body:       req.Body,
		CreateTime: time.Now(),
	}
	if err := h.store.Insert(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": p})
}

func (h *Handler) Like(c *gin.Context) {
	if err := h.store.IncLikeCount(c.Request.Context(), c.Param("id"), 1); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": true})
}

// QuickComment is the counter-only comment path; the threaded path lives
// with the comment storage collaborator but calls the same increment.
func (h *Handler) QuickComment(c *gin.Context) {
	if err := h.store.IncCommentCount(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commented": true})
}

func (h *Handler) Share(c *gin.Context) {
	if err := h.store.IncShareCount(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shared": true})
}

func fail(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.CodeArgs:
		status = http.StatusBadRequest
	case errs.CodeNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"code": code, "msg": errs.Unwrap(err).Error()})
}
