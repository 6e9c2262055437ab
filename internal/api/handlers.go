// Package api serves the catalog read endpoints, ingest status and the
// secret-protected admin operations over gin.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javainthinking/skillspick/internal/catalog"
	"github.com/javainthinking/skillspick/internal/crawler"
	"github.com/javainthinking/skillspick/internal/domain"
	"github.com/javainthinking/skillspick/internal/importer"
	"github.com/javainthinking/skillspick/internal/logger"
)

// Catalog serves skill reads and curation.
type Catalog interface {
	Search(ctx context.Context, p catalog.SearchParams) (*catalog.SearchResult, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Skill, error)
	SetHighlighted(ctx context.Context, id string, highlighted bool) (*domain.Skill, error)
}

// Checkpoints lists crawl positions.
type Checkpoints interface {
	List(ctx context.Context) ([]*domain.Checkpoint, error)
}

// Ingester runs one bounded crawler invocation.
type Ingester interface {
	Run(ctx context.Context, kind string, opts crawler.RunOptions) (*crawler.Result, error)
}

// Importer adds one skill from a GitHub URL.
type Importer interface {
	Import(ctx context.Context, rawURL string) (*importer.Result, error)
}

// Handler holds the endpoint implementations.
type Handler struct {
	catalog     Catalog
	checkpoints Checkpoints
	ingester    Ingester
	importer    Importer
	log         logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(cat Catalog, cps Checkpoints, ing Ingester, imp Importer, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{catalog: cat, checkpoints: cps, ingester: ing, importer: imp, log: log}
}

type searchQuery struct {
	Query       string `form:"q"`
	Sort        string `form:"sort"        binding:"omitempty,oneof=recent stars"`
	Highlighted bool   `form:"highlighted"`
	Limit       int    `form:"limit"       binding:"omitempty,min=1,max=200"`
	Offset      int    `form:"offset"      binding:"omitempty,min=0"`
}

// SearchSkills handles GET /api/v1/skills.
func (h *Handler) SearchSkills(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query", "details": err.Error()})
		return
	}

	res, err := h.catalog.Search(c.Request.Context(), catalog.SearchParams{
		Query:           q.Query,
		Sort:            q.Sort,
		HighlightedOnly: q.Highlighted,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.fail(c, "Failed to search skills", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSkill handles GET /api/v1/skills/:slug.
func (h *Handler) GetSkill(c *gin.Context) {
	skill, err := h.catalog.GetBySlug(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, catalog.ErrSkillNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Skill not found"})
		return
	}
	if err != nil {
		h.fail(c, "Failed to get skill", err)
		return
	}
	c.JSON(http.StatusOK, skill)
}

// IngestStatus handles GET /api/v1/ingest/status.
func (h *Handler) IngestStatus(c *gin.Context) {
	cps, err := h.checkpoints.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list checkpoints", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": cps, "count": len(cps)})
}

type ingestRequest struct {
	MaxUnits int `json:"max_units" binding:"omitempty,min=1"`
}

// TriggerIngest handles POST /api/v1/admin/ingest/:kind. The body is
// optional.
func (h *Handler) TriggerIngest(c *gin.Context) {
	var req ingestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	kind := c.Param("kind")
	res, err := h.ingester.Run(c.Request.Context(), kind, crawler.RunOptions{MaxUnits: req.MaxUnits})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, crawler.ErrUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, crawler.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, crawler.ErrMissingCredential):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	default:
		logger.FromContext(c.Request.Context(), h.log).Error("Ingest run failed",
			logger.String("kind", kind),
			logger.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
	}
}

type importRequest struct {
	URL string `json:"url" binding:"required"`
}

// ImportSkill handles POST /api/v1/admin/import.
func (h *Handler) ImportSkill(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	res, err := h.importer.Import(c.Request.Context(), req.URL)
	switch {
	case err == nil:
		status := http.StatusCreated
		if res.Existing {
			status = http.StatusOK
		}
		c.JSON(status, res)
	case errors.Is(err, importer.ErrUnsupportedURL), errors.Is(err, importer.ErrSkillDocEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, importer.ErrSkillDocNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.fail(c, "Failed to import skill", err)
	}
}

type highlightRequest struct {
	Highlighted *bool `json:"highlighted" binding:"required"`
}

// SetHighlight handles POST /api/v1/admin/skills/:id/highlight.
func (h *Handler) SetHighlight(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid skill id"})
		return
	}

	var req highlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	skill, err := h.catalog.SetHighlighted(c.Request.Context(), id, *req.Highlighted)
	if errors.Is(err, catalog.ErrSkillNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Skill not found"})
		return
	}
	if err != nil {
		h.fail(c, "Failed to update skill", err)
		return
	}

	logger.FromContext(c.Request.Context(), h.log).Info("Skill highlight updated",
		logger.String("skill_id", id),
		logger.Bool("highlighted", skill.Highlighted),
	)
	c.JSON(http.StatusOK, skill)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	logger.FromContext(c.Request.Context(), h.log).Error(msg, logger.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
