package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/opp-comb/app/apperr"
	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/registry"
	"github.com/lysyi3m/opp-comb/app/status"
)

func NewHandler(targets TargetService, runs RunController, reports status.Store, seededSources int, version string) *Handler {
	return &Handler{
		targets:   targets,
		runs:      runs,
		reports:   reports,
		generator: NewListingFeedGenerator(version),
		sources:   seededSources,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"running":   h.runs.Running(),
	}

	if count, err := h.targets.TargetCount(c.Request.Context()); err == nil {
		health["targets"] = count
	}

	health["seeded_sources"] = h.sources

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListTargets(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	result, err := h.targets.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.respondError(c, "list_targets", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateTarget(c *gin.Context) {
	var in registry.NewTarget
	if err := c.ShouldBindJSON(&in); err != nil {
		h.respondError(c, "create_target", apperr.WithHint(errors.Mark(err, apperr.ErrInvalidInput), "Request body must be a JSON object with a url"))
		return
	}

	target, err := h.targets.Create(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, "create_target", err)
		return
	}

	c.JSON(http.StatusCreated, target)
}

func (h *Handler) GetTarget(c *gin.Context) {
	target, err := h.targets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_target", err)
		return
	}

	c.JSON(http.StatusOK, target)
}

func (h *Handler) UpdateTarget(c *gin.Context) {
	var patch database.TargetPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.respondError(c, "update_target", apperr.WithHint(errors.Mark(err, apperr.ErrInvalidInput), "Request body must be a JSON object"))
		return
	}

	target, err := h.targets.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, "update_target", err)
		return
	}

	c.JSON(http.StatusOK, target)
}

func (h *Handler) ToggleTarget(c *gin.Context) {
	target, err := h.targets.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "toggle_target", err)
		return
	}

	c.JSON(http.StatusOK, target)
}

func (h *Handler) DeleteTarget(c *gin.Context) {
	if err := h.targets.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "delete_target", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) TriggerRun(c *gin.Context) {
	if err := h.runs.Trigger(); err != nil {
		h.respondError(c, "trigger_run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Pipeline run started",
	})
}

func (h *Handler) HaltRun(c *gin.Context) {
	halted := h.runs.Halt()

	message := "No pipeline run in progress"
	if halted {
		message = "Pipeline run halting after the current source"
	}

	c.JSON(http.StatusOK, gin.H{
		"halted":  halted,
		"message": message,
	})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	reports, err := h.reports.Recent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "list_runs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  reports,
		"total": len(reports),
	})
}

func (h *Handler) LatestRun(c *gin.Context) {
	report, err := h.reports.Latest(c.Request.Context())
	if err != nil {
		h.respondError(c, "latest_run", err)
		return
	}
	if report == nil {
		h.respondError(c, "latest_run", apperr.WithHint(errors.Wrap(apperr.ErrNotFound, "latest run"), "No pipeline run recorded yet"))
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.targets.ListingStats(ctx)
	if err != nil {
		h.respondError(c, "get_stats", err)
		return
	}

	response := gin.H{
		"listings": stats,
		"running":  h.runs.Running(),
	}

	if count, err := h.targets.TargetCount(ctx); err == nil {
		response["targets"] = count
	}
	if latest, err := h.reports.Latest(ctx); err == nil && latest != nil {
		response["last_run"] = gin.H{
			"id":          latest.ID,
			"status":      latest.Status,
			"started_at":  latest.StartedAt,
			"finished_at": latest.FinishedAt,
			"totals":      latest.Totals,
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) ListingFeed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	listings, err := h.targets.RecentListings(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "listing_feed", err)
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	selfLink := fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, c.Request.URL.Path)

	rss, err := h.generator.Run(selfLink, listings)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(listings)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) respondError(c *gin.Context, operation string, err error) {
	classified := apperr.Classify(err)

	if classified.Status >= http.StatusInternalServerError {
		slog.Error("Request failed", "operation", operation, "error", err)
	} else {
		slog.Debug("Request rejected", "operation", operation, "code", classified.Code, "error", err)
	}

	_ = c.Error(err)
	c.JSON(classified.Status, errorBody{Error: apiError{Code: classified.Code, Message: classified.Message}})
}
