package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"apodetl/internal/models"
	"apodetl/internal/pipeline"
	"apodetl/internal/repository"
	"apodetl/internal/service"
	"apodetl/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Runner starts pipeline runs on request.
type Runner interface {
	Run(ctx context.Context, trigger string) (*pipeline.RunResult, error)
	Running() bool
}

// StatsFunc reports cache server statistics.
type StatsFunc func(ctx context.Context) (map[string]string, error)

type APODHandler struct {
	db      *gorm.DB
	runner  Runner
	cache   repository.CacheRepository
	stats   StatsFunc
	baseCtx context.Context

	// scheduled reports whether the periodic scheduler is active.
	scheduled func() bool
}

type HandlerOption func(*APODHandler)

// WithCache serves /apod/today from the payload cache.
func WithCache(cache repository.CacheRepository, stats StatsFunc) HandlerOption {
	return func(h *APODHandler) {
		h.cache = cache
		h.stats = stats
	}
}

// WithSchedulerStatus reports the scheduler state in system stats.
func WithSchedulerStatus(running func() bool) HandlerOption {
	return func(h *APODHandler) { h.scheduled = running }
}

// WithBaseContext sets the parent context of manually triggered runs.
func WithBaseContext(ctx context.Context) HandlerOption {
	return func(h *APODHandler) { h.baseCtx = ctx }
}

func NewAPODHandler(db *gorm.DB, runner Runner, opts ...HandlerOption) *APODHandler {
	h := &APODHandler{
		db:      db,
		runner:  runner,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *APODHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/health", h.HealthCheck)

	api.GET("/apod", h.ListAPOD)
	api.GET("/apod/latest", h.GetLatestAPOD)
	api.GET("/apod/today", h.GetTodayPayload)
	api.GET("/apod/export", h.ExportAPOD)

	api.GET("/runs", h.ListRuns)
	api.GET("/runs/:id", h.GetRun)
	api.POST("/runs", h.TriggerRun)

	api.GET("/system/stats", h.SystemStats)
}

func (h *APODHandler) hasTable() bool {
	return h.db.Migrator().HasTable(&models.APODData{})
}

func (h *APODHandler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	services := map[string]string{"database": "connected"}
	status := http.StatusOK

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		services["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		services["redis"] = "connected"
		if _, err := h.cache.Exists(ctx, "health"); err != nil {
			services["redis"] = "unreachable"
		}
	} else {
		services["redis"] = "disabled"
	}

	services["pipeline"] = "idle"
	if h.runner.Running() {
		services["pipeline"] = "running"
	}

	body := HealthResponse{Status: "ok", Services: services, Timestamp: nowRFC3339()}
	if status != http.StatusOK {
		body.Status = "degraded"
	}
	c.JSON(status, body)
}

func (h *APODHandler) GetLatestAPOD(c *gin.Context) {
	if !h.hasTable() {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no data loaded"})
		return
	}

	row, err := repository.NewAPODRepository(h.db).GetLatest(c.Request.Context())
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no data loaded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get latest APOD", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAPODResponse(*row),
	})
}

func (h *APODHandler) ListAPOD(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items := []APODResponse{}
	var total int64
	if h.hasTable() {
		repo := repository.NewAPODRepository(h.db)
		rows, err := repo.GetPaginated(c.Request.Context(), page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list APOD rows", Message: err.Error()})
			return
		}
		for _, row := range rows {
			items = append(items, toAPODResponse(row))
		}
		if total, err = repo.Count(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to count APOD rows", Message: err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"page":    page,
		"limit":   limit,
		"total":   total,
	})
}

func (h *APODHandler) GetTodayPayload(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "payload cache is disabled"})
		return
	}

	var payload map[string]interface{}
	found, err := h.cache.GetJSON(c.Request.Context(), service.APODCacheKey("today"), &payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read cache", Message: err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no payload cached"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payload,
	})
}

func (h *APODHandler) ExportAPOD(c *gin.Context) {
	var rows []models.APODData
	if h.hasTable() {
		var err error
		rows, err = repository.NewAPODRepository(h.db).All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read APOD rows", Message: err.Error()})
			return
		}
	}

	buf, err := utils.CreateAPODWorkbook(rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to build export", Message: err.Error()})
		return
	}

	filename := fmt.Sprintf("apod_export_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, utils.XLSXContentType, buf.Bytes())
}

func (h *APODHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	runs, err := repository.NewRunRepository(h.db).GetLastN(c.Request.Context(), pipeline.DAGID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    runs,
		"running": h.runner.Running(),
	})
}

func (h *APODHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid run id"})
		return
	}

	run, err := repository.NewRunRepository(h.db).GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to get run", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    run,
	})
}

// TriggerRun starts a manual run in the background.
func (h *APODHandler) TriggerRun(c *gin.Context) {
	if h.runner.Running() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: pipeline.ErrRunInProgress.Error()})
		return
	}

	go func() {
		_, err := h.runner.Run(h.baseCtx, models.TriggerManual)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			slog.Info("Manual run skipped, another run is in progress")
		case err != nil:
			slog.Error("Manual run failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "run triggered",
	})
}

func (h *APODHandler) SystemStats(c *gin.Context) {
	ctx := c.Request.Context()

	var apodCount int64
	if h.hasTable() {
		apodCount, _ = repository.NewAPODRepository(h.db).Count(ctx)
	}

	runRepo := repository.NewRunRepository(h.db)
	succeeded, _ := runRepo.CountByStatus(ctx, pipeline.DAGID, models.RunStatusSuccess)
	failed, _ := runRepo.CountByStatus(ctx, pipeline.DAGID, models.RunStatusFailed)

	var redisStats map[string]string
	if h.stats != nil {
		stats, err := h.stats(ctx)
		if err != nil {
			slog.Warn("Failed to collect Redis stats", "error", err)
		}
		redisStats = stats
	}

	c.JSON(http.StatusOK, gin.H{
		"database": gin.H{
			"apod_rows": apodCount,
			"runs": gin.H{
				models.RunStatusSuccess: succeeded,
				models.RunStatusFailed:  failed,
			},
		},
		"redis": redisStats,
		"pipeline": gin.H{
			"dag_id":    pipeline.DAGID,
			"running":   h.runner.Running(),
			"scheduled": h.scheduled != nil && h.scheduled(),
		},
		"timestamp": nowRFC3339(),
	})
}
