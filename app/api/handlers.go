package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/contentloop/crossposter/app/cfg"
	"github.com/contentloop/crossposter/app/community"
	"github.com/contentloop/crossposter/app/database"
	"github.com/contentloop/crossposter/app/tasks"
	"github.com/gin-gonic/gin"
)

func NewHandler(configCache *community.ConfigCache, recordRepo database.RecordRepository,
	accountRepo database.AccountRepository, scheduler tasks.TaskSchedulerInterface,
	newTask TaskFactory) *Handler {
	return &Handler{
		recordRepo:  recordRepo,
		accountRepo: accountRepo,
		configCache: configCache,
		scheduler:   scheduler,
		newTask:     newTask,
		startedAt:   time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"version":               cfg.GetVersion(),
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"uptime":                time.Since(h.startedAt).Round(time.Second).String(),
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.recordRepo.GetStats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	communities := make([]map[string]interface{}, 0, len(stats))
	for _, s := range stats {
		communities = append(communities, map[string]interface{}{
			"community": s.Community,
			"total":     s.Total,
			"posted":    s.Posted,
		})
	}

	response := gin.H{
		"communities": communities,
		"total":       len(communities),
	}

	if states, err := h.accountRepo.GetStates(c.Request.Context()); err == nil {
		accounts := make([]map[string]interface{}, 0, len(states))
		for _, state := range states {
			accounts = append(accounts, map[string]interface{}{
				"account":      state.AccountID,
				"posts_today":  state.PostsToday,
				"window_start": state.WindowStart.Format(time.RFC3339),
			})
		}
		response["accounts"] = accounts
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APIListCommunities(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	communities := make([]map[string]interface{}, 0, len(configs))

	for _, config := range configs {
		communities = append(communities, map[string]interface{}{
			"name":             config.Name,
			"source":           config.Source,
			"account":          config.Account.Name,
			"enabled":          config.Settings.Enabled,
			"fetch_limit":      config.Settings.FetchLimit,
			"refresh_interval": (time.Duration(config.Settings.RefreshInterval) * time.Second).String(),
			"thresholds":       len(config.Decision.Thresholds),
			"banned_terms":     len(config.Decision.BannedTerms),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"communities": communities,
		"total":       len(communities),
	})
}

func (h *Handler) APIRefreshCommunity(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing community name parameter"})
		return
	}

	config, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "community", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Community configuration not found",
			"details": err.Error(),
		})
		return
	}

	task := h.newTask(name, config)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing processing task", "community", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue processing task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and processing task enqueued",
		"community": gin.H{
			"name":   name,
			"source": config.Source,
		},
		"task": gin.H{
			"id":   task.GetID(),
			"type": task.GetType(),
		},
	})
}
