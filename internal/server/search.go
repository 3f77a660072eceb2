package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskward/taskward/internal/app/search"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// SearchHandler exposes the search, suggestion and statistics
// endpoints.
type SearchHandler struct {
	svc    *search.Service
	logger log.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(svc *search.Service, logger log.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, logger: logger}
}

// EnrichRoutes mounts the search endpoints on the router group.
func (h *SearchHandler) EnrichRoutes(router *gin.RouterGroup) {
	searchRoutes := router.Group("/search")
	searchRoutes.GET("/tasks", h.searchAction)
	searchRoutes.POST("/tasks", h.searchBodyAction)
	searchRoutes.GET("/suggestions", h.suggestionsAction)
	searchRoutes.GET("/stats", h.statsAction)
}

func (h *SearchHandler) searchAction(c *gin.Context) {
	const op = "server.SearchHandler.searchAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	filters, err := filtersFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	h.search(c, logger, filters)
}

type searchForm struct {
	Query       string     `json:"query"`
	Completed   *bool      `json:"completed"`
	Priorities  []string   `json:"priorities"`
	DueFrom     *time.Time `json:"due_from"`
	DueTo       *time.Time `json:"due_to"`
	CreatedFrom *time.Time `json:"created_from"`
	CreatedTo   *time.Time `json:"created_to"`
	SortBy      string     `json:"sort_by"`
	Order       string     `json:"order"`
	Page        int        `json:"page"`
	Size        int        `json:"size"`
}

func (h *SearchHandler) searchBodyAction(c *gin.Context) {
	const op = "server.SearchHandler.searchBodyAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form searchForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	priorities := make([]model.Priority, 0, len(form.Priorities))
	for _, p := range form.Priorities {
		priorities = append(priorities, model.Priority(p))
	}

	h.search(c, logger, model.SearchFilters{
		Query:       form.Query,
		Completed:   form.Completed,
		Priorities:  priorities,
		DueFrom:     form.DueFrom,
		DueTo:       form.DueTo,
		CreatedFrom: form.CreatedFrom,
		CreatedTo:   form.CreatedTo,
		SortBy:      model.SortField(form.SortBy),
		Order:       model.SortOrder(form.Order),
		Page:        form.Page,
		Size:        form.Size,
	})
}

func (h *SearchHandler) search(c *gin.Context, logger log.Logger, filters model.SearchFilters) {
	result, err := h.svc.Search(c.Request.Context(), userFrom(c), filters)
	if err != nil {
		logger.Errorf("Could not search tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSearchResultView(*result))
}

func (h *SearchHandler) suggestionsAction(c *gin.Context) {
	const op = "server.SearchHandler.suggestionsAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit is not a number"})
			return
		}
		limit = n
	}

	suggestions, err := h.svc.Suggestions(c.Request.Context(), userFrom(c), c.Query("q"), limit)
	if err != nil {
		logger.Errorf("Could not load suggestions: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *SearchHandler) statsAction(c *gin.Context) {
	const op = "server.SearchHandler.statsAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	stats, err := h.svc.Stats(c.Request.Context(), userFrom(c))
	if err != nil {
		logger.Errorf("Could not load filter stats: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newStatsView(*stats))
}

// filtersFromQuery parses search filters from URL query parameters.
func filtersFromQuery(c *gin.Context) (model.SearchFilters, error) {
	var filters model.SearchFilters
	filters.Query = c.Query("q")
	filters.SortBy = model.SortField(c.Query("sort_by"))
	filters.Order = model.SortOrder(c.Query("order"))

	if raw := c.Query("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, strconvError("completed")
		}
		filters.Completed = &v
	}
	if raw := c.Query("priorities"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			filters.Priorities = append(filters.Priorities, model.Priority(strings.TrimSpace(p)))
		}
	}

	for _, f := range []struct {
		name string
		dst  **time.Time
	}{
		{"due_from", &filters.DueFrom},
		{"due_to", &filters.DueTo},
		{"created_from", &filters.CreatedFrom},
		{"created_to", &filters.CreatedTo},
	} {
		raw := c.Query(f.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, strconvError(f.name)
		}
		*f.dst = &t
	}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filters, strconvError("page")
		}
		filters.Page = n
	}
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filters, strconvError("size")
		}
		filters.Size = n
	}

	return filters, nil
}

func strconvError(name string) error { return fmt.Errorf("invalid value for %s", name) }
