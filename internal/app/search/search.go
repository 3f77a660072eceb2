package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskward/taskward/internal/cache"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage"
)

// Pagination bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Suggestion bounds.
const (
	MinSuggestionQuery    = 2
	DefaultSuggestionSize = 10
)

// ServiceConfig is the configuration for the search service.
type ServiceConfig struct {
	TaskRepository storage.TaskRepository
	Cache          cache.Cache
	Logger         log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Search"})
	return nil
}

// Service answers search, autocomplete and filter statistic queries
// over the task store, caching filter-only results. Free-text queries
// always hit the store so typed searches stay fresh.
type Service struct {
	tasks  storage.TaskRepository
	cache  cache.Cache
	logger log.Logger
}

// NewService creates a new search service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		tasks:  cfg.TaskRepository,
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}, nil
}

// Search runs a combined text and filter query over the caller's
// tasks and returns one page of results with pagination metadata.
func (s *Service) Search(ctx context.Context, user model.User, filters model.SearchFilters) (*model.SearchResult, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	clampFilters(&filters)

	keywords := ParseKeywords(filters.Query)
	ownerID := searchScope(user)

	// Text queries bypass the cache. Filter-only queries are cached
	// keyed by the full filter signature.
	useCache := len(keywords) == 0
	key := cache.SearchKey(ownerID, filterSignature(filters))
	if useCache {
		if cached := s.cachedResult(ctx, key); cached != nil {
			return cached, nil
		}
	}

	q := model.SearchQuery{
		OwnerID:     ownerID,
		Keywords:    keywords,
		Completed:   filters.Completed,
		Priorities:  filters.Priorities,
		DueFrom:     filters.DueFrom,
		DueTo:       filters.DueTo,
		CreatedFrom: filters.CreatedFrom,
		CreatedTo:   filters.CreatedTo,
		SortBy:      filters.SortBy,
		Order:       filters.Order,
		Offset:      (filters.Page - 1) * filters.Size,
		Limit:       filters.Size,
	}

	start := time.Now()
	tasks, total, err := s.tasks.SearchTasks(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("could not search tasks: %w", err)
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	totalPages := 0
	if total > 0 {
		totalPages = (total + filters.Size - 1) / filters.Size
	}
	result := &model.SearchResult{
		Tasks:        tasks,
		Total:        total,
		Page:         filters.Page,
		Size:         filters.Size,
		TotalPages:   totalPages,
		HasNext:      filters.Page < totalPages,
		HasPrev:      filters.Page > 1 && total > 0,
		SearchTimeMS: elapsed,
	}

	if useCache {
		s.cacheJSON(ctx, key, result, cache.SearchTTL)
	}
	return result, nil
}

// Suggestions returns autocomplete candidates for a partial query,
// drawn from the caller's task titles and description words.
func (s *Service) Suggestions(ctx context.Context, user model.User, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinSuggestionQuery {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestionSize
	}

	ownerID := searchScope(user)
	key := cache.SuggestionsKey(ownerID, strings.ToLower(query))
	if payload, err := s.cache.Get(ctx, key); err == nil {
		var cached []string
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, model.ErrNotFound) {
		s.logger.Warningf("Could not read suggestions cache: %s", err)
	}

	suggestions, err := s.tasks.SearchSuggestions(ctx, ownerID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("could not load suggestions: %w", err)
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	s.cacheJSON(ctx, key, suggestions, cache.SuggestTTL)
	return suggestions, nil
}

// Stats returns aggregate statistics over the caller's tasks for
// populating filter widgets.
func (s *Service) Stats(ctx context.Context, user model.User) (*model.FilterStats, error) {
	ownerID := searchScope(user)
	key := cache.StatsKey(ownerID)
	if payload, err := s.cache.Get(ctx, key); err == nil {
		var cached model.FilterStats
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, model.ErrNotFound) {
		s.logger.Warningf("Could not read stats cache: %s", err)
	}

	stats, err := s.tasks.FilterStats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("could not load filter stats: %w", err)
	}

	s.cacheJSON(ctx, key, stats, cache.StatsTTL)
	return stats, nil
}

// ParseKeywords splits a free-text query into search terms: quoted
// phrases are kept whole, everything else splits on whitespace. All
// terms are lowercased and matched conjunctively.
func ParseKeywords(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var (
		terms   []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '"':
			flush()
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return terms
}

// searchScope returns the owner queries run under. Administrative
// callers query across every owner.
func searchScope(user model.User) int64 {
	if user.IsAdmin() {
		return 0
	}
	return user.ID
}

// clampFilters normalizes pagination and fills sort defaults.
func clampFilters(f *model.SearchFilters) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	if f.SortBy == "" {
		f.SortBy = model.SortFieldCreatedAt
	}
	if f.Order == "" {
		f.Order = model.SortDesc
	}
}

// filterSignature derives a stable cache key component from the full
// filter set, so any change in filters lands on a different entry.
type signatureFilters struct {
	Query       string           `json:"q"`
	Completed   *bool            `json:"completed"`
	Priorities  []model.Priority `json:"priorities"`
	DueFrom     *time.Time       `json:"due_from"`
	DueTo       *time.Time       `json:"due_to"`
	CreatedFrom *time.Time       `json:"created_from"`
	CreatedTo   *time.Time       `json:"created_to"`
	SortBy      model.SortField  `json:"sort_by"`
	Order       model.SortOrder  `json:"order"`
	Page        int              `json:"page"`
	Size        int              `json:"size"`
}

func filterSignature(f model.SearchFilters) string {
	payload, _ := json.Marshal(signatureFilters{
		Query:       f.Query,
		Completed:   f.Completed,
		Priorities:  f.Priorities,
		DueFrom:     f.DueFrom,
		DueTo:       f.DueTo,
		CreatedFrom: f.CreatedFrom,
		CreatedTo:   f.CreatedTo,
		SortBy:      f.SortBy,
		Order:       f.Order,
		Page:        f.Page,
		Size:        f.Size,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}

func (s *Service) cachedResult(ctx context.Context, key string) *model.SearchResult {
	payload, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("Could not read search cache: %s", err)
		}
		return nil
	}

	var result model.SearchResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.logger.Warningf("Could not unmarshal cached search result: %s", err)
		return nil
	}
	return &result
}

func (s *Service) cacheJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Errorf("Could not marshal cache payload for %s: %s", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		s.logger.Warningf("Could not cache %s: %s", key, err)
	}
}
