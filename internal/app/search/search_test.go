package search_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskward/taskward/internal/app/search"
	"github.com/taskward/taskward/internal/cache"
	"github.com/taskward/taskward/internal/cache/memory"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
	"github.com/taskward/taskward/internal/storage/sqlite"
)

var owner = model.User{ID: 1}

type testEnv struct {
	svc   *search.Service
	repo  *sqlite.Repository
	cache *memory.Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	memCache, err := memory.NewCache(memory.CacheConfig{})
	require.NoError(t, err)

	svc, err := search.NewService(search.ServiceConfig{
		TaskRepository: repo,
		Cache:          memCache,
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, cache: memCache}
}

func (e *testEnv) addTask(t *testing.T, title, desc string, priority model.Priority) model.Task {
	t.Helper()
	created, err := e.repo.CreateTask(context.Background(), model.Task{
		OwnerID:     owner.ID,
		Title:       title,
		Description: desc,
		Priority:    priority,
	})
	require.NoError(t, err)
	return *created
}

func TestParseKeywords(t *testing.T) {
	tests := map[string]struct {
		query    string
		expected []string
	}{
		"Empty query yields no keywords.":          {query: "   ", expected: nil},
		"Words split on whitespace.":               {query: "buy milk", expected: []string{"buy", "milk"}},
		"Keywords are lowercased.":                 {query: "Buy MILK", expected: []string{"buy", "milk"}},
		"Quoted phrases are kept whole.":           {query: `"buy milk" today`, expected: []string{"buy milk", "today"}},
		"Unterminated quote is tolerated.":         {query: `"buy milk`, expected: []string{"buy milk"}},
		"Adjacent quotes yield separate phrases.":  {query: `"a b""c d"`, expected: []string{"a b", "c d"}},
		"Extra whitespace between words is noise.": {query: "  a \t b\nc ", expected: []string{"a", "b", "c"}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, search.ParseKeywords(test.query))
		})
	}
}

func TestSearchTextQuery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addTask(t, "Buy groceries", "milk and eggs", model.PriorityMedium)
	env.addTask(t, "Call dentist", "", model.PriorityLow)

	result, err := env.svc.Search(ctx, owner, model.SearchFilters{Query: `"buy groceries"`})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "Buy groceries", result.Tasks[0].Title)
	assert.GreaterOrEqual(t, result.SearchTimeMS, 0.0)
}

func TestSearchPaginationClamping(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for i := 0; i < 30; i++ {
		env.addTask(t, "task", "", model.PriorityMedium)
	}

	tests := map[string]struct {
		filters    model.SearchFilters
		expPage    int
		expSize    int
		expTasks   int
		expPages   int
		expHasNext bool
		expHasPrev bool
	}{
		"Defaults fill in page and size.": {
			filters:    model.SearchFilters{},
			expPage:    1,
			expSize:    search.DefaultPageSize,
			expTasks:   20,
			expPages:   2,
			expHasNext: true,
		},
		"Page below one clamps to one.": {
			filters:    model.SearchFilters{Page: -3, Size: 10},
			expPage:    1,
			expSize:    10,
			expTasks:   10,
			expPages:   3,
			expHasNext: true,
		},
		"Size above the cap clamps to the cap.": {
			filters:  model.SearchFilters{Page: 1, Size: 5000},
			expPage:  1,
			expSize:  search.MaxPageSize,
			expTasks: 30,
			expPages: 1,
		},
		"Last page has no next.": {
			filters:    model.SearchFilters{Page: 2, Size: 20},
			expPage:    2,
			expSize:    20,
			expTasks:   10,
			expPages:   2,
			expHasPrev: true,
		},
		"Page past the end is empty but keeps metadata.": {
			filters:    model.SearchFilters{Page: 9, Size: 10},
			expPage:    9,
			expSize:    10,
			expTasks:   0,
			expPages:   3,
			expHasPrev: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := env.svc.Search(ctx, owner, test.filters)
			require.NoError(t, err)
			assert.Equal(t, 30, result.Total)
			assert.Equal(t, test.expPage, result.Page)
			assert.Equal(t, test.expSize, result.Size)
			assert.Len(t, result.Tasks, test.expTasks)
			assert.Equal(t, test.expPages, result.TotalPages)
			assert.Equal(t, test.expHasNext, result.HasNext)
			assert.Equal(t, test.expHasPrev, result.HasPrev)
		})
	}
}

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Search(ctx, owner, model.SearchFilters{Priorities: []model.Priority{"urgent"}})
	assert.True(t, errors.Is(err, model.ErrNotValid))

	_, err = env.svc.Search(ctx, owner, model.SearchFilters{SortBy: "owner_id"})
	assert.True(t, errors.Is(err, model.ErrNotValid))

	_, err = env.svc.Search(ctx, owner, model.SearchFilters{Order: "sideways"})
	assert.True(t, errors.Is(err, model.ErrNotValid))
}

func TestSearchFilterOnlyQueriesAreCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addTask(t, "cached", "", model.PriorityMedium)

	first, err := env.svc.Search(ctx, owner, model.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	// A new row behind the cache's back: the cached page still serves
	// the old total.
	env.addTask(t, "added later", "", model.PriorityMedium)

	second, err := env.svc.Search(ctx, owner, model.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Total)

	// Different filters land on a different cache entry.
	completed := false
	third, err := env.svc.Search(ctx, owner, model.SearchFilters{Completed: &completed})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Total)
}

func TestSearchTextQueriesBypassCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addTask(t, "report draft", "", model.PriorityMedium)

	first, err := env.svc.Search(ctx, owner, model.SearchFilters{Query: "report"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	env.addTask(t, "report final", "", model.PriorityMedium)

	// Free-text searches always see fresh rows.
	second, err := env.svc.Search(ctx, owner, model.SearchFilters{Query: "report"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Total)
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addTask(t, "Groceries run", "buy groceries weekly", model.PriorityMedium)

	short, err := env.svc.Suggestions(ctx, owner, "g", 10)
	require.NoError(t, err)
	assert.Empty(t, short)

	suggestions, err := env.svc.Suggestions(ctx, owner, "grocer", 10)
	require.NoError(t, err)
	assert.Contains(t, suggestions, "Groceries run")
	assert.Contains(t, suggestions, "groceries")

	// Second call is served from the cache.
	ok, err := env.cache.Exists(ctx, cache.SuggestionsKey(owner.ID, "grocer"))
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := env.svc.Suggestions(ctx, owner, "grocer", 10)
	require.NoError(t, err)
	assert.Equal(t, suggestions, again)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.addTask(t, "a", "", model.PriorityHigh)
	env.addTask(t, "b", "", model.PriorityLow)

	stats, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.Priorities[model.PriorityHigh])
	assert.Equal(t, 2, stats.Pending)

	// Cached: a new row is invisible until invalidation.
	env.addTask(t, "c", "", model.PriorityLow)
	cached, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, cached.TotalTasks)

	require.NoError(t, env.cache.DeleteByPattern(ctx, cache.SearchKeyPrefix(owner.ID)))
	fresh, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.TotalTasks)
}

func TestSearchAdminScope(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := model.User{ID: 99, Role: model.RoleAdmin}
	other := model.User{ID: 2}

	env.addTask(t, "alpha report", "quarterly numbers", model.PriorityHigh)
	_, err := env.repo.CreateTask(ctx, model.Task{
		OwnerID:     other.ID,
		Title:       "beta report",
		Description: "quarterly numbers",
		Priority:    model.PriorityLow,
	})
	require.NoError(t, err)

	// Admins query across every owner, regular callers stay scoped.
	result, err := env.svc.Search(ctx, admin, model.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)

	result, err = env.svc.Search(ctx, owner, model.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, owner.ID, result.Tasks[0].OwnerID)

	suggestions, err := env.svc.Suggestions(ctx, admin, "report", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha report", "beta report"}, suggestions)

	stats, err := env.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTasks)

	ownStats, err := env.svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, ownStats.TotalTasks)
}

func TestSearchTimeWindowFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	due := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	created, err := env.repo.CreateTask(ctx, model.Task{
		OwnerID:  owner.ID,
		Title:    "with due date",
		Priority: model.PriorityMedium,
		DueDate:  &due,
	})
	require.NoError(t, err)
	env.addTask(t, "without due date", "", model.PriorityMedium)

	from := due.Add(-24 * time.Hour)
	to := due.Add(24 * time.Hour)
	result, err := env.svc.Search(ctx, owner, model.SearchFilters{DueFrom: &from, DueTo: &to})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, created.ID, result.Tasks[0].ID)
}
