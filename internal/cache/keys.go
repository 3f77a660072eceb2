package cache

import "fmt"

// Key scheme. Every key carries a scope prefix so invalidation can
// target one concern without sweeping the others.

// TaskKey is the cache key for a single task.
func TaskKey(taskID int64) string {
	return fmt.Sprintf("tasks:task_%d", taskID)
}

// UserTasksKey is the cache key for an owner's task list.
func UserTasksKey(ownerID int64) string {
	return fmt.Sprintf("tasks:user_%d_tasks", ownerID)
}

// OperationKey is the cache key for a bulk operation record.
func OperationKey(operationID string) string {
	return fmt.Sprintf("bulk:op_%s", operationID)
}

// SearchKeyPrefix is the invalidation prefix for all of an owner's
// derived search entries (results, suggestions, stats).
func SearchKeyPrefix(ownerID int64) string {
	return fmt.Sprintf("search:user_%d_", ownerID)
}

// SearchKey is the cache key for one search result, keyed by the full
// filter signature.
func SearchKey(ownerID int64, signature string) string {
	return SearchKeyPrefix(ownerID) + "results_" + signature
}

// SuggestionsKey is the cache key for autocomplete suggestions.
func SuggestionsKey(ownerID int64, query string) string {
	return SearchKeyPrefix(ownerID) + "suggestions_" + query
}

// StatsKey is the cache key for an owner's filter statistics.
func StatsKey(ownerID int64) string {
	return SearchKeyPrefix(ownerID) + "stats"
}
