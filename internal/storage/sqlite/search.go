package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/taskward/taskward/internal/model"
)

// SearchTasks runs a filtered, sorted, paginated query and returns the
// page plus the total match count.
func (r *Repository) SearchTasks(ctx context.Context, q model.SearchQuery) ([]model.Task, int, error) {
	where, args := buildSearchWhere(q)

	var total int
	countQuery := `SELECT COUNT(*) FROM tasks` + where
	if err := r.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("could not count tasks: %w", err)
	}

	query := taskSelect + where + buildOrderBy(q) + ` LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func buildSearchWhere(q model.SearchQuery) (string, []any) {
	var conds []string
	var args []any

	if q.OwnerID != 0 {
		conds = append(conds, `owner_id = ?`)
		args = append(args, q.OwnerID)
	}

	// Every keyword must match title or description (AND semantics).
	for _, kw := range q.Keywords {
		conds = append(conds, `(lower(title) LIKE ? OR lower(description) LIKE ?)`)
		pattern := "%" + strings.ToLower(kw) + "%"
		args = append(args, pattern, pattern)
	}

	if q.Completed != nil {
		conds = append(conds, `completed = ?`)
		args = append(args, *q.Completed)
	}

	if len(q.Priorities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Priorities)), ",")
		conds = append(conds, `priority IN (`+placeholders+`)`)
		for _, p := range q.Priorities {
			args = append(args, p)
		}
	}

	if q.DueFrom != nil {
		conds = append(conds, `due_date >= ?`)
		args = append(args, q.DueFrom.Unix())
	}
	if q.DueTo != nil {
		conds = append(conds, `due_date <= ?`)
		args = append(args, q.DueTo.Unix())
	}
	if q.CreatedFrom != nil {
		conds = append(conds, `created_at >= ?`)
		args = append(args, q.CreatedFrom.Unix())
	}
	if q.CreatedTo != nil {
		conds = append(conds, `created_at <= ?`)
		args = append(args, q.CreatedTo.Unix())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, ` AND `), args
}

func buildOrderBy(q model.SearchQuery) string {
	dir := "DESC"
	if q.Order == model.SortAsc {
		dir = "ASC"
	}

	var expr string
	switch q.SortBy {
	case model.SortFieldUpdatedAt:
		expr = "updated_at"
	case model.SortFieldDueDate:
		expr = "due_date"
	case model.SortFieldTitle:
		expr = "lower(title)"
	case model.SortFieldPriority:
		// Semantic priority ordering, not lexical.
		expr = "CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END"
	case model.SortFieldCompleted:
		expr = "completed"
	case model.SortFieldPosition:
		expr = "position"
	default:
		expr = "created_at"
	}

	order := ` ORDER BY ` + expr + ` ` + dir
	if q.SortBy != model.SortFieldCreatedAt && q.SortBy != "" {
		order += `, created_at DESC`
	}
	// Stable tiebreak so pagination never overlaps.
	order += `, id ` + dir
	return order
}

// SearchSuggestions returns autocomplete suggestions built from
// matching titles and description words.
func (r *Repository) SearchSuggestions(ctx context.Context, ownerID int64, query string, limit int) ([]string, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	seen := map[string]bool{}

	collect := func(sqlQuery string, queryLimit int, fn func(value string)) error {
		args := []any{pattern}
		if ownerID != 0 {
			sqlQuery += ` AND owner_id = ?`
			args = append(args, ownerID)
		}
		sqlQuery += ` LIMIT ?`
		args = append(args, queryLimit)

		rows, err := r.q.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var value sql.NullString
			if err := rows.Scan(&value); err != nil {
				return err
			}
			if value.Valid {
				fn(value.String)
			}
		}
		return rows.Err()
	}

	err := collect(`SELECT DISTINCT title FROM tasks WHERE lower(title) LIKE ?`, limit, func(title string) {
		seen[title] = true
	})
	if err != nil {
		return nil, fmt.Errorf("could not query title suggestions: %w", err)
	}

	lowered := strings.ToLower(query)
	err = collect(`SELECT DISTINCT description FROM tasks WHERE lower(description) LIKE ?`, limit*2, func(desc string) {
		for _, word := range strings.Fields(desc) {
			if len(word) >= 3 && strings.Contains(strings.ToLower(word), lowered) {
				seen[word] = true
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("could not query description suggestions: %w", err)
	}

	suggestions := make([]string, 0, len(seen))
	for s := range seen {
		suggestions = append(suggestions, s)
	}
	sort.Strings(suggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// FilterStats returns aggregate statistics for filter widgets.
func (r *Repository) FilterStats(ctx context.Context, ownerID int64) (*model.FilterStats, error) {
	where := ``
	var args []any
	if ownerID != 0 {
		where = ` WHERE owner_id = ?`
		args = []any{ownerID}
	}

	stats := &model.FilterStats{
		Priorities: map[model.Priority]int{},
	}

	rows, err := r.q.QueryContext(ctx, `SELECT priority, COUNT(*) FROM tasks`+where+` GROUP BY priority`, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query priority stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Priority
		var count int
		if err := rows.Scan(&p, &count); err != nil {
			return nil, fmt.Errorf("could not scan priority stats: %w", err)
		}
		stats.Priorities[p] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priority stats: %w", err)
	}

	crows, err := r.q.QueryContext(ctx, `SELECT completed, COUNT(*) FROM tasks`+where+` GROUP BY completed`, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query completion stats: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var completed bool
		var count int
		if err := crows.Scan(&completed, &count); err != nil {
			return nil, fmt.Errorf("could not scan completion stats: %w", err)
		}
		if completed {
			stats.Completed = count
		} else {
			stats.Pending = count
		}
		stats.TotalTasks += count
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion stats: %w", err)
	}

	var minCreated, maxCreated, minDue, maxDue sql.NullInt64
	row := r.q.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at), MIN(due_date), MAX(due_date) FROM tasks`+where, args...)
	if err := row.Scan(&minCreated, &maxCreated, &minDue, &maxDue); err != nil {
		return nil, fmt.Errorf("could not query date stats: %w", err)
	}

	if minCreated.Valid {
		t := timeFromUnix(minCreated.Int64)
		stats.CreatedFrom = &t
	}
	if maxCreated.Valid {
		t := timeFromUnix(maxCreated.Int64)
		stats.CreatedTo = &t
	}
	if minDue.Valid {
		t := timeFromUnix(minDue.Int64)
		stats.DueFrom = &t
	}
	if maxDue.Valid {
		t := timeFromUnix(maxDue.Int64)
		stats.DueTo = &t
	}

	return stats, nil
}
