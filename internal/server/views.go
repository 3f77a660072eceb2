package server

import (
	"time"

	"github.com/taskward/taskward/internal/model"
)

// taskView is the JSON representation of a task.
type taskView struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Position    int64      `json:"position"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func newTaskView(t model.Task) taskView {
	return taskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Position:    t.Position,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func newTaskViews(tasks []model.Task) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	return views
}

type itemErrorView struct {
	TaskID int64  `json:"task_id"`
	Error  string `json:"error"`
}

// operationView is the JSON representation of a bulk operation record.
type operationView struct {
	ID             string          `json:"operation_id"`
	Kind           string          `json:"operation_type"`
	Status         string          `json:"status"`
	TotalItems     int             `json:"total_items"`
	ProcessedItems int             `json:"processed_items"`
	FailedItems    int             `json:"failed_items"`
	Progress       float64         `json:"progress_percentage"`
	ItemErrors     []itemErrorView `json:"errors"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CanUndo        bool            `json:"can_undo"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func newOperationView(op model.BulkOperation) operationView {
	itemErrors := make([]itemErrorView, 0, len(op.ItemErrors))
	for _, e := range op.ItemErrors {
		itemErrors = append(itemErrors, itemErrorView{TaskID: e.TaskID, Error: e.Error})
	}

	return operationView{
		ID:             op.ID,
		Kind:           string(op.Kind),
		Status:         string(op.Status),
		TotalItems:     op.TotalItems,
		ProcessedItems: op.ProcessedItems,
		FailedItems:    op.FailedItems,
		Progress:       op.ProgressPercentage(),
		ItemErrors:     itemErrors,
		ErrorMessage:   op.ErrorMessage,
		CanUndo:        op.CanUndo,
		CreatedAt:      op.CreatedAt,
		StartedAt:      op.StartedAt,
		CompletedAt:    op.CompletedAt,
	}
}

// operationResultView wraps an operation record with the rows a create
// or duplicate produced.
type operationResultView struct {
	operationView
	Tasks []taskView `json:"tasks,omitempty"`
}

// undoResultView is the JSON representation of an undo outcome.
type undoResultView struct {
	OperationID string          `json:"operation_id"`
	Kind        string          `json:"operation_type"`
	Processed   int             `json:"processed_items"`
	Failed      int             `json:"failed_items"`
	ItemErrors  []itemErrorView `json:"errors"`
}

// searchResultView is the JSON representation of a search page.
type searchResultView struct {
	Tasks        []taskView `json:"tasks"`
	Total        int        `json:"total"`
	Page         int        `json:"page"`
	Size         int        `json:"size"`
	TotalPages   int        `json:"total_pages"`
	HasNext      bool       `json:"has_next"`
	HasPrev      bool       `json:"has_prev"`
	SearchTimeMS float64    `json:"search_time_ms"`
}

func newSearchResultView(r model.SearchResult) searchResultView {
	return searchResultView{
		Tasks:        newTaskViews(r.Tasks),
		Total:        r.Total,
		Page:         r.Page,
		Size:         r.Size,
		TotalPages:   r.TotalPages,
		HasNext:      r.HasNext,
		HasPrev:      r.HasPrev,
		SearchTimeMS: r.SearchTimeMS,
	}
}

// statsView is the JSON representation of filter statistics.
type statsView struct {
	Priorities  map[string]int `json:"priorities"`
	Completed   int            `json:"completed"`
	Pending     int            `json:"pending"`
	TotalTasks  int            `json:"total_tasks"`
	CreatedFrom *time.Time     `json:"created_from"`
	CreatedTo   *time.Time     `json:"created_to"`
	DueFrom     *time.Time     `json:"due_from"`
	DueTo       *time.Time     `json:"due_to"`
}

func newStatsView(s model.FilterStats) statsView {
	priorities := make(map[string]int, len(s.Priorities))
	for p, n := range s.Priorities {
		priorities[string(p)] = n
	}
	return statsView{
		Priorities:  priorities,
		Completed:   s.Completed,
		Pending:     s.Pending,
		TotalTasks:  s.TotalTasks,
		CreatedFrom: s.CreatedFrom,
		CreatedTo:   s.CreatedTo,
		DueFrom:     s.DueFrom,
		DueTo:       s.DueTo,
	}
}
