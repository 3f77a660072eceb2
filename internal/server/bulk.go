package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskward/taskward/internal/app/bulk"
	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// BulkHandler exposes the bulk operation endpoints.
type BulkHandler struct {
	svc    *bulk.Service
	logger log.Logger
}

// NewBulkHandler creates a new bulk operation handler.
func NewBulkHandler(svc *bulk.Service, logger log.Logger) *BulkHandler {
	return &BulkHandler{svc: svc, logger: logger}
}

// EnrichRoutes mounts the bulk endpoints on the router group.
func (h *BulkHandler) EnrichRoutes(router *gin.RouterGroup) {
	bulkRoutes := router.Group("/bulk")
	bulkRoutes.POST("/create", h.createAction)
	bulkRoutes.PUT("/update", h.updateAction)
	bulkRoutes.PUT("/status", h.statusAction)
	bulkRoutes.PUT("/priority", h.priorityAction)
	bulkRoutes.DELETE("/delete", h.deleteAction)
	bulkRoutes.POST("/duplicate", h.duplicateAction)
	bulkRoutes.PUT("/reorder", h.reorderAction)
	bulkRoutes.GET("/status/:operationID", h.getOperationAction)
	bulkRoutes.POST("/undo", h.undoAction)
	bulkRoutes.GET("/undo/history", h.historyAction)
}

type taskInputForm struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type bulkCreateForm struct {
	Tasks []taskInputForm `json:"tasks"`
}

func (h *BulkHandler) createAction(c *gin.Context) {
	const op = "server.BulkHandler.createAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkCreateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	tasks := make([]model.TaskInput, 0, len(form.Tasks))
	for _, t := range form.Tasks {
		tasks = append(tasks, model.TaskInput{
			Title:       t.Title,
			Description: t.Description,
			Completed:   t.Completed,
			Priority:    model.Priority(t.Priority),
			DueDate:     t.DueDate,
		})
	}

	result, err := h.svc.Create(c.Request.Context(), bulk.CreateRequest{User: userFrom(c), Tasks: tasks})
	if err != nil {
		logger.Errorf("Could not bulk create tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusCreated, operationResultView{
		operationView: newOperationView(*result.Operation),
		Tasks:         newTaskViews(result.Tasks),
	})
}

type bulkUpdateForm struct {
	TaskIDs     []int64    `json:"task_ids"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Completed   *bool      `json:"completed"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	ClearDue    bool       `json:"clear_due_date"`
}

func (h *BulkHandler) updateAction(c *gin.Context) {
	const op = "server.BulkHandler.updateAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkUpdateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	update := model.TaskUpdate{
		Title:        form.Title,
		Description:  form.Description,
		Completed:    form.Completed,
		DueDate:      form.DueDate,
		ClearDueDate: form.ClearDue,
	}
	if form.Priority != nil {
		p := model.Priority(*form.Priority)
		update.Priority = &p
	}

	result, err := h.svc.Update(c.Request.Context(), bulk.UpdateRequest{
		User:    userFrom(c),
		TaskIDs: form.TaskIDs,
		Update:  update,
	})
	if err != nil {
		logger.Errorf("Could not bulk update tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

type bulkStatusForm struct {
	TaskIDs   []int64 `json:"task_ids"`
	Completed bool    `json:"completed"`
}

func (h *BulkHandler) statusAction(c *gin.Context) {
	const op = "server.BulkHandler.statusAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkStatusForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.svc.Status(c.Request.Context(), bulk.StatusRequest{
		User:      userFrom(c),
		TaskIDs:   form.TaskIDs,
		Completed: form.Completed,
	})
	if err != nil {
		logger.Errorf("Could not bulk change task status: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

type bulkPriorityForm struct {
	TaskIDs  []int64 `json:"task_ids"`
	Priority string  `json:"priority"`
}

func (h *BulkHandler) priorityAction(c *gin.Context) {
	const op = "server.BulkHandler.priorityAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkPriorityForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.svc.Priority(c.Request.Context(), bulk.PriorityRequest{
		User:     userFrom(c),
		TaskIDs:  form.TaskIDs,
		Priority: model.Priority(form.Priority),
	})
	if err != nil {
		logger.Errorf("Could not bulk change task priority: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

type bulkDeleteForm struct {
	TaskIDs []int64 `json:"task_ids"`
}

func (h *BulkHandler) deleteAction(c *gin.Context) {
	const op = "server.BulkHandler.deleteAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkDeleteForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.svc.Delete(c.Request.Context(), bulk.DeleteRequest{User: userFrom(c), TaskIDs: form.TaskIDs})
	if err != nil {
		logger.Errorf("Could not bulk delete tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

type bulkDuplicateForm struct {
	TaskIDs []int64 `json:"task_ids"`
	Suffix  string  `json:"suffix"`
}

func (h *BulkHandler) duplicateAction(c *gin.Context) {
	const op = "server.BulkHandler.duplicateAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkDuplicateForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.svc.Duplicate(c.Request.Context(), bulk.DuplicateRequest{
		User:    userFrom(c),
		TaskIDs: form.TaskIDs,
		Suffix:  form.Suffix,
	})
	if err != nil {
		logger.Errorf("Could not bulk duplicate tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusCreated, operationResultView{
		operationView: newOperationView(*result.Operation),
		Tasks:         newTaskViews(result.Tasks),
	})
}

type taskPositionForm struct {
	ID       int64 `json:"id"`
	Position int64 `json:"position"`
}

type bulkReorderForm struct {
	Positions []taskPositionForm `json:"task_positions"`
}

func (h *BulkHandler) reorderAction(c *gin.Context) {
	const op = "server.BulkHandler.reorderAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form bulkReorderForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	positions := make([]model.TaskPosition, 0, len(form.Positions))
	for _, p := range form.Positions {
		positions = append(positions, model.TaskPosition{ID: p.ID, Position: p.Position})
	}

	result, err := h.svc.Reorder(c.Request.Context(), bulk.ReorderRequest{User: userFrom(c), Positions: positions})
	if err != nil {
		logger.Errorf("Could not reorder tasks: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

func (h *BulkHandler) getOperationAction(c *gin.Context) {
	const op = "server.BulkHandler.getOperationAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	result, err := h.svc.GetOperation(c.Request.Context(), userFrom(c), c.Param("operationID"))
	if err != nil {
		logger.Errorf("Could not get operation: %s", err)
		resolveError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOperationView(*result))
}

type undoForm struct {
	OperationID string `json:"operation_id"`
}

func (h *BulkHandler) undoAction(c *gin.Context) {
	const op = "server.BulkHandler.undoAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	var form undoForm
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&form); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	result, err := h.svc.Undo(c.Request.Context(), bulk.UndoRequest{User: userFrom(c), OperationID: form.OperationID})
	if err != nil {
		logger.Errorf("Could not undo operation: %s", err)
		resolveError(c, err)
		return
	}

	itemErrors := make([]itemErrorView, 0, len(result.ItemErrors))
	for _, e := range result.ItemErrors {
		itemErrors = append(itemErrors, itemErrorView{TaskID: e.TaskID, Error: e.Error})
	}
	c.JSON(http.StatusOK, undoResultView{
		OperationID: result.OperationID,
		Kind:        string(result.Kind),
		Processed:   result.Processed,
		Failed:      result.Failed,
		ItemErrors:  itemErrors,
	})
}

func (h *BulkHandler) historyAction(c *gin.Context) {
	const op = "server.BulkHandler.historyAction"
	logger := h.logger.WithValues(log.Kv{"operation": op})

	ops, err := h.svc.History(c.Request.Context(), userFrom(c))
	if err != nil {
		logger.Errorf("Could not list undo history: %s", err)
		resolveError(c, err)
		return
	}

	views := make([]operationView, 0, len(ops))
	for _, o := range ops {
		views = append(views, newOperationView(o))
	}
	c.JSON(http.StatusOK, views)
}
