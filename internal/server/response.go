package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskward/taskward/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

// resolveError maps domain errors to HTTP status codes.
func resolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotValid):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotOwner):
		c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrAlreadyUndone):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
