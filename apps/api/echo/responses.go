package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
)

type (
	// Response is the envelope of every successful JSON response.
	Response struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data,omitempty"`
		Message string      `json:"message,omitempty"`
	}

	ListResponse struct {
		Success    bool             `json:"success"`
		Data       interface{}      `json:"data"`
		Count      int              `json:"count"`
		Total      int              `json:"total"`
		Pagination *core.Pagination `json:"pagination,omitempty"`
	}

	ErrorResponse struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors,omitempty"`
	}
)

func respond(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, Response{Success: true, Data: data})
}

func respondMessage(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusOK, Response{Success: true, Message: msg})
}

func respondList(ctx echo.Context, data interface{}, count, total int, page *core.Pagination) error {
	return ctx.JSON(http.StatusOK, ListResponse{
		Success:    true,
		Data:       data,
		Count:      count,
		Total:      total,
		Pagination: page,
	})
}
