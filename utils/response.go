package utils

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
)

type JSONResponse struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	Data       interface{}  `json:"data,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Errors     []FieldError `json:"errors,omitempty"`
}

type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

func NewPagination(page PageRequest, total int64) *Pagination {
	pages := 0
	if page.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(page.Limit)))
	}
	return &Pagination{
		CurrentPage:  page.Page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: page.Limit,
	}
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	if code == http.StatusNoContent {
		c.Status(code)
		return
	}
	c.JSON(code, JSONResponse{
		Success: code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

func RespondPaginated(c *gin.Context, message string, data interface{}, page PageRequest, total int64) {
	c.JSON(http.StatusOK, JSONResponse{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: NewPagination(page, total),
	})
}

func RespondError(c *gin.Context, code int, message string, fields []FieldError) {
	c.JSON(code, JSONResponse{
		Success: false,
		Message: message,
		Errors:  fields,
	})
}
