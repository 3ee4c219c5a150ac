package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PaginationParams is the page window a list endpoint was asked for.
type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// GetPaginationParams reads the "page" and "limit" query parameters. Absent,
// malformed, or out-of-range values fall back to page 1 and the default
// size; limits above maxPageSize are treated the same as garbage input.
func GetPaginationParams(c echo.Context) PaginationParams {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}

	size := queryInt(c, "limit", defaultPageSize)
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: size,
		Offset:   (page - 1) * size,
	}
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
