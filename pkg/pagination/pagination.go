// Copyright (c) 2026 Townhub. All rights reserved.

// Package pagination provides shared types and helpers for API list endpoints.
//
// # Overview
//
// It standardizes how page-based navigation is requested via query parameters
// and how the resulting metadata is delivered in the API response envelope.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is the number of items per page if not specified.
	DefaultLimit = 20
	// MaxLimit is the upper bound for items per page to prevent system abuse.
	MaxLimit = 100
	// DefaultPage is the starting page (1-indexed).
	DefaultPage = 1
)

// Params holds the parsed page and limit from a request's query string.
type Params struct {
	Page  int
	Limit int
}

// Offset returns the SQL OFFSET value derived from [Page] and [Limit].
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Meta is the pagination metadata included in API list responses.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// FromRequest parses `page` and `limit` query parameters with safe defaults.
//
// Out-of-range or unparseable values fall back to the defaults rather than
// producing an error; list endpoints should never fail on bad pagination.
func FromRequest(request *http.Request) Params {
	params := Params{Page: DefaultPage, Limit: DefaultLimit}

	if raw := request.URL.Query().Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page >= 1 {
			params.Page = page
		}
	}

	if raw := request.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 1 {
			params.Limit = min(limit, MaxLimit)
		}
	}

	return params
}

// NewMeta builds the response metadata block for a list result.
func NewMeta(params Params, total int64) Meta {
	totalPages := int((total + int64(params.Limit) - 1) / int64(params.Limit))
	return Meta{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
