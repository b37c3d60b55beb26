package routes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRoute signals that a route failed basic validation.
var ErrInvalidRoute = errors.New("invalid route")

// RootRoute 是未命中任何前缀时的兜底路由标签值。
var RootRoute = "/"

// Route 定义一条路由前缀，日志中的请求路径按最长前缀归入对应路由标签。
type Route struct {
	Prefix    string            `json:"prefix"`
	Comment   string            `json:"comment,omitempty"`
	Enabled   bool              `json:"enabled"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate 检查路由定义是否符合要求。
func (r Route) Validate() error {
	prefix := strings.TrimSpace(r.Prefix)
	if prefix == "" {
		return fmt.Errorf("%w: prefix is required", ErrInvalidRoute)
	}
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("%w: prefix must start with '/'", ErrInvalidRoute)
	}
	if strings.ContainsAny(prefix, " \t\"\\") {
		return fmt.Errorf("%w: prefix must not contain whitespace or quotes", ErrInvalidRoute)
	}
	for key := range r.Meta {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: meta key must not be empty", ErrInvalidRoute)
		}
	}
	return nil
}

func cloneRoutes(src []Route) []Route {
	dst := make([]Route, len(src))
	for i := range src {
		dst[i] = cloneRoute(src[i])
	}
	return dst
}

func cloneRoute(r Route) Route {
	if r.Meta != nil {
		meta := make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			meta[k] = v
		}
		r.Meta = meta
	}
	return r
}
