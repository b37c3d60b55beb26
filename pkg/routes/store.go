package routes

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrRouteNotFound indicates a route lookup failed.
var ErrRouteNotFound = errors.New("route not found")

// Store 抽象出路由数据的读取与持久化。
type Store interface {
	List(ctx context.Context) ([]Route, error)
	Get(ctx context.Context, prefix string) (Route, error)
	Save(ctx context.Context, route Route) error
	Delete(ctx context.Context, prefix string) error
}

// MemoryStore 基于内存的简单实现，便于本地开发与测试。
type MemoryStore struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// NewMemoryStore 初始化一个空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes: make(map[string]Route),
	}
}

// List 返回所有路由，按前缀长度降序排序，便于最长前缀匹配。
func (s *MemoryStore) List(_ context.Context) ([]Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Route, 0, len(s.routes))
	for _, route := range s.routes {
		result = append(result, route)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if len(result[i].Prefix) != len(result[j].Prefix) {
			return len(result[i].Prefix) > len(result[j].Prefix)
		}
		return result[i].Prefix < result[j].Prefix
	})
	return result, nil
}

// Get 根据前缀查找路由。
func (s *MemoryStore) Get(_ context.Context, prefix string) (Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	route, ok := s.routes[prefix]
	if !ok {
		return Route{}, ErrRouteNotFound
	}
	return route, nil
}

// Save 新增或更新路由。
func (s *MemoryStore) Save(_ context.Context, route Route) error {
	if err := route.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route.Prefix] = route
	return nil
}

// Delete 按前缀删除路由。
func (s *MemoryStore) Delete(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.routes[prefix]; !exists {
		return ErrRouteNotFound
	}
	delete(s.routes, prefix)
	return nil
}
