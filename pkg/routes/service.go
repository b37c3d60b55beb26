package routes

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
)

// Service 封装业务层逻辑，支持缓存、事件通知与路由归一化。
type Service interface {
	ListRoutes(ctx context.Context) ([]Route, error)
	GetRoute(ctx context.Context, prefix string) (Route, error)
	UpsertRoute(ctx context.Context, route Route) error
	DeleteRoute(ctx context.Context, prefix string) error

	// ResolveRoute 将请求路径归一化为最长匹配的已启用路由前缀，
	// 未命中时返回 RootRoute。只读取进程内快照，适合逐行调用。
	ResolveRoute(path string) string

	// StartBackgroundSync 预热进程内快照并订阅跨副本变更事件。
	StartBackgroundSync(ctx context.Context)
}

// ServiceOption 用于配置 service。
type ServiceOption func(*service)

// WithCache 启用缓存。
func WithCache(cache Cache) ServiceOption {
	return func(s *service) {
		s.cache = cache
	}
}

// WithEventBus 设置事件总线，用于多实例同步。
func WithEventBus(bus EventBus) ServiceOption {
	return func(s *service) {
		s.eventBus = bus
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *service) {
		s.logger = logger
	}
}

// service 实现 Service 接口。
type service struct {
	store    Store
	cache    Cache
	eventBus EventBus

	mu       sync.RWMutex
	cached   []Route
	prefixes []string // 已启用前缀，按长度降序
	loaded   bool
	logger   *log.Logger
}

// NewService 返回默认实现。
func NewService(store Store, opts ...ServiceOption) Service {
	s := &service{
		store:  store,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListRoutes(ctx context.Context) ([]Route, error) {
	if routes, ok := s.getCachedRoutes(); ok {
		return cloneRoutes(routes), nil
	}
	if s.cache != nil {
		if routes, err := s.cache.Get(ctx); err == nil {
			s.setCachedRoutes(routes)
			return cloneRoutes(routes), nil
		} else if !errors.Is(err, ErrCacheMiss) {
			s.logger.Printf("routes cache get failed: %v", err)
		}
	}
	routes, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	s.setCachedRoutes(routes)
	if s.cache != nil {
		if err := s.cache.Set(ctx, routes); err != nil {
			s.logger.Printf("routes cache set failed: %v", err)
		}
	}
	return cloneRoutes(routes), nil
}

func (s *service) GetRoute(ctx context.Context, prefix string) (Route, error) {
	return s.store.Get(ctx, prefix)
}

func (s *service) UpsertRoute(ctx context.Context, route Route) error {
	if err := s.store.Save(ctx, route); err != nil {
		return err
	}
	if err := s.refreshCache(ctx); err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

func (s *service) DeleteRoute(ctx context.Context, prefix string) error {
	if err := s.store.Delete(ctx, prefix); err != nil {
		return err
	}
	if err := s.refreshCache(ctx); err != nil {
		return err
	}
	s.broadcast(ctx)
	return nil
}

func (s *service) ResolveRoute(path string) string {
	s.mu.RLock()
	prefixes := s.prefixes
	s.mu.RUnlock()

	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return RootRoute
}

func (s *service) StartBackgroundSync(ctx context.Context) {
	// 先预热进程内快照：存量路由（如数据库中已有的）不经任何
	// 增删改也能立即参与 ResolveRoute 的最长前缀匹配。
	if err := s.reload(ctx); err != nil {
		s.logger.Printf("routes initial load failed: %v", err)
	}
	if s.eventBus == nil {
		return
	}
	events, err := s.eventBus.Subscribe(ctx)
	if err != nil {
		s.logger.Printf("routes event subscribe failed: %v", err)
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt == EventRoutesChanged {
					if err := s.reload(ctx); err != nil {
						s.logger.Printf("routes reload failed: %v", err)
					}
				}
			}
		}
	}()
}

func (s *service) broadcast(ctx context.Context) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, EventRoutesChanged); err != nil {
		s.logger.Printf("routes event publish failed: %v", err)
	}
}

func (s *service) refreshCache(ctx context.Context) error {
	routes, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.setCachedRoutes(routes)
	if s.cache != nil {
		if err := s.cache.Set(ctx, routes); err != nil {
			s.logger.Printf("routes cache set failed: %v", err)
		}
	}
	return nil
}

func (s *service) reload(ctx context.Context) error {
	if s.cache != nil {
		if routes, err := s.cache.Get(ctx); err == nil {
			s.setCachedRoutes(routes)
			return nil
		}
	}
	routes, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.setCachedRoutes(routes)
	if s.cache != nil {
		if err := s.cache.Set(ctx, routes); err != nil {
			s.logger.Printf("routes cache set failed: %v", err)
		}
	}
	return nil
}

func (s *service) getCachedRoutes() ([]Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, false
	}
	return s.cached, true
}

func (s *service) setCachedRoutes(routes []Route) {
	prefixes := make([]string, 0, len(routes))
	for _, route := range routes {
		if route.Enabled {
			prefixes = append(prefixes, route.Prefix)
		}
	}
	sortPrefixesByLength(prefixes)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = cloneRoutes(routes)
	s.prefixes = prefixes
	s.loaded = true
}

// sortPrefixesByLength 让最长前缀优先，等长时按字典序保证确定性。
func sortPrefixesByLength(prefixes []string) {
	sort.SliceStable(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
}
