package admin

import (
	"context"

	"github.com/prehisle/ustats/pkg/routes"
)

// Service 定义管理端对路由表的操作接口。
type Service interface {
	ListRoutes(ctx context.Context) ([]routes.Route, error)
	GetRoute(ctx context.Context, prefix string) (routes.Route, error)
	CreateOrUpdateRoute(ctx context.Context, route routes.Route) error
	DeleteRoute(ctx context.Context, prefix string) error
}

type service struct {
	routes routes.Service
}

// NewService 创建管理端默认实现。
func NewService(routeService routes.Service) Service {
	return &service{routes: routeService}
}

func (s *service) ListRoutes(ctx context.Context) ([]routes.Route, error) {
	return s.routes.ListRoutes(ctx)
}

func (s *service) GetRoute(ctx context.Context, prefix string) (routes.Route, error) {
	return s.routes.GetRoute(ctx, prefix)
}

func (s *service) CreateOrUpdateRoute(ctx context.Context, route routes.Route) error {
	return s.routes.UpsertRoute(ctx, route)
}

func (s *service) DeleteRoute(ctx context.Context, prefix string) error {
	return s.routes.DeleteRoute(ctx, prefix)
}
