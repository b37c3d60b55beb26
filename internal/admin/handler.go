package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prehisle/ustats/pkg/routes"
)

// Handler 暴露管理端的 REST API。
type Handler struct {
	service Service
	auth    *Authenticator
	record  func(action string, success bool)
}

// HandlerOption 配置 Handler 的可选依赖。
type HandlerOption func(*Handler)

// WithActionRecorder 注入管理操作计数回调。
func WithActionRecorder(record func(action string, success bool)) HandlerOption {
	return func(h *Handler) {
		h.record = record
	}
}

// NewHandler 创建管理端处理器。
func NewHandler(service Service, auth *Authenticator, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, auth: auth}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) observe(action string, success bool) {
	if h.record != nil {
		h.record(action, success)
	}
}

// RegisterProtectedRoutes 将受保护的管理路由挂载到给定分组。
// 路由前缀本身带斜杠，增删查通过 query 参数传递。
func RegisterProtectedRoutes(group *gin.RouterGroup, handler *Handler) {
	group.GET("/routes", handler.listRoutes)
	group.GET("/route", handler.getRoute)
	group.POST("/routes", handler.createOrUpdateRoute)
	group.PUT("/routes", handler.createOrUpdateRoute)
	group.DELETE("/routes", handler.deleteRoute)
}

// RegisterPublicRoutes 注册无需认证的公共路由。
func RegisterPublicRoutes(group *gin.RouterGroup, handler *Handler) {
	group.GET("/healthz", handler.healthz)
	group.POST("/login", handler.login)
}

func (h *Handler) listRoutes(c *gin.Context) {
	result, err := h.service.ListRoutes(c.Request.Context())
	h.observe("list", err == nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getRoute(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix is required"})
		return
	}
	route, err := h.service.GetRoute(c.Request.Context(), prefix)
	h.observe("get", err == nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, routes.ErrRouteNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, route)
}

func (h *Handler) createOrUpdateRoute(c *gin.Context) {
	var route routes.Route
	if err := c.ShouldBindJSON(&route); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.CreateOrUpdateRoute(c.Request.Context(), route); err != nil {
		h.observe("upsert", false)
		status := http.StatusInternalServerError
		if errors.Is(err, routes.ErrInvalidRoute) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.observe("upsert", true)
	c.JSON(http.StatusOK, route)
}

func (h *Handler) deleteRoute(c *gin.Context) {
	prefix := c.Query("prefix")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prefix is required"})
		return
	}
	err := h.service.DeleteRoute(c.Request.Context(), prefix)
	h.observe("delete", err == nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, routes.ErrRouteNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	if h.auth == nil || !h.auth.CredentialsConfigured() {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "login disabled"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.IssueToken(req.Username, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrTokenNotConfigured) {
			status = http.StatusNotImplemented
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer", "expires_in": int(h.auth.ttl.Seconds())})
}
