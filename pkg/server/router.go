// Package server 提供 HTTP Server 功能
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KodaTao/AgentPilot/pkg/observability"
	"github.com/KodaTao/AgentPilot/pkg/pilot"
	"github.com/KodaTao/AgentPilot/pkg/scheduler"
	"github.com/KodaTao/AgentPilot/pkg/task"
)

// Server HTTP 服务器
type Server struct {
	app    *pilot.App
	engine *gin.Engine
	config *ServerConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string
	Port int
	Mode string // debug, release, test
}

// NewServer 创建 HTTP 服务器
func NewServer(app *pilot.App, config *ServerConfig) *Server {
	// 设置 Gin 模式
	switch config.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()

	// 添加中间件
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware())
	engine.Use(CORSMiddleware())

	server := &Server{
		app:    app,
		engine: engine,
		config: config,
	}

	// 注册路由
	server.setupRoutes()

	return server
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 健康检查
	s.engine.GET("/health", s.healthCheck)

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		// 任务管理
		v1.POST("/tasks", s.createTask)
		v1.GET("/tasks", s.listTasks)
		v1.GET("/tasks/:id", s.getTask)
		v1.DELETE("/tasks/:id", s.deleteTask)

		// 任务控制
		v1.POST("/tasks/:id/pause", s.pauseTask)
		v1.POST("/tasks/:id/resume", s.resumeTask)
		v1.POST("/tasks/:id/run", s.runTaskNow)

		// 执行事件与收件箱
		v1.GET("/tasks/:id/events", s.listTaskEvents)
		v1.GET("/tasks/:id/messages", s.listTaskMessages)
		v1.POST("/tasks/:id/messages", s.sendTaskMessage)
	}
}

// Run 启动服务器
func (s *Server) Run() error {
	addr := s.config.Host + ":" + itoa(s.config.Port)
	observability.Info("Starting HTTP server", "address", addr)
	return s.engine.Run(addr)
}

// GetEngine 获取 Gin 引擎（用于测试）
func (s *Server) GetEngine() *gin.Engine {
	return s.engine
}

// 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// 创建任务
func (s *Server) createTask(c *gin.Context) {
	var req scheduler.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	t, err := s.app.GetService().Create(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, t)
}

// 列出任务，支持 ?status= 和 ?limit=/?offset= 过滤
func (s *Server) listTasks(c *gin.Context) {
	var status *task.TaskStatus
	if v := c.Query("status"); v != "" {
		st := task.TaskStatus(v)
		status = &st
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	tasks, err := s.app.GetService().List(status, limit, offset)
	if err != nil {
		observability.Error("Failed to list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tasks",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// 获取单个任务
func (s *Server) getTask(c *gin.Context) {
	t, err := s.app.GetService().Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// 删除任务
func (s *Server) deleteTask(c *gin.Context) {
	if err := s.app.GetService().Delete(c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted",
	})
}

// 暂停任务
func (s *Server) pauseTask(c *gin.Context) {
	t, err := s.app.GetService().Pause(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// 恢复任务
func (s *Server) resumeTask(c *gin.Context) {
	t, err := s.app.GetService().Resume(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// 手动触发任务
func (s *Server) runTaskNow(c *gin.Context) {
	if err := s.app.GetService().RunNow(c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Task scheduled for immediate run",
	})
}

// 列出任务的执行事件
func (s *Server) listTaskEvents(c *gin.Context) {
	events, err := s.app.GetService().Events(c.Param("id"), intQuery(c, "limit", 50))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// 列出任务收件箱消息
func (s *Server) listTaskMessages(c *gin.Context) {
	msgs, err := s.app.GetService().Messages(c.Param("id"), intQuery(c, "limit", 50))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// 向任务投递消息
func (s *Server) sendTaskMessage(c *gin.Context) {
	var req struct {
		Source  string `json:"source"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	msg, err := s.app.GetService().SendMessage(c.Param("id"), req.Source, req.Message)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// renderError 按错误类型映射 HTTP 状态码
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrTaskNotRunnable),
		errors.Is(err, task.ErrInvalidTransition),
		errors.Is(err, task.ErrInvalidSchedule):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		observability.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		observability.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// itoa 简单的整数转字符串
func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// intQuery 解析整数查询参数
func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return fallback
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
