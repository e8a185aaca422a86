package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"dropmail/backend/internal/auth"
	"dropmail/backend/internal/config"
	"dropmail/backend/internal/health"
	"dropmail/backend/internal/middleware"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/service"
	"dropmail/backend/internal/websocket"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	addresses *service.AddressService
	emails    *service.EmailService
	send      *service.SendService
	tokens    *auth.Manager
	metrics   *monitoring.Metrics
	cfg       *config.Config
	logger    *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AddressService *service.AddressService
	EmailService   *service.EmailService
	SendService    *service.SendService
	TokenManager   *auth.Manager
	WebSocketHub   *websocket.Hub
	HealthChecker  *health.Checker
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	monitoringMW := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	router.Use(monitoringMW.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(monitoringMW.HTTPMetrics())

	// 全局请求体大小限制 10MB
	router.Use(middleware.BodySizeLimit(10 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		addresses: deps.AddressService,
		emails:    deps.EmailService,
		send:      deps.SendService,
		tokens:    deps.TokenManager,
		metrics:   deps.Metrics,
		cfg:       deps.Config,
		logger:    deps.Logger,
	}

	ownerAuth := middleware.NewOwnerAuth(deps.TokenManager, deps.Logger)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.HealthChecker.Snapshot())
	})
	router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Address Routes ==========
		addressRoutes := v1.Group("/addresses")
		{
			// 第一次创建时没有令牌,由处理器签发新所有者
			addressRoutes.POST("", ownerAuth.OptionalOwner(), handler.createAddress)
			addressRoutes.GET("", ownerAuth.RequireOwner(), handler.listAddresses)

			// 地址设置(续期/转发开关/删除)
			addressRoutes.POST("/:destination", ownerAuth.RequireOwner(), handler.updateAddress)

			// 邮件端点
			addressRoutes.GET("/:destination/messages", ownerAuth.RequireOwner(), handler.listMessages)
			addressRoutes.GET("/:destination/messages/:messageId", ownerAuth.RequireOwner(), handler.getMessage)
		}

		// ========== Send Routes ==========
		v1.POST("/send", ownerAuth.RequireOwner(), handler.sendMessage)

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
