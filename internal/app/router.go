package app

import (
	"examhub_backend/docs"
	"examhub_backend/internal/config"
	"examhub_backend/internal/middleware"
	"examhub_backend/internal/model"
	"examhub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 鉴权中间件从上下文取配置
	router.Use(func(ctx *gin.Context) {
		ctx.Set("config", cfg)
		ctx.Next()
	})

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 学生端（需要登录）
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware())
	{
		authGroup.GET("/auth/me", c.auth.Me)

		authGroup.GET("/packages", c.pkg.ListPublished)
		authGroup.GET("/packages/:id", c.pkg.StudentView)
		authGroup.GET("/packages/:id/leaderboard", c.leaderboard.Rank)

		authGroup.POST("/attempts", c.attempt.Start)
		authGroup.GET("/attempts", c.attempt.ListMine)
		authGroup.GET("/attempts/:id", c.attempt.Get)
		authGroup.PUT("/attempts/:id/answers", c.attempt.WriteAnswer)
		authGroup.POST("/attempts/:id/submit", c.attempt.Submit)
		authGroup.GET("/attempts/:id/result", c.attempt.Result)
		authGroup.POST("/attempts/:id/violations", c.attempt.RecordViolation)
		authGroup.GET("/attempts/:id/violations", c.attempt.ListViolations)
	}

	// 管理端（出卷、发布、额度）
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		admin.GET("/packages", c.pkg.ListAll)
		admin.POST("/packages", c.pkg.Create)
		admin.GET("/packages/:id", c.pkg.AdminView)
		admin.PUT("/packages/:id", c.pkg.Update)
		admin.DELETE("/packages/:id", c.pkg.Delete)
		admin.PUT("/packages/:id/publish", c.pkg.SetPublished)

		admin.POST("/sections", c.pkg.AddSection)
		admin.POST("/questions", c.pkg.AddQuestion)
		admin.POST("/questions/:id/image", c.pkg.UploadQuestionImage)

		admin.POST("/credits", c.auth.GrantCredits)
	}
}
