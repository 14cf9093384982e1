package api

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/socialgraph/config"
	_ "github.com/d60-Lab/socialgraph/docs"
	"github.com/d60-Lab/socialgraph/internal/api/handler"
	"github.com/d60-Lab/socialgraph/internal/api/middleware"
	"github.com/d60-Lab/socialgraph/pkg/response"
)

// SetupRouter 注册全部路由
func SetupRouter(cfg config.ServerConfig, serviceName string, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.AccessLog())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) { response.Success(c, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	social := v1.Group("/social")
	{
		social.POST("/:username/follow/:target", h.Follow)
		social.POST("/:username/unfollow/:target", h.Unfollow)
		social.POST("/:username/block/:target", h.Block)
		social.POST("/:username/unblock/:target", h.Unblock)
		social.POST("/:username/like/:postId", h.Like)
		social.POST("/:username/unlike/:postId", h.Unlike)

		social.GET("/users/:userId/followers", h.Followers)
		social.GET("/users/:userId/follows", h.Follows)
		social.GET("/users/:userId/blocked", h.Blocked)
		social.GET("/users/:userId/blocked-by", h.BlockedBy)
		social.GET("/users/:userId/liked-posts", h.LikedPosts)

		social.GET("/posts/:postId/like-users", h.LikeUsers)
		social.GET("/posts/:postId/author", h.PostAuthor)
	}
	v1.GET("/timelines/home/:username", h.HomeTimeline)
	v1.GET("/timelines/user/:username", h.UserTimeline)
	return r
}
