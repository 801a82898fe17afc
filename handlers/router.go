package handlers

import (
	"net/http"
	"strconv"
	"time"

	"chatgate/auth"
	"chatgate/billing"
	"chatgate/database"
	"chatgate/dispatch"
	"chatgate/middlewares"
	"chatgate/models"
	"chatgate/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Deps はルーターが各ハンドラーへ渡す依存関係です。
type Deps struct {
	Config     models.Config
	Users      *database.UserStore
	Chats      *database.ChatStore
	Redis      *redis.Client
	Tokens     *auth.TokenIssuer
	OTPs       *auth.OTPStore
	Dispatcher *dispatch.Dispatcher
	Writer     *dispatch.Writer
	Billing    *billing.Service
	Logger     *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := d.Logger

	router := gin.New()
	//リクエストロガーとトレースを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))
	router.Use(otelgin.Middleware(d.Config.Telemetry.ServiceName))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	corsConfig := cors.Config{
		AllowOrigins:     d.Config.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	requireAuth := middlewares.AuthMiddleware(d.Tokens, d.Users, logger)

	router.GET("/healthz", Healthz(d.Chats, d.Redis, d.Writer, logger))

	authGroup := router.Group("/auth")
	authGroup.POST("/signup", Signup(d.Users, logger))
	authGroup.POST("/send-otp", SendOtp(d.OTPs, logger))
	authGroup.POST("/verify-otp", VerifyOtp(d.Users, d.OTPs, d.Tokens, logger))
	authGroup.POST("/login", Login(d.Users, d.Tokens, logger))
	authGroup.POST("/forgot-password", ForgotPassword(d.Users, d.OTPs, logger))
	authGroup.POST("/change-password", requireAuth, ChangePassword(d.Users, logger))
	authGroup.POST("/reset-password-with-otp", ResetPasswordWithOtp(d.Users, d.OTPs, logger))

	router.GET("/user/me", requireAuth, Me)

	rooms := router.Group("/chatroom", requireAuth)
	rooms.POST("", CreateChatroom(d.Chats, logger))
	rooms.GET("", ListChatrooms(d.Chats, logger))
	rooms.GET("/:id", GetChatroom(d.Chats, logger))
	rooms.POST("/:id/join", JoinChatroom(d.Chats, logger))
	rooms.GET("/:id/messages", ListMessages(d.Chats, logger))
	rooms.POST("/:id/message", SendMessage(d.Dispatcher, logger))

	router.POST("/subscribe/pro", requireAuth, SubscribePro(d.Billing, logger))
	router.GET("/subscription/status", requireAuth, SubscriptionStatus)
	router.POST("/webhook/stripe", StripeWebhook(d.Billing, logger))

	return router
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// pathID はURLパラメータを正のIDとして読みます。不正な値なら400を返してfalse
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		abortWithError(c, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentUser はAuthMiddleware通過後のユーザーを返します。
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "Not authenticated")
	}
	return user, ok
}
