package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/controllers"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

// Dependencies is everything the HTTP layer needs, built once in main.
type Dependencies struct {
	Users         *services.UserService
	Properties    *services.PropertyService
	Inquiries     *services.InquiryService
	Notifications *services.NotificationService
	Admin         *services.AdminService

	Cache     *cache.Cache
	Storage   media.Storage
	UploadDir string
	Hub       *realtime.Hub
	Queue     controllers.QueueInspector
	Tasks     controllers.TaskRunner

	// Optional; defaults apply when nil.
	AuthLimiter    *middlewares.RateLimiter
	InquiryLimiter *middlewares.RateLimiter
}

func SetupRouter(deps Dependencies) *gin.Engine {
	utils.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())

	if deps.UploadDir != "" {
		r.Static(media.PublicPath, deps.UploadDir)
	}

	r.GET("/health", func(c *gin.Context) {
		utils.RespondJSON(c, http.StatusOK, "OK", gin.H{"time": time.Now().UTC()})
	})

	authLimiter := deps.AuthLimiter
	if authLimiter == nil {
		authLimiter = middlewares.NewStrictRateLimiter()
	}
	inquiryLimiter := deps.InquiryLimiter
	if inquiryLimiter == nil {
		inquiryLimiter = middlewares.NewRateLimiter(10, time.Minute)
	}

	requireAuth := middlewares.AuthMiddleware(deps.Users)
	optionalAuth := middlewares.OptionalAuth(deps.Users)

	authCtrl := controllers.NewAuthController(deps.Users)
	userCtrl := controllers.NewUserController(deps.Users)
	propertyCtrl := controllers.NewPropertyController(deps.Properties)
	inquiryCtrl := controllers.NewInquiryController(deps.Inquiries)
	notifCtrl := controllers.NewNotificationController(deps.Notifications, deps.Hub)
	uploadCtrl := controllers.NewUploadController(deps.Storage)
	adminCtrl := controllers.NewAdminController(deps.Admin, deps.Queue, deps.Tasks)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authLimiter.RateLimit(), authCtrl.Register)
		auth.POST("/login", authLimiter.RateLimit(), authCtrl.Login)
		auth.GET("/me", requireAuth, authCtrl.Me)
		auth.PUT("/password", requireAuth, authCtrl.ChangePassword)
	}

	users := api.Group("/users", requireAuth, middlewares.AdminOnly())
	{
		users.GET("", userCtrl.ListUsers)
		users.POST("", userCtrl.CreateUser)
		users.GET("/:id", userCtrl.GetUser)
		users.PUT("/:id", userCtrl.UpdateUser)
		users.DELETE("/:id", userCtrl.DeleteUser)
	}

	properties := api.Group("/properties")
	{
		properties.GET("",
			optionalAuth,
			middlewares.Cache(deps.Cache, cache.NamespaceProperties, cache.TTLPropertyListing, middlewares.PropertyScope),
			propertyCtrl.ListProperties)
		properties.GET("/featured",
			middlewares.Cache(deps.Cache, cache.NamespaceProperties, cache.TTLFeatured, middlewares.PublicScope),
			propertyCtrl.Featured)
		properties.GET("/nearby",
			middlewares.Cache(deps.Cache, cache.NamespaceProperties, cache.TTLNearby, middlewares.PublicScope),
			propertyCtrl.Nearby)
		properties.GET("/stats", requireAuth, middlewares.AdminOnly(), propertyCtrl.Stats)
		properties.GET("/:id", optionalAuth, propertyCtrl.GetProperty)

		staff := properties.Group("", requireAuth, middlewares.StaffOnly())
		staff.POST("", propertyCtrl.CreateProperty)
		staff.PUT("/:id", propertyCtrl.UpdateProperty)
		staff.DELETE("/:id", propertyCtrl.DeleteProperty)
		staff.POST("/:id/images", propertyCtrl.UploadImages)
		staff.PATCH("/:id/images/:imageId/primary", propertyCtrl.SetPrimaryImage)
		staff.DELETE("/:id/images/:imageId", propertyCtrl.DeleteImage)
	}

	inquiries := api.Group("/inquiries")
	{
		inquiries.POST("", inquiryLimiter.RateLimit(), optionalAuth, inquiryCtrl.CreateInquiry)
		inquiries.GET("/my", requireAuth, inquiryCtrl.MyInquiries)
		inquiries.GET("/stats", requireAuth, middlewares.StaffOnly(), inquiryCtrl.Stats)
		inquiries.GET("/:id", requireAuth, inquiryCtrl.GetInquiry)

		staff := inquiries.Group("", requireAuth, middlewares.StaffOnly())
		staff.GET("",
			middlewares.Cache(deps.Cache, cache.NamespaceInquiries, cache.TTLInquiryListing, middlewares.InquiryScope),
			inquiryCtrl.ListInquiries)
		staff.PUT("/:id", inquiryCtrl.UpdateInquiry)
		staff.DELETE("/:id", inquiryCtrl.DeleteInquiry)
	}

	api.GET("/notifications/ws", middlewares.WebSocketAuthMiddleware(deps.Users), notifCtrl.Stream)
	notifications := api.Group("/notifications", requireAuth)
	{
		notifications.GET("", notifCtrl.ListNotifications)
		notifications.GET("/unread-count", notifCtrl.UnreadCount)
		notifications.PATCH("/read-all", notifCtrl.MarkAllRead)
		notifications.PATCH("/:id/read", notifCtrl.MarkRead)
		notifications.DELETE("/:id", notifCtrl.DeleteNotification)
		notifications.POST("", middlewares.AdminOnly(), notifCtrl.CreateNotification)
	}

	api.POST("/uploads", requireAuth, middlewares.StaffOnly(), uploadCtrl.Upload)

	admin := api.Group("/admin", requireAuth, middlewares.AdminOnly())
	{
		admin.GET("/dashboard", adminCtrl.GetDashboardStats)
		admin.GET("/queue", adminCtrl.QueueStats)
		admin.GET("/queue/failed", adminCtrl.FailedJobs)
		admin.POST("/queue/retry-failed", adminCtrl.RetryFailedJobs)
		admin.GET("/tasks", adminCtrl.ListTasks)
		admin.POST("/tasks/:name/run", adminCtrl.RunTask)
		admin.GET("/reports/properties.pdf", adminCtrl.GetPropertyReport)
	}

	r.NoRoute(func(c *gin.Context) {
		utils.RespondError(c, http.StatusNotFound, "route not found", nil)
	})
	return r
}
