package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/middleware"
	"github.com/campus-tic/projector-loan-api/internal/models"
	"github.com/campus-tic/projector-loan-api/internal/service"
)

// Handlers bundles every HTTP handler registered on the router. Nil
// entries are skipped so optional features stay unregistered.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Projectors    *ProjectorHandler
	Loans         *LoanHandler
	Comments      *CommentHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Reports       *ReportHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes mounts the API surface under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, auth *service.AuthService, h Handlers) {
	api := r.Group(prefix)

	if h.Metrics != nil {
		r.GET("/metrics", h.Metrics.Prometheus)
		r.GET("/health", h.Metrics.Health)
	}

	if h.Auth != nil {
		authGroup := api.Group("/auth")
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	if h.Users != nil {
		users := protected.Group("/users")
		users.GET("", adminOnly, h.Users.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.Get)
		users.PUT("/:id/profile", middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Users.CompleteProfile)
		users.PUT("/:id/theme", middleware.RBAC("SELF"), h.Users.UpdateTheme)
	}

	if h.Projectors != nil {
		projectors := protected.Group("/projectors")
		projectors.GET("", h.Projectors.List)
		projectors.GET("/available", adminOnly, h.Projectors.ListAvailable)
		projectors.GET("/:id", h.Projectors.Get)
		projectors.POST("", adminOnly, h.Projectors.Create)
		projectors.PUT("/:id", adminOnly, h.Projectors.Update)
		projectors.DELETE("/:id", adminOnly, h.Projectors.Delete)
	}

	if h.Loans != nil {
		loans := protected.Group("/loans")
		loans.GET("", h.Loans.List)
		loans.POST("", h.Loans.Create)
		loans.POST("/scan", adminOnly, h.Loans.Scan)
		loans.GET("/:id", h.Loans.Get)
		loans.PUT("/:id", h.Loans.Update)
		loans.DELETE("/:id", h.Loans.Withdraw)
		loans.POST("/:id/approve", adminOnly, h.Loans.Approve)
		loans.POST("/:id/reject", adminOnly, h.Loans.Reject)
		loans.POST("/:id/finalize", adminOnly, h.Loans.Finalize)
		loans.GET("/:id/token", h.Loans.Token)
		if h.Comments != nil {
			loans.POST("/:id/comments", h.Comments.Create)
		}
	}

	if h.Comments != nil {
		comments := protected.Group("/comments")
		comments.GET("", adminOnly, h.Comments.List)
		comments.POST("/:id/resolve", adminOnly, h.Comments.Resolve)
	}

	if h.Notifications != nil {
		notifications := protected.Group("/notifications")
		notifications.GET("", h.Notifications.List)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
		notifications.DELETE("/:id", h.Notifications.Delete)
	}

	if h.Dashboard != nil {
		protected.GET("/dashboard", adminOnly, h.Dashboard.Summary)
		protected.POST("/dashboard/refresh", adminOnly, h.Dashboard.Refresh)
	}

	if h.Reports != nil {
		reports := protected.Group("/reports")
		reports.POST("", adminOnly, h.Reports.Create)
		reports.GET("/:id", h.Reports.Status)
		// The download URL is signed; the token is the only credential.
		api.GET("/reports/download/:token", h.Reports.Download)
	}
}
