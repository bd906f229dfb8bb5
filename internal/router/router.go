package router

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/handler"
	"github.com/noah-isme/sma-progress-api/internal/middleware"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/config"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler    *handler.StudentHandler
	EnrollmentHandler *handler.EnrollmentHandler
	ThemeHandler      *handler.ThemeHandler
	GradeHandler      *handler.GradeHandler
	SnapshotHandler   *handler.SnapshotHandler
	CommandHandler    *handler.CommandHandler
	MetricsHandler    *handler.MetricsHandler
	Tokens            middleware.TokenValidator
}

// Register wires the HTTP routes into the gin engine.
func Register(r *gin.Engine, cfg *config.Config, deps Dependencies) {
	if deps.MetricsHandler != nil {
		r.GET("/health", deps.MetricsHandler.Health)
		r.GET("/ready", deps.MetricsHandler.Ready)
		r.GET("/metrics", deps.MetricsHandler.Prometheus)
	}

	api := r.Group(cfg.APIPrefix)
	if deps.Tokens == nil {
		// Nothing is reachable without a validator.
		return
	}

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	secured := api.Group("", middleware.JWT(deps.Tokens), staff)

	students := secured.Group("/students/:id")
	if deps.StudentHandler != nil {
		students.GET("/progress", deps.StudentHandler.Progress)
		students.PUT("/intensification", deps.StudentHandler.ToggleIntensification)
		students.PUT("/status", deps.StudentHandler.SetStatus)
	}
	if deps.EnrollmentHandler != nil {
		students.PUT("/enrollments", deps.EnrollmentHandler.Reconcile)
	}
	if deps.ThemeHandler != nil {
		students.PUT("/themes", deps.ThemeHandler.Save)
		students.DELETE("/themes", deps.ThemeHandler.Remove)
	}
	if deps.GradeHandler != nil {
		students.GET("/average", deps.GradeHandler.Average)
		students.GET("/report", deps.GradeHandler.Report)
	}

	if deps.SnapshotHandler != nil {
		secured.GET("/snapshot", deps.SnapshotHandler.Info)
		secured.POST("/snapshot/reload", admins, deps.SnapshotHandler.Reload)
	}

	if deps.CommandHandler != nil {
		commands := secured.Group("/commands")
		commands.GET("", deps.CommandHandler.List)
		commands.GET("/:id", deps.CommandHandler.Get)
		commands.POST("/:id/retry", deps.CommandHandler.Retry)
	}

	if deps.MetricsHandler != nil {
		secured.GET("/metrics/summary", admins, deps.MetricsHandler.Summary)
	}
}
