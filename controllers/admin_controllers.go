package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/scheduler"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

const defaultFailedJobsLimit = 50

// QueueInspector is the read and retry surface of the email queue.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
	Failed(ctx context.Context, limit int) ([]queue.EmailJob, error)
	RetryFailed(ctx context.Context) (int, error)
}

// TaskRunner exposes the maintenance scheduler.
type TaskRunner interface {
	Tasks() []scheduler.TaskInfo
	RunNow(ctx context.Context, name string) error
}

type AdminController struct {
	admin *services.AdminService
	queue QueueInspector
	tasks TaskRunner
}

func NewAdminController(admin *services.AdminService, q QueueInspector, tasks TaskRunner) *AdminController {
	return &AdminController{admin: admin, queue: q, tasks: tasks}
}

// GetDashboardStats aggregates listing, inquiry, user and traffic figures.
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	dashboard, err := ac.admin.Dashboard(c.Request.Context(), middlewares.CurrentActor(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dashboard statistics", dashboard)
}

func (ac *AdminController) QueueStats(c *gin.Context) {
	stats, err := ac.queue.Stats(c.Request.Context())
	if err != nil {
		utils.HandleError(c, utils.Upstream("job queue", err))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Email queue statistics", stats)
}

func (ac *AdminController) FailedJobs(c *gin.Context) {
	limit := defaultFailedJobsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.HandleError(c, utils.ValidationError("validation failed", utils.FieldError{Field: "limit", Message: "must be a positive integer"}))
			return
		}
		limit = n
	}
	jobs, err := ac.queue.Failed(c.Request.Context(), limit)
	if err != nil {
		utils.HandleError(c, utils.Upstream("job queue", err))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Failed email jobs", jobs)
}

func (ac *AdminController) RetryFailedJobs(c *gin.Context) {
	n, err := ac.queue.RetryFailed(c.Request.Context())
	if err != nil {
		utils.HandleError(c, utils.Upstream("job queue", err))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Failed jobs requeued", gin.H{"requeued": n})
}

func (ac *AdminController) ListTasks(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Scheduled tasks", ac.tasks.Tasks())
}

// RunTask triggers a maintenance task immediately and waits for it.
func (ac *AdminController) RunTask(c *gin.Context) {
	name := c.Param("name")
	err := ac.tasks.RunNow(c.Request.Context(), name)
	if errors.Is(err, scheduler.ErrUnknownTask) {
		utils.HandleError(c, utils.NotFound("task"))
		return
	}
	if err != nil {
		utils.HandleError(c, utils.Internal(err))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Task completed", gin.H{"task": name})
}

// GetPropertyReport renders every listing (optionally ?status=) as a PDF download.
func (ac *AdminController) GetPropertyReport(c *gin.Context) {
	props, err := ac.admin.ReportRows(c.Request.Context(), c.Query("status"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	now := time.Now()
	pdf, err := services.RenderPropertyReport(props, now)
	if err != nil {
		utils.HandleError(c, utils.Internal(err))
		return
	}
	filename := fmt.Sprintf("properties-%s.pdf", now.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
