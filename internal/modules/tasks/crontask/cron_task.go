// Package crontask exposes the maintenance scheduler and the background
// task queue to operators holding the task_manage permission.
package crontask

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	pkgcron "github.com/newsroom/core/internal/pkg/cron"
	"github.com/newsroom/core/internal/pkg/pagination"
	"github.com/newsroom/core/internal/pkg/response"
	"github.com/newsroom/core/internal/pkg/taskqueue"
)

const (
	msgJobNotFound  = "job not found"
	msgTaskNotFound = "task not found"
)

type Handler struct {
	sched   *pkgcron.Scheduler
	taskSvc *taskqueue.Service
	perms   middleware.PermissionChecker
}

func NewHandler(sched *pkgcron.Scheduler, taskSvc *taskqueue.Service, perms middleware.PermissionChecker) *Handler {
	return &Handler{sched: sched, taskSvc: taskSvc, perms: perms}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/cron-task", authMW, middleware.RequirePermission(h.perms, models.PermTaskManage))
	g.GET("", h.list)
	g.GET("/jobs/:name", h.get)
	g.POST("/jobs/:name/run", h.run)

	tasks := g.Group("/tasks")
	tasks.GET("", h.listTasks)
	tasks.GET("/:taskId", h.getTask)
	tasks.POST("/:taskId/cancel", h.cancelTask)
	tasks.POST("/:taskId/retry", h.retryTask)
	tasks.DELETE("/:taskId", h.deleteTask)
	tasks.DELETE("", h.deleteTasks)
}

// list GET /cron-task
func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

// get GET /cron-task/jobs/:name
func (h *Handler) get(c *gin.Context) {
	name := c.Param("name")
	for _, job := range h.sched.List() {
		if job.Name == name {
			response.OK(c, job)
			return
		}
	}
	response.NotFoundMsg(c, msgJobNotFound)
}

// run POST /cron-task/jobs/:name/run
func (h *Handler) run(c *gin.Context) {
	snap, err := h.sched.RunNow(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, msgJobNotFound)
		return
	}
	response.OK(c, snap)
}

// listTasks GET /cron-task/tasks?type=&status=
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)

	var typeFilter *string
	if v := c.Query("type"); v != "" {
		typeFilter = &v
	}
	var statusFilter *taskqueue.TaskStatus
	if v := c.Query("status"); v != "" {
		s := taskqueue.TaskStatus(v)
		statusFilter = &s
	}

	tasks, total, err := h.taskSvc.List(c.Request.Context(), q.Page, q.Size, typeFilter, statusFilter)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	totalPages := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPages,
		Size:        q.Size,
		HasNextPage: q.Page < totalPages,
	})
}

// getTask GET /cron-task/tasks/:taskId
func (h *Handler) getTask(c *gin.Context) {
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, msgTaskNotFound)
		return
	}
	response.OK(c, task)
}

// cancelTask POST /cron-task/tasks/:taskId/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.taskSvc.Cancel(c.Request.Context(), c.Param("taskId")); err != nil {
		taskError(c, err)
		return
	}
	response.NoContent(c)
}

// retryTask POST /cron-task/tasks/:taskId/retry
//
// Enqueues a fresh copy of the task; the original record is left as is.
func (h *Handler) retryTask(c *gin.Context) {
	ctx := c.Request.Context()
	task, err := h.taskSvc.GetByID(ctx, c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, msgTaskNotFound)
		return
	}
	if !task.Status.Finished() {
		response.BadRequest(c, "task is still queued")
		return
	}
	fresh, err := h.taskSvc.Enqueue(ctx, task.Type, task.Payload, "")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, fresh)
}

// deleteTask DELETE /cron-task/tasks/:taskId
func (h *Handler) deleteTask(c *gin.Context) {
	if err := h.taskSvc.DeleteByID(c.Request.Context(), c.Param("taskId")); err != nil {
		taskError(c, err)
		return
	}
	response.NoContent(c)
}

// deleteTasks DELETE /cron-task/tasks?before=<unix_ms>
func (h *Handler) deleteTasks(c *gin.Context) {
	var before int64
	if v := c.Query("before"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Invalid(c, map[string]string{"before": "must be a unix timestamp in milliseconds"})
			return
		}
		before = parsed
	}
	removed, err := h.taskSvc.DeleteCompleted(c.Request.Context(), before)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"removed": removed})
}

func taskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		response.NotFoundMsg(c, msgTaskNotFound)
	case errors.Is(err, taskqueue.ErrNotPending):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
