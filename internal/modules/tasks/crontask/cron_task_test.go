package crontask_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/modules/tasks/crontask"
	pkgcron "github.com/newsroom/core/internal/pkg/cron"
	"github.com/newsroom/core/internal/pkg/taskqueue"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	router *gin.Engine
	tasks  *taskqueue.Service
	runs   int
	admin  string
	reader string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	rc, _ := testutil.NewRedis(t)

	e := &env{tasks: taskqueue.NewService(rc)}
	sched := pkgcron.New(zap.NewNop())
	require.NoError(t, sched.Register(pkgcron.Job{
		Name:     "purge_sessions",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			e.runs++
			return nil
		},
	}))

	r := gin.New()
	crontask.NewHandler(sched, e.tasks, role.NewService(db)).RegisterRoutes(&r.RouterGroup, middleware.Auth(db))
	e.router = r

	admin := testutil.CreateUser(t, db, "admin", "", models.GroupEditors)
	reader := testutil.CreateUser(t, db, "reader", "", models.GroupCommon)
	e.admin = testutil.Token(t, db, admin.ID)
	e.reader = testutil.Token(t, db, reader.ID)
	return e
}

func (e *env) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRequiresTaskManage(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/cron-task", "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/cron-task", e.reader).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/cron-task", e.admin).Code)
}

func TestJobsListAndRun(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/cron-task", e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "purge_sessions")

	w = e.do(http.MethodPost, "/cron-task/jobs/purge_sessions/run", e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"succeeded"`)
	assert.Equal(t, 1, e.runs)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/cron-task/jobs/purge_sessions", e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/cron-task/jobs/missing", e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/cron-task/jobs/missing/run", e.admin).Code)
}

func TestTaskLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task, err := e.tasks.Enqueue(ctx, "notify.broadcast", map[string]string{"subject": "hi"}, "")
	require.NoError(t, err)

	w := e.do(http.MethodGet, "/cron-task/tasks?type=notify.broadcast", e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, task.ID, page.Data[0].ID)
	assert.EqualValues(t, 1, page.Pagination.Total)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/cron-task/tasks/"+task.ID, e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/cron-task/tasks/missing", e.admin).Code)

	// pending tasks cannot be retried
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/cron-task/tasks/"+task.ID+"/retry", e.admin).Code)

	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/cron-task/tasks/"+task.ID+"/cancel", e.admin).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/cron-task/tasks/"+task.ID+"/cancel", e.admin).Code)

	w = e.do(http.MethodPost, "/cron-task/tasks/"+task.ID+"/retry", e.admin)
	require.Equal(t, http.StatusCreated, w.Code)
	var fresh taskqueue.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fresh))
	assert.NotEqual(t, task.ID, fresh.ID)
	assert.Equal(t, taskqueue.TaskPending, fresh.Status)
	assert.JSONEq(t, `{"subject":"hi"}`, string(fresh.Payload))

	require.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/cron-task/tasks/"+fresh.ID, e.admin).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/cron-task/tasks/"+fresh.ID, e.admin).Code)
}

func TestBulkDeleteFinished(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	done, err := e.tasks.Enqueue(ctx, "notify.broadcast", map[string]int{"n": 1}, "")
	require.NoError(t, err)
	require.NoError(t, e.tasks.UpdateStatus(ctx, done.ID, taskqueue.TaskCompleted, nil, ""))
	pending, err := e.tasks.Enqueue(ctx, "notify.broadcast", map[string]int{"n": 2}, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodDelete, "/cron-task/tasks?before=soon", e.admin).Code)

	// nothing was created before the epoch
	w := e.do(http.MethodDelete, "/cron-task/tasks?before=1", e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":0`)

	before := strconv.FormatInt(time.Now().Add(time.Minute).UnixMilli(), 10)
	w = e.do(http.MethodDelete, "/cron-task/tasks?before="+before, e.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":1`)

	got, err := e.tasks.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = e.tasks.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
