package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/modules/auth/user"
	"github.com/newsroom/core/internal/modules/content/category"
	"github.com/newsroom/core/internal/modules/content/comment"
	"github.com/newsroom/core/internal/modules/content/post"
	"github.com/newsroom/core/internal/modules/notify"
	"github.com/newsroom/core/internal/modules/syndication/feed"
	"github.com/newsroom/core/internal/modules/tasks/crontask"
	"github.com/newsroom/core/internal/pkg/mail"
	"github.com/newsroom/core/internal/pkg/response"
)

func (a *App) registerRoutes(transport mail.Transport) {
	r := a.router
	db := a.db
	rdb := a.rc.Raw()
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	// OptionalAuth runs first: RateLimit and HTTPCache skip signed-in users.
	r.Use(middleware.OptionalAuth(db))
	r.Use(middleware.RateLimit(rdb, a.logger))
	r.Use(middleware.Idempotence(rdb))
	r.Use(middleware.PurgeOnWrite(rdb))

	appInfo := gin.H{
		"name":    a.cfg.Site.Name,
		"version": "1.0.0",
		"site":    a.cfg.Site.BaseURL,
	}
	r.GET("/", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	r.GET("/health", a.health)

	roles := role.NewService(db)
	notifySvc := notify.NewService(db, transport, a.tasks, notify.Config{
		SiteURL:            a.cfg.Site.BaseURL,
		SiteName:           a.cfg.Site.Name,
		OverrideRecipients: a.cfg.Notify.OverrideRecipients,
		PostCreate:         a.cfg.Notify.PostCreate,
	}, a.logger)
	notifySvc.Register(a.worker)

	root := &r.RouterGroup
	user.NewHandler(user.NewService(db, roles), roles).RegisterRoutes(root, authMW)
	role.NewHandler(roles).RegisterRoutes(root, authMW)

	post.NewHandler(post.NewService(db, roles, notifySvc), roles).RegisterRoutes(root, authMW)
	comments := comment.NewService(db, roles, notifySvc)
	comments.SetLogger(a.logger)
	comment.NewHandler(comments).RegisterRoutes(root, authMW)

	categories := category.NewHandler(category.NewService(db), roles)
	categories.SetListCache(middleware.HTTPCache(rdb, listCacheTTL))
	categories.RegisterRoutes(root, authMW)

	feed.NewHandler(db, feed.Site{Title: a.cfg.Site.Name, BaseURL: a.cfg.Site.BaseURL}).RegisterRoutes(root)
	crontask.NewHandler(a.sched, a.tasks, roles).RegisterRoutes(root, authMW)
}

// health GET /health
func (a *App) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{"database": "ok", "redis": "ok"}

	if sqlDB, err := a.db.DB(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := a.rc.Raw().Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": checks,
		"uptime": humanizeDuration(time.Since(processStart)),
		"jobs":   a.sched.List(),
	})
}
