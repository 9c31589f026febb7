package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	sessionpkg "github.com/newsroom/core/internal/pkg/session"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newUser(t *testing.T, db *gorm.DB) *models.UserModel {
	t.Helper()
	u := &models.UserModel{Username: "reader", Password: "x"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": middleware.CurrentUserID(c)})
}

func TestAuthRejectsMissingAndRevokedTokens(t *testing.T) {
	db := testutil.NewDB(t)
	u := newUser(t, db)
	token, sess, err := sessionpkg.Issue(db, u.ID, "127.0.0.1", "test", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", middleware.Auth(db), whoami)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), u.ID)

	require.NoError(t, sessionpkg.Revoke(db, u.ID, sess.ID))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthAcceptsCookie(t *testing.T) {
	db := testutil.NewDB(t)
	u := newUser(t, db)
	token, _, err := sessionpkg.Issue(db, u.ID, "", "", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", middleware.Auth(db), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.TokenCookie, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
	db := testutil.NewDB(t)

	r := gin.New()
	r.GET("/me", middleware.OptionalAuth(db), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":""}`, w.Body.String())
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", middleware.NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", middleware.NormalizeToken("abc"))
	assert.Empty(t, middleware.NormalizeToken("   "))
}

type stubChecker struct {
	allowed bool
	err     error
}

func (s stubChecker) HasPermission(context.Context, string, string) (bool, error) {
	return s.allowed, s.err
}

func permissionRouter(checker middleware.PermissionChecker, userID string) *gin.Engine {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextKeyUserID, userID)
		}
		c.Next()
	}, middleware.RequirePermission(checker, models.PermPostAdd), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequirePermission(t *testing.T) {
	cases := []struct {
		name    string
		checker stubChecker
		userID  string
		want    int
	}{
		{"anonymous", stubChecker{allowed: true}, "", http.StatusUnauthorized},
		{"denied", stubChecker{}, "u1", http.StatusForbidden},
		{"allowed", stubChecker{allowed: true}, "u1", http.StatusNoContent},
		{"lookup error", stubChecker{err: errors.New("db down")}, "u1", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			permissionRouter(tc.checker, tc.userID).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRateLimitBlocksAnonymousBursts(t *testing.T) {
	rc, _ := testutil.NewRedis(t)

	r := gin.New()
	r.Use(middleware.RateLimit(rc.Raw(), zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := map[int]int{}
	for i := 0; i < 120; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[w.Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.Positive(t, codes[http.StatusOK])
}

func TestIdempotenceRejectsRepeat(t *testing.T) {
	rc, _ := testutil.NewRedis(t)

	calls := 0
	r := gin.New()
	r.Use(middleware.Idempotence(rc.Raw()))
	r.POST("/news/:id", func(c *gin.Context) {
		calls++
		c.Status(http.StatusSeeOther)
	})
	r.POST("/accounts/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"text":"hi"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusSeeOther, send("/news/1"))
	assert.Equal(t, http.StatusConflict, send("/news/1"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusSeeOther, send("/news/2"))

	assert.Equal(t, http.StatusOK, send("/accounts/login"))
	assert.Equal(t, http.StatusOK, send("/accounts/login"))
}

func TestIdempotenceReleasesKeyOnFailure(t *testing.T) {
	rc, _ := testutil.NewRedis(t)

	fail := true
	r := gin.New()
	r.Use(middleware.Idempotence(rc.Raw()))
	r.POST("/x", func(c *gin.Context) {
		if fail {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusCreated)
	})

	req := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a")))
		return w.Code
	}
	assert.Equal(t, http.StatusBadRequest, req())
	fail = false
	assert.Equal(t, http.StatusCreated, req())
}

func TestHTTPCacheServesAnonymousHitsAndPurgesOnWrite(t *testing.T) {
	rc, _ := testutil.NewRedis(t)

	hits := 0
	r := gin.New()
	r.Use(middleware.PurgeOnWrite(rc.Raw()))
	r.GET("/categories/", middleware.HTTPCache(rc.Raw(), time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/categories/", func(c *gin.Context) { c.Status(http.StatusCreated) })

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/categories/", nil))
		return w
	}

	first := get()
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))
	second := get()
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, hits)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/categories/", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	third := get()
	assert.Equal(t, "miss", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)
}
