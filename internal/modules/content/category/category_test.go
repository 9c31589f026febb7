package category_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/modules/content/category"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type env struct {
	db     *gorm.DB
	svc    *category.Service
	router *gin.Engine
}

func newEnv(t *testing.T, cache gin.HandlerFunc) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	svc := category.NewService(db)
	h := category.NewHandler(svc, role.NewService(db))
	if cache != nil {
		h.SetListCache(cache)
	}

	r := gin.New()
	r.Use(middleware.OptionalAuth(db))
	h.RegisterRoutes(&r.RouterGroup, middleware.Auth(db))
	return &env{db: db, svc: svc, router: r}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) editorToken(t *testing.T) string {
	t.Helper()
	u := testutil.CreateUser(t, e.db, "editor", "", models.GroupEditors)
	return testutil.Token(t, e.db, u.ID)
}

func TestCreateAndListCategories(t *testing.T) {
	e := newEnv(t, nil)
	token := e.editorToken(t)

	w := e.do(http.MethodPost, "/categories/", `{"name":"world"}`, token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/categories/", `{"name":" world "}`, token).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/categories/", `{}`, token).Code)
	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/categories/", `{"name":"art"}`, token).Code)

	w = e.do(http.MethodGet, "/categories/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "art", body.Data[0].Name)
	assert.Equal(t, "world", body.Data[1].Name)
}

func TestCreateRequiresPermission(t *testing.T) {
	e := newEnv(t, nil)
	u := testutil.CreateUser(t, e.db, "reader", "", models.GroupCommon, models.GroupAuthors)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/categories/", `{"name":"x"}`, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/categories/", `{"name":"x"}`, testutil.Token(t, e.db, u.ID)).Code)
}

func TestShowListsPostsNewestFirst(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	cat, err := e.svc.Create(ctx, &category.CreateCategoryDTO{Name: "world"})
	require.NoError(t, err)
	other, err := e.svc.Create(ctx, &category.CreateCategoryDTO{Name: "sport"})
	require.NoError(t, err)

	writer := testutil.CreateUser(t, e.db, "writer", "", models.GroupAuthors)
	author, err := role.NewService(e.db).EnsureAuthor(ctx, writer.ID)
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, catID := range []string{cat.ID, cat.ID, other.ID} {
		p := models.PostModel{Title: fmt.Sprintf("p%d", i), Text: "t", PublishedAt: base.Add(time.Duration(i) * time.Hour), CategoryID: catID, AuthorID: author.ID}
		require.NoError(t, e.db.Create(&p).Error)
	}

	w := e.do(http.MethodGet, "/categories/"+cat.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Category struct {
			Name string `json:"name"`
		} `json:"category"`
		Data []struct {
			Title  string `json:"title"`
			Author string `json:"author"`
		} `json:"data"`
		IsNotSubscriber bool `json:"is_not_subscriber"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "world", body.Category.Name)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "p1", body.Data[0].Title)
	assert.Equal(t, "p0", body.Data[1].Title)
	assert.Equal(t, "writer", body.Data[0].Author)
	assert.True(t, body.IsNotSubscriber)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/categories/missing", "", "").Code)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	cat, err := e.svc.Create(ctx, &category.CreateCategoryDTO{Name: "world"})
	require.NoError(t, err)
	u := testutil.CreateUser(t, e.db, "reader", "reader@example.com")
	token := testutil.Token(t, e.db, u.ID)

	subscribers := func() int64 {
		var n int64
		require.NoError(t, e.db.Table("category_subscribers").Where("category_id = ?", cat.ID).Count(&n).Error)
		return n
	}

	for i := 0; i < 2; i++ {
		w := e.do(http.MethodGet, "/categories/"+cat.ID+"/subscribe", "", token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "subscribed to category")
	}
	assert.EqualValues(t, 1, subscribers())

	w := e.do(http.MethodGet, "/categories/"+cat.ID, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_not_subscriber":false`)

	for i := 0; i < 2; i++ {
		w := e.do(http.MethodGet, "/categories/"+cat.ID+"/unsubscribe", "", token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "unsubscribed from category")
	}
	assert.Zero(t, subscribers())

	var users int64
	require.NoError(t, e.db.Model(&models.UserModel{}).Count(&users).Error)
	assert.EqualValues(t, 1, users)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/categories/missing/subscribe", "", token).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/categories/"+cat.ID+"/subscribe", "", "").Code)
}

func TestListCacheServesAnonymousReads(t *testing.T) {
	rc, _ := testutil.NewRedis(t)
	e := newEnv(t, middleware.HTTPCache(rc.Raw(), time.Minute))
	ctx := context.Background()
	_, err := e.svc.Create(ctx, &category.CreateCategoryDTO{Name: "world"})
	require.NoError(t, err)

	first := e.do(http.MethodGet, "/categories/", "", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))

	_, err = e.svc.Create(ctx, &category.CreateCategoryDTO{Name: "art"})
	require.NoError(t, err)

	second := e.do(http.MethodGet, "/categories/", "", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	_, err = middleware.PurgeHTTPCache(ctx, rc.Raw())
	require.NoError(t, err)
	third := e.do(http.MethodGet, "/categories/", "", "")
	assert.Contains(t, third.Body.String(), "art")
}
