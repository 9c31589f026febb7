package comment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/modules/content/comment"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type notified struct {
	commentID string
	postID    string
	username  string
}

type recordingNotifier struct{ calls []notified }

func (n *recordingNotifier) OnCommentCreate(_ context.Context, c *models.CommentModel, p *models.PostModel, username string) {
	n.calls = append(n.calls, notified{commentID: c.ID, postID: p.ID, username: username})
}

type env struct {
	db       *gorm.DB
	svc      *comment.Service
	notifier *recordingNotifier
	router   *gin.Engine

	owner *models.UserModel
	post  *models.PostModel
	other *models.PostModel
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	roles := role.NewService(db)
	n := &recordingNotifier{}
	svc := comment.NewService(db, roles, n)

	r := gin.New()
	comment.NewHandler(svc).RegisterRoutes(&r.RouterGroup, middleware.Auth(db))

	owner := testutil.CreateUser(t, db, "owner", "owner@example.com", models.GroupAuthors)
	author, err := roles.EnsureAuthor(context.Background(), owner.ID)
	require.NoError(t, err)
	cat := models.CategoryModel{Name: "world"}
	require.NoError(t, db.Create(&cat).Error)
	post := models.PostModel{Title: "First", Text: "t", PublishedAt: time.Now(), CategoryID: cat.ID, AuthorID: author.ID}
	other := models.PostModel{Title: "Second", Text: "t", PublishedAt: time.Now(), CategoryID: cat.ID, AuthorID: author.ID}
	require.NoError(t, db.Create(&post).Error)
	require.NoError(t, db.Create(&other).Error)

	return &env{db: db, svc: svc, notifier: n, router: r, owner: owner, post: &post, other: &other}
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

func (e *env) user(t *testing.T, name string, groups ...string) (*models.UserModel, string) {
	t.Helper()
	u := testutil.CreateUser(t, e.db, name, name+"@example.com", groups...)
	return u, testutil.Token(t, e.db, u.ID)
}

func (e *env) comment(t *testing.T, userID, postID string, parentID *string) *models.CommentModel {
	t.Helper()
	c, err := e.svc.Create(context.Background(), postID, userID, &comment.CreateCommentDTO{Text: "hi", ParentID: parentID})
	require.NoError(t, err)
	return c
}

func TestCreateFromDetailForm(t *testing.T) {
	e := newEnv(t)
	reader, token := e.user(t, "reader")

	w := e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":"  great read  "}`, token)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/news/"+e.post.ID, w.Header().Get("Location"))

	var stored models.CommentModel
	require.NoError(t, e.db.First(&stored, "post_id = ?", e.post.ID).Error)
	assert.Equal(t, "great read", stored.Text)
	assert.Equal(t, reader.ID, stored.UserID)
	assert.False(t, stored.Approved)
	assert.Nil(t, stored.ParentID)

	require.Len(t, e.notifier.calls, 1)
	assert.Equal(t, notified{commentID: stored.ID, postID: e.post.ID, username: "reader"}, e.notifier.calls[0])
}

func TestCreateFormView(t *testing.T) {
	e := newEnv(t)
	_, token := e.user(t, "reader")

	w := e.do(http.MethodGet, "/news/"+e.post.ID+"/comments/create", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"form"`)

	form := url.Values{"text": {"via form"}, "parent_id": {""}}
	req := httptest.NewRequest(http.MethodPost, "/news/"+e.post.ID+"/comments/create", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	reader, token := e.user(t, "reader")

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":"x"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":""}`, token).Code)
	w := e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":"   \n  "}`, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "may not be blank")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/news/missing", `{"text":"x"}`, token).Code)

	foreign := e.comment(t, reader.ID, e.other.ID, nil)
	w = e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":"reply","parent_id":"`+foreign.ID+`"}`, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "another post")

	w = e.do(http.MethodPost, "/news/"+e.post.ID, `{"text":"reply","parent_id":"nope"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	require.NoError(t, e.db.Model(&models.CommentModel{}).Where("post_id = ?", e.post.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateLogsFailedAuthorLookup(t *testing.T) {
	e := newEnv(t)
	reader, _ := e.user(t, "reader")

	core, logs := observer.New(zap.WarnLevel)
	e.svc.SetLogger(zap.New(core))
	require.NoError(t, e.db.Callback().Query().Before("gorm:query").Register("test:users_down", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(errors.New("users table unavailable"))
		}
	}))

	c, err := e.svc.Create(context.Background(), e.post.ID, reader.ID, &comment.CreateCommentDTO{Text: "hello"})
	require.NoError(t, err)

	require.Len(t, e.notifier.calls, 1)
	assert.Equal(t, c.ID, e.notifier.calls[0].commentID)
	entries := logs.FilterMessage("comment author lookup failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, reader.ID, entries[0].ContextMap()["user_id"])
}

func TestReplyOnSamePost(t *testing.T) {
	e := newEnv(t)
	reader, _ := e.user(t, "reader")
	parent := e.comment(t, reader.ID, e.post.ID, nil)

	child := e.comment(t, reader.ID, e.post.ID, &parent.ID)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
}

func TestListMine(t *testing.T) {
	e := newEnv(t)
	reader, token := e.user(t, "reader")
	stranger, _ := e.user(t, "stranger")
	e.comment(t, reader.ID, e.post.ID, nil)
	e.comment(t, reader.ID, e.other.ID, nil)
	e.comment(t, stranger.ID, e.post.ID, nil)

	var body struct {
		Data []struct {
			PostID string `json:"post_id"`
			UserID string `json:"user_id"`
			Post   struct {
				Title string `json:"title"`
			} `json:"post"`
		} `json:"data"`
	}

	w := e.do(http.MethodGet, "/comments/", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	for _, c := range body.Data {
		assert.Equal(t, reader.ID, c.UserID)
	}

	w = e.do(http.MethodGet, "/comments/post/"+e.other.ID, "", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Second", body.Data[0].Post.Title)
}

func TestApproveKeepsComment(t *testing.T) {
	e := newEnv(t)
	reader, readerToken := e.user(t, "reader")
	c := e.comment(t, reader.ID, e.post.ID, nil)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/comments/"+c.ID+"/approve", "", readerToken).Code)

	ownerToken := testutil.Token(t, e.db, e.owner.ID)
	w := e.do(http.MethodPost, "/comments/"+c.ID+"/approve", "", ownerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "comment approved")

	var stored models.CommentModel
	require.NoError(t, e.db.First(&stored, "id = ?", c.ID).Error)
	assert.True(t, stored.Approved)

	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/comments/"+c.ID+"/approve", "", ownerToken).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/comments/missing/approve", "", ownerToken).Code)
}

func TestModeratorPermissionAllowsApprove(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.db.Create(&models.GroupModel{Name: "moderators", Permissions: models.StringArray{models.PermCommentModerate}}).Error)
	reader, _ := e.user(t, "reader")
	_, modToken := e.user(t, "mod", "moderators")
	c := e.comment(t, reader.ID, e.post.ID, nil)

	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/comments/"+c.ID+"/approve", "", modToken).Code)
}

func TestDeleteRemovesReplies(t *testing.T) {
	e := newEnv(t)
	reader, readerToken := e.user(t, "reader")
	_, strangerToken := e.user(t, "stranger")
	root := e.comment(t, reader.ID, e.post.ID, nil)
	child := e.comment(t, reader.ID, e.post.ID, &root.ID)
	e.comment(t, reader.ID, e.post.ID, &child.ID)
	keep := e.comment(t, reader.ID, e.post.ID, nil)

	w := e.do(http.MethodGet, "/comments/"+root.ID+"/delete", "", readerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confirm")

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/comments/"+root.ID+"/delete", "", strangerToken).Code)

	w = e.do(http.MethodDelete, "/comments/"+root.ID+"/delete", "", readerToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "comment deleted")

	var ids []string
	require.NoError(t, e.db.Model(&models.CommentModel{}).Pluck("id", &ids).Error)
	assert.Equal(t, []string{keep.ID}, ids)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/comments/"+root.ID+"/delete", "", readerToken).Code)
}

func TestPostAuthorMayDeleteAnyComment(t *testing.T) {
	e := newEnv(t)
	reader, _ := e.user(t, "reader")
	c := e.comment(t, reader.ID, e.post.ID, nil)

	ownerToken := testutil.Token(t, e.db, e.owner.ID)
	assert.Equal(t, http.StatusOK, e.do(http.MethodPost, "/comments/"+c.ID+"/delete", "", ownerToken).Code)
}
