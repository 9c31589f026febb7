package role_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeToAuthorIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := role.NewService(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "ann", "ann@example.com", models.GroupCommon)

	before, err := svc.HasPermission(ctx, u.ID, models.PermPostAdd)
	require.NoError(t, err)
	assert.False(t, before)

	first, err := svc.UpgradeToAuthor(ctx, u.ID)
	require.NoError(t, err)
	second, err := svc.UpgradeToAuthor(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var authors int64
	require.NoError(t, db.Model(&models.AuthorModel{}).Where("user_id = ?", u.ID).Count(&authors).Error)
	assert.EqualValues(t, 1, authors)

	var memberships int64
	require.NoError(t, db.Table("user_groups").Where("user_id = ?", u.ID).Count(&memberships).Error)
	assert.EqualValues(t, 2, memberships)

	after, err := svc.HasPermission(ctx, u.ID, models.PermPostAdd)
	require.NoError(t, err)
	assert.True(t, after)
}

func TestUpgradeUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := role.NewService(db).UpgradeToAuthor(context.Background(), "missing")
	assert.ErrorIs(t, err, role.ErrUserNotFound)
}

func TestAddAndRemoveGroup(t *testing.T) {
	db := testutil.NewDB(t)
	svc := role.NewService(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "bob", "")

	require.NoError(t, svc.AddToGroup(ctx, u.ID, models.GroupAuthors))
	require.NoError(t, svc.AddToGroup(ctx, u.ID, models.GroupAuthors))
	member, err := svc.IsMember(ctx, u.ID, models.GroupAuthors)
	require.NoError(t, err)
	assert.True(t, member)

	require.NoError(t, svc.RemoveFromGroup(ctx, u.ID, models.GroupAuthors))
	require.NoError(t, svc.RemoveFromGroup(ctx, u.ID, models.GroupAuthors))
	member, err = svc.IsMember(ctx, u.ID, models.GroupAuthors)
	require.NoError(t, err)
	assert.False(t, member)

	assert.ErrorIs(t, svc.AddToGroup(ctx, u.ID, "editors"), role.ErrGroupNotFound)
}

func TestPermissionsUnion(t *testing.T) {
	db := testutil.NewDB(t)
	svc := role.NewService(db)
	ctx := context.Background()

	mods := models.GroupModel{Name: "moderators", Permissions: models.StringArray{models.PermCommentModerate, models.PermPostEdit}}
	require.NoError(t, db.Create(&mods).Error)
	u := testutil.CreateUser(t, db, "cid", "", models.GroupAuthors, "moderators")

	perms, err := svc.Permissions(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		models.PermPostAdd, models.PermPostEdit, models.PermPostDelete, models.PermCommentModerate,
	}, perms)

	ok, err := svc.HasPermission(ctx, "", models.PermPostAdd)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureAuthorAndAuthorFor(t *testing.T) {
	db := testutil.NewDB(t)
	svc := role.NewService(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "dee", "")

	none, err := svc.AuthorFor(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	created, err := svc.EnsureAuthor(ctx, u.ID)
	require.NoError(t, err)
	found, err := svc.AuthorFor(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	member, err := svc.IsMember(ctx, u.ID, models.GroupAuthors)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestEnsureDefaultGroupsRestoresMissing(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Unscoped().Where("name = ?", models.GroupAuthors).Delete(&models.GroupModel{}).Error)

	require.NoError(t, role.NewService(db).EnsureDefaultGroups(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.GroupModel{}).Where("name = ?", models.GroupAuthors).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpgradeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "eve", "", models.GroupCommon)

	r := gin.New()
	role.NewHandler(role.NewService(db)).RegisterRoutes(&r.RouterGroup, middleware.Auth(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/upgrade/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/upgrade/", nil)
	req.Header.Set("Authorization", "Bearer "+testutil.Token(t, db, u.ID))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/news/", w.Header().Get("Location"))
}
