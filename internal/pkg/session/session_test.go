package session_test

import (
	"testing"
	"time"

	"github.com/newsroom/core/internal/models"
	jwtpkg "github.com/newsroom/core/internal/pkg/jwt"
	"github.com/newsroom/core/internal/pkg/session"
	"github.com/newsroom/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIssueRevokeLifecycle(t *testing.T) {
	db := testutil.NewDB(t)

	token, s, err := session.Issue(db, "user-1", " 10.0.0.1 ", "curl", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", s.IP)

	claims, err := jwtpkg.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)

	active, err := session.IsActive(db, "user-1", s.ID)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = session.IsActive(db, "someone-else", s.ID)
	require.NoError(t, err)
	assert.False(t, active)

	active, err = session.IsActive(db, "user-1", "")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, session.Revoke(db, "user-1", s.ID))
	active, err = session.IsActive(db, "user-1", s.ID)
	require.NoError(t, err)
	assert.False(t, active)

	assert.ErrorIs(t, session.Revoke(db, "user-1", s.ID), gorm.ErrRecordNotFound)
}

func TestPurgeExpired(t *testing.T) {
	db := testutil.NewDB(t)

	_, live, err := session.Issue(db, "u", "", "", time.Hour)
	require.NoError(t, err)
	_, expired, err := session.Issue(db, "u", "", "", time.Hour)
	require.NoError(t, err)
	require.NoError(t, db.Model(expired).Update("expires_at", time.Now().Add(-time.Hour)).Error)

	n, err := session.PurgeExpired(db, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left []models.UserSession
	require.NoError(t, db.Unscoped().Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, live.ID, left[0].ID)
}
