package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/oakpoint/schoolhub/internal/auth"
	"github.com/oakpoint/schoolhub/internal/database/models"
	"github.com/oakpoint/schoolhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func TestRefreshTokenStore_IssueAndRotate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	raw, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	// Only the hash is stored
	var count int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("token_hash = ?", raw).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("token_hash = ?", sha256Hex(raw)).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	newRaw, rotatedUser, err := store.Rotate(ctx, raw)
	require.NoError(t, err)
	assert.NotEmpty(t, newRaw)
	assert.NotEqual(t, raw, newRaw)
	assert.Equal(t, user.ID, rotatedUser.ID)

	// Exactly one live link remains after rotation
	var live int64
	require.NoError(t, db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Count(&live).Error)
	assert.EqualValues(t, 1, live)
}

func TestRefreshTokenStore_RotateConsumedTokenFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	raw, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)

	_, _, err = store.Rotate(ctx, raw)
	require.NoError(t, err)

	// Replaying the consumed link never succeeds twice
	_, _, err = store.Rotate(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRefreshTokenStore_RotateUnknownToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)

	_, _, err := store.Rotate(context.Background(), "never-issued")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRefreshTokenStore_RotateExpiredToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)

	raw := "expired-raw-token"
	token := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: sha256Hex(raw),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&token).Error)

	_, _, err := store.Rotate(context.Background(), raw)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestRefreshTokenStore_RotateReflectsCurrentUserState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	raw, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)

	// Role change between login and refresh
	require.NoError(t, db.Model(user).Update("role", models.RoleReadonly).Error)

	_, rotatedUser, err := store.Rotate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, models.RoleReadonly, rotatedUser.Role)
}

func TestRefreshTokenStore_RotateDeniedForInactiveUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	raw, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, _, err = store.Rotate(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInactiveUser)

	// Denial rolls back: the presented link was not consumed
	var token models.RefreshToken
	require.NoError(t, db.Where("token_hash = ?", sha256Hex(raw)).First(&token).Error)
	assert.Nil(t, token.RevokedAt)
}

func TestRefreshTokenStore_RotateDeniedForInactiveOrganization(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	raw, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(org).Update("is_active", false).Error)

	_, _, err = store.Rotate(ctx, raw)
	assert.ErrorIs(t, err, auth.ErrInactiveOrganization)
}

func TestRefreshTokenStore_RevokeAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	other := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	// Multi-device: several live links per user are fine
	raw1, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)
	raw2, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)
	otherRaw, err := store.Issue(ctx, other.ID)
	require.NoError(t, err)

	require.NoError(t, store.RevokeAll(ctx, user.ID))

	_, _, err = store.Rotate(ctx, raw1)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, _, err = store.Rotate(ctx, raw2)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Other users' sessions are untouched
	_, _, err = store.Rotate(ctx, otherRaw)
	assert.NoError(t, err)
}

func TestRefreshTokenStore_PurgeExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	org := testutil.CreateTestOrg(t, db)
	user := testutil.CreateTestUser(t, db, org)
	store := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	ctx := context.Background()

	stale := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: sha256Hex("stale"),
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(&stale).Error)

	live, err := store.Issue(ctx, user.ID)
	require.NoError(t, err)

	purged, err := store.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, _, err = store.Rotate(ctx, live)
	assert.NoError(t, err)
}
