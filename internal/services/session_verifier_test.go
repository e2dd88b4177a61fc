package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database/memstore"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
	"uptask/pkg/auth"
)

func TestSessionVerifier(t *testing.T) {
	jwtAuth, err := auth.NewLocalJWTAuth("test-secret", time.Hour)
	require.NoError(t, err)
	store := memstore.New()
	ctx := context.Background()

	user := &models.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "argon2id$a$b", Token: "tok", Confirmed: true}
	require.NoError(t, store.Users().Create(ctx, user))
	token, err := jwtAuth.GenerateToken(user.ID.Hex())
	require.NoError(t, err)

	verifier := NewSessionVerifier(jwtAuth, store.Users(), time.Minute)

	got, err := verifier.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Empty(t, got.PasswordHash)
	assert.Empty(t, got.Token)

	t.Run("cached copies are independent", func(t *testing.T) {
		got.Name = "mutated"
		again, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Ana", again.Name)
	})

	t.Run("forget reloads the user", func(t *testing.T) {
		stored, err := store.Users().FindByID(ctx, user.ID)
		require.NoError(t, err)
		stored.Name = "Ana Maria"
		require.NoError(t, store.Users().Update(ctx, stored))

		cached, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Ana", cached.Name)

		verifier.Forget(user.ID.Hex())
		fresh, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "Ana Maria", fresh.Name)
	})

	t.Run("rejections are unauthorized", func(t *testing.T) {
		other, _ := auth.NewLocalJWTAuth("other-secret", time.Hour)
		foreign, _ := other.GenerateToken(user.ID.Hex())
		ghost, _ := jwtAuth.GenerateToken(primitive.NewObjectID().Hex())
		notAnID, _ := jwtAuth.GenerateToken("user-1")

		for name, credential := range map[string]string{
			"empty":        "",
			"garbage":      "abc.def.ghi",
			"foreign key":  foreign,
			"deleted user": ghost,
			"malformed id": notAnID,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := verifier.Verify(ctx, credential)
				requireKind(t, err, apierrors.KindUnauthorized)
			})
		}
	})
}

func TestSessionVerifier_NoCache(t *testing.T) {
	jwtAuth, _ := auth.NewLocalJWTAuth("test-secret", time.Hour)
	store := memstore.New()
	ctx := context.Background()

	user := &models.User{Name: "Ana", Email: "ana@example.com", Confirmed: true}
	require.NoError(t, store.Users().Create(ctx, user))
	token, _ := jwtAuth.GenerateToken(user.ID.Hex())

	verifier := NewSessionVerifier(jwtAuth, store.Users(), 0)
	_, err := verifier.Verify(ctx, token)
	require.NoError(t, err)
	verifier.Forget(user.ID.Hex())
}

// vanishingUsers reports every user as gone once removed is set
type vanishingUsers struct {
	UserRepository
	removed bool
}

func (u *vanishingUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if u.removed {
		return nil, ErrNotFound
	}
	return u.UserRepository.FindByID(ctx, id)
}

func TestSessionVerifier_ForgetRejectsRemovedUser(t *testing.T) {
	jwtAuth, _ := auth.NewLocalJWTAuth("test-secret", time.Hour)
	store := memstore.New()
	ctx := context.Background()

	user := &models.User{Name: "Ana", Email: "ana@example.com", Confirmed: true}
	require.NoError(t, store.Users().Create(ctx, user))
	token, _ := jwtAuth.GenerateToken(user.ID.Hex())

	users := &vanishingUsers{UserRepository: store.Users()}
	verifier := NewSessionVerifier(jwtAuth, users, time.Minute)
	_, err := verifier.Verify(ctx, token)
	require.NoError(t, err)

	users.removed = true
	_, err = verifier.Verify(ctx, token)
	require.NoError(t, err, "served from cache until forgotten")

	verifier.Forget(user.ID.Hex())
	_, err = verifier.Verify(ctx, token)
	requireKind(t, err, apierrors.KindUnauthorized)

	uncached := NewSessionVerifier(jwtAuth, users, 0)
	_, err = uncached.Verify(ctx, token)
	requireKind(t, err, apierrors.KindUnauthorized)
}
