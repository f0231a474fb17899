package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/config"
	"vidtube/api/internal/models"
	"vidtube/api/internal/repository"
	"vidtube/api/internal/security"
)

// fakeUserStore is an in-memory CredentialStore with the same sentinel
// errors as the postgres repository.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if (username != "" && user.Username == username) || (email != "" && user.Email == email) {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) SetRefreshToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error {
	return f.mutate(id, func(u *models.User) {
		if token != nil {
			v := *token
			u.RefreshToken = &v
		} else {
			u.RefreshToken = nil
		}
		if expiresAt != nil {
			v := *expiresAt
			u.RefreshTokenExpiresAt = &v
		} else {
			u.RefreshTokenExpiresAt = nil
		}
	})
}

func (f *fakeUserStore) SetPassword(ctx context.Context, id string, passwordHash []byte) error {
	return f.mutate(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (f *fakeUserStore) UpdateProfile(ctx context.Context, id string, fullName, email string) error {
	f.mu.Lock()
	for otherID, other := range f.users {
		if otherID != id && other.Email == email {
			f.mu.Unlock()
			return repository.ErrDuplicateUser
		}
	}
	f.mu.Unlock()
	return f.mutate(id, func(u *models.User) {
		u.FullName = fullName
		u.Email = email
	})
}

func (f *fakeUserStore) SetAvatarURL(ctx context.Context, id string, url string) error {
	return f.mutate(id, func(u *models.User) { u.AvatarURL = url })
}

func (f *fakeUserStore) SetCoverImageURL(ctx context.Context, id string, url string) error {
	return f.mutate(id, func(u *models.User) { u.CoverImageURL = url })
}

func (f *fakeUserStore) mutate(id string, fn func(*models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now()
	f.users[id] = user
	return nil
}

type fakeLimiter struct {
	allowed bool
	resets  int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) { return f.allowed, nil }
func (f *fakeLimiter) Reset(ctx context.Context, key string) error {
	f.resets++
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			AccessTokenSecret:  "access-secret",
			RefreshTokenSecret: "refresh-secret",
			AccessTokenTTL:     time.Minute,
			RefreshTokenTTL:    time.Hour,
		},
	}
}

func newTestService(store *fakeUserStore, limiter LoginLimiter) *AuthService {
	return NewAuthService(store, limiter, testConfig(), zerolog.Nop())
}

func registerAlice(t *testing.T, svc *AuthService) models.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{
		Username:  "alice",
		Email:     "a@x.com",
		FullName:  "Alice Example",
		Password:  "secret1",
		AvatarURL: "https://cdn.example.com/avatars/alice.png",
	})
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)

	user := registerAlice(t, svc)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.Nil(t, user.RefreshToken, "registration must not start a session")

	// The stored hash verifies but the plaintext is gone.
	ok, err := security.VerifyPassword("secret1", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterNormalizesIdentifiers(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)

	user, err := svc.Register(context.Background(), RegisterInput{
		Username:  "  MixedCase  ",
		Email:     "Upper@Example.COM",
		FullName:  " Spaced Name ",
		Password:  "pw123456",
		AvatarURL: "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "mixedcase", user.Username)
	assert.Equal(t, "upper@example.com", user.Email)
	assert.Equal(t, "Spaced Name", user.FullName)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)

	cases := []RegisterInput{
		{Email: "a@x.com", FullName: "A", Password: "pw", AvatarURL: "u"},      // no username
		{Username: "a", FullName: "A", Password: "pw", AvatarURL: "u"},        // no email
		{Username: "a", Email: "a@x.com", Password: "pw", AvatarURL: "u"},     // no full name
		{Username: "a", Email: "a@x.com", FullName: "A", AvatarURL: "u"},      // no password
		{Username: "a", Email: "a@x.com", FullName: "A", Password: "   ", AvatarURL: "u"}, // blank password
		{Username: "a", Email: "a@x.com", FullName: "A", Password: "pw"},      // no avatar
	}

	for i, input := range cases {
		_, err := svc.Register(context.Background(), input)
		assert.ErrorIs(t, err, apperr.Validation(""), "case %d", i)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	registerAlice(t, svc)

	before := len(store.users)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:  "alice",
		Email:     "different@x.com",
		FullName:  "Other Alice",
		Password:  "pw123456",
		AvatarURL: "https://cdn.example.com/b.png",
	})
	assert.ErrorIs(t, err, apperr.DuplicateUser(""))

	_, err = svc.Register(context.Background(), RegisterInput{
		Username:  "alice2",
		Email:     "a@x.com",
		FullName:  "Other Alice",
		Password:  "pw123456",
		AvatarURL: "https://cdn.example.com/b.png",
	})
	assert.ErrorIs(t, err, apperr.DuplicateUser(""))

	assert.Equal(t, before, len(store.users), "no partial writes on duplicate")
}

func TestValidateRegistration(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	registerAlice(t, svc)

	input := RegisterInput{Username: " ALICE ", Email: "other@x.com", FullName: "X", Password: "pw"}
	err := svc.ValidateRegistration(context.Background(), &input)
	assert.ErrorIs(t, err, apperr.DuplicateUser(""))
	assert.Equal(t, "alice", input.Username, "identifiers are normalized in place")

	input = RegisterInput{Username: "new", FullName: "X", Password: "pw"}
	err = svc.ValidateRegistration(context.Background(), &input)
	assert.ErrorIs(t, err, apperr.Validation(""))

	input = RegisterInput{Username: "new", Email: "n@x.com", FullName: "X", Password: "pw"}
	assert.NoError(t, svc.ValidateRegistration(context.Background(), &input))
}

func TestLogin(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	// Unknown identifier and wrong password must be indistinguishable.
	_, _, err := svc.Login(context.Background(), LoginInput{Username: "nobody", Password: "whatever"})
	assert.ErrorIs(t, err, apperr.InvalidCredentials())

	_, _, err = svc.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, apperr.InvalidCredentials())

	user, pair, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	// Both tokens decode to alice's id under their respective secrets.
	accessClaims, err := security.ParseAccessToken(pair.AccessToken, "access-secret")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, accessClaims.Subject)

	refreshClaims, err := security.ParseRefreshToken(pair.RefreshToken, "refresh-secret")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, refreshClaims.Subject)

	// The slot now holds exactly the issued refresh token.
	stored, err := store.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, pair.RefreshToken, *stored.RefreshToken)
}

func TestLoginByEmail(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)
	registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginRequiresIdentifier(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)

	_, _, err := svc.Login(context.Background(), LoginInput{Password: "secret1"})
	assert.ErrorIs(t, err, apperr.Validation(""))
}

func TestLoginRateLimited(t *testing.T) {
	store := newFakeUserStore()
	limiter := &fakeLimiter{allowed: false}
	svc := newTestService(store, limiter)
	registerAlice(t, svc)

	_, _, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.RateLimited())
}

func TestLoginResetsLimiter(t *testing.T) {
	store := newFakeUserStore()
	limiter := &fakeLimiter{allowed: true}
	svc := newTestService(store, limiter)
	registerAlice(t, svc)

	_, _, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.resets)
}

func TestRefreshRotation(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	registerAlice(t, svc)

	_, first, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The login token was rotated away; presenting it again is reuse.
	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, apperr.TokenReuse())

	// The fresh token still works.
	third, err := svc.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.AccessToken)
}

func TestRefreshMissingToken(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)

	_, err := svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, apperr.Unauthorized(""))
}

func TestRefreshGarbageToken(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)

	_, err := svc.Refresh(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, apperr.Unauthorized(""))
}

func TestRefreshUnknownSubject(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)

	tok, err := security.IssueRefreshToken("refresh-secret", "ghost-user", time.Hour)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), tok)
	assert.ErrorIs(t, err, apperr.Unauthorized(""))
}

func TestConcurrentLoginLastWriterWins(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	registerAlice(t, svc)

	// Two logins race on the slot; the later write wins and the earlier
	// session's refresh token is dead on arrival. Accepted behavior, not
	// a bug.
	_, first, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	_, second, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, apperr.TokenReuse())

	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	_, pair, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), alice.ID))

	stored, err := store.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RefreshToken, "slot must be cleared")

	// Idempotent: logging out again is a no-op success.
	require.NoError(t, svc.Logout(context.Background(), alice.ID))

	// With an empty slot, any previously issued token is unauthorized
	// rather than a reuse signal.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.Unauthorized(""))
}

func TestLogoutUnknownUser(t *testing.T) {
	svc := newTestService(newFakeUserStore(), nil)
	assert.NoError(t, svc.Logout(context.Background(), "never-existed"))
}

func TestChangePassword(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	err := svc.ChangePassword(context.Background(), alice.ID, "wrong-old", "newpass1")
	assert.ErrorIs(t, err, apperr.InvalidCredentials())

	_, pair, err := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), alice.ID, "secret1", "newpass1"))

	// Old password is gone, new one works.
	_, _, err = svc.Login(context.Background(), LoginInput{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.InvalidCredentials())

	// The existing session survives the password change: the slot was
	// deliberately left alone.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

func TestUpdateAccount(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	updated, err := svc.UpdateAccount(context.Background(), alice.ID, "Alice Renamed", "new@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", updated.FullName)
	assert.Equal(t, "new@x.com", updated.Email)

	_, err = svc.UpdateAccount(context.Background(), alice.ID, "", "new@x.com")
	assert.ErrorIs(t, err, apperr.Validation(""))
}

func TestUpdateAccountDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:  "bob",
		Email:     "b@x.com",
		FullName:  "Bob",
		Password:  "pw123456",
		AvatarURL: "https://cdn.example.com/b.png",
	})
	require.NoError(t, err)

	_, err = svc.UpdateAccount(context.Background(), alice.ID, "Alice", "b@x.com")
	assert.ErrorIs(t, err, apperr.DuplicateUser(""))
}

func TestUpdateAvatarAndCover(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestService(store, nil)
	alice := registerAlice(t, svc)

	updated, err := svc.UpdateAvatar(context.Background(), alice.ID, "https://cdn.example.com/new-avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/new-avatar.png", updated.AvatarURL)

	updated, err = svc.UpdateCoverImage(context.Background(), alice.ID, "https://cdn.example.com/cover.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cover.png", updated.CoverImageURL)
}
