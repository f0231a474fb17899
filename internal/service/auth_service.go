package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidtube/api/internal/apperr"
	"vidtube/api/internal/config"
	"vidtube/api/internal/ids"
	"vidtube/api/internal/models"
	"vidtube/api/internal/repository"
	"vidtube/api/internal/security"
)

// UserStore is the durable credential store. All writes are partial updates;
// none of them re-run registration validation.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	SetRefreshToken(ctx context.Context, id string, token *string, expiresAt *time.Time) error
	SetPassword(ctx context.Context, id string, passwordHash []byte) error
	UpdateProfile(ctx context.Context, id string, fullName, email string) error
	SetAvatarURL(ctx context.Context, id string, url string) error
	SetCoverImageURL(ctx context.Context, id string, url string) error
}

// LoginLimiter throttles credential guessing. Implementations may fail; the
// caller treats limiter errors as fail-open so a cache outage cannot lock
// everyone out.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService owns the session lifecycle: registration, login, refresh
// rotation with reuse detection, logout and password change. It holds no
// in-memory session state; the user row's refresh-token slot is the only
// record of a live session.
type AuthService struct {
	users   UserStore
	limiter LoginLimiter
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewAuthService(users UserStore, limiter LoginLimiter, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:   users,
		limiter: limiter,
		cfg:     cfg,
		log:     log,
	}
}

type RegisterInput struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// ValidateRegistration normalizes the text fields in place and checks them,
// including the uniqueness pre-check. Callers that perform side effects before
// Register, such as uploading the avatar, run this first so a doomed request
// aborts before anything is stored.
func (s *AuthService) ValidateRegistration(ctx context.Context, input *RegisterInput) error {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FullName = strings.TrimSpace(input.FullName)

	if input.Username == "" || input.Email == "" || input.FullName == "" || strings.TrimSpace(input.Password) == "" {
		return apperr.Validation("username, email, fullName and password are required")
	}

	if _, err := s.users.FindByUsernameOrEmail(ctx, input.Username, input.Email); err == nil {
		return apperr.DuplicateUser("user with this username or email already exists")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return apperr.Internal("lookup existing user", err)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	if err := s.ValidateRegistration(ctx, &input); err != nil {
		return models.User{}, err
	}
	if input.AvatarURL == "" {
		return models.User{}, apperr.Validation("avatar is required")
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, apperr.Internal("hash password", err)
	}

	user := models.User{
		ID:            ids.New(),
		Username:      input.Username,
		Email:         input.Email,
		FullName:      input.FullName,
		PasswordHash:  passwordHash,
		AvatarURL:     input.AvatarURL,
		CoverImageURL: input.CoverImageURL,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The unique index is the authority; the pre-check above only
		// exists for the friendlier early error.
		if errors.Is(err, repository.ErrDuplicateUser) {
			return models.User{}, apperr.DuplicateUser("user with this username or email already exists")
		}
		return models.User{}, apperr.Internal("create user", err)
	}

	// Read back the record so a silent write failure surfaces as an
	// inconsistency instead of a phantom success.
	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return models.User{}, apperr.Internal("read back created user", err)
	}

	return created, nil
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

// Login accepts either identifier; at least one must be present. Unknown
// identifier and wrong password produce the same error so responses do not
// reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.User, TokenPair, error) {
	input.Username = strings.ToLower(strings.TrimSpace(input.Username))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if input.Username == "" && input.Email == "" {
		return models.User{}, TokenPair{}, apperr.Validation("username or email is required")
	}
	if input.Password == "" {
		return models.User{}, TokenPair{}, apperr.Validation("password is required")
	}

	limiterKey := input.Username
	if limiterKey == "" {
		limiterKey = input.Email
	}
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, limiterKey)
		if err != nil {
			s.log.Warn().Err(err).Msg("login limiter unavailable, failing open")
		} else if !allowed {
			return models.User{}, TokenPair{}, apperr.RateLimited()
		}
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, TokenPair{}, apperr.InvalidCredentials()
		}
		return models.User{}, TokenPair{}, apperr.Internal("find user", err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return models.User{}, TokenPair{}, apperr.Internal("verify password", err)
	}
	if !ok {
		return models.User{}, TokenPair{}, apperr.InvalidCredentials()
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, limiterKey); err != nil {
			s.log.Warn().Err(err).Msg("login limiter reset failed")
		}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}

	return user, pair, nil
}

// Refresh rotates the session. The incoming token must verify against the
// refresh secret and match the stored slot byte for byte: a signed, unexpired
// token that no longer matches was already rotated away, which is treated as
// evidence of reuse.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, apperr.Unauthorized("refresh token required")
	}

	claims, err := security.ParseRefreshToken(refreshToken, s.cfg.Security.RefreshTokenSecret)
	if err != nil {
		return TokenPair{}, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, apperr.Unauthorized("invalid refresh token")
		}
		return TokenPair{}, apperr.Internal("load user", err)
	}

	if user.RefreshToken == nil || *user.RefreshToken == "" {
		// Empty slot: the session was logged out or pruned.
		return TokenPair{}, apperr.Unauthorized("no active session")
	}
	if *user.RefreshToken != refreshToken {
		s.log.Warn().Str("user_id", user.ID).Msg("stale refresh token presented")
		return TokenPair{}, apperr.TokenReuse()
	}

	return s.issueTokenPair(ctx, user)
}

// Logout clears the refresh-token slot. Logging out twice, or logging out a
// user whose record is already gone, is a no-op success.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshToken(ctx, userID, nil, nil); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return apperr.Internal("clear refresh token", err)
	}
	return nil
}

// ChangePassword verifies the old password before persisting the new hash.
// The refresh-token slot is left untouched, so the current session survives
// the change; see the design notes for the trade-off.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apperr.Validation("new password is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.Unauthorized("user not found")
		}
		return apperr.Internal("load user", err)
	}

	ok, err := security.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		return apperr.Internal("verify password", err)
	}
	if !ok {
		return apperr.InvalidCredentials()
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	if err := s.users.SetPassword(ctx, userID, passwordHash); err != nil {
		return apperr.Internal("update password", err)
	}
	return nil
}

func (s *AuthService) UpdateAccount(ctx context.Context, userID, fullName, email string) (models.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return models.User{}, apperr.Validation("fullName and email are required")
	}

	if err := s.users.UpdateProfile(ctx, userID, fullName, email); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUser):
			return models.User{}, apperr.DuplicateUser("email already taken")
		case errors.Is(err, repository.ErrUserNotFound):
			return models.User{}, apperr.Unauthorized("user not found")
		}
		return models.User{}, apperr.Internal("update profile", err)
	}

	return s.reload(ctx, userID)
}

func (s *AuthService) UpdateAvatar(ctx context.Context, userID, url string) (models.User, error) {
	if url == "" {
		return models.User{}, apperr.Validation("avatar is required")
	}
	if err := s.users.SetAvatarURL(ctx, userID, url); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.Unauthorized("user not found")
		}
		return models.User{}, apperr.Internal("update avatar", err)
	}
	return s.reload(ctx, userID)
}

func (s *AuthService) UpdateCoverImage(ctx context.Context, userID, url string) (models.User, error) {
	if url == "" {
		return models.User{}, apperr.Validation("cover image is required")
	}
	if err := s.users.SetCoverImageURL(ctx, userID, url); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.Unauthorized("user not found")
		}
		return models.User{}, apperr.Internal("update cover image", err)
	}
	return s.reload(ctx, userID)
}

// issueTokenPair signs both tokens and overwrites the refresh-token slot,
// invalidating whatever session held it before. Last writer wins: two
// concurrent logins race on the slot and only the later pair stays usable.
func (s *AuthService) issueTokenPair(ctx context.Context, user models.User) (TokenPair, error) {
	sec := s.cfg.Security

	accessToken, err := security.IssueAccessToken(sec.AccessTokenSecret, user, sec.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, apperr.Internal("issue access token", err)
	}

	refreshToken, err := security.IssueRefreshToken(sec.RefreshTokenSecret, user.ID, sec.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, apperr.Internal("issue refresh token", err)
	}

	expiresAt := time.Now().Add(sec.RefreshTokenTTL)
	if err := s.users.SetRefreshToken(ctx, user.ID, &refreshToken, &expiresAt); err != nil {
		return TokenPair{}, apperr.Internal("store refresh token", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *AuthService) reload(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, apperr.Internal("read back user", err)
	}
	return user, nil
}
