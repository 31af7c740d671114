package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"feeledger/internal/auth"
	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/storage"
)

const msgBadCredentials = "Invalid email or password"

// LoginResult is a token pair plus the user it was issued to.
type LoginResult struct {
	auth.TokenPair
	User core.User `json:"user"`
}

// AuthService registers users, issues tokens and tracks logouts.
type AuthService struct {
	repo    *storage.Repository
	issuer  *auth.Issuer
	revoked *cache.ExpiryCache[bool]
	now     Clock
}

// NewAuthService keeps revoked token ids in revoked until each token's own
// expiry.
func NewAuthService(repo *storage.Repository, issuer *auth.Issuer, revoked *cache.ExpiryCache[bool]) *AuthService {
	return &AuthService{repo: repo, issuer: issuer, revoked: revoked, now: utcNow}
}

// Register creates a user. While no users exist anyone may register, which
// is how the first admin is created; after that the caller must be an admin.
func (s *AuthService) Register(ctx context.Context, caller *auth.Claims, in core.RegisterInput) (core.User, error) {
	in = in.Normalize()

	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return core.User{}, core.Internal(err)
	}
	if err := authorizeRegister(caller, n); err != nil {
		return core.User{}, err
	}
	bootstrap := n == 0

	// Two first registrations can both see an empty table above. Recount
	// under the users lock so only one of them becomes the bootstrap user.
	var guard func(q *storage.Queries) error
	if bootstrap {
		guard = func(q *storage.Queries) error {
			if err := q.LockUsers(ctx); err != nil {
				return err
			}
			n, err := q.CountUsers(ctx)
			if err != nil {
				return err
			}
			return authorizeRegister(caller, n)
		}
	}

	created, err := s.createUser(ctx, in, guard)
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User registered", "component", "auth",
		"user_id", created.ID, "role", created.Role, "bootstrap", bootstrap)
	return created, nil
}

// Provision creates a user without an authenticated caller. It backs the
// operator CLI, which already has direct database access.
func (s *AuthService) Provision(ctx context.Context, in core.RegisterInput) (core.User, error) {
	created, err := s.createUser(ctx, in.Normalize(), nil)
	if err != nil {
		return core.User{}, err
	}
	slog.InfoContext(ctx, "User provisioned", "component", "auth",
		"user_id", created.ID, "role", created.Role)
	return created, nil
}

// SetActive enables or disables the account with the given email. Tokens
// already issued stay valid until they expire; refresh stops working at once.
func (s *AuthService) SetActive(ctx context.Context, email string, active bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.repo.SetUserActive(ctx, email, active, s.now()); err != nil {
		return translate(err, "User not found", "")
	}
	return nil
}

func authorizeRegister(caller *auth.Claims, users int64) error {
	switch {
	case users == 0:
		return nil
	case caller == nil:
		return core.Unauthorizedf("Authentication required")
	case caller.Role != core.RoleAdmin:
		return core.Forbiddenf("Only admins can register users")
	}
	return nil
}

// createUser validates, hashes and inserts in one transaction. guard, when
// set, runs first inside that transaction and can veto the insert.
func (s *AuthService) createUser(ctx context.Context, in core.RegisterInput, guard func(q *storage.Queries) error) (core.User, error) {
	if err := core.Validate(in); err != nil {
		return core.User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return core.User{}, core.Internal(err)
	}

	var created core.User
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if guard != nil {
			if err := guard(q); err != nil {
				return err
			}
		}
		var err error
		created, err = q.CreateUser(ctx, core.User{
			Email:        in.Email,
			PasswordHash: hash,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Role:         in.Role,
			IsActive:     true,
		}, s.now())
		return err
	})
	if err != nil {
		return core.User{}, translate(err, "", msgDuplicateEmail)
	}
	return created, nil
}

// Login checks credentials and issues a token pair. Unknown emails,
// wrong passwords and deactivated accounts are indistinguishable.
func (s *AuthService) Login(ctx context.Context, in core.LoginInput) (LoginResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := core.Validate(in); err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginResult{}, core.Unauthorizedf(msgBadCredentials)
		}
		return LoginResult{}, core.Internal(err)
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, in.Password) {
		slog.WarnContext(ctx, "Login rejected", "component", "auth", "user_id", user.ID)
		return LoginResult{}, core.Unauthorizedf(msgBadCredentials)
	}

	at := s.now()
	if err := s.repo.TouchLastLogin(ctx, user.ID, at); err != nil {
		return LoginResult{}, core.Internal(err)
	}
	user.LastLogin = &at

	pair, err := s.issuer.Issue(user)
	if err != nil {
		return LoginResult{}, core.Internal(err)
	}
	return LoginResult{TokenPair: pair, User: user}, nil
}

// Authenticate verifies an access token and rejects revoked ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.issuer.Parse(token, auth.TokenAccess)
	if err != nil {
		return nil, core.Unauthorizedf("Invalid or expired token")
	}
	if s.isRevoked(claims.ID) {
		return nil, core.Unauthorizedf("Token has been revoked")
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new token pair. The user must
// still exist and be active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, auth.TokenRefresh)
	if err != nil {
		return auth.TokenPair{}, core.Unauthorizedf("Invalid or expired token")
	}
	if s.isRevoked(claims.ID) {
		return auth.TokenPair{}, core.Unauthorizedf("Token has been revoked")
	}

	user, err := s.repo.GetUser(ctx, claims.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return auth.TokenPair{}, core.Internal(err)
	}
	if err != nil || !user.IsActive {
		return auth.TokenPair{}, core.Unauthorizedf("User not found or inactive")
	}

	pair, err := s.issuer.Issue(user)
	if err != nil {
		return auth.TokenPair{}, core.Internal(err)
	}
	return pair, nil
}

func (s *AuthService) Me(ctx context.Context, claims *auth.Claims) (core.User, error) {
	user, err := s.repo.GetUser(ctx, claims.UserID)
	if err != nil {
		return core.User{}, translate(err, "User not found", "")
	}
	return user, nil
}

// Logout revokes the presented token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) {
	if s.revoked == nil || claims.ID == "" {
		return
	}
	expires := s.now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	s.revoked.SetUntil(claims.ID, true, expires)
	slog.InfoContext(ctx, "Token revoked", "component", "auth", "user_id", claims.UserID)
}

func (s *AuthService) isRevoked(jti string) bool {
	if s.revoked == nil || jti == "" {
		return false
	}
	_, ok := s.revoked.Get(jti)
	return ok
}
