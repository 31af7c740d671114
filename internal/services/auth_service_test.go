package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"feeledger/internal/auth"
	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAuthService(t *testing.T) (*AuthService, *storage.Repository) {
	t.Helper()
	repo := newTestRepo(t)
	issuer := auth.NewIssuer(testSecret, time.Hour, 24*time.Hour)
	return NewAuthService(repo, issuer, cache.NewExpiryCache[bool](100, time.Hour)), repo
}

func registerInput(email string, role core.Role) core.RegisterInput {
	return core.RegisterInput{
		Email:     email,
		Password:  "correct horse",
		FirstName: "Grace",
		LastName:  "Hopper",
		Role:      role,
	}
}

func TestAuthService_RegisterBootstrapAndRoles(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	admin, err := svc.Register(ctx, nil, registerInput(" Admin@School.test ", core.RoleAdmin))
	if err != nil {
		t.Fatalf("bootstrap register: %v", err)
	}
	if admin.Email != "admin@school.test" || !admin.IsActive || admin.PasswordHash == "correct horse" {
		t.Fatalf("unexpected admin %+v", admin)
	}

	_, err = svc.Register(ctx, nil, registerInput("second@school.test", core.RoleTeacher))
	assertKind(t, err, core.KindUnauthorized)

	teacher := &auth.Claims{UserID: 2, Role: core.RoleTeacher}
	_, err = svc.Register(ctx, teacher, registerInput("third@school.test", core.RoleTeacher))
	assertKind(t, err, core.KindForbidden)

	adminClaims := &auth.Claims{UserID: admin.ID, Role: core.RoleAdmin}
	if _, err := svc.Register(ctx, adminClaims, registerInput("teacher@school.test", core.RoleTeacher)); err != nil {
		t.Fatalf("admin register: %v", err)
	}

	_, err = svc.Register(ctx, adminClaims, registerInput("teacher@school.test", core.RoleTeacher))
	assertKind(t, err, core.KindConflict)
	assertMessage(t, err, "Email already registered")

	tests := []struct {
		name   string
		mutate func(*core.RegisterInput)
		msg    string
	}{
		{"bad email", func(in *core.RegisterInput) { in.Email = "nope" }, "email must be a valid email address"},
		{"short password", func(in *core.RegisterInput) { in.Password = "short" }, "password must be at least 8 characters"},
		{"unknown role", func(in *core.RegisterInput) { in.Role = "janitor" }, "role must be one of: student, teacher, admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registerInput("new@school.test", core.RoleStudent)
			tt.mutate(&in)
			_, err := svc.Register(ctx, adminClaims, in)
			assertKind(t, err, core.KindValidation)
			assertMessage(t, err, tt.msg)
		})
	}
}

func TestAuthService_LoginRefreshLogout(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, nil, registerInput("admin@school.test", core.RoleAdmin))
	if err != nil {
		t.Fatal(err)
	}

	for _, in := range []core.LoginInput{
		{Email: "admin@school.test", Password: "wrong password"},
		{Email: "ghost@school.test", Password: "correct horse"},
	} {
		_, err := svc.Login(ctx, in)
		assertKind(t, err, core.KindUnauthorized)
		assertMessage(t, err, "Invalid email or password")
	}

	_, err = svc.Login(ctx, core.LoginInput{Email: "admin@school.test"})
	assertKind(t, err, core.KindValidation)

	res, err := svc.Login(ctx, core.LoginInput{Email: "ADMIN@school.test", Password: "correct horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.ID != user.ID || res.User.LastLogin == nil || res.TokenType != "Bearer" || res.ExpiresIn != 3600 {
		t.Fatalf("unexpected login result %+v", res)
	}

	claims, err := svc.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != core.RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	_, err = svc.Authenticate(ctx, res.RefreshToken)
	assertKind(t, err, core.KindUnauthorized)
	_, err = svc.Refresh(ctx, res.AccessToken)
	assertKind(t, err, core.KindUnauthorized)

	pair, err := svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.AccessToken == "" || pair.AccessToken == res.AccessToken {
		t.Fatalf("refresh should issue a new access token")
	}

	me, err := svc.Me(ctx, claims)
	if err != nil || me.Email != "admin@school.test" {
		t.Fatalf("me = %+v, %v", me, err)
	}

	svc.Logout(ctx, claims)
	_, err = svc.Authenticate(ctx, res.AccessToken)
	assertKind(t, err, core.KindUnauthorized)
	assertMessage(t, err, "Token has been revoked")

	if _, err := svc.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("other tokens stay valid after logout: %v", err)
	}

	if err := repo.SetUserActive(ctx, user.Email, false, fixedNow); err != nil {
		t.Fatal(err)
	}
	_, err = svc.Login(ctx, core.LoginInput{Email: "admin@school.test", Password: "correct horse"})
	assertMessage(t, err, "Invalid email or password")
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assertKind(t, err, core.KindUnauthorized)
}

func TestAuthService_AuthenticateRejectsGarbage(t *testing.T) {
	svc, _ := newAuthService(t)
	other := auth.NewIssuer(strings.Repeat("x", 32), time.Hour, 24*time.Hour)
	forged, err := other.Issue(core.User{ID: 1, Email: "a@b.test", Role: core.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{"", "not-a-jwt", forged.AccessToken} {
		_, err := svc.Authenticate(context.Background(), token)
		assertKind(t, err, core.KindUnauthorized)
	}
}

func TestAuthService_ProvisionAndSetActive(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, nil, registerInput("admin@school.test", core.RoleAdmin)); err != nil {
		t.Fatalf("bootstrap register: %v", err)
	}

	// Provisioning skips the caller check that Register applies.
	user, err := svc.Provision(ctx, registerInput(" Ops@School.test", core.RoleTeacher))
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if user.Email != "ops@school.test" || user.Role != core.RoleTeacher {
		t.Fatalf("unexpected user %+v", user)
	}
	_, err = svc.Provision(ctx, registerInput("ops@school.test", core.RoleTeacher))
	assertKind(t, err, core.KindConflict)

	if err := svc.SetActive(ctx, "OPS@school.test", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, err = svc.Login(ctx, core.LoginInput{Email: "ops@school.test", Password: "correct horse"})
	assertKind(t, err, core.KindUnauthorized)

	if err := svc.SetActive(ctx, "ops@school.test", true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := svc.Login(ctx, core.LoginInput{Email: "ops@school.test", Password: "correct horse"}); err != nil {
		t.Fatalf("login after reactivation: %v", err)
	}

	err = svc.SetActive(ctx, "ghost@school.test", false)
	assertKind(t, err, core.KindNotFound)
}

func TestAuthService_ConcurrentBootstrapCreatesOneUser(t *testing.T) {
	repo := newTestRepoWithConns(t, 8)
	svc := NewAuthService(repo, auth.NewIssuer(testSecret, time.Hour, 24*time.Hour), nil)
	ctx := context.Background()

	const workers = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := "admin" + strconv.Itoa(i) + "@school.test"
			_, err := svc.Register(ctx, nil, registerInput(email, core.RoleAdmin))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case core.KindOf(err) == core.KindUnauthorized:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 1 || rejected != workers-1 {
		t.Fatalf("created=%d rejected=%d, want 1/%d", created, rejected, workers-1)
	}
	n, err := repo.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountUsers() = %d, %v", n, err)
	}
}
