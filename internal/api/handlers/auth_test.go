package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oakpoint/schoolhub/internal/api/dto"
	"github.com/oakpoint/schoolhub/internal/api/handlers"
	"github.com/oakpoint/schoolhub/internal/auth"
	"github.com/oakpoint/schoolhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type authTestSetup struct {
	db       *gorm.DB
	notifier *testutil.NoopNotifier
	service  *auth.Service
}

func setupAuthTestRouter(t *testing.T) (*chi.Mux, *authTestSetup) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	logger := testutil.NewTestLogger()
	jwtService := testutil.CreateTestJWTService()
	lockout := auth.NewLockoutGuard(db, 5, 15*time.Minute)
	refreshStore := auth.NewRefreshTokenStore(db, 30*24*time.Hour)
	notifier := &testutil.NoopNotifier{}
	resetFlow := auth.NewPasswordResetFlow(db, refreshStore, notifier, 30*time.Minute, logger)
	service := auth.NewService(db, jwtService, lockout, refreshStore, resetFlow, logger, true)

	handler := handlers.NewAuthHandler(service, 8, 30*24*time.Hour, false)

	r := chi.NewRouter()
	r.Post("/api/v1/auth/register", handler.Register)
	r.Post("/api/v1/auth/login", handler.Login)
	r.Post("/api/v1/auth/refresh", handler.Refresh)
	r.Post("/api/v1/auth/logout", handler.Logout)
	r.Post("/api/v1/auth/forgot-password", handler.ForgotPassword)
	r.Post("/api/v1/auth/reset-password", handler.ResetPassword)

	return r, &authTestSetup{db: db, notifier: notifier, service: service}
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Register(t *testing.T) {
	router, _ := setupAuthTestRouter(t)

	t.Run("successful registration", func(t *testing.T) {
		body := map[string]string{
			"organization_name": "Hill Valley High",
			"email":             "principal@hillvalley.edu",
			"password":          "securepassword123",
			"name":              "Gerald Strickland",
		}

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "principal@hillvalley.edu", resp.User.Email)
		assert.Equal(t, "owner", resp.User.Role)
		assert.Equal(t, "hill-valley-high", resp.Organization.Slug)

		cookie := refreshCookie(t, rr)
		require.NotNil(t, cookie, "refresh token must arrive as a cookie")
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, "/api/v1/auth", cookie.Path)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

		// The raw refresh token must never appear in the response body.
		assert.NotContains(t, rr.Body.String(), cookie.Value)
	})

	t.Run("duplicate email gets a generic failure", func(t *testing.T) {
		body := map[string]string{
			"organization_name": "Another School",
			"email":             "principal@hillvalley.edu",
			"password":          "securepassword123",
			"name":              "Someone Else",
		}

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Registration could not be completed", resp.Error)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		body := map[string]string{
			"organization_name": "Tiny School",
			"email":             "tiny@example.com",
			"password":          "short",
			"name":              "Tiny",
		}

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Validation failed", resp.Error)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	router, ts := setupAuthTestRouter(t)

	org := testutil.CreateTestOrg(t, ts.db)
	user := testutil.CreateTestUser(t, ts.db, org)

	t.Run("successful login sets refresh cookie", func(t *testing.T) {
		body := map[string]string{"email": user.Email, "password": testutil.TestPassword}

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, user.Email, resp.User.Email)

		cookie := refreshCookie(t, rr)
		require.NotNil(t, cookie)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		wrongPass := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": user.Email, "password": "not-the-password"})
		rr1 := httptest.NewRecorder()
		router.ServeHTTP(rr1, wrongPass)

		unknown := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": "nobody@example.com", "password": "whatever123"})
		rr2 := httptest.NewRecorder()
		router.ServeHTTP(rr2, unknown)

		assert.Equal(t, http.StatusUnauthorized, rr1.Code)
		assert.Equal(t, http.StatusUnauthorized, rr2.Code)
		assert.Equal(t, rr1.Body.String(), rr2.Body.String())
	})

	t.Run("deactivated user is rejected", func(t *testing.T) {
		inactive := testutil.CreateTestUser(t, ts.db, org)
		require.NoError(t, ts.db.Model(inactive).Update("is_active", false).Error)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": inactive.Email, "password": testutil.TestPassword})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Account is deactivated", resp.Error)
	})

	t.Run("inactive organization is rejected", func(t *testing.T) {
		frozenOrg := testutil.CreateTestOrg(t, ts.db)
		frozenUser := testutil.CreateTestUser(t, ts.db, frozenOrg)
		require.NoError(t, ts.db.Model(frozenOrg).Update("is_active", false).Error)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": frozenUser.Email, "password": testutil.TestPassword})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Organization is inactive", resp.Error)
	})

	t.Run("lockout returns 429 with retry hint", func(t *testing.T) {
		target := testutil.CreateTestUser(t, ts.db, org)

		for i := 0; i < 5; i++ {
			req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
				map[string]string{"email": target.Email, "password": "wrong-password"})
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		}

		// Even the correct password is refused while locked.
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": target.Email, "password": testutil.TestPassword})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Too many failed login attempts", resp.Error)
		assert.Greater(t, resp.RetryAfter, 0)
	})
}

func TestAuthHandler_Refresh(t *testing.T) {
	router, ts := setupAuthTestRouter(t)

	org := testutil.CreateTestOrg(t, ts.db)
	user := testutil.CreateTestUser(t, ts.db, org)

	login := func(t *testing.T) *http.Cookie {
		t.Helper()
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": user.Email, "password": testutil.TestPassword})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		cookie := refreshCookie(t, rr)
		require.NotNil(t, cookie)
		return cookie
	}

	t.Run("refresh via cookie rotates the token", func(t *testing.T) {
		cookie := login(t)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.AccessToken)

		rotated := refreshCookie(t, rr)
		require.NotNil(t, rotated)
		assert.NotEqual(t, cookie.Value, rotated.Value)
	})

	t.Run("refresh via body for non-browser clients", func(t *testing.T) {
		cookie := login(t)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh",
			map[string]string{"refresh_token": cookie.Value})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("consumed token is rejected on replay", func(t *testing.T) {
		cookie := login(t)

		first := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh", nil)
		first.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, first)
		require.Equal(t, http.StatusOK, rr.Code)

		replay := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh", nil)
		replay.AddCookie(cookie)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, replay)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Invalid or revoked refresh token", resp.Error)
	})

	t.Run("missing token is a bad request", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	router, ts := setupAuthTestRouter(t)

	org := testutil.CreateTestOrg(t, ts.db)
	user := testutil.CreateTestUser(t, ts.db, org)

	t.Run("logout revokes the session and clears the cookie", func(t *testing.T) {
		loginReq := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": user.Email, "password": testutil.TestPassword})
		loginRR := httptest.NewRecorder()
		router.ServeHTTP(loginRR, loginReq)
		require.Equal(t, http.StatusOK, loginRR.Code)
		cookie := refreshCookie(t, loginRR)
		require.NotNil(t, cookie)

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/logout", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		cleared := refreshCookie(t, rr)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)

		// The revoked token can no longer be rotated.
		refresh := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh", nil)
		refresh.AddCookie(cookie)
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, refresh)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("logout without a token still succeeds", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/logout", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	router, ts := setupAuthTestRouter(t)

	org := testutil.CreateTestOrg(t, ts.db)
	user := testutil.CreateTestUser(t, ts.db, org)

	t.Run("known and unknown emails get the same response", func(t *testing.T) {
		known := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/forgot-password",
			map[string]string{"email": user.Email})
		rr1 := httptest.NewRecorder()
		router.ServeHTTP(rr1, known)

		unknown := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/forgot-password",
			map[string]string{"email": "ghost@example.com"})
		rr2 := httptest.NewRecorder()
		router.ServeHTTP(rr2, unknown)

		assert.Equal(t, http.StatusOK, rr1.Code)
		assert.Equal(t, http.StatusOK, rr2.Code)
		assert.Equal(t, rr1.Body.String(), rr2.Body.String())

		// Only the real account got a token.
		assert.Len(t, ts.notifier.Sent, 1)
	})

	t.Run("completing the reset changes the password", func(t *testing.T) {
		require.NotEmpty(t, ts.notifier.Sent)
		rawToken := ts.notifier.Sent[len(ts.notifier.Sent)-1]

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/reset-password",
			map[string]string{"token": rawToken, "password": "brand-new-password"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		oldLogin := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": user.Email, "password": testutil.TestPassword})
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, oldLogin)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		newLogin := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login",
			map[string]string{"email": user.Email, "password": "brand-new-password"})
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, newLogin)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("used token cannot be replayed", func(t *testing.T) {
		rawToken := ts.notifier.Sent[len(ts.notifier.Sent)-1]

		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/reset-password",
			map[string]string{"token": rawToken, "password": "another-password-1"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Invalid or already used reset token", resp.Error)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/reset-password",
			map[string]string{"token": "not-a-real-token", "password": "whatever-password"})
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
