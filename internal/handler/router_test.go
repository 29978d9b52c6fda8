package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nathanael10142/Campusos/internal/auth"
	"github.com/nathanael10142/Campusos/internal/middleware"
	"github.com/nathanael10142/Campusos/internal/model"
)

// --- モック定義 ---

type mockTokenParser struct {
	parseAccessFn func(token string) (*auth.TokenClaims, error)
}

func (m *mockTokenParser) ParseAccess(token string) (*auth.TokenClaims, error) {
	if m.parseAccessFn != nil {
		return m.parseAccessFn(token)
	}
	return nil, errors.New("no parser configured")
}

var _ middleware.TokenParser = (*mockTokenParser)(nil)

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

// newTestRouterDeps は全依存をモックで埋めたRouterDepsを返す。
// 個々のテストは必要なフィールドだけ差し替える。
func newTestRouterDeps(t *testing.T) *RouterDeps {
	t.Helper()

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	return &RouterDeps{
		TokenParser: &mockTokenParser{
			parseAccessFn: func(token string) (*auth.TokenClaims, error) {
				if token != "valid-access-token" {
					return nil, errors.New("token is invalid")
				}
				return &auth.TokenClaims{AccountID: "acct-7c2d", Email: "etudiant@unigom.cd", Role: model.RoleStudent}, nil
			},
		},
		CORSAllowedOrigin: "https://campus.unigom.cd",
		RateLimiter:       limiter,
		AuthService:       &mockAuthService{},
		OAuthService:      &mockOAuthService{},
		OAuthConfigured:   true,
		UserService:       &mockUserService{},
		HealthChecker:     &mockHealthChecker{},
	}
}

// --- ルーティングテスト ---

func TestNewRouter_PublicRoutes(t *testing.T) {
	deps := newTestRouterDeps(t)
	deps.AuthService = &mockAuthService{
		registerFn: func(ctx context.Context, input *model.RegisterInput, device string) (*model.TokenResponse, error) {
			return testTokenResponse(), nil
		},
		loginFn: func(ctx context.Context, email, password, device string) (*model.TokenResponse, error) {
			return testTokenResponse(), nil
		},
		refreshFn: func(ctx context.Context, refreshToken, device string) (*model.TokenResponse, error) {
			return testTokenResponse(), nil
		},
	}
	deps.OAuthService = &mockOAuthService{
		startFn: func(redirectURI string) (string, error) {
			return "https://accounts.google.com/o/oauth2/auth?state=abc", nil
		},
		callbackFn: func(ctx context.Context, code, state, device string) (*model.TokenResponse, *model.PendingRegistration, error) {
			return testTokenResponse(), nil, nil
		},
		completeFn: func(ctx context.Context, regToken string, info *model.AdditionalInfo, device string) (*model.TokenResponse, error) {
			return testTokenResponse(), nil
		},
	}
	router := NewRouter(deps)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "登録",
			method:     http.MethodPost,
			path:       "/api/auth/register",
			body:       `{"email":"jean.kalombo@unigom.cd","password":"motdepasse123","full_name":"Jean Kalombo","phone":"+243 991 234 567","faculty":"Informatique","academic_level":"L3"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "ログイン",
			method:     http.MethodPost,
			path:       "/api/auth/login",
			body:       `{"email":"jean.kalombo@unigom.cd","password":"motdepasse123"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "リフレッシュ",
			method:     http.MethodPost,
			path:       "/api/auth/refresh",
			body:       `{"refresh_token":"refresh-token-xyz"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "OAuth開始",
			method:     http.MethodGet,
			path:       "/oauth/google/login",
			wantStatus: http.StatusFound,
		},
		{
			name:       "OAuthコールバック",
			method:     http.MethodGet,
			path:       "/oauth/google/callback?code=code-123&state=state-xyz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "OAuth登録完了",
			method:     http.MethodPost,
			path:       "/oauth/google/complete",
			body:       `{"google_token":"reg-token","phone":"+243 991 234 567","faculty":"Informatique","academic_level":"L3"}`,
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_ProtectedRoutes_RequireToken(t *testing.T) {
	router := NewRouter(newTestRouterDeps(t))

	paths := []string{
		"/api/auth/me",
		"/api/users/acct-7c2d/avatar",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
			}
			if body := decodeErrorBody(t, resp); body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestNewRouter_Me_WithValidToken(t *testing.T) {
	deps := newTestRouterDeps(t)
	var gotAccountID string
	deps.AuthService = &mockAuthService{
		currentAccountFn: func(ctx context.Context, accountID string) (*model.UserResponse, error) {
			gotAccountID = accountID
			return &model.UserResponse{ID: accountID, Email: "etudiant@unigom.cd"}, nil
		},
	}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer valid-access-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if gotAccountID != "acct-7c2d" {
		t.Errorf("accountID = %q, want token claims value", gotAccountID)
	}
}

// アバターがルーター経由でURLパラメータを受け取れること。
func TestNewRouter_Avatar_WithValidToken(t *testing.T) {
	deps := newTestRouterDeps(t)
	var gotAccountID string
	deps.UserService = &mockUserService{
		avatarFn: func(ctx context.Context, accountID string) ([]byte, string, error) {
			gotAccountID = accountID
			return []byte{0x89, 0x50, 0x4E, 0x47}, "image/png", nil
		},
	}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/users/acct-autre/avatar", nil)
	req.Header.Set("Authorization", "Bearer valid-access-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if gotAccountID != "acct-autre" {
		t.Errorf("accountID = %q, want URL parameter value", gotAccountID)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
}

func TestNewRouter_SecurityHeadersApplied(t *testing.T) {
	router := NewRouter(newTestRouterDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://campus.unigom.cd" {
		t.Errorf("Access-Control-Allow-Origin = %q, want configured origin", got)
	}
}

func TestNewRouter_UnknownRoute_Returns404(t *testing.T) {
	router := NewRouter(newTestRouterDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- ヘルスチェックテスト ---

func TestNewHealthHandler_Healthy(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	h(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestNewHealthHandler_DatabaseDown_ReturnsUnavailable(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{
		pingFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	h(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "unavailable" {
		t.Errorf("status = %q, want %q", body["status"], "unavailable")
	}
}

func TestNewHealthHandler_NilChecker_ReturnsUnavailable(t *testing.T) {
	h := NewHealthHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	h(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

// --- メトリクスエンドポイントテスト ---

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	deps := newTestRouterDeps(t)
	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("campusos_logins_total 0"))
	})
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestNewRouter_MetricsEndpoint_NotConfigured(t *testing.T) {
	deps := newTestRouterDeps(t)
	deps.MetricsHandler = nil
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
