// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nathanael10142/Campusos/internal/auth"
	"github.com/nathanael10142/Campusos/internal/middleware"
	"github.com/nathanael10142/Campusos/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register はemail・パスワードで新規アカウントを作成する。
	Register(ctx context.Context, input *model.RegisterInput, device string) (*model.TokenResponse, error)
	// Login はemail・パスワードを検証してトークンを発行する。
	Login(ctx context.Context, email, password, device string) (*model.TokenResponse, error)
	// Refresh はリフレッシュトークンから新しいアクセストークンを発行する。
	Refresh(ctx context.Context, refreshToken, device string) (*model.TokenResponse, error)
	// CurrentAccount は認証済みアカウントの情報を返す。
	CurrentAccount(ctx context.Context, accountID string) (*model.UserResponse, error)
}

// AuthHandler はパスワード認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest はトークンリフレッシュリクエストのボディ。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Register は新規アカウント登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Corps de requête JSON invalide.",
			Category: "validation",
			Action:   "Envoyez une requête JSON valide.",
		})
		return
	}

	resp, err := h.service.Register(r.Context(), &req, deviceFingerprint(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, resp)
}

// Login はemail・パスワードログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Corps de requête JSON invalide.",
			Category: "validation",
			Action:   "Envoyez une requête JSON valide.",
		})
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password, deviceFingerprint(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// Refresh はアクセストークンの再発行を処理する。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Corps de requête JSON invalide.",
			Category: "validation",
			Action:   "Envoyez une requête JSON valide.",
		})
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken, deviceFingerprint(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	resp, err := h.service.CurrentAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

// deviceFingerprint はリクエストから端末フィンガープリントを導出する。
func deviceFingerprint(r *http.Request) string {
	return auth.Fingerprint(r.UserAgent(), middleware.ClientIP(r))
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Une erreur interne s'est produite. Nathanael a été notifié.",
		Category: "system",
		Action:   "Patientez quelques instants puis réessayez.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidState, model.ErrCodeInvalidToken, model.ErrCodeTokenExpired,
		model.ErrCodeIncompleteRegistration, model.ErrCodePasswordTooLong,
		model.ErrCodeValidationFailed, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeInvalidRefreshToken,
		model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeAccountDisabled, model.ErrCodeUnverifiedEmail:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, "AVATAR_NOT_FOUND":
		return http.StatusNotFound
	case model.ErrCodeConflictingIdentity, model.ErrCodeDuplicateRegistration,
		model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeProviderExchangeFailed:
		return http.StatusBadGateway
	case model.ErrCodeOAuthNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
