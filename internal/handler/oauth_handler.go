package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nathanael10142/Campusos/internal/model"
)

// OAuthServiceInterface はOAuthハンドラーが必要とするサービスインターフェース。
type OAuthServiceInterface interface {
	// Start はOAuthフローを開始し、プロバイダの認可URLを返す。
	Start(redirectURI string) (string, error)
	// Callback はOAuthコールバックを処理する。
	// 既存アカウントならTokenResponse、未登録ならPendingRegistrationを返す。
	Callback(ctx context.Context, code, state, device string) (*model.TokenResponse, *model.PendingRegistration, error)
	// Complete は登録トークンと追加情報から新規アカウントを作成する。
	Complete(ctx context.Context, regToken string, info *model.AdditionalInfo, device string) (*model.TokenResponse, error)
}

// OAuthHandler はGoogle OAuth認証のHTTPハンドラー。
type OAuthHandler struct {
	service    OAuthServiceInterface
	configured bool // Googleクライアント資格情報が設定されているか
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(service OAuthServiceInterface, configured bool) *OAuthHandler {
	return &OAuthHandler{
		service:    service,
		configured: configured,
	}
}

// completeRegistrationRequest は登録完了リクエストのボディ。
type completeRegistrationRequest struct {
	GoogleToken   string              `json:"google_token"`
	Phone         string              `json:"phone"`
	Faculty       model.Faculty       `json:"faculty"`
	AcademicLevel model.AcademicLevel `json:"academic_level"`
	StudentID     string              `json:"student_id,omitempty"`
}

// Login はGoogle OAuthフローを開始する。
// GET /oauth/google/login?redirect_uri=xxx
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.configured {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewOAuthNotConfiguredError())
		return
	}

	url, err := h.service.Start(r.URL.Query().Get("redirect_uri"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /oauth/google/callback?code=xxx&state=yyy
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.configured {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewOAuthNotConfiguredError())
		return
	}

	// プロバイダがエラーを返した場合（同意拒否など）はコードが付かない
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("paramètre code manquant"))
		return
	}

	state := r.URL.Query().Get("state")

	tokenResp, pending, err := h.service.Callback(r.Context(), code, state, deviceFingerprint(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if pending != nil {
		writeJSONResponse(w, http.StatusOK, pending)
		return
	}

	writeJSONResponse(w, http.StatusOK, tokenResp)
}

// Complete はGoogle経由の新規登録を完了する。
// POST /oauth/google/complete
func (h *OAuthHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.configured {
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewOAuthNotConfiguredError())
		return
	}

	var req completeRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "Corps de requête JSON invalide.",
			Category: "validation",
			Action:   "Envoyez une requête JSON valide.",
		})
		return
	}

	info := &model.AdditionalInfo{
		Phone:         req.Phone,
		Faculty:       req.Faculty,
		AcademicLevel: req.AcademicLevel,
		StudentID:     req.StudentID,
	}

	resp, err := h.service.Complete(r.Context(), req.GoogleToken, info, deviceFingerprint(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, resp)
}
