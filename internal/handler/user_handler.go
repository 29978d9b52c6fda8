package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nathanael10142/Campusos/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Avatar はキャッシュ済みアバター画像とMIMEタイプを返す。
	Avatar(ctx context.Context, accountID string) ([]byte, string, error)
}

// UserHandler はユーザー情報関連のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Avatar はキャッシュ済みアバター画像を配信する。
// クライアントにGoogleのURLを直接参照させないためのプロキシ。
// GET /api/users/{id}/avatar
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	data, mimeType, err := h.service.Avatar(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if len(data) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "AVATAR_NOT_FOUND",
			Message:  "Aucun avatar pour cet utilisateur.",
			Category: "user",
			Action:   "L'avatar sera mis à jour à la prochaine connexion Google.",
		})
		return
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}
