package security

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultAvatarMaxSize はアバター画像の最大サイズ（2MB）。
const defaultAvatarMaxSize = 2 * 1024 * 1024

// defaultAvatarTimeout はアバター取得のタイムアウト。
const defaultAvatarTimeout = 5 * time.Second

// SSRFValidator はアバター取得前のURL検証インターフェース。
type SSRFValidator interface {
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
	ValidateURL(rawURL string) error
}

// AvatarFetcherService はアバター画像取得のインターフェース。
type AvatarFetcherService interface {
	// FetchAvatar は指定URLからアバター画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	FetchAvatar(ctx context.Context, avatarURL string) (data []byte, mimeType string, err error)
}

// AvatarFetcher はアバター画像取得機能の実装。
// Googleが返すプロフィール画像URLをコールバック・登録完了時に取得し、
// クライアントがGoogleのURLへ直接アクセスせずに済むようキャッシュ用データを返す。
type AvatarFetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
// timeout・maxSizeがゼロ値の場合は既定値を使う。
func NewAvatarFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *AvatarFetcher {
	if timeout <= 0 {
		timeout = defaultAvatarTimeout
	}
	if maxSize <= 0 {
		maxSize = defaultAvatarMaxSize
	}
	return &AvatarFetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// FetchAvatar は指定URLからアバター画像を取得する。
// 取得失敗はログインや登録の失敗にしない（nilデータと空MIMEを返す）。
func (f *AvatarFetcher) FetchAvatar(ctx context.Context, avatarURL string) ([]byte, string, error) {
	if avatarURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(avatarURL); err != nil {
			slog.Warn("avatar fetch: blocked by SSRF guard", "url", avatarURL, "error", err)
			return nil, "", nil
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		slog.Warn("avatar fetch: failed to create request", "url", avatarURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "CampusOS/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("avatar fetch: request failed", "url", avatarURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("avatar fetch: unexpected status", "url", avatarURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（上限超過検知のため+1）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("avatar fetch: failed to read body", "url", avatarURL, "error", err)
		return nil, "", nil
	}

	if int64(len(body)) > f.maxSize {
		slog.Warn("avatar fetch: size limit exceeded", "url", avatarURL, "size", len(body))
		return nil, "", nil
	}

	contentType := resp.Header.Get("Content-Type")
	mimeType := extractMimeType(contentType)

	if !isImageMime(mimeType) {
		slog.Warn("avatar fetch: non-image content type", "url", avatarURL, "contentType", contentType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はHTTPクライアントを取得する。
func (f *AvatarFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ AvatarFetcherService = (*AvatarFetcher)(nil)
