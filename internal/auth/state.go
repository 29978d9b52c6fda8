package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nathanael10142/Campusos/internal/model"
)

// StateToken はOAuth開始時に発行するCSRF防御用トークンの内容を表す。
type StateToken struct {
	Nonce       string
	RedirectURI string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// stateClaims はstateトークンのJWTクレーム。
type stateClaims struct {
	jwt.RegisteredClaims
	Nonce       string `json:"nonce"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// StateTokenCodec は署名付きstateトークンの発行と検証を行う。
// サーバー側に状態を持たず、検証は署名の再計算のみで行う。
type StateTokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateTokenCodec はStateTokenCodecを生成する。
func NewStateTokenCodec(secret string, ttl time.Duration) *StateTokenCodec {
	return &StateTokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue は新しいnonceを含む署名付きstateトークンを発行する。
// redirectURIはログイン完了後の戻り先（任意）。
func (c *StateTokenCodec) Issue(redirectURI string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Nonce:       nonce,
		RedirectURI: redirectURI,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}

	// コールバック側のログと突合できるよう、nonceのみ記録する（署名済みトークンは記録しない）
	slog.Debug("state token issued", slog.String("nonce", nonce))

	return signed, nil
}

// Verify はstateトークンを検証して内容を返す。
// 署名不一致・形式不正・期限切れはすべて同一のINVALID_STATEエラーになる。
func (c *StateTokenCodec) Verify(state string) (*StateToken, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, model.NewInvalidStateError()
	}

	if claims.Nonce == "" || claims.ExpiresAt == nil {
		return nil, model.NewInvalidStateError()
	}

	// 期限判定はテスト可能にするため自前のclockで行う
	if !claims.ExpiresAt.Time.After(c.now()) {
		return nil, model.NewInvalidStateError()
	}

	token := &StateToken{
		Nonce:       claims.Nonce,
		RedirectURI: claims.RedirectURI,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		token.IssuedAt = claims.IssuedAt.Time
	}

	return token, nil
}

// generateNonce は32バイトの乱数をURLセーフなBase64で返す。
func generateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
