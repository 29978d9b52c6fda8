package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nathanael10142/Campusos/internal/model"
)

// トークン種別クレームの値
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenClaims は検証済みアクセス・リフレッシュトークンの内容を表す。
type TokenClaims struct {
	AccountID string
	Email     string
	Role      model.UserRole
	Device    string
	TokenID   string
	ExpiresAt time.Time
}

// credentialClaims はアクセス・リフレッシュトークン共通のJWTクレーム。
type credentialClaims struct {
	jwt.RegisteredClaims
	Email  string         `json:"email"`
	Role   model.UserRole `json:"role"`
	Device string         `json:"device,omitempty"`
	Type   string         `json:"type"`
}

// TokenIssuer はアクセストークン・リフレッシュトークンの発行と検証を行う。
// deviceクレームは異常検知のための参考情報であり、検証では強制しない。
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue はアカウントに対してアクセストークンとリフレッシュトークンの組を発行する。
func (i *TokenIssuer) Issue(account *model.Account, device string) (*model.CredentialSet, error) {
	access, err := i.sign(account, device, tokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refresh, err := i.sign(account, device, tokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &model.CredentialSet{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// IssueAccess はアクセストークンのみを再発行する。
// リフレッシュ時に使用し、提示されたリフレッシュトークンはそのまま使い続ける。
func (i *TokenIssuer) IssueAccess(account *model.Account, device string) (string, error) {
	access, err := i.sign(account, device, tokenTypeAccess, i.accessTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return access, nil
}

// ParseAccess はアクセストークンを検証してクレームを返す。
// ミドルウェアでの認証に使う。失敗理由は内部エラーとして返し、呼び出し側で401に変換する。
func (i *TokenIssuer) ParseAccess(token string) (*TokenClaims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("unexpected token type: %s", claims.Type)
	}
	return newTokenClaims(claims), nil
}

// ParseRefresh はリフレッシュトークンを検証してクレームを返す。
// 失敗はすべて同一のINVALID_REFRESH_TOKENエラーになる。
func (i *TokenIssuer) ParseRefresh(token string) (*TokenClaims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return nil, model.NewInvalidRefreshTokenError()
	}
	if claims.Type != tokenTypeRefresh {
		return nil, model.NewInvalidRefreshTokenError()
	}
	return newTokenClaims(claims), nil
}

// sign は指定種別・有効期限のJWTを署名する。
func (i *TokenIssuer) sign(account *model.Account, device, tokenType string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:  account.Email,
		Role:   account.Role,
		Device: device,
		Type:   tokenType,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// parse は署名・形式・種別値の存在・期限を検証する。
func (i *TokenIssuer) parse(token string) (*credentialClaims, error) {
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("token is missing required claims")
	}
	if !claims.ExpiresAt.Time.After(i.now()) {
		return nil, fmt.Errorf("token is expired")
	}

	return &claims, nil
}

func newTokenClaims(claims *credentialClaims) *TokenClaims {
	return &TokenClaims{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		Device:    claims.Device,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
}
