package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nathanael10142/Campusos/internal/model"
)

// registrationTokenType は登録完了待ちトークンの用途マーカー。
// 他の用途のトークン（access/refresh/state）を流用できないようにする。
const registrationTokenType = "google_registration"

// registrationClaims は登録完了待ちトークンのJWTクレーム。
// コールバック時点で検証済みのGoogleプロフィールを運ぶ。
type registrationClaims struct {
	jwt.RegisteredClaims
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
	Type     string `json:"type"`
}

// RegistrationTokenCodec は登録完了待ちトークンの発行と検証を行う。
// stateトークンと同じく、サーバー側に状態を持たない。
type RegistrationTokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistrationTokenCodec はRegistrationTokenCodecを生成する。
func NewRegistrationTokenCodec(secret string, ttl time.Duration) *RegistrationTokenCodec {
	return &RegistrationTokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue は検証済みGoogleプロフィールを含む登録トークンを発行する。
func (c *RegistrationTokenCodec) Issue(identity *model.ExternalIdentity) (string, error) {
	now := c.now()
	claims := registrationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		GoogleID: identity.Subject,
		Email:    identity.Email,
		Name:     identity.Name,
		Picture:  identity.Picture,
		Type:     registrationTokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign registration token: %w", err)
	}

	return signed, nil
}

// Verify は登録トークンを検証し、運ばれてきたGoogleプロフィールを返す。
// 署名不一致・形式不正・用途不一致はINVALID_TOKEN、期限切れはTOKEN_EXPIRED。
// どちらもユーザー向けメッセージは同一で、外部から原因は区別できない。
func (c *RegistrationTokenCodec) Verify(token string) (*model.ExternalIdentity, error) {
	var claims registrationClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, model.NewInvalidRegistrationTokenError()
	}

	if claims.Type != registrationTokenType || claims.GoogleID == "" || claims.Email == "" {
		return nil, model.NewInvalidRegistrationTokenError()
	}

	if claims.ExpiresAt == nil {
		return nil, model.NewInvalidRegistrationTokenError()
	}
	if !claims.ExpiresAt.Time.After(c.now()) {
		return nil, model.NewRegistrationTokenExpiredError()
	}

	return &model.ExternalIdentity{
		Subject: claims.GoogleID,
		Email:   claims.Email,
		// トークンは検証済みメールに対してのみ発行される
		EmailVerified: true,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
