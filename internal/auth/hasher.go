package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/nathanael10142/Campusos/internal/model"
)

// MaxPasswordBytes はbcryptが処理できるパスワードの最大バイト長。
// これを超える入力はハッシュ化前に拒否する（bcrypt側の切り詰めに頼らない）。
const MaxPasswordBytes = 72

// CredentialHasher はパスワードのハッシュ化と検証を提供する。
type CredentialHasher interface {
	// Hash はパスワードをハッシュ化して自己記述形式のダイジェストを返す。
	// UTF-8バイト長が72を超える場合はPASSWORD_TOO_LONGエラーを返す。
	Hash(password string) (string, error)

	// Verify はパスワードとダイジェストを定数時間で比較する。
	// 不一致は (false, nil)。エラーはダイジェスト形式不正の場合のみ返す。
	Verify(password, digest string) (bool, error)
}

// BcryptHasher はbcryptによるCredentialHasherの実装。
type BcryptHasher struct {
	cost int
}

// compile-time interface check
var _ CredentialHasher = (*BcryptHasher)(nil)

// NewBcryptHasher はデフォルトコストのBcryptHasherを生成する。
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

// Hash はパスワードをbcryptでハッシュ化する。
func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", model.NewPasswordTooLongError()
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(digest), nil
}

// Verify はパスワードがダイジェストに一致するかを返す。
// 72バイト超のパスワードは発行し得ないため常に不一致として扱う。
func (h *BcryptHasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		// ダイジェスト形式の不正（保存データ破損など）
		return false, model.NewMalformedDigestError()
	}
}
