// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。メッセージはプロダクト言語（フランス語）。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, oauth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidState           = "INVALID_STATE"
	ErrCodeProviderExchangeFailed = "PROVIDER_EXCHANGE_FAILED"
	ErrCodeUnverifiedEmail        = "UNVERIFIED_EMAIL"
	ErrCodeConflictingIdentity    = "CONFLICTING_IDENTITY"
	ErrCodeInvalidToken           = "INVALID_TOKEN"
	ErrCodeTokenExpired           = "TOKEN_EXPIRED"
	ErrCodeIncompleteRegistration = "INCOMPLETE_REGISTRATION"
	ErrCodeDuplicateRegistration  = "DUPLICATE_REGISTRATION"
	ErrCodeInvalidRefreshToken    = "INVALID_REFRESH_TOKEN"
	ErrCodePasswordTooLong        = "PASSWORD_TOO_LONG"
	ErrCodeMalformedDigest        = "MALFORMED_DIGEST"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken             = "EMAIL_TAKEN"
	ErrCodeAccountDisabled        = "ACCOUNT_DISABLED"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeOAuthNotConfigured     = "OAUTH_NOT_CONFIGURED"
	ErrCodeRateLimited            = "RATE_LIMITED"
)

// リポジトリ層の一意制約違反センチネル。
// サービス層が errors.Is で判別し、文脈に応じたAPIErrorへ変換する。
var (
	// ErrDuplicateEmail はemail一意制約違反を表す。
	ErrDuplicateEmail = errors.New("account email already exists")
	// ErrDuplicateGoogleID はgoogle_id一意制約違反を表す。
	ErrDuplicateGoogleID = errors.New("account google id already exists")
)

// NewInvalidStateError はstateトークン検証失敗エラーを生成する。
// 署名不一致・形式不正・期限切れのいずれでも同一メッセージを返す（オラクル回避）。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "Session expirée. Veuillez recommencer.",
		Category: "oauth",
		Action:   "Relancez la connexion Google depuis le début.",
	}
}

// NewProviderExchangeError はGoogleとのコード交換失敗エラーを生成する。
// プロバイダ内部の詳細は含めない。
func NewProviderExchangeError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderExchangeFailed,
		Message:  "Erreur lors de l'authentification Google. Nathanael a été notifié.",
		Category: "oauth",
		Action:   "Patientez quelques instants puis relancez la connexion Google.",
	}
}

// NewUnverifiedEmailError は未検証メールの拒否エラーを生成する。
func NewUnverifiedEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeUnverifiedEmail,
		Message:  "Votre adresse email Google n'est pas vérifiée.",
		Category: "oauth",
		Action:   "Vérifiez votre adresse email auprès de Google puis réessayez.",
	}
}

// NewConflictingIdentityError はGoogle ID競合エラーを生成する。
// 自動マージは行わない。
func NewConflictingIdentityError() *APIError {
	return &APIError{
		Code:     ErrCodeConflictingIdentity,
		Message:  "Un autre compte Google est déjà associé à cet email.",
		Category: "oauth",
		Action:   "Contactez l'administrateur pour résoudre le conflit de comptes.",
	}
}

// NewInvalidRegistrationTokenError は登録トークン検証失敗エラーを生成する。
func NewInvalidRegistrationTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Token invalide ou expiré. Veuillez recommencer l'authentification Google.",
		Category: "oauth",
		Action:   "Relancez la connexion Google depuis le début.",
	}
}

// NewRegistrationTokenExpiredError は登録トークン期限切れエラーを生成する。
// ユーザー向けメッセージは検証失敗と同一にする。
func NewRegistrationTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Token invalide ou expiré. Veuillez recommencer l'authentification Google.",
		Category: "oauth",
		Action:   "Relancez la connexion Google depuis le début.",
	}
}

// NewIncompleteRegistrationError は登録情報不足エラーを生成する。
func NewIncompleteRegistrationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeIncompleteRegistration,
		Message:  fmt.Sprintf("Informations d'inscription incomplètes: %s.", field),
		Category: "validation",
		Action:   "Renseignez le téléphone, la faculté et le niveau académique.",
	}
}

// NewDuplicateRegistrationError は消費済み登録トークンの再利用エラーを生成する。
func NewDuplicateRegistrationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRegistration,
		Message:  "Un compte existe déjà avec cet email.",
		Category: "oauth",
		Action:   "Connectez-vous avec votre compte existant.",
	}
}

// NewInvalidRefreshTokenError はリフレッシュトークン検証失敗エラーを生成する。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "Session expirée. Veuillez vous reconnecter.",
		Category: "auth",
		Action:   "Connectez-vous à nouveau.",
	}
}

// NewPasswordTooLongError はパスワード長超過エラーを生成する。
func NewPasswordTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooLong,
		Message:  "Le mot de passe dépasse la longueur maximale autorisée (72 octets).",
		Category: "validation",
		Action:   "Choisissez un mot de passe plus court.",
	}
}

// NewMalformedDigestError は保存済みダイジェスト不正エラーを生成する。
func NewMalformedDigestError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedDigest,
		Message:  "Erreur de calcul dans le noyau Batera v15. Nathanael a été notifié.",
		Category: "system",
		Action:   "Patientez quelques instants puis réessayez.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メール未登録とパスワード不一致で同一メッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Email ou mot de passe incorrect. Le système Batera n'a pas reconnu vos identifiants.",
		Category: "auth",
		Action:   "Vérifiez votre email et votre mot de passe.",
	}
}

// NewEmailTakenError はemail重複登録エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Cet email est déjà utilisé. Le système Batera a détecté un doublon.",
		Category: "validation",
		Action:   "Connectez-vous ou utilisez un autre email.",
	}
}

// NewAccountDisabledError はアカウント停止状態エラーを生成する。
func NewAccountDisabledError(status UserStatus) *APIError {
	return &APIError{
		Code:     ErrCodeAccountDisabled,
		Message:  fmt.Sprintf("Votre compte est %s. Contactez l'administrateur.", status),
		Category: "auth",
		Action:   "Contactez l'administrateur de Campus OS.",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("Données invalides: %s.", reason),
		Category: "validation",
		Action:   "Corrigez les champs indiqués puis réessayez.",
	}
}

// NewUnauthorizedError は認証必須エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentification requise.",
		Category: "auth",
		Action:   "Connectez-vous pour accéder à cette ressource.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Utilisateur non trouvé.",
		Category: "auth",
		Action:   "Connectez-vous à nouveau.",
	}
}

// NewOAuthNotConfiguredError はOAuth未設定エラーを生成する。
func NewOAuthNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthNotConfigured,
		Message:  "Google OAuth n'est pas configuré. Contactez l'administrateur.",
		Category: "system",
		Action:   "Utilisez l'inscription par email en attendant.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Trop de requêtes. Veuillez réessayer plus tard.",
		Category: "system",
		Action:   "Patientez le délai indiqué puis réessayez.",
	}
}
