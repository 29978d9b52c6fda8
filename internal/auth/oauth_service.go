package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nathanael10142/Campusos/internal/metrics"
	"github.com/nathanael10142/Campusos/internal/model"
	"github.com/nathanael10142/Campusos/internal/repository"
	"github.com/nathanael10142/Campusos/internal/security"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 現状はGoogleのみだが、将来的に複数IdPへ対応するための抽象化。
type OAuthProvider interface {
	// AuthorizationURL はstateを埋め込んだ認可URLを生成する。
	AuthorizationURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

// OAuthService はGoogle OAuthログイン・アカウントリンク・登録完了の
// ビジネスロジックを提供する。
type OAuthService struct {
	provider  OAuthProvider
	states    *StateTokenCodec
	regTokens *RegistrationTokenCodec
	issuer    *TokenIssuer
	resolver  *IdentityResolver
	accounts  repository.AccountRepository
	avatars   security.AvatarFetcherService
	sanitizer security.ProfileSanitizerService
	metrics   metrics.MetricsCollector
	bonus     float64 // OAuth登録時のBateraコインボーナス
	now       func() time.Time
}

// NewOAuthService はOAuthServiceを生成する。
func NewOAuthService(
	provider OAuthProvider,
	states *StateTokenCodec,
	regTokens *RegistrationTokenCodec,
	issuer *TokenIssuer,
	resolver *IdentityResolver,
	accounts repository.AccountRepository,
	avatars security.AvatarFetcherService,
	sanitizer security.ProfileSanitizerService,
	collector metrics.MetricsCollector,
	bonus float64,
) *OAuthService {
	return &OAuthService{
		provider:  provider,
		states:    states,
		regTokens: regTokens,
		issuer:    issuer,
		resolver:  resolver,
		accounts:  accounts,
		avatars:   avatars,
		sanitizer: sanitizer,
		metrics:   collector,
		bonus:     bonus,
		now:       time.Now,
	}
}

// Start はOAuthフローを開始し、Googleの認可URLを返す。
// redirectURIはログイン完了後の戻り先としてstateに埋め込む（任意）。
func (s *OAuthService) Start(redirectURI string) (string, error) {
	state, err := s.states.Issue(redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to issue state token: %w", err)
	}
	return s.provider.AuthorizationURL(state), nil
}

// Callback はOAuthコールバックを処理する。
// 既存アカウント（google_id一致またはemailリンク）ならTokenResponseを返し、
// 未登録ユーザーなら登録トークンを含むPendingRegistrationを返す。
// どちらか一方だけがnil以外になる。
func (s *OAuthService) Callback(ctx context.Context, code, state, device string) (*model.TokenResponse, *model.PendingRegistration, error) {
	// 1. stateを検証（コード交換より前に行う）
	st, err := s.states.Verify(state)
	if err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeInvalidState)
		slog.Warn("oauth state verification failed")
		return nil, nil, err
	}

	// 2. 認可コードをトークンに交換し、プロフィールを取得
	started := time.Now()
	identity, err := s.provider.ExchangeCode(ctx, code)
	s.metrics.RecordProviderExchangeLatency(time.Since(started))
	if err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeProviderExchangeFailed)
		slog.Error("oauth code exchange failed",
			slog.String("nonce", st.Nonce),
			slog.Any("error", err),
		)
		return nil, nil, model.NewProviderExchangeError()
	}

	// 3. 未検証メールは拒否（emailリンクの前提が崩れるため）
	if !identity.EmailVerified {
		s.metrics.RecordAuthFailure(model.ErrCodeUnverifiedEmail)
		slog.Warn("unverified google email rejected", slog.String("nonce", st.Nonce))
		return nil, nil, model.NewUnverifiedEmailError()
	}

	identity.Name = s.sanitizer.Sanitize(identity.Name)

	// 4. 既存アカウントへの解決（google_id → email → なし）
	account, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordAuthFailure(apiErr.Code)
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to resolve google identity: %w", err)
	}

	// 5a. 既存アカウント: ログイン
	if account != nil {
		tokenResp, err := s.login(ctx, account, device)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("user logged in via google",
			slog.String("account_id", account.ID),
			slog.String("nonce", st.Nonce),
		)
		return tokenResp, nil, nil
	}

	// 5b. 未登録ユーザー: 登録トークンを発行し、追加情報の入力を求める
	regToken, err := s.regTokens.Issue(identity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue registration token: %w", err)
	}

	slog.Info("new google user needs registration",
		slog.String("email", identity.Email),
		slog.String("nonce", st.Nonce),
	)

	pending := &model.PendingRegistration{
		Status:      "needs_completion",
		Message:     "Veuillez compléter votre inscription",
		GoogleToken: regToken,
		UserInfo: &model.PendingUserSnapshot{
			Email:   identity.Email,
			Name:    identity.Name,
			Picture: identity.Picture,
		},
	}
	return nil, pending, nil
}

// Complete は登録トークンと追加情報から新規アカウントを作成し、トークンを発行する。
// 同じトークンの再利用はストアの一意制約でDUPLICATE_REGISTRATIONになる。
func (s *OAuthService) Complete(ctx context.Context, regToken string, info *model.AdditionalInfo, device string) (*model.TokenResponse, error) {
	// 1. 登録トークンを検証
	identity, err := s.regTokens.Verify(regToken)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordAuthFailure(apiErr.Code)
		}
		return nil, err
	}

	// 2. 追加情報を検証
	if err := validateAdditionalInfo(info); err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeIncompleteRegistration)
		return nil, err
	}

	// 3. アカウントを作成（email・google_idの重複は一意制約が弾く）
	now := s.now()
	googleID := identity.Subject
	account := &model.Account{
		ID:            uuid.New().String(),
		Email:         strings.ToLower(identity.Email),
		GoogleID:      &googleID,
		FullName:      s.sanitizer.Sanitize(identity.Name),
		Phone:         strings.TrimSpace(info.Phone),
		Faculty:       info.Faculty,
		AcademicLevel: info.AcademicLevel,
		Role:          model.RoleStudent,
		Status:        model.StatusActive,
		BateraCoins:   s.bonus,
		DeviceID:      device,
		CreatedAt:     now,
		LastLogin:     &now,
	}
	if studentID := strings.TrimSpace(info.StudentID); studentID != "" {
		account.StudentID = &studentID
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) || errors.Is(err, model.ErrDuplicateGoogleID) {
			s.metrics.RecordAuthFailure(model.ErrCodeDuplicateRegistration)
			slog.Warn("duplicate google registration rejected", slog.String("email", account.Email))
			return nil, model.NewDuplicateRegistrationError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// 4. アバターを取得してキャッシュ（失敗しても登録は成立）
	refreshAvatar(ctx, s.accounts, s.avatars, account, identity.Picture)

	// 5. トークンを発行
	creds, err := s.issuer.Issue(account, device)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credentials: %w", err)
	}

	s.metrics.RecordRegistration(metrics.MethodGoogle)
	slog.Info("new user registered via google",
		slog.String("account_id", account.ID),
		slog.String("faculty", string(account.Faculty)),
	)

	return model.NewTokenResponse(creds, account), nil
}

// login は解決済みアカウントの状態を確認し、トークンを発行する。
func (s *OAuthService) login(ctx context.Context, account *model.Account, device string) (*model.TokenResponse, error) {
	if err := ensureActive(account); err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeAccountDisabled)
		return nil, err
	}

	warnDeviceMismatch(account, device)

	creds, err := s.issuer.Issue(account, device)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credentials: %w", err)
	}

	now := s.now()
	if err := s.accounts.UpdateLoginStamp(ctx, account.ID, device, now); err != nil {
		// ログイン自体は成立させる
		slog.Warn("failed to update login stamp", slog.String("account_id", account.ID), slog.Any("error", err))
	} else {
		account.DeviceID = device
		account.LastLogin = &now
	}

	s.metrics.RecordLogin(metrics.MethodGoogle)
	return model.NewTokenResponse(creds, account), nil
}

// validateAdditionalInfo は登録完了に必須の追加情報を検証する。
// student_idのみ任意。
func validateAdditionalInfo(info *model.AdditionalInfo) error {
	if info == nil {
		return model.NewIncompleteRegistrationError("téléphone, faculté, niveau académique")
	}
	if strings.TrimSpace(info.Phone) == "" {
		return model.NewIncompleteRegistrationError("téléphone")
	}
	if !info.Faculty.IsValid() {
		return model.NewIncompleteRegistrationError("faculté")
	}
	if !info.AcademicLevel.IsValid() {
		return model.NewIncompleteRegistrationError("niveau académique")
	}
	return nil
}
