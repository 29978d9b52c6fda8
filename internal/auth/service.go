// Package auth は認証フロー（パスワード認証・Google OAuth）とトークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nathanael10142/Campusos/internal/metrics"
	"github.com/nathanael10142/Campusos/internal/model"
	"github.com/nathanael10142/Campusos/internal/repository"
	"github.com/nathanael10142/Campusos/internal/security"
)

// Service はパスワード認証・トークンリフレッシュ・アカウント参照の
// ビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	hasher    CredentialHasher
	issuer    *TokenIssuer
	sanitizer security.ProfileSanitizerService
	metrics   metrics.MetricsCollector
	bonus     float64 // 登録時のBateraコインボーナス
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	hasher CredentialHasher,
	issuer *TokenIssuer,
	sanitizer security.ProfileSanitizerService,
	collector metrics.MetricsCollector,
	bonus float64,
) *Service {
	return &Service{
		accounts:  accounts,
		hasher:    hasher,
		issuer:    issuer,
		sanitizer: sanitizer,
		metrics:   collector,
		bonus:     bonus,
		now:       time.Now,
	}
}

// Register はemail・パスワードで新規アカウントを作成し、トークンを発行する。
func (s *Service) Register(ctx context.Context, input *model.RegisterInput, device string) (*model.TokenResponse, error) {
	// 1. 入力を検証
	if err := validateRegisterInput(input); err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeValidationFailed)
		return nil, err
	}

	// 2. パスワードをハッシュ化（72バイト超はここで弾かれる）
	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordAuthFailure(apiErr.Code)
			return nil, err
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// 3. アカウントを作成（emailの重複は一意制約が弾く）
	now := s.now()
	account := &model.Account{
		ID:            uuid.New().String(),
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash:  &digest,
		FullName:      s.sanitizer.Sanitize(input.FullName),
		Phone:         strings.TrimSpace(input.Phone),
		Faculty:       input.Faculty,
		AcademicLevel: input.AcademicLevel,
		Role:          model.RoleStudent,
		Status:        model.StatusActive,
		BateraCoins:   s.bonus,
		DeviceID:      device,
		CreatedAt:     now,
		LastLogin:     &now,
	}
	if studentID := strings.TrimSpace(input.StudentID); studentID != "" {
		account.StudentID = &studentID
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			s.metrics.RecordAuthFailure(model.ErrCodeEmailTaken)
			slog.Warn("duplicate registration rejected", slog.String("email", account.Email))
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// 4. トークンを発行
	creds, err := s.issuer.Issue(account, device)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credentials: %w", err)
	}

	s.metrics.RecordRegistration(metrics.MethodPassword)
	slog.Info("new user registered",
		slog.String("account_id", account.ID),
		slog.String("faculty", string(account.Faculty)),
	)

	return model.NewTokenResponse(creds, account), nil
}

// Login はemail・パスワードを検証し、トークンを発行する。
// email未登録とパスワード不一致は同一のINVALID_CREDENTIALSエラーになる。
func (s *Service) Login(ctx context.Context, email, password, device string) (*model.TokenResponse, error) {
	// 1. アカウントを検索
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil || !account.HasPassword() {
		// Google専用アカウントもパスワード不一致と同じ応答にする
		s.metrics.RecordAuthFailure(model.ErrCodeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	// 2. パスワードを検証
	ok, err := s.hasher.Verify(password, *account.PasswordHash)
	if err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeMalformedDigest)
		slog.Error("stored password digest is malformed", slog.String("account_id", account.ID))
		return nil, err
	}
	if !ok {
		s.metrics.RecordAuthFailure(model.ErrCodeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}

	// 3. アカウント状態を確認
	if err := ensureActive(account); err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeAccountDisabled)
		return nil, err
	}

	warnDeviceMismatch(account, device)

	// 4. トークンを発行し、ログイン記録を更新
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

	s.metrics.RecordLogin(metrics.MethodPassword)
	slog.Info("user logged in", slog.String("account_id", account.ID))

	return model.NewTokenResponse(creds, account), nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンを発行する。
// リフレッシュトークン自体は再発行しない（有効期限まで使い続ける）。
func (s *Service) Refresh(ctx context.Context, refreshToken, device string) (*model.TokenResponse, error) {
	// 1. リフレッシュトークンを検証
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeInvalidRefreshToken)
		return nil, err
	}

	// 2. アカウントの現在の状態を確認（発行後の停止・削除を反映する）
	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		s.metrics.RecordAuthFailure(model.ErrCodeInvalidRefreshToken)
		return nil, model.NewInvalidRefreshTokenError()
	}
	if err := ensureActive(account); err != nil {
		s.metrics.RecordAuthFailure(model.ErrCodeAccountDisabled)
		return nil, err
	}

	if device != "" && claims.Device != "" && claims.Device != device {
		slog.Warn("refresh from unrecognized device",
			slog.String("account_id", account.ID),
			slog.String("token_device", claims.Device),
			slog.String("device", device),
		)
	}

	// 3. アクセストークンのみ再発行
	access, err := s.issuer.IssueAccess(account, device)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	s.metrics.RecordTokenRefresh()

	return &model.TokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

// CurrentAccount はアクセストークンのsubjectに対応するアカウント情報を返す。
func (s *Service) CurrentAccount(ctx context.Context, accountID string) (*model.UserResponse, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return model.NewUserResponse(account), nil
}

// Avatar はキャッシュ済みアバター画像とMIMEタイプを返す。
// キャッシュがない場合は (nil, "", nil) を返す。
func (s *Service) Avatar(ctx context.Context, accountID string) ([]byte, string, error) {
	data, mimeType, err := s.accounts.FindAvatar(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find avatar: %w", err)
	}
	return data, mimeType, nil
}

// validateRegisterInput はパスワード登録の入力を検証する。
func validateRegisterInput(input *model.RegisterInput) error {
	if input == nil {
		return model.NewValidationError("corps de requête manquant")
	}

	email := strings.TrimSpace(input.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.NewValidationError("email invalide")
	}

	if len(input.Password) < 8 {
		return model.NewValidationError("mot de passe trop court (minimum 8 caractères)")
	}

	fullName := strings.TrimSpace(input.FullName)
	if utf8.RuneCountInString(fullName) < 3 {
		return model.NewValidationError("nom complet trop court (minimum 3 caractères)")
	}
	if utf8.RuneCountInString(fullName) > 100 {
		return model.NewValidationError("nom complet trop long (maximum 100 caractères)")
	}

	if strings.TrimSpace(input.Phone) == "" {
		return model.NewValidationError("téléphone requis")
	}
	if !input.Faculty.IsValid() {
		return model.NewValidationError("faculté invalide")
	}
	if !input.AcademicLevel.IsValid() {
		return model.NewValidationError("niveau académique invalide")
	}

	return nil
}

// ensureActive はアカウントがログイン可能な状態かを確認する。
func ensureActive(account *model.Account) error {
	if account.Status != model.StatusActive {
		slog.Warn("login attempt on disabled account",
			slog.String("account_id", account.ID),
			slog.String("status", string(account.Status)),
		)
		return model.NewAccountDisabledError(account.Status)
	}
	return nil
}

// warnDeviceMismatch は前回と異なる端末からのログインを記録する。
// 記録のみで、ログインは拒否しない。
func warnDeviceMismatch(account *model.Account, device string) {
	if device == "" || account.DeviceID == "" || account.DeviceID == device {
		return
	}
	slog.Warn("login from unrecognized device",
		slog.String("account_id", account.ID),
		slog.String("last_device", account.DeviceID),
		slog.String("device", device),
	)
}
