package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nathanael10142/Campusos/internal/metrics"
	"github.com/nathanael10142/Campusos/internal/model"
	"github.com/nathanael10142/Campusos/internal/repository"
)

// --- モック定義 ---

type mockOAuthProvider struct {
	authorizationURLFn func(state string) string
	exchangeCodeFn     func(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

func (m *mockOAuthProvider) AuthorizationURL(state string) string {
	if m.authorizationURLFn != nil {
		return m.authorizationURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.ExternalIdentity, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

var _ OAuthProvider = (*mockOAuthProvider)(nil)

// --- テストヘルパー ---

// googleBonus はGoogle登録時のBateraコインボーナス。パスワード登録より多い。
const googleBonus = 10.0

func newTestOAuthService(repo repository.AccountRepository, provider OAuthProvider) (*OAuthService, *mockMetrics) {
	collector := &mockMetrics{}
	svc := NewOAuthService(
		provider,
		NewStateTokenCodec(testStateSecret, 10*time.Minute),
		NewRegistrationTokenCodec(testRegistrationSecret, 30*time.Minute),
		newTestIssuer(),
		NewIdentityResolver(repo, &mockAvatarFetcher{}),
		repo,
		&mockAvatarFetcher{},
		&mockSanitizer{},
		collector,
		googleBonus,
	)
	return svc, collector
}

func validAdditionalInfo() *model.AdditionalInfo {
	return &model.AdditionalInfo{
		Phone:         "+243 991 234 567",
		Faculty:       model.FacultyInformatique,
		AcademicLevel: model.LevelL3,
	}
}

// issueTestState はサービスのコーデックで有効なstateを発行する。
func issueTestState(t *testing.T, svc *OAuthService) string {
	t.Helper()
	state, err := svc.states.Issue("")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return state
}

// --- Start ---

func TestStart_EmbedsVerifiableState(t *testing.T) {
	var captured string
	provider := &mockOAuthProvider{
		authorizationURLFn: func(state string) string {
			captured = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc, _ := newTestOAuthService(&mockAccountRepo{}, provider)

	authURL, err := svc.Start("")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if authURL == "" {
		t.Fatal("expected non-empty authorization URL")
	}
	if captured == "" {
		t.Fatal("expected state to be passed to the provider")
	}

	// 発行されたstateは自身のコーデックで検証できること
	st, err := svc.states.Verify(captured)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if st.RedirectURI != "" {
		t.Errorf("redirectURI = %q, want empty", st.RedirectURI)
	}
}

func TestStart_CarriesRedirectURI(t *testing.T) {
	var captured string
	provider := &mockOAuthProvider{
		authorizationURLFn: func(state string) string {
			captured = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc, _ := newTestOAuthService(&mockAccountRepo{}, provider)

	if _, err := svc.Start("https://campus.unigom.cd/dashboard"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	st, err := svc.states.Verify(captured)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if st.RedirectURI != "https://campus.unigom.cd/dashboard" {
		t.Errorf("redirectURI = %q, want %q", st.RedirectURI, "https://campus.unigom.cd/dashboard")
	}
}

// --- Callback ---

// TestCallback_InvalidState はstate検証がコード交換より先に行われることを検証する。
func TestCallback_InvalidState_ReturnsError(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			t.Error("ExchangeCode must not be called with an invalid state")
			return nil, nil
		},
	}
	svc, collector := newTestOAuthService(&mockAccountRepo{}, provider)

	_, _, err := svc.Callback(context.Background(), "code-123", "state-forge", "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
	assertFailureRecorded(t, collector, model.ErrCodeInvalidState)
}

func TestCallback_ExpiredState_ReturnsError(t *testing.T) {
	svc, _ := newTestOAuthService(&mockAccountRepo{}, &mockOAuthProvider{})

	state := issueTestState(t, svc)
	svc.states.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, _, err := svc.Callback(context.Background(), "code-123", state, "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
}

// TestCallback_ProviderError はGoogleとの交換失敗で内部詳細が漏れないことを検証する。
func TestCallback_ProviderError_ReturnsExchangeFailed(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return nil, errors.New("invalid_grant: code already redeemed")
		},
	}
	svc, collector := newTestOAuthService(&mockAccountRepo{}, provider)

	_, _, err := svc.Callback(context.Background(), "code-vole", issueTestState(t, svc), "")
	assertAPIErrorCode(t, err, model.ErrCodeProviderExchangeFailed)
	assertFailureRecorded(t, collector, model.ErrCodeProviderExchangeFailed)

	// プロバイダ由来の文言が混ざらないこと
	if strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("provider detail leaked into error: %v", err)
	}
	// 交換レイテンシは失敗時も記録されること
	if collector.exchanges != 1 {
		t.Errorf("exchange latency recorded %d times, want 1", collector.exchanges)
	}
}

func TestCallback_UnverifiedEmail_Rejected(t *testing.T) {
	identity := testGoogleIdentity()
	identity.EmailVerified = false

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return identity, nil
		},
	}
	repo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			t.Error("account lookup must not happen for unverified email")
			return nil, nil
		},
	}
	svc, collector := newTestOAuthService(repo, provider)

	tokens, pending, err := svc.Callback(context.Background(), "code-123", issueTestState(t, svc), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnverifiedEmail)
	assertFailureRecorded(t, collector, model.ErrCodeUnverifiedEmail)
	if tokens != nil || pending != nil {
		t.Error("expected neither tokens nor pending registration")
	}
}

func TestCallback_ExistingGoogleAccount_LogsIn(t *testing.T) {
	ctx := context.Background()

	account := testAccount()
	googleID := "google-sub-112233"
	account.GoogleID = &googleID

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			if code != "code-123" {
				t.Errorf("code = %q, want %q", code, "code-123")
			}
			identity := testGoogleIdentity()
			identity.Picture = ""
			return identity, nil
		},
	}
	repo := &mockAccountRepo{
		findByGoogleIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return account, nil
		},
	}
	svc, collector := newTestOAuthService(repo, provider)

	tokens, pending, err := svc.Callback(ctx, "code-123", issueTestState(t, svc), "device-abc")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if pending != nil {
		t.Error("expected no pending registration for existing account")
	}
	if tokens == nil {
		t.Fatal("expected token response")
	}
	if tokens.User == nil || tokens.User.ID != account.ID {
		t.Errorf("expected user %q in response", account.ID)
	}

	claims, err := svc.issuer.ParseAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if claims.AccountID != account.ID {
		t.Errorf("accountID = %q, want %q", claims.AccountID, account.ID)
	}

	if len(collector.logins) != 1 || collector.logins[0] != metrics.MethodGoogle {
		t.Errorf("logins = %v, want [%q]", collector.logins, metrics.MethodGoogle)
	}
}

// TestCallback_EmailLink はパスワード登録済みアカウントへの初回Googleログインで
// google_idがリンクされ、既存の認証手段が保持されることを検証する。
func TestCallback_ExistingEmailAccount_LinksAndLogsIn(t *testing.T) {
	ctx := context.Background()

	account := testAccount()
	account.PasswordHash = hashFor(t, "motdepasse123")
	storedHash := *account.PasswordHash

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			identity := testGoogleIdentity()
			identity.Picture = ""
			return identity, nil
		},
	}
	var linkedGoogleID string
	repo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return account, nil
		},
		linkGoogleIDFn: func(ctx context.Context, accountID, googleID string) error {
			linkedGoogleID = googleID
			return nil
		},
	}
	svc, _ := newTestOAuthService(repo, provider)

	tokens, pending, err := svc.Callback(ctx, "code-123", issueTestState(t, svc), "")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if pending != nil {
		t.Error("expected no pending registration when linking")
	}
	if tokens == nil {
		t.Fatal("expected token response")
	}
	if linkedGoogleID != "google-sub-112233" {
		t.Errorf("linked google_id = %q, want %q", linkedGoogleID, "google-sub-112233")
	}
	if account.PasswordHash == nil || *account.PasswordHash != storedHash {
		t.Error("linking must preserve the password hash")
	}
}

func TestCallback_ConflictingIdentity_ReturnsError(t *testing.T) {
	account := testAccount()
	otherGoogleID := "google-sub-999999"
	account.GoogleID = &otherGoogleID

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return testGoogleIdentity(), nil
		},
	}
	repo := &mockAccountRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.Account, error) {
			return account, nil
		},
	}
	svc, collector := newTestOAuthService(repo, provider)

	_, _, err := svc.Callback(context.Background(), "code-123", issueTestState(t, svc), "")
	assertAPIErrorCode(t, err, model.ErrCodeConflictingIdentity)
	assertFailureRecorded(t, collector, model.ErrCodeConflictingIdentity)
}

func TestCallback_DisabledAccount_ReturnsError(t *testing.T) {
	account := testAccount()
	googleID := "google-sub-112233"
	account.GoogleID = &googleID
	account.Status = model.StatusFrozen

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			identity := testGoogleIdentity()
			identity.Picture = ""
			return identity, nil
		},
	}
	repo := &mockAccountRepo{
		findByGoogleIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return account, nil
		},
	}
	svc, _ := newTestOAuthService(repo, provider)

	_, _, err := svc.Callback(context.Background(), "code-123", issueTestState(t, svc), "")
	assertAPIErrorCode(t, err, model.ErrCodeAccountDisabled)
}

// TestCallback_NewUser は未登録ユーザーにアカウントを作らず、
// 登録トークンだけを返すことを検証する。
func TestCallback_NewUser_ReturnsPendingRegistration(t *testing.T) {
	ctx := context.Background()

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return testGoogleIdentity(), nil
		},
	}
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			t.Error("Create must not be called before registration is completed")
			return nil
		},
	}
	svc, _ := newTestOAuthService(repo, provider)

	tokens, pending, err := svc.Callback(ctx, "code-123", issueTestState(t, svc), "")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if tokens != nil {
		t.Error("expected no tokens for an unregistered user")
	}
	if pending == nil {
		t.Fatal("expected pending registration")
	}

	if pending.Status != "needs_completion" {
		t.Errorf("status = %q, want %q", pending.Status, "needs_completion")
	}
	if pending.Message == "" {
		t.Error("expected non-empty message")
	}
	if pending.UserInfo == nil {
		t.Fatal("expected user info snapshot")
	}
	if pending.UserInfo.Email != "etudiant@unigom.cd" {
		t.Errorf("snapshot email = %q, want %q", pending.UserInfo.Email, "etudiant@unigom.cd")
	}
	if pending.UserInfo.Name != "Jean Kalombo" {
		t.Errorf("snapshot name = %q, want %q", pending.UserInfo.Name, "Jean Kalombo")
	}

	// 登録トークンはGoogleプロフィールを運んでいること
	identity, err := svc.regTokens.Verify(pending.GoogleToken)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.Subject != "google-sub-112233" {
		t.Errorf("token subject = %q, want %q", identity.Subject, "google-sub-112233")
	}
	if identity.Email != "etudiant@unigom.cd" {
		t.Errorf("token email = %q, want %q", identity.Email, "etudiant@unigom.cd")
	}
}

func TestCallback_SanitizesProfileName(t *testing.T) {
	ctx := context.Background()

	identity := testGoogleIdentity()
	identity.Name = "Jean<img src=x> Kalombo"

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return identity, nil
		},
	}
	collector := &mockMetrics{}
	repo := &mockAccountRepo{}
	svc := NewOAuthService(
		provider,
		NewStateTokenCodec(testStateSecret, 10*time.Minute),
		NewRegistrationTokenCodec(testRegistrationSecret, 30*time.Minute),
		newTestIssuer(),
		NewIdentityResolver(repo, &mockAvatarFetcher{}),
		repo,
		&mockAvatarFetcher{},
		&mockSanitizer{sanitizeFn: func(raw string) string {
			return strings.ReplaceAll(raw, "<img src=x>", "")
		}},
		collector,
		googleBonus,
	)

	_, pending, err := svc.Callback(ctx, "code-123", issueTestState(t, svc), "")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if pending.UserInfo.Name != "Jean Kalombo" {
		t.Errorf("snapshot name = %q, want sanitized %q", pending.UserInfo.Name, "Jean Kalombo")
	}
}

// --- Complete ---

func TestComplete_CreatesGoogleAccount(t *testing.T) {
	ctx := context.Background()

	var created *model.Account
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			created = account
			return nil
		},
	}
	svc, collector := newTestOAuthService(repo, &mockOAuthProvider{})

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	info := validAdditionalInfo()
	info.StudentID = "UG2023-0042"

	tokens, err := svc.Complete(ctx, regToken, info, "device-abc")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if tokens == nil || tokens.AccessToken == "" {
		t.Fatal("expected token response")
	}

	if created == nil {
		t.Fatal("expected account to be created")
	}
	// 身元はトークン由来、追加情報はリクエスト由来であること
	if created.Email != "etudiant@unigom.cd" {
		t.Errorf("email = %q, want %q", created.Email, "etudiant@unigom.cd")
	}
	if created.GoogleID == nil || *created.GoogleID != "google-sub-112233" {
		t.Error("expected google_id from the registration token")
	}
	if created.PasswordHash != nil {
		t.Error("google registration must not set a password hash")
	}
	if created.FullName != "Jean Kalombo" {
		t.Errorf("fullName = %q, want %q", created.FullName, "Jean Kalombo")
	}
	if created.Phone != "+243 991 234 567" {
		t.Errorf("phone = %q, want %q", created.Phone, "+243 991 234 567")
	}
	if created.Faculty != model.FacultyInformatique {
		t.Errorf("faculty = %q, want %q", created.Faculty, model.FacultyInformatique)
	}
	if created.AcademicLevel != model.LevelL3 {
		t.Errorf("academicLevel = %q, want %q", created.AcademicLevel, model.LevelL3)
	}
	if created.StudentID == nil || *created.StudentID != "UG2023-0042" {
		t.Errorf("studentID = %v, want %q", created.StudentID, "UG2023-0042")
	}
	if created.BateraCoins != googleBonus {
		t.Errorf("bateraCoins = %v, want %v", created.BateraCoins, googleBonus)
	}
	if created.Role != model.RoleStudent {
		t.Errorf("role = %q, want %q", created.Role, model.RoleStudent)
	}
	if created.Status != model.StatusActive {
		t.Errorf("status = %q, want %q", created.Status, model.StatusActive)
	}
	if created.DeviceID != "device-abc" {
		t.Errorf("deviceID = %q, want %q", created.DeviceID, "device-abc")
	}

	if len(collector.registrations) != 1 || collector.registrations[0] != metrics.MethodGoogle {
		t.Errorf("registrations = %v, want [%q]", collector.registrations, metrics.MethodGoogle)
	}
}

func TestComplete_CachesAvatar(t *testing.T) {
	ctx := context.Background()

	var storedURL string
	var storedData []byte
	repo := &mockAccountRepo{
		updateAvatarFn: func(ctx context.Context, accountID, avatarURL string, data []byte, mimeType string) error {
			storedURL = avatarURL
			storedData = data
			return nil
		},
	}
	collector := &mockMetrics{}
	fetcher := &mockAvatarFetcher{
		fetchAvatarFn: func(ctx context.Context, avatarURL string) ([]byte, string, error) {
			return []byte{0x89, 0x50, 0x4E, 0x47}, "image/png", nil
		},
	}
	svc := NewOAuthService(
		&mockOAuthProvider{},
		NewStateTokenCodec(testStateSecret, 10*time.Minute),
		NewRegistrationTokenCodec(testRegistrationSecret, 30*time.Minute),
		newTestIssuer(),
		NewIdentityResolver(repo, fetcher),
		repo,
		fetcher,
		&mockSanitizer{},
		collector,
		googleBonus,
	)

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := svc.Complete(ctx, regToken, validAdditionalInfo(), ""); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if storedURL != "https://lh3.googleusercontent.com/a/photo" {
		t.Errorf("stored avatar URL = %q, want the google picture URL", storedURL)
	}
	if len(storedData) != 4 {
		t.Errorf("stored avatar = %d bytes, want 4", len(storedData))
	}
}

func TestComplete_InvalidToken_ReturnsError(t *testing.T) {
	svc, collector := newTestOAuthService(&mockAccountRepo{}, &mockOAuthProvider{})

	_, err := svc.Complete(context.Background(), "pas-un-jwt", validAdditionalInfo(), "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidToken)
	assertFailureRecorded(t, collector, model.ErrCodeInvalidToken)
}

func TestComplete_ExpiredToken_ReturnsError(t *testing.T) {
	svc, _ := newTestOAuthService(&mockAccountRepo{}, &mockOAuthProvider{})

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// 登録トークンのTTL（30分）経過後
	svc.regTokens.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	_, err = svc.Complete(context.Background(), regToken, validAdditionalInfo(), "")
	assertAPIErrorCode(t, err, model.ErrCodeTokenExpired)
}

func TestComplete_MissingInfo_ReturnsIncompleteRegistration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(info *model.AdditionalInfo)
	}{
		{name: "電話番号なし", mutate: func(i *model.AdditionalInfo) { i.Phone = "  " }},
		{name: "学部なし", mutate: func(i *model.AdditionalInfo) { i.Faculty = "" }},
		{name: "学部が不正", mutate: func(i *model.AdditionalInfo) { i.Faculty = "Astrologie" }},
		{name: "学年なし", mutate: func(i *model.AdditionalInfo) { i.AcademicLevel = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockAccountRepo{
				createFn: func(ctx context.Context, account *model.Account) error {
					t.Error("Create must not be called with incomplete info")
					return nil
				},
			}
			svc, collector := newTestOAuthService(repo, &mockOAuthProvider{})

			regToken, err := svc.regTokens.Issue(testGoogleIdentity())
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}

			info := validAdditionalInfo()
			tt.mutate(info)

			_, err = svc.Complete(context.Background(), regToken, info, "")
			assertAPIErrorCode(t, err, model.ErrCodeIncompleteRegistration)
			assertFailureRecorded(t, collector, model.ErrCodeIncompleteRegistration)
		})
	}
}

func TestComplete_NilInfo_ReturnsIncompleteRegistration(t *testing.T) {
	svc, _ := newTestOAuthService(&mockAccountRepo{}, &mockOAuthProvider{})

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Complete(context.Background(), regToken, nil, "")
	assertAPIErrorCode(t, err, model.ErrCodeIncompleteRegistration)
}

// TestComplete_Replay は消費済みトークンの再利用がストアの一意制約で
// DUPLICATE_REGISTRATIONになることを検証する。
func TestComplete_Replay_ReturnsDuplicateRegistration(t *testing.T) {
	ctx := context.Background()

	// 1回目は成功、2回目以降は一意制約違反を返すストア
	callCount := 0
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			callCount++
			if callCount == 1 {
				return nil
			}
			return fmt.Errorf("insert account: %w", model.ErrDuplicateGoogleID)
		},
	}
	svc, collector := newTestOAuthService(repo, &mockOAuthProvider{})

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := svc.Complete(ctx, regToken, validAdditionalInfo(), ""); err != nil {
		t.Fatalf("first Complete() error = %v", err)
	}

	// トークン自体はまだ有効期限内だが、再利用は重複登録になる
	_, err = svc.Complete(ctx, regToken, validAdditionalInfo(), "")
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateRegistration)
	assertFailureRecorded(t, collector, model.ErrCodeDuplicateRegistration)
}

func TestComplete_DuplicateEmail_ReturnsDuplicateRegistration(t *testing.T) {
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			return fmt.Errorf("insert account: %w", model.ErrDuplicateEmail)
		},
	}
	svc, _ := newTestOAuthService(repo, &mockOAuthProvider{})

	regToken, err := svc.regTokens.Issue(testGoogleIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Complete(context.Background(), regToken, validAdditionalInfo(), "")
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateRegistration)
}

// --- フロー全体 ---

// TestOAuthFlow_NewUserEndToEnd は開始→コールバック→登録完了の
// 一連の流れを検証する。
func TestOAuthFlow_NewUserEndToEnd(t *testing.T) {
	ctx := context.Background()

	var state string
	provider := &mockOAuthProvider{
		authorizationURLFn: func(s string) string {
			state = s
			return "https://accounts.google.com/o/oauth2/auth?state=" + s
		},
		exchangeCodeFn: func(ctx context.Context, code string) (*model.ExternalIdentity, error) {
			return &model.ExternalIdentity{
				Subject:       "g-123",
				Email:         "Nouveau@Unigom.CD",
				EmailVerified: true,
				Name:          "Nouvel Étudiant",
			}, nil
		},
	}

	var created *model.Account
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, account *model.Account) error {
			created = account
			return nil
		},
	}
	svc, collector := newTestOAuthService(repo, provider)

	// 1. 開始: 認可URLとstateが発行される
	authURL, err := svc.Start("")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !strings.Contains(authURL, state) {
		t.Error("authorization URL must embed the state")
	}

	// 2. コールバック: 未登録なので登録トークンが返る
	tokens, pending, err := svc.Callback(ctx, "code-e2e", state, "device-e2e")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}
	if tokens != nil {
		t.Fatal("expected no tokens before completion")
	}
	if pending == nil {
		t.Fatal("expected pending registration")
	}

	// 3. 登録完了: アカウントが作成され、トークンが発行される
	info := &model.AdditionalInfo{
		Phone:         "+243 812 000 111",
		Faculty:       model.FacultyInformatique,
		AcademicLevel: model.LevelL3,
		StudentID:     "UG1",
	}
	finalTokens, err := svc.Complete(ctx, pending.GoogleToken, info, "device-e2e")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if finalTokens.AccessToken == "" || finalTokens.RefreshToken == "" {
		t.Error("expected full token pair")
	}

	if created == nil {
		t.Fatal("expected account to be created")
	}
	if created.Email != "nouveau@unigom.cd" {
		t.Errorf("email = %q, want lowercased %q", created.Email, "nouveau@unigom.cd")
	}
	if created.GoogleID == nil || *created.GoogleID != "g-123" {
		t.Error("expected google_id g-123")
	}
	if created.PasswordHash != nil {
		t.Error("google account must not have a password hash")
	}
	if created.StudentID == nil || *created.StudentID != "UG1" {
		t.Errorf("studentID = %v, want %q", created.StudentID, "UG1")
	}

	// Google登録ボーナスはパスワード登録より多いこと
	if created.BateraCoins != googleBonus {
		t.Errorf("bateraCoins = %v, want %v", created.BateraCoins, googleBonus)
	}
	if googleBonus <= passwordBonus {
		t.Errorf("google bonus %v must exceed password bonus %v", googleBonus, passwordBonus)
	}

	if len(collector.registrations) != 1 || collector.registrations[0] != metrics.MethodGoogle {
		t.Errorf("registrations = %v, want [%q]", collector.registrations, metrics.MethodGoogle)
	}
}
