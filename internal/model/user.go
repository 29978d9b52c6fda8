// Package model はドメインモデルを定義する。
package model

import "time"

// UserRole はユーザーの役割を表す。
type UserRole string

// 定義済みロール
const (
	RoleAdmin     UserRole = "admin"
	RoleStudent   UserRole = "student"
	RoleProfessor UserRole = "professor"
)

// UserStatus はアカウントの状態を表す。
type UserStatus string

// 定義済みステータス
const (
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
	StatusFrozen    UserStatus = "frozen"
	StatusPending   UserStatus = "pending"
)

// Faculty はUNIGOMの学部を表す。
type Faculty string

// 定義済み学部
const (
	FacultyDroit         Faculty = "Droit"
	FacultyEconomie      Faculty = "Sciences Économiques"
	FacultyGestion       Faculty = "Gestion"
	FacultyInformatique  Faculty = "Informatique"
	FacultyMedecine      Faculty = "Médecine"
	FacultyPolytechnique Faculty = "Polytechnique"
	FacultyAgronomie     Faculty = "Agronomie"
	FacultyAutre         Faculty = "Autre"
)

// IsValid は既知の学部かどうかを返す。
func (f Faculty) IsValid() bool {
	switch f {
	case FacultyDroit, FacultyEconomie, FacultyGestion, FacultyInformatique,
		FacultyMedecine, FacultyPolytechnique, FacultyAgronomie, FacultyAutre:
		return true
	}
	return false
}

// AcademicLevel は学年（LMD制）を表す。
type AcademicLevel string

// 定義済み学年
const (
	LevelL1 AcademicLevel = "L1"
	LevelL2 AcademicLevel = "L2"
	LevelL3 AcademicLevel = "L3"
	LevelM1 AcademicLevel = "M1"
	LevelM2 AcademicLevel = "M2"
)

// IsValid は既知の学年かどうかを返す。
func (l AcademicLevel) IsValid() bool {
	switch l {
	case LevelL1, LevelL2, LevelL3, LevelM1, LevelM2:
		return true
	}
	return false
}

// Account はCampus OSの利用者アカウントを表す。
// 認証手段は PasswordHash（ローカル認証）と GoogleID（OAuth認証）の
// 少なくとも一方が必ず存在する。両方存在する場合はリンク済みアカウント。
type Account struct {
	ID            string
	Email         string // 小文字で保存、一意
	PasswordHash  *string
	GoogleID      *string // 存在する場合は一意
	FullName      string
	Phone         string
	Faculty       Faculty
	AcademicLevel AcademicLevel
	StudentID     *string
	Role          UserRole
	Status        UserStatus
	BateraCoins   float64
	AvatarURL     *string
	DeviceID      string // 最終ログイン端末のフィンガープリント
	CreatedAt     time.Time
	LastLogin     *time.Time
}

// HasPassword はローカル認証が有効かどうかを返す。
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// ExternalIdentity はコールバック時点のGoogleプロフィールスナップショットを表す。
// そのまま永続化せず、Accountへのマージのみに使う。
type ExternalIdentity struct {
	Subject       string // Google発行の安定ID
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// AdditionalInfo は登録完了時にユーザーが入力する追加情報を表す。
type AdditionalInfo struct {
	Phone         string        `json:"phone"`
	Faculty       Faculty       `json:"faculty"`
	AcademicLevel AcademicLevel `json:"academic_level"`
	StudentID     string        `json:"student_id,omitempty"`
}

// RegisterInput はパスワード登録のリクエスト内容を表す。
type RegisterInput struct {
	Email         string        `json:"email"`
	Password      string        `json:"password"`
	FullName      string        `json:"full_name"`
	Phone         string        `json:"phone"`
	Faculty       Faculty       `json:"faculty"`
	AcademicLevel AcademicLevel `json:"academic_level"`
	StudentID     string        `json:"student_id,omitempty"`
}

// CredentialSet は発行済みのアクセストークン・リフレッシュトークンの組を表す。
type CredentialSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// UserResponse はAPIレスポンスに含めるアカウント情報を表す。
// パスワードハッシュと端末情報は含めない。
type UserResponse struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	FullName      string        `json:"full_name"`
	Phone         string        `json:"phone"`
	Faculty       Faculty       `json:"faculty"`
	AcademicLevel AcademicLevel `json:"academic_level"`
	StudentID     *string       `json:"student_id"`
	Role          UserRole      `json:"role"`
	Status        UserStatus    `json:"status"`
	BateraCoins   float64       `json:"batera_coins"`
	AvatarURL     *string       `json:"avatar_url"`
	CreatedAt     time.Time     `json:"created_at"`
	LastLogin     *time.Time    `json:"last_login"`
}

// NewUserResponse はAccountからUserResponseを生成する。
func NewUserResponse(a *Account) *UserResponse {
	return &UserResponse{
		ID:            a.ID,
		Email:         a.Email,
		FullName:      a.FullName,
		Phone:         a.Phone,
		Faculty:       a.Faculty,
		AcademicLevel: a.AcademicLevel,
		StudentID:     a.StudentID,
		Role:          a.Role,
		Status:        a.Status,
		BateraCoins:   a.BateraCoins,
		AvatarURL:     a.AvatarURL,
		CreatedAt:     a.CreatedAt,
		LastLogin:     a.LastLogin,
	}
}

// TokenResponse はログイン・登録成功時のAPIレスポンスを表す。
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	User         *UserResponse `json:"user,omitempty"`
}

// NewTokenResponse はCredentialSetとAccountからTokenResponseを生成する。
func NewTokenResponse(creds *CredentialSet, account *Account) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
	}
	if account != nil {
		resp.User = NewUserResponse(account)
	}
	return resp
}

// PendingRegistration は新規Googleユーザーに返す登録継続情報を表す。
type PendingRegistration struct {
	Status      string               `json:"status"`
	Message     string               `json:"message"`
	GoogleToken string               `json:"google_token"`
	UserInfo    *PendingUserSnapshot `json:"user_info"`
}

// PendingUserSnapshot は登録画面に表示するGoogleプロフィールの抜粋を表す。
type PendingUserSnapshot struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}
