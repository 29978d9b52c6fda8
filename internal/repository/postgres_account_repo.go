package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nathanael10142/Campusos/internal/model"
)

// 一意制約の名前。マイグレーションのインデックス定義と一致させること。
const (
	constraintAccountsEmail    = "accounts_email_unique"
	constraintAccountsGoogleID = "accounts_google_id_unique"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, google_id, full_name, phone, faculty,
		        academic_level, student_id, role, status, batera_coins,
		        avatar_url, device_id, created_at, last_login
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.GoogleID,
		&account.FullName, &account.Phone, &account.Faculty,
		&account.AcademicLevel, &account.StudentID, &account.Role, &account.Status,
		&account.BateraCoins, &account.AvatarURL, &account.DeviceID,
		&account.CreatedAt, &account.LastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// FindByEmail はemailでアカウントを検索する。大文字小文字は区別しない。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, google_id, full_name, phone, faculty,
		        academic_level, student_id, role, status, batera_coins,
		        avatar_url, device_id, created_at, last_login
		 FROM accounts WHERE LOWER(email) = LOWER($1)`,
		email,
	).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.GoogleID,
		&account.FullName, &account.Phone, &account.Faculty,
		&account.AcademicLevel, &account.StudentID, &account.Role, &account.Status,
		&account.BateraCoins, &account.AvatarURL, &account.DeviceID,
		&account.CreatedAt, &account.LastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}

	return account, nil
}

// FindByGoogleID はgoogle_idでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, google_id, full_name, phone, faculty,
		        academic_level, student_id, role, status, batera_coins,
		        avatar_url, device_id, created_at, last_login
		 FROM accounts WHERE google_id = $1`,
		googleID,
	).Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.GoogleID,
		&account.FullName, &account.Phone, &account.Faculty,
		&account.AcademicLevel, &account.StudentID, &account.Role, &account.Status,
		&account.BateraCoins, &account.AvatarURL, &account.DeviceID,
		&account.CreatedAt, &account.LastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by google ID: %w", err)
	}

	return account, nil
}

// Create はアカウントを作成する。
// 一意制約違反はmodel.ErrDuplicateEmail / model.ErrDuplicateGoogleIDでラップして返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, google_id, full_name, phone,
		                       faculty, academic_level, student_id, role, status,
		                       batera_coins, avatar_url, device_id, created_at, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		account.ID, account.Email, account.PasswordHash, account.GoogleID,
		account.FullName, account.Phone, account.Faculty, account.AcademicLevel,
		account.StudentID, account.Role, account.Status, account.BateraCoins,
		account.AvatarURL, account.DeviceID, account.CreatedAt, account.LastLogin,
	)
	if err != nil {
		if sentinel := uniqueViolationSentinel(err); sentinel != nil {
			return fmt.Errorf("failed to insert account: %w", sentinel)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// LinkGoogleID は既存アカウントにgoogle_idを紐付ける。
// 競合判定はUPDATEの条件句と一意制約で行い、敗者にはmodel.ErrDuplicateGoogleIDを返す。
func (r *PostgresAccountRepo) LinkGoogleID(ctx context.Context, accountID, googleID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET google_id = $2
		 WHERE id = $1 AND (google_id IS NULL OR google_id = $2)`,
		accountID, googleID,
	)
	if err != nil {
		if sentinel := uniqueViolationSentinel(err); sentinel != nil {
			return fmt.Errorf("failed to link google ID: %w", sentinel)
		}
		return fmt.Errorf("failed to link google ID: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 並行して別のgoogle_idが紐付いた
		return fmt.Errorf("account %s is already linked to a different google ID: %w",
			accountID, model.ErrDuplicateGoogleID)
	}

	return nil
}

// UpdateAvatar はアカウントのアバターURLとキャッシュ画像を更新する。
func (r *PostgresAccountRepo) UpdateAvatar(ctx context.Context, accountID, avatarURL string, data []byte, mimeType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET avatar_url = $2, avatar = $3, avatar_mime = $4 WHERE id = $1`,
		accountID, avatarURL, data, mimeType,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}

	return nil
}

// FindAvatar はキャッシュ済みアバター画像を取得する。キャッシュがない場合はnilデータを返す。
func (r *PostgresAccountRepo) FindAvatar(ctx context.Context, accountID string) ([]byte, string, error) {
	var data []byte
	var mimeType sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT avatar, avatar_mime FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&data, &mimeType)

	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find avatar: %w", err)
	}

	return data, mimeType.String, nil
}

// UpdateLoginStamp は最終ログイン日時と端末フィンガープリントを更新する。
func (r *PostgresAccountRepo) UpdateLoginStamp(ctx context.Context, accountID, deviceID string, lastLogin time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET device_id = $2, last_login = $3 WHERE id = $1`,
		accountID, deviceID, lastLogin,
	)
	if err != nil {
		return fmt.Errorf("failed to update login stamp: %w", err)
	}

	return nil
}

// uniqueViolationSentinel は一意制約違反をドメインのセンチネルエラーへ変換する。
// 該当しないエラーの場合はnilを返す。
func uniqueViolationSentinel(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	// 23505 = unique_violation
	if pqErr.Code != "23505" {
		return nil
	}

	switch pqErr.Constraint {
	case constraintAccountsEmail:
		return model.ErrDuplicateEmail
	case constraintAccountsGoogleID:
		return model.ErrDuplicateGoogleID
	}

	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
