// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/nathanael10142/Campusos/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はemailでアカウントを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByGoogleID はgoogle_idでアカウントを検索する。見つからない場合はnilを返す。
	FindByGoogleID(ctx context.Context, googleID string) (*model.Account, error)

	// Create はアカウントを作成する。
	// 一意制約違反はmodel.ErrDuplicateEmail / model.ErrDuplicateGoogleIDを
	// ラップしたエラーとして返す。
	Create(ctx context.Context, account *model.Account) error

	// LinkGoogleID は既存アカウントにgoogle_idを紐付ける。
	// 同一google_idの再紐付けは冪等に成功する。別のgoogle_idが既に紐付いている場合、
	// または他アカウントが同じgoogle_idを持つ場合はmodel.ErrDuplicateGoogleIDを
	// ラップしたエラーを返す。競合判定はUPDATEの条件句と一意制約で行う。
	LinkGoogleID(ctx context.Context, accountID, googleID string) error

	// UpdateAvatar はアカウントのアバターURLとキャッシュ画像を更新する。
	UpdateAvatar(ctx context.Context, accountID, avatarURL string, data []byte, mimeType string) error

	// FindAvatar はキャッシュ済みアバター画像を取得する。
	// アカウントが存在しない、またはキャッシュがない場合はnilデータを返す。
	FindAvatar(ctx context.Context, accountID string) (data []byte, mimeType string, err error)

	// UpdateLoginStamp は最終ログイン日時と端末フィンガープリントを更新する。
	UpdateLoginStamp(ctx context.Context, accountID, deviceID string, lastLogin time.Time) error
}
