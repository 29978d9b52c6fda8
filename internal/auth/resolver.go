package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nathanael10142/Campusos/internal/model"
	"github.com/nathanael10142/Campusos/internal/repository"
	"github.com/nathanael10142/Campusos/internal/security"
)

// IdentityResolver はGoogleから渡された外部IDを既存アカウントへ解決する。
//
// 解決順序（最初に一致したものが勝つ）:
//  1. google_id一致 → 既存アカウントでログイン。身元情報は変更しない。
//  2. email一致 → 別のgoogle_idが既に紐付いていればCONFLICTING_IDENTITY。
//     未紐付きならgoogle_idをリンクしてログイン。password_hashには触れない。
//  3. 一致なし → (nil, nil) を返し、呼び出し側が登録トークンを発行する。
//
// リンクはこのコンポーネントが既存レコードへ行う唯一の変更であり、
// 競合はストアの一意制約で1人の勝者に直列化される。
type IdentityResolver struct {
	accounts repository.AccountRepository
	avatars  security.AvatarFetcherService
}

// NewIdentityResolver はIdentityResolverを生成する。
func NewIdentityResolver(accounts repository.AccountRepository, avatars security.AvatarFetcherService) *IdentityResolver {
	return &IdentityResolver{
		accounts: accounts,
		avatars:  avatars,
	}
}

// Resolve は外部IDを既存アカウントへ解決する。
// 一致するアカウントがない場合は (nil, nil) を返す（新規登録シグナル）。
func (r *IdentityResolver) Resolve(ctx context.Context, identity *model.ExternalIdentity) (*model.Account, error) {
	// 1. google_idでの検索
	account, err := r.accounts.FindByGoogleID(ctx, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by google ID: %w", err)
	}
	if account != nil {
		refreshAvatar(ctx, r.accounts, r.avatars, account, identity.Picture)
		return account, nil
	}

	// 2. emailでの検索とリンク
	account, err = r.accounts.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	if account != nil {
		if account.GoogleID != nil && *account.GoogleID != identity.Subject {
			// 同じemailに別のGoogleアカウントが紐付いている。勝手に付け替えない。
			return nil, model.NewConflictingIdentityError()
		}

		if err := r.accounts.LinkGoogleID(ctx, account.ID, identity.Subject); err != nil {
			if errors.Is(err, model.ErrDuplicateGoogleID) {
				// 並行するリンクまたは登録に敗れた
				return nil, model.NewConflictingIdentityError()
			}
			return nil, fmt.Errorf("failed to link google identity: %w", err)
		}

		subject := identity.Subject
		account.GoogleID = &subject

		slog.Info("google identity linked to existing account",
			slog.String("account_id", account.ID),
			slog.Bool("has_password", account.HasPassword()),
		)

		refreshAvatar(ctx, r.accounts, r.avatars, account, identity.Picture)
		return account, nil
	}

	// 3. 一致なし: 新規登録シグナル
	return nil, nil
}

// refreshAvatar はプロバイダのアバターURLが変わっていればキャッシュを更新する。
// ログイン・登録の本流を妨げないよう、失敗はログのみで握りつぶす。
func refreshAvatar(ctx context.Context, accounts repository.AccountRepository, avatars security.AvatarFetcherService, account *model.Account, picture string) {
	if picture == "" {
		return
	}
	if account.AvatarURL != nil && *account.AvatarURL == picture {
		return
	}

	data, mimeType, err := avatars.FetchAvatar(ctx, picture)
	if err != nil {
		slog.Warn("failed to fetch avatar", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}

	if err := accounts.UpdateAvatar(ctx, account.ID, picture, data, mimeType); err != nil {
		slog.Warn("failed to update avatar", slog.String("account_id", account.ID), slog.Any("error", err))
		return
	}

	account.AvatarURL = &picture
}
