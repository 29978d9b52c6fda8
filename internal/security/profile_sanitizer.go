// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizerService はGoogleプロフィールやクライアント入力に由来する
// 自由記述フィールド（氏名、学籍番号）からマークアップを除去し、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayのStrictPolicy（全タグ除去）を使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizerService は自由記述フィールドのサニタイズ機能のインターフェースを定義する。
// アカウント作成・プロフィール更新時の保存前に使用される。
type ProfileSanitizerService interface {
	// Sanitize は入力からHTMLタグを全て除去し、連続する空白を1つに正規化した
	// プレーンテキストを返す。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// profileSanitizer はProfileSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type profileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全ての要素・属性を除去し、テキストのみを残す。
func NewProfileSanitizer() *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からマークアップを除去したプレーンテキストを返す。
// StrictPolicyはテキスト中の特殊文字をHTMLエンティティへエスケープするため、
// プレーンテキストとして保存できるようにアンエスケープして戻す。
func (s *profileSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	cleaned = html.UnescapeString(cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

// compile-time interface check
var _ ProfileSanitizerService = (*profileSanitizer)(nil)
