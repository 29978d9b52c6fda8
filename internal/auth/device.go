package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint はUser-AgentとクライアントIPから端末フィンガープリントを導出する。
// 同一端末からのリクエストで安定した値になるよう決定的に計算する。
// リフレッシュ・ログイン時の異常検知（ログ記録）のための参考情報であり、認可判定には使わない。
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])
}
