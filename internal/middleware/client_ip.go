package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP はリクエスト元のIPアドレスを推定する。
// リバースプロキシ経由を想定し、X-Forwarded-For → X-Real-IP → RemoteAddrの順に参照する。
func ClientIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2 ... 先頭がクライアント
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
