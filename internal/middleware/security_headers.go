package middleware

import "net/http"

// landingCSP はサーバーレンダリングのランディングページ向けのContent-Security-Policy。
// インラインスクリプトは使わず、スタイルのみインラインを許可する。
const landingCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// htmlがtrueの場合はHTMLページ向けのContent-Security-Policyも付与する。
func NewSecurityHeadersMiddleware(html bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if html {
				h.Set("Content-Security-Policy", landingCSP)
			}
			next.ServeHTTP(w, r)
		})
	}
}
