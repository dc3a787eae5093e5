// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// clientIPContextKey はリクエストコンテキストにクライアントIPを格納するためのキー。
	clientIPContextKey = contextKey("client_ip")
	// annotationsContextKey はハンドラーからアクセスログに値を渡すためのキー。
	annotationsContextKey = contextKey("request_annotations")
)

// ClientIP はリクエスト元のIPアドレスを返す。
// X-Forwarded-Forの先頭、X-Real-IP、RemoteAddrの順に参照する。
// ヘッダーの値はIPアドレスとして解釈できる場合のみ採用する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseIP はvをIPアドレスとして解釈し、正規化した文字列を返す。
func parseIP(v string) (string, bool) {
	ip := net.ParseIP(strings.TrimSpace(v))
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}

// NewClientIPMiddleware はクライアントIPを解決してリクエストコンテキストに注入するミドルウェアを返す。
// レート制限とクリック記録はこの値を使う。
func NewClientIPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithClientIP(r.Context(), ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromContext はリクエストコンテキストからクライアントIPを取得する。
// ClientIPミドルウェアを通過したリクエストでのみ有効。
func ClientIPFromContext(ctx context.Context) (string, error) {
	ip, ok := ctx.Value(clientIPContextKey).(string)
	if !ok || ip == "" {
		return "", fmt.Errorf("client IP not found in context")
	}
	return ip, nil
}

// ContextWithClientIP はコンテキストにクライアントIPを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

// requestAnnotations はハンドラーが判明させた値をアクセスログへ渡す入れ物。
type requestAnnotations struct {
	bucket string
}

// AnnotateBucket はリクエストに割り当てられたバケットをアクセスログに残す。
// ロギングミドルウェアを通過していないリクエストでは何もしない。
func AnnotateBucket(ctx context.Context, bucket string) {
	if a, ok := ctx.Value(annotationsContextKey).(*requestAnnotations); ok {
		a.bucket = bucket
	}
}
