package experiment

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Persistence は割り当てとセッションIDを保存するキーバリューストアの抽象。
// Cookie、サーバー側のセッションストアのどちらでも同じStoreロジックが動作する。
type Persistence interface {
	// Get はkeyの値を返す。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) (string, bool, error)
	// Set はkeyに値をttl付きで保存する。
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CookieOptions はCookie発行時の属性。
type CookieOptions struct {
	Domain string
	Secure bool
}

// CookiePersistence はHTTPリクエスト/レスポンスのCookieを使うPersistence。
// リクエスト単位で生成する。同一リクエスト内で書き込んだ値は後続のGetから見える。
type CookiePersistence struct {
	w       http.ResponseWriter
	r       *http.Request
	opts    CookieOptions
	written map[string]string
}

// NewCookiePersistence はCookiePersistenceを生成する。
func NewCookiePersistence(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookiePersistence {
	return &CookiePersistence{
		w:       w,
		r:       r,
		opts:    opts,
		written: make(map[string]string),
	}
}

// Get はレスポンスに書き込み済みの値、次にリクエストのCookieを参照する。
func (p *CookiePersistence) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := p.written[key]; ok {
		return v, true, nil
	}
	cookie, err := p.r.Cookie(key)
	if err != nil || cookie.Value == "" {
		return "", false, nil
	}
	return cookie.Value, true, nil
}

// Set はSameSite=LaxのCookieをレスポンスに書き込む。
func (p *CookiePersistence) Set(_ context.Context, key, value string, ttl time.Duration) error {
	http.SetCookie(p.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		Domain:   p.opts.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   p.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	p.written[key] = value
	return nil
}

const (
	// VisitorCookieName はサーバー側ストアで訪問者を識別するCookie名。
	VisitorCookieName = "visitor_id"
	// VisitorTTL は訪問者IDの有効期間。
	VisitorTTL = 365 * 24 * time.Hour
)

// EnsureVisitorID はvisitor_id Cookieを読み取り、無ければ新規発行して返す。
func EnsureVisitorID(w http.ResponseWriter, r *http.Request, opts CookieOptions) string {
	if cookie, err := r.Cookie(VisitorCookieName); err == nil {
		if _, perr := uuid.Parse(cookie.Value); perr == nil {
			return cookie.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		Domain:   opts.Domain,
		MaxAge:   int(VisitorTTL.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// compile-time interface check
var _ Persistence = (*CookiePersistence)(nil)
