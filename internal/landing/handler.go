package landing

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/hitoshi/cometab/internal/experiment"
	"github.com/hitoshi/cometab/internal/middleware"
	"github.com/hitoshi/cometab/internal/security"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxUserAgentBytes はバックエンドへ送るUser-Agentの上限。/log-clickの検証と揃える。
const maxUserAgentBytes = 1024

// PersistenceFactory はリクエストごとの割り当て保存先を生成する。
type PersistenceFactory func(w http.ResponseWriter, r *http.Request) experiment.Persistence

// CookiePersistenceFactory はCookieに保存するPersistenceFactoryを返す。
func CookiePersistenceFactory(opts experiment.CookieOptions) PersistenceFactory {
	return func(w http.ResponseWriter, r *http.Request) experiment.Persistence {
		return experiment.NewCookiePersistence(w, r, opts)
	}
}

// RedisPersistenceFactory はvisitor_id Cookieで訪問者を識別し、Redisに保存するPersistenceFactoryを返す。
func RedisPersistenceFactory(backend *experiment.RedisBackend, opts experiment.CookieOptions) PersistenceFactory {
	return func(w http.ResponseWriter, r *http.Request) experiment.Persistence {
		return backend.ForVisitor(experiment.EnsureVisitorID(w, r, opts))
	}
}

// HandlerDeps はHandlerの依存関係。
type HandlerDeps struct {
	Persistence  PersistenceFactory
	StoreOptions experiment.StoreOptions
	Reporter     EventReporter
	Tracker      AssignmentTracker
	Variants     VariantSource
	Sanitizer    security.InputSanitizer
	Signups      SignupRecorder
	Settings     Settings
	Logger       *slog.Logger
}

// Handler はランディングページのHTTPハンドラー。
// リクエストごとにControllerを生成し、前の状態をRestoreしてから操作する。
type Handler struct {
	deps      HandlerDeps
	templates *template.Template
}

// pageData はテンプレートに渡すデータ。
type pageData struct {
	View      View
	CSRFToken string
}

// NewHandler はHandlerを生成する。テンプレートのパースに失敗した場合はエラーを返す。
func NewHandler(deps HandlerDeps) (*Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = security.NewInputSanitizer()
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Handler{deps: deps, templates: tmpl}, nil
}

func (h *Handler) newController(w http.ResponseWriter, r *http.Request) *Controller {
	opts := h.deps.StoreOptions
	if opts.Logger == nil {
		opts.Logger = h.deps.Logger
	}
	store := experiment.NewStore(h.deps.Persistence(w, r), opts)

	settings := h.deps.Settings
	settings.UserAgent = truncateUTF8(r.UserAgent(), maxUserAgentBytes)
	if ip, err := middleware.ClientIPFromContext(r.Context()); err == nil {
		settings.ClientIP = ip
	} else {
		settings.ClientIP = middleware.ClientIP(r)
	}

	return NewController(Deps{
		Assignments: store,
		Reporter:    h.deps.Reporter,
		Tracker:     h.deps.Tracker,
		Variants:    h.deps.Variants,
		Sanitizer:   h.deps.Sanitizer,
		Signups:     h.deps.Signups,
		Logger:      h.deps.Logger,
	}, settings)
}

// Landing はGET /を処理する。バケットを割り当ててランディングページを描画する。
func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	c := h.newController(w, r)
	if err := c.Mount(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, c.View())
}

// ClickCTA はPOST /ctaを処理する。クリックを記録してサインアップフォームを描画する。
func (h *Handler) ClickCTA(w http.ResponseWriter, r *http.Request) {
	c := h.newController(w, r)
	if err := c.Restore(r.Context(), StateAssigned); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := c.ClickCTA(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, c.View())
}

// Signup はPOST /signupを処理する。
// 必須項目が欠けている場合はフォームを422で再描画する。
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	c := h.newController(w, r)
	if err := c.Restore(r.Context(), StateFormShown); err != nil {
		h.fail(w, r, err)
		return
	}

	err := c.Submit(r.Context(), r.PostFormValue("name"), r.PostFormValue("email"))
	if errors.Is(err, ErrMissingFields) {
		h.render(w, r, http.StatusUnprocessableEntity, c.View())
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, c.View())
}

// Back はPOST /backを処理する。フォームを破棄してランディングページを描画する。
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	c := h.newController(w, r)
	if err := c.Restore(r.Context(), StateFormShown); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := c.Back(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, c.View())
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, view View) {
	middleware.AnnotateBucket(r.Context(), view.Bucket.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, "layout", pageData{
		View:      view,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}); err != nil {
		h.deps.Logger.Error("failed to render page",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.deps.Logger.Error("landing page request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// truncateUTF8 はsをlimitバイト以下に切り詰める。マルチバイト文字の途中では切らない。
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	i := limit
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
