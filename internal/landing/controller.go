// Package landing はA/Bテスト対象のランディングページを提供する。
//
// Controllerは1回のページ操作ごとの状態遷移
// Unassigned → Assigned → FormShown → Submitted（FormShown → Assignedの戻りを含む）を管理し、
// バケット割り当て、表示設定の取得、バックエンドへのイベント送信を組み合わせる。
// イベント送信の失敗が画面遷移を妨げることはない。
package landing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/cometab/internal/catalog"
	"github.com/hitoshi/cometab/internal/experiment"
	"github.com/hitoshi/cometab/internal/model"
	"github.com/hitoshi/cometab/internal/reporter"
	"github.com/hitoshi/cometab/internal/security"
)

// PageURL はクリックイベントに記録するページのパス。
const PageURL = "/comet-promo"

// PlaceholderName はCTAクリック時に登録する仮ユーザーの名前。
const PlaceholderName = "Anonymous Visitor"

var (
	// ErrInvalidTransition は現在の状態から許可されていない操作を表す。
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMissingFields は名前またはメールアドレスが空のフォーム送信を表す。
	ErrMissingFields = errors.New("name and email are required")
)

// State はページの状態。
type State int

const (
	StateUnassigned State = iota
	StateAssigned
	StateFormShown
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "unassigned"
	case StateAssigned:
		return "assigned"
	case StateFormShown:
		return "form_shown"
	case StateSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AssignmentSource は訪問者のバケットとセッションIDを提供する。
// experiment.Storeが実装する。
type AssignmentSource interface {
	GetBucket(ctx context.Context, experimentName string) experiment.Bucket
	GetSessionID(ctx context.Context) string
}

// EventReporter はバックエンドへのイベント送信を行う。
// reporter.Clientが実装する。
type EventReporter interface {
	UpsertUser(ctx context.Context, name, email string, groupID int64) (*model.User, error)
	LogClick(ctx context.Context, in reporter.ClickInput) bool
	ResolveGroupID(ctx context.Context, bucketName string) (int64, bool)
}

// AssignmentTracker は割り当ての通知先。戻り値を持たず、呼び出し元をブロックしない。
type AssignmentTracker interface {
	TrackAssignment(experimentName string, bucket experiment.Bucket)
}

// VariantSource はバケットに対応する表示設定を提供する。
// catalog.Catalogが実装する。
type VariantSource interface {
	Get(b experiment.Bucket) (catalog.VariantConfig, bool)
}

// SignupRecorder はサインアップ結果を記録する。
type SignupRecorder interface {
	RecordSignup(bucket string, succeeded bool)
}

// Deps はControllerが依存するコンポーネント。
type Deps struct {
	Assignments AssignmentSource
	Reporter    EventReporter
	Tracker     AssignmentTracker
	Variants    VariantSource
	Sanitizer   security.InputSanitizer
	Signups     SignupRecorder
	Logger      *slog.Logger
}

// Settings はControllerの動作設定。UserAgentとClientIPはリクエストごとに設定する。
type Settings struct {
	ExperimentName         string
	PlaceholderEmailDomain string
	UserAgent              string
	ClientIP               string
}

// View は描画用のビューモデル。
type View struct {
	State          State
	Bucket         experiment.Bucket
	Config         catalog.VariantConfig
	ExperimentName string
	Name           string
	Email          string
	Message        string
	Failed         bool
}

// FormShown はサインアップフォームを表示する状態かどうかを返す。
func (v View) FormShown() bool {
	return v.State == StateFormShown
}

// Submitted はフォーム送信後の状態かどうかを返す。
func (v View) Submitted() bool {
	return v.State == StateSubmitted
}

// Controller は1回のページ操作の状態を保持する。並行利用は想定しない。
type Controller struct {
	deps     Deps
	settings Settings

	state   State
	bucket  experiment.Bucket
	config  catalog.VariantConfig
	name    string
	email   string
	message string
	failed  bool
}

// NewController はUnassigned状態のControllerを生成する。
func NewController(deps Deps, settings Settings) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{deps: deps, settings: settings, state: StateUnassigned}
}

// State は現在の状態を返す。
func (c *Controller) State() State {
	return c.state
}

// Mount はバケットを取得してAssigned状態に遷移する。
// 割り当ての通知はここで1回だけ行う。
func (c *Controller) Mount(ctx context.Context) error {
	if c.state != StateUnassigned {
		return fmt.Errorf("mount from %s: %w", c.state, ErrInvalidTransition)
	}
	if err := c.assign(ctx); err != nil {
		return err
	}
	if c.deps.Tracker != nil {
		c.deps.Tracker.TrackAssignment(c.settings.ExperimentName, c.bucket)
	}
	c.state = StateAssigned
	return nil
}

// Restore は前のリクエストで到達した状態を復元する。割り当ての通知は行わない。
// HTTPのようにリクエストごとにControllerを作り直す場合に使う。
func (c *Controller) Restore(ctx context.Context, state State) error {
	if c.state != StateUnassigned || (state != StateAssigned && state != StateFormShown) {
		return fmt.Errorf("restore %s from %s: %w", state, c.state, ErrInvalidTransition)
	}
	if err := c.assign(ctx); err != nil {
		return err
	}
	c.state = state
	return nil
}

func (c *Controller) assign(ctx context.Context) error {
	bucket := c.deps.Assignments.GetBucket(ctx, c.settings.ExperimentName)
	cfg, ok := c.deps.Variants.Get(bucket)
	if !ok {
		return fmt.Errorf("no variant config for bucket %q", bucket)
	}
	c.bucket = bucket
	c.config = cfg
	return nil
}

// ClickCTA はCTAのクリックを記録してFormShown状態に遷移する。
// 仮ユーザーの登録とクリック記録はベストエフォートで、失敗しても遷移する。
func (c *Controller) ClickCTA(ctx context.Context) error {
	if c.state != StateAssigned {
		return fmt.Errorf("click cta from %s: %w", c.state, ErrInvalidTransition)
	}

	sessionID := c.deps.Assignments.GetSessionID(ctx)
	email := fmt.Sprintf("visitor+%s@%s", sessionID, c.settings.PlaceholderEmailDomain)
	if _, err := c.record(ctx, PlaceholderName, email, sessionID); err != nil {
		c.deps.Logger.Warn("failed to record cta click",
			slog.String("bucket", c.bucket.String()),
			slog.String("error", err.Error()),
		)
	}

	c.state = StateFormShown
	return nil
}

// Submit はサインアップフォームを送信してSubmitted状態に遷移する。
// 名前かメールアドレスが空の場合はErrMissingFieldsを返し、FormShown状態に留まる。
// ユーザー登録に失敗した場合もSubmittedに遷移し、View.Failedを立てる。
func (c *Controller) Submit(ctx context.Context, name, email string) error {
	if c.state != StateFormShown {
		return fmt.Errorf("submit from %s: %w", c.state, ErrInvalidTransition)
	}

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if c.deps.Sanitizer != nil {
		name = c.deps.Sanitizer.SanitizeName(name)
		email = c.deps.Sanitizer.NormalizeEmail(email)
	}
	c.name = name
	c.email = email
	if name == "" || email == "" {
		c.message = "Please enter your name and email."
		return ErrMissingFields
	}

	sessionID := c.deps.Assignments.GetSessionID(ctx)
	upsertFailed, err := c.record(ctx, name, email, sessionID)
	if err != nil {
		c.deps.Logger.Warn("failed to record signup",
			slog.String("bucket", c.bucket.String()),
			slog.String("error", err.Error()),
		)
	}

	c.failed = upsertFailed
	if upsertFailed {
		c.message = "Sign up failed. Please try again."
	} else {
		c.message = fmt.Sprintf("Thanks %s! Sign up successful (A/B group: %s)", name, c.bucket)
	}
	if c.deps.Signups != nil {
		c.deps.Signups.RecordSignup(c.bucket.String(), !upsertFailed)
	}

	c.state = StateSubmitted
	return nil
}

// Back はフォームを破棄してAssigned状態に戻る。
func (c *Controller) Back() error {
	if c.state != StateFormShown {
		return fmt.Errorf("back from %s: %w", c.state, ErrInvalidTransition)
	}
	c.name = ""
	c.email = ""
	c.message = ""
	c.state = StateAssigned
	return nil
}

// View は現在の状態のビューモデルを返す。
func (c *Controller) View() View {
	return View{
		State:          c.state,
		Bucket:         c.bucket,
		Config:         c.config,
		ExperimentName: c.settings.ExperimentName,
		Name:           c.name,
		Email:          c.email,
		Message:        c.message,
		Failed:         c.failed,
	}
}

// record はグループIDを解決し、ユーザーを登録してクリックを記録する。
// グループIDが解決できない場合は以降の記録を省略する。
// upsertFailedはユーザー登録自体がエラーになった場合にtrueとなる。
func (c *Controller) record(ctx context.Context, name, email, sessionID string) (upsertFailed bool, err error) {
	groupID, ok := c.deps.Reporter.ResolveGroupID(ctx, c.bucket.String())
	if !ok {
		return false, fmt.Errorf("group id for bucket %q is unresolved", c.bucket)
	}

	user, err := c.deps.Reporter.UpsertUser(ctx, name, email, groupID)
	if err != nil {
		return true, fmt.Errorf("upsert user: %w", err)
	}

	if !c.deps.Reporter.LogClick(ctx, reporter.ClickInput{
		UserID:    user.ID,
		GroupID:   groupID,
		SessionID: sessionID,
		PageURL:   PageURL,
		UserAgent: c.settings.UserAgent,
		IPAddress: c.settings.ClientIP,
	}) {
		return false, errors.New("click was not logged")
	}
	return false, nil
}
