// Package reporter はランディングページからバックエンドAPIへのイベント送信を提供する。
//
// ユーザーのfind-or-create、クリックの記録、バケット名からグループIDへの解決を行う。
// 再試行やキューイングは行わず、各呼び出しは1回だけ試行する。
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/cometab/internal/model"
)

// 操作名。ログとメトリクスのoperationラベルに使う。
const (
	OpUpsertUser   = "upsert_user"
	OpLogClick     = "log_click"
	OpResolveGroup = "resolve_group"
)

// maxResponseBytes はレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// ClickInput はクリック記録の入力。
type ClickInput struct {
	UserID    int64
	GroupID   int64
	SessionID string
	PageURL   string
	UserAgent string
	IPAddress string
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithDiagnostics は失敗の出力先を設定する。
func WithDiagnostics(d *Diagnostics) Option {
	return func(c *Client) {
		c.diag = d
	}
}

// WithGroupResolver はグループID解決方式を設定する。
func WithGroupResolver(r GroupResolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithLookupGroupResolver はバックエンドのグループ検索APIで解決する方式を設定する。
func WithLookupGroupResolver() Option {
	return func(c *Client) {
		c.resolver = &LookupGroupResolver{client: c}
	}
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	diag       *Diagnostics
	resolver   GroupResolver
}

// NewClient はClientを生成する。グループIDの解決は既定で固定マッピングを使う。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		resolver:   StaticGroupResolver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.diag == nil {
		c.diag = NewDiagnostics(logger, nil)
	}
	return c
}

type registerUserRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	GroupID int64  `json:"group_id"`
}

type registerUserResponse struct {
	Success bool  `json:"success"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
	Created bool  `json:"created"`
}

type logClickRequest struct {
	UserID    int64  `json:"user_id"`
	GroupID   int64  `json:"group_id"`
	SessionID string `json:"session_id,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

type logClickResponse struct {
	Success bool  `json:"success"`
	ClickID int64 `json:"click_id"`
}

type groupResponse struct {
	ID          int64  `json:"id"`
	GroupName   string `json:"group_name"`
	Description string `json:"description"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UpsertUser はemailをキーにユーザーを取得または作成する。
// 同じemailでの繰り返し呼び出しは同じユーザーIDを返す。
func (c *Client) UpsertUser(ctx context.Context, name, email string, groupID int64) (*model.User, error) {
	var resp registerUserResponse
	err := c.do(ctx, OpUpsertUser, http.MethodPost, "/register-user", registerUserRequest{
		Name:    name,
		Email:   email,
		GroupID: groupID,
	}, &resp)
	if err != nil {
		c.diag.ReportFailure(OpUpsertUser, KindOf(err), err)
		return nil, err
	}
	if !resp.Success {
		err := &ServerError{Op: OpUpsertUser, StatusCode: http.StatusOK, Message: "success=false"}
		c.diag.ReportFailure(OpUpsertUser, KindServer, err)
		return nil, err
	}

	c.diag.ReportSuccess(OpUpsertUser)
	c.logger.Debug("user upserted",
		slog.Int64("user_id", resp.UserID),
		slog.Bool("created", resp.Created),
	)
	return &model.User{ID: resp.UserID, Name: name, Email: email}, nil
}

// LogClick はクリックイベントを記録する。
// バックエンドが成功を返した場合のみtrueを返す。失敗はログとメトリクスに記録し、呼び出し元には返さない。
func (c *Client) LogClick(ctx context.Context, in ClickInput) bool {
	var resp logClickResponse
	err := c.do(ctx, OpLogClick, http.MethodPost, "/log-click", logClickRequest{
		UserID:    in.UserID,
		GroupID:   in.GroupID,
		SessionID: in.SessionID,
		PageURL:   in.PageURL,
		UserAgent: in.UserAgent,
		IPAddress: in.IPAddress,
	}, &resp)
	if err != nil {
		c.diag.ReportFailure(OpLogClick, KindOf(err), err)
		return false
	}
	if !resp.Success {
		c.diag.ReportFailure(OpLogClick, KindServer,
			&ServerError{Op: OpLogClick, StatusCode: http.StatusOK, Message: "success=false"})
		return false
	}

	c.diag.ReportSuccess(OpLogClick)
	c.logger.Debug("click logged",
		slog.Int64("click_id", resp.ClickID),
		slog.Int64("group_id", in.GroupID),
	)
	return true
}

// ResolveGroupID はバケット名をバックエンドのグループIDに変換する。
// 解決できない場合はfalseを返す。
func (c *Client) ResolveGroupID(ctx context.Context, bucketName string) (int64, bool) {
	id, err := c.resolver.ResolveGroupID(ctx, bucketName)
	if err != nil {
		kind := KindOf(err)
		if kind == KindInternal {
			kind = KindUnresolved
		}
		c.diag.ReportFailure(OpResolveGroup, kind, err)
		return 0, false
	}
	return id, true
}

// LookupGroup はグループ名でグループを検索する。存在しない場合は*NotFoundErrorを返す。
func (c *Client) LookupGroup(ctx context.Context, name string) (*model.Group, error) {
	var resp groupResponse
	path := "/api/groups?" + url.Values{"name": {name}}.Encode()
	if err := c.do(ctx, OpResolveGroup, http.MethodGet, path, nil, &resp); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			nf.Resource = "group " + name
		}
		return nil, err
	}
	return &model.Group{ID: resp.ID, GroupName: resp.GroupName, Description: resp.Description}, nil
}

// do はJSONリクエストを送信し、2xxのレスポンスボディをoutにデコードする。
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Op: op, Resource: path}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		srvErr := &ServerError{Op: op, StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil && er.Code != "" {
			srvErr.Code = er.Code
			srvErr.Message = er.Message
		} else {
			srvErr.Message = http.StatusText(resp.StatusCode)
		}
		return srvErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: "undecodable response body: " + err.Error()}
	}
	return nil
}
