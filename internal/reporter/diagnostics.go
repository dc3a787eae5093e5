package reporter

import (
	"errors"
	"log/slog"
)

// 失敗の種別。メトリクスのkindラベルに使う。
const (
	KindNetwork    = "network"
	KindServer     = "server"
	KindNotFound   = "not_found"
	KindUnresolved = "unresolved"
	KindInternal   = "internal"
)

// Recorder はバックエンド呼び出しの結果を記録する。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordReporterCall(operation string)
	RecordReporterFailure(operation, kind string)
}

// Diagnostics はレポーターの失敗を集約する出力先。
// 構造化ログとメトリクスの両方に記録する。nilでも安全に呼び出せる。
type Diagnostics struct {
	logger   *slog.Logger
	recorder Recorder
}

// NewDiagnostics はDiagnosticsを生成する。recorderはnilでもよい。
func NewDiagnostics(logger *slog.Logger, recorder Recorder) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnostics{logger: logger, recorder: recorder}
}

// ReportSuccess は呼び出し成功を記録する。
func (d *Diagnostics) ReportSuccess(op string) {
	if d == nil || d.recorder == nil {
		return
	}
	d.recorder.RecordReporterCall(op)
}

// ReportFailure は呼び出し失敗を警告ログとメトリクスに記録する。
func (d *Diagnostics) ReportFailure(op, kind string, err error) {
	if d == nil {
		return
	}
	attrs := []any{
		slog.String("operation", op),
		slog.String("kind", kind),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	d.logger.Warn("backend call failed", attrs...)

	if d.recorder != nil {
		d.recorder.RecordReporterFailure(op, kind)
	}
}

// KindOf はエラーから失敗の種別を判定する。
func KindOf(err error) string {
	var netErr *NetworkError
	var srvErr *ServerError
	var nfErr *NotFoundError
	switch {
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &srvErr):
		return KindServer
	case errors.As(err, &nfErr):
		return KindNotFound
	default:
		return KindInternal
	}
}
