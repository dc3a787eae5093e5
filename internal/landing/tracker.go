package landing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/cometab/internal/experiment"
)

// AssignmentRecorder は割り当てをメトリクスに記録する。
type AssignmentRecorder interface {
	RecordAssignment(bucket string)
}

type assignmentEvent struct {
	experimentName string
	bucket         experiment.Bucket
}

// AsyncTracker は割り当ての通知をバックグラウンドで処理するAssignmentTracker。
// キューが溢れた場合は通知を破棄し、呼び出し元をブロックしない。
type AsyncTracker struct {
	events   chan assignmentEvent
	logger   *slog.Logger
	recorder AssignmentRecorder
	wg       sync.WaitGroup
}

// NewAsyncTracker はキュー長bufferのAsyncTrackerを生成する。Startを呼ぶまで通知は処理されない。
func NewAsyncTracker(buffer int, logger *slog.Logger, recorder AssignmentRecorder) *AsyncTracker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncTracker{
		events:   make(chan assignmentEvent, buffer),
		logger:   logger,
		recorder: recorder,
	}
}

// TrackAssignment は割り当てをキューに積む。
func (t *AsyncTracker) TrackAssignment(experimentName string, bucket experiment.Bucket) {
	select {
	case t.events <- assignmentEvent{experimentName: experimentName, bucket: bucket}:
	default:
		t.logger.Warn("assignment tracking queue is full, dropping event",
			slog.String("experiment", experimentName),
			slog.String("bucket", bucket.String()),
		)
	}
}

// Start はctxがキャンセルされるまで通知を処理するゴルーチンを起動する。
func (t *AsyncTracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				t.drain()
				return
			case ev := <-t.events:
				t.handle(ev)
			}
		}
	}()
}

// Wait は処理ゴルーチンの終了を待つ。
func (t *AsyncTracker) Wait() {
	t.wg.Wait()
}

// drain は停止時にキューに残った通知を処理する。
func (t *AsyncTracker) drain() {
	for {
		select {
		case ev := <-t.events:
			t.handle(ev)
		default:
			return
		}
	}
}

func (t *AsyncTracker) handle(ev assignmentEvent) {
	t.logger.Info("ab test assignment",
		slog.String("experiment", ev.experimentName),
		slog.String("bucket", ev.bucket.String()),
	)
	if t.recorder != nil {
		t.recorder.RecordAssignment(ev.bucket.String())
	}
}
