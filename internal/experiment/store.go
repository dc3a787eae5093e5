package experiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// AssignmentTTL はバケット割り当ての保持期間。
	AssignmentTTL = 30 * 24 * time.Hour
	// SessionTTL はセッションIDの保持期間。
	SessionTTL = 24 * time.Hour
	// SessionKey はセッションIDの保存キー。
	SessionKey = "session_id"

	assignmentKeyPrefix = "abtest_"
)

// AssignmentKey は実験名から割り当ての保存キーを組み立てる。
func AssignmentKey(experimentName string) string {
	return assignmentKeyPrefix + experimentName
}

// StoreOptions はStoreの挙動を調整する。
type StoreOptions struct {
	SplitRatio float64
	Random     RandomSource
	NewID      func() string
	Logger     *slog.Logger
}

// Store は訪問者のバケット割り当てとセッションIDを管理する。
// 保存先はPersistenceに委譲する。
type Store struct {
	persistence Persistence
	splitRatio  float64
	random      RandomSource
	newID       func() string
	logger      *slog.Logger
}

// NewStore はStoreを生成する。未指定のオプションには既定値を使う。
func NewStore(p Persistence, opts StoreOptions) *Store {
	s := &Store{
		persistence: p,
		splitRatio:  opts.SplitRatio,
		random:      opts.Random,
		newID:       opts.NewID,
		logger:      opts.Logger,
	}
	if s.splitRatio <= 0 || s.splitRatio >= 1 {
		s.splitRatio = DefaultSplitRatio
	}
	if s.random == nil {
		s.random = DefaultRandom
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GetBucket は訪問者のバケットを返す。
// 有効な割り当てが保存済みならそのまま返し、分割比に関わらず再抽選しない。
// 割り当てが無い（または不正な値の）場合は新しく抽選し、30日間保存する。
// ストレージが使えない場合は警告を記録し、抽選結果をそのまま返す。
func (s *Store) GetBucket(ctx context.Context, experimentName string) Bucket {
	key := AssignmentKey(experimentName)

	stored, ok, err := s.persistence.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read assignment",
			slog.String("experiment", experimentName),
			slog.String("error", err.Error()),
		)
	}
	if ok {
		if b, valid := ParseBucket(stored); valid {
			return b
		}
		s.logger.Warn("discarding invalid stored assignment",
			slog.String("experiment", experimentName),
			slog.String("value", stored),
		)
	}

	bucket := Assign(s.splitRatio, s.random)
	if err := s.persistence.Set(ctx, key, bucket.String(), AssignmentTTL); err != nil {
		s.logger.Warn("failed to persist assignment",
			slog.String("experiment", experimentName),
			slog.String("bucket", bucket.String()),
			slog.String("error", err.Error()),
		)
	}
	return bucket
}

// GetSessionID はセッションIDを返す。無いかUUIDとして不正な場合は新規発行して1日間保存する。
// バケット割り当てとは独立している。
func (s *Store) GetSessionID(ctx context.Context) string {
	stored, ok, err := s.persistence.Get(ctx, SessionKey)
	if err != nil {
		s.logger.Warn("failed to read session id", slog.String("error", err.Error()))
	}
	if ok && stored != "" {
		if _, perr := uuid.Parse(stored); perr == nil {
			return stored
		}
		s.logger.Warn("discarding malformed session id", slog.Int("length", len(stored)))
	}

	id := s.newID()
	if err := s.persistence.Set(ctx, SessionKey, id, SessionTTL); err != nil {
		s.logger.Warn("failed to persist session id", slog.String("error", err.Error()))
	}
	return id
}
