package experiment

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

// --- モック定義 ---

type setCall struct {
	key   string
	value string
	ttl   time.Duration
}

// memoryPersistence はテスト用のインメモリPersistence。
type memoryPersistence struct {
	values map[string]string
	sets   []setCall
	getErr error
	setErr error
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{values: make(map[string]string)}
}

func (m *memoryPersistence) Get(ctx context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryPersistence) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.sets = append(m.sets, setCall{key: key, value: value, ttl: ttl})
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func fixedRandom(v float64) RandomSource {
	return RandomFunc(func() float64 { return v })
}

// --- GetBucket ---

func TestStore_GetBucket_NoAssignment_AssignsAndPersists(t *testing.T) {
	p := newMemoryPersistence()
	s := NewStore(p, StoreOptions{SplitRatio: 0.5, Random: fixedRandom(0.1)})

	got := s.GetBucket(context.Background(), "comet_promo_test")
	if got != BucketControl {
		t.Errorf("bucket = %q, want %q", got, BucketControl)
	}

	if len(p.sets) != 1 {
		t.Fatalf("Set calls = %d, want 1", len(p.sets))
	}
	call := p.sets[0]
	if call.key != "abtest_comet_promo_test" {
		t.Errorf("key = %q, want %q", call.key, "abtest_comet_promo_test")
	}
	if call.value != "control" {
		t.Errorf("value = %q, want control", call.value)
	}
	if call.ttl != 30*24*time.Hour {
		t.Errorf("ttl = %v, want 30 days", call.ttl)
	}
}

func TestStore_GetBucket_ExistingAssignment_NeverRerolls(t *testing.T) {
	// 保存済みの値は分割比や乱数に関わらずそのまま返る
	for _, ratio := range []float64{0.01, 0.5, 0.99} {
		p := newMemoryPersistence()
		p.values["abtest_comet_promo_test"] = "variant"

		rolled := false
		s := NewStore(p, StoreOptions{
			SplitRatio: ratio,
			Random: RandomFunc(func() float64 {
				rolled = true
				return 0
			}),
		})

		for i := 0; i < 5; i++ {
			if got := s.GetBucket(context.Background(), "comet_promo_test"); got != BucketVariant {
				t.Errorf("ratio=%v: bucket = %q, want variant", ratio, got)
			}
		}
		if rolled {
			t.Errorf("ratio=%v: bucketing function should not be invoked for an existing assignment", ratio)
		}
		if len(p.sets) != 0 {
			t.Errorf("ratio=%v: Set should not be called, got %d calls", ratio, len(p.sets))
		}
	}
}

func TestStore_GetBucket_SecondCallReturnsFirstAssignment(t *testing.T) {
	p := newMemoryPersistence()
	r := rand.New(rand.NewPCG(1, 2))
	s := NewStore(p, StoreOptions{SplitRatio: 0.5, Random: r})

	first := s.GetBucket(context.Background(), "exp")
	for i := 0; i < 20; i++ {
		if got := s.GetBucket(context.Background(), "exp"); got != first {
			t.Fatalf("call %d returned %q, want sticky %q", i, got, first)
		}
	}
}

func TestStore_GetBucket_InvalidStoredValue_Reassigns(t *testing.T) {
	var buf bytes.Buffer
	p := newMemoryPersistence()
	p.values["abtest_exp"] = "treatment"
	s := NewStore(p, StoreOptions{SplitRatio: 0.5, Random: fixedRandom(0.9), Logger: newTestLogger(&buf)})

	got := s.GetBucket(context.Background(), "exp")
	if got != BucketVariant {
		t.Errorf("bucket = %q, want variant", got)
	}
	if p.values["abtest_exp"] != "variant" {
		t.Errorf("stored = %q, want variant", p.values["abtest_exp"])
	}
	if !strings.Contains(buf.String(), "invalid stored assignment") {
		t.Errorf("expected warning log, got: %s", buf.String())
	}
}

func TestStore_GetBucket_StorageDisabled_StillReturnsBucket(t *testing.T) {
	var buf bytes.Buffer
	p := newMemoryPersistence()
	p.getErr = errors.New("storage disabled")
	p.setErr = errors.New("storage disabled")
	s := NewStore(p, StoreOptions{SplitRatio: 0.5, Random: fixedRandom(0.2), Logger: newTestLogger(&buf)})

	got := s.GetBucket(context.Background(), "exp")
	if got != BucketControl {
		t.Errorf("bucket = %q, want control", got)
	}
	if !strings.Contains(buf.String(), "failed to persist assignment") {
		t.Errorf("expected persistence warning, got: %s", buf.String())
	}
}

func TestStore_GetBucket_FreshVisitorsConvergeToRatio(t *testing.T) {
	const trials = 10000
	r := rand.New(rand.NewPCG(2024, 10))

	control := 0
	for i := 0; i < trials; i++ {
		// 訪問者ごとに空のストレージ
		s := NewStore(newMemoryPersistence(), StoreOptions{SplitRatio: 0.5, Random: r})
		if s.GetBucket(context.Background(), "exp") == BucketControl {
			control++
		}
	}

	fraction := float64(control) / trials
	if math.Abs(fraction-0.5) > 0.02 {
		t.Errorf("control fraction = %v, want 0.5 ± 0.02", fraction)
	}
}

func TestNewStore_InvalidRatio_FallsBackToDefault(t *testing.T) {
	s := NewStore(newMemoryPersistence(), StoreOptions{SplitRatio: 1.5})
	if s.splitRatio != DefaultSplitRatio {
		t.Errorf("splitRatio = %v, want %v", s.splitRatio, DefaultSplitRatio)
	}
}

// --- GetSessionID ---

func TestStore_GetSessionID_CreatesAndPersistsForOneDay(t *testing.T) {
	p := newMemoryPersistence()
	s := NewStore(p, StoreOptions{NewID: func() string { return "11111111-2222-3333-4444-555555555555" }})

	got := s.GetSessionID(context.Background())
	if got != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("session id = %q", got)
	}
	if len(p.sets) != 1 {
		t.Fatalf("Set calls = %d, want 1", len(p.sets))
	}
	if p.sets[0].key != "session_id" {
		t.Errorf("key = %q, want session_id", p.sets[0].key)
	}
	if p.sets[0].ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", p.sets[0].ttl)
	}
}

func TestStore_GetSessionID_ReturnsExisting(t *testing.T) {
	p := newMemoryPersistence()
	p.values["session_id"] = "0b7f3c9e-5d1a-4c2b-9e8f-123456789abc"
	s := NewStore(p, StoreOptions{NewID: func() string {
		t.Fatal("NewID should not be called when a session exists")
		return ""
	}})

	if got := s.GetSessionID(context.Background()); got != "0b7f3c9e-5d1a-4c2b-9e8f-123456789abc" {
		t.Errorf("session id = %q, want the stored one", got)
	}
}

func TestStore_GetSessionID_MalformedStoredValue_Reissues(t *testing.T) {
	for _, stored := range []string{"not-a-uuid", strings.Repeat("a", 200), "x@evil"} {
		t.Run(stored[:min(len(stored), 16)], func(t *testing.T) {
			p := newMemoryPersistence()
			p.values["session_id"] = stored
			var buf bytes.Buffer
			s := NewStore(p, StoreOptions{
				NewID:  func() string { return "11111111-2222-3333-4444-555555555555" },
				Logger: newTestLogger(&buf),
			})

			got := s.GetSessionID(context.Background())
			if got != "11111111-2222-3333-4444-555555555555" {
				t.Errorf("session id = %q, want a reissued UUID", got)
			}
			if p.values["session_id"] != got {
				t.Errorf("stored session id = %q, want %q", p.values["session_id"], got)
			}
			if !strings.Contains(buf.String(), "discarding malformed session id") {
				t.Errorf("expected a warning, got: %s", buf.String())
			}
		})
	}
}

func TestStore_GetSessionID_DefaultIsUUID(t *testing.T) {
	s := NewStore(newMemoryPersistence(), StoreOptions{})

	got := s.GetSessionID(context.Background())
	if len(got) != 36 || strings.Count(got, "-") != 4 {
		t.Errorf("session id = %q, want UUID format", got)
	}
}

func TestStore_SessionAndBucketAreIndependent(t *testing.T) {
	p := newMemoryPersistence()
	s := NewStore(p, StoreOptions{SplitRatio: 0.5, Random: fixedRandom(0.7)})

	sessionID := s.GetSessionID(context.Background())
	bucket := s.GetBucket(context.Background(), "exp")

	// セッションが切れても割り当ては残る
	delete(p.values, "session_id")
	if got := s.GetBucket(context.Background(), "exp"); got != bucket {
		t.Errorf("bucket changed after session expiry: %q -> %q", bucket, got)
	}
	if next := s.GetSessionID(context.Background()); next == sessionID {
		t.Error("a new session id should be issued after expiry")
	}
}
