// Package experiment は訪問者のA/Bテストバケット割り当てを提供する。
//
// 割り当ては重み付きの一様乱数で1回だけ決定され、Persistenceに保存された後は
// 保持期間（30日）が切れるまで同じ値が返される。
package experiment

import "math/rand/v2"

// Bucket は訪問者に割り当てられた実験グループを表す。
type Bucket string

const (
	// BucketControl は対照群。
	BucketControl Bucket = "control"
	// BucketVariant は変更群。
	BucketVariant Bucket = "variant"
)

// DefaultSplitRatio はcontrolに割り当てられる既定の確率。
const DefaultSplitRatio = 0.5

// Buckets は定義済みの全バケットを返す。
func Buckets() []Bucket {
	return []Bucket{BucketControl, BucketVariant}
}

// ParseBucket は文字列をBucketに変換する。未知の値の場合はfalseを返す。
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case BucketControl:
		return BucketControl, true
	case BucketVariant:
		return BucketVariant, true
	default:
		return "", false
	}
}

// String はバケット名を返す。
func (b Bucket) String() string {
	return string(b)
}

// RandomSource は[0,1)の一様乱数を返す。
type RandomSource interface {
	Float64() float64
}

// RandomFunc は関数をRandomSourceとして扱うためのアダプタ。
type RandomFunc func() float64

// Float64 はRandomSourceを実装する。
func (f RandomFunc) Float64() float64 {
	return f()
}

// DefaultRandom はmath/rand/v2のグローバル乱数源を使うRandomSource。
var DefaultRandom RandomSource = RandomFunc(rand.Float64)

// Assign は分割比pに従って新しいバケットを決定する。
// 一様乱数がp未満ならcontrol、それ以外はvariantを返す。
// 記憶を持たないため、保存済みの割り当てが無い場合にのみ呼び出すこと。
func Assign(p float64, r RandomSource) Bucket {
	if r == nil {
		r = DefaultRandom
	}
	if r.Float64() < p {
		return BucketControl
	}
	return BucketVariant
}
