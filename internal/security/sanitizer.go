// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizer はサインアップフォームから受け取った値を保存前に無害化する。
// bluemondayのStrictPolicyで全てのタグを除去し、プレーンテキストとして扱う。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は保存する表示名の最大文字数。
const MaxNameLength = 100

// InputSanitizer はフォーム入力の無害化を行うインターフェース。
type InputSanitizer interface {
	// SanitizeName はタグを除去し、空白を正規化した表示名を返す。
	// 結果はプレーンテキストであり、出力時のエスケープはテンプレート側で行う。
	SanitizeName(raw string) string
	// NormalizeEmail は前後の空白を除去し、小文字化したメールアドレスを返す。
	NormalizeEmail(raw string) string
}

// inputSanitizer はInputSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerの新しいインスタンスを生成する。
func NewInputSanitizer() InputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名を無害化する。
func (s *inputSanitizer) SanitizeName(raw string) string {
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyはテキスト中の記号を実体参照にするため元の文字に戻す
	text := html.UnescapeString(stripped)
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxNameLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return text
}

// NormalizeEmail はメールアドレスを正規化する。
func (s *inputSanitizer) NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
