package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力からマークアップを取り除き、プレーンテキストにする。
// 求人情報をAIプロンプトに埋め込む前と保存前に使用する。
type TextSanitizer interface {
	StripText(s string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizer実装。
// ポリシーは生成後に変更しないため、複数のgoroutineから同時に利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// StripText は全てのHTMLタグを除去し、エンティティを元の文字に戻して前後の空白を取り除く。
// script、styleは中身ごと除去される。
func (s *textSanitizer) StripText(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
