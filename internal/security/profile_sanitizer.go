package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxNameLength は保存する表示名の最大文字数。
const maxNameLength = 100

// ProfileSanitizer はフェデレーションログインで受け取ったプロフィール値を
// 保存前に無害化する。
type ProfileSanitizer interface {
	// SanitizeName はHTMLを取り除いたプレーンテキストの表示名を返す。
	SanitizeName(name string) string
	// SafeImageURL は安全なhttps URLであればそのまま返し、そうでなければ空文字を返す。
	SafeImageURL(rawURL string) string
}

type profileSanitizer struct {
	policy *bluemonday.Policy
	guard  SSRFGuardService
}

// NewProfileSanitizer はProfileSanitizerを生成する。
// 表示名にはbluemondayのStrictPolicyを適用し、全てのタグを除去する。
func NewProfileSanitizer(guard SSRFGuardService) *profileSanitizer {
	return &profileSanitizer{
		policy: bluemonday.StrictPolicy(),
		guard:  guard,
	}
}

// SanitizeName は表示名からタグを除去し、前後の空白を詰めて最大文字数に切り詰める。
func (s *profileSanitizer) SanitizeName(name string) string {
	// StrictPolicyはテキストをHTMLエスケープして返すため、プレーンテキストに戻す
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if utf8.RuneCountInString(cleaned) > maxNameLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:maxNameLength])
	}
	return cleaned
}

// SafeImageURL はhttpsかつSSRFガードを通過するURLのみを返す。
func (s *profileSanitizer) SafeImageURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return ""
	}
	if err := s.guard.ValidateURL(rawURL); err != nil {
		return ""
	}
	return rawURL
}

var _ ProfileSanitizer = (*profileSanitizer)(nil)
