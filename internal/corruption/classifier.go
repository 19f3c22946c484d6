// Package corruption 判斷訊息文字是否為亂碼或錯誤佔位文字.
//
// 出現空白或標點的文字不套用單詞規則.
package corruption

import (
	"regexp"
	"strings"
	"unicode"
)

// RedactedText 清理後寫回訊息的佔位文字.
const RedactedText = "Message unavailable"

// 判斷原因.
const (
	ReasonErrorMessage      = "Error message"
	ReasonNonPrintable      = "High ratio of non-printable characters with no whitespace"
	ReasonExtremelyLongWord = "Extremely long single word (50+ letters)"
	ReasonVeryLongWord      = "Very long single word (30+ letters)"
	ReasonAccentedRun       = "Long string of only accented characters"
	ReasonRepetitivePattern = "Very repetitive character pattern"
	ReasonLongAlphanumeric  = "Very long alphanumeric string"
)

// nonPrintableThreshold 非可列印字元比例上限（嚴格大於才判定）.
const nonPrintableThreshold = 0.5

// knownErrorTexts 已知的錯誤佔位文字，大小寫敏感且需完全相符.
var knownErrorTexts = []string{
	RedactedText,
	"Message corrupted",
	"[Failed to decrypt]",
	"[Decryption failed]",
}

// wordPattern 單詞規則，依序比對，第一個命中者為準.
type wordPattern struct {
	re     *regexp.Regexp
	reason string
}

var wordPatterns = []wordPattern{
	{regexp.MustCompile(`[a-zA-Z]{50,}`), ReasonExtremelyLongWord},
	{regexp.MustCompile(`[a-zA-Z]{30,}`), ReasonVeryLongWord},
	{regexp.MustCompile(`(?i)[àáâãäåæçèéêëìíîïðñòóôõöøùúûüýþÿ]{20,}`), ReasonAccentedRun},
	{regexp.MustCompile(`[kKdDlLsS]{20,}`), ReasonRepetitivePattern},
	{regexp.MustCompile(`[a-zA-Z0-9]{40,}`), ReasonLongAlphanumeric},
}

// wordBreakPunctuation 出現任一即視為一般句子，不套用單詞規則.
const wordBreakPunctuation = ".,!?;:"

// Result 判斷結果.
type Result struct {
	Corrupted bool   `json:"corrupted"`
	Reason    string `json:"reason,omitempty"`
}

// Classify 判斷文字是否損壞。純函數，不做任何 I/O.
func Classify(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}
	}

	if IsKnownErrorText(text) {
		return Result{Corrupted: true, Reason: ReasonErrorMessage}
	}

	// 有空白代表多個詞，視為正常文字
	if nonPrintableRatio(text) > nonPrintableThreshold && !containsSpace(text) {
		return Result{Corrupted: true, Reason: ReasonNonPrintable}
	}

	if containsSpace(trimmed) || strings.ContainsAny(trimmed, wordBreakPunctuation) {
		return Result{}
	}

	for _, p := range wordPatterns {
		if p.re.MatchString(trimmed) {
			return Result{Corrupted: true, Reason: p.reason}
		}
	}

	return Result{}
}

// IsKnownErrorText 檢查是否為已知的錯誤佔位文字.
func IsKnownErrorText(text string) bool {
	for _, known := range knownErrorTexts {
		if text == known {
			return true
		}
	}
	return false
}

// KnownErrorTexts 回傳已知錯誤文字的副本.
func KnownErrorTexts() []string {
	out := make([]string, len(knownErrorTexts))
	copy(out, knownErrorTexts)
	return out
}

// nonPrintableRatio 以 rune 計算不可列印字元（Cc、Zl、Zp）比例.
func nonPrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if !unicode.In(r, unicode.Cc, unicode.Zl, unicode.Zp) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(total-printable) / float64(total)
}

func containsSpace(text string) bool {
	return strings.IndexFunc(text, unicode.IsSpace) >= 0
}
