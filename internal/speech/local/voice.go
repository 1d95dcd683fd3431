package local

import "strings"

// normalizeLocale 统一为小写并以 '-' 分隔，"zh_CN" 与 "zh-CN" 视为相同。
func normalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
}

// SelectVoice 为 locale 选择音色：先精确匹配，再按语言前缀加地区子串匹配。
// 都没有时返回 false，由引擎使用默认音色。
func SelectVoice(voices []Voice, locale string) (Voice, bool) {
	want := normalizeLocale(locale)
	if want == "" {
		return Voice{}, false
	}

	for _, v := range voices {
		if normalizeLocale(v.Locale) == want {
			return v, true
		}
	}

	lang, region, _ := strings.Cut(want, "-")
	for _, v := range voices {
		got := normalizeLocale(v.Locale)
		if !strings.HasPrefix(got, lang) {
			continue
		}
		if next := got[len(lang):]; next != "" && next[0] != '-' {
			// "zh" 不应匹配 "zha"
			continue
		}
		if region == "" || strings.Contains(got[len(lang):], region) {
			return v, true
		}
	}
	return Voice{}, false
}
