package local

import "testing"

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{Name: "Alex", Locale: "en_US"},
		{Name: "Sinji", Locale: "zh_HK"},
		{Name: "Tingting", Locale: "zh_CN"},
		{Name: "cmn", Locale: "zh-cmn-cn"},
		{Name: "za", Locale: "zha"},
	}

	tests := []struct {
		locale string
		want   string
		ok     bool
	}{
		{"zh-CN", "Tingting", true},
		{"zh_cn", "Tingting", true},
		{"ZH-HK", "Sinji", true},
		{"en", "Alex", true},
		{"zh-SG", "", false},
		{"fr-FR", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		v, ok := SelectVoice(voices, tt.locale)
		if ok != tt.ok || v.Name != tt.want {
			t.Errorf("SelectVoice(%q) = %q/%v, want %q/%v", tt.locale, v.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestSelectVoice_RegionSubstring(t *testing.T) {
	voices := []Voice{{Name: "cmn", Locale: "zh-Hans-CN"}}
	v, ok := SelectVoice(voices, "zh-CN")
	if !ok || v.Name != "cmn" {
		t.Errorf("expected region substring match, got %q/%v", v.Name, ok)
	}

	// 前缀必须是完整的语言子标签
	if _, ok := SelectVoice([]Voice{{Name: "za", Locale: "zha-CN"}}, "zh-CN"); ok {
		t.Error("zh should not match zha")
	}
}
