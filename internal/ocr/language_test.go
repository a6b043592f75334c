package ocr

import "testing"

func TestLanguageChecker(t *testing.T) {
	lc := NewLanguageChecker([]string{"en", "ko", "xx"})
	tests := []struct {
		name     string
		text     string
		wantLang string
		wantOK   bool
	}{
		{"short", "Q3 plan", "", true},
		{"english", "The quarterly revenue report shows strong growth across every region this year", "en", true},
		{"korean", "오늘 회의에서는 다음 분기의 매출 목표와 신규 채용 계획을 논의합니다", "ko", true},
		{"german", "Die Besprechung heute behandelt die Umsatzziele und die Einstellungspläne für das nächste Quartal", "de", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, ok := lc.Check(tt.text)
			if lang != tt.wantLang || ok != tt.wantOK {
				t.Errorf("Check() = %q, %v, want %q, %v", lang, ok, tt.wantLang, tt.wantOK)
			}
		})
	}
}

func TestLanguageChecker_NoLanguagesAllowsAll(t *testing.T) {
	lc := NewLanguageChecker(nil)
	if _, ok := lc.Check("Die Besprechung heute behandelt die Umsatzziele"); !ok {
		t.Error("checker without configured languages should allow everything")
	}
}
