package duty

import "testing"

func TestEvaluateQuota(t *testing.T) {
	cfg := Config{MessagesPerHour: 10, VoiceMinutesPerHour: 5}

	tests := []struct {
		name        string
		counters    Counters
		requireBoth bool
		wantOK      bool
		wantDetail  string
	}{
		{"both met", Counters{MessagesHour: 10, VoiceMinutesHour: 5}, true, true, ""},
		{"either suffices", Counters{MessagesHour: 10}, false, true, ""},
		{"voice alone suffices", Counters{VoiceMinutesHour: 7}, false, true, ""},
		{"neither met", Counters{MessagesHour: 2, VoiceMinutesHour: 1}, false, false,
			"messages (2/10) and voice minutes (1/5)"},
		{"both required, one missing", Counters{MessagesHour: 12}, true, false,
			"voice minutes (0/5)"},
		{"both required, both missing", Counters{}, true, false,
			"messages (0/10) and voice minutes (0/5)"},
		{"exactly at threshold", Counters{MessagesHour: 10, VoiceMinutesHour: 5}, true, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.RequireBoth = tt.requireBoth
			ok, detail := evaluateQuota(tt.counters, c)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if detail != tt.wantDetail {
				t.Fatalf("detail = %q, want %q", detail, tt.wantDetail)
			}
		})
	}
}
