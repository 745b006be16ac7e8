package model

import "testing"

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"*", "", false},
		{"driver_stats", "driver_stats", true},
		{"driver_stats", "rider_stats", false},
		{"driver_*", "driver_stats", true},
		{"driver_*", "rider_stats", false},
		{"*_stats", "driver_stats", true},
		{"*_stats", "driver_events", false},
		{"driver_*_v2", "driver_stats_v2", true},
		{"driver_*_v2", "driver_stats_v3", false},
	}
	for _, tt := range tests {
		if got := MatchGlob(tt.pattern, tt.value); got != tt.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestMatchSubscription(t *testing.T) {
	sub := Subscription{Project: "*", Name: "driver_*"}
	if !MatchSubscription(sub, "any_project", "driver_stats") {
		t.Errorf("expected wildcard project + prefix name to match")
	}
	if MatchSubscription(sub, "any_project", "rider_stats") {
		t.Errorf("expected non-matching name to fail")
	}
}

func TestLikePattern(t *testing.T) {
	if got := LikePattern("driver_*"); got != `driver\_%` {
		t.Errorf("LikePattern(%q) = %q, want %q", "driver_*", got, `driver\_%`)
	}
	if got := LikePattern("*"); got != "%" {
		t.Errorf("LikePattern(%q) = %q, want %q", "*", got, "%")
	}
}
