package tokens

import "testing"

func TestCountFallsBackWithoutEncoding(t *testing.T) {
	e := &Estimator{}
	if got := e.Count("12345678"); got != 2 {
		t.Errorf("Count = %d, want 2 (chars/4 fallback)", got)
	}
	var nilEst *Estimator
	if got := nilEst.Count("12345678"); got != 2 {
		t.Errorf("nil Count = %d, want 2", got)
	}
}

func TestCapMaxTokens(t *testing.T) {
	tests := []struct {
		name           string
		requestedMax   int
		contextWindow  int
		estimatedInput int
		buffer         int
		want           int
	}{
		{"fits within window", 8192, 200000, 1000, 100, 8192},
		{"capped by window", 8192, 10000, 5000, 100, 3900},
		{"minimum output floor", 8192, 1000, 5000, 100, 100},
		{"no window means no cap", 8192, 0, 5000, 100, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CapMaxTokens(tt.requestedMax, tt.contextWindow, tt.estimatedInput, tt.buffer)
			if got != tt.want {
				t.Errorf("CapMaxTokens = %d, want %d", got, tt.want)
			}
		})
	}
}
