package llm

import "testing"

func TestEffectiveTuning(t *testing.T) {
	tests := []struct {
		name     string
		cfgMax   int
		cfgTemp  float64
		call     CallContext
		wantMax  int
		wantTemp float64
	}{
		{
			name:     "config defaults when call is unset",
			cfgMax:   8192,
			cfgTemp:  0.4,
			call:     CallContext{},
			wantMax:  8192,
			wantTemp: 0.4,
		},
		{
			name:     "call overrides both",
			cfgMax:   8192,
			cfgTemp:  0.4,
			call:     CallContext{MaxTokens: 2048, Temperature: 0.9},
			wantMax:  2048,
			wantTemp: 0.9,
		},
		{
			name:     "call overrides tokens only",
			cfgMax:   8192,
			cfgTemp:  0.4,
			call:     CallContext{MaxTokens: 2048},
			wantMax:  2048,
			wantTemp: 0.4,
		},
		{
			name:     "call overrides temperature only",
			cfgMax:   8192,
			cfgTemp:  0.4,
			call:     CallContext{Temperature: 0.1},
			wantMax:  8192,
			wantTemp: 0.1,
		},
		{
			name:     "zero everywhere stays zero",
			cfgMax:   0,
			cfgTemp:  0,
			call:     CallContext{},
			wantMax:  0,
			wantTemp: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMax, gotTemp := effectiveTuning(tt.cfgMax, tt.cfgTemp, tt.call)
			if gotMax != tt.wantMax {
				t.Errorf("maxTokens = %d, want %d", gotMax, tt.wantMax)
			}
			if gotTemp != tt.wantTemp {
				t.Errorf("temperature = %g, want %g", gotTemp, tt.wantTemp)
			}
		})
	}
}

func TestReportProgressClamps(t *testing.T) {
	var got []float64
	call := CallContext{OnProgress: func(f float64) { got = append(got, f) }}

	call.reportProgress(-0.5)
	call.reportProgress(0.5)
	call.reportProgress(1.5)

	want := []float64{0, 0.5, 1}
	if len(got) != len(want) {
		t.Fatalf("got %d callbacks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback %d = %g, want %g", i, got[i], want[i])
		}
	}
}
