package pattern

import (
	"encoding/json"
	"net/netip"
	"testing"
)

func floatPtr(f float64) *float64 { return &f }

func TestSpecCompile(t *testing.T) {
	tests := []struct {
		name      string
		spec      Spec
		wantError bool
	}{
		{
			name: "valid with user agents",
			spec: Spec{
				Name:       "openai",
				UserAgents: []UAMatcher{{Pattern: "GPTBot"}},
				Confidence: floatPtr(0.9),
			},
		},
		{
			name: "valid with only ip ranges",
			spec: Spec{
				Name:       "datacenter",
				IPRanges:   []string{"20.171.0.0/16"},
				Confidence: floatPtr(0.8),
			},
		},
		{
			name:      "missing name",
			spec:      Spec{UserAgents: []UAMatcher{{Pattern: "X"}}},
			wantError: true,
		},
		{
			name:      "no matchers at all",
			spec:      Spec{Name: "empty"},
			wantError: true,
		},
		{
			name: "confidence above 1",
			spec: Spec{
				Name:       "dup",
				UserAgents: []UAMatcher{{Pattern: "X"}},
				Confidence: floatPtr(2.0),
			},
			wantError: true,
		},
		{
			name: "confidence below 0",
			spec: Spec{
				Name:       "neg",
				UserAgents: []UAMatcher{{Pattern: "X"}},
				Confidence: floatPtr(-0.1),
			},
			wantError: true,
		},
		{
			name: "bad CIDR",
			spec: Spec{
				Name:       "badnet",
				IPRanges:   []string{"20.171.0.0/99"},
				Confidence: floatPtr(0.5),
			},
			wantError: true,
		},
		{
			name: "bad regex",
			spec: Spec{
				Name:       "badre",
				UserAgents: []UAMatcher{{Pattern: "(", Regex: true}},
				Confidence: floatPtr(0.5),
			},
			wantError: true,
		},
		{
			name: "empty matcher string",
			spec: Spec{
				Name:       "blank",
				UserAgents: []UAMatcher{{Pattern: ""}},
				Confidence: floatPtr(0.5),
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Compile()
			if (err != nil) != tt.wantError {
				t.Errorf("Compile() error = %v, wantError = %v", err, tt.wantError)
			}
			if tt.wantError {
				if _, ok := err.(*ValidationError); !ok {
					t.Errorf("error type = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestSpecCompileDefaultsConfidence(t *testing.T) {
	sig, err := Spec{Name: "noconf", UserAgents: []UAMatcher{{Pattern: "X"}}}.Compile()
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	if sig.Confidence != DefaultConfidence {
		t.Errorf("Confidence = %v, want %v", sig.Confidence, DefaultConfidence)
	}
	if !sig.ConfidenceDefaulted {
		t.Error("ConfidenceDefaulted should be set when confidence is omitted")
	}
}

func TestSignatureMatchUserAgent(t *testing.T) {
	sig, err := Spec{
		Name: "openai",
		UserAgents: []UAMatcher{
			{Pattern: "GPTBot"},
			{Pattern: "GPT.*Crawler", Regex: true},
		},
		Confidence: floatPtr(0.9),
	}.Compile()
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	tests := []struct {
		name string
		ua   string
		want UAMatch
	}{
		{"exact match", "GPTBot", UAExact},
		{"exact match is case-insensitive", "gptbot", UAExact},
		{"substring match", "GPTBot/1.0", UAPattern},
		{"regex match", "Some GPT Web Crawler", UAPattern},
		{"no match", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", UANone},
		{"empty user agent never matches", "", UANone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sig.MatchUserAgent(tt.ua); got != tt.want {
				t.Errorf("MatchUserAgent(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestSignatureMatchIP(t *testing.T) {
	sig, err := Spec{
		Name:       "openai",
		IPRanges:   []string{"20.171.0.0/16"},
		Confidence: floatPtr(0.9),
	}.Compile()
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}

	if !sig.MatchIP(netip.MustParseAddr("20.171.4.8")) {
		t.Error("address inside range should match")
	}
	if sig.MatchIP(netip.MustParseAddr("8.8.8.8")) {
		t.Error("address outside range should not match")
	}
	if sig.MatchIP(netip.Addr{}) {
		t.Error("zero address should never match")
	}
}

func TestUAMatcherJSON(t *testing.T) {
	t.Run("decodes plain string", func(t *testing.T) {
		var m UAMatcher
		if err := json.Unmarshal([]byte(`"GPTBot"`), &m); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if m.Pattern != "GPTBot" || m.Regex {
			t.Errorf("got %+v, want plain GPTBot", m)
		}
	})

	t.Run("decodes regex object", func(t *testing.T) {
		var m UAMatcher
		if err := json.Unmarshal([]byte(`{"regex": "GPT.*Bot"}`), &m); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if m.Pattern != "GPT.*Bot" || !m.Regex {
			t.Errorf("got %+v, want regex GPT.*Bot", m)
		}
	})

	t.Run("rejects object without regex key", func(t *testing.T) {
		var m UAMatcher
		if err := json.Unmarshal([]byte(`{"glob": "*"}`), &m); err == nil {
			t.Error("expected error for object without regex key")
		}
	})

	t.Run("round-trips", func(t *testing.T) {
		for _, m := range []UAMatcher{{Pattern: "GPTBot"}, {Pattern: "GPT.*Bot", Regex: true}} {
			b, err := json.Marshal(m)
			if err != nil {
				t.Fatalf("marshal failed: %v", err)
			}
			var back UAMatcher
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if back != m {
				t.Errorf("round trip = %+v, want %+v", back, m)
			}
		}
	})
}

func TestDefaults(t *testing.T) {
	specs, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults() failed: %v", err)
	}
	if len(specs) == 0 {
		t.Fatal("bundled pattern set is empty")
	}

	seen := map[string]bool{}
	for _, spec := range specs {
		if seen[spec.Name] {
			t.Errorf("duplicate bundled pattern name %q", spec.Name)
		}
		seen[spec.Name] = true
		if _, err := spec.Compile(); err != nil {
			t.Errorf("bundled pattern %q does not compile: %v", spec.Name, err)
		}
	}

	for _, want := range []string{"openai", "anthropic", "common_crawl"} {
		if !seen[want] {
			t.Errorf("bundled set is missing %q", want)
		}
	}
}
