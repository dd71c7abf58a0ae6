package pattern

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

// UAMatcher is one user-agent matcher: either a plain string (matched
// exactly first, then as a case-insensitive substring) or a regular
// expression. The JSON forms are "GPTBot" and {"regex": "GPT.*Bot"},
// matching the community pattern format.
type UAMatcher struct {
	Pattern string
	Regex   bool
}

func (m *UAMatcher) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Pattern = s
		m.Regex = false
		return nil
	}
	var obj struct {
		Regex string `json:"regex"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("user agent matcher must be a string or {\"regex\": ...}: %w", err)
	}
	if obj.Regex == "" {
		return fmt.Errorf("user agent matcher object must carry a non-empty \"regex\" key")
	}
	m.Pattern = obj.Regex
	m.Regex = true
	return nil
}

func (m UAMatcher) MarshalJSON() ([]byte, error) {
	if m.Regex {
		return json.Marshal(struct {
			Regex string `json:"regex"`
		}{Regex: m.Pattern})
	}
	return json.Marshal(m.Pattern)
}

// Spec is the wire format for one bot definition, as supplied by callers
// or by the bundled pattern file.
type Spec struct {
	Name        string      `json:"name"`
	UserAgents  []UAMatcher `json:"user_agents,omitempty"`
	IPRanges    []string    `json:"ip_ranges,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty"`
	Description string      `json:"description,omitempty"`
	Company     string      `json:"company,omitempty"`
	DocsURL     string      `json:"docs_url,omitempty"`
}

// DefaultConfidence is applied when a spec omits its confidence. The
// omission is recorded on the compiled signature so callers can warn
// about it rather than silently trusting the default.
const DefaultConfidence = 0.5

// Signature is a compiled, immutable bot definition ready for matching.
type Signature struct {
	Name        string
	UserAgents  []UAMatcher
	IPRanges    []netip.Prefix
	Confidence  float64
	Description string
	Company     string
	DocsURL     string

	// ConfidenceDefaulted is set when the source spec omitted its
	// confidence and DefaultConfidence was applied.
	ConfidenceDefaulted bool

	exact   []string
	regexps []*regexp.Regexp
}

// UAMatch reports which matcher tier a user agent satisfied.
type UAMatch int

const (
	UANone UAMatch = iota
	UAPattern
	UAExact
)

// Compile validates a spec and produces a matchable signature.
// Regular expressions are compiled here with Go's RE2 engine, which
// has no backtracking, so pathological patterns are rejected or made
// harmless before they ever reach the request path.
func (s Spec) Compile() (Signature, error) {
	if s.Name == "" {
		return Signature{}, &ValidationError{Name: s.Name, Reason: "name is required"}
	}
	if len(s.UserAgents) == 0 && len(s.IPRanges) == 0 {
		return Signature{}, &ValidationError{Name: s.Name, Reason: "at least one user agent matcher or ip range is required"}
	}

	sig := Signature{
		Name:        s.Name,
		UserAgents:  append([]UAMatcher(nil), s.UserAgents...),
		Description: s.Description,
		Company:     s.Company,
		DocsURL:     s.DocsURL,
	}

	if s.Confidence == nil {
		sig.Confidence = DefaultConfidence
		sig.ConfidenceDefaulted = true
	} else {
		sig.Confidence = *s.Confidence
		if sig.Confidence < 0 || sig.Confidence > 1 {
			return Signature{}, &ValidationError{
				Name:   s.Name,
				Reason: fmt.Sprintf("confidence %v outside [0, 1]", sig.Confidence),
			}
		}
	}

	for _, m := range s.UserAgents {
		if m.Pattern == "" {
			return Signature{}, &ValidationError{Name: s.Name, Reason: "empty user agent matcher"}
		}
		if m.Regex {
			re, err := regexp.Compile("(?i)" + m.Pattern)
			if err != nil {
				return Signature{}, &ValidationError{
					Name:   s.Name,
					Reason: fmt.Sprintf("bad regex %q: %v", m.Pattern, err),
				}
			}
			sig.regexps = append(sig.regexps, re)
		} else {
			sig.exact = append(sig.exact, strings.ToLower(m.Pattern))
		}
	}

	for _, r := range s.IPRanges {
		prefix, err := netip.ParsePrefix(r)
		if err != nil {
			return Signature{}, &ValidationError{
				Name:   s.Name,
				Reason: fmt.Sprintf("bad CIDR %q: %v", r, err),
			}
		}
		sig.IPRanges = append(sig.IPRanges, prefix.Masked())
	}

	return sig, nil
}

// MatchUserAgent tests a user agent against the signature's matchers.
// Exact string equality is checked before substring and regex matches
// so the reported tier is deterministic.
func (s Signature) MatchUserAgent(ua string) UAMatch {
	if ua == "" {
		return UANone
	}
	lower := strings.ToLower(ua)
	for _, p := range s.exact {
		if lower == p {
			return UAExact
		}
	}
	for _, p := range s.exact {
		if strings.Contains(lower, p) {
			return UAPattern
		}
	}
	for _, re := range s.regexps {
		if re.MatchString(ua) {
			return UAPattern
		}
	}
	return UANone
}

// MatchIP reports whether the address falls inside any of the
// signature's ranges. Invalid (zero) addresses never match.
func (s Signature) MatchIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	for _, prefix := range s.IPRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
