package detect

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/james-livefront/ai-paywall/pkg/config"
	"github.com/james-livefront/ai-paywall/pkg/pattern"
	"github.com/james-livefront/ai-paywall/pkg/request"
)

// DefaultThreshold is the minimum signature confidence required to
// classify a request as a bot when none is configured.
const DefaultThreshold = 0.7

// Heuristic configures the fallback pass for suspicious but
// unidentified user agents. The fixed confidence is itself subject to
// the engine threshold, so with default settings the pass never fires.
type Heuristic struct {
	Enabled    bool
	Confidence float64
}

// DefaultHeuristic is the documented fallback policy: enabled, with a
// conservative fixed confidence of 0.5.
var DefaultHeuristic = Heuristic{Enabled: true, Confidence: 0.5}

// Engine classifies normalized requests against a pattern database.
// Classify is pure and lock-free; the only shared state is the
// read-only database snapshot taken per call.
type Engine struct {
	db        *pattern.Database
	threshold float64
	heuristic Heuristic
}

// New builds an engine. The threshold and heuristic confidence are
// validated eagerly; a bad value fails construction rather than a
// later request.
func New(db *pattern.Database, threshold float64, heuristic Heuristic) (*Engine, error) {
	if db == nil {
		return nil, &config.ValidationError{Field: "pattern_database", Reason: "required"}
	}
	if threshold < 0 || threshold > 1 {
		return nil, &config.ValidationError{
			Field:  "confidence_threshold",
			Reason: fmt.Sprintf("%v outside [0, 1]", threshold),
		}
	}
	if heuristic.Enabled && (heuristic.Confidence < 0 || heuristic.Confidence > 1) {
		return nil, &config.ValidationError{
			Field:  "heuristic_confidence",
			Reason: fmt.Sprintf("%v outside [0, 1]", heuristic.Confidence),
		}
	}
	return &Engine{db: db, threshold: threshold, heuristic: heuristic}, nil
}

// Threshold reports the configured confidence threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Classify runs the matching algorithm: signatures in database order,
// user-agent rules before IP ranges within a signature, first match at
// or above the threshold wins, then the heuristic pass, then a non-bot
// result. The classification fields are a deterministic function of
// (request, database snapshot, threshold); only ID and Timestamp are
// fresh per call. Runtime is linear in the signature count and the
// user-agent length.
func (e *Engine) Classify(n request.Normalized) Result {
	res := Result{
		ID:        uuid.NewString(),
		Method:    MethodNone,
		UserAgent: n.UserAgent,
		Timestamp: time.Now().UTC(),
	}
	if n.Addr.IsValid() {
		res.RemoteAddr = n.Addr.String()
	}

	for _, sig := range e.db.All() {
		method := matchSignature(sig, n)
		if method == MethodNone || sig.Confidence < e.threshold {
			continue
		}
		res.IsBot = true
		res.BotType = sig.Name
		res.Confidence = sig.Confidence
		res.Method = method
		return res
	}

	if e.heuristic.Enabled && e.heuristic.Confidence >= e.threshold && suspiciousUserAgent(n.UserAgent) {
		res.IsBot = true
		res.BotType = UnknownBotType
		res.Confidence = e.heuristic.Confidence
		res.Method = MethodHeuristic
		return res
	}

	return res
}

// matchSignature reports the highest-precedence rule that matched:
// exact user agent, then user agent pattern, then IP range.
func matchSignature(sig pattern.Signature, n request.Normalized) Method {
	switch sig.MatchUserAgent(n.UserAgent) {
	case pattern.UAExact:
		return MethodUAExact
	case pattern.UAPattern:
		return MethodUAPattern
	}
	if sig.MatchIP(n.Addr) {
		return MethodIPRange
	}
	return MethodNone
}
