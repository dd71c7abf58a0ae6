package detect

import "time"

// Method identifies which rule category produced a match.
type Method string

const (
	MethodUAExact   Method = "user_agent_exact"
	MethodUAPattern Method = "user_agent_pattern"
	MethodIPRange   Method = "ip_range"
	MethodHeuristic Method = "heuristic"
	MethodNone      Method = "none"
)

// UnknownBotType tags heuristic matches that no signature identified.
const UnknownBotType = "unknown_bot"

// Result is the outcome of classifying one request. It is created
// once per classification and never mutated afterwards; stores persist
// their own copy. Readers of serialized results must tolerate unknown
// trailing fields, which encoding/json does by default.
type Result struct {
	ID         string    `json:"id,omitempty"`
	IsBot      bool      `json:"is_bot"`
	BotType    string    `json:"bot_type,omitempty"`
	Confidence float64   `json:"confidence"`
	Method     Method    `json:"detection_method"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Timestamp  time.Time `json:"ts"`
}
