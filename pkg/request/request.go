package request

import (
	"fmt"
	"net/netip"
)

// Normalized is the framework-neutral snapshot of the fields detection
// needs. It is immutable once built and owned by the call that
// produced it; nothing here is shared across requests.
type Normalized struct {
	UserAgent string
	Addr      netip.Addr // zero value when absent or unparseable
	Headers   map[string]string
}

// Header returns a header value by its lower-cased name.
func (n Normalized) Header(name string) string {
	return n.Headers[name]
}

// UnsupportedTypeError means the raw request exposed none of the
// recognized shapes. Callers typically treat this as "assume human"
// rather than failing the host request.
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported request type %T", e.Value)
}
