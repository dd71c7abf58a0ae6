package request

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/valyala/fasthttp"
)

// Carrier is the method-style shape for callers whose request type is
// none of the natively supported ones. Implement it with a thin
// wrapper around the framework request.
type Carrier interface {
	UserAgent() string
	RemoteAddr() string
	Headers() map[string]string
}

// Normalizer extracts a Normalized snapshot from a raw request object.
// Recognized shapes are probed in a fixed priority order:
// *http.Request, *fasthttp.RequestCtx, Carrier, http.Header, and a
// plain header map. The list is closed on purpose; anything else
// yields an *UnsupportedTypeError.
type Normalizer struct {
	// TrustProxy enables client address extraction from
	// X-Forwarded-For / X-Real-IP. Leave it off unless the service
	// sits behind a proxy that strips inbound copies of those headers.
	TrustProxy bool
}

// Normalize builds the canonical view of a raw request. Missing
// optional fields become empty values; it only fails when the input
// exposes none of the recognized shapes. No I/O is performed and no
// allocation happens beyond copying the headers.
func (n Normalizer) Normalize(raw any) (Normalized, error) {
	switch r := raw.(type) {
	case *http.Request:
		return n.fromHTTP(r), nil
	case *fasthttp.RequestCtx:
		return n.fromFastHTTP(r), nil
	case Carrier:
		return n.fromCarrier(r), nil
	case http.Header:
		return n.fromHeaders(lowerHeaderMap(r), ""), nil
	case map[string]string:
		headers := make(map[string]string, len(r))
		for k, v := range r {
			headers[strings.ToLower(k)] = v
		}
		return n.fromHeaders(headers, ""), nil
	default:
		return Normalized{}, &UnsupportedTypeError{Value: raw}
	}
}

func (n Normalizer) fromHTTP(r *http.Request) Normalized {
	return n.fromHeaders(lowerHeaderMap(r.Header), r.RemoteAddr)
}

func (n Normalizer) fromFastHTTP(ctx *fasthttp.RequestCtx) Normalized {
	headers := make(map[string]string)
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		k := strings.ToLower(string(key))
		if _, ok := headers[k]; !ok {
			headers[k] = string(value)
		}
	})
	remote := ""
	if addr := ctx.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return n.fromHeaders(headers, remote)
}

func (n Normalizer) fromCarrier(c Carrier) Normalized {
	headers := make(map[string]string)
	for k, v := range c.Headers() {
		headers[strings.ToLower(k)] = v
	}
	out := n.fromHeaders(headers, c.RemoteAddr())
	if ua := c.UserAgent(); ua != "" {
		out.UserAgent = ua
	}
	return out
}

func (n Normalizer) fromHeaders(headers map[string]string, remoteAddr string) Normalized {
	return Normalized{
		UserAgent: headers["user-agent"],
		Addr:      n.clientAddr(headers, remoteAddr),
		Headers:   headers,
	}
}

// clientAddr resolves the source address, honoring proxy headers only
// when TrustProxy is set. An unparseable address is reported as the
// zero netip.Addr rather than an error.
func (n Normalizer) clientAddr(headers map[string]string, remoteAddr string) netip.Addr {
	if n.TrustProxy {
		if xff := headers["x-forwarded-for"]; xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if addr, ok := parseAddr(first); ok {
				return addr
			}
		}
		if xrip := headers["x-real-ip"]; xrip != "" {
			if addr, ok := parseAddr(strings.TrimSpace(xrip)); ok {
				return addr
			}
		}
	}
	if addr, ok := parseAddr(remoteAddr); ok {
		return addr
	}
	return netip.Addr{}
}

func parseAddr(s string) (netip.Addr, bool) {
	if s == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func lowerHeaderMap(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			headers[strings.ToLower(k)] = vs[0]
		}
	}
	return headers
}
