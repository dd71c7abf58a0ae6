package httpx

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ProxyHandler forwards requests to the protected origin when the
// paywall runs in middleware mode. Detection has already happened by
// the time a request reaches it.
type ProxyHandler struct {
	destination string
	client      *http.Client
}

// NewProxyHandler creates a new proxy handler for the given destination.
func NewProxyHandler(destination string) *ProxyHandler {
	return &ProxyHandler{
		destination: destination,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ServeHTTP proxies the request to the destination server.
func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	targetURL, err := url.Parse(p.destination)
	if err != nil {
		log.Printf("proxy: invalid destination URL: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	targetURL.Path = r.URL.Path
	targetURL.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, targetURL.String(), r.Body)
	if err != nil {
		log.Printf("proxy: failed to create request: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}

	// The origin sees the paywall's address on the socket; preserve
	// the real client in X-Forwarded-For.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		prior := proxyReq.Header.Get("X-Forwarded-For")
		if prior != "" {
			proxyReq.Header.Set("X-Forwarded-For", prior+", "+host)
		} else {
			proxyReq.Header.Set("X-Forwarded-For", host)
		}
	}

	proxyReq.Host = targetURL.Host

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		log.Printf("proxy: request to %s failed: %v", targetURL.String(), err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Printf("proxy: failed to copy response body: %v", err)
	}
}
