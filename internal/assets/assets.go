package assets

import _ "embed"

// Embedded response pages, compiled into the binary at build time.

//go:embed paywall.html
var PaywallHTML []byte

//go:embed blocked.html
var BlockedHTML []byte
