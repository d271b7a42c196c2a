package handler

import (
	"net"
	"net/http"
	"strings"
)

// AddressResolver works out which client address a request came from.
// The same resolver must serve join requests and websocket upgrades, since a
// channel is matched to its reservation by address.
type AddressResolver struct {
	// TrustProxy takes the first X-Forwarded-For entry when set
	TrustProxy bool
}

// Resolve returns the client address for r
func (a AddressResolver) Resolve(r *http.Request) string {
	if a.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
