package origin

import (
	"net/http"
	"strings"
)

// Outcome is the gate's verdict for one request.
type Outcome int

const (
	// Preflight answers OPTIONS with 204 whatever the origin.
	Preflight Outcome = iota
	// NoOrigin is a non-browser caller; the wildcard is allowed.
	NoOrigin
	// Allowed echoes an allowlisted origin.
	Allowed
	// Denied rejects a browser origin that is not allowlisted.
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Preflight:
		return "preflight"
	case NoOrigin:
		return "no_origin"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision carries the outcome and the access-control headers it implies.
type Decision struct {
	Outcome          Outcome
	AllowOrigin      string
	AllowCredentials bool
}

// Gate decides cross-origin access from a single allowlist.
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a gate from exact origin strings. Blank entries are ignored.
func NewGate(origins []string) *Gate {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		allowed[o] = struct{}{}
	}
	return &Gate{allowed: allowed}
}

// Allows reports whether origin is on the allowlist.
func (g *Gate) Allows(origin string) bool {
	if g == nil {
		return false
	}
	_, ok := g.allowed[origin]
	return ok
}

// Decide is a pure function of the request origin and method.
func (g *Gate) Decide(origin, method string) Decision {
	var d Decision
	switch {
	case origin == "":
		d = Decision{Outcome: NoOrigin, AllowOrigin: "*"}
	case g.Allows(origin):
		d = Decision{Outcome: Allowed, AllowOrigin: origin, AllowCredentials: true}
	default:
		d = Decision{Outcome: Denied}
	}
	if strings.EqualFold(method, http.MethodOptions) {
		d.Outcome = Preflight
	}
	return d
}
