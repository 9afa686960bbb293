package explorer

import "strings"

// RouteKind selects one of the five views.
type RouteKind int

const (
	RouteHome RouteKind = iota
	RouteTransaction
	RouteAddress
	RouteBlock
	RouteNotFound
)

func (k RouteKind) String() string {
	switch k {
	case RouteHome:
		return "home"
	case RouteTransaction:
		return "tx"
	case RouteAddress:
		return "address"
	case RouteBlock:
		return "block"
	default:
		return "notFound"
	}
}

// Route is the navigational state derived from a URL fragment.
type Route struct {
	Kind RouteKind
	ID   string
}

// HomeRoute is the route for an absent fragment.
var HomeRoute = Route{Kind: RouteHome}

// NotFoundRoute is the route for anything that cannot be resolved.
var NotFoundRoute = Route{Kind: RouteNotFound}

func TransactionRoute(txid string) Route {
	return Route{Kind: RouteTransaction, ID: txid}
}

func BlockRoute(hash string) Route {
	return Route{Kind: RouteBlock, ID: hash}
}

func AddressRoute(addr string) Route {
	return Route{Kind: RouteAddress, ID: addr}
}

// ParseFragment maps a fragment of the shape kind/id (with or without the
// leading '#') to a route. An empty fragment is Home. Exactly one '/' and a
// non-blank id are required; unknown kinds are NotFound.
func ParseFragment(fragment string) Route {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return HomeRoute
	}

	parts := strings.Split(fragment, "/")
	if len(parts) != 2 {
		return NotFoundRoute
	}

	kind, id := parts[0], parts[1]
	if strings.TrimSpace(id) == "" {
		return NotFoundRoute
	}

	switch kind {
	case "tx":
		return TransactionRoute(id)
	case "block":
		return BlockRoute(id)
	case "address":
		return AddressRoute(id)
	default:
		return NotFoundRoute
	}
}

// Fragment returns the canonical "#kind/id" for entity routes and "" for
// home. NotFound has no canonical fragment and also returns "".
func (r Route) Fragment() string {
	switch r.Kind {
	case RouteTransaction, RouteBlock, RouteAddress:
		return "#" + r.Kind.String() + "/" + r.ID
	default:
		return ""
	}
}

// Path returns the server path for the route, e.g. "/tx/abc".
func (r Route) Path() string {
	if f := r.Fragment(); f != "" {
		return "/" + strings.TrimPrefix(f, "#")
	}
	return "/"
}
