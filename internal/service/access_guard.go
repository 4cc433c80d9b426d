package service

import (
	"strings"

	"turbotalk/internal/domain"
)

const (
	LoginPath             = "/login"
	OwnerDashboardPath    = "/dashboard/owner"
	CustomerDashboardPath = "/dashboard/customer"
)

type VerdictKind string

const (
	VerdictAllow    VerdictKind = "allow"
	VerdictRedirect VerdictKind = "redirect"
	VerdictDefer    VerdictKind = "defer"
)

// Verdict es el resultado del guard: Allow, RedirectTo(path) o Defer.
type Verdict struct {
	Kind VerdictKind `json:"kind"`
	Path string      `json:"path,omitempty"`
}

func Allow() Verdict                { return Verdict{Kind: VerdictAllow} }
func RedirectTo(path string) Verdict { return Verdict{Kind: VerdictRedirect, Path: path} }
func Defer() Verdict                { return Verdict{Kind: VerdictDefer} }

// DefaultPath es el panel propio de cada rol.
func DefaultPath(role domain.Role) string {
	if role == domain.RoleOwner {
		return OwnerDashboardPath
	}
	return CustomerDashboardPath
}

// Decide es puro y debe evaluarse en cada navegacion.
// requiredRole vacio significa "solo autenticado".
func Decide(snap SessionSnapshot, requiredRole domain.Role) Verdict {
	switch snap.State {
	case StateAuthenticating:
		return Defer()
	case StateAuthenticated:
	default:
		return RedirectTo(LoginPath)
	}
	if !snap.Session.Authenticated() {
		return RedirectTo(LoginPath)
	}
	if requiredRole != "" && snap.Session.Role != requiredRole {
		return RedirectTo(DefaultPath(snap.Session.Role))
	}
	return Allow()
}

type routeAccess int

const (
	routePublic routeAccess = iota
	routeGuest
	routeRoot
	routeGated
)

type RouteRule struct {
	Prefix string
	Role   domain.Role
	access routeAccess
}

// RouteTable asocia rutas de la app con el rol que requieren.
type RouteTable struct {
	rules []RouteRule
}

func DefaultRouteTable() RouteTable {
	return RouteTable{rules: []RouteRule{
		{Prefix: LoginPath, access: routeGuest},
		{Prefix: "/chat", access: routePublic},
		{Prefix: CustomerDashboardPath, Role: domain.RoleCustomer, access: routeGated},
		{Prefix: OwnerDashboardPath, Role: domain.RoleOwner, access: routeGated},
	}}
}

func (t RouteTable) match(path string) (RouteRule, bool) {
	path = normalizePath(path)
	if path == "/" {
		return RouteRule{Prefix: "/", access: routeRoot}, true
	}
	for _, rule := range t.rules {
		if path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			return rule, true
		}
	}
	return RouteRule{}, false
}

// DecidePath aplica el guard a una ruta concreta. Las rutas desconocidas se permiten.
func (t RouteTable) DecidePath(snap SessionSnapshot, path string) Verdict {
	rule, ok := t.match(path)
	if !ok {
		return Allow()
	}
	switch rule.access {
	case routePublic:
		return Allow()
	case routeGuest, routeRoot:
		if snap.State == StateAuthenticated && snap.Session.Authenticated() {
			return RedirectTo(DefaultPath(snap.Session.Role))
		}
		if rule.access == routeRoot {
			return RedirectTo(LoginPath)
		}
		return Allow()
	default:
		return Decide(snap, rule.Role)
	}
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
