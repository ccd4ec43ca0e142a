package router

import (
	"log/slog"
	"sync"

	"finetune-console/internal/session"
	"finetune-console/pkg/api"
)

type AuthState int

const (
	Loading AuthState = iota
	Authenticated
	Unauthenticated
)

func (s AuthState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// SessionView is the part of the session store the guard reads.
type SessionView interface {
	State() session.State
	Credential() (api.Credential, bool)
}

// Guard derives the authentication state from the session store. It never
// contacts the backend.
func Guard(s SessionView) AuthState {
	switch s.State() {
	case session.StateResolving:
		return Loading
	case session.StateResolved:
		return Authenticated
	case session.StateInit:
		if _, ok := s.Credential(); ok {
			return Loading
		}
		return Unauthenticated
	default:
		return Unauthenticated
	}
}

// Navigator tracks the current location. Soft navigation comes from screens
// after their own calls succeed; a hard redirect comes from the session policy
// and discards whatever the current screen was doing.
type Navigator struct {
	mu       sync.Mutex
	routes   *routeMux
	sessions SessionView

	current    Location
	generation uint64
}

var _ session.Redirector = (*Navigator)(nil)

func NewNavigator(sessions SessionView) *Navigator {
	n := &Navigator{routes: newRouteMux(), sessions: sessions}
	n.current = n.resolve(PathTasks)
	return n
}

func (n *Navigator) Current() Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Generation changes on every hard redirect.
func (n *Navigator) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.generation
}

func (n *Navigator) Navigate(path string) Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = n.resolve(path)
	return n.current
}

// NavigateFrom navigates only if no hard redirect happened since generation
// was observed. It reports whether it navigated.
func (n *Navigator) NavigateFrom(generation uint64, path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.generation != generation {
		return false
	}
	n.current = n.resolve(path)
	return true
}

func (n *Navigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
	n.current = n.resolve(path)
	slog.Debug("hard redirect", "path", path, "screen", n.current.Screen)
}

func (n *Navigator) RedirectToLogin() {
	n.Redirect(PathLogin)
}

// Refresh re-applies the guard to the current path, e.g. once session
// resolution has finished.
func (n *Navigator) Refresh() Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = n.resolve(n.current.Path)
	return n.current
}

func (n *Navigator) resolve(path string) Location {
	loc, r, ok := n.routes.match(path)
	if !ok {
		loc, r, _ = n.routes.match(PathTasks)
	}

	if r.public {
		return loc
	}

	switch Guard(n.sessions) {
	case Loading:
		return Location{Path: loc.Path, Screen: ScreenLoading, Params: loc.Params}
	case Unauthenticated:
		login, _, _ := n.routes.match(PathLogin)
		return login
	default:
		return loc
	}
}
