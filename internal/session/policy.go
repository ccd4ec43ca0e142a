package session

import (
	"context"
	"errors"
	"log/slog"

	"finetune-console/internal/transport"
)

// Redirector performs the hard navigation to the login screen.
type Redirector interface {
	RedirectToLogin()
}

// Policy decides what a rejected credential means for the session. It wraps a
// transport and, on a 401 aimed at the current credential, clears the session
// and redirects to login before handing the error back to the caller.
type Policy struct {
	next       transport.Doer
	store      *Store
	redirector Redirector
}

var _ transport.Doer = (*Policy)(nil)

func NewPolicy(next transport.Doer, store *Store, redirector Redirector) *Policy {
	return &Policy{next: next, store: store, redirector: redirector}
}

func (p *Policy) Do(ctx context.Context, req transport.Request, out any) error {
	err := p.next.Do(ctx, req, out)

	var authErr *transport.AuthenticationError
	if errors.As(err, &authErr) && p.store.ClearIfToken(authErr.Token()) {
		slog.Info("credential rejected by backend, session cleared", "method", req.Method, "path", req.Path)
		if p.redirector != nil {
			p.redirector.RedirectToLogin()
		}
	}

	return err
}
