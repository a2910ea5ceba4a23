// Package identity decides guest vs. authenticated checkout and performs the
// deferred account creation for guests, tolerating the session-propagation
// race that follows auto-registration.
package identity

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Address is a shipping address. For guests it is a plain value; for
// authenticated customers it may be persisted as the account default.
type Address struct {
	Street     string
	City       string
	State      string
	Zip        string
	Country    string
	References string
	IsDefault  bool
}

// Guest is the contact data required for guest checkout. Email is mandatory;
// name and phone are recommended but optional.
type Guest struct {
	Email string
	Name  string
	Phone string
}

// Kind tags the settled identity.
type Kind string

const (
	KindGuest         Kind = "guest"
	KindAuthenticated Kind = "authenticated"
)

// Resolved is the settled identity. It is produced exactly once per checkout
// attempt and treated as immutable for the remainder of order composition.
type Resolved struct {
	Kind            Kind
	Guest           *Guest
	UserID          string
	SavedAddressID  string
	SavedAddressZip string
	// JustRegistered marks an identity created by auto-registration during
	// this flow. Address saving is skipped for it: the fresh session may not
	// be ready for writes yet.
	JustRegistered bool
	// EmailTaken is a surfaced warning: the guest email already has an
	// account, and the order continued as guest.
	EmailTaken bool
}

// Session is an authenticated session as reported by the accounts service.
type Session struct {
	UserID          string
	SavedAddressID  string
	SavedAddressZip string
}

var (
	// ErrNoSession is returned by Accounts when no session exists.
	ErrNoSession = errors.New("no active session")
	// ErrEmailTaken is returned by Accounts when the email is already
	// registered. It must not abort checkout.
	ErrEmailTaken = errors.New("email already registered")
	// ErrEmailRequired is returned when guest checkout is attempted without
	// a contact email.
	ErrEmailRequired = errors.New("guest email required")
)

// Accounts is the outbound interface to the accounts service.
type Accounts interface {
	// CurrentSession returns the active session or ErrNoSession.
	CurrentSession(ctx context.Context) (*Session, error)
	// RegisterDeferred fires an asynchronous sign-up with a
	// password-set-later flow. Returns ErrEmailTaken for known emails.
	RegisterDeferred(ctx context.Context, g Guest) error
	// SaveDefaultAddress persists addr as the account's default address.
	SaveDefaultAddress(ctx context.Context, userID string, addr Address) error
}

// Resolver settles the customer identity for one checkout attempt.
type Resolver struct {
	accounts     Accounts
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSessionWait overrides how long the resolver waits for a fresh session
// to propagate after auto-registration, and the poll interval.
func WithSessionWait(timeout, poll time.Duration) Option {
	return func(r *Resolver) {
		r.waitTimeout = timeout
		r.pollInterval = poll
	}
}

// NewResolver creates a Resolver with the default 500ms bounded session wait.
func NewResolver(accounts Accounts, opts ...Option) *Resolver {
	r := &Resolver{
		accounts:     accounts,
		waitTimeout:  500 * time.Millisecond,
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settle resolves the identity for this attempt. An existing session wins
// outright. Otherwise the guest contact is validated, auto-registration is
// fired, and the resolver waits a bounded time for the new session; when the
// session does not propagate in time the order continues as guest and any
// address saving is deferred to a later visit. Settle returns an error only
// for invalid guest input or a failed session lookup, never for registration
// races.
func (r *Resolver) Settle(ctx context.Context, g Guest) (Resolved, error) {
	lg := zctx.From(ctx)

	s, err := r.accounts.CurrentSession(ctx)
	switch {
	case err == nil:
		return Resolved{
			Kind:            KindAuthenticated,
			UserID:          s.UserID,
			SavedAddressID:  s.SavedAddressID,
			SavedAddressZip: s.SavedAddressZip,
		}, nil
	case errors.Is(err, ErrNoSession):
		// Guest path below.
	default:
		return Resolved{}, errors.Wrap(err, "current session")
	}

	if g.Email == "" {
		return Resolved{}, ErrEmailRequired
	}

	guest := g
	resolved := Resolved{Kind: KindGuest, Guest: &guest}

	if err := r.accounts.RegisterDeferred(ctx, g); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			lg.Warn("guest email already registered, continuing as guest",
				zap.String("email", g.Email))
			resolved.EmailTaken = true
			return resolved, nil
		}
		// Registration is a side effect: its failure never fails the order.
		lg.Warn("guest auto-registration failed, continuing as guest", zap.Error(err))
		return resolved, nil
	}

	if s := r.awaitSession(ctx); s != nil {
		return Resolved{
			Kind:            KindAuthenticated,
			UserID:          s.UserID,
			SavedAddressID:  s.SavedAddressID,
			SavedAddressZip: s.SavedAddressZip,
			JustRegistered:  true,
		}, nil
	}

	lg.Warn("session not ready after auto-registration, continuing as guest",
		zap.Duration("waited", r.waitTimeout))
	return resolved, nil
}

// awaitSession polls for the freshly registered session until the bounded
// wait elapses. Returns nil when the session has not propagated in time.
func (r *Resolver) awaitSession(ctx context.Context) *Session {
	ctx, cancel := context.WithTimeout(ctx, r.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		s, err := r.accounts.CurrentSession(ctx)
		if err == nil {
			return s
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
