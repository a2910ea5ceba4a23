// Package accounts is the HTTP client for the accounts service: session
// lookup, deferred guest registration, and default-address writes.
//
// Request credentials travel in the context: the HTTP handler stores the
// caller's bearer token (and, for guests, the contact email) before order
// composition starts, so the identity resolver can poll for the session that
// deferred registration eventually creates.
package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tianguis/checkout/internal/domain/identity"
)

var _ identity.Accounts = (*Client)(nil)

// DefaultTimeout bounds one accounts-service round trip.
const DefaultTimeout = 5 * time.Second

type tokenKey struct{}
type guestEmailKey struct{}

// WithToken stores the caller's bearer token for session lookup.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// WithGuestEmail stores the guest contact email so the client can poll for
// the session created by deferred registration.
func WithGuestEmail(ctx context.Context, email string) context.Context {
	if email == "" {
		return ctx
	}
	return context.WithValue(ctx, guestEmailKey{}, email)
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

func guestEmailFrom(ctx context.Context) string {
	e, _ := ctx.Value(guestEmailKey{}).(string)
	return e
}

// Client calls the accounts service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type sessionResponse struct {
	UserID            string `json:"userId"`
	DefaultAddressID  string `json:"defaultAddressId"`
	DefaultAddressZip string `json:"defaultAddressZip"`
}

// CurrentSession returns the active session for the caller's token, or — for
// guests mid-registration — the session keyed by the registered email once it
// has propagated. Returns identity.ErrNoSession when neither exists yet.
func (c *Client) CurrentSession(ctx context.Context) (*identity.Session, error) {
	token := tokenFrom(ctx)
	email := guestEmailFrom(ctx)
	if token == "" && email == "" {
		return nil, identity.ErrNoSession
	}

	u := c.baseURL + "/v1/session"
	if token == "" {
		u += "?email=" + url.QueryEscape(email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "accounts service")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var sr sessionResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return nil, errors.Wrap(err, "decode session")
		}
		return &identity.Session{
			UserID:          sr.UserID,
			SavedAddressID:  sr.DefaultAddressID,
			SavedAddressZip: sr.DefaultAddressZip,
		}, nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, identity.ErrNoSession
	default:
		return nil, errors.Errorf("accounts service returned %d", resp.StatusCode)
	}
}

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// RegisterDeferred fires the asynchronous password-set-later sign-up.
// A 409 means the email already has an account and maps to
// identity.ErrEmailTaken, which callers treat as a warning, not a failure.
func (c *Client) RegisterDeferred(ctx context.Context, g identity.Guest) error {
	body, err := json.Marshal(registerRequest{Email: g.Email, Name: g.Name, Phone: g.Phone})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/accounts/deferred", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "accounts service")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return identity.ErrEmailTaken
	default:
		return errors.Errorf("accounts service returned %d", resp.StatusCode)
	}
}

type addressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Zip        string `json:"zip"`
	Country    string `json:"country"`
	References string `json:"references,omitempty"`
	IsDefault  bool   `json:"isDefault"`
}

// SaveDefaultAddress persists addr as the account's default address.
func (c *Client) SaveDefaultAddress(ctx context.Context, userID string, addr identity.Address) error {
	body, err := json.Marshal(addressRequest{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		Zip:        addr.Zip,
		Country:    addr.Country,
		References: addr.References,
		IsDefault:  true,
	})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/v1/accounts/"+url.PathEscape(userID)+"/addresses/default",
		bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "accounts service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return errors.Errorf("accounts service returned %d", resp.StatusCode)
	}
	return nil
}
