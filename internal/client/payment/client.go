// Package payment is the HTTP client for the payment gateway's preference
// API: one call per online order, returning the checkout redirect URL. The
// gateway confirms payment out of band; this client never touches order
// state.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tianguis/checkout/internal/domain/checkout"
)

var _ checkout.PaymentGateway = (*Client)(nil)

// DefaultTimeout bounds one preference-creation round trip.
const DefaultTimeout = 10 * time.Second

// Client calls the payment gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client with the given base URL and API token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type preferenceItem struct {
	Title     string          `json:"title"`
	ID        string          `json:"id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type preferencePayer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type preferenceRequest struct {
	ExternalReference string           `json:"external_reference"`
	Items             []preferenceItem `json:"items"`
	Payer             preferencePayer  `json:"payer"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference requests a payment session for the order and returns the
// redirect URL the browser is sent to.
func (c *Client) CreatePreference(ctx context.Context, req checkout.PreferenceRequest) (*checkout.Preference, error) {
	items := make([]preferenceItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = preferenceItem{
			Title:     it.Title,
			ID:        it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	body, err := json.Marshal(preferenceRequest{
		ExternalReference: req.OrderID,
		Items:             items,
		Payer: preferencePayer{
			Email: req.Payer.Email,
			Name:  req.Payer.Name,
			Phone: req.Payer.Phone,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "payment gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("payment gateway returned %d", resp.StatusCode)
	}

	var pr preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if pr.InitPoint == "" {
		return nil, errors.New("payment gateway returned no redirect URL")
	}
	return &checkout.Preference{ID: pr.ID, RedirectURL: pr.InitPoint}, nil
}
