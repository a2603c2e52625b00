// Package calendar implements the calendar gateway against the provider's
// HTTP API. Tokens are looked up per driver; a driver without a connected
// credential cannot be synced.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/auth"
	corecalendar "github.com/eldlit/pet-dispatch-deploy/core/calendar"
	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// Config defines settings for the calendar HTTP client. When OAuth is set the
// gateway authenticates with a service-account token instead of the driver's
// stored access token; the driver still needs a connected credential.
type Config struct {
	BaseURL        string     `json:"base_url"`
	TimeoutSeconds int        `json:"timeout_seconds"`
	OAuth          *auth.Conf `json:"oauth,omitempty"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("calendar base_url must not be empty")
	}
	return nil
}

// HTTPGateway implements core/calendar.Gateway over the provider's REST API.
type HTTPGateway struct {
	cfg     Config
	creds   storage.CredentialStore
	client  *http.Client
	svcAuth *auth.ClientCred
	log     logger.Logger
}

var _ corecalendar.Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway using the given credential store.
func NewHTTPGateway(cfg Config, creds storage.CredentialStore, log logger.Logger) (*HTTPGateway, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is nil")
	}
	g := &HTTPGateway{
		cfg:    cfg,
		creds:  creds,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    log,
	}
	if cfg.OAuth != nil {
		g.svcAuth = auth.NewClientCred(*cfg.OAuth)
	}
	return g, nil
}

type eventPayload struct {
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type eventResponse struct {
	ID string `json:"id"`
}

// authorize stamps the Authorization header for the driver's calendar. A
// driver without a connected credential cannot be synced regardless of the
// authentication mode.
func (g *HTTPGateway) authorize(ctx context.Context, req *http.Request, driverID int64) error {
	cred, err := g.creds.Credential(ctx, driverID)
	if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}
	if cred == nil || !cred.Connected() {
		return corecalendar.ErrNotConnected
	}
	if g.svcAuth != nil {
		if err := g.svcAuth.SetAuthHeader(req); err != nil {
			return fmt.Errorf("service token: %w", err)
		}
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	return nil
}

// CreateEvent implements core/calendar.Gateway.
func (g *HTTPGateway) CreateEvent(ctx context.Context, driverID int64, spec corecalendar.EventSpec) (string, error) {
	body, err := json.Marshal(eventPayload{
		Summary:     spec.Summary,
		Description: spec.Description,
		Location:    spec.Location,
		Start:       spec.Start.UTC().Format(time.RFC3339),
		End:         spec.End.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1/calendars/%d/events", g.cfg.BaseURL, driverID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := g.authorize(ctx, req, driverID); err != nil {
		return "", err
	}
	if spec.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", spec.IdempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out eventResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode event response: %w", err)
		}
		if out.ID == "" {
			return "", fmt.Errorf("provider returned no event id")
		}
		return out.ID, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", corecalendar.ErrNotConnected
	default:
		return "", statusError("create event", resp)
	}
}

// CancelEvent implements core/calendar.Gateway.
func (g *HTTPGateway) CancelEvent(ctx context.Context, driverID int64, eventRef string) error {
	url := fmt.Sprintf("%s/v1/calendars/%d/events/%s", g.cfg.BaseURL, driverID, eventRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	if err := g.authorize(ctx, req, driverID); err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return corecalendar.ErrEventNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return corecalendar.ErrNotConnected
	default:
		return statusError("cancel event", resp)
	}
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: provider returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(body))
}
