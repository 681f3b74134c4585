// Package remote is the SOAP client for the groupware schedule service.
package remote

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/starford/orgcal/internal/apperr"
	"github.com/starford/orgcal/internal/metrics"
	"github.com/starford/orgcal/internal/models"
)

// Remote actions.
const (
	ActionGetEventVersions = "ScheduleGetEventVersions"
	ActionGetEventsByID    = "ScheduleGetEventsById"
)

// Authentication modes.
const (
	AuthPassword = "password"
	AuthOAuth2   = "oauth2"
)

const (
	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second
	maxResponseSize  = 32 << 20
	tokenLifetime    = 5 * time.Minute
)

// Auth selects how requests are authenticated.
type Auth struct {
	Mode         string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Config describes one remote service endpoint.
type Config struct {
	BaseURL           string
	ServicePath       string
	Timeout           time.Duration
	RequestsPerSecond float64
	BatchSize         int
	Locale            string
	Auth              Auth
}

// Client calls the remote schedule service. It holds no state shared with
// other clients.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client. In oauth2 mode it is also used
// to fetch tokens.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the clock used for header timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperr.NewConfigurationError("remote.base_url", errors.New("is required"))
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthPassword
	}
	switch cfg.Auth.Mode {
	case AuthPassword:
		if cfg.Auth.Username == "" {
			return nil, apperr.NewConfigurationError("remote.auth.username", errors.New("is required in password mode"))
		}
	case AuthOAuth2:
		if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" || cfg.Auth.TokenURL == "" {
			return nil, apperr.NewConfigurationError("remote.auth", errors.New("client_id, client_secret and token_url are required in oauth2 mode"))
		}
	default:
		return nil, apperr.NewConfigurationError("remote.auth.mode", fmt.Errorf("unknown mode %q", cfg.Auth.Mode))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c.limiter = rate.NewLimiter(limit, 1)

	if cfg.Auth.Mode == AuthOAuth2 {
		cc := clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http)
		authed := cc.Client(ctx)
		authed.Timeout = cfg.Timeout
		c.http = authed
	}
	return c, nil
}

// Endpoint is the URL every action is posted to.
func (c *Client) Endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	path := strings.TrimLeft(c.cfg.ServicePath, "/")
	if path == "" {
		return base
	}
	return base + "/" + path
}

// GetVersionManifest returns the change manifest for [start, end] relative
// to the known id → version map.
func (c *Client) GetVersionManifest(ctx context.Context, start, end time.Time, known map[string]string) ([]models.ManifestEntry, error) {
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	params := versionsParams{
		Start: start.UTC().Format(time.RFC3339),
		End:   end.UTC().Format(time.RFC3339),
	}
	for _, id := range ids {
		params.Items = append(params.Items, eventItem{ID: id, Version: known[id]})
	}

	var resp versionsResponse
	if err := c.call(ctx, ActionGetEventVersions, params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.ManifestEntry, 0, len(resp.Items))
	for i, it := range resp.Items {
		payload := fmt.Sprintf("event_item[%d]", i)
		if it.ID == "" {
			return nil, remoteErr(ActionGetEventVersions, payload, errors.New("missing id attribute"))
		}
		op, err := models.ParseOperation(it.Operation)
		if err != nil {
			return nil, remoteErr(ActionGetEventVersions, payload, err)
		}
		if op != models.OperationRemove && it.Version == "" {
			return nil, remoteErr(ActionGetEventVersions, payload, errors.New("missing version attribute"))
		}
		out = append(out, models.ManifestEntry{ID: it.ID, Version: it.Version, Operation: op})
	}
	return out, nil
}

// GetEventsByID fetches full records for ids in batches. An empty id list
// issues no request.
func (c *Client) GetEventsByID(ctx context.Context, ids []string) ([]models.RawEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.RawEvent
	for batch := range slices.Chunk(ids, c.cfg.BatchSize) {
		var resp eventsResponse
		if err := c.call(ctx, ActionGetEventsByID, byIDParams{IDs: batch}, &resp); err != nil {
			return nil, err
		}
		for i, se := range resp.Events {
			raw, err := se.toRaw()
			if err != nil {
				return nil, remoteErr(ActionGetEventsByID, fmt.Sprintf("schedule_event[%d]", i), err)
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, action string, params, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote(action, start, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return remoteErr(action, "request", err)
	}

	reqBody, err := c.encode(action, params)
	if err != nil {
		return remoteErr(action, "request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return remoteErr(action, "request", err)
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+action+`"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return remoteErr(action, "transport", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return remoteErr(action, "response", err)
	}

	var env responseEnvelope
	decodeErr := xml.Unmarshal(data, &env)
	if decodeErr == nil && env.Body.Fault != nil {
		return remoteErr(action, "fault", env.Body.Fault)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remoteErr(action, "response", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return remoteErr(action, "envelope", decodeErr)
	}
	if len(bytes.TrimSpace(env.Body.Content)) == 0 {
		return remoteErr(action, "envelope", errors.New("empty body"))
	}
	if err := xml.Unmarshal(env.Body.Content, out); err != nil {
		return remoteErr(action, action+"Response", err)
	}

	c.logger.Debug("remote call",
		slog.String("action", action),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (c *Client) encode(action string, params any) ([]byte, error) {
	now := c.now().UTC()
	env := envelope{
		XmlnsSoap: soapNS,
		Header: header{
			Action: action,
			Timestamp: timestamp{
				Created: now.Format(time.RFC3339),
				Expires: now.Add(tokenLifetime).Format(time.RFC3339),
			},
			Locale: c.cfg.Locale,
		},
		Body: body{Request: actionRequest{
			XMLName:    xml.Name{Local: action},
			Parameters: params,
		}},
	}
	if c.cfg.Auth.Mode == AuthPassword {
		env.Header.Security = &security{UsernameToken: usernameToken{
			Username: c.cfg.Auth.Username,
			Password: c.cfg.Auth.Password,
		}}
	}
	data, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

func (se scheduleEvent) toRaw() (models.RawEvent, error) {
	if se.ID == "" {
		return models.RawEvent{}, errors.New("missing id attribute")
	}
	if se.Version == "" {
		return models.RawEvent{}, fmt.Errorf("event %s: missing version attribute", se.ID)
	}
	raw := models.RawEvent{
		ID:          se.ID,
		Version:     se.Version,
		EventType:   se.EventType,
		Plan:        se.Plan,
		Detail:      se.Detail,
		Description: strings.TrimSpace(se.Description),
		Timezone:    se.Timezone,
	}
	for _, m := range se.Members {
		switch {
		case m.User != nil:
			raw.Members = append(raw.Members, models.RawMember{Kind: models.MemberUser, ID: m.User.ID, Name: m.User.Name})
		case m.Facility != nil:
			raw.Members = append(raw.Members, models.RawMember{Kind: models.MemberFacility, ID: m.Facility.ID, Name: m.Facility.Name})
		}
	}
	if se.When != nil {
		switch {
		case len(se.When.DateTime) > 0:
			raw.When = &models.RawWhen{Start: se.When.DateTime[0].Start, End: se.When.DateTime[0].End}
		case len(se.When.Date) > 0:
			raw.When = &models.RawWhen{Start: se.When.Date[0].Start, End: se.When.Date[0].End}
		}
	}
	if se.Repeat != nil {
		rep := &models.RawRepeat{}
		for _, cond := range se.Repeat.Conditions {
			rep.Conditions = append(rep.Conditions, models.RawCondition(cond))
		}
		for _, ex := range se.Repeat.Exclusions {
			rep.Exclusions = append(rep.Exclusions, models.RawExclusion(ex))
		}
		raw.Repeat = rep
	}
	return raw, nil
}

func remoteErr(action, payload string, err error) error {
	return &apperr.RemoteError{Action: action, Payload: payload, Err: err}
}
