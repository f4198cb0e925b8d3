// Package client talks to the backend's client API over HTTP. Client
// implements auth.Client, and exposes the remaining client routes
// (registration, function calls) for use with an access token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/productinfo/stitch-js-sdk/auth"
	"github.com/productinfo/stitch-js-sdk/session"
)

// Version is sent to the backend as the SDK version in device info.
const Version = "0.9.0"

const (
	tracerName     = "github.com/productinfo/stitch-js-sdk/client"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Client is an HTTP client for one application.
type Client struct {
	baseURL    *url.URL
	appID      string
	routes     routes
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracerProvider sets the tracer provider for request spans. Default:
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// New returns a Client for appID on the backend at baseURL.
func New(baseURL, appID string, opts ...Option) (*Client, error) {
	if appID == "" {
		return nil, errors.New("client: app id is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		appID:      appID,
		routes:     newRoutes(appID),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

// AppID returns the application id requests are scoped to.
func (c *Client) AppID() string { return c.appID }

type deviceInfo struct {
	DeviceID        string `json:"deviceId,omitempty"`
	AppID           string `json:"appId"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	SDKVersion      string `json:"sdkVersion"`
}

type authResponse struct {
	UserID       string `json:"user_id"`
	DeviceID     string `json:"device_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type profileResponse struct {
	UserID     string             `json:"user_id"`
	Type       session.UserType   `json:"type"`
	Identities []session.Identity `json:"identities"`
	Data       map[string]string  `json:"data"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

func (c *Client) loginBody(cred auth.Credential, deviceID string) map[string]any {
	body := make(map[string]any, len(cred.Material())+1)
	for k, v := range cred.Material() {
		body[k] = v
	}
	body["options"] = map[string]any{
		"device": deviceInfo{
			DeviceID:        deviceID,
			AppID:           c.appID,
			Platform:        "go",
			PlatformVersion: runtime.Version(),
			SDKVersion:      Version,
		},
	}
	return body
}

// ExchangeCredential logs in with cred on its provider's login route.
func (c *Client) ExchangeCredential(ctx context.Context, cred auth.Credential, deviceID string) (auth.Exchange, error) {
	var resp authResponse
	err := c.do(ctx, "login", http.MethodPost, c.routes.login(cred.ProviderName(), false), "",
		c.loginBody(cred, deviceID), &resp,
		attribute.String("stitch.provider_type", cred.ProviderType()))
	if err != nil {
		return auth.Exchange{}, err
	}
	if resp.UserID == "" || resp.AccessToken == "" || resp.RefreshToken == "" {
		return auth.Exchange{}, fmt.Errorf("login: %w: missing user id or tokens", ErrMalformedResponse)
	}
	return auth.Exchange(resp), nil
}

// LinkCredential links cred's identity to the user owning accessToken.
func (c *Client) LinkCredential(ctx context.Context, accessToken string, cred auth.Credential) (auth.Exchange, error) {
	var resp authResponse
	err := c.do(ctx, "link", http.MethodPost, c.routes.login(cred.ProviderName(), true), accessToken,
		c.loginBody(cred, ""), &resp,
		attribute.String("stitch.provider_type", cred.ProviderType()))
	if err != nil {
		return auth.Exchange{}, err
	}
	return auth.Exchange(resp), nil
}

// FetchProfile returns the profile of the user owning accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (session.Profile, error) {
	var resp profileResponse
	if err := c.do(ctx, "profile", http.MethodGet, c.routes.profile(), accessToken, nil, &resp); err != nil {
		return session.Profile{}, err
	}
	if resp.Type == "" {
		return session.Profile{}, fmt.Errorf("profile: %w: missing user type", ErrMalformedResponse)
	}
	return session.Profile{
		UserType:   resp.Type,
		Identities: resp.Identities,
		Data:       resp.Data,
	}, nil
}

// Refresh exchanges refreshToken for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, "refresh", http.MethodPost, c.routes.session(), refreshToken, nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("refresh: %w: missing access token", ErrMalformedResponse)
	}
	return resp.AccessToken, nil
}

// Invalidate ends the server session behind refreshToken.
func (c *Client) Invalidate(ctx context.Context, refreshToken string) error {
	return c.do(ctx, "invalidate", http.MethodDelete, c.routes.session(), refreshToken, nil, nil)
}

// RegisterWithEmail creates a user/password identity. The new user still
// has to log in with an auth.UserPasswordCredential.
func (c *Client) RegisterWithEmail(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, "register", http.MethodPost, c.routes.register(), "", body, nil)
}

// CallFunction runs the named backend function with args as the user owning
// accessToken and decodes its result into out, which may be nil.
func (c *Client) CallFunction(ctx context.Context, accessToken, name string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	body := map[string]any{"name": name, "arguments": args}
	return c.do(ctx, "function_call", http.MethodPost, c.routes.functionCall(), accessToken, body, out,
		attribute.String("stitch.function", name))
}

// do sends one request. A non-empty bearer is sent as the Authorization
// header. Non-2xx responses become *ServiceError; failures to reach the
// backend become *TransportError.
func (c *Client) do(ctx context.Context, op, method, path, bearer string, in, out any, attrs ...attribute.KeyValue) (err error) {
	ctx, span := c.tracer.Start(ctx, "stitch."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(attrs,
			attribute.String("http.request.method", method),
			attribute.String("stitch.app_id", c.appID),
		)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeServiceError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Debug("undecodable response", "op", op, "status", resp.StatusCode, "error", err)
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	return nil
}

func decodeServiceError(resp *http.Response) error {
	se := &ServiceError{StatusCode: resp.StatusCode, Code: CodeUnknown}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.ErrorCode != "" {
			se.Code = body.ErrorCode
		}
		se.Message = body.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

var _ auth.Client = (*Client)(nil)
