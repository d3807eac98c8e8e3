// Package api talks to the orchestration platform on behalf of a driver
// command: it decrypts password attributes, reports a resource's live
// status and posts messages to the reservation output window.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

// Live status names understood by the platform.
const (
	StatusOnline = "Online"
	StatusError  = "Error"
)

// Client is the subset of the platform API the driver uses.
type Client interface {
	DecryptPassword(ctx context.Context, encrypted string) (string, error)
	SetResourceLiveStatus(ctx context.Context, resource, status, description string) error
	WriteMessageToReservationOutput(ctx context.Context, reservationID, message string) error
}

// HTTPClient is a Client backed by the platform's REST endpoint.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient builds a client from the connectivity block of a command
// context. Scheme defaults to http and port to 8029.
func NewHTTPClient(c *shellctx.Connectivity, timeout time.Duration) (*HTTPClient, error) {
	if c == nil || c.ServerAddress == "" {
		return nil, fmt.Errorf("%w: platform server address not set", util.ErrInvalidConfig)
	}
	scheme := strings.ToLower(c.CloudShellAPIScheme)
	if scheme == "" {
		scheme = "http"
	}
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported API scheme %q", util.ErrInvalidConfig, c.CloudShellAPIScheme)
	}
	port := c.CloudShellAPIPort
	if port == "" {
		port = "8029"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: fmt.Sprintf("%s://%s:%s/api/v1", scheme, c.ServerAddress, port),
		token:   c.AdminAuthToken,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// DecryptPassword asks the platform to decrypt a password attribute.
func (c *HTTPClient) DecryptPassword(ctx context.Context, encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	body, _ := sjson.Set("", "value", encrypted)
	resp, err := c.do(ctx, http.MethodPost, "/passwords/decrypt", body)
	if err != nil {
		return "", fmt.Errorf("decrypting password: %w", err)
	}
	v := gjson.Get(resp, "value")
	if !v.Exists() {
		return "", fmt.Errorf("decrypting password: response has no value")
	}
	return v.String(), nil
}

// SetResourceLiveStatus updates the status icon of a resource.
func (c *HTTPClient) SetResourceLiveStatus(ctx context.Context, resource, status, description string) error {
	body, _ := sjson.Set("", "status", status)
	body, _ = sjson.Set(body, "description", description)
	if _, err := c.do(ctx, http.MethodPut, "/resources/"+url.PathEscape(resource)+"/live-status", body); err != nil {
		return fmt.Errorf("setting live status of %s: %w", resource, err)
	}
	return nil
}

// WriteMessageToReservationOutput appends a line to the reservation output.
func (c *HTTPClient) WriteMessageToReservationOutput(ctx context.Context, reservationID, message string) error {
	if reservationID == "" {
		return nil
	}
	body, _ := sjson.Set("", "message", message)
	if _, err := c.do(ctx, http.MethodPost, "/reservations/"+url.PathEscape(reservationID)+"/output", body); err != nil {
		return fmt.Errorf("writing reservation output: %w", err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return "", fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, msg)
	}
	return string(data), nil
}

// Offline is used when a command runs without a platform connection.
// Passwords are taken as plain text and status updates only log.
type Offline struct{}

func (Offline) DecryptPassword(_ context.Context, encrypted string) (string, error) {
	return encrypted, nil
}

func (Offline) SetResourceLiveStatus(_ context.Context, resource, status, description string) error {
	util.WithResource(resource).Infof("live status: %s (%s)", status, description)
	return nil
}

func (Offline) WriteMessageToReservationOutput(_ context.Context, reservationID, message string) error {
	util.WithField("reservation", reservationID).Info(message)
	return nil
}

// ForContext returns an HTTP client when the context names a platform
// server, and Offline otherwise.
func ForContext(c shellctx.Context, timeout time.Duration) (Client, error) {
	conn := c.GetConnectivity()
	if conn == nil || conn.ServerAddress == "" {
		return Offline{}, nil
	}
	return NewHTTPClient(conn, timeout)
}
