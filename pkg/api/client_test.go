package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

type recorded struct {
	method, path, auth, body string
}

func newTestServer(t *testing.T, status int, reply string) (*HTTPClient, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{r.Method, r.URL.EscapedPath(), r.Header.Get("Authorization"), string(b)})
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	host, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	c, err := NewHTTPClient(&shellctx.Connectivity{
		ServerAddress:     host,
		CloudShellAPIPort: port,
		AdminAuthToken:    "tok",
	}, time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c, &calls
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name    string
		conn    *shellctx.Connectivity
		wantURL string
		wantErr bool
	}{
		{"defaults", &shellctx.Connectivity{ServerAddress: "cs"}, "http://cs:8029/api/v1", false},
		{"https", &shellctx.Connectivity{ServerAddress: "cs", CloudShellAPIScheme: "HTTPS", CloudShellAPIPort: "443"}, "https://cs:443/api/v1", false},
		{"bad scheme", &shellctx.Connectivity{ServerAddress: "cs", CloudShellAPIScheme: "ftp"}, "", true},
		{"no server", &shellctx.Connectivity{}, "", true},
		{"nil", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewHTTPClient(tt.conn, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, util.ErrInvalidConfig) {
					t.Errorf("error should wrap ErrInvalidConfig: %v", err)
				}
				return
			}
			if c.baseURL != tt.wantURL {
				t.Errorf("baseURL = %q, want %q", c.baseURL, tt.wantURL)
			}
		})
	}
}

func TestHTTPClient_DecryptPassword(t *testing.T) {
	c, calls := newTestServer(t, http.StatusOK, `{"value":"s3cret"}`)

	got, err := c.DecryptPassword(context.Background(), "ENC==")
	if err != nil {
		t.Fatalf("DecryptPassword: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("DecryptPassword = %q", got)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != http.MethodPost || call.path != "/api/v1/passwords/decrypt" {
		t.Errorf("request = %s %s", call.method, call.path)
	}
	if call.auth != "Bearer tok" {
		t.Errorf("Authorization = %q", call.auth)
	}
	if gjson.Get(call.body, "value").String() != "ENC==" {
		t.Errorf("body = %s", call.body)
	}

	if v, err := c.DecryptPassword(context.Background(), ""); err != nil || v != "" {
		t.Errorf("empty password should not call the API: %q, %v", v, err)
	}
	if len(*calls) != 1 {
		t.Errorf("empty password made a request")
	}
}

func TestHTTPClient_DecryptPasswordMissingValue(t *testing.T) {
	c, _ := newTestServer(t, http.StatusOK, `{}`)
	if _, err := c.DecryptPassword(context.Background(), "x"); err == nil {
		t.Error("expected error for response without value")
	}
}

func TestHTTPClient_SetResourceLiveStatus(t *testing.T) {
	c, calls := newTestServer(t, http.StatusNoContent, "")

	if err := c.SetResourceLiveStatus(context.Background(), "nx core/1", StatusOnline, "Health check passed"); err != nil {
		t.Fatalf("SetResourceLiveStatus: %v", err)
	}
	call := (*calls)[0]
	if call.method != http.MethodPut || call.path != "/api/v1/resources/nx%20core%2F1/live-status" {
		t.Errorf("request = %s %s", call.method, call.path)
	}
	if gjson.Get(call.body, "status").String() != "Online" || gjson.Get(call.body, "description").String() != "Health check passed" {
		t.Errorf("body = %s", call.body)
	}
}

func TestHTTPClient_WriteMessage(t *testing.T) {
	c, calls := newTestServer(t, http.StatusOK, "")

	if err := c.WriteMessageToReservationOutput(context.Background(), "", "ignored"); err != nil {
		t.Fatalf("no reservation: %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("message without reservation should not call the API")
	}
	if err := c.WriteMessageToReservationOutput(context.Background(), "r1", "hello"); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if (*calls)[0].path != "/api/v1/reservations/r1/output" {
		t.Errorf("path = %s", (*calls)[0].path)
	}
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	c, _ := newTestServer(t, http.StatusForbidden, `{"error":"token expired"}`)

	err := c.SetResourceLiveStatus(context.Background(), "nx1", StatusError, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "token expired") || !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v", err)
	}
}

func TestForContext(t *testing.T) {
	c, err := ForContext(&shellctx.ResourceCommandContext{Connectivity: &shellctx.Connectivity{}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(Offline); !ok {
		t.Errorf("ForContext without server = %T, want Offline", c)
	}

	c, err = ForContext(&shellctx.ResourceCommandContext{Connectivity: &shellctx.Connectivity{ServerAddress: "cs"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*HTTPClient); !ok {
		t.Errorf("ForContext with server = %T, want *HTTPClient", c)
	}
}

func TestOffline(t *testing.T) {
	var c Client = Offline{}
	ctx := context.Background()
	if v, err := c.DecryptPassword(ctx, "plain"); v != "plain" || err != nil {
		t.Errorf("Offline.DecryptPassword = %q, %v", v, err)
	}
	if err := c.SetResourceLiveStatus(ctx, "nx1", StatusOnline, ""); err != nil {
		t.Error(err)
	}
	if err := c.WriteMessageToReservationOutput(ctx, "r1", "m"); err != nil {
		t.Error(err)
	}
}
