package caldav

import (
	"context"
	"crypto/x509"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multistatus = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/dav.php/calendars/verein/default/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>Vereinskalender</d:displayname>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/dav.php/calendars/verein/default/1.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype/>
        <d:getcontenttype>text/calendar; charset=utf-8; component=vevent</d:getcontenttype>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>2.ICS</d:href>
    <d:propstat><d:prop><d:resourcetype/></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
  <d:response>
    <d:href>/dav.php/calendars/verein/default/notes.txt</d:href>
    <d:propstat><d:prop><d:resourcetype/></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
</d:multistatus>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func trustedClient(srv *httptest.Server) *Client {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return NewClient("alice", "secret", Options{
		RootCAs: pool,
		Timeout: 5 * time.Second,
		Logger:  testLogger(),
	})
}

func TestPropfindBody(t *testing.T) {
	body := PropfindBody()
	assert.Contains(t, body, `xmlns:d="DAV:"`)
	assert.Contains(t, body, "<d:displayname/>")
	assert.Contains(t, body, "<d:resourcetype/>")
	assert.Contains(t, body, "<d:getcontenttype/>")
}

func TestParseMultistatus(t *testing.T) {
	resources, err := ParseMultistatus([]byte(multistatus))
	require.NoError(t, err)
	require.Len(t, resources, 4)

	assert.True(t, resources[0].IsCollection)
	assert.Equal(t, "Vereinskalender", resources[0].DisplayName)
	assert.False(t, resources[0].IsICS())

	assert.True(t, resources[1].IsICS())
	assert.Contains(t, resources[1].ContentType, "text/calendar")
	assert.True(t, resources[2].IsICS())
	assert.False(t, resources[3].IsICS())
}

func TestParseMultistatus_Malformed(t *testing.T) {
	_, err := ParseMultistatus([]byte("<d:multistatus"))
	assert.Error(t, err)

	_, err = ParseMultistatus([]byte(`<html><body>Login</body></html>`))
	assert.Error(t, err)
}

func TestResolveHref(t *testing.T) {
	collection := "https://dav.example.org:8443/dav.php/calendars/verein/default/"

	tests := []struct {
		name string
		href string
		want string
	}{
		{"server relative", "/dav.php/calendars/verein/default/1.ics", "https://dav.example.org:8443/dav.php/calendars/verein/default/1.ics"},
		{"absolute", "http://other.example.org/x.ics", "http://other.example.org/x.ics"},
		{"collection relative", "2.ics", "https://dav.example.org:8443/dav.php/calendars/verein/default/2.ics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveHref(collection, tt.href))
		})
	}

	assert.Equal(t, "https://localhost/cal/1.ics", ResolveHref("::not a url", "/cal/1.ics"))
}

func TestClient_ListResources(t *testing.T) {
	var gotDepth, gotBody, gotMethod string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotDepth = r.Header.Get("Depth")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, multistatus)
	}))
	defer srv.Close()

	c := trustedClient(srv)
	collection := srv.URL + "/dav.php/calendars/verein/default/"

	urls, err := c.ListResources(context.Background(), collection)
	require.NoError(t, err)

	assert.Equal(t, "PROPFIND", gotMethod)
	assert.Equal(t, "1", gotDepth)
	assert.Contains(t, gotBody, "displayname")
	assert.Equal(t, []string{
		srv.URL + "/dav.php/calendars/verein/default/1.ics",
		srv.URL + "/dav.php/calendars/verein/default/2.ICS",
	}, urls)
}

func TestClient_GetHasNoDepth(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Depth"))
		io.WriteString(w, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	}))
	defer srv.Close()

	raw, err := trustedClient(srv).FetchObject(context.Background(), srv.URL+"/1.ics")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "BEGIN:VCALENDAR"))
}

func TestClient_StatusFailures(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := trustedClient(srv)

	status, _, err := c.Propfind(context.Background(), srv.URL+"/cal/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)

	_, err = c.ListResources(context.Background(), srv.URL+"/cal/")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	_, err = c.FetchObject(context.Background(), srv.URL+"/cal/1.ics")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	var hits int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, "/elsewhere/", http.StatusFound)
	}))
	defer srv.Close()

	status, _, err := trustedClient(srv).Get(context.Background(), srv.URL+"/cal/1.ics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_RejectsUntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
	}))
	defer srv.Close()

	c := NewClient("alice", "secret", Options{Timeout: 5 * time.Second, Logger: testLogger()})
	_, _, err := c.Propfind(context.Background(), srv.URL+"/cal/")
	assert.Error(t, err)
}

func TestClient_DigestChallenge(t *testing.T) {
	var attempts int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			w.Header().Set("WWW-Authenticate", `Digest realm="BaikalDAV", qop="auth", nonce="5f2a0c", opaque="d41d8c", algorithm=MD5`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Contains(t, auth, `username="alice"`)
		assert.Contains(t, auth, `realm="BaikalDAV"`)
		assert.NotContains(t, auth, "secret")
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, multistatus)
	}))
	defer srv.Close()

	status, body, err := trustedClient(srv).Propfind(context.Background(), srv.URL+"/cal/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, status)
	assert.Contains(t, string(body), "multistatus")
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := trustedClient(srv).Get(ctx, srv.URL+"/slow.ics")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_DiscoverRequiresUsername(t *testing.T) {
	var requests int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	c := NewClient("", "", Options{Timeout: time.Second, Logger: testLogger()})
	assert.False(t, c.IsConfigured())
	assert.True(t, trustedClient(srv).IsConfigured())

	_, err := c.DiscoverCalendars(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, atomic.LoadInt32(&requests))
}
