package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sitehawk/sitehawk/pkg/defaults"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != defaults.SideFetchTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, defaults.SideFetchTimeout)
	}
	if cfg.UserAgent != defaults.UABot {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, defaults.UABot)
	}
	if cfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify should default to off")
	}
	if cfg.DisableDNSCache {
		t.Error("DNS cache should default to on")
	}
}

func TestDefaultReturnsSharedClient(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same client")
	}
}

func TestNewAppliesZeroDefaults(t *testing.T) {
	client, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if client.Timeout != defaults.SideFetchTimeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, defaults.SideFetchTimeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport is %T, want *http.Transport", client.Transport)
	}
	if transport.MaxIdleConns != defaults.MaxIdleConns {
		t.Errorf("MaxIdleConns = %d, want %d", transport.MaxIdleConns, defaults.MaxIdleConns)
	}
	if transport.MaxConnsPerHost != defaults.MaxConnsPerHost {
		t.Errorf("MaxConnsPerHost = %d, want %d", transport.MaxConnsPerHost, defaults.MaxConnsPerHost)
	}
	if transport.DialContext == nil {
		t.Error("DialContext not set")
	}
}

func TestNewRejectsBadProxy(t *testing.T) {
	if _, err := New(Config{Proxy: "ftp://127.0.0.1:21"}); err == nil {
		t.Error("expected error for ftp proxy scheme")
	}
}

func TestNewRejectsUnknownClientHello(t *testing.T) {
	_, err := New(Config{ClientHello: "netscape"})
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "client hello") {
		t.Errorf("error %q should name the bad profile", err)
	}
}

func TestNewRejectsHelloOverHTTPProxy(t *testing.T) {
	_, err := New(Config{ClientHello: "chrome", Proxy: "http://127.0.0.1:8080"})
	if err == nil {
		t.Fatal("expected error combining hello profile with http proxy")
	}
}

func TestNewAcceptsHelloOverSOCKS(t *testing.T) {
	if _, err := New(Config{ClientHello: "chrome", Proxy: "socks5://127.0.0.1:1080"}); err != nil {
		t.Errorf("hello over socks5 should build: %v", err)
	}
}

func TestProfilesSorted(t *testing.T) {
	names := Profiles()
	if len(names) == 0 {
		t.Fatal("no profiles")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("profiles not sorted: %v", names)
		}
	}
}

func TestWithTimeout(t *testing.T) {
	cfg := WithTimeout(2 * time.Second)
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Timeout)
	}
	if cfg.UserAgent != defaults.UABot {
		t.Error("WithTimeout should keep the other defaults")
	}
}

func TestWithProxy(t *testing.T) {
	cfg := WithProxy("socks5://127.0.0.1:9050")
	if cfg.Proxy != "socks5://127.0.0.1:9050" {
		t.Errorf("Proxy = %q", cfg.Proxy)
	}
}

func TestFetcherSetsCrawlerHeaders(t *testing.T) {
	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, "pong")
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	resp, err := f.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if string(resp.Body) != "pong" {
		t.Errorf("body = %q", resp.Body)
	}
	if gotUA != defaults.UABot {
		t.Errorf("User-Agent = %q, want %q", gotUA, defaults.UABot)
	}
	if gotAccept != defaults.AcceptAll {
		t.Errorf("Accept = %q, want %q", gotAccept, defaults.AcceptAll)
	}
}

func TestFetcherCustomUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{UserAgent: "sitehawk-test/0.0"})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	if _, err := f.Get(context.Background(), ts.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotUA != "sitehawk-test/0.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetcherReturnsNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	resp, err := f.Get(context.Background(), ts.URL+"/favicon.ico")
	if err != nil {
		t.Fatalf("a 404 is a response, not an error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestFetcherCapsBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	f.maxBody = 64

	resp, err := f.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(resp.Body) != 64 {
		t.Errorf("body length = %d, want 64", len(resp.Body))
	}
}

func TestFetcherFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "landed")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	resp, err := f.Get(context.Background(), ts.URL+"/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Body) != "landed" {
		t.Errorf("body = %q, redirect not followed", resp.Body)
	}
}

func TestFetcherStopsRedirectLoops(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	_, err = f.Get(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected redirect loop to error")
	}
	if !strings.Contains(err.Error(), "redirects") {
		t.Errorf("error %q should mention redirects", err)
	}
}

func TestFetcherHonorsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.Get(ctx, ts.URL)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Get took %v, context deadline ignored", elapsed)
	}
}

func TestBrowserHelloHandshake(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "over tls")
	}))
	defer ts.Close()

	f, err := NewFetcher(Config{ClientHello: "chrome", InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	resp, err := f.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get with chrome hello: %v", err)
	}
	if string(resp.Body) != "over tls" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestFetcherRejectsUntrustedCert(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	f, err := NewFetcher(Config{})
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	_, err = f.Get(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("self-signed cert should fail with verification on")
	}
	if !errors.Is(err, ErrTLS) {
		t.Errorf("error %v should classify as ErrTLS", err)
	}
}

func TestClassifyErrDNS(t *testing.T) {
	wrapped := fmt.Errorf("Get \"http://x\": %w", &net.DNSError{Err: "no such host", Name: "x"})
	if !errors.Is(classifyErr(wrapped), ErrDNS) {
		t.Error("DNS failure should classify as ErrDNS")
	}
}

func TestClassifyErrPassesTaggedThrough(t *testing.T) {
	tagged := fmt.Errorf("dial: %w", ErrProxyConnect)
	if classifyErr(tagged) != tagged {
		t.Error("already tagged errors should pass through unchanged")
	}
}
