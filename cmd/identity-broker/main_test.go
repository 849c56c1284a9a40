package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/config"
	"go.uber.org/zap"
)

func TestDirectoryClientsSendGatewayTokenOnlyToPeople(t *testing.T) {
	var (
		mu      sync.Mutex
		headers = map[string]string{}
	)
	directoryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers[r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"0000-0002-1825-0097"}`))
	}))
	defer directoryServer.Close()

	appConfig := config.AppConfig{
		DirectoryAPIURL:   directoryServer.URL,
		DirectoryAPIToken: "gateway-token",
		DirectoryTimeout:  time.Second,
	}
	profiles, people, err := newDirectoryClients(appConfig, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("failed to build clients: %v", err)
	}

	if _, err := profiles.GetProfileByID(context.Background(), "0000-0002-1825-0097"); err != nil {
		t.Fatalf("profile lookup failed: %v", err)
	}
	if _, err := people.GetPersonByID(context.Background(), "0000-0002-1825-0097"); err != nil {
		t.Fatalf("person lookup failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := headers["/profiles/0000-0002-1825-0097"]; got != "" {
		t.Fatalf("expected no authorization header on profiles, got %q", got)
	}
	if got := headers["/people/0000-0002-1825-0097"]; got != "gateway-token" {
		t.Fatalf("expected gateway token on people, got %q", got)
	}
}
