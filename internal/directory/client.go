// Package directory holds the HTTP clients for the profile and people
// services used to enrich resolved users.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/metrics"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrUnavailable reports that a directory service could not be reached at all.
	ErrUnavailable = errors.New("directory: service unavailable")

	errMissingBaseURL = errors.New("directory: base url required")
)

// ClientConfig configures a directory client.
type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Collectors
}

type client struct {
	baseURL    string
	token      string
	service    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collectors
}

func newClient(service string, cfg ClientConfig) (client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return client{}, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		service:    service,
		httpClient: httpClient,
		logger:     logger.With(zap.String("service", service)),
		metrics:    cfg.Metrics,
	}, nil
}

// getJSON decodes the response of a GET into target. Non-2xx statuses and
// undecodable bodies report found=false with a nil error; only a request
// that produced no response at all is an error.
func (c client) getJSON(ctx context.Context, endpoint string, target any) (bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("directory: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("directory request failed", zap.String("url", endpoint), zap.Error(err))
		c.metrics.ObserveEnrichment(c.service, metrics.OutcomeUnavailable)
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.logger.Debug("directory lookup returned non-success status",
			zap.String("url", endpoint),
			zap.Int("status", response.StatusCode))
		c.metrics.ObserveEnrichment(c.service, metrics.OutcomeEmpty)
		return false, nil
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		c.logger.Debug("directory lookup returned malformed body", zap.String("url", endpoint), zap.Error(err))
		c.metrics.ObserveEnrichment(c.service, metrics.OutcomeEmpty)
		return false, nil
	}
	c.metrics.ObserveEnrichment(c.service, metrics.OutcomeFound)
	return true, nil
}
