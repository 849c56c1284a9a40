package directory

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetPersonByIDSendsGatewayToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/person-id1", r.URL.Path)
		assert.Equal(t, "secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id": "person-id1", "type": {"id": "senior-editor", "label": "Senior Editor"}}`))
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, Token: "secret-token", HTTPClient: server.Client()})
	require.NoError(t, err)

	result, err := client.GetPersonByID(context.Background(), "person-id1")
	require.NoError(t, err)
	person, ok := result.Get()
	require.True(t, ok)
	assert.Equal(t, "person-id1", person.ID)
	assert.Equal(t, "senior-editor", person.Type.ID)
}

func TestGetPersonByIDOmitsEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	result, err := client.GetPersonByID(context.Background(), "person-id2")
	require.NoError(t, err)
	assert.False(t, result.IsPresent())
}

func TestGetPeopleByRoleAccumulatesPages(t *testing.T) {
	const total = 150
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		query := r.URL.Query()
		assert.Equal(t, "asc", query.Get("order"))
		assert.Equal(t, "100", query.Get("per-page"))
		assert.Equal(t, "senior-editor", query.Get("type[]"))

		page, err := strconv.Atoi(query.Get("page"))
		assert.NoError(t, err)
		start := (page - 1) * 100
		end := start + 100
		if end > total {
			end = total
		}
		items := ""
		for index := start; index < end; index++ {
			if items != "" {
				items += ","
			}
			items += fmt.Sprintf(`{"id":"p%d","name":{"preferred":"Person %d"},"research":{"focuses":["f"],"expertises":[{"id":"e","name":"Expertise"}]},"affiliations":[{"name":["Dept","Uni"]}]}`, index, index)
		}
		_, _ = fmt.Fprintf(w, `{"total":%d,"items":[%s]}`, total, items)
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	editors, err := client.GetPeopleByRole(context.Background(), "senior-editor")
	require.NoError(t, err)
	require.Len(t, editors, total)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, EditorAlias{
		ID:         "p0",
		Name:       "Person 0",
		Aff:        "Dept, Uni",
		Focuses:    []string{"f"},
		Expertises: []string{"Expertise"},
	}, editors[0])
}

func TestGetPeopleByRoleStopsOnEmptyPage(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"total": 10, "items": []}`))
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	editors, err := client.GetPeopleByRole(context.Background(), "director")
	require.NoError(t, err)
	assert.Empty(t, editors)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGetPeopleByRoleRejectsInvalidRoleWithoutCalling(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	_, err = client.GetPeopleByRole(context.Background(), "author")
	require.ErrorIs(t, err, ErrInvalidRole)
	assert.Zero(t, requests.Load())
}

func TestGetPeopleByRoleTranslatesHTTPErrorsToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	editors, err := client.GetPeopleByRole(context.Background(), "leadership")
	require.NoError(t, err)
	assert.Empty(t, editors)
}

func TestGetPeopleByRoleDiscardsPartialListingWhenLaterPageFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`{"total": 2, "items": [{"id": "p-1", "name": {"preferred": "Ada"}}]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client, err := NewPeopleClient(ClientConfig{BaseURL: server.URL, HTTPClient: server.Client(), Logger: zap.New(core)})
	require.NoError(t, err)

	editors, err := client.GetPeopleByRole(context.Background(), "senior-editor")
	require.NoError(t, err)
	assert.Empty(t, editors)

	entries := logs.FilterMessage("people listing incomplete, discarding collected pages").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(2), fields["page"])
	assert.Equal(t, int64(1), fields["discarded"])
	assert.Equal(t, "senior-editor", fields["role"])
}

func TestRoleHelpers(t *testing.T) {
	assert.Equal(t, "senior-editor", NormalizeRole("seniorEditor"))
	assert.Equal(t, "reviewing-editor", NormalizeRole("reviewingEditor"))
	assert.Equal(t, "director", NormalizeRole(" director "))
	assert.True(t, IsValidRole("early-career"))
	assert.False(t, IsValidRole("seniorEditor"))
}
