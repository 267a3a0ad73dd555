package service

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/config"
)

const nestedListing = `{
  "sports": [{
    "leagues": [{
      "teams": [
        {"team": {
          "id": "2",
          "slug": "auburn-tigers",
          "abbreviation": "AUB",
          "displayName": "Auburn Tigers",
          "shortDisplayName": "Auburn",
          "name": "Tigers",
          "location": "Auburn",
          "color": "03244d",
          "alternateColor": "f1f2f3",
          "logos": [{"href": "https://a.example/auburn.png"}],
          "groups": {"id": "8", "slug": "sec", "parent": {"id": "80", "slug": "fbs"}}
        }},
        {"team": {"id": 333, "abbreviation": "ALA", "displayName": "Alabama Crimson Tide"}}
      ]
    }]
  }]
}`

const flatListing = `{
  "teams": [
    {"id": 99, "abbreviation": "wmu", "displayName": "Williams Ephs",
     "groups": [{"name": "NCAA Division III"}]}
  ]
}`

func newTestSportsClient() *SportsDataClient {
	return NewSportsDataClient(config.UpstreamConfig{
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        3,
	}, zap.NewNop(), WithRetryInterval(time.Millisecond))
}

func serveBody(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTeamsNestedShape(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, http.StatusOK, nestedListing, nil)

	teams, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Len(t, teams, 2)

	auburn := teams[0]
	assert.Equal(t, int64(2), auburn.ID)
	assert.Equal(t, "AUB", auburn.Abbreviation)
	assert.Equal(t, "Auburn Tigers", auburn.DisplayName)
	assert.Equal(t, "Tigers", auburn.Name)
	assert.Equal(t, "https://a.example/auburn.png", auburn.LogoURL)
	require.Len(t, auburn.Groups, 2)
	assert.Equal(t, "sec", auburn.Groups[0].Slug)
	assert.Equal(t, "fbs", auburn.Groups[1].Slug)
	assert.Equal(t, "80", auburn.Groups[1].ID)

	assert.Equal(t, int64(333), teams[1].ID)
	assert.Empty(t, teams[1].Groups)
}

func TestFetchTeamsFlatShape(t *testing.T) {
	t.Parallel()

	srv := serveBody(t, http.StatusOK, flatListing, nil)

	teams, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, int64(99), teams[0].ID)
	assert.Equal(t, "wmu", teams[0].Abbreviation)
	require.Len(t, teams[0].Groups, 1)
	assert.Equal(t, "NCAA Division III", teams[0].Groups[0].Name)
}

func TestFetchTeamsRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(flatListing))
	}))
	t.Cleanup(srv.Close)

	teams, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, teams, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchTeamsClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := serveBody(t, http.StatusNotFound, "", &calls)

	_, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchTeamsGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := serveBody(t, http.StatusTooManyRequests, "", &calls)

	_, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFailingListingDoesNotTripOthers(t *testing.T) {
	t.Parallel()

	var okCalls atomic.Int32
	first := serveBody(t, http.StatusInternalServerError, "", nil)
	second := serveBody(t, http.StatusInternalServerError, "", nil)
	healthy := serveBody(t, http.StatusOK, flatListing, &okCalls)

	client := newTestSportsClient()
	_, err := client.FetchTeams(t.Context(), first.URL)
	require.Error(t, err)
	_, err = client.FetchTeams(t.Context(), second.URL)
	require.Error(t, err)

	teams, err := client.FetchTeams(t.Context(), healthy.URL)
	require.NoError(t, err)
	assert.Len(t, teams, 1)
	assert.Equal(t, int32(1), okCalls.Load())
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := serveBody(t, http.StatusNotFound, "", &calls)

	client := newTestSportsClient()
	for range 7 {
		_, err := client.FetchTeams(t.Context(), srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, int32(7), calls.Load())
}

func TestFetchTeamsUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestSportsClient().FetchTeams(t.Context(), url)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestFetchTeamsMalformedPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>oops</html>"},
		{name: "no listing", body: `{"status": "ok"}`},
		{name: "bad id", body: `{"teams": [{"id": {"x": 1}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := serveBody(t, http.StatusOK, tt.body, nil)

			_, err := newTestSportsClient().FetchTeams(t.Context(), srv.URL)
			require.Error(t, err)
			assert.NotErrorIs(t, err, apperr.ErrUpstreamUnavailable)
		})
	}
}
