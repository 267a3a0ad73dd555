package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/config"
	"github.com/jjenkins/scorestream/internal/metrics"
	"github.com/jjenkins/scorestream/internal/model"
)

const (
	breakerName          = "sports-data"
	defaultRetryInterval = 2 * time.Second
	maxResponseBytes     = 32 << 20
)

// SportsDataClient fetches team listings from the public sports-data API.
// Each listing URL has its own circuit breaker so one failing listing
// cannot block the others.
type SportsDataClient struct {
	client        *http.Client
	limiter       *rate.Limiter
	maxRetries    int
	retryInterval time.Duration
	logger        *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// ClientOption customizes a SportsDataClient
type ClientOption func(*SportsDataClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *SportsDataClient) {
		c.client = hc
	}
}

// WithRetryInterval sets the first backoff interval between attempts
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *SportsDataClient) {
		c.retryInterval = d
	}
}

// NewSportsDataClient creates a new sports-data API client
func NewSportsDataClient(cfg config.UpstreamConfig, logger *zap.Logger, opts ...ClientOption) *SportsDataClient {
	c := &SportsDataClient{
		client:        &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		maxRetries:    cfg.MaxRetries,
		retryInterval: defaultRetryInterval,
		logger:        logger,
		breakers:      make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}

	return c
}

// breakerFor returns the circuit breaker guarding url, creating it on first use
func (c *SportsDataClient) breakerFor(url string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[url]; ok {
		return cb
	}

	name := breakerName + ":" + url
	metrics.UpstreamBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected request proves the upstream is reachable.
		IsSuccessful: func(err error) bool {
			var permanent *backoff.PermanentError
			return err == nil || errors.As(err, &permanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.UpstreamBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	c.breakers[url] = cb
	return cb
}

// FetchTeams retrieves and normalizes the team listing at url. Network and
// HTTP failures are reported as apperr.ErrUpstreamUnavailable; a payload
// that carries no recognizable listing is a plain parse error.
func (c *SportsDataClient) FetchTeams(ctx context.Context, url string) ([]model.TeamMeta, error) {
	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, apperr.Unavailable("sportsdata.FetchTeams", err)
	}

	teams, err := parseTeams(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse team listing from %s: %w", url, err)
	}

	return teams, nil
}

// fetchWithRetry performs an HTTP GET with exponential backoff retry.
// 429 and 5xx responses are retried; other client errors are not.
func (c *SportsDataClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	breaker := c.breakerFor(url)

	return backoff.Retry(ctx, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, err := breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, url)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("upstream request failed, retrying",
				zap.String("url", url), zap.Error(err), zap.Duration("next", next))
		}),
	)
}

func (c *SportsDataClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (HTTP 429)")
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// teamsPayload covers both listing shapes the source serves: teams nested
// under sports[].leagues[] and a flat teams[] or items[] array.
type teamsPayload struct {
	Sports *[]struct {
		Leagues []struct {
			Teams []teamEntry `json:"teams"`
		} `json:"leagues"`
	} `json:"sports"`
	Teams *[]teamEntry `json:"teams"`
	Items *[]teamEntry `json:"items"`
}

// teamEntry is either {"team": {...}} or a bare team object
type teamEntry struct {
	team teamJSON
}

func (e *teamEntry) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Team *teamJSON `json:"team"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.Team != nil {
		e.team = *wrapped.Team
		return nil
	}
	return json.Unmarshal(data, &e.team)
}

type teamJSON struct {
	ID               flexID    `json:"id"`
	Slug             string    `json:"slug"`
	Abbreviation     string    `json:"abbreviation"`
	DisplayName      string    `json:"displayName"`
	ShortDisplayName string    `json:"shortDisplayName"`
	Name             string    `json:"name"`
	Nickname         string    `json:"nickname"`
	Location         string    `json:"location"`
	Color            string    `json:"color"`
	AlternateColor   string    `json:"alternateColor"`
	Logo             string    `json:"logo"`
	Logos            []logo    `json:"logos"`
	Groups           groupList `json:"groups"`
}

type logo struct {
	Href string `json:"href"`
}

type groupJSON struct {
	ID           flexID     `json:"id"`
	Name         string     `json:"name"`
	Abbreviation string     `json:"abbreviation"`
	ShortName    string     `json:"shortName"`
	Slug         string     `json:"slug"`
	Parent       *groupJSON `json:"parent"`
}

// groupList accepts a single grouping object or an array of them
type groupList []groupJSON

func (g *groupList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '[' {
		var list []groupJSON
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*g = list
		return nil
	}

	var one groupJSON
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*g = groupList{one}
	return nil
}

// flexID accepts identifiers sent as either JSON strings or numbers
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	case data[0] == '{', data[0] == '[':
		return fmt.Errorf("invalid id %s", data)
	default:
		*f = flexID(data)
		return nil
	}
}

func (f flexID) int64() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(string(f)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseTeams decodes a listing payload into normalized team records
func parseTeams(body []byte) ([]model.TeamMeta, error) {
	var payload teamsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Sports == nil && payload.Teams == nil && payload.Items == nil {
		return nil, errors.New("payload has no team listing")
	}

	var entries []teamEntry
	if payload.Sports != nil {
		for _, sport := range *payload.Sports {
			for _, league := range sport.Leagues {
				entries = append(entries, league.Teams...)
			}
		}
	}
	if len(entries) == 0 && payload.Teams != nil {
		entries = *payload.Teams
	}
	if len(entries) == 0 && payload.Items != nil {
		entries = *payload.Items
	}

	teams := make([]model.TeamMeta, 0, len(entries))
	for _, e := range entries {
		teams = append(teams, convertTeamJSON(e.team))
	}
	return teams, nil
}

func convertTeamJSON(t teamJSON) model.TeamMeta {
	team := model.TeamMeta{
		ID:               t.ID.int64(),
		Slug:             t.Slug,
		Abbreviation:     t.Abbreviation,
		DisplayName:      t.DisplayName,
		ShortDisplayName: t.ShortDisplayName,
		Name:             t.Name,
		Nickname:         t.Nickname,
		Location:         t.Location,
		Color:            t.Color,
		AlternateColor:   t.AlternateColor,
		LogoURL:          t.Logo,
	}

	for _, l := range t.Logos {
		if l.Href != "" {
			team.LogoURL = l.Href
			break
		}
	}

	for _, g := range t.Groups {
		for cur := &g; cur != nil; cur = cur.Parent {
			team.Groups = append(team.Groups, model.GroupLabel{
				ID:           string(cur.ID),
				Name:         cur.Name,
				Abbreviation: cur.Abbreviation,
				ShortName:    cur.ShortName,
				Slug:         cur.Slug,
			})
		}
	}

	return team
}
