package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/model"
)

var errSettingsWrite = errors.New("settings write failed")

// memSettings is an in-memory SettingsRepository
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
	// failWrites counts the remaining writes of a status value that fail
	failWrites map[string]int
}

func newMemSettings() *memSettings {
	return &memSettings{values: map[string]string{model.SettingSyncStatus: string(model.SyncNever)}}
}

func (s *memSettings) GetAll(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

func (s *memSettings) CompareAndSet(ctx context.Context, key string, expected []string, values map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failWrites[values[key]]; n > 0 {
		s.failWrites[values[key]] = n - 1
		return false, errSettingsWrite
	}
	if !slices.Contains(expected, s.values[key]) {
		return false, nil
	}
	for k, v := range values {
		s.values[k] = v
	}
	return true, nil
}

func (s *memSettings) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *memSettings) failNext(status model.SyncStatus, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites == nil {
		s.failWrites = make(map[string]int)
	}
	s.failWrites[string(status)] = n
}

func (s *memSettings) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

type programKey struct {
	orgID          int
	category       string
	classification model.Division
}

// memCatalog is an in-memory CatalogStore keyed the way the Postgres store is
type memCatalog struct {
	mu       sync.Mutex
	nextID   int
	orgs     map[string]model.Organization
	programs map[programKey]model.ProgramFields
	failAbbr map[string]bool
	countErr error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		orgs:     make(map[string]model.Organization),
		programs: make(map[programKey]model.ProgramFields),
		failAbbr: make(map[string]bool),
	}
}

func (c *memCatalog) UpsertOrganization(ctx context.Context, o *model.Organization) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	abbr := model.NormalizeAbbreviation(o.Abbreviation)
	if abbr == "" {
		return 0, apperr.Validation("mem.UpsertOrganization", "abbreviation is required")
	}
	if c.failAbbr[abbr] {
		return 0, errors.New("write refused")
	}

	stored := *o
	stored.Abbreviation = abbr
	if existing, ok := c.orgs[abbr]; ok {
		stored.ID = existing.ID
	} else {
		c.nextID++
		stored.ID = c.nextID
	}
	c.orgs[abbr] = stored
	return stored.ID, nil
}

func (c *memCatalog) UpsertProgram(ctx context.Context, orgID int, category string, classification model.Division, fields model.ProgramFields) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for _, o := range c.orgs {
		if o.ID == orgID {
			found = true
			break
		}
	}
	if !found {
		return 0, apperr.NotFound("mem.UpsertProgram", "organization", orgID)
	}

	c.programs[programKey{orgID, category, classification}] = fields
	return len(c.programs), nil
}

func (c *memCatalog) CountOrganizations(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.countErr != nil {
		return 0, c.countErr
	}
	return len(c.orgs), nil
}

func (c *memCatalog) CountPrograms(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs), nil
}

func (c *memCatalog) org(abbr string) (model.Organization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orgs[abbr]
	return o, ok
}

func (c *memCatalog) seedManual(n int) {
	for i := 0; i < n; i++ {
		_, _ = c.UpsertOrganization(context.Background(), &model.Organization{
			Abbreviation: fmt.Sprintf("ORG%02d", i),
			Name:         fmt.Sprintf("Org %d", i),
			Provenance:   model.ProvenanceManual,
		})
	}
}

// stubFetcher serves canned listings per URL
type stubFetcher struct {
	teams map[string][]model.TeamMeta
	errs  map[string]error
}

func (f *stubFetcher) FetchTeams(ctx context.Context, url string) ([]model.TeamMeta, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.teams[url], nil
}

// funcIngester adapts a function to Ingester
type funcIngester func(ctx context.Context, endpoints []model.CatalogEndpoint) (*IngestSummary, error)

func (f funcIngester) Ingest(ctx context.Context, endpoints []model.CatalogEndpoint) (*IngestSummary, error) {
	return f(ctx, endpoints)
}
