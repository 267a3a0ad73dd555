package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/metrics"
	"github.com/jjenkins/scorestream/internal/model"
)

// Colors stored when the source omits or garbles a team color
const (
	FallbackPrimaryColor   = "#333333"
	FallbackAlternateColor = "#cccccc"
)

// TeamFetcher retrieves one upstream team listing
type TeamFetcher interface {
	FetchTeams(ctx context.Context, url string) ([]model.TeamMeta, error)
}

// CatalogWriter is the part of the catalog store that ingestion writes to
type CatalogWriter interface {
	UpsertOrganization(ctx context.Context, o *model.Organization) (int, error)
	UpsertProgram(ctx context.Context, orgID int, category string, classification model.Division, fields model.ProgramFields) (int, error)
}

// EndpointStats tracks one endpoint of an ingestion run
type EndpointStats struct {
	Category       string         `json:"category"`
	Classification model.Division `json:"classification"`
	URL            string         `json:"url"`
	Total          int            `json:"total"`
	Stored         int            `json:"stored"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	Error          string         `json:"error,omitempty"`
}

// ItemError records one failed endpoint or record
type ItemError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// IngestSummary reports an ingestion run
type IngestSummary struct {
	RunID     string          `json:"run_id"`
	Endpoints []EndpointStats `json:"endpoints"`
	Errors    []ItemError     `json:"errors,omitempty"`
}

// Succeeded reports whether every endpoint was fetched and stored cleanly
func (s *IngestSummary) Succeeded() bool {
	for _, ep := range s.Endpoints {
		if ep.Error != "" || ep.Failed > 0 {
			return false
		}
	}
	return true
}

// Stored returns the number of records written across all endpoints
func (s *IngestSummary) Stored() int {
	n := 0
	for _, ep := range s.Endpoints {
		n += ep.Stored
	}
	return n
}

// Ingestor fetches category listings and upserts them into the catalog
type Ingestor struct {
	fetcher    TeamFetcher
	writer     CatalogWriter
	classifier *Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestor creates a new Ingestor
func NewIngestor(fetcher TeamFetcher, writer CatalogWriter, classifier *Classifier, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		fetcher:    fetcher,
		writer:     writer,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest processes every endpoint independently. A failing endpoint is
// logged and recorded in the summary but does not stop the others. The
// returned error is non-nil when any endpoint failed; the summary is
// always returned.
func (i *Ingestor) Ingest(ctx context.Context, endpoints []model.CatalogEndpoint) (*IngestSummary, error) {
	summary := &IngestSummary{RunID: uuid.NewString()[:8]}
	logger := i.logger.With(zap.String("run_id", summary.RunID))

	logger.Info("ingestion started", zap.Int("endpoints", len(endpoints)))

	var errs []error
	for idx, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		epLogger := logger.With(
			zap.String("progress", fmt.Sprintf("%d/%d", idx+1, len(endpoints))),
			zap.String("category", ep.Category),
			zap.String("classification", string(ep.Classification)),
		)

		stats, err := i.ingestEndpoint(ctx, ep, summary, epLogger)
		summary.Endpoints = append(summary.Endpoints, stats)
		if err != nil {
			epLogger.Error("endpoint failed", zap.String("url", ep.URL), zap.Error(err))
			summary.Errors = append(summary.Errors, ItemError{Name: endpointName(ep), Error: err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", endpointName(ep), err))
			continue
		}

		epLogger.Info("endpoint ingested",
			zap.Int("total", stats.Total),
			zap.Int("stored", stats.Stored),
			zap.Int("skipped", stats.Skipped))
	}

	if len(errs) > 0 {
		return summary, fmt.Errorf("%d of %d endpoints failed: %w", len(errs), len(endpoints), errors.Join(errs...))
	}

	logger.Info("ingestion finished", zap.Int("stored", summary.Stored()))
	return summary, nil
}

// ingestEndpoint fetches one listing and upserts each usable record
func (i *Ingestor) ingestEndpoint(ctx context.Context, ep model.CatalogEndpoint, summary *IngestSummary, logger *zap.Logger) (EndpointStats, error) {
	stats := EndpointStats{
		Category:       ep.Category,
		Classification: ep.Classification,
		URL:            ep.URL,
	}

	teams, err := i.fetcher.FetchTeams(ctx, ep.URL)
	if err != nil {
		stats.Error = err.Error()
		return stats, err
	}
	stats.Total = len(teams)

	syncedAt := i.now()
	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			stats.Error = err.Error()
			return stats, err
		}

		abbr := model.NormalizeAbbreviation(team.Abbreviation)
		if abbr == "" || strings.TrimSpace(team.DisplayName) == "" {
			stats.Skipped++
			metrics.IngestRecords.WithLabelValues(ep.Category, "skipped").Inc()
			continue
		}

		if err := i.storeTeam(ctx, ep, team, syncedAt, logger); err != nil {
			logger.Warn("failed to store team", zap.String("abbreviation", abbr), zap.Error(err))
			stats.Failed++
			summary.Errors = append(summary.Errors, ItemError{
				Name:  fmt.Sprintf("%s/%s", endpointName(ep), abbr),
				Error: err.Error(),
			})
			metrics.IngestRecords.WithLabelValues(ep.Category, "failed").Inc()
			continue
		}

		stats.Stored++
		metrics.IngestRecords.WithLabelValues(ep.Category, "stored").Inc()
	}

	if stats.Failed > 0 {
		err := fmt.Errorf("%d of %d records failed to store", stats.Failed, stats.Total)
		stats.Error = err.Error()
		return stats, err
	}

	return stats, nil
}

func (i *Ingestor) storeTeam(ctx context.Context, ep model.CatalogEndpoint, team model.TeamMeta, syncedAt time.Time, logger *zap.Logger) error {
	org := &model.Organization{
		Abbreviation:   model.NormalizeAbbreviation(team.Abbreviation),
		Name:           firstNonEmpty(team.Location, team.DisplayName),
		Location:       team.Location,
		PrimaryColor:   normalizeColor(team.Color, FallbackPrimaryColor),
		AlternateColor: normalizeColor(team.AlternateColor, FallbackAlternateColor),
		LogoURL:        team.LogoURL,
		UpstreamID:     sql.NullInt64{Int64: team.ID, Valid: team.ID != 0},
		Slug:           team.Slug,
		Provenance:     model.ProvenanceUpstream,
		LastSyncedAt:   sql.NullTime{Time: syncedAt, Valid: true},
	}

	orgID, err := i.writer.UpsertOrganization(ctx, org)
	if err != nil {
		return fmt.Errorf("failed to upsert organization: %w", err)
	}

	fields := model.ProgramFields{
		Gender:      ep.Gender,
		Nickname:    firstNonEmpty(team.Name, team.Nickname),
		DisplayName: team.DisplayName,
		ShortName:   team.ShortDisplayName,
	}
	if team.ID != 0 {
		fields.UpstreamTeamID = strconv.FormatInt(team.ID, 10)
	}

	if _, err := i.writer.UpsertProgram(ctx, orgID, ep.Category, i.classify(ep, team, logger), fields); err != nil {
		return fmt.Errorf("failed to upsert program: %w", err)
	}

	return nil
}

// classify returns the endpoint's declared classification. The classifier
// only decides when the endpoint does not declare one.
func (i *Ingestor) classify(ep model.CatalogEndpoint, team model.TeamMeta, logger *zap.Logger) model.Division {
	derived := i.classifier.Classify(team)

	if ep.Classification == "" || ep.Classification == model.DivisionUnknown {
		return derived
	}

	if derived != model.DivisionUnknown && derived != ep.Classification {
		logger.Debug("classifier disagrees with endpoint",
			zap.String("abbreviation", team.Abbreviation),
			zap.String("derived", string(derived)))
	}
	return ep.Classification
}

func endpointName(ep model.CatalogEndpoint) string {
	return ep.Category + "/" + string(ep.Classification)
}

// normalizeColor returns c as #rrggbb, or fallback when c is not a hex color
func normalizeColor(c, fallback string) string {
	c = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "#"))
	if len(c) == 3 {
		c = string([]byte{c[0], c[0], c[1], c[1], c[2], c[2]})
	}
	if len(c) != 6 {
		return fallback
	}
	for _, r := range c {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return fallback
		}
	}
	return "#" + c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
