package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/config"
)

const (
	groupsPath   = "/api/channels/groups/"
	streamsPath  = "/api/channels/streams/"
	channelsPath = "/api/channels/channels/"
	profilesPath = "/api/channels/profiles/"

	maxPages = 100
)

// Group is a platform channel group
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Stream is a playback source registered with the platform
type Stream struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ChannelGroup *int   `json:"channel_group,omitempty"`
}

// Channel is a numbered platform channel
type Channel struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	ChannelNumber  float64 `json:"channel_number"`
	ChannelGroupID *int    `json:"channel_group_id"`
	TvgID          string  `json:"tvg_id,omitempty"`
	Streams        []int   `json:"streams"`
}

// Profile is a platform channel profile
type Profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ChannelSpec is the desired state of one channel
type ChannelSpec struct {
	Name      string
	Number    int
	GroupID   int
	StreamIDs []int
	// ProfileIDs nil leaves profile membership to the platform default
	// (every profile); an empty slice means no profile.
	ProfileIDs []int
}

// UpsertResult says what UpsertChannel did
type UpsertResult string

const (
	ChannelCreated   UpsertResult = "created"
	ChannelUpdated   UpsertResult = "updated"
	ChannelUnchanged UpsertResult = "unchanged"
)

type channelPayload struct {
	Name              string `json:"name"`
	ChannelNumber     int    `json:"channel_number"`
	ChannelGroupID    int    `json:"channel_group_id"`
	TvgID             string `json:"tvg_id,omitempty"`
	Streams           []int  `json:"streams"`
	ChannelProfileIDs *[]int `json:"channel_profile_ids,omitempty"`
}

// TvgID derives the guide id the platform stores for a channel name:
// lowercase, with each run of other characters collapsed to one dash
func TvgID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// listAll fetches every item of a list endpoint. The platform answers with
// either a bare array or a {results, next} envelope; next links are followed.
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var all []T
	next := path

	for page := 0; next != "" && page < maxPages; page++ {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, next, nil, &raw, c.listTimeout); err != nil {
			return nil, err
		}

		items, nextURL, err := decodeList[T](raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		all = append(all, items...)
		next = nextURL
	}

	return all, nil
}

func decodeList[T any](raw json.RawMessage) ([]T, string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, "", nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, "", err
		}
		return items, "", nil
	}

	var envelope struct {
		Results []T     `json:"results"`
		Next    *string `json:"next"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, "", err
	}
	next := ""
	if envelope.Next != nil {
		next = *envelope.Next
	}
	return envelope.Results, next, nil
}

// Ping checks that the platform is reachable and accepts our credentials
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, groupsPath, nil, nil, c.quickTimeout)
}

// GetOrCreateGroup returns the id of the group with exactly this name,
// creating it when absent
func (c *Client) GetOrCreateGroup(ctx context.Context, name string) (int, error) {
	groups, err := listAll[Group](ctx, c, groupsPath)
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g.ID, nil
		}
	}

	var created Group
	if err := c.do(ctx, http.MethodPost, groupsPath, map[string]string{"name": name}, &created, c.quickTimeout); err != nil {
		return 0, err
	}
	c.logger.Info("created platform group", zap.String("name", name), zap.Int("id", created.ID))
	return created.ID, nil
}

// GetOrCreateStream returns the id of the stream with exactly this URL,
// creating it when absent. The URL is the stream's identity.
func (c *Client) GetOrCreateStream(ctx context.Context, name, url string, groupID int) (int, error) {
	streams, err := listAll[Stream](ctx, c, streamsPath)
	if err != nil {
		return 0, err
	}
	for _, s := range streams {
		if s.URL == url {
			return s.ID, nil
		}
	}

	var created Stream
	body := Stream{Name: name, URL: url, ChannelGroup: &groupID}
	if err := c.do(ctx, http.MethodPost, streamsPath, body, &created, c.quickTimeout); err != nil {
		return 0, err
	}
	c.logger.Info("created platform stream", zap.String("name", name), zap.Int("id", created.ID))
	return created.ID, nil
}

// UpsertChannel converges the channel with exactly spec.Name to spec. An
// existing channel that already matches is left alone.
func (c *Client) UpsertChannel(ctx context.Context, spec ChannelSpec) (int, UpsertResult, error) {
	channels, err := listAll[Channel](ctx, c, channelsPath)
	if err != nil {
		return 0, "", err
	}

	payload := channelPayload{
		Name:           spec.Name,
		ChannelNumber:  spec.Number,
		ChannelGroupID: spec.GroupID,
		TvgID:          TvgID(spec.Name),
		Streams:        spec.StreamIDs,
	}
	if spec.ProfileIDs != nil {
		ids := slices.Clone(spec.ProfileIDs)
		payload.ChannelProfileIDs = &ids
	}

	for _, ch := range channels {
		if ch.Name != spec.Name {
			continue
		}

		// Profile membership is not reported back on channel listings, so a
		// channel with an explicit profile set is always updated.
		if spec.ProfileIDs == nil && channelMatches(ch, spec) {
			return ch.ID, ChannelUnchanged, nil
		}

		path := channelsPath + strconv.Itoa(ch.ID) + "/"
		if err := c.do(ctx, http.MethodPatch, path, payload, nil, c.quickTimeout); err != nil {
			return ch.ID, "", err
		}
		return ch.ID, ChannelUpdated, nil
	}

	var created Channel
	if err := c.do(ctx, http.MethodPost, channelsPath, payload, &created, c.quickTimeout); err != nil {
		return 0, "", err
	}
	return created.ID, ChannelCreated, nil
}

func channelMatches(ch Channel, spec ChannelSpec) bool {
	if ch.ChannelNumber != float64(spec.Number) {
		return false
	}
	if ch.ChannelGroupID == nil || *ch.ChannelGroupID != spec.GroupID {
		return false
	}
	return slices.Equal(ch.Streams, spec.StreamIDs)
}

// ListChannels returns every channel in the named group
func (c *Client) ListChannels(ctx context.Context, groupName string) ([]Channel, error) {
	groups, err := listAll[Group](ctx, c, groupsPath)
	if err != nil {
		return nil, err
	}
	groupID, found := 0, false
	for _, g := range groups {
		if g.Name == groupName {
			groupID, found = g.ID, true
			break
		}
	}
	if !found {
		return []Channel{}, nil
	}

	channels, err := listAll[Channel](ctx, c, channelsPath)
	if err != nil {
		return nil, err
	}

	inGroup := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.ChannelGroupID != nil && *ch.ChannelGroupID == groupID {
			inGroup = append(inGroup, ch)
		}
	}
	return inGroup, nil
}

// ListProfiles returns the platform's channel profiles
func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	return listAll[Profile](ctx, c, profilesPath)
}

// ResolveProfileIDs turns a profile policy into the channel_profile_ids to
// send. nil means omit the field (visible in every profile); an empty slice
// means visible nowhere. A specific policy keeps only ids the platform
// knows, and degrades to nil with a warning when none remain.
func (c *Client) ResolveProfileIDs(ctx context.Context, policy config.ProfilePolicy) ([]int, error) {
	switch policy.Mode {
	case config.ProfilesNone:
		return []int{}, nil
	case config.ProfilesSpecific:
	default:
		return nil, nil
	}

	profiles, err := c.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[int]bool, len(profiles))
	for _, p := range profiles {
		known[p.ID] = true
	}

	resolved := make([]int, 0, len(policy.ProfileIDs))
	for _, id := range policy.ProfileIDs {
		if known[id] && !slices.Contains(resolved, id) {
			resolved = append(resolved, id)
		}
	}

	if len(resolved) == 0 {
		c.logger.Warn("none of the requested profiles exist, making channels visible in all profiles",
			zap.Ints("requested", policy.ProfileIDs))
		return nil, nil
	}
	if len(resolved) < len(policy.ProfileIDs) {
		c.logger.Warn("ignoring unknown profiles",
			zap.Ints("requested", policy.ProfileIDs), zap.Ints("resolved", resolved))
	}
	return resolved, nil
}
