package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/scorestream/internal/apperr"
	"github.com/jjenkins/scorestream/internal/config"
)

func TestGetOrCreateGroupIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	c := f.client()

	first, err := c.GetOrCreateGroup(t.Context(), "ScoreStream")
	require.NoError(t, err)
	second, err := c.GetOrCreateGroup(t.Context(), "ScoreStream")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	f.with(func(f *fakePlatform) {
		assert.Len(t, f.groups, 1)
		assert.Equal(t, 1, f.posts[groupsPath])
	})

	logins, _, _ := f.counts()
	assert.Equal(t, 1, logins)
}

func TestListFollowsPaginatedEnvelope(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) {
		f.paginate = true
		f.groups = []Group{{ID: 1, Name: "Movies"}, {ID: 2, Name: "News"}, {ID: 3, Name: "ScoreStream"}}
	})

	id, err := f.client().GetOrCreateGroup(t.Context(), "ScoreStream")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	f.with(func(f *fakePlatform) {
		assert.Zero(t, f.posts[groupsPath])
	})
}

func TestGetOrCreateStreamMatchesByURL(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) {
		f.streams = []Stream{{ID: 7, Name: "old name", URL: "http://media/hls/nfl.m3u8"}}
	})
	c := f.client()

	id, err := c.GetOrCreateStream(t.Context(), "ScoreStream NFL", "http://media/hls/nfl.m3u8", 1)
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	id, err = c.GetOrCreateStream(t.Context(), "ScoreStream NFL", "http://media/hls/nba.m3u8", 1)
	require.NoError(t, err)
	assert.NotEqual(t, 7, id)
	f.with(func(f *fakePlatform) {
		assert.Len(t, f.streams, 2)
	})
}

func TestUpsertChannel(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	c := f.client()
	spec := ChannelSpec{Name: "ScoreStream - NFL", Number: 901, GroupID: 5, StreamIDs: []int{7}}

	id, result, err := c.UpsertChannel(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, ChannelCreated, result)
	f.with(func(f *fakePlatform) {
		require.Len(t, f.channelBodies, 1)
		assert.NotContains(t, f.channelBodies[0], "channel_profile_ids")
		assert.Equal(t, "scorestream-nfl", f.channelBodies[0]["tvg_id"])
	})

	again, result, err := c.UpsertChannel(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, ChannelUnchanged, result)
	assert.Equal(t, id, again)

	spec.Number = 950
	spec.ProfileIDs = []int{}
	again, result, err = c.UpsertChannel(t.Context(), spec)
	require.NoError(t, err)
	assert.Equal(t, ChannelUpdated, result)
	assert.Equal(t, id, again)

	f.with(func(f *fakePlatform) {
		assert.Equal(t, 1, f.patches)
		require.Len(t, f.channels, 1)
		assert.Equal(t, float64(950), f.channels[0].ChannelNumber)
		require.Len(t, f.channelBodies, 2)
		assert.Equal(t, []any{}, f.channelBodies[1]["channel_profile_ids"])
	})
}

func TestResolveProfileIDs(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) {
		f.profiles = []Profile{{ID: 1, Name: "Living room"}, {ID: 2, Name: "Kids"}}
	})
	c := f.client()

	tests := []struct {
		name   string
		policy config.ProfilePolicy
		want   []int
	}{
		{name: "all omits the parameter", policy: config.ProfilePolicy{Mode: config.ProfilesAll}, want: nil},
		{name: "none is an empty set", policy: config.ProfilePolicy{Mode: config.ProfilesNone}, want: []int{}},
		{
			name:   "specific intersects with platform",
			policy: config.ProfilePolicy{Mode: config.ProfilesSpecific, ProfileIDs: []int{1, 2, 99}},
			want:   []int{1, 2},
		},
		{
			name:   "specific with nothing known falls back to all",
			policy: config.ProfilePolicy{Mode: config.ProfilesSpecific, ProfileIDs: []int{99}},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolveProfileIDs(t.Context(), tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	// Tokens live shorter than the safety margin, so each is stale on arrival.
	f.with(func(f *fakePlatform) { f.tokenLife = 10 * time.Second })
	c := f.client()

	require.NoError(t, c.Ping(t.Context()))
	require.NoError(t, c.Ping(t.Context()))

	logins, refreshes, _ := f.counts()
	assert.Equal(t, 1, logins)
	assert.GreaterOrEqual(t, refreshes, 1)
}

func TestBadCredentialsAreNotRetried(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) { f.rejectLogin = true })

	err := f.client().Ping(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)

	logins, _, _ := f.counts()
	assert.Equal(t, 1, logins)
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) { f.loginFailures = 2 })

	require.NoError(t, f.client().Ping(t.Context()))

	logins, _, _ := f.counts()
	assert.Equal(t, 3, logins)
}

func TestLoginGivesUpAfterConfiguredAttempts(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) { f.loginFailures = 10 })

	err := f.client().Ping(t.Context())
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)

	logins, _, _ := f.counts()
	assert.Equal(t, 3, logins)
}

func TestRejectedTokenTriggersReauth(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	c := f.client()

	require.NoError(t, c.Ping(t.Context()))
	f.revoke()
	require.NoError(t, c.Ping(t.Context()))

	logins, refreshes, _ := f.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 1, refreshes)
}

func TestConcurrentEnsureAuthLogsInOnce(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	c := f.client()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.EnsureAuth(t.Context()))
		}()
	}
	wg.Wait()

	logins, _, _ := f.counts()
	assert.Equal(t, 1, logins)
}

func TestEnsureAuthSurvivesCancelledLeader(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	held := make(chan struct{}, 4)
	gate := make(chan struct{})
	f.with(func(f *fakePlatform) {
		f.loginHeld = held
		f.loginGate = gate
	})
	c := f.client()

	leaderCtx, cancel := context.WithCancel(t.Context())
	leader := make(chan error, 1)
	go func() { leader <- c.EnsureAuth(leaderCtx) }()

	<-held
	cancel()
	assert.ErrorIs(t, <-leader, context.Canceled)

	follower := make(chan error, 1)
	go func() { follower <- c.EnsureAuth(t.Context()) }()

	close(gate)
	require.NoError(t, <-follower)

	logins, _, _ := f.counts()
	assert.Equal(t, 1, logins)
}

func TestKeepAliveRenewsToken(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	f.with(func(f *fakePlatform) { f.tokenLife = 10 * time.Second })
	c := f.client()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.KeepAlive(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		logins, refreshes, _ := f.counts()
		return logins == 1 && refreshes >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestUnreachablePlatform(t *testing.T) {
	t.Parallel()

	f := newFakePlatform(t)
	c := f.client()
	f.srv.Close()

	err := c.Ping(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}
