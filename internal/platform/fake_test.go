package platform

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jjenkins/scorestream/internal/config"
)

// fakePlatform is an in-memory stand-in for the platform REST API
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	nextID        int
	groups        []Group
	streams       []Stream
	channels      []Channel
	profiles      []Profile
	channelBodies []map[string]any

	access        string
	tokenLife     time.Duration
	rejectLogin   bool
	loginFailures int
	paginate      bool
	// loginHeld receives once per login that then waits for loginGate
	loginHeld chan struct{}
	loginGate chan struct{}

	logins    int
	refreshes int
	posts     map[string]int
	patches   int
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	f := &fakePlatform{
		t:         t,
		nextID:    100,
		tokenLife: time.Hour,
		posts:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlatform) client(opts ...Option) *Client {
	cfg := config.PlatformConfig{
		URL:               f.srv.URL,
		Username:          "admin",
		Password:          "secret",
		GroupName:         "ScoreStream",
		QuickTimeout:      2 * time.Second,
		ListTimeout:       2 * time.Second,
		AuthRetries:       3,
		TokenTTL:          5 * time.Minute,
		TokenSafetyMargin: 30 * time.Second,
	}
	opts = append([]Option{WithRetryInterval(time.Millisecond)}, opts...)
	return New(cfg, zap.NewNop(), opts...)
}

func (f *fakePlatform) issueToken() string {
	f.t.Helper()
	f.nextID++
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(f.tokenLife).Unix(),
		"jti": strconv.Itoa(f.nextID),
	}).SignedString([]byte("test-key"))
	if err != nil {
		f.t.Fatalf("sign token: %v", err)
	}
	f.access = token
	return token
}

// with runs fn holding the fake's lock, for setup and inspection
func (f *fakePlatform) with(fn func(f *fakePlatform)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePlatform) revoke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "revoked"
}

func (f *fakePlatform) counts() (logins, refreshes, patches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.refreshes, f.patches
}

func (f *fakePlatform) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == tokenPath {
		f.mu.Lock()
		held, gate := f.loginHeld, f.loginGate
		f.mu.Unlock()
		if gate != nil {
			held <- struct{}{}
			<-gate
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPatch) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch r.URL.Path {
	case tokenPath:
		f.logins++
		if f.rejectLogin {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account"})
			return
		}
		if f.loginFailures > 0 {
			f.loginFailures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": f.issueToken(), "refresh": "refresh-1"})
		return
	case tokenRefreshPath:
		f.refreshes++
		if body["refresh"] != "refresh-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid refresh"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": f.issueToken()})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+f.access {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token not valid"})
		return
	}

	switch {
	case r.URL.Path == groupsPath && r.Method == http.MethodGet:
		writeList(w, r, f, f.groups)
	case r.URL.Path == groupsPath && r.Method == http.MethodPost:
		f.posts[groupsPath]++
		f.nextID++
		g := Group{ID: f.nextID, Name: body["name"].(string)}
		f.groups = append(f.groups, g)
		writeJSON(w, http.StatusCreated, g)
	case r.URL.Path == streamsPath && r.Method == http.MethodGet:
		writeList(w, r, f, f.streams)
	case r.URL.Path == streamsPath && r.Method == http.MethodPost:
		f.posts[streamsPath]++
		f.nextID++
		s := Stream{ID: f.nextID, Name: body["name"].(string), URL: body["url"].(string)}
		f.streams = append(f.streams, s)
		writeJSON(w, http.StatusCreated, s)
	case r.URL.Path == channelsPath && r.Method == http.MethodGet:
		writeList(w, r, f, f.channels)
	case r.URL.Path == channelsPath && r.Method == http.MethodPost:
		f.posts[channelsPath]++
		f.channelBodies = append(f.channelBodies, body)
		f.nextID++
		ch := channelFromBody(f.nextID, body)
		f.channels = append(f.channels, ch)
		writeJSON(w, http.StatusCreated, ch)
	case strings.HasPrefix(r.URL.Path, channelsPath) && r.Method == http.MethodPatch:
		f.patches++
		f.channelBodies = append(f.channelBodies, body)
		id, _ := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, channelsPath), "/"))
		for i := range f.channels {
			if f.channels[i].ID == id {
				f.channels[i] = channelFromBody(id, body)
				writeJSON(w, http.StatusOK, f.channels[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Path == profilesPath && r.Method == http.MethodGet:
		writeList(w, r, f, f.profiles)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func channelFromBody(id int, body map[string]any) Channel {
	groupID := int(body["channel_group_id"].(float64))
	ch := Channel{
		ID:             id,
		Name:           body["name"].(string),
		ChannelNumber:  body["channel_number"].(float64),
		ChannelGroupID: &groupID,
	}
	if streams, ok := body["streams"].([]any); ok {
		for _, s := range streams {
			ch.Streams = append(ch.Streams, int(s.(float64)))
		}
	}
	return ch
}

// writeList answers with a bare array, or with a one-item-per-page
// {results, next} envelope when paginating
func writeList[T any](w http.ResponseWriter, r *http.Request, f *fakePlatform, items []T) {
	if items == nil {
		items = []T{}
	}
	if !f.paginate {
		writeJSON(w, http.StatusOK, items)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	envelope := map[string]any{"results": []T{}, "next": nil}
	if page <= len(items) {
		envelope["results"] = items[page-1 : page]
	}
	if page < len(items) {
		envelope["next"] = f.srv.URL + r.URL.Path + "?page=" + strconv.Itoa(page+1)
	}
	writeJSON(w, http.StatusOK, envelope)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
