package hood

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

type fakeResolver struct {
	location *UserLocation
	err      error
}

func (self *fakeResolver) Resolve(ctx context.Context) (*UserLocation, error) {
	if self.err != nil {
		return nil, self.err
	}
	location := *self.location
	return &location, nil
}

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// a mock backend that remembers the last pushed location,
// with the fixed fallback the real server uses before any push
type profileServer struct {
	mutex sync.Mutex

	userInfoCalls int
	location      *SetUserLocationArgs

	server *httptest.Server
}

func newProfileServer(userId int64) *profileServer {
	self := &profileServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user_id": userId})
	})
	mux.HandleFunc("/api/getUserInfo/", func(w http.ResponseWriter, r *http.Request) {
		self.mutex.Lock()
		defer self.mutex.Unlock()
		self.userInfoCalls += 1

		info := map[string]any{
			"user_id":    userId,
			"first_name": "Alice",
			"last_name":  "Hart",
			"email":      "alice@example.com",
		}
		if self.location == nil {
			info["city"] = "Toronto"
			info["region"] = "Ontario"
			info["country"] = "Canada"
			info["latitude"] = 43.7734535
			info["longitude"] = -79.5018684
			info["latitude_delta"] = 0.1
			info["longitude_delta"] = 0.1
		} else {
			info["city"] = self.location.City
			info["region"] = self.location.Region
			info["country"] = self.location.Country
			info["latitude"] = self.location.Latitude
			info["longitude"] = self.location.Longitude
			info["latitude_delta"] = self.location.LatitudeDelta
			info["longitude_delta"] = self.location.LongitudeDelta
		}
		json.NewEncoder(w).Encode(info)
	})
	mux.HandleFunc("/api/setUserLocation/", func(w http.ResponseWriter, r *http.Request) {
		args := &SetUserLocationArgs{}
		json.NewDecoder(r.Body).Decode(args)
		self.mutex.Lock()
		self.location = args
		self.mutex.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	self.server = httptest.NewServer(mux)
	return self
}

func (self *profileServer) calls() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.userInfoCalls
}

func TestProfileFetchOnSignIn(t *testing.T) {
	backend := newProfileServer(7)
	defer backend.server.Close()

	api := NewCommunityApi(backend.server.URL)
	storage := NewMemoryStorage()
	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, nil)
	defer profileStore.Close()

	sessionStore.Bootstrap()
	assert.Equal(t, profileStore.Profile(), nil)

	userId, err := sessionStore.SignIn("alice", "pw")
	assert.Equal(t, err, nil)
	assert.Equal(t, userId, int64(7))

	// fetched exactly once, for the authenticated id
	assert.Equal(t, backend.calls(), 1)

	profile := profileStore.Profile()
	assert.NotEqual(t, profile, nil)
	assert.Equal(t, profile.Id, int64(7))
	assert.Equal(t, profile.FirstName, "Alice")
	assert.Equal(t, profile.Username, "alice@example.com")
	assert.Equal(t, profile.IsLoadingLocation, false)

	// the fixed client viewport delta wins over the server's
	assert.Equal(t, *profile.Location.City, "Toronto")
	assert.Equal(t, *profile.Location.LatitudeDelta, DefaultViewportDelta)
	assert.Equal(t, *profile.Location.LongitudeDelta, DefaultViewportDelta)
}

func TestProfileClearedOnSignOut(t *testing.T) {
	backend := newProfileServer(7)
	defer backend.server.Close()

	api := NewCommunityApi(backend.server.URL)
	storage := NewMemoryStorage()
	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, nil)
	defer profileStore.Close()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")
	assert.NotEqual(t, profileStore.Profile(), nil)

	sessionStore.SignOut()
	assert.Equal(t, profileStore.Profile(), nil)
}

func TestProfileFetchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"user_id": 7})
	})
	mux.HandleFunc("/api/getUserInfo/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	api := NewCommunityApi(server.URL)
	storage := NewMemoryStorage()
	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, nil)
	defer profileStore.Close()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")

	// failure is recorded, not thrown; the loading flag still clears
	profile := profileStore.Profile()
	assert.NotEqual(t, profile, nil)
	assert.Equal(t, profile.Id, int64(7))
	assert.Equal(t, profile.IsLoadingLocation, false)
	assert.Equal(t, profile.FirstName, "")
	assert.NotEqual(t, profileStore.LastError(), nil)
}

func TestProfileCachedLocationVisibleDuringFetch(t *testing.T) {
	backend := newProfileServer(7)
	defer backend.server.Close()

	api := NewCommunityApi(backend.server.URL)
	storage := NewMemoryStorage()
	cached := &UserLocation{
		City:      strPtr("Hamilton"),
		Region:    strPtr("Ontario"),
		Country:   strPtr("Canada"),
		Latitude:  floatPtr(43.2557),
		Longitude: floatPtr(-79.8711),
	}
	value, err := encodeUserLocation(cached)
	assert.Equal(t, err, nil)
	storage.Set(StorageKeyUserLocation, value)

	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, nil)
	defer profileStore.Close()

	// capture the loading-state snapshot emitted before the fetch resolves
	snapshots := []*UserProfile{}
	remove := profileStore.AddProfileEventCallback(func(profile *UserProfile) {
		snapshots = append(snapshots, profile)
	})
	defer remove()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")

	assert.Equal(t, 2 <= len(snapshots), true)
	first := snapshots[0]
	assert.Equal(t, first.IsLoadingLocation, true)
	assert.Equal(t, *first.Location.City, "Hamilton")

	last := snapshots[len(snapshots)-1]
	assert.Equal(t, last.IsLoadingLocation, false)
	assert.Equal(t, *last.Location.City, "Toronto")
}

func TestLocationRoundTrip(t *testing.T) {
	backend := newProfileServer(7)
	defer backend.server.Close()

	api := NewCommunityApi(backend.server.URL)
	storage := NewMemoryStorage()
	resolver := &fakeResolver{
		location: &UserLocation{
			City:      strPtr("Hamilton"),
			Region:    strPtr("Ontario"),
			Country:   strPtr("Canada"),
			Latitude:  floatPtr(43.2557),
			Longitude: floatPtr(-79.8711),
		},
	}

	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, resolver)
	defer profileStore.Close()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")

	err := profileStore.RefreshLocation(context.Background())
	assert.Equal(t, err, nil)

	// sign out and back in: the re-fetched profile carries the pushed location
	sessionStore.SignOut()
	sessionStore.SignIn("alice", "pw")

	profile := profileStore.Profile()
	assert.Equal(t, *profile.Location.City, "Hamilton")
	assert.Equal(t, *profile.Location.Region, "Ontario")
	assert.Equal(t, *profile.Location.Country, "Canada")
	assert.Equal(t, *profile.Location.Latitude, 43.2557)
	assert.Equal(t, *profile.Location.Longitude, -79.8711)
	// deltas are client-injected, not round-tripped
	assert.Equal(t, *profile.Location.LatitudeDelta, DefaultViewportDelta)
}

func TestRefreshLocationPermissionDenied(t *testing.T) {
	backend := newProfileServer(7)
	defer backend.server.Close()

	api := NewCommunityApi(backend.server.URL)
	storage := NewMemoryStorage()
	resolver := &fakeResolver{
		err: &LocationError{Reason: "location permission denied"},
	}

	sessionStore := NewSessionStore(context.Background(), api, storage)
	profileStore := NewProfileStoreWithDefaults(context.Background(), api, sessionStore, storage, resolver)
	defer profileStore.Close()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")
	before := profileStore.Profile().Location

	err := profileStore.RefreshLocation(context.Background())
	assert.NotEqual(t, err, nil)

	profile := profileStore.Profile()
	assert.Equal(t, profile.IsLoadingLocation, false)
	// previous location stays in place
	assert.Equal(t, *profile.Location.City, *before.City)
	assert.NotEqual(t, profileStore.LastError(), nil)
}
