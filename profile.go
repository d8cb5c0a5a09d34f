package hood

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

type UserProfile struct {
	Id                int64
	FirstName         string
	LastName          string
	Username          string
	Location          *UserLocation
	IsLoadingLocation bool
}

type ProfileEventFunction = func(profile *UserProfile)

func DefaultProfileStoreSettings() *ProfileStoreSettings {
	return &ProfileStoreSettings{
		ViewportDelta: DefaultViewportDelta,
	}
}

type ProfileStoreSettings struct {
	// applied to resolved locations regardless of server-provided deltas
	ViewportDelta float64
}

// holds the current user's profile and location.
// bootstrapped from the device cache, then reconciled with the server once a
// session exists. the single owner of the profile - views only read it.
type ProfileStore struct {
	ctx    context.Context
	cancel context.CancelFunc

	api      *CommunityApi
	storage  Storage
	resolver LocationResolver
	settings *ProfileStoreSettings

	stateLock sync.Mutex
	profile   *UserProfile
	lastError error

	profileEventCallbacks *CallbackList[ProfileEventFunction]

	removeSessionEventCallback func()
}

func NewProfileStoreWithDefaults(
	ctx context.Context,
	api *CommunityApi,
	sessionStore *SessionStore,
	storage Storage,
	resolver LocationResolver,
) *ProfileStore {
	return NewProfileStore(ctx, api, sessionStore, storage, resolver, DefaultProfileStoreSettings())
}

func NewProfileStore(
	ctx context.Context,
	api *CommunityApi,
	sessionStore *SessionStore,
	storage Storage,
	resolver LocationResolver,
	settings *ProfileStoreSettings,
) *ProfileStore {
	cancelCtx, cancel := context.WithCancel(ctx)

	profileStore := &ProfileStore{
		ctx:                   cancelCtx,
		cancel:                cancel,
		api:                   api,
		storage:               storage,
		resolver:              resolver,
		settings:              settings,
		profileEventCallbacks: NewCallbackList[ProfileEventFunction](),
	}
	profileStore.removeSessionEventCallback = sessionStore.AddSessionEventCallback(profileStore.sessionEvent)
	return profileStore
}

func (self *ProfileStore) AddProfileEventCallback(profileEventCallback ProfileEventFunction) func() {
	callbackId := self.profileEventCallbacks.Add(profileEventCallback)
	return func() {
		self.profileEventCallbacks.Remove(callbackId)
	}
}

// a copy. the store remains the single writer.
func (self *ProfileStore) Profile() *UserProfile {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.profile == nil {
		return nil
	}
	profile := *self.profile
	return &profile
}

func (self *ProfileStore) LastError() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.lastError
}

// fetch runs on the unauthenticated->authenticated transition and on no
// other trigger. sign-out clears the profile.
func (self *ProfileStore) sessionEvent(event *SessionEvent) {
	switch event.State {
	case SessionStateAuthenticated:
		if event.PreviousState != SessionStateAuthenticated {
			self.fetchProfile(event.UserId)
		}
	case SessionStateUnauthenticated:
		self.clear()
	}
}

func (self *ProfileStore) fetchProfile(userId int64) {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.profile = &UserProfile{
			Id:                userId,
			IsLoadingLocation: true,
		}
		self.lastError = nil

		// cached location first, so consumers can render stale-but-present
		// data while the fetch is in flight
		if value, err := self.storage.Get(StorageKeyUserLocation); err == nil && value != "" {
			if location, err := decodeUserLocation(value); err == nil {
				self.profile.Location = location
			}
		}
	}()
	self.event()

	result, err := self.api.GetUserInfoSync(userId)

	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.profile == nil || self.profile.Id != userId {
			// signed out or re-authenticated while the fetch was in flight
			return
		}

		if err == nil {
			self.profile.FirstName = result.FirstName
			self.profile.LastName = result.LastName
			self.profile.Username = result.Email

			location := &UserLocation{
				City:      result.City,
				Region:    result.Region,
				Country:   result.Country,
				Latitude:  result.Latitude,
				Longitude: result.Longitude,
			}
			location.normalize(self.settings.ViewportDelta)
			self.profile.Location = location

			self.persistLocation(location)
		} else {
			glog.Infof("[profile]fetch failed = %s\n", err)
			self.lastError = err
		}

		self.profile.IsLoadingLocation = false
	}()
	self.event()
}

// resolves a fresh device location, pushes it to the server, and re-caches
// it. errors are recorded, not thrown - the previous location stays in place.
func (self *ProfileStore) RefreshLocation(ctx context.Context) error {
	if self.resolver == nil {
		return &LocationError{Reason: "no location resolver"}
	}

	var userId int64
	ok := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.profile == nil {
			return false
		}
		userId = self.profile.Id
		self.profile.IsLoadingLocation = true
		return true
	}()
	if !ok {
		return &LocationError{Reason: "no active profile"}
	}
	self.event()

	location, err := self.resolver.Resolve(ctx)

	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.profile == nil || self.profile.Id != userId {
			return
		}

		if err == nil {
			location.normalize(self.settings.ViewportDelta)
			self.profile.Location = location
			self.persistLocation(location)
		} else {
			glog.Infof("[profile]location resolve failed = %s\n", err)
			self.lastError = err
		}

		self.profile.IsLoadingLocation = false
	}()
	self.event()

	if err != nil {
		return err
	}

	_, err = self.api.SetUserLocationSync(&SetUserLocationArgs{
		UserId:         userId,
		City:           location.City,
		Region:         location.Region,
		Country:        location.Country,
		Latitude:       location.Latitude,
		Longitude:      location.Longitude,
		LatitudeDelta:  location.LatitudeDelta,
		LongitudeDelta: location.LongitudeDelta,
	})
	if err != nil {
		glog.Infof("[profile]location push failed = %s\n", err)
		func() {
			self.stateLock.Lock()
			defer self.stateLock.Unlock()
			self.lastError = err
		}()
		return err
	}
	return nil
}

// must be called with `stateLock`
func (self *ProfileStore) persistLocation(location *UserLocation) {
	if !location.Resolved() {
		return
	}
	value, err := encodeUserLocation(location)
	if err != nil {
		return
	}
	if err := self.storage.Set(StorageKeyUserLocation, value); err != nil {
		glog.Infof("[profile]location cache write failed = %s\n", err)
	}
}

func (self *ProfileStore) clear() {
	cleared := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		if self.profile == nil {
			return false
		}
		self.profile = nil
		self.lastError = nil
		return true
	}()
	if cleared {
		self.event()
	}
}

func (self *ProfileStore) event() {
	callbacks := self.profileEventCallbacks.Get()
	if len(callbacks) == 0 {
		return
	}

	profile := self.Profile()
	for _, callback := range callbacks {
		callback(profile)
	}
}

func (self *ProfileStore) Close() {
	self.removeSessionEventCallback()
	self.cancel()
}
