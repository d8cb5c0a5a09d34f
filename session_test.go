package hood

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

// storage that fails on demand
type faultStorage struct {
	*MemoryStorage
	getErr    error
	setErr    error
	removeErr error
}

func newFaultStorage() *faultStorage {
	return &faultStorage{
		MemoryStorage: NewMemoryStorage(),
	}
}

func (self *faultStorage) Get(key string) (string, error) {
	if self.getErr != nil {
		return "", self.getErr
	}
	return self.MemoryStorage.Get(key)
}

func (self *faultStorage) Set(key string, value string) error {
	if self.setErr != nil {
		return self.setErr
	}
	return self.MemoryStorage.Set(key, value)
}

func (self *faultStorage) Remove(key string) error {
	if self.removeErr != nil {
		return self.removeErr
	}
	return self.MemoryStorage.Remove(key)
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	end := time.Now().Add(timeout)
	for time.Now().Before(end) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func loginServer(t *testing.T, userId int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		args := &LoginArgs{}
		json.NewDecoder(r.Body).Decode(args)
		if args.Password == "wrong" {
			http.Error(w, "Invalid username or password", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"user_id": userId})
	})
	mux.HandleFunc("/api/register", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"userId": userId})
	})
	return httptest.NewServer(mux)
}

func TestSessionBootstrapFound(t *testing.T) {
	server := loginServer(t, 42)
	defer server.Close()

	storage := NewMemoryStorage()
	storage.Set(StorageKeyUserId, "42")

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	assert.Equal(t, sessionStore.State(), SessionStateBootstrapping)

	sessionStore.Bootstrap()
	assert.Equal(t, sessionStore.State(), SessionStateAuthenticated)
	assert.Equal(t, sessionStore.UserId(), int64(42))
	assert.Equal(t, sessionStore.SessionId(), "42")
}

func TestSessionBootstrapMissing(t *testing.T) {
	server := loginServer(t, 42)
	defer server.Close()

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, NewMemoryStorage())
	sessionStore.Bootstrap()
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
	assert.Equal(t, sessionStore.SessionId(), "")
}

func TestSessionBootstrapReadFailure(t *testing.T) {
	server := loginServer(t, 42)
	defer server.Close()

	storage := newFaultStorage()
	storage.getErr = errors.New("device storage unavailable")

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()
	// the failure is swallowed: no session, not an error
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
}

func TestSignIn(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	storage := NewMemoryStorage()
	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()

	userId, err := sessionStore.SignIn("alice", "pw")
	assert.Equal(t, err, nil)
	assert.Equal(t, userId, int64(7))
	assert.Equal(t, sessionStore.State(), SessionStateAuthenticated)
	assert.Equal(t, sessionStore.UserId(), int64(7))

	persisted, _ := storage.Get(StorageKeyUserId)
	assert.Equal(t, persisted, "7")
}

func TestSignInFailure(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, NewMemoryStorage())
	sessionStore.Bootstrap()

	_, err := sessionStore.SignIn("alice", "wrong")
	assert.NotEqual(t, err, nil)

	var authErr *AuthError
	assert.Equal(t, errors.As(err, &authErr), true)
	assert.Equal(t, authErr.Reason, "invalid credentials")
	// the underlying cause is retained for diagnostics
	var serverErr *ServerError
	assert.Equal(t, errors.As(err, &serverErr), true)

	// state unchanged
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
}

func TestSignInPersistFailure(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	storage := newFaultStorage()
	storage.setErr = errors.New("device storage unavailable")

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()

	_, err := sessionStore.SignIn("alice", "pw")
	assert.NotEqual(t, err, nil)

	// the credentials were fine; the reason names the persistence fault
	var authErr *AuthError
	assert.Equal(t, errors.As(err, &authErr), true)
	assert.Equal(t, authErr.Reason, "session persist failed")
	assert.Equal(t, errors.Is(err, storage.setErr), true)
}

func TestAuthenticatedRequiresUserId(t *testing.T) {
	// a login response with no user id must not authenticate
	server := loginServer(t, 0)
	defer server.Close()

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, NewMemoryStorage())
	sessionStore.Bootstrap()

	_, err := sessionStore.SignIn("alice", "pw")
	assert.NotEqual(t, err, nil)
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
}

func TestSignUp(t *testing.T) {
	server := loginServer(t, 9)
	defer server.Close()

	storage := NewMemoryStorage()
	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()

	userId, err := sessionStore.SignUp("Bea Lin", "bea@example.com", "pw")
	assert.Equal(t, err, nil)
	assert.Equal(t, userId, int64(9))
	assert.Equal(t, sessionStore.State(), SessionStateAuthenticated)
}

func TestSignOut(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	storage := NewMemoryStorage()
	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")

	err := sessionStore.SignOut()
	assert.Equal(t, err, nil)
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
	assert.Equal(t, sessionStore.SessionId(), "")

	persisted, _ := storage.Get(StorageKeyUserId)
	assert.Equal(t, persisted, "")
}

func TestSignOutClearFailure(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	storage := newFaultStorage()
	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")

	storage.removeErr = errors.New("device storage unavailable")

	err := sessionStore.SignOut()
	// the state transition happens regardless, and the error is surfaced
	assert.Equal(t, sessionStore.State(), SessionStateUnauthenticated)
	assert.NotEqual(t, err, nil)

	var authErr *AuthError
	assert.Equal(t, errors.As(err, &authErr), true)
	assert.Equal(t, authErr.Reason, "sign out failed")
}

func TestSessionEvents(t *testing.T) {
	server := loginServer(t, 7)
	defer server.Close()

	api := NewCommunityApi(server.URL)
	sessionStore := NewSessionStore(context.Background(), api, NewMemoryStorage())

	events := []*SessionEvent{}
	remove := sessionStore.AddSessionEventCallback(func(event *SessionEvent) {
		events = append(events, event)
	})
	defer remove()

	sessionStore.Bootstrap()
	sessionStore.SignIn("alice", "pw")
	sessionStore.SignOut()

	assert.Equal(t, len(events), 3)
	assert.Equal(t, events[0].PreviousState, SessionStateBootstrapping)
	assert.Equal(t, events[0].State, SessionStateUnauthenticated)
	assert.Equal(t, events[1].State, SessionStateAuthenticated)
	assert.Equal(t, events[1].UserId, int64(7))
	assert.Equal(t, events[2].State, SessionStateUnauthenticated)
}
