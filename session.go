package hood

import (
	"context"
	"strconv"
	"sync"

	"github.com/golang/glog"
)

// session state machine is:
// SessionStateBootstrapping
//
//	-> SessionStateUnauthenticated
//	-> SessionStateAuthenticated
//
// authenticated and unauthenticated are mutually reachable for the lifetime
// of the store. no state is terminal.
type SessionState string

const (
	SessionStateBootstrapping   SessionState = "Bootstrapping"
	SessionStateUnauthenticated SessionState = "Unauthenticated"
	SessionStateAuthenticated   SessionState = "Authenticated"
)

func (self SessionState) IsAuthenticated() bool {
	switch self {
	case SessionStateAuthenticated:
		return true
	default:
		return false
	}
}

type SessionEvent struct {
	PreviousState SessionState
	State         SessionState
	SessionId     string
	UserId        int64
}

type SessionEventFunction = func(event *SessionEvent)

// holds the authenticated identity, persisted across restarts.
// the single owner of the persisted session id - consumers subscribe to
// state-change events instead of re-reading storage.
type SessionStore struct {
	ctx    context.Context
	cancel context.CancelFunc

	api     *CommunityApi
	storage Storage

	stateLock sync.Mutex
	state     SessionState
	sessionId string
	userId    int64

	sessionEventCallbacks *CallbackList[SessionEventFunction]
}

func NewSessionStore(ctx context.Context, api *CommunityApi, storage Storage) *SessionStore {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &SessionStore{
		ctx:                   cancelCtx,
		cancel:                cancel,
		api:                   api,
		storage:               storage,
		state:                 SessionStateBootstrapping,
		sessionEventCallbacks: NewCallbackList[SessionEventFunction](),
	}
}

func (self *SessionStore) AddSessionEventCallback(sessionEventCallback SessionEventFunction) func() {
	callbackId := self.sessionEventCallbacks.Add(sessionEventCallback)
	return func() {
		self.sessionEventCallbacks.Remove(callbackId)
	}
}

func (self *SessionStore) State() SessionState {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.state
}

func (self *SessionStore) SessionId() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.sessionId
}

func (self *SessionStore) UserId() int64 {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.userId
}

// reads the persisted session id once at process start.
// a read failure means no session, not an error - there is nothing a caller
// could do about it besides sign in again.
func (self *SessionStore) Bootstrap() {
	sessionId, err := self.storage.Get(StorageKeyUserId)
	if err != nil {
		glog.Infof("[session]bootstrap read failed = %s\n", err)
		self.transition(SessionStateUnauthenticated, "", 0)
		return
	}
	if sessionId == "" {
		self.transition(SessionStateUnauthenticated, "", 0)
		return
	}

	userId, err := sessionUserId(sessionId)
	if err != nil {
		glog.Infof("[session]persisted session id not usable = %s\n", err)
		self.transition(SessionStateUnauthenticated, "", 0)
		return
	}

	self.transition(SessionStateAuthenticated, sessionId, userId)
}

func (self *SessionStore) SignIn(username string, password string) (int64, error) {
	result, err := self.api.LoginSync(&LoginArgs{
		Username: username,
		Password: password,
	})
	if err != nil {
		return 0, &AuthError{Reason: "invalid credentials", Cause: err}
	}
	if result.UserId == 0 {
		return 0, &AuthError{Reason: "invalid credentials"}
	}

	sessionId := strconv.FormatInt(result.UserId, 10)
	if err := self.storage.Set(StorageKeyUserId, sessionId); err != nil {
		return 0, &AuthError{Reason: "session persist failed", Cause: err}
	}

	self.transition(SessionStateAuthenticated, sessionId, result.UserId)
	return result.UserId, nil
}

func (self *SessionStore) SignUp(name string, email string, password string) (int64, error) {
	result, err := self.api.RegisterSync(&RegisterArgs{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return 0, &AuthError{Reason: "registration failed", Cause: err}
	}
	if result.UserId == 0 {
		return 0, &AuthError{Reason: "registration failed"}
	}

	sessionId := strconv.FormatInt(result.UserId, 10)
	if err := self.storage.Set(StorageKeyUserId, sessionId); err != nil {
		return 0, &AuthError{Reason: "session persist failed", Cause: err}
	}

	self.transition(SessionStateAuthenticated, sessionId, result.UserId)
	return result.UserId, nil
}

// clear-then-confirm: the in-memory state always becomes unauthenticated,
// even when the persistence clear fails. the failure is still surfaced so the
// caller can tell the device may auto sign in on next start.
func (self *SessionStore) SignOut() error {
	clearErr := self.storage.Remove(StorageKeyUserId)

	self.transition(SessionStateUnauthenticated, "", 0)

	if clearErr != nil {
		return &AuthError{Reason: "sign out failed", Cause: clearErr}
	}
	return nil
}

func (self *SessionStore) transition(state SessionState, sessionId string, userId int64) {
	var event *SessionEvent
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.state == state && self.sessionId == sessionId {
			return
		}

		event = &SessionEvent{
			PreviousState: self.state,
			State:         state,
			SessionId:     sessionId,
			UserId:        userId,
		}
		self.state = state
		self.sessionId = sessionId
		self.userId = userId
	}()

	if event == nil {
		return
	}

	self.api.SetSessionToken(event.SessionId)

	glog.V(1).Infof("[session]%s -> %s\n", event.PreviousState, event.State)

	for _, callback := range self.sessionEventCallbacks.Get() {
		callback(event)
	}
}

func (self *SessionStore) Close() {
	self.cancel()
}
