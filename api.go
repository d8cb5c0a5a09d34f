package hood

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 10 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// typed request functions against the community REST API.
// pure request/response - retry policy, if any, is the caller's responsibility.
type CommunityApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	sessionToken string
}

func NewCommunityApi(apiUrl string) *CommunityApi {
	return NewCommunityApiWithContext(context.Background(), apiUrl)
}

func NewCommunityApiWithContext(ctx context.Context, apiUrl string) *CommunityApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &CommunityApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *CommunityApi) SetSessionToken(sessionToken string) {
	self.sessionToken = sessionToken
}

type LoginCallback apiCallback[*LoginResult]

type LoginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	UserId int64 `json:"user_id"`
}

func (self *CommunityApi) Login(login *LoginArgs, callback LoginCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/login/", self.apiUrl),
		login,
		self.sessionToken,
		&LoginResult{},
		callback,
	)
}

func (self *CommunityApi) LoginSync(login *LoginArgs) (*LoginResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/login/", self.apiUrl),
		login,
		self.sessionToken,
		&LoginResult{},
		NewNoopApiCallback[*LoginResult](),
	)
}

type RegisterCallback apiCallback[*RegisterResult]

type RegisterArgs struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResult struct {
	UserId int64         `json:"userId"`
	User   *RegisterUser `json:"user,omitempty"`
}

type RegisterUser struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (self *CommunityApi) Register(register *RegisterArgs, callback RegisterCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/register", self.apiUrl),
		register,
		self.sessionToken,
		&RegisterResult{},
		callback,
	)
}

func (self *CommunityApi) RegisterSync(register *RegisterArgs) (*RegisterResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/register", self.apiUrl),
		register,
		self.sessionToken,
		&RegisterResult{},
		NewNoopApiCallback[*RegisterResult](),
	)
}

type GetUserInfoCallback apiCallback[*GetUserInfoResult]

type GetUserInfoResult struct {
	UserId         int64    `json:"user_id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Email          string   `json:"email"`
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitude_delta"`
	LongitudeDelta *float64 `json:"longitude_delta"`
}

func (self *CommunityApi) GetUserInfo(userId int64, callback GetUserInfoCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/getUserInfo/%d/", self.apiUrl, userId),
		self.sessionToken,
		&GetUserInfoResult{},
		callback,
	)
}

func (self *CommunityApi) GetUserInfoSync(userId int64) (*GetUserInfoResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/getUserInfo/%d/", self.apiUrl, userId),
		self.sessionToken,
		&GetUserInfoResult{},
		NewNoopApiCallback[*GetUserInfoResult](),
	)
}

type SetUserLocationCallback apiCallback[*SetUserLocationResult]

type SetUserLocationArgs struct {
	UserId         int64    `json:"user_id"`
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitude_delta"`
	LongitudeDelta *float64 `json:"longitude_delta"`
}

type SetUserLocationResult struct {
}

func (self *CommunityApi) SetUserLocation(setUserLocation *SetUserLocationArgs, callback SetUserLocationCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/setUserLocation/", self.apiUrl),
		setUserLocation,
		self.sessionToken,
		&SetUserLocationResult{},
		callback,
	)
}

func (self *CommunityApi) SetUserLocationSync(setUserLocation *SetUserLocationArgs) (*SetUserLocationResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/setUserLocation/", self.apiUrl),
		setUserLocation,
		self.sessionToken,
		&SetUserLocationResult{},
		NewNoopApiCallback[*SetUserLocationResult](),
	)
}

type GetEventPinsCallback apiCallback[[]*EventPin]

// a map marker for a community event
type EventPin struct {
	EventName      string   `json:"event_name"`
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitude_delta"`
	LongitudeDelta *float64 `json:"longitude_delta"`
}

func (self *CommunityApi) GetEventPins(callback GetEventPinsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/getAllEventLocations/", self.apiUrl),
		self.sessionToken,
		[]*EventPin{},
		callback,
	)
}

func (self *CommunityApi) GetEventPinsSync() ([]*EventPin, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/getAllEventLocations/", self.apiUrl),
		self.sessionToken,
		[]*EventPin{},
		NewNoopApiCallback[[]*EventPin](),
	)
}

type GetHousePinsCallback apiCallback[[]*HousePin]

// a map marker for a community member's house
type HousePin struct {
	UserId         int64    `json:"user_id"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitude_delta"`
	LongitudeDelta *float64 `json:"longitude_delta"`
}

func (self *CommunityApi) GetHousePins(userId int64, callback GetHousePinsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/getAllUserLocations/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*HousePin{},
		callback,
	)
}

func (self *CommunityApi) GetHousePinsSync(userId int64) ([]*HousePin, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/getAllUserLocations/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*HousePin{},
		NewNoopApiCallback[[]*HousePin](),
	)
}

type GetAvailableEventsCallback apiCallback[[]*AvailableEvent]

type AvailableEvent struct {
	EventId        int64   `json:"event_id"`
	OwnerFirstName string  `json:"owner_first_name"`
	OwnerLastName  string  `json:"owner_last_name"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Date           string  `json:"date"`
	City           *string `json:"city"`
	Region         *string `json:"region"`
	Country        *string `json:"country"`
}

func (self *CommunityApi) GetAvailableEvents(userId int64, callback GetAvailableEventsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/getAvailableEvents/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*AvailableEvent{},
		callback,
	)
}

func (self *CommunityApi) GetAvailableEventsSync(userId int64) ([]*AvailableEvent, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/getAvailableEvents/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*AvailableEvent{},
		NewNoopApiCallback[[]*AvailableEvent](),
	)
}

type CreateEventCallback apiCallback[*CreateEventResult]

type CreateEventArgs struct {
	EventName      string   `json:"event_name"`
	Date           string   `json:"date"`
	Description    string   `json:"description"`
	OwnerId        int64    `json:"owner_id"`
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitude_delta"`
	LongitudeDelta *float64 `json:"longitude_delta"`
}

type CreateEventResult struct {
}

func (self *CommunityApi) CreateEvent(createEvent *CreateEventArgs, callback CreateEventCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/createEvent/", self.apiUrl),
		createEvent,
		self.sessionToken,
		&CreateEventResult{},
		callback,
	)
}

func (self *CommunityApi) CreateEventSync(createEvent *CreateEventArgs) (*CreateEventResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/createEvent/", self.apiUrl),
		createEvent,
		self.sessionToken,
		&CreateEventResult{},
		NewNoopApiCallback[*CreateEventResult](),
	)
}

type CreateCommunityCallback apiCallback[*CreateCommunityResult]

type CreateCommunityArgs struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	City        *string  `json:"city"`
	Region      *string  `json:"region"`
	Country     *string  `json:"country"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type CreateCommunityResult struct {
}

func (self *CommunityApi) CreateCommunity(createCommunity *CreateCommunityArgs, callback CreateCommunityCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/createCommunity/", self.apiUrl),
		createCommunity,
		self.sessionToken,
		&CreateCommunityResult{},
		callback,
	)
}

func (self *CommunityApi) CreateCommunitySync(createCommunity *CreateCommunityArgs) (*CreateCommunityResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/createCommunity/", self.apiUrl),
		createCommunity,
		self.sessionToken,
		&CreateCommunityResult{},
		NewNoopApiCallback[*CreateCommunityResult](),
	)
}

type JoinEventCallback apiCallback[*JoinEventResult]

type JoinEventArgs struct {
	UserId  int64 `json:"user_id"`
	EventId int64 `json:"event_id"`
}

type JoinEventResult struct {
	Message string `json:"message,omitempty"`
}

func (self *CommunityApi) JoinEvent(joinEvent *JoinEventArgs, callback JoinEventCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/joinEvent/", self.apiUrl),
		joinEvent,
		self.sessionToken,
		&JoinEventResult{},
		callback,
	)
}

func (self *CommunityApi) JoinEventSync(joinEvent *JoinEventArgs) (*JoinEventResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/joinEvent/", self.apiUrl),
		joinEvent,
		self.sessionToken,
		&JoinEventResult{},
		NewNoopApiCallback[*JoinEventResult](),
	)
}

type GetConversationMessagesCallback apiCallback[[]*MessageRecord]

// a message as returned by the server, in insertion order
type MessageRecord struct {
	Id               int64  `json:"id"`
	Content          string `json:"content"`
	FromUserId       int64  `json:"from_user_id"`
	ToConversationId int64  `json:"to_conversation_id"`
	Timestamp        string `json:"timestamp"`
}

func (self *CommunityApi) GetConversationMessages(conversationId int64, callback GetConversationMessagesCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/getConversationMessages/%d/", self.apiUrl, conversationId),
		self.sessionToken,
		[]*MessageRecord{},
		callback,
	)
}

func (self *CommunityApi) GetConversationMessagesSync(conversationId int64) ([]*MessageRecord, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/getConversationMessages/%d/", self.apiUrl, conversationId),
		self.sessionToken,
		[]*MessageRecord{},
		NewNoopApiCallback[[]*MessageRecord](),
	)
}

type SendMessageCallback apiCallback[*SendMessageResult]

type SendMessageArgs struct {
	Content          string `json:"content"`
	FromUserId       int64  `json:"from_user_id"`
	ToConversationId int64  `json:"to_conversation_id"`
}

type SendMessageResult struct {
}

func (self *CommunityApi) SendMessage(sendMessage *SendMessageArgs, callback SendMessageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/sendMessage/", self.apiUrl),
		sendMessage,
		self.sessionToken,
		&SendMessageResult{},
		callback,
	)
}

func (self *CommunityApi) SendMessageSync(sendMessage *SendMessageArgs) (*SendMessageResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/sendMessage/", self.apiUrl),
		sendMessage,
		self.sessionToken,
		&SendMessageResult{},
		NewNoopApiCallback[*SendMessageResult](),
	)
}

type LoadConversationsCallback apiCallback[[]*ConversationRecord]

type ConversationRecord struct {
	ConversationId int64   `json:"conversation_id"`
	Name           string  `json:"name"`
	Preview        string  `json:"preview"`
	Timestamp      *string `json:"timestamp"`
}

func (self *CommunityApi) LoadConversations(userId int64, callback LoadConversationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/api/loadConversations/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*ConversationRecord{},
		callback,
	)
}

func (self *CommunityApi) LoadConversationsSync(userId int64) ([]*ConversationRecord, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/api/loadConversations/%d/", self.apiUrl, userId),
		self.sessionToken,
		[]*ConversationRecord{},
		NewNoopApiCallback[[]*ConversationRecord](),
	)
}

type CreateConversationCallback apiCallback[*CreateConversationResult]

type CreateConversationArgs struct {
	ConversationName string  `json:"conversation_name"`
	FromUserId       int64   `json:"from_user_id"`
	ToUserIds        []int64 `json:"to_user_ids"`
	Content          string  `json:"content"`
}

type CreateConversationResult struct {
}

func (self *CommunityApi) CreateConversation(createConversation *CreateConversationArgs, callback CreateConversationCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/api/createConversation/", self.apiUrl),
		createConversation,
		self.sessionToken,
		&CreateConversationResult{},
		callback,
	)
}

func (self *CommunityApi) CreateConversationSync(createConversation *CreateConversationArgs) (*CreateConversationResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/api/createConversation/", self.apiUrl),
		createConversation,
		self.sessionToken,
		&CreateConversationResult{},
		NewNoopApiCallback[*CreateConversationResult](),
	)
}

func post[R any](ctx context.Context, url string, args any, sessionToken string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if sessionToken != "" {
		auth := fmt.Sprintf("Bearer %s", sessionToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		err = &NetworkError{Cause: err}
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode/100 != 2 {
		// the response body is the error message
		err = &ServerError{
			Status: r.StatusCode,
			Body:   strings.TrimSpace(string(responseBodyBytes)),
		}
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		err = &NetworkError{Cause: err}
		callback.Result(result, err)
		return result, err
	}

	if 0 < len(responseBodyBytes) {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, sessionToken string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if sessionToken != "" {
		auth := fmt.Sprintf("Bearer %s", sessionToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		err = &NetworkError{Cause: err}
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode/100 != 2 {
		err = &ServerError{
			Status: r.StatusCode,
			Body:   strings.TrimSpace(string(responseBodyBytes)),
		}
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		err = &NetworkError{Cause: err}
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
