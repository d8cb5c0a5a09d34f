package hood

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/oklog/ulid/v2"
)

type ConversationMessage struct {
	Id               string
	Content          string
	FromUserId       int64
	ToConversationId int64
	Timestamp        string
	IsSent           bool
	// locally constructed, not yet confirmed by a poll
	Pending bool
}

type MessagesFunction = func(messages []*ConversationMessage)

func DefaultConversationSyncSettings() *ConversationSyncSettings {
	return &ConversationSyncSettings{
		PollInterval: 1 * time.Second,
	}
}

type ConversationSyncSettings struct {
	PollInterval time.Duration
}

// keeps one open conversation synchronized with the server by polling.
// fetch once immediately, then at a fixed period until closed.
//
// each fetch replaces the confirmed list wholesale, reversed so newest is
// first. the order is the raw server return order - no timestamp sort is
// applied (the server returns insertion order).
//
// overlap protection: a tick is skipped while the previous fetch is
// outstanding, and each fetch carries a sequence number so a late response
// can never overwrite a newer list.
//
// optimistic sends live in a separate pending slot, merged ahead of the
// confirmed list, and retired once the send request has succeeded and a poll
// returns the confirming server message. a failed send leaves the pending
// entry in place.
type ConversationSync struct {
	ctx    context.Context
	cancel context.CancelFunc

	api            *CommunityApi
	conversationId int64
	userId         int64
	settings       *ConversationSyncSettings

	log     LogFunction
	pollLog LogFunction

	stateLock     sync.Mutex
	fetchInFlight bool
	nextSeq       uint64
	appliedSeq    uint64
	confirmed     []*ConversationMessage
	pending       []*ConversationMessage
	// pending ids whose send request has completed successfully.
	// only these are eligible for retirement against the confirmed list.
	delivered map[string]bool

	messageCallbacks *CallbackList[MessagesFunction]
}

func NewConversationSyncWithDefaults(
	ctx context.Context,
	api *CommunityApi,
	conversationId int64,
	userId int64,
) *ConversationSync {
	return NewConversationSync(ctx, api, conversationId, userId, DefaultConversationSyncSettings())
}

func NewConversationSync(
	ctx context.Context,
	api *CommunityApi,
	conversationId int64,
	userId int64,
	settings *ConversationSyncSettings,
) *ConversationSync {
	cancelCtx, cancel := context.WithCancel(ctx)

	log := LogFn(LogLevelDebug, fmt.Sprintf("conv-%d", conversationId))
	conversationSync := &ConversationSync{
		ctx:              cancelCtx,
		cancel:           cancel,
		api:              api,
		conversationId:   conversationId,
		userId:           userId,
		settings:         settings,
		log:              log,
		pollLog:          SubLogFn(LogLevelDebug, log, "poll"),
		confirmed:        []*ConversationMessage{},
		pending:          []*ConversationMessage{},
		delivered:        map[string]bool{},
		messageCallbacks: NewCallbackList[MessagesFunction](),
	}
	go conversationSync.run()
	return conversationSync
}

func (self *ConversationSync) AddMessagesCallback(messagesCallback MessagesFunction) func() {
	callbackId := self.messageCallbacks.Add(messagesCallback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *ConversationSync) run() {
	for {
		self.poll()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.PollInterval):
		}
	}
}

// one fetch-and-replace cycle. safe to call from any goroutine.
func (self *ConversationSync) poll() {
	var seq uint64
	ok := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.fetchInFlight {
			// single-flight: skip this tick
			self.pollLog("skip tick")
			return false
		}
		self.fetchInFlight = true
		self.nextSeq += 1
		seq = self.nextSeq
		return true
	}()
	if !ok {
		return
	}

	records, err := self.api.GetConversationMessagesSync(self.conversationId)

	changed := func() bool {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.fetchInFlight = false

		if self.ctx.Err() != nil {
			// closed while the fetch was in flight
			self.pollLog("discard response after close")
			return false
		}
		if err != nil {
			// stale-but-present beats empty
			glog.Infof("[conv][%d]fetch failed = %s\n", self.conversationId, err)
			return false
		}
		if seq < self.appliedSeq {
			self.pollLog("discard stale response seq=%d", seq)
			return false
		}
		self.appliedSeq = seq

		// newest first: server insertion order, reversed
		confirmed := make([]*ConversationMessage, 0, len(records))
		for i := len(records) - 1; 0 <= i; i -= 1 {
			record := records[i]
			confirmed = append(confirmed, &ConversationMessage{
				Id:               strconv.FormatInt(record.Id, 10),
				Content:          record.Content,
				FromUserId:       record.FromUserId,
				ToConversationId: record.ToConversationId,
				Timestamp:        record.Timestamp,
				IsSent:           record.FromUserId == self.userId,
			})
		}
		self.confirmed = confirmed
		self.retirePending()
		return true
	}()

	if changed {
		self.event()
	}
}

// retires pending entries the server has echoed back. the server assigns ids
// on insert and does not return them from send, so the join key is the
// sender plus content. an entry is only eligible once its send request has
// completed successfully - a failed or still in-flight send keeps its entry,
// so a re-send of text already in the history cannot be swallowed by the old
// message.
// must be called with `stateLock`
func (self *ConversationSync) retirePending() {
	if len(self.pending) == 0 {
		return
	}
	remaining := []*ConversationMessage{}
	for _, pendingMessage := range self.pending {
		retired := false
		if self.delivered[pendingMessage.Id] {
			for _, confirmedMessage := range self.confirmed {
				if confirmedMessage.IsSent && confirmedMessage.Content == pendingMessage.Content {
					retired = true
					break
				}
			}
		}
		if retired {
			delete(self.delivered, pendingMessage.Id)
		} else {
			remaining = append(remaining, pendingMessage)
		}
	}
	self.pending = remaining
}

// appends an optimistic message immediately, then issues the send.
// blank or whitespace-only input is a no-op. a failed send is logged and the
// pending entry is left in place until a later poll confirms or the view
// closes.
func (self *ConversationSync) Send(content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return
	}

	pendingMessage := &ConversationMessage{
		Id:               ulid.Make().String(),
		Content:          trimmed,
		FromUserId:       self.userId,
		ToConversationId: self.conversationId,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		IsSent:           true,
		Pending:          true,
	}

	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()
		self.pending = append([]*ConversationMessage{pendingMessage}, self.pending...)
	}()
	self.event()

	self.api.SendMessage(
		&SendMessageArgs{
			Content:          trimmed,
			FromUserId:       self.userId,
			ToConversationId: self.conversationId,
		},
		NewApiCallback[*SendMessageResult](func(result *SendMessageResult, err error) {
			if err != nil {
				glog.Infof("[conv][%d]send failed = %s\n", self.conversationId, err)
				return
			}
			self.stateLock.Lock()
			self.delivered[pendingMessage.Id] = true
			self.stateLock.Unlock()
		}),
	)
}

// pending first, then confirmed, both newest first
func (self *ConversationSync) Messages() []*ConversationMessage {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	messages := make([]*ConversationMessage, 0, len(self.pending)+len(self.confirmed))
	messages = append(messages, self.pending...)
	messages = append(messages, self.confirmed...)
	return messages
}

func (self *ConversationSync) event() {
	callbacks := self.messageCallbacks.Get()
	if len(callbacks) == 0 {
		return
	}

	messages := self.Messages()
	for _, callback := range callbacks {
		callback(messages)
	}
}

// stops the poll loop. no further fetches fire after close; an in-flight
// response is discarded with the store.
func (self *ConversationSync) Close() {
	self.cancel()
}
