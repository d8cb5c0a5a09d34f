package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"commonhood.com/hood"
)

const HoodCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Community client control.

Config is read from ~/.hoodctl/config.yaml (api_url, state_dir, poll_interval)
unless --config is given. The session id is cached under the state dir.

Usage:
    hoodctl login [--config=<config>] [--api_url=<api_url>]
        --username=<username>
        [--password=<password>]
    hoodctl register [--config=<config>] [--api_url=<api_url>]
        --name=<name>
        --email=<email>
        [--password=<password>]
    hoodctl logout [--config=<config>]
    hoodctl whoami [--config=<config>] [--api_url=<api_url>]
    hoodctl set-location [--config=<config>] [--api_url=<api_url>]
        --city=<city> --region=<region> --country=<country>
        --latitude=<latitude> --longitude=<longitude>
    hoodctl event-pins [--config=<config>] [--api_url=<api_url>]
    hoodctl house-pins [--config=<config>] [--api_url=<api_url>]
    hoodctl events [--config=<config>] [--api_url=<api_url>]
    hoodctl create-event [--config=<config>] [--api_url=<api_url>]
        --name=<name> --date=<date> --description=<description>
        --city=<city> --region=<region> --country=<country>
        --latitude=<latitude> --longitude=<longitude>
    hoodctl create-community [--config=<config>] [--api_url=<api_url>]
        --name=<name> --description=<description>
        --city=<city> --region=<region> --country=<country>
        --latitude=<latitude> --longitude=<longitude>
    hoodctl join-event [--config=<config>] [--api_url=<api_url>] <event_id>
    hoodctl conversations [--config=<config>] [--api_url=<api_url>]
    hoodctl new-conversation [--config=<config>] [--api_url=<api_url>]
        --name=<name> --to=<user_ids> <message>
    hoodctl chat [--config=<config>] [--api_url=<api_url>] <conversation_id>
    hoodctl send [--config=<config>] [--api_url=<api_url>] <conversation_id> <message>

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --config=<config>          Config file path.
    --api_url=<api_url>        Override the configured API url.
    --username=<username>
    --password=<password>      Prompted when omitted.
    --name=<name>
    --email=<email>
    --date=<date>              Event date, RFC 3339.
    --description=<description>
    --city=<city>
    --region=<region>
    --country=<country>
    --latitude=<latitude>
    --longitude=<longitude>
    --to=<user_ids>            Comma-separated user ids.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], HoodCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if register_, _ := opts.Bool("register"); register_ {
		register(opts)
	} else if logout_, _ := opts.Bool("logout"); logout_ {
		logout(opts)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		whoami(opts)
	} else if setLocation_, _ := opts.Bool("set-location"); setLocation_ {
		setLocation(opts)
	} else if eventPins_, _ := opts.Bool("event-pins"); eventPins_ {
		eventPins(opts)
	} else if housePins_, _ := opts.Bool("house-pins"); housePins_ {
		housePins(opts)
	} else if events_, _ := opts.Bool("events"); events_ {
		events(opts)
	} else if createEvent_, _ := opts.Bool("create-event"); createEvent_ {
		createEvent(opts)
	} else if createCommunity_, _ := opts.Bool("create-community"); createCommunity_ {
		createCommunity(opts)
	} else if joinEvent_, _ := opts.Bool("join-event"); joinEvent_ {
		joinEvent(opts)
	} else if conversations_, _ := opts.Bool("conversations"); conversations_ {
		conversations(opts)
	} else if newConversation_, _ := opts.Bool("new-conversation"); newConversation_ {
		newConversation(opts)
	} else if chat_, _ := opts.Bool("chat"); chat_ {
		chat(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	}
}

type client struct {
	config       *Config
	api          *hood.CommunityApi
	storage      hood.Storage
	sessionStore *hood.SessionStore
}

func newClient(opts docopt.Opts) *client {
	configPath, _ := opts.String("--config")
	config, err := loadConfig(configPath)
	if err != nil {
		Err.Fatalf("Could not load config (%s).\n", err)
	}
	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		config.ApiUrl = apiUrl
	}

	api := hood.NewCommunityApi(config.ApiUrl)
	storage := hood.NewFileStorage(config.StateDir)
	sessionStore := hood.NewSessionStore(context.Background(), api, storage)
	sessionStore.Bootstrap()

	return &client{
		config:       config,
		api:          api,
		storage:      storage,
		sessionStore: sessionStore,
	}
}

func (self *client) requireUserId() int64 {
	if !self.sessionStore.State().IsAuthenticated() {
		Err.Fatalf("Not signed in. Run `hoodctl login` first.\n")
	}
	return self.sessionStore.UserId()
}

func readPassword(opts docopt.Opts) string {
	if password, err := opts.String("--password"); err == nil && password != "" {
		return password
	}
	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Err.Fatalf("Could not read password (%s).\n", err)
	}
	return string(passwordBytes)
}

func intArg(opts docopt.Opts, name string) int64 {
	value, _ := opts.String(name)
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		Err.Fatalf("Invalid %s (%s).\n", name, err)
	}
	return parsed
}

func floatOpt(opts docopt.Opts, name string) *float64 {
	value, _ := opts.String(name)
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		Err.Fatalf("Invalid %s (%s).\n", name, err)
	}
	return &parsed
}

func strOpt(opts docopt.Opts, name string) *string {
	value, _ := opts.String(name)
	return &value
}

func login(opts docopt.Opts) {
	c := newClient(opts)
	username, _ := opts.String("--username")
	password := readPassword(opts)

	userId, err := c.sessionStore.SignIn(username, password)
	if err != nil {
		Err.Fatalf("%s\n", err)
	}
	Out.Printf("Signed in as user %d.", userId)
}

func register(opts docopt.Opts) {
	c := newClient(opts)
	name, _ := opts.String("--name")
	email, _ := opts.String("--email")
	password := readPassword(opts)

	userId, err := c.sessionStore.SignUp(name, email, password)
	if err != nil {
		Err.Fatalf("%s\n", err)
	}
	Out.Printf("Registered as user %d.", userId)
}

func logout(opts docopt.Opts) {
	c := newClient(opts)
	if err := c.sessionStore.SignOut(); err != nil {
		Err.Fatalf("%s\n", err)
	}
	Out.Printf("Signed out.")
}

func whoami(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	info, err := c.api.GetUserInfoSync(userId)
	if err != nil {
		Err.Fatalf("Could not fetch profile (%s).\n", err)
	}

	Out.Printf("%s %s <%s> (user %d)", info.FirstName, info.LastName, info.Email, info.UserId)
	if info.City != nil {
		Out.Printf("%s, %s, %s", *info.City, *info.Region, *info.Country)
	}
	if info.Latitude != nil && info.Longitude != nil {
		Out.Printf("%f, %f", *info.Latitude, *info.Longitude)
	}
}

func setLocation(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	delta := hood.DefaultViewportDelta
	_, err := c.api.SetUserLocationSync(&hood.SetUserLocationArgs{
		UserId:         userId,
		City:           strOpt(opts, "--city"),
		Region:         strOpt(opts, "--region"),
		Country:        strOpt(opts, "--country"),
		Latitude:       floatOpt(opts, "--latitude"),
		Longitude:      floatOpt(opts, "--longitude"),
		LatitudeDelta:  &delta,
		LongitudeDelta: &delta,
	})
	if err != nil {
		Err.Fatalf("Could not set location (%s).\n", err)
	}
	Out.Printf("Location updated.")
}

func eventPins(opts docopt.Opts) {
	c := newClient(opts)

	pins, err := c.api.GetEventPinsSync()
	if err != nil {
		Err.Fatalf("Could not fetch event pins (%s).\n", err)
	}
	for _, pin := range pins {
		if pin.Latitude != nil && pin.Longitude != nil {
			Out.Printf("%s (%f, %f)", pin.EventName, *pin.Latitude, *pin.Longitude)
		} else {
			Out.Printf("%s", pin.EventName)
		}
	}
}

func housePins(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	pins, err := c.api.GetHousePinsSync(userId)
	if err != nil {
		Err.Fatalf("Could not fetch house pins (%s).\n", err)
	}
	for _, pin := range pins {
		if pin.Latitude != nil && pin.Longitude != nil {
			Out.Printf("%s %s (%f, %f)", pin.FirstName, pin.LastName, *pin.Latitude, *pin.Longitude)
		} else {
			Out.Printf("%s %s", pin.FirstName, pin.LastName)
		}
	}
}

func events(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	availableEvents, err := c.api.GetAvailableEventsSync(userId)
	if err != nil {
		Err.Fatalf("Could not fetch events (%s).\n", err)
	}
	for _, event := range availableEvents {
		Out.Printf("[%d] %s (%s) by %s %s: %s", event.EventId, event.Name, event.Date, event.OwnerFirstName, event.OwnerLastName, event.Description)
	}
}

func createEvent(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	name, _ := opts.String("--name")
	date, _ := opts.String("--date")
	description, _ := opts.String("--description")

	delta := hood.DefaultViewportDelta
	_, err := c.api.CreateEventSync(&hood.CreateEventArgs{
		EventName:      name,
		Date:           date,
		Description:    description,
		OwnerId:        userId,
		City:           strOpt(opts, "--city"),
		Region:         strOpt(opts, "--region"),
		Country:        strOpt(opts, "--country"),
		Latitude:       floatOpt(opts, "--latitude"),
		Longitude:      floatOpt(opts, "--longitude"),
		LatitudeDelta:  &delta,
		LongitudeDelta: &delta,
	})
	if err != nil {
		Err.Fatalf("Could not create event (%s).\n", err)
	}
	Out.Printf("Event created.")
}

func createCommunity(opts docopt.Opts) {
	c := newClient(opts)
	c.requireUserId()

	name, _ := opts.String("--name")
	description, _ := opts.String("--description")

	_, err := c.api.CreateCommunitySync(&hood.CreateCommunityArgs{
		Name:        name,
		Description: description,
		City:        strOpt(opts, "--city"),
		Region:      strOpt(opts, "--region"),
		Country:     strOpt(opts, "--country"),
		Latitude:    floatOpt(opts, "--latitude"),
		Longitude:   floatOpt(opts, "--longitude"),
	})
	if err != nil {
		Err.Fatalf("Could not create community (%s).\n", err)
	}
	Out.Printf("Community created.")
}

func joinEvent(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()
	eventId := intArg(opts, "<event_id>")

	result, err := c.api.JoinEventSync(&hood.JoinEventArgs{
		UserId:  userId,
		EventId: eventId,
	})
	if err != nil {
		Err.Fatalf("Could not join event (%s).\n", err)
	}
	if result.Message != "" {
		Out.Printf("%s", result.Message)
	} else {
		Out.Printf("Joined event %d.", eventId)
	}
}

func conversations(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	records, err := c.api.LoadConversationsSync(userId)
	if err != nil {
		Err.Fatalf("Could not load conversations (%s).\n", err)
	}
	for _, record := range records {
		Out.Printf("[%d] %s: %s", record.ConversationId, record.Name, record.Preview)
	}
}

func newConversation(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()

	name, _ := opts.String("--name")
	to, _ := opts.String("--to")
	message, _ := opts.String("<message>")

	toUserIds := []int64{}
	for _, part := range strings.Split(to, ",") {
		toUserId, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			Err.Fatalf("Invalid --to (%s).\n", err)
		}
		toUserIds = append(toUserIds, toUserId)
	}

	_, err := c.api.CreateConversationSync(&hood.CreateConversationArgs{
		ConversationName: name,
		FromUserId:       userId,
		ToUserIds:        toUserIds,
		Content:          message,
	})
	if err != nil {
		Err.Fatalf("Could not create conversation (%s).\n", err)
	}
	Out.Printf("Conversation created.")
}

// tail a conversation, sending lines read from stdin
func chat(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()
	conversationId := intArg(opts, "<conversation_id>")

	settings := hood.DefaultConversationSyncSettings()
	settings.PollInterval = c.config.PollInterval

	conversationSync := hood.NewConversationSync(
		context.Background(),
		c.api,
		conversationId,
		userId,
		settings,
	)
	defer conversationSync.Close()

	var printedMutex sync.Mutex
	printed := map[string]bool{}
	removeMessagesCallback := conversationSync.AddMessagesCallback(func(messages []*hood.ConversationMessage) {
		printedMutex.Lock()
		defer printedMutex.Unlock()
		// oldest first so the tail reads top to bottom
		for i := len(messages) - 1; 0 <= i; i -= 1 {
			message := messages[i]
			if message.Pending || printed[message.Id] {
				continue
			}
			printed[message.Id] = true
			direction := "<-"
			if message.IsSent {
				direction = "->"
			}
			Out.Printf("%s %s %d: %s", message.Timestamp, direction, message.FromUserId, message.Content)
		}
	})
	defer removeMessagesCallback()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		conversationSync.Send(scanner.Text())
	}
}

func send(opts docopt.Opts) {
	c := newClient(opts)
	userId := c.requireUserId()
	conversationId := intArg(opts, "<conversation_id>")
	message, _ := opts.String("<message>")

	if strings.TrimSpace(message) == "" {
		Err.Fatalf("Refusing to send a blank message.\n")
	}

	_, err := c.api.SendMessageSync(&hood.SendMessageArgs{
		Content:          strings.TrimSpace(message),
		FromUserId:       userId,
		ToConversationId: conversationId,
	})
	if err != nil {
		Err.Fatalf("Could not send message (%s).\n", err)
	}
	Out.Printf("Sent.")
}
