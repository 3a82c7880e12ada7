package relay

import (
	"time"

	"github.com/nyaruka/ezconf"
	validator "gopkg.in/go-playground/validator.v9"
)

// Config is our top level configuration object
type Config struct {
	Address   string `help:"the network interface address the relay will bind to"`
	Port      int    `help:"the port the relay will listen on"`
	SentryDSN string `help:"the DSN used for logging errors to Sentry"`
	LogLevel  string `help:"the logging level the relay should use" validate:"oneof=debug info warn error"`
	Version   string `help:"the version that will be used in request and response headers"`

	StatusUsername string `help:"the username that is needed to authenticate against the /status endpoint"`
	StatusPassword string `help:"the password that is needed to authenticate against the /status endpoint"`

	ThreadStore string `help:"the thread store type to use (sqlite, postgres or redis)" validate:"oneof=sqlite postgres redis"`
	DB          string `help:"the database to store threads in, a file path for sqlite or a URL for postgres"`
	Redis       string `help:"URL describing how to connect to Redis, used for locks and dedupe if set" validate:"omitempty,url,startswith=redis:"`

	WhatsappGraphURL      string `help:"the base URL of the WhatsApp Cloud API" validate:"url"`
	WhatsappAPIVersion    string `help:"the version of the WhatsApp Cloud API to use"`
	WhatsappAccessToken   string `help:"the access token used to call the WhatsApp Cloud API"`
	WhatsappPhoneNumberID string `help:"the id of the phone number we send from"`
	WhatsappAppSecret     string `help:"the app secret used to validate webhook signatures, validation is skipped if empty"`
	WhatsappVerifyToken   string `help:"the token Meta sends when verifying our webhook URL"`

	OpenAIBaseURL         string `help:"the base URL of the OpenAI API" validate:"url"`
	OpenAIAPIKey          string `help:"the API key used to call OpenAI"`
	OpenAIAssistantID     string `help:"the id of the assistant which will reply to messages"`
	OpenAITranscribeModel string `help:"the model used to transcribe voice messages"`
	PersonalizeRuns       bool   `help:"whether runs are told the name of the contact they are talking to"`

	FFmpegPath    string `help:"the path of the ffmpeg binary used to convert audio"`
	ScratchDir    string `help:"the local directory where media is downloaded and converted (needs to be writable)"`
	MaxMediaBytes int    `help:"the maximum size of media we will download" validate:"min=1"`

	PollIntervalMS      int `help:"the interval between checks on an assistant run in milliseconds" validate:"min=1"`
	RunTimeoutSeconds   int `help:"the maximum time we wait for an assistant run to finish" validate:"min=1"`
	SendTimeoutSeconds  int `help:"the maximum time we wait for WhatsApp to accept a reply" validate:"min=1"`
	RequestTimeoutSecs  int `help:"the maximum time we spend handling a single inbound message" validate:"min=1"`
	LockTimeoutSeconds  int `help:"the maximum time we wait for a distributed contact lock" validate:"min=1"`
	MaxConcurrentEvents int `help:"the maximum number of inbound messages handled at once" validate:"min=1"`
}

// NewConfig returns a new default configuration object
func NewConfig() *Config {
	return &Config{
		Address:  "",
		Port:     8000,
		LogLevel: "info",
		Version:  "Dev",

		ThreadStore: "sqlite",
		DB:          "threads.db",
		Redis:       "",

		WhatsappGraphURL:      "https://graph.facebook.com/",
		WhatsappAPIVersion:    "v18.0",
		WhatsappAccessToken:   "missing_whatsapp_access_token",
		WhatsappPhoneNumberID: "",
		WhatsappAppSecret:     "",
		WhatsappVerifyToken:   "missing_whatsapp_verify_token",

		OpenAIBaseURL:         "https://api.openai.com/v1/",
		OpenAIAPIKey:          "missing_openai_api_key",
		OpenAIAssistantID:     "",
		OpenAITranscribeModel: "whisper-1",
		PersonalizeRuns:       false,

		FFmpegPath:    "ffmpeg",
		ScratchDir:    "/tmp/relay",
		MaxMediaBytes: 16 * 1024 * 1024,

		PollIntervalMS:      1000,
		RunTimeoutSeconds:   120,
		SendTimeoutSeconds:  10,
		RequestTimeoutSecs:  180,
		LockTimeoutSeconds:  30,
		MaxConcurrentEvents: 32,
	}
}

// LoadConfig loads our configuration from the passed in filename
func LoadConfig(filename string) *Config {
	config := NewConfig()
	loader := ezconf.NewLoader(
		config,
		"relay", "Relay - connects WhatsApp conversations to a hosted assistant",
		[]string{filename},
	)

	loader.MustLoad()
	return config
}

var validate = validator.New()

// Validate validates the config
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// PollInterval is the interval between checks on an assistant run
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RunTimeout is the maximum time we wait for an assistant run
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// SendTimeout is the maximum time we wait for a reply to be accepted
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// RequestTimeout is the maximum time we spend on a single inbound message
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// LockTimeout is the maximum time we wait for a distributed contact lock
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}
