package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/matchmaker/src/common"
	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/transport"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// DefaultConfigName is the base name of the optional configuration file in
// the data directory, without extension.
const DefaultConfigName = "matchmaker"

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultSignalAddr      = "ws://127.0.0.1:33333"
	DefaultSlot            = "default"
	DefaultCandidateFilter = "all"
	DefaultMainChannel     = "main"
	DefaultTimeout         = 30 * time.Second
	DefaultDialTimeout     = 10 * time.Second
	DefaultReadyPolicy     = "all"
	DefaultMetricsAddr     = ""
)

// DefaultSTUNServers are the public Google STUN servers used when no ICE
// server is configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// ICEServer is a STUN or TURN server. Username and Credential are only used
// when both are set.
type ICEServer struct {
	URL        string `mapstructure:"url" validate:"required"`
	Username   string `mapstructure:"username"`
	Credential string `mapstructure:"credential"`
}

// Config contains all the configuration properties of a matchmaking node.
type Config struct {
	// DataDir is the directory where the optional matchmaker.toml (or .yaml,
	// .json) configuration file is looked for.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry.
	LogFile string `mapstructure:"log-file"`

	// SignalAddr is the URL of the matchmaking relay, ws:// or wss://.
	SignalAddr string `mapstructure:"signal-addr" validate:"required,wsurl"`

	// Slot is the name of the matchmaking queue to join. Participants asking
	// for the same slot end up in the same session.
	Slot string `mapstructure:"slot" validate:"required"`

	// ICEServers is the list of STUN and TURN servers.
	ICEServers []ICEServer `mapstructure:"ice-servers" validate:"dive"`

	// CandidateFilter names the ICE candidate types accepted from remote
	// peers: all, host, srflx, prflx, relay, host+srflx, host+prflx,
	// host+relay, reflexive or host+reflexive.
	CandidateFilter string `mapstructure:"candidate-filter" validate:"icepolicy"`

	// Channels is the ordered list of data channel labels. The first one is
	// the main channel. Every participant must use the same list.
	Channels []string `mapstructure:"channels" validate:"min=1,unique,dive,required"`

	// Timeout bounds the time between receiving the roster and the transport
	// becoming Connected.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// DialTimeout bounds the websocket handshake with the relay.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// ReadyPolicy is "all" to wait for every expected peer before reporting
	// Connected, or "any" to report it as soon as one peer is ready.
	ReadyPolicy string `mapstructure:"ready-policy" validate:"readypolicy"`

	// MetricsAddr is the address:port of the Prometheus endpoint. Empty
	// disables metrics.
	MetricsAddr string `mapstructure:"metrics-listen"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		SignalAddr:      DefaultSignalAddr,
		Slot:            DefaultSlot,
		CandidateFilter: DefaultCandidateFilter,
		Channels:        []string{DefaultMainChannel},
		Timeout:         DefaultTimeout,
		DialTimeout:     DefaultDialTimeout,
		ReadyPolicy:     DefaultReadyPolicy,
		MetricsAddr:     DefaultMetricsAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// AddICEServer appends a server to the list. It is used by the ice-addr,
// ice-username and ice-password command line shortcuts.
func (c *Config) AddICEServer(url, username, credential string) {
	if url == "" {
		return
	}
	c.ICEServers = append(c.ICEServers, ICEServer{
		URL:        url,
		Username:   username,
		Credential: credential,
	})
}

// WebRTCICEServers converts the configured servers for the WebRTC engine,
// falling back to DefaultSTUNServers when none is configured.
func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	if len(c.ICEServers) == 0 {
		return DefaultICEServers()
	}

	res := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		server := webrtc.ICEServer{URLs: []string{normalizeICEURL(s.URL)}}
		if s.Username != "" && s.Credential != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		res = append(res, server)
	}
	return res
}

// Filter parses CandidateFilter.
func (c *Config) Filter() (ice.Policy, error) {
	return ice.ParsePolicy(c.CandidateFilter)
}

// Ready parses ReadyPolicy.
func (c *Config) Ready() (transport.ReadyPolicy, error) {
	return transport.ParseReadyPolicy(c.ReadyPolicy)
}

// Logger returns a formatted logrus Entry, with prefix set to "matchmaker".
func (c *Config) Logger() *logrus.Entry {
	return c.BaseLogger().WithField("prefix", "matchmaker")
}

// BaseLogger returns the logrus Logger behind Logger, so that hooks can be
// attached to it.
func (c *Config) BaseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger
}

// DefaultDataDir return the default directory name for the matchmaker config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".MatchMaker")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "MatchMaker")
		} else {
			return filepath.Join(home, ".matchmaker")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}

// DefaultICEServers returns one ICE server per public Google STUN server.
func DefaultICEServers() []webrtc.ICEServer {
	res := make([]webrtc.ICEServer, 0, len(DefaultSTUNServers))
	for _, u := range DefaultSTUNServers {
		res = append(res, webrtc.ICEServer{URLs: []string{u}})
	}
	return res
}

// normalizeICEURL adds the stun: scheme to bare host:port addresses.
func normalizeICEURL(u string) string {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(u, scheme) {
			return u
		}
	}
	return "stun:" + u
}
