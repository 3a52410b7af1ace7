package config

import (
	"testing"

	"github.com/mosaicnetworks/matchmaker/src/ice"
	"github.com/mosaicnetworks/matchmaker/src/transport"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	c := NewDefaultConfig()

	assert.Equal(t, "ws://127.0.0.1:33333", c.SignalAddr)
	assert.Equal(t, []string{"main"}, c.Channels)
	assert.Equal(t, DefaultTimeout, c.Timeout)
	assert.NoError(t, c.Validate())

	servers := c.WebRTCICEServers()
	if len(servers) != 5 {
		t.Fatalf("expected the 5 default STUN servers, got %d", len(servers))
	}
	for _, s := range servers {
		if s.Username != "" || s.Credential != nil {
			t.Fatalf("default STUN servers carry no credentials")
		}
	}
}

func TestICEServerCredentials(t *testing.T) {
	c := NewTestConfig(t, logrus.DebugLevel)
	c.AddICEServer("turn:turn.example.com:3478", "user", "secret")
	c.AddICEServer("stun.example.com:3478", "user", "")
	c.AddICEServer("", "ignored", "ignored")

	servers := c.WebRTCICEServers()
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	turn := servers[0]
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, turn.URLs)
	assert.Equal(t, "user", turn.Username)
	assert.Equal(t, "secret", turn.Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, turn.CredentialType)

	// credentials are dropped unless both are present
	stun := servers[1]
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, stun.URLs)
	assert.Equal(t, "", stun.Username)
	assert.Nil(t, stun.Credential)
}

func TestParsedOptions(t *testing.T) {
	c := NewDefaultConfig()
	c.CandidateFilter = "relay"
	c.ReadyPolicy = "any"

	f, err := c.Filter()
	assert.NoError(t, err)
	assert.Equal(t, ice.RelayOnly, f)

	r, err := c.Ready()
	assert.NoError(t, err)
	assert.Equal(t, transport.ReadyAny, r)

	c.CandidateFilter = "carrier-pigeon"
	assert.Error(t, c.Validate())

	c = NewDefaultConfig()
	c.Timeout = 0
	assert.Error(t, c.Validate())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("chatty"))

	c := NewDefaultConfig()
	c.LogLevel = "warn"
	assert.Equal(t, logrus.WarnLevel, c.BaseLogger().Level)
	assert.Equal(t, "matchmaker", c.Logger().Data["prefix"])
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"http relay", func(c *Config) { c.SignalAddr = "http://127.0.0.1:33333" }},
		{"relay without host", func(c *Config) { c.SignalAddr = "ws://" }},
		{"empty slot", func(c *Config) { c.Slot = "" }},
		{"no channel", func(c *Config) { c.Channels = nil }},
		{"duplicate channel", func(c *Config) { c.Channels = []string{"main", "main"} }},
		{"empty channel label", func(c *Config) { c.Channels = []string{"main", ""} }},
		{"ice server without url", func(c *Config) { c.ICEServers = []ICEServer{{Username: "u"}} }},
		{"ready policy", func(c *Config) { c.ReadyPolicy = "most" }},
	}

	for _, tc := range cases {
		c := NewDefaultConfig()
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}

	c := NewDefaultConfig()
	c.SignalAddr = "wss://relay.example.com/match"
	c.Channels = []string{"main", "chat", "state"}
	c.ReadyPolicy = "any"
	assert.NoError(t, c.Validate())
}
