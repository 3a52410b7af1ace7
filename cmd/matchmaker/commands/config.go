package commands

import (
	"github.com/mosaicnetworks/matchmaker/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Node config.Config `mapstructure:",squash"`

	// ICE server shortcuts; a non-empty ICEAddr appends one server to
	// Node.ICEServers.
	ICEAddr     string `mapstructure:"ice-addr"`
	ICEUsername string `mapstructure:"ice-username"`
	ICEPassword string `mapstructure:"ice-password"`

	// ChatChannel is the label of the channel stdin lines are sent on.
	ChatChannel string `mapstructure:"chat-channel"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Node:        *config.NewDefaultConfig(),
		ChatChannel: config.DefaultMainChannel,
	}
}
