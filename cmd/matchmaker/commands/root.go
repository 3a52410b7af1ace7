package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for the matchmaker
var RootCmd = &cobra.Command{
	Use:              "matchmaker",
	Short:            "WebRTC peer-to-peer sessions through a matchmaking relay",
	TraverseChildren: true,
}
