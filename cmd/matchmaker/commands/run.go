package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/matchmaker/src/config"
	"github.com/mosaicnetworks/matchmaker/src/metrics"
	"github.com/mosaicnetworks/matchmaker/src/node"
	"github.com/mosaicnetworks/matchmaker/src/service"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that joins a matchmaking slot
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Join a slot and chat with the peers it is matched with",
		PreRunE: loadConfig,
		RunE:    runMatchmaker,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMatchmaker(cmd *cobra.Command, args []string) error {
	logger := _config.Node.Logger()

	channel, err := channelIndex(_config.Node.Channels, _config.ChatChannel)
	if err != nil {
		return err
	}

	var prom *metrics.PrometheusCollector
	if _config.Node.MetricsAddr != "" {
		prom = metrics.NewPrometheusCollector()
	}

	app := newChat(os.Stdout, channel)

	n, err := node.NewWebRTCNode(&_config.Node, collectorOrNil(prom), app)
	if err != nil {
		logger.Error("Cannot initialize node:", err)
		return err
	}

	if prom != nil {
		serviceServer := service.NewService(_config.Node.MetricsAddr,
			n,
			prom.Handler(),
			logger.WithField("prefix", "service"))
		go serviceServer.Serve()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.Run(ctx)

	if err := n.Start(ctx); err != nil {
		logger.Error("Cannot reach the relay:", err)
		n.Shutdown()
		return err
	}

	go app.readInput(n, os.Stdin)
	go app.poll(n)

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Debug("Reacting to SIGINT")
	case err = <-app.done:
	}

	n.Shutdown()

	return err
}

// collectorOrNil avoids wrapping a nil *PrometheusCollector in a non-nil
// interface.
func collectorOrNil(prom *metrics.PrometheusCollector) metrics.Collector {
	if prom == nil {
		return nil
	}
	return prom
}

func channelIndex(labels []string, label string) (int, error) {
	for i, l := range labels {
		if l == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("chat-channel %q is not one of %v", label, labels)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Node.DataDir, "Top-level directory for configuration")
	cmd.Flags().String("log", _config.Node.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Node.LogFile, "Copy log output to this file")

	// Relay
	cmd.Flags().String("signal-addr", _config.Node.SignalAddr, "URL of the matchmaking relay")
	cmd.Flags().Duration("dial-timeout", _config.Node.DialTimeout, "Relay handshake timeout")
	cmd.Flags().String("slot", _config.Node.Slot, "Name of the matchmaking queue to join")

	// WebRTC
	cmd.Flags().String("ice-addr", _config.ICEAddr, "URL of an additional STUN or TURN server")
	cmd.Flags().String("ice-username", _config.ICEUsername, "Username for the ICE server")
	cmd.Flags().String("ice-password", _config.ICEPassword, "Password for the ICE server")
	cmd.Flags().String("candidate-filter", _config.Node.CandidateFilter, "Accepted remote candidates: all, host, srflx, prflx, relay, host+srflx, host+prflx, host+relay, reflexive, host+reflexive")
	cmd.Flags().StringSlice("channels", _config.Node.Channels, "Ordered data channel labels, the first is the main channel")

	// Session
	cmd.Flags().DurationP("timeout", "t", _config.Node.Timeout, "Time allowed between roster and connection")
	cmd.Flags().String("ready-policy", _config.Node.ReadyPolicy, "all: wait for every peer, any: first peer is enough")
	cmd.Flags().String("chat-channel", _config.ChatChannel, "Label of the channel used for stdin lines")

	// Metrics
	cmd.Flags().String("metrics-listen", _config.Node.MetricsAddr, "Listen IP:Port for the HTTP service: /metrics, /stats and /peers")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Node.AddICEServer(_config.ICEAddr, _config.ICEUsername, _config.ICEPassword)

	// the config file may have changed the level after the logger was built
	_config.Node.BaseLogger().Level = config.LogLevel(_config.Node.LogLevel)

	if _config.Node.LogFile != "" {
		addLogFile(_config.Node.BaseLogger(), _config.Node.LogFile)
	}

	_config.Node.Logger().WithFields(logrus.Fields{
		"DataDir":         _config.Node.DataDir,
		"LogLevel":        _config.Node.LogLevel,
		"LogFile":         _config.Node.LogFile,
		"SignalAddr":      _config.Node.SignalAddr,
		"Slot":            _config.Node.Slot,
		"ICEServers":      len(_config.Node.ICEServers),
		"CandidateFilter": _config.Node.CandidateFilter,
		"Channels":        _config.Node.Channels,
		"Timeout":         _config.Node.Timeout,
		"ReadyPolicy":     _config.Node.ReadyPolicy,
		"MetricsAddr":     _config.Node.MetricsAddr,
		"ChatChannel":     _config.ChatChannel,
	}).Debug("RUN")

	return _config.Node.Validate()
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/matchmaker.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigName) // name of config file (without extension)
	viper.AddConfigPath(_config.Node.DataDir)     // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Node.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Node.Logger().Debugf("No config file found in: %s", _config.Node.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addLogFile copies every log level to path.
func addLogFile(logger *logrus.Logger, path string) {
	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		pathMap[level] = path
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
