// Package config defines the configuration of a matchmaking node.
//
// Whether the node is started from Go code or with the matchmaker command,
// its options are carried by the Config object defined in this package. The
// command additionally reads an optional configuration file from
// Config.DataDir:
//
//  matchmaker.toml // (or .yaml, .json) any option of the run command
//
// ICE servers can only be given as a list in the configuration file:
//
//  [[ice-servers]]
//  url = "turn:turn.example.com:3478"
//  username = "user"
//  credential = "secret"
package config
