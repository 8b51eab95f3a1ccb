// Package config loads the daemon's configuration file and CLI overrides
// into a single Config value consumed at startup (§6).
package config
