// Package runtimeconfig holds the ambient runtime knobs for the children
// subsystem: a log level and a default group redundancy. The children
// package does not read them; a caller that wants them applied passes them
// on itself (for example to WithRedundancy). It is loaded the way
// dpup/prefab loads its server configuration -- a koanf instance seeded
// with confmap defaults, then overlaid with environment variables -- just
// scoped to the handful of settings a library (rather than a server) needs.
package runtimeconfig

import (
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix environment variables must carry to be picked up
// by Load, e.g. CHILDREN__LOG_LEVEL=debug.
const EnvPrefix = "CHILDREN__"

const (
	keyLogLevel          = "log.level"
	keyDefaultRedundancy = "children.redundancy"
)

// Settings are the ambient knobs resolved by Load.
type Settings struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
	// DefaultRedundancy is a redundancy value for new Children groups. New
	// does not consult it: a group starts at 1 until WithRedundancy is
	// called. Load raises values below 1 to 1.
	DefaultRedundancy int
}

// Load reads defaults and then any CHILDREN__-prefixed environment
// variables, returning the resolved Settings.
func Load() Settings {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		keyLogLevel:          "info",
		keyDefaultRedundancy: 1,
	}, "."), nil); err != nil {
		panic("runtimeconfig: failed to load defaults: " + err.Error())
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", transformEnv), nil); err != nil {
		panic("runtimeconfig: failed to load environment: " + err.Error())
	}

	redundancy := k.Int(keyDefaultRedundancy)
	if redundancy < 1 {
		redundancy = 1
	}

	return Settings{
		LogLevel:          k.String(keyLogLevel),
		DefaultRedundancy: redundancy,
	}
}

func transformEnv(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}
