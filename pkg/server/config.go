package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/NicolasHaas/mandichat/pkg/logging"
	"github.com/NicolasHaas/mandichat/pkg/model"
)

// EnvPrefix prefixes every environment variable read by LoadConfig,
// e.g. MANDI_LISTENADDR or MANDI_WEBSOCKET_SENDBUFFER.
const EnvPrefix = "MANDI"

// DefaultConfigName is the config file looked up in the working directory
// when no explicit path is given.
const DefaultConfigName = "mandichat"

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"listen":            "listenAddr",
	"metrics":           "metricsAddr",
	"origins":           "allowedOrigins",
	"lexicon-db":        "lexiconDB",
	"lexicon-file":      "lexiconFile",
	"default-language":  "defaultLanguage",
	"typing-timeout":    "typingTimeout",
	"translate-timeout": "translateTimeout",
	"log-level":         "logLevel",
	"log-format":        "logFormat",
}

// LoadConfig reads configuration from, in increasing precedence: defaults,
// a YAML config file, MANDI_* environment variables and flags.
// An empty configFile looks for mandichat.yaml in the working directory and
// tolerates its absence; an explicit path must exist.
func LoadConfig(logger *slog.Logger, configFile string, flags *pflag.FlagSet) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names used by existing deployments.
	if err := v.BindEnv("frontendURL", EnvPrefix+"_FRONTENDURL", "FRONTEND_URL"); err != nil {
		return Config{}, fmt.Errorf("server: bind env: %w", err)
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return Config{}, fmt.Errorf("server: bind env: %w", err)
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("server: bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("server: read config: %w", err)
		}
		logger.Debug("config file not found, using defaults and environment")
	} else {
		logger.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("server: decode config: %w", err)
	}
	if port := strings.TrimSpace(v.GetString("port")); port != "" && cfg.ListenAddr == DefaultConfig().ListenAddr {
		cfg.ListenAddr = ":" + port
	}
	cfg.DefaultLanguage = model.NormalizeLanguage(cfg.DefaultLanguage)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listenAddr", d.ListenAddr)
	v.SetDefault("metricsAddr", d.MetricsAddr)
	v.SetDefault("allowedOrigins", d.AllowedOrigins)
	v.SetDefault("frontendURL", d.FrontendURL)
	v.SetDefault("lexiconDB", d.LexiconDB)
	v.SetDefault("lexiconFile", d.LexiconFile)
	v.SetDefault("defaultLanguage", d.DefaultLanguage)
	v.SetDefault("typingTimeout", d.TypingTimeout)
	v.SetDefault("translateTimeout", d.TranslateTimeout)
	v.SetDefault("websocket.sendBuffer", d.WebSocket.SendBuffer)
	v.SetDefault("websocket.readLimit", d.WebSocket.ReadLimit)
	v.SetDefault("websocket.pongWait", d.WebSocket.PongWait)
	v.SetDefault("websocket.pingPeriod", d.WebSocket.PingPeriod)
	v.SetDefault("websocket.writeWait", d.WebSocket.WriteWait)
	v.SetDefault("metricsLogInterval", d.MetricsLogInterval)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFormat", d.LogFormat)
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("server: config: listenAddr is required")
	}
	if !model.IsSupportedLanguage(c.DefaultLanguage) {
		return fmt.Errorf("server: config: unsupported defaultLanguage %q", c.DefaultLanguage)
	}
	if c.TypingTimeout < 0 || c.TranslateTimeout < 0 || c.MetricsLogInterval < 0 {
		return fmt.Errorf("server: config: timeouts must not be negative")
	}
	if err := logging.Validate(c.LogLevel); err != nil {
		return fmt.Errorf("server: config: %w", err)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return fmt.Errorf("server: config: %w", err)
	}
	return nil
}
