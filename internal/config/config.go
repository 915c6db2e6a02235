// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort             = 8090
	defaultServerHost             = "0.0.0.0"
	defaultReadTimeout            = 30 * time.Second
	defaultWriteTimeout           = 30 * time.Second
	defaultShutdownTimeout        = 10 * time.Second
	defaultLogLevel               = "info"
	defaultLogPretty              = false
	defaultSiteRequestTimeout     = 10 * time.Second
	defaultPlayerInfoPath         = "/player/{id}/playerinfo"
	defaultRegisterWatchingPath   = "/player/{id}/register-watching"
	defaultRegisterLikePath       = "/player/{id}/register-like"
	defaultDevice                 = "desktop"
	defaultEngine                 = "simulated"
	defaultPollInterval           = 15 * time.Second
	defaultConnectedPollInterval  = 25 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	defaultWatchingInterval       = 10 * time.Second
	defaultRememberInterval       = 5 * time.Second
	defaultSimulatedTick          = time.Second
	defaultMPVBinary              = "mpv"
	defaultResumeBackend          = "sqlite"
	defaultResumePath             = "./data/marquee.db"
	defaultResumeRetention        = 21 * 24 * time.Hour
	defaultNotificationSource     = "none"
	defaultRedisChannel           = "marquee:notifications"
	defaultReconnectMaxDelay      = 32 * time.Second
	defaultAnalyticsQueueSize     = 256
	defaultAnalyticsRateLimit     = 20.0
	defaultAnalyticsBurst         = 40
	defaultCollectorTimeout       = 5 * time.Second
	defaultManagerCleanupInterval = time.Minute
	defaultManagerIdleTimeout     = 30 * time.Minute
	defaultManagerMaxPlayers      = 64
	envPrefix                     = "MARQUEE"
)

// Valid values for enumerated settings
var (
	validLevels              = []string{"debug", "info", "warn", "error"}
	validDevices             = []string{"desktop", "mobile"}
	validEngines             = []string{"simulated", "mpv"}
	validResumeBackends      = []string{"none", "memory", "sqlite", "badger"}
	validNotificationSources = []string{"none", "websocket", "redis"}
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Site          SiteConfig
	Player        PlayerConfig
	Resume        ResumeConfig
	Notifications NotificationsConfig
	Analytics     AnalyticsConfig
	Manager       ManagerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// SiteConfig describes the website the players talk to. Paths are templates
// where {id} is replaced by the content id; an empty path disables the feature.
type SiteConfig struct {
	BaseURL              string
	PlayerInfoPath       string
	RegisterWatchingPath string
	RegisterLikePath     string
	CSRFToken            string
	Headers              map[string]string
	RequestTimeout       time.Duration
}

// PlayerConfig holds playback policy and media engine settings
type PlayerConfig struct {
	Device                  string
	Engine                  string
	AutoPlayVod             bool
	AutoPlayStream          bool
	SmartAutoPlay           bool
	IgnoreExternalStreamURL bool
	InitialVodQualityID     int64
	InitialStreamQualityID  int64
	PollInterval            time.Duration
	ConnectedPollInterval   time.Duration
	HeartbeatInterval       time.Duration
	WatchingInterval        time.Duration
	RememberInterval        time.Duration
	SimulatedDuration       float64
	SimulatedTick           time.Duration
	MPVBinary               string
	MPVSocketDir            string
	MPVArgs                 []string
}

// ResumeConfig selects where playback positions are remembered
type ResumeConfig struct {
	Backend   string
	Path      string
	Retention time.Duration
}

// NotificationsConfig selects the push channel feeding state change notifications
type NotificationsConfig struct {
	Source            string
	WebSocketURL      string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisChannel      string
	ReconnectMaxDelay time.Duration
}

// AnalyticsConfig holds playback analytics settings
type AnalyticsConfig struct {
	Log              bool
	Metrics          bool
	CollectorURL     string
	CollectorTimeout time.Duration
	QueueSize        int
	RateLimit        float64
	Burst            int
}

// ManagerConfig controls the lifetime of players held by the daemon
type ManagerConfig struct {
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxPlayers      int
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marquee")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)
	v.SetDefault("server.shutdowntimeout", defaultShutdownTimeout)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("site.baseurl", "")
	v.SetDefault("site.playerinfopath", defaultPlayerInfoPath)
	v.SetDefault("site.registerwatchingpath", defaultRegisterWatchingPath)
	v.SetDefault("site.registerlikepath", defaultRegisterLikePath)
	v.SetDefault("site.csrftoken", "")
	v.SetDefault("site.requesttimeout", defaultSiteRequestTimeout)

	v.SetDefault("player.device", defaultDevice)
	v.SetDefault("player.engine", defaultEngine)
	v.SetDefault("player.autoplayvod", true)
	v.SetDefault("player.autoplaystream", true)
	v.SetDefault("player.smartautoplay", true)
	v.SetDefault("player.ignoreexternalstreamurl", false)
	v.SetDefault("player.initialvodqualityid", 0)
	v.SetDefault("player.initialstreamqualityid", 0)
	v.SetDefault("player.pollinterval", defaultPollInterval)
	v.SetDefault("player.connectedpollinterval", defaultConnectedPollInterval)
	v.SetDefault("player.heartbeatinterval", defaultHeartbeatInterval)
	v.SetDefault("player.watchinginterval", defaultWatchingInterval)
	v.SetDefault("player.rememberinterval", defaultRememberInterval)
	v.SetDefault("player.simulatedduration", 0)
	v.SetDefault("player.simulatedtick", defaultSimulatedTick)
	v.SetDefault("player.mpvbinary", defaultMPVBinary)
	v.SetDefault("player.mpvsocketdir", "")
	v.SetDefault("player.mpvargs", []string{})

	v.SetDefault("resume.backend", defaultResumeBackend)
	v.SetDefault("resume.path", defaultResumePath)
	v.SetDefault("resume.retention", defaultResumeRetention)

	v.SetDefault("notifications.source", defaultNotificationSource)
	v.SetDefault("notifications.websocketurl", "")
	v.SetDefault("notifications.redisaddr", "")
	v.SetDefault("notifications.redispassword", "")
	v.SetDefault("notifications.redisdb", 0)
	v.SetDefault("notifications.redischannel", defaultRedisChannel)
	v.SetDefault("notifications.reconnectmaxdelay", defaultReconnectMaxDelay)

	v.SetDefault("analytics.log", true)
	v.SetDefault("analytics.metrics", true)
	v.SetDefault("analytics.collectorurl", "")
	v.SetDefault("analytics.collectortimeout", defaultCollectorTimeout)
	v.SetDefault("analytics.queuesize", defaultAnalyticsQueueSize)
	v.SetDefault("analytics.ratelimit", defaultAnalyticsRateLimit)
	v.SetDefault("analytics.burst", defaultAnalyticsBurst)

	v.SetDefault("manager.cleanupinterval", defaultManagerCleanupInterval)
	v.SetDefault("manager.idletimeout", defaultManagerIdleTimeout)
	v.SetDefault("manager.maxplayers", defaultManagerMaxPlayers)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}

	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if c.Site.PlayerInfoPath == "" {
		return errors.New("site player info path is required")
	}
	if c.Site.RequestTimeout <= 0 {
		return fmt.Errorf("invalid site request timeout: %v (must be > 0)", c.Site.RequestTimeout)
	}

	if !contains(validDevices, c.Player.Device) {
		return fmt.Errorf("invalid device: %s (must be one of: %s)", c.Player.Device, strings.Join(validDevices, ", "))
	}
	if !contains(validEngines, c.Player.Engine) {
		return fmt.Errorf("invalid engine: %s (must be one of: %s)", c.Player.Engine, strings.Join(validEngines, ", "))
	}
	intervals := map[string]time.Duration{
		"poll":           c.Player.PollInterval,
		"connected poll": c.Player.ConnectedPollInterval,
		"heartbeat":      c.Player.HeartbeatInterval,
		"watching":       c.Player.WatchingInterval,
		"remember":       c.Player.RememberInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("invalid %s interval: %v (must be > 0)", name, d)
		}
	}
	if c.Player.SimulatedDuration < 0 {
		return fmt.Errorf("invalid simulated duration: %v (must be >= 0)", c.Player.SimulatedDuration)
	}

	if !contains(validResumeBackends, c.Resume.Backend) {
		return fmt.Errorf("invalid resume backend: %s (must be one of: %s)", c.Resume.Backend, strings.Join(validResumeBackends, ", "))
	}
	if c.Resume.Retention <= 0 {
		return fmt.Errorf("invalid resume retention: %v (must be > 0)", c.Resume.Retention)
	}

	if !contains(validNotificationSources, c.Notifications.Source) {
		return fmt.Errorf("invalid notification source: %s (must be one of: %s)", c.Notifications.Source, strings.Join(validNotificationSources, ", "))
	}
	if c.Notifications.Source == "websocket" && c.Notifications.WebSocketURL == "" {
		return errors.New("notifications websocket url is required for the websocket source")
	}
	if c.Notifications.Source == "redis" && c.Notifications.RedisAddr == "" {
		return errors.New("notifications redis address is required for the redis source")
	}

	if c.Analytics.QueueSize < 1 {
		return fmt.Errorf("invalid analytics queue size: %d (must be >= 1)", c.Analytics.QueueSize)
	}
	if c.Analytics.CollectorURL != "" && (c.Analytics.RateLimit <= 0 || c.Analytics.Burst < 1) {
		return fmt.Errorf("invalid analytics rate limit: %v/%d (must be > 0)", c.Analytics.RateLimit, c.Analytics.Burst)
	}

	if c.Manager.CleanupInterval <= 0 {
		return fmt.Errorf("invalid manager cleanup interval: %v (must be > 0)", c.Manager.CleanupInterval)
	}
	if c.Manager.MaxPlayers < 1 {
		return fmt.Errorf("invalid max players: %d (must be >= 1)", c.Manager.MaxPlayers)
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
