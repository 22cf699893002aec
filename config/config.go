package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cryomon/parser"
)

// ChannelsConfig fixes the channel universe metadata: which names parse
// with which format, which are blacklisted, and how they group for
// display. The core only reads this, never mutates it.
type ChannelsConfig struct {
	KeyValue     []string            `mapstructure:"key_value"`
	ErrorLog     []string            `mapstructure:"error_log"`
	GaugeBank    []string            `mapstructure:"gauge_bank"`
	ValveControl []string            `mapstructure:"valve_control"`
	Underscore   []string            `mapstructure:"underscore"`
	Blacklist    []string            `mapstructure:"blacklist"`
	Groups       map[string][]string `mapstructure:"groups"`
}

// MailConfig is the alert dispatch boundary. When DebugDir is set the
// mailer writes messages to disk instead of talking to the SMTP server.
type MailConfig struct {
	Sender     string   `mapstructure:"sender"`
	Password   string   `mapstructure:"password"`
	SMTPServer string   `mapstructure:"smtp_server"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Recipients []string `mapstructure:"recipients"`
	DebugDir   string   `mapstructure:"debug_dir"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	LogFile string `mapstructure:"log_file"`
}

// Config describes the whole service. Loaded once at startup and passed
// into constructors; treated as immutable afterwards.
type Config struct {
	LogPath             string         `mapstructure:"log_path"`
	HistoryLimit        int            `mapstructure:"history_limit"`
	BatchInterval       int            `mapstructure:"batch_interval"`
	SubchannelDelimiter string         `mapstructure:"subchannel_delimiter"`
	MonitorFile         string         `mapstructure:"monitor_file"`
	Channels            ChannelsConfig `mapstructure:"channels"`
	Mail                MailConfig     `mapstructure:"mail"`
	HTTP                HTTPConfig     `mapstructure:"http"`
	Logging             LoggingConfig  `mapstructure:"logging"`
}

// Load reads the config file, applies defaults and CRYOMON_* environment
// overrides, unmarshals and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("cryomon")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("history_limit", 300)
	v.SetDefault("batch_interval", 1)
	v.SetDefault("subchannel_delimiter", ":")
	v.SetDefault("monitor_file", "monitors.json")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mail.smtp_port", 465)

	v.SetDefault("channels.key_value", []string{"heaters", "Status"})
	v.SetDefault("channels.error_log", []string{"Error"})
	v.SetDefault("channels.gauge_bank", []string{"maxigauge"})
	v.SetDefault("channels.valve_control", []string{"Channels"})
	v.SetDefault("channels.underscore", []string{"heaters", "Status"})
	v.SetDefault("channels.blacklist", defaultBlacklist())
	v.SetDefault("channels.groups", map[string][]string{
		"Thermometry": thermometryChannels(),
		"Valve":       {"Flowmeter", "maxigauge", "Channels"},
		"Status":      {"Status", "heaters"},
	})
}

// Sensor channels above CH7 are unpopulated on this instrument.
func defaultBlacklist() []string {
	var out []string
	for d := 8; d <= 16; d++ {
		out = append(out, fmt.Sprintf("CH%d T", d), fmt.Sprintf("CH%d R", d))
	}
	return out
}

func thermometryChannels() []string {
	var out []string
	for _, kind := range []string{"T", "R", "P"} {
		for d := 1; d <= 7; d++ {
			out = append(out, fmt.Sprintf("CH%d %s", d, kind))
		}
	}
	return out
}

// Validate checks the fields the core cannot run without.
func (c *Config) Validate() error {
	if c.LogPath == "" {
		return fmt.Errorf("log_path must not be empty")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive")
	}
	if c.BatchInterval <= 0 {
		return fmt.Errorf("batch_interval must be positive")
	}
	if len(c.Mail.Recipients) > 0 && c.Mail.DebugDir == "" {
		if c.Mail.Sender == "" || c.Mail.SMTPServer == "" {
			return fmt.Errorf("mail.sender and mail.smtp_server are required when recipients are set")
		}
	}
	return nil
}

// Cadence is the batching loop interval.
func (c *Config) Cadence() time.Duration {
	return time.Duration(c.BatchInterval) * time.Second
}

// FormatFor resolves a channel name to its parsing format by configured
// set membership; anything unlisted is a plain scalar log.
func (c *Config) FormatFor(channel string) parser.Format {
	switch {
	case contains(c.Channels.KeyValue, channel):
		return parser.FormatKeyValue
	case contains(c.Channels.ErrorLog, channel):
		return parser.FormatErrorLog
	case contains(c.Channels.GaugeBank, channel):
		return parser.FormatGaugeBank
	case contains(c.Channels.ValveControl, channel):
		return parser.FormatValveControl
	default:
		return parser.FormatScalar
	}
}

// Underscored reports whether the channel's file name joins channel and
// date with an underscore instead of a space.
func (c *Config) Underscored(channel string) bool {
	return contains(c.Channels.Underscore, channel)
}

func (c *Config) Blacklisted(channel string) bool {
	return contains(c.Channels.Blacklist, channel)
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
