package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const maxFrameBytes = 10 * 1024 * 1024

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Host             string        `mapstructure:"host"`
	TCPPort          int           `mapstructure:"tcp_port"`
	UDPPort          int           `mapstructure:"udp_port"`
	PortSearchSpan   int           `mapstructure:"port_search_span"`
	MaxFrameBytes    int           `mapstructure:"max_frame_bytes"`
	SendQueue        int           `mapstructure:"send_queue"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	StatsInterval    time.Duration `mapstructure:"stats_interval"`
	KickSlowPeers    bool          `mapstructure:"kick_slow_peers"`
	CreateLimit      int           `mapstructure:"create_limit"`
	CreateWindow     time.Duration `mapstructure:"create_window"`

	Media   MediaConfig   `mapstructure:"media"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`

	// Source is the config file that was read, empty when only defaults,
	// env and flags apply.
	Source string `mapstructure:"-"`
}

type MediaConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MixWindow     time.Duration `mapstructure:"mix_window"`
	BufferTTL     time.Duration `mapstructure:"buffer_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	RebindAfter   time.Duration `mapstructure:"rebind_after"`
}

type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type JournalConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("tcp_port", 5001)
	v.SetDefault("udp_port", 0)
	v.SetDefault("port_search_span", 100)
	v.SetDefault("max_frame_bytes", maxFrameBytes)
	v.SetDefault("send_queue", 1024)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("stats_interval", "10s")
	v.SetDefault("kick_slow_peers", false)
	v.SetDefault("create_limit", 30)
	v.SetDefault("create_window", "1m")

	v.SetDefault("media.poll_interval", "100ms")
	v.SetDefault("media.mix_window", "300ms")
	v.SetDefault("media.buffer_ttl", "500ms")
	v.SetDefault("media.sweep_interval", "1s")
	v.SetDefault("media.rebind_after", "0s")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", 8080)
	v.SetDefault("journal.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// flags maps command-line flags to config keys.
var flags = []struct {
	name, key, usage string
	value            any
}{
	{"host", "host", "listen address for the control and media ports", "0.0.0.0"},
	{"tcp-port", "tcp_port", "control channel port (searched forward when busy)", 5001},
	{"udp-port", "udp_port", "media port, 0 means tcp port + 1", 0},
	{"http-port", "http.port", "admin API port", 8080},
	{"no-http", "", "disable the admin API", false},
	{"journal", "journal.dsn", "sqlite DSN for the meeting journal, empty disables it", ""},
	{"log-level", "log.level", "debug, info, warn or error", "info"},
	{"log-format", "log.format", "console or json", "console"},
	{"kick-slow-peers", "kick_slow_peers", "disconnect peers whose send queue is full", false},
}

// Load resolves the configuration: defaults, then config/config.<CONFIG_ENV>.yaml
// (or --config), then MEETRELAY_* environment variables, then flags.
func Load(args []string) (*Config, error) {
	fset := pflag.NewFlagSet("meetrelay", pflag.ContinueOnError)
	file := fset.String("config", "", "config file, overrides CONFIG_ENV")
	for _, f := range flags {
		switch d := f.value.(type) {
		case string:
			fset.String(f.name, d, f.usage)
		case int:
			fset.Int(f.name, d, f.usage)
		case bool:
			fset.Bool(f.name, d, f.usage)
		}
	}
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	fileName := *file
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	source := fileName
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		if *file != "" {
			return nil, fmt.Errorf("config file %s: %w", fileName, err)
		}
		source = ""
	}

	v.SetEnvPrefix("MEETRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, f := range flags {
		if f.key == "" {
			continue
		}
		if err := v.BindPFlag(f.key, fset.Lookup(f.name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", f.name, err)
		}
	}
	if fset.Changed("no-http") {
		noHTTP, _ := fset.GetBool("no-http")
		v.Set("http.enabled", !noHTTP)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Source = source
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := checkPort("tcp_port", c.TCPPort, true); err != nil {
		return err
	}
	if err := checkPort("udp_port", c.UDPPort, true); err != nil {
		return err
	}
	if c.HTTP.Enabled {
		if err := checkPort("http.port", c.HTTP.Port, false); err != nil {
			return err
		}
	}
	if c.PortSearchSpan < 1 {
		return fmt.Errorf("port_search_span must be at least 1, got %d", c.PortSearchSpan)
	}
	if c.MaxFrameBytes < 1 || c.MaxFrameBytes > maxFrameBytes {
		return fmt.Errorf("max_frame_bytes must be in 1..%d, got %d", maxFrameBytes, c.MaxFrameBytes)
	}
	if c.SendQueue < 1 {
		return fmt.Errorf("send_queue must be positive, got %d", c.SendQueue)
	}
	if c.CreateLimit < 0 {
		return fmt.Errorf("create_limit must not be negative, got %d", c.CreateLimit)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"write_timeout", c.WriteTimeout},
		{"handshake_timeout", c.HandshakeTimeout},
		{"stats_interval", c.StatsInterval},
		{"create_window", c.CreateWindow},
		{"media.poll_interval", c.Media.PollInterval},
		{"media.mix_window", c.Media.MixWindow},
		{"media.buffer_ttl", c.Media.BufferTTL},
		{"media.sweep_interval", c.Media.SweepInterval},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.val)
		}
	}
	if c.Media.RebindAfter < 0 {
		return fmt.Errorf("media.rebind_after must not be negative, got %s", c.Media.RebindAfter)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("mode must be debug, release or test, got %q", c.Mode)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

func checkPort(key string, port int, zeroOK bool) error {
	if port < 0 || port > 65535 || (port == 0 && !zeroOK) {
		return fmt.Errorf("%s out of range: %d", key, port)
	}
	return nil
}
