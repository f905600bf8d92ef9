package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
	"regime-seeker/internal/volprofile"
)

// Config holds all application configuration. Values come from environment
// variables (a .env file is loaded first when present) and, when
// CONFIG_FILE is set, from a YAML file that overrides the watch list and
// engine parameters.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string
	LogLevel      string

	// Fan-out (empty disables)
	NATSURL        string
	NATSSubject    string
	KafkaBrokers   string
	KafkaTopic     string
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string

	// Watch list, comma-separated "exchange:symbol:interval"
	Watch string

	File FileConfig
}

// FileConfig is the YAML-configurable part. Zero fields take defaults.
type FileConfig struct {
	Watch          []model.Instrument `yaml:"watch"`
	UpdateInterval time.Duration      `yaml:"update_interval" default:"15s" validate:"gte=1s"`
	CandleLimit    int                `yaml:"candle_limit" default:"200" validate:"gte=2,lte=1000"`
	MTF            bool               `yaml:"mtf"`
	Engine         regime.Config      `yaml:"engine"`
	Profile        volprofile.Config  `yaml:"profile"`
	VolumeFilter   VolumeFilter       `yaml:"volume_filter"`
	RedisTTL       time.Duration      `yaml:"redis_ttl" default:"5m"`
}

// VolumeFilter gates regime-change alerts on a volume spike in the last
// closed bar.
type VolumeFilter struct {
	Enabled    bool    `yaml:"enabled"`
	Period     int     `yaml:"period" default:"20" validate:"gte=1"`
	Multiplier float64 `yaml:"multiplier" default:"2" validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	c := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		NATSURL:        getEnv("NATS_URL", ""),
		NATSSubject:    getEnv("NATS_SUBJECT", "regime.alerts"),
		KafkaBrokers:   getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "regime-alerts"),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),

		// Default: BTC on binance.us, hourly
		Watch: getEnv("WATCH", "binance.us:BTC:1h"),
	}

	c.File.UpdateInterval = getEnvDuration("UPDATE_INTERVAL", 0)
	c.File.CandleLimit = getEnvInt("CANDLE_LIMIT", 0)
	c.File.MTF = getEnv("MTF_ENABLED", "") == "true"

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if len(c.File.Watch) == 0 {
		c.File.Watch = c.ParseWatch()
	}

	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile overlays the YAML file at path onto c.File.
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c.File); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// finish applies defaults and validates the file section.
func (c *Config) finish() error {
	if err := defaults.Set(&c.File); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if err := validate.Struct(&c.File); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if len(c.File.Watch) == 0 {
		return fmt.Errorf("validate config: empty watch list")
	}
	for i := range c.File.Watch {
		c.File.Watch[i].Symbol = strings.ToUpper(c.File.Watch[i].Symbol)
	}
	return nil
}

// ParseWatch parses the Watch string into instruments, skipping bad entries.
func (c *Config) ParseWatch() []model.Instrument {
	parts := strings.Split(c.Watch, ",")
	out := make([]model.Instrument, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		inst, ok := model.ParseInstrument(p)
		if !ok {
			log.Printf("[config] skipping invalid watch entry: %q", p)
			continue
		}
		out = append(out, inst)
	}
	return out
}

// Brokers splits KafkaBrokers on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
