package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "DEALSCANNER_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	databaseDriverEnv   = "DATABASE_DRIVER"
	redisAddressEnv     = "REDIS_ADDRESS"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	amazonTagEnv        = "AMAZON_TAG"
	awinAffiliateIDsEnv = "AWIN_AFFIDS"
	shortlinkURLEnv     = "SHORTLINK_API_URL"
	shortlinkKeyEnv     = "SHORTLINK_API_KEY"
	logLevelEnv         = "LOG_LEVEL"
	httpAddressEnv      = "HTTP_ADDRESS"
	seedEnv             = "GG_SEED"
	freezeTimeEnv       = "GG_FREEZE_TIME"
	allowScrapingEnv    = "GG_ALLOW_SCRAPING"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Collector     CollectorConfig    `yaml:"collector"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Safety        SafetyConfig       `yaml:"safety"`
	Affiliate     AffiliateConfig    `yaml:"affiliate"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sources       []SourceConfig     `yaml:"sources"`
}

// DatabaseConfig selects the SQL driver and its connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig points at the shortlink cache. An empty address disables it.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SchedulerConfig tunes the job loop.
type SchedulerConfig struct {
	Tick              time.Duration  `yaml:"tick"`
	MaxConcurrentJobs int            `yaml:"maxConcurrentJobs"`
	JobTimeout        time.Duration  `yaml:"jobTimeout"`
	RetryDelay        time.Duration  `yaml:"retryDelay"`
	Timezone          string         `yaml:"timezone"`
	Jobs              []JobConfig    `yaml:"jobs"`
	location          *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// JobConfig overrides one default job. Function defaults to ID.
type JobConfig struct {
	ID         string `yaml:"id"`
	Function   string `yaml:"function"`
	Schedule   string `yaml:"schedule"`
	MaxRetries int    `yaml:"maxRetries"`
	Enabled    *bool  `yaml:"enabled"`
}

// CollectorConfig bounds one collection cycle.
type CollectorConfig struct {
	Workers      int           `yaml:"workers"`
	CycleTimeout time.Duration `yaml:"cycleTimeout"`
	CallTimeout  time.Duration `yaml:"callTimeout"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// PipelineConfig tunes the queue and housekeeping jobs.
type PipelineConfig struct {
	Lookback           time.Duration `yaml:"lookback"`
	PublishBatch       int           `yaml:"publishBatch"`
	MaxPublishAttempts int           `yaml:"maxPublishAttempts"`
	Retention          time.Duration `yaml:"retention"`
}

// SafetyConfig carries the switches that keep test runs off the network.
type SafetyConfig struct {
	AllowScraping bool `yaml:"allowScraping"`
	Deterministic bool `yaml:"deterministic"`
}

// AffiliateConfig groups per-network credentials.
type AffiliateConfig struct {
	Amazon       AmazonConfig       `yaml:"amazon"`
	Awin         AwinConfig         `yaml:"awin"`
	Magalu       MagaluConfig       `yaml:"magalu"`
	MercadoLivre MercadoLivreConfig `yaml:"mercadolivre"`
	Shortlink    ShortlinkConfig    `yaml:"shortlink"`
}

// AmazonConfig is the tag-injection identity.
type AmazonConfig struct {
	Tag      string `yaml:"tag"`
	Language string `yaml:"language"`
}

// AwinConfig describes the deeplink network. The first affiliate id is the
// default publisher.
type AwinConfig struct {
	AffiliateIDs []string          `yaml:"affiliateIds"`
	Merchants    map[string]string `yaml:"merchants"`
	Overrides    map[string]string `yaml:"overrides"`
}

// MagaluConfig is the partner storefront.
type MagaluConfig struct {
	Storefront string `yaml:"storefront"`
}

// MercadoLivreConfig is the social referral identity.
type MercadoLivreConfig struct {
	SocialWord string `yaml:"socialWord"`
}

// ShortlinkConfig points at the shortlink minting endpoint.
type ShortlinkConfig struct {
	APIURL  string        `yaml:"apiUrl"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// HTTPConfig is the operator API listener.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig describes one source adapter.
type SourceConfig struct {
	Name                string         `yaml:"name"`
	Kind                string         `yaml:"kind"`
	Enabled             *bool          `yaml:"enabled"`
	Priority            int            `yaml:"priority"`
	RateLimit           float64        `yaml:"rateLimit"`
	Retry               RetryConfig    `yaml:"retry"`
	RequiredCredentials []string       `yaml:"requiredCredentials"`
	Store               string         `yaml:"store"`
	ListURL             string         `yaml:"listUrl"`
	Pages               int            `yaml:"pages"`
	PageParam           string         `yaml:"pageParam"`
	Selectors           SelectorConfig `yaml:"selectors"`
}

// IsEnabled treats an omitted flag as enabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RetryConfig is the per-source retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
}

// SelectorConfig holds CSS selectors for HTML listing pages. Link and Image
// read the href/src attribute of the matched element.
type SelectorConfig struct {
	Item          string `yaml:"item"`
	Title         string `yaml:"title"`
	Price         string `yaml:"price"`
	OriginalPrice string `yaml:"originalPrice"`
	Link          string `yaml:"link"`
	Image         string `yaml:"image"`
}

// Load reads .env files and YAML configuration (if present), then applies
// environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if parsed, err := parse(raw, cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = parsed
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.bindTimezone()

	return cfg
}

// awinTables records which Awin maps a config file sets.
type awinTables struct {
	Affiliate struct {
		Awin struct {
			Merchants yaml.Node `yaml:"merchants"`
			Overrides yaml.Node `yaml:"overrides"`
		} `yaml:"awin"`
	} `yaml:"affiliate"`
}

// parse decodes raw YAML over base so omitted keys keep their defaults. A map
// given in the file replaces the default map instead of extending it.
func parse(raw []byte, base Config) (Config, error) {
	var set awinTables
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return base, err
	}

	cfg := base
	if set.Affiliate.Awin.Merchants.Kind != 0 {
		cfg.Affiliate.Awin.Merchants = nil
	}
	if set.Affiliate.Awin.Overrides.Kind != 0 {
		cfg.Affiliate.Awin.Overrides = nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(redisAddressEnv); v != "" {
		c.Redis.Address = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(amazonTagEnv); v != "" {
		c.Affiliate.Amazon.Tag = v
	}
	if v := os.Getenv(awinAffiliateIDsEnv); v != "" {
		c.Affiliate.Awin.AffiliateIDs = splitList(v)
	}
	if v := os.Getenv(shortlinkURLEnv); v != "" {
		c.Affiliate.Shortlink.APIURL = v
	}
	if v := os.Getenv(shortlinkKeyEnv); v != "" {
		c.Affiliate.Shortlink.APIKey = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddressEnv); v != "" {
		c.HTTP.Address = v
	}

	if os.Getenv(seedEnv) != "" && os.Getenv(freezeTimeEnv) != "" {
		c.Safety.Deterministic = true
	}
	if v, ok := os.LookupEnv(allowScrapingEnv); ok {
		c.Safety.AllowScraping = strings.TrimSpace(v) == "1"
	}
}

// applyDefaults fills zero values a YAML file may have set explicitly.
func (c *Config) applyDefaults() {
	def := defaultConfig()

	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Scheduler.Tick <= 0 {
		c.Scheduler.Tick = def.Scheduler.Tick
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = def.Scheduler.MaxConcurrentJobs
	}
	if c.Scheduler.JobTimeout <= 0 {
		c.Scheduler.JobTimeout = def.Scheduler.JobTimeout
	}
	if c.Scheduler.RetryDelay <= 0 {
		c.Scheduler.RetryDelay = def.Scheduler.RetryDelay
	}
	if c.Collector.Workers <= 0 {
		c.Collector.Workers = def.Collector.Workers
	}
	if c.Collector.CycleTimeout <= 0 {
		c.Collector.CycleTimeout = def.Collector.CycleTimeout
	}
	if c.Collector.CallTimeout <= 0 {
		c.Collector.CallTimeout = def.Collector.CallTimeout
	}
	if c.Collector.MaxDelay <= 0 {
		c.Collector.MaxDelay = def.Collector.MaxDelay
	}
	if c.Pipeline.PublishBatch <= 0 {
		c.Pipeline.PublishBatch = def.Pipeline.PublishBatch
	}
	if c.Pipeline.MaxPublishAttempts <= 0 {
		c.Pipeline.MaxPublishAttempts = def.Pipeline.MaxPublishAttempts
	}
	if c.Pipeline.Retention <= 0 {
		c.Pipeline.Retention = def.Pipeline.Retention
	}
	if c.Pipeline.Lookback <= 0 {
		c.Pipeline.Lookback = def.Pipeline.Lookback
	}
	if c.Affiliate.Shortlink.Timeout <= 0 {
		c.Affiliate.Shortlink.Timeout = def.Affiliate.Shortlink.Timeout
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = def.Redis.TTL
	}

	for i := range c.Sources {
		if c.Sources[i].Kind == "" {
			c.Sources[i].Kind = "html"
		}
		if c.Sources[i].Priority == 0 {
			c.Sources[i].Priority = defaultPriority
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Credential reports whether a named credential is configured, either as an
// environment variable or as one of the affiliate settings it is known by.
func (c Config) Credential(name string) bool {
	switch name {
	case amazonTagEnv:
		return c.Affiliate.Amazon.Tag != ""
	case awinAffiliateIDsEnv:
		return len(c.Affiliate.Awin.AffiliateIDs) > 0
	case shortlinkKeyEnv:
		return c.Affiliate.Shortlink.APIKey != ""
	case shortlinkURLEnv:
		return c.Affiliate.Shortlink.APIURL != ""
	}
	return strings.TrimSpace(os.Getenv(name)) != ""
}
