package config

import (
	"time"
	_ "time/tzdata"
)

const defaultPriority = 100

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:dealscanner.db?_pragma=busy_timeout(5000)"},
		Redis:    RedisConfig{TTL: 7 * 24 * time.Hour},
		Scheduler: SchedulerConfig{
			Tick:              time.Second,
			MaxConcurrentJobs: 5,
			JobTimeout:        300 * time.Second,
			RetryDelay:        60 * time.Second,
			Timezone:          defaultTimezone,
			location:          tz,
		},
		Collector: CollectorConfig{
			Workers:      8,
			CycleTimeout: 60 * time.Second,
			CallTimeout:  20 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Lookback:           24 * time.Hour,
			PublishBatch:       20,
			MaxPublishAttempts: 5,
			Retention:          30 * 24 * time.Hour,
		},
		Affiliate: AffiliateConfig{
			Amazon: AmazonConfig{Tag: "garimpeirogee-20", Language: "pt_BR"},
			Awin: AwinConfig{
				AffiliateIDs: []string{"2370719", "2510157"},
				Merchants: map[string]string{
					"comfy":   "23377",
					"trocafy": "51277",
					"lg":      "33061",
					"kabum":   "17729",
					"ninja":   "106765",
					"samsung": "25539",
				},
				Overrides: map[string]string{"samsung": "2510157"},
			},
			Magalu:       MagaluConfig{Storefront: "https://www.magazinevoce.com.br/magazinegarimpeirogeek/"},
			MercadoLivre: MercadoLivreConfig{SocialWord: "garimpeirogeek"},
			Shortlink:    ShortlinkConfig{Timeout: 15 * time.Second},
		},
		HTTP:    HTTPConfig{Address: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
