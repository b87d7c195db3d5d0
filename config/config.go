package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/propertylens.db"`

	// Port for the HTTP API server
	Port string `env:"PORT" envDefault:"5250"`

	Matching struct {
		// Words stripped from addresses before comparison. Deployments
		// covering rural areas may want to append "cottage".
		NoiseWords []string `env:"MATCH_NOISE_WORDS" envSeparator:"," envDefault:"flat,apartment,apt,unit,the,house,property,farm,bungalow,villa,old"`

		// Minimum boosted fuzzy score to accept a match
		FuzzyThreshold float64 `env:"MATCH_FUZZY_THRESHOLD" envDefault:"70"`

		// Minimum character-similarity score for the last-resort fallback
		CharThreshold float64 `env:"MATCH_CHAR_THRESHOLD" envDefault:"90"`
	}

	Geocoding struct {
		// Base URL of the postcode lookup service
		BaseURL string `env:"GEOCODE_BASE_URL" envDefault:"https://api.postcodes.io"`

		// Directory for the on-disk geocode cache; empty means a temp dir
		CacheDir string `env:"GEOCODE_CACHE_DIR" envDefault:""`
	}

	Importer struct {
		// Number of rows accumulated before each upsert transaction
		BatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"500"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
