// Package config loads the process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"trendgallery/phash"
)

// Config is the full runtime configuration. Everything except the Mongo
// URI has a workable default.
type Config struct {
	MongoURI   string `validate:"required"`
	Database   string `validate:"required"`
	Collection string `validate:"required"`

	Port      string `validate:"required"`
	ImagesDir string `validate:"required"`

	// PublicBaseURL is the address under which /images/<name> is reachable
	// from outside; the tagging service fetches bytes through it.
	PublicBaseURL string `validate:"required,url"`

	ScraperEndpoint string
	ScraperToken    string
	ProfileHost     string

	TaggerEndpoint string
	TaggerToken    string

	DupThreshold int `validate:"min=0,max=10"`
	CacheTTLSecs int `validate:"min=1"`

	// S3 bytes storage; when Bucket is empty the local disk store is used.
	S3Bucket string
	S3Prefix string
}

// Load reads the environment (after a best-effort .env load) and
// validates the result.
func Load() (*Config, error) {
	// A missing .env file is fine in containers.
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:        os.Getenv("MONGO_URI"),
		Database:        getenv("MONGO_DATABASE", "trendgallery"),
		Collection:      getenv("MONGO_COLLECTION", "images"),
		Port:            getenv("PORT", "8007"),
		ImagesDir:       getenv("IMAGES_DIR", "./images"),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:8007"),
		ScraperEndpoint: os.Getenv("SCRAPER_ENDPOINT"),
		ScraperToken:    os.Getenv("SCRAPER_TOKEN"),
		ProfileHost:     getenv("PROFILE_HOST", "www.instagram.com"),
		TaggerEndpoint:  getenv("TAGGER_ENDPOINT", "https://api.ximilar.com/tagging/fashion/v2/detect_tags_all"),
		TaggerToken:     os.Getenv("TAGGER_TOKEN"),
		DupThreshold:    phash.DefaultThreshold,
		CacheTTLSecs:    300,
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
	}

	if v := os.Getenv("DUP_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DUP_THRESHOLD: %w", err)
		}
		cfg.DupThreshold = n
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CACHE_TTL_SECONDS: %w", err)
		}
		cfg.CacheTTLSecs = n
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
