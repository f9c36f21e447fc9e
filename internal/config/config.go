package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	BaseURL        string
	DBDriver       string
	MySQLDSN       string
	SQLitePath     string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOSecure    bool
	MinIOBucket    string
	HTTPTimeout    time.Duration

	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	VisionModel string
	EmbedModel  string
	LLMTimeout  time.Duration

	ClassifyRetries    int
	ClassifyBackoff    time.Duration
	EnrichDeadline     time.Duration
	TagNormalizeBudget time.Duration
	ClaimStaleAfter    time.Duration
	StrategyTimeout    time.Duration

	InstagramMirrorURL   string
	InstagramQueryHashes []string
	ScreenshotServiceURL string
	ScreenshotEnabled    bool
	ChromeBin            string

	QueueDriver      string
	RedisURL         string
	Workers          int
	SweepInterval    time.Duration
	SweepRetryFailed bool

	InternalSecret string
	LogLevel       string
	LogFormat      string
}

func Load() Config {
	return Config{
		Addr:           getenv("ADDR", ":8080"),
		BaseURL:        getenv("BASE_URL", "http://localhost:8080"),
		DBDriver:       getenv("DB_DRIVER", "mysql"),
		MySQLDSN:       getenv("MYSQL_DSN", "stash:stash@tcp(127.0.0.1:3306)/stash?charset=utf8mb4&parseTime=True&loc=Local"),
		SQLitePath:     getenv("SQLITE_PATH", "stash.db"),
		MinIOEndpoint:  getenv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinIOAccessKey: getenv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey: getenv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOSecure:    getenvBool("MINIO_SECURE", false),
		MinIOBucket:    getenv("MINIO_BUCKET", "stash"),
		HTTPTimeout:    seconds("HTTP_TIMEOUT_SECONDS", 20),

		LLMBaseURL:  getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:   getenv("LLM_API_KEY", ""),
		LLMModel:    getenv("LLM_MODEL", ""),
		VisionModel: getenv("VISION_MODEL", ""),
		EmbedModel:  getenv("EMBED_MODEL", ""),
		LLMTimeout:  seconds("LLM_TIMEOUT_SECONDS", 30),

		ClassifyRetries:    getenvInt("CLASSIFY_RETRIES", 2),
		ClassifyBackoff:    time.Duration(getenvInt("CLASSIFY_BACKOFF_MS", 500)) * time.Millisecond,
		EnrichDeadline:     seconds("ENRICH_DEADLINE_SECONDS", 55),
		TagNormalizeBudget: seconds("TAG_NORMALIZE_BUDGET_SECONDS", 8),
		ClaimStaleAfter:    seconds("CLAIM_STALE_SECONDS", 300),
		StrategyTimeout:    seconds("STRATEGY_TIMEOUT_SECONDS", 6),

		InstagramMirrorURL:   getenv("INSTAGRAM_MIRROR_URL", "https://www.ddinstagram.com"),
		InstagramQueryHashes: getenvList("INSTAGRAM_QUERY_HASHES", []string{"b3055c01b4b222b8a47dc12b090e4e64", "9f8827793ef34641b2fb195d4d41151c"}),
		ScreenshotServiceURL: getenv("SCREENSHOT_SERVICE_URL", "https://image.thum.io/get/width/1200/crop/900/"),
		ScreenshotEnabled:    getenvBool("SCREENSHOT_ENABLED", true),
		ChromeBin:            getenv("CHROME_BIN", ""),

		QueueDriver:      getenv("QUEUE_DRIVER", "memory"),
		RedisURL:         getenv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		Workers:          getenvInt("WORKERS", 4),
		SweepInterval:    seconds("SWEEP_INTERVAL_SECONDS", 300),
		SweepRetryFailed: getenvBool("SWEEP_RETRY_FAILED", false),

		InternalSecret: getenv("INTERNAL_API_SECRET", ""),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
	}
}

// Validate rejects timings under which a stale-claim takeover could overlap an
// attempt that is still inside its deadline.
func (c Config) Validate() error {
	if c.EnrichDeadline <= 0 {
		return fmt.Errorf("ENRICH_DEADLINE_SECONDS must be positive, got %s", c.EnrichDeadline)
	}
	if c.ClaimStaleAfter <= c.EnrichDeadline {
		return fmt.Errorf("CLAIM_STALE_SECONDS (%s) must be longer than ENRICH_DEADLINE_SECONDS (%s)", c.ClaimStaleAfter, c.EnrichDeadline)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func seconds(key string, def int) time.Duration {
	return time.Duration(getenvInt(key, def)) * time.Second
}
