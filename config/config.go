package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	TelegramToken  string
	TelegramChatID string
	TelegramAPIURL string

	BrowserWSEndpoint string
	ChromeBin         string

	ScrapeInterval   time.Duration
	ConcurrencyLimit int
	MinPrice         int64
	MaxRetries       int
	RetryDelay       time.Duration
	NavTimeout       time.Duration
	StartJitter      time.Duration

	LinksFile   string
	TriggerFile string
	SitesFile   string
	DumpDir     string

	StoreBackend string
	DBDriver     string
	DatabaseURL  string
	MongoURI     string
	MongoDB      string

	ControlAddr     string
	ControlUser     string
	ControlPassword string
	ReportCSVPath   string
	LogFile         string
	LogLevel        string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("CHAT_ID", ""),
		TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		BrowserWSEndpoint: getEnv("BROWSER_WS_ENDPOINT", ""),
		ChromeBin:         getEnv("CHROME_BIN", ""),

		ScrapeInterval:   getEnvSeconds("SCRAPE_INTERVAL", 3600),
		ConcurrencyLimit: getEnvInt("CONCURRENCY_LIMIT", 2),
		MinPrice:         int64(getEnvInt("MIN_PRICE", 100000)),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		RetryDelay:       getEnvSeconds("RETRY_DELAY", 5),
		NavTimeout:       getEnvSeconds("NAV_TIMEOUT", 90),
		StartJitter:      time.Duration(getEnvInt("START_JITTER_MS", 1500)) * time.Millisecond,

		LinksFile:   getEnv("LINKS_FILE", "links"),
		TriggerFile: getEnv("TRIGGER_FILE", "trigger.flag"),
		SitesFile:   getEnv("SITES_FILE", "sites.yaml"),
		DumpDir:     getEnv("DEBUG_DUMP_DIR", "."),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		DBDriver:     getEnv("DB_DRIVER", "postgres"),
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://user:password@db:5432/scraper?sslmode=disable"),
		MongoURI:     getEnv("MONGODB_URI", ""),
		MongoDB:      getEnv("MONGO_DB_NAME", "imobot"),

		ControlAddr:     getEnv("CONTROL_ADDR", ""),
		ControlUser:     getEnv("CONTROL_USER", ""),
		ControlPassword: getEnv("CONTROL_PASSWORD", ""),
		ReportCSVPath:   getEnv("REPORT_CSV_PATH", ""),
		LogFile:         getEnv("LOG_FILE", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// NotificationsEnabled reports whether Telegram credentials are present.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
