package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"simpleautomate/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// AutomationConfig tunes the queue processor and the date scanner
type AutomationConfig struct {
	BatchSize         int           `json:"batch_size"`
	MaxAttempts       int           `json:"max_attempts"`
	RetryBaseDelay    time.Duration `json:"retry_base_delay"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	DateTriggerDedup  bool          `json:"date_trigger_dedup"`
}

type Config struct {
	Environment    string   `json:"environment"`
	ServerPort     string   `json:"server_port"`
	FrontendURLs   []string `json:"frontend_urls"`
	AppBaseURL     string   `json:"app_base_url"`
	APIBaseURL     string   `json:"api_base_url"`
	LogLevel       string   `json:"log_level"`
	DBHost         string   `json:"db_host"`
	DBPort         string   `json:"db_port"`
	DBUser         string   `json:"db_user"`
	DBPassword     string   `json:"-"`
	DBName         string   `json:"db_name"`
	DBSSLMode      string   `json:"db_ssl_mode"`
	DBMaxIdleConns int      `json:"db_max_idle_conns"`
	DBMaxOpenConns int      `json:"db_max_open_conns"`

	JWTAccessSecret string        `json:"-"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	CronSecret      string        `json:"-"`
	TrialDays       int           `json:"trial_days"`

	StripeSecretKey     string `json:"-"`
	StripeWebhookSecret string `json:"-"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`
	ResendAPIKey string `json:"-"`
	// CampaignSendRate caps campaign emails per second
	CampaignSendRate int `json:"campaign_send_rate"`

	RateLimitMax     int `json:"rate_limit_max"`
	AuthRateLimitMax int `json:"auth_rate_limit_max"`

	Redis         RedisConfig      `json:"redis"`
	SentryDSN     string           `json:"-"`
	SweepInterval time.Duration    `json:"sweep_interval"`
	Automation    AutomationConfig `json:"automation"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "4000"),
		FrontendURLs:   splitList(getEnv("FRONTEND_URLS", "http://localhost:3000")),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:3000"),
		APIBaseURL:     getEnv("API_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "simpleautomate"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		CronSecret:      getEnv("CRON_SECRET", ""),
		TrialDays:       getEnvAsInt("TRIAL_DAYS", 7),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("EMAIL_FROM", "SimpleAutomate <hello@simpleautomate.co.uk>"),
		ResendAPIKey: getEnv("RESEND_API_KEY", ""),

		CampaignSendRate: getEnvAsInt("CAMPAIGN_SEND_RATE", 10),

		RateLimitMax:     getEnvAsInt("RATE_LIMIT_MAX", 120),
		AuthRateLimitMax: getEnvAsInt("AUTH_RATE_LIMIT_MAX", 10),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN:     getEnv("SENTRY_DSN", ""),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 0),
		Automation: AutomationConfig{
			BatchSize:         getEnvAsInt("AUTOMATION_BATCH_SIZE", 20),
			MaxAttempts:       getEnvAsInt("AUTOMATION_MAX_ATTEMPTS", 3),
			RetryBaseDelay:    getEnvAsDuration("AUTOMATION_RETRY_BASE", time.Minute),
			VisibilityTimeout: getEnvAsDuration("AUTOMATION_VISIBILITY_TIMEOUT", 10*time.Minute),
			DateTriggerDedup:  getEnvAsBool("DATE_TRIGGER_DEDUP", false),
		},
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks the values the server cannot start without
func (c Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	if c.Automation.BatchSize <= 0 {
		return fmt.Errorf("AUTOMATION_BATCH_SIZE must be positive")
	}
	if c.Automation.MaxAttempts <= 0 {
		return fmt.Errorf("AUTOMATION_MAX_ATTEMPTS must be positive")
	}
	if c.Environment == "production" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
	}
	return nil
}

// NewRedisClient builds the client shared by the rate limiter and the sweep lock
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	logrus.WithField("dsn", maskPassword(dsn)).Debug("Using connection string")

	gormConfig := &gorm.Config{}
	if AppConfig.Environment == "production" {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("Successfully connected to the database")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("Database migration completed")
	return nil
}

// MigrateDB creates or updates every table the service owns
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Contact{},
		&models.ContactTag{},
		&models.Pipeline{},
		&models.Stage{},
		&models.ContactStage{},
		&models.Task{},
		&models.Note{},
		&models.NoteRevision{},
		&models.EmailTemplate{},
		&models.EmailCampaign{},
		&models.EmailCampaignRecipient{},
		&models.Automation{},
		&models.AutomationStep{},
		&models.AutomationLog{},
		&models.AutomationScan{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := ParseDuration(valueStr)
	if err != nil {
		logrus.Warnf("Invalid duration for %s: %v", key, err)
		return fallback
	}
	return value
}

// ParseDuration accepts Go durations ("90s", "1h30m") plus a whole-day
// suffix ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment":    AppConfig.Environment,
		"server_port":    AppConfig.ServerPort,
		"database":       fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"redis":          AppConfig.Redis.Enabled,
		"sweep_interval": AppConfig.SweepInterval.String(),
		"smtp":           AppConfig.SMTPHost != "",
		"resend":         AppConfig.ResendAPIKey != "",
	}).Info("Loaded configuration")
}
