package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"buscacliente/models"
	"buscacliente/utils"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// Daily outbound cap. Scope is "global" or "tenant".
	DailySendLimit int    `json:"daily_send_limit"`
	SendCapScope   string `json:"send_cap_scope"`

	SchedulerBatchSize int           `json:"scheduler_batch_size"`
	SchedulerInterval  time.Duration `json:"scheduler_interval"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`

	TwilioAccountSID   string `json:"twilio_account_sid"`
	TwilioAuthToken    string `json:"-"`
	TwilioFromWhatsApp string `json:"twilio_from_whatsapp"`

	// InternalAPIToken guards the management API. Empty disables the check.
	InternalAPIToken string `json:"-"`

	RateLimitWebhook int         `json:"rate_limit_webhook"`
	Redis            RedisConfig `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "buscacliente"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		DailySendLimit: getEnvAsInt("DAILY_SEND_LIMIT", 99),
		SendCapScope:   getEnv("SEND_CAP_SCOPE", utils.CapScopeGlobal),

		SchedulerBatchSize: getEnvAsInt("SCHEDULER_BATCH_SIZE", 50),
		SchedulerInterval:  time.Duration(getEnvAsInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", ""),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromWhatsApp: getEnv("TWILIO_FROM_WHATSAPP", ""),

		InternalAPIToken: getEnv("INTERNAL_API_TOKEN", ""),

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 120),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.SendCapScope != utils.CapScopeGlobal && AppConfig.SendCapScope != utils.CapScopeTenant {
		return fmt.Errorf("SEND_CAP_SCOPE must be %q or %q", utils.CapScopeGlobal, utils.CapScopeTenant)
	}
	if AppConfig.DailySendLimit < 1 {
		return fmt.Errorf("DAILY_SEND_LIMIT must be positive")
	}
	if AppConfig.Environment == "production" && AppConfig.InternalAPIToken == "" {
		return fmt.Errorf("INTERNAL_API_TOKEN is required in production")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	// TranslateError turns driver unique-violation errors into
	// gorm.ErrDuplicatedKey, which the webhook dedup path relies on.
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
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

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateModels(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateModels creates or updates the schema for every model.
func MigrateModels(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Company{},
		&models.Integration{},
		&models.Lead{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.Enrollment{},
		&models.Message{},
	); err != nil {
		return err
	}

	// At most one open enrollment per (lead, sequence). A partial index
	// keeps finished rows out of the way so the pair can re-enroll.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollment_open_pair
		ON enrollments (lead_id, sequence_id)
		WHERE status IN ('active', 'paused')`).Error
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
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
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Daily send limit: %d (%s scope)", AppConfig.DailySendLimit, AppConfig.SendCapScope)
	log.Printf("Scheduler: batch=%d interval=%s", AppConfig.SchedulerBatchSize, AppConfig.SchedulerInterval)
}
