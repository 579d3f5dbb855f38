package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings holds everything the server reads from the environment.
type Settings struct {
	Port        string
	Environment string
	Domain      string
	LogLevel    string

	MongoURI      string
	MongoDatabase string

	RedisAddress   string
	RedisPassword  string
	IssueLimitKey  string
	IssueDailyCap  int
	ImageLimitKey  string
	ImageDailyCap  int
	MaxImageBytes  int64
	ChangesChannel string

	JWTSecret string

	GeminiAPIKey         string
	GeminiModel          string
	GeminiBaseURL        string
	ModerationMaxRetries uint64
	ModerationBaseDelay  time.Duration

	GCSBucket string
	SentryDSN string

	PrioritySchedule string

	AdminEmail    string
	AdminPassword string
}

// IsProduction reports whether cookies should be marked secure.
func (s Settings) IsProduction() bool {
	return s.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("go_env", "development")
	v.SetDefault("log_level", "debug")
	v.SetDefault("mongodb_database", "civicsync")
	v.SetDefault("redis_address", "localhost:6379")
	v.SetDefault("redis_queue_for_issue_limit", "issue-limit")
	v.SetDefault("issue_daily_limit", 10)
	v.SetDefault("redis_queue_for_image_limit", "image-limit")
	v.SetDefault("image_daily_limit", 50)
	v.SetDefault("max_image_bytes", 10<<20)
	v.SetDefault("issue_changes_channel", "issues:changes")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("moderation_max_retries", 3)
	v.SetDefault("moderation_base_delay", "2s")
	v.SetDefault("priority_schedule", "@every 15m")
}

// LoadSettings reads .env (if present), an optional yaml file and the
// process environment, in increasing order of precedence.
func LoadSettings(file string) Settings {
	if err := godotenv.Load(); err != nil {
		logrus.WithField("prefix", "config").Debug("No .env file found")
	}

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			logrus.WithField("prefix", "config").Infof("No config file %s, reading config from env", file)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return Settings{
		Port:                 v.GetString("port"),
		Environment:          v.GetString("go_env"),
		Domain:               v.GetString("domain"),
		LogLevel:             v.GetString("log_level"),
		MongoURI:             v.GetString("mongodb_uri"),
		MongoDatabase:        v.GetString("mongodb_database"),
		RedisAddress:         v.GetString("redis_address"),
		RedisPassword:        v.GetString("redis_password"),
		IssueLimitKey:        v.GetString("redis_queue_for_issue_limit"),
		IssueDailyCap:        v.GetInt("issue_daily_limit"),
		ImageLimitKey:        v.GetString("redis_queue_for_image_limit"),
		ImageDailyCap:        v.GetInt("image_daily_limit"),
		MaxImageBytes:        v.GetInt64("max_image_bytes"),
		ChangesChannel:       v.GetString("issue_changes_channel"),
		JWTSecret:            v.GetString("jwt_secret"),
		GeminiAPIKey:         v.GetString("gemini_api_key"),
		GeminiModel:          v.GetString("gemini_model"),
		GeminiBaseURL:        v.GetString("gemini_base_url"),
		ModerationMaxRetries: v.GetUint64("moderation_max_retries"),
		ModerationBaseDelay:  v.GetDuration("moderation_base_delay"),
		GCSBucket:            v.GetString("gcs_bucket"),
		SentryDSN:            v.GetString("sentry_dsn"),
		PrioritySchedule:     v.GetString("priority_schedule"),
		AdminEmail:           v.GetString("admin_email"),
		AdminPassword:        v.GetString("admin_password"),
	}
}
