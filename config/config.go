package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	"vesselwatch/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	CORSOrigins []string

	// Detection
	TestMode              bool
	IdleDriftMeters       float64
	IdleThreshold         time.Duration
	HeartbeatInterval     time.Duration
	OfflineThreshold      time.Duration
	ReconnectingThreshold time.Duration
	StatusCheckInterval   time.Duration
	GeofenceFile          string
	LaneQueueSize         int

	// Alert presentation
	DedupWindow    time.Duration
	DedupRetention time.Duration
	CueAsset       string

	// Vessel registry
	VesselRefreshInterval time.Duration

	// Event log retention, zero keeps everything
	EventRetention time.Duration

	// Cross-instance fan-out
	EventBusEnabled bool
	EventBusChannel string
	IngestEnabled   bool

	// MQTT position ingest
	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string

	// RabbitMQ violation export
	AMQPURL string

	// Firebase Config
	FirebaseCredentials string
	PushTopic           string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	SMSDailyLimit     int

	// App Settings
	RateLimitRequest int
	RateLimitWindow  int // minutes
}

func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/vesselwatch"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),

		// Detection
		TestMode:              getEnvAsBool("TEST_MODE", false),
		IdleDriftMeters:       getEnvAsFloat("IDLE_DRIFT_METERS", 25),
		IdleThreshold:         getEnvAsDuration("IDLE_THRESHOLD", 15*time.Minute),
		HeartbeatInterval:     getEnvAsDuration("HEARTBEAT_INTERVAL", time.Minute),
		OfflineThreshold:      getEnvAsDuration("OFFLINE_THRESHOLD", 480*time.Second),
		ReconnectingThreshold: getEnvAsDuration("RECONNECTING_THRESHOLD", 600*time.Second),
		StatusCheckInterval:   getEnvAsDuration("STATUS_CHECK_INTERVAL", 60*time.Second),
		GeofenceFile:          getEnv("GEOFENCE_FILE", ""),
		LaneQueueSize:         getEnvAsInt("LANE_QUEUE_SIZE", 256),

		DedupWindow:    getEnvAsDuration("DEDUP_WINDOW", services.DefaultDedupWindow),
		DedupRetention: getEnvAsDuration("DEDUP_RETENTION", services.DefaultDedupRetention),
		CueAsset:       getEnv("ALERT_CUE_ASSET", "/sounds/alert.mp3"),

		VesselRefreshInterval: getEnvAsDuration("VESSEL_REFRESH_INTERVAL", 5*time.Minute),

		EventRetention: getEnvAsDuration("EVENT_RETENTION", 180*24*time.Hour),

		EventBusEnabled: getEnvAsBool("EVENT_BUS_ENABLED", false),
		EventBusChannel: getEnv("EVENT_BUS_CHANNEL", services.DefaultBusChannel),
		IngestEnabled:   getEnvAsBool("INGEST_ENABLED", true),

		MQTTBrokerURL: getEnv("MQTT_BROKER_URL", ""),
		MQTTTopic:     getEnv("MQTT_TOPIC", ""),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),

		AMQPURL: getEnv("AMQP_URL", ""),

		// Firebase
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		PushTopic:           getEnv("PUSH_TOPIC", "boundary-violations"),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
		SMSDailyLimit:     getEnvAsInt("SMS_DAILY_LIMIT", 10),

		// App Settings
		RateLimitRequest: getEnvAsInt("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:  getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 1),
	}

	if cfg.TestMode {
		cfg.IdleThreshold = time.Minute
	}
	return cfg
}

// DetectionConfig converts the thresholds into state machine settings.
// Offline and reconnecting thresholds are expressed as missed heartbeats.
func (c *Config) DetectionConfig() services.DetectionConfig {
	interval := c.HeartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}

	return services.DetectionConfig{
		IdleDriftMeters:         c.IdleDriftMeters,
		IdleThreshold:           c.IdleThreshold,
		HeartbeatInterval:       interval,
		OfflineAfterMissed:      missedBeats(c.OfflineThreshold, interval, 8),
		ReconnectingAfterMissed: missedBeats(c.ReconnectingThreshold, interval, 10),
	}
}

func missedBeats(threshold, interval time.Duration, fallback int) int {
	if threshold <= 0 {
		return fallback
	}
	n := int(threshold / interval)
	if n < 1 {
		return 1
	}
	return n
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Warnf("Invalid REDIS_URL, using localhost: %v", err)
		// Fallback to default config
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opt)
	return client
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s", "15m") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	logrus.Warnf("Invalid duration for %s: %q", key, value)
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
