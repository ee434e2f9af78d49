package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                     string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	TotalRounds              int
	WritingDurationSeconds   int
	VotingDurationSeconds    int
	RevealDurationSeconds    int
	ResultsDurationSeconds   int
	AITimeoutSeconds         int
	AIConcurrency            int
	HeartbeatThrottleSeconds int
	HostStaleSeconds         int
	InactiveSeconds          int
	SweepIntervalSeconds     int
	StreamTickMillis         int
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	OpenAIAPIKey             string
	OpenAIModel              string
	OpenAIBaseURL            string
	AIInputMicrosPer1K       int64
	AIOutputMicrosPer1K      int64
}

func Default() Config {
	return Config{
		Port:                     "8080",
		TotalRounds:              3,
		WritingDurationSeconds:   90,
		VotingDurationSeconds:    25,
		RevealDurationSeconds:    8,
		ResultsDurationSeconds:   0,
		AITimeoutSeconds:         20,
		AIConcurrency:            4,
		HeartbeatThrottleSeconds: 15,
		HostStaleSeconds:         30,
		InactiveSeconds:          45,
		SweepIntervalSeconds:     10,
		StreamTickMillis:         1000,
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		OpenAIModel:              "gpt-4o-mini",
		OpenAIBaseURL:            "https://api.openai.com/v1",
		AIInputMicrosPer1K:       150,
		AIOutputMicrosPer1K:      600,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	positiveInt("TOTAL_ROUNDS", &cfg.TotalRounds)
	nonNegativeInt("WRITING_SECONDS", &cfg.WritingDurationSeconds)
	nonNegativeInt("VOTING_SECONDS", &cfg.VotingDurationSeconds)
	nonNegativeInt("REVEAL_SECONDS", &cfg.RevealDurationSeconds)
	nonNegativeInt("ROUND_RESULTS_SECONDS", &cfg.ResultsDurationSeconds)
	positiveInt("AI_TIMEOUT_SECONDS", &cfg.AITimeoutSeconds)
	positiveInt("AI_CONCURRENCY", &cfg.AIConcurrency)
	positiveInt("HEARTBEAT_THROTTLE_SECONDS", &cfg.HeartbeatThrottleSeconds)
	positiveInt("HOST_STALE_SECONDS", &cfg.HostStaleSeconds)
	positiveInt("INACTIVE_SECONDS", &cfg.InactiveSeconds)
	positiveInt("SWEEP_INTERVAL_SECONDS", &cfg.SweepIntervalSeconds)
	positiveInt("STREAM_TICK_MS", &cfg.StreamTickMillis)
	positiveInt("DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns)
	positiveInt("DB_MAX_IDLE_CONNS", &cfg.DBMaxIdleConns)
	positiveInt("DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifetimeSeconds)
	positiveInt("DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleTimeSeconds)
	if raw := os.Getenv("OPENAI_API_KEY"); raw != "" {
		cfg.OpenAIAPIKey = raw
	}
	if raw := os.Getenv("OPENAI_MODEL"); raw != "" {
		cfg.OpenAIModel = raw
	}
	if raw := os.Getenv("OPENAI_BASE_URL"); raw != "" {
		cfg.OpenAIBaseURL = raw
	}
	if raw := os.Getenv("AI_INPUT_MICROS_PER_1K"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value >= 0 {
			cfg.AIInputMicrosPer1K = value
		}
	}
	if raw := os.Getenv("AI_OUTPUT_MICROS_PER_1K"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value >= 0 {
			cfg.AIOutputMicrosPer1K = value
		}
	}
	return cfg
}

func positiveInt(key string, dest *int) {
	if raw := os.Getenv(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			*dest = value
		}
	}
}

// nonNegativeInt accepts zero, which disables the matching phase timer.
func nonNegativeInt(key string, dest *int) {
	if raw := os.Getenv(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			*dest = value
		}
	}
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func (c Config) WritingDuration() time.Duration { return seconds(c.WritingDurationSeconds) }
func (c Config) VotingDuration() time.Duration  { return seconds(c.VotingDurationSeconds) }
func (c Config) RevealDuration() time.Duration  { return seconds(c.RevealDurationSeconds) }
func (c Config) ResultsDuration() time.Duration { return seconds(c.ResultsDurationSeconds) }
func (c Config) AITimeout() time.Duration       { return seconds(c.AITimeoutSeconds) }
func (c Config) HeartbeatThrottle() time.Duration {
	return seconds(c.HeartbeatThrottleSeconds)
}
func (c Config) HostStaleAfter() time.Duration { return seconds(c.HostStaleSeconds) }
func (c Config) InactiveAfter() time.Duration  { return seconds(c.InactiveSeconds) }
func (c Config) SweepInterval() time.Duration  { return seconds(c.SweepIntervalSeconds) }
func (c Config) StreamTick() time.Duration {
	return time.Duration(c.StreamTickMillis) * time.Millisecond
}
