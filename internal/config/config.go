package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the circulation core reads. Values come from
// the environment with sensible local-dev defaults; only DATABASE_URL is
// required.
type Config struct {
	ServerAddr  string
	DatabaseURL string

	// Circulation policy.
	DefaultReturnPeriodDays int
	MaxConcurrentItems      int
	MaxPeriodExtensions     int
	ExtensionPeriodDays     int

	// Fine policy.
	GracePeriodDays    int
	DailyFineRate      float64
	DamagedBaseFine    float64
	LostBaseFine       float64
	MaxOutstandingFine float64 // 0 disables the fine-threshold issue block

	// Sweep scheduling.
	OverdueSweepInterval  time.Duration
	ReminderSweepInterval time.Duration
	ReminderLookAheadDays int
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		ServerAddr:  getenv("SERVER_ADDR", ":8080"),
		DatabaseURL: must("DATABASE_URL"),

		DefaultReturnPeriodDays: getint("DEFAULT_RETURN_PERIOD_DAYS", 14),
		MaxConcurrentItems:      getint("MAX_CONCURRENT_ITEMS", 5),
		MaxPeriodExtensions:     getint("MAX_PERIOD_EXTENSIONS", 2),
		ExtensionPeriodDays:     getint("EXTENSION_PERIOD_DAYS", 7),

		GracePeriodDays:    getint("GRACE_PERIOD_DAYS", 2),
		DailyFineRate:      getfloat("DAILY_FINE_RATE", 5),
		DamagedBaseFine:    getfloat("DAMAGED_BASE_FINE", 50),
		LostBaseFine:       getfloat("LOST_BASE_FINE", 200),
		MaxOutstandingFine: getfloat("MAX_OUTSTANDING_FINE", 0),

		OverdueSweepInterval:  getduration("OVERDUE_SWEEP_INTERVAL", 24*time.Hour),
		ReminderSweepInterval: getduration("REMINDER_SWEEP_INTERVAL", 24*time.Hour),
		ReminderLookAheadDays: getint("REMINDER_LOOKAHEAD_DAYS", 2),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return v
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] config: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getfloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[WARN] config: invalid %s=%q, using default %g", key, v, def)
		return def
	}
	return f
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] config: invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}
