package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config holds the application's configuration values.
type Config struct {
	AppName string `json:"appname"`
	AppEnv  string `json:"appenv"`
	AppPort uint16 `json:"appport"`
	GinMode string `json:"ginmode"`
	DBHost  string `json:"dbhost"`
	DBPort  uint16 `json:"dbport"`
	DBName  string `json:"dbname"`
	DBUSER  string `json:"dbuser"`
	DBPass  string `json:"dbpass"`

	JWTSecret string `json:"-"`
	APIToken  string `json:"-"`

	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`

	BedCount       int           `json:"bed_count"`
	TickInterval   time.Duration `json:"tick_interval"`
	StaleAfter     time.Duration `json:"stale_after"`
	ResyncInterval time.Duration `json:"resync_interval"`
	PollInterval   time.Duration `json:"poll_interval"`
	LocalCachePath string        `json:"local_cache_path"`
	DeviceID       string        `json:"device_id"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

const (
	defaultBedCount     = 11
	defaultTickMs       = 1000
	defaultStaleHours   = 12
	defaultResyncSec    = 15
	defaultLocalCache   = "bedboard-cache.db"
	defaultRedisAddress = "localhost:6379"
)

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file, and returns a singleton Config instance.
// A missing .env file is tolerated; the process environment is used as is.
func LoadConfig() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.Fatalf("Error loading .env file: %v", err)
		}
		config = FromEnv()
	})
	return config
}

// ResetConfigForTest drops the singleton so the next LoadConfig re-reads the environment.
func ResetConfigForTest() {
	config = nil
	once = sync.Once{}
}

// FromEnv builds a Config from the current process environment.
func FromEnv() *Config {
	appPort, _ := strconv.ParseUint(os.Getenv("APPPORT"), 10, 16)
	dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)

	cfg := &Config{
		AppName:        os.Getenv("APPNAME"),
		AppEnv:         os.Getenv("APPENV"),
		AppPort:        uint16(appPort),
		GinMode:        os.Getenv("GINMODE"),
		DBHost:         os.Getenv("DBHOST"),
		DBPort:         uint16(dbPort),
		DBName:         os.Getenv("DBNAME"),
		DBUSER:         os.Getenv("DBUSER"),
		DBPass:         os.Getenv("DBPASS"),
		JWTSecret:      os.Getenv("JWTSECRET"),
		APIToken:       os.Getenv("APITOKEN"),
		RedisEnabled:   os.Getenv("REDIS_ENABLED") == "true",
		RedisAddr:      envString("REDIS_ADDR", defaultRedisAddress),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		BedCount:       envInt("BED_COUNT", defaultBedCount),
		TickInterval:   time.Duration(envInt("TICK_INTERVAL_MS", defaultTickMs)) * time.Millisecond,
		StaleAfter:     time.Duration(envInt("STALE_AFTER_HOURS", defaultStaleHours)) * time.Hour,
		ResyncInterval: time.Duration(envInt("RESYNC_INTERVAL_SEC", defaultResyncSec)) * time.Second,
		PollInterval:   time.Duration(envInt("POLL_INTERVAL_SEC", 0)) * time.Second,
		LocalCachePath: envString("LOCAL_CACHE_PATH", defaultLocalCache),
		DeviceID:       os.Getenv("DEVICE_ID"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		LogFormat:      envString("LOG_FORMAT", "json"),
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
	}
	if cfg.BedCount <= 0 {
		cfg.BedCount = defaultBedCount
	}
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt falls back on unset or unparsable values.
func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// ConnectMySQL establishes a connection to a MySQL database using the configuration values.
// With APPENV=test it opens a private in-memory SQLite database instead.
func ConnectMySQL() (*gorm.DB, error) {
	cfg := LoadConfig()
	if os.Getenv("APPENV") == "test" || cfg.AppEnv == "test" {
		dsn := fmt.Sprintf("file:bedboard_%d?mode=memory&cache=shared", time.Now().UnixNano())
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.DBUSER, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}
