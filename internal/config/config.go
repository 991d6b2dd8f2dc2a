package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config enthält alle Konfigurationseinstellungen
type Config struct {
	// Server-Einstellungen
	ServerPort string `json:"server_port"`
	StaticPath string `json:"static_path"`
	LogMode    string `json:"log_mode"`

	// Speicher
	StorageBackend string `json:"storage_backend"` // sqlite, redis, memory
	DatabasePath   string `json:"database_path"`
	RedisAddr      string `json:"redis_addr"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        int    `json:"redis_db"`

	// KI-Dienst
	GeminiURL      string `json:"gemini_url"`
	GeminiAPIKey   string `json:"gemini_api_key"`
	TextModel      string `json:"text_model"`
	ImageModel     string `json:"image_model"`
	SpeechModel    string `json:"speech_model"`
	Voice          string `json:"voice"`
	RequestTimeout int    `json:"request_timeout_seconds"`

	// Lern-Einstellungen
	DefaultTargetLanguage string `json:"default_target_language"`
	MaxDocumentChars      int    `json:"max_document_chars"`
}

// Default gibt die Standardkonfiguration zurück
func Default() *Config {
	return &Config{
		ServerPort:            "8080",
		StaticPath:            "./web/static",
		LogMode:               "development",
		StorageBackend:        "sqlite",
		DatabasePath:          "sprachlupe.db",
		RedisAddr:             "localhost:6379",
		GeminiURL:             "https://generativelanguage.googleapis.com/v1beta",
		TextModel:             "gemini-2.5-flash",
		ImageModel:            "gemini-2.5-flash-image",
		SpeechModel:           "gemini-2.5-flash-preview-tts",
		Voice:                 "Kore",
		RequestTimeout:        120,
		DefaultTargetLanguage: "English",
		MaxDocumentChars:      4000,
	}
}

// Load lädt die Konfiguration aus einer Datei und überschreibt sie mit Umgebungsvariablen.
// Auch bei einem Fehler wird eine nutzbare Konfiguration zurückgegeben.
func Load(path string) (*Config, error) {
	cfg := Default()
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err == nil {
		err = json.Unmarshal(data, cfg)
	}
	cfg.applyEnv()
	return cfg, err
}

func (c *Config) applyEnv() {
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiURL = getEnv("SPRACHLUPE_GEMINI_URL", c.GeminiURL)
	c.TextModel = getEnv("SPRACHLUPE_TEXT_MODEL", c.TextModel)
	c.ImageModel = getEnv("SPRACHLUPE_IMAGE_MODEL", c.ImageModel)
	c.SpeechModel = getEnv("SPRACHLUPE_SPEECH_MODEL", c.SpeechModel)
	c.ServerPort = getEnv("SPRACHLUPE_PORT", c.ServerPort)
	c.StorageBackend = getEnv("SPRACHLUPE_STORAGE", c.StorageBackend)
	c.DatabasePath = getEnv("SPRACHLUPE_DB_PATH", c.DatabasePath)
	c.RedisAddr = getEnv("SPRACHLUPE_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("SPRACHLUPE_REDIS_PASSWORD", c.RedisPassword)
	c.LogMode = getEnv("SPRACHLUPE_LOG_MODE", c.LogMode)
	if v, err := strconv.Atoi(os.Getenv("SPRACHLUPE_REDIS_DB")); err == nil {
		c.RedisDB = v
	}
}

// Timeout liefert das Zeitlimit für einzelne KI-Anfragen
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// Save speichert die Konfiguration in eine Datei
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
