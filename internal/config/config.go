// Package config loads Sheetcast configuration from the environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSurrealDB = "surrealdb"
)

// Config holds all configuration values.
type Config struct {
	// Job store
	StoreBackend string
	JobTTL       time.Duration

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// File storage
	UploadDir string
	OutputDir string

	// External tools
	YtDlpCmd      string
	FFmpegCmd     string
	BasicPitchCmd string
	MuseScoreCmd  string // empty = probe well-known locations

	// HTTP server
	HTTPAddr       string
	AllowedOrigins []string
	SubmitRate     float64 // submissions per second
	SubmitBurst    int

	// HTTP client (CLI)
	ServerURL     string
	ClientTimeout time.Duration

	// Artifact mirror; disabled when bucket is empty
	S3Bucket string
	S3Prefix string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// If SHEETCAST_CONFIG names a YAML file, its values are applied first and
// environment variables still take precedence.
func Load() Config {
	file := fileConfig{}
	if path := os.Getenv("SHEETCAST_CONFIG"); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			slog.Warn("ignoring config file", "path", path, "error", err)
		} else {
			file = loaded
		}
	}
	return load(file)
}

// LoadFile reads configuration from a YAML file overlaid with the environment.
func LoadFile(path string) (Config, error) {
	file, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	return load(file), nil
}

func load(f fileConfig) Config {
	def := func(key, fromFile, fallback string) string {
		if fromFile != "" {
			fallback = fromFile
		}
		return getEnv(key, fallback)
	}

	return Config{
		StoreBackend: def("SHEETCAST_STORE", f.Store.Backend, StoreMemory),
		JobTTL:       parseDuration(def("SHEETCAST_JOB_TTL", f.Store.TTL, "24h"), 24*time.Hour),

		SurrealDBURL:       def("SURREALDB_URL", f.SurrealDB.URL, "ws://localhost:8000/rpc"),
		SurrealDBNamespace: def("SURREALDB_NAMESPACE", f.SurrealDB.Namespace, "sheetcast"),
		SurrealDBDatabase:  def("SURREALDB_DATABASE", f.SurrealDB.Database, "jobs"),
		SurrealDBUser:      def("SURREALDB_USER", f.SurrealDB.User, "root"),
		SurrealDBPass:      def("SURREALDB_PASS", f.SurrealDB.Pass, "root"),
		SurrealDBAuthLevel: def("SURREALDB_AUTH_LEVEL", f.SurrealDB.AuthLevel, "root"),

		UploadDir: def("SHEETCAST_UPLOAD_DIR", f.Storage.UploadDir, "./uploads"),
		OutputDir: def("SHEETCAST_OUTPUT_DIR", f.Storage.OutputDir, "./outputs"),

		YtDlpCmd:      def("SHEETCAST_YTDLP", f.Tools.YtDlp, "yt-dlp"),
		FFmpegCmd:     def("SHEETCAST_FFMPEG", f.Tools.FFmpeg, "ffmpeg"),
		BasicPitchCmd: def("SHEETCAST_BASIC_PITCH", f.Tools.BasicPitch, "basic-pitch"),
		MuseScoreCmd:  def("SHEETCAST_MUSESCORE", f.Tools.MuseScore, ""),

		HTTPAddr:       def("SHEETCAST_HTTP_ADDR", f.Server.Addr, ":8000"),
		AllowedOrigins: splitList(def("SHEETCAST_ALLOWED_ORIGINS", strings.Join(f.Server.AllowedOrigins, ","), "http://localhost:3000")),
		SubmitRate:     parseFloat(def("SHEETCAST_SUBMIT_RATE", f.Server.SubmitRate, "1"), 1),
		SubmitBurst:    parseInt(def("SHEETCAST_SUBMIT_BURST", f.Server.SubmitBurst, "5"), 5),

		ServerURL:     def("SHEETCAST_SERVER_URL", f.Client.ServerURL, "http://localhost:8000"),
		ClientTimeout: parseDuration(def("SHEETCAST_CLIENT_TIMEOUT", f.Client.Timeout, "30s"), 30*time.Second),

		S3Bucket: def("SHEETCAST_S3_BUCKET", f.Mirror.Bucket, ""),
		S3Prefix: def("SHEETCAST_S3_PREFIX", f.Mirror.Prefix, "sheetcast/"),

		LogFile:  def("SHEETCAST_LOG_FILE", f.Log.File, "/tmp/sheetcast.log"),
		LogLevel: parseLogLevel(def("SHEETCAST_LOG_LEVEL", f.Log.Level, "INFO")),
	}
}

// fileConfig mirrors Config in YAML form. All values are strings so an unset
// key is distinguishable from a zero value.
type fileConfig struct {
	Store struct {
		Backend string `yaml:"backend"`
		TTL     string `yaml:"ttl"`
	} `yaml:"store"`
	SurrealDB struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"surrealdb"`
	Storage struct {
		UploadDir string `yaml:"upload_dir"`
		OutputDir string `yaml:"output_dir"`
	} `yaml:"storage"`
	Tools struct {
		YtDlp      string `yaml:"yt_dlp"`
		FFmpeg     string `yaml:"ffmpeg"`
		BasicPitch string `yaml:"basic_pitch"`
		MuseScore  string `yaml:"musescore"`
	} `yaml:"tools"`
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		SubmitRate     string   `yaml:"submit_rate"`
		SubmitBurst    string   `yaml:"submit_burst"`
	} `yaml:"server"`
	Client struct {
		ServerURL string `yaml:"server_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"client"`
	Mirror struct {
		Bucket string `yaml:"s3_bucket"`
		Prefix string `yaml:"s3_prefix"`
	} `yaml:"mirror"`
	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func readFile(path string) (fileConfig, error) {
	var f fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config %s: %w", path, err)
	}
	return f, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
