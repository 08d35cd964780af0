package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/presence.db"; empty disables event persistence

	// Identity boundary (HS256 secret shared with the auth service)
	AuthSecret string

	// Model assets
	ModelBaseURL string   // e.g. "http://127.0.0.1:8000/public/models"
	ModelDir     string   // used when ModelBaseURL is empty
	ModelAssets  []string // required asset names, all must load
	DetectorAddr string   // gRPC face detector; empty = in-process cascade

	// Cascade tuning
	MinFaceSize      int
	MaxFaceSize      int
	FaceQualityFloor float64

	// Camera
	CameraSnapshotURL string
	CameraImagePath   string // dev: still image instead of a device
	CameraMaxEdge     int
	CameraIntervalMS  int
	AutoStartCamera   bool

	// Location
	LocationMode string // "request" | "static"
	KioskLat     float64
	KioskLng     float64

	// Geofence reference points
	SitesFile string

	// Event fan-out
	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTClientID    string

	// Event retention
	EventRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)
}

// FromEnv reads PRESENCE_* variables. A .env file in the working directory,
// when present, is loaded first; variables already set win.
func FromEnv() Config {
	_ = godotenv.Load()

	addr := getenvDefault("PRESENCE_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("PRESENCE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	mode := strings.ToLower(getenvDefault("PRESENCE_LOCATION_MODE", "request"))
	if mode != "request" && mode != "static" {
		mode = "request"
	}

	assets := splitCSV(os.Getenv("PRESENCE_MODEL_ASSETS"))
	if len(assets) == 0 {
		assets = []string{"facefinder"}
	}

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   getenvDefault("PRESENCE_DB_PATH", "./data/presence.db"),

		AuthSecret: os.Getenv("PRESENCE_AUTH_SECRET"),

		ModelBaseURL: strings.TrimRight(os.Getenv("PRESENCE_MODEL_BASE_URL"), "/"),
		ModelDir:     getenvDefault("PRESENCE_MODEL_DIR", "./public/models"),
		ModelAssets:  assets,
		DetectorAddr: os.Getenv("PRESENCE_DETECTOR_ADDR"),

		MinFaceSize:      getenvInt("PRESENCE_MIN_FACE_SIZE", 40),
		MaxFaceSize:      getenvInt("PRESENCE_MAX_FACE_SIZE", 800),
		FaceQualityFloor: getenvFloat("PRESENCE_FACE_QUALITY_FLOOR", 5.0),

		CameraSnapshotURL: os.Getenv("PRESENCE_CAMERA_SNAPSHOT_URL"),
		CameraImagePath:   os.Getenv("PRESENCE_CAMERA_IMAGE_PATH"),
		CameraMaxEdge:     getenvInt("PRESENCE_CAMERA_MAX_EDGE", 640),
		CameraIntervalMS:  getenvInt("PRESENCE_CAMERA_INTERVAL_MS", 200),
		AutoStartCamera:   getenvBool("PRESENCE_AUTO_START_CAMERA", true),

		LocationMode: mode,
		KioskLat:     getenvFloat("PRESENCE_KIOSK_LAT", 0),
		KioskLng:     getenvFloat("PRESENCE_KIOSK_LNG", 0),

		SitesFile: os.Getenv("PRESENCE_SITES_FILE"),

		MQTTBroker:      os.Getenv("PRESENCE_MQTT_BROKER"),
		MQTTTopicPrefix: getenvDefault("PRESENCE_MQTT_TOPIC_PREFIX", "presence/attendance"),
		MQTTClientID:    getenvDefault("PRESENCE_MQTT_CLIENT_ID", "presence-server"),

		EventRetentionDays: getenvInt("PRESENCE_EVENT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("PRESENCE_PRUNE_INTERVAL_HOURS", 6),
	}
}

// HasKioskPosition reports whether static kiosk coordinates were configured.
func (c Config) HasKioskPosition() bool {
	return os.Getenv("PRESENCE_KIOSK_LAT") != "" && os.Getenv("PRESENCE_KIOSK_LNG") != ""
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
