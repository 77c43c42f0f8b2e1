package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP surface API and websocket fanout
	HTTPHost string
	HTTPPort int

	// Tracking snapshot store
	FramesDBPath string

	// Model
	ModelParamsPath string
	GridCellsX      int
	FieldLength     float64
	FieldWidth      float64
	EvalWorkers     int // 0 means GOMAXPROCS

	// Playback: when PlaybackTo >= PlaybackFrom the process replays that
	// frame range to the fanout at PlaybackFPS.
	PlaybackFPS        float64
	PlaybackFrom       int64
	PlaybackTo         int64
	PlaybackIndividual bool

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPHost: envStr("HTTP_HOST", "0.0.0.0"),
		HTTPPort: envInt("HTTP_PORT", 8780),

		FramesDBPath: envStr("FRAMES_DB_PATH", "data/frames.db"),

		ModelParamsPath: envStr("MODEL_PARAMS_PATH", "internal/config/model_params.yaml"),
		GridCellsX:      envInt("GRID_CELLS_X", 50),
		FieldLength:     envFloat("FIELD_LENGTH", 106),
		FieldWidth:      envFloat("FIELD_WIDTH", 68),
		EvalWorkers:     envInt("EVAL_WORKERS", 0),

		PlaybackFPS:        envFloat("PLAYBACK_FPS", 5),
		PlaybackFrom:       int64(envInt("PLAYBACK_FROM", 0)),
		PlaybackTo:         int64(envInt("PLAYBACK_TO", -1)),
		PlaybackIndividual: envStr("PLAYBACK_INDIVIDUAL", "false") == "true",

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

// PlaybackEnabled reports whether a frame range was configured.
func (c *Config) PlaybackEnabled() bool {
	return c.PlaybackTo >= c.PlaybackFrom && c.PlaybackFPS > 0
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
