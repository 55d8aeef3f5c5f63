// Package config loads Echo's environment-variable configuration surface
// (spec §6.7), the way cmd/agent/main.go in the teacher loads provider keys
// and agent settings: godotenv.Load for a local .env file, then os.Getenv
// with documented defaults for everything else.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved set of environment-driven settings.
type Config struct {
	// HTTP front door
	Port int

	// TTS
	TTSProvider string // "rest" (default) or "lokutor"
	TTSBaseURL  string
	TTSAPIKey   string
	TTSVoiceID  string
	TTSModel    string
	TTSTimeout  time.Duration

	// LokutorTTS (alternate TTS backend, selected when TTSProvider == "lokutor")
	LokutorAPIKey string
	LokutorHost   string
	LokutorVoice  string
	LokutorLang   string

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	// STT
	STTBaseURL string
	STTAPIKey  string
	STTModel   string
	STTTimeout time.Duration

	// VoiceEngine
	ListenTimeout       time.Duration
	SilenceThreshold    float64
	SilenceDuration     time.Duration
	MaxRecordDuration   time.Duration
	ConfidenceThreshold float64
	DispatchMethod      string // "" = auto-detect, else force tmux|applescript|xdotool

	// AlertManager
	AlertRepeatInterval time.Duration
	AlertMaxRepeats     int

	// Player
	AudioSampleRate  int
	BacklogThreshold int

	// RemotePublisher (optional)
	RemoteRoomURL    string
	RemoteAPIKey     string
	RemoteAPISecret  string

	// Logging
	LogLevel string
	LogPretty bool
}

// Load reads a local .env (if present, silently ignored otherwise) and then
// overlays environment variables on top of documented defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envInt("ECHO_PORT", 8765),

		TTSProvider: envString("ECHO_TTS_PROVIDER", "rest"),
		TTSBaseURL:  envString("ECHO_TTS_BASE_URL", "https://api.elevenlabs.io"),
		TTSAPIKey:   envString("ECHO_TTS_API_KEY", ""),
		TTSVoiceID:  envString("ECHO_TTS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		TTSModel:    envString("ECHO_TTS_MODEL", "eleven_turbo_v2"),
		TTSTimeout:  envSeconds("ECHO_TTS_TIMEOUT_SECONDS", 10),

		LokutorAPIKey: envString("ECHO_LOKUTOR_API_KEY", ""),
		LokutorHost:   envString("ECHO_LOKUTOR_HOST", ""),
		LokutorVoice:  envString("ECHO_LOKUTOR_VOICE", "default"),
		LokutorLang:   envString("ECHO_LOKUTOR_LANG", "en"),

		LLMBaseURL: envString("ECHO_LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:   envString("ECHO_LLM_MODEL", "llama3.2"),
		LLMTimeout: envSeconds("ECHO_LLM_TIMEOUT_SECONDS", 10),

		STTBaseURL: envString("ECHO_STT_BASE_URL", "https://api.openai.com"),
		STTAPIKey:  envString("ECHO_STT_API_KEY", ""),
		STTModel:   envString("ECHO_STT_MODEL", "whisper-1"),
		STTTimeout: envSeconds("ECHO_STT_TIMEOUT_SECONDS", 15),

		ListenTimeout:       envSeconds("ECHO_LISTEN_TIMEOUT_SECONDS", 20),
		SilenceThreshold:    envFloat("ECHO_SILENCE_THRESHOLD", 0.01),
		SilenceDuration:     envMillis("ECHO_SILENCE_DURATION_MS", 1500),
		MaxRecordDuration:   envSeconds("ECHO_MAX_RECORD_SECONDS", 15),
		ConfidenceThreshold: envFloat("ECHO_CONFIDENCE_THRESHOLD", 0.6),
		DispatchMethod:      envString("ECHO_DISPATCH_METHOD", ""),

		AlertRepeatInterval: envSeconds("ECHO_ALERT_REPEAT_SECONDS", 30),
		AlertMaxRepeats:     envInt("ECHO_ALERT_MAX_REPEATS", 5),

		AudioSampleRate:  envInt("ECHO_AUDIO_SAMPLE_RATE", 16000),
		BacklogThreshold: envInt("ECHO_BACKLOG_THRESHOLD", 3),

		RemoteRoomURL:   envString("ECHO_REMOTE_ROOM_URL", ""),
		RemoteAPIKey:    envString("ECHO_REMOTE_API_KEY", ""),
		RemoteAPISecret: envString("ECHO_REMOTE_API_SECRET", ""),

		LogLevel:  envString("ECHO_LOG_LEVEL", "info"),
		LogPretty: envBool("ECHO_LOG_PRETTY", false),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(envInt(key, defSeconds)) * time.Second
}

func envMillis(key string, defMillis int) time.Duration {
	return time.Duration(envInt(key, defMillis)) * time.Millisecond
}
