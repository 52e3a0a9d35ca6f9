package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the chat service. Values come
// from built-in defaults, then an optional YAML file, then the environment.
type Config struct {
	BindAddr         string        `yaml:"bind_addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`

	DataDir     string `yaml:"data_dir"`
	StoreMode   string `yaml:"store_mode"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`

	TempDir        string        `yaml:"temp_dir"`
	TempTTL        time.Duration `yaml:"temp_ttl"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`

	HistoryLimit     int `yaml:"history_limit"`
	ProfileMaxChars  int `yaml:"profile_max_chars"`
	TitleMaxChars    int `yaml:"title_max_chars"`
	DocumentMaxChars int `yaml:"document_max_chars"`

	LLMProvider      string   `yaml:"llm_provider"`
	OpenAIAPIKey     string   `yaml:"openai_api_key"`
	OpenAIBaseURL    string   `yaml:"openai_base_url"`
	AnthropicAPIKey  string   `yaml:"anthropic_api_key"`
	AnthropicBaseURL string   `yaml:"anthropic_base_url"`
	ModelText        string   `yaml:"model_text"`
	ModelChoices     []string `yaml:"model_choices"`
	ModelSTT         string   `yaml:"model_stt"`
	ModelTTS         string   `yaml:"model_tts"`
	ModelImage       string   `yaml:"model_image"`
	TTSDefaultVoice  string   `yaml:"tts_default_voice"`
	TTSVoices        []string `yaml:"tts_voices"`

	SearchProvider  string        `yaml:"search_provider"`
	SearchResults   int           `yaml:"search_results"`
	PreviewTimeout  time.Duration `yaml:"preview_timeout"`
	PreviewMaxChars int           `yaml:"preview_max_chars"`
	PreviewCacheTTL time.Duration `yaml:"preview_cache_ttl"`

	OCRLang       string `yaml:"ocr_lang"`
	OCRDPI        int    `yaml:"ocr_dpi"`
	PDFToTextPath string `yaml:"pdftotext_path"`
	PDFToPPMPath  string `yaml:"pdftoppm_path"`
	TesseractPath string `yaml:"tesseract_path"`

	// ConfigFile is the YAML file that was applied, if any.
	ConfigFile string `yaml:"-"`
	// OpenAIKeySource names where the OpenAI key was found.
	OpenAIKeySource string `yaml:"-"`
}

func defaults() Config {
	return Config{
		BindAddr:         ":8000",
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "cheapchat",
		DataDir:          defaultDataDir(),
		StoreMode:        "auto",
		TempDir:          filepath.Join(os.TempDir(), "cheapchat"),
		TempTTL:          300 * time.Second,
		MaxUploadBytes:   25 << 20,
		HistoryLimit:     60,
		ProfileMaxChars:  800,
		TitleMaxChars:    60,
		DocumentMaxChars: 50000,
		LLMProvider:      "auto",
		ModelText:        "gpt-5-mini",
		ModelChoices:     []string{"gpt-4o-mini", "gpt-4o", "gpt-5-mini", "gpt-5", "gpt-5-large"},
		ModelSTT:         "gpt-4o-mini-transcribe",
		ModelTTS:         "gpt-4o-mini-tts",
		ModelImage:       "gpt-image-1",
		TTSDefaultVoice:  "alloy",
		TTSVoices:        []string{"alloy", "verse", "coral", "amber", "breeze", "cobalt", "sol"},
		SearchProvider:   "duckduckgo",
		SearchResults:    5,
		PreviewTimeout:   6 * time.Second,
		PreviewMaxChars:  800,
		PreviewCacheTTL:  10 * time.Minute,
		OCRLang:          "pol+eng",
		OCRDPI:           250,
		PDFToTextPath:    "pdftotext",
		PDFToPPMPath:     "pdftoppm",
		TesseractPath:    "tesseract",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".cheapchat")
	}
	return filepath.Join(home, ".config", "cheapchat")
}

// Load reads the optional YAML file and environment variables and applies
// safe defaults.
func Load() (Config, error) {
	cfg := defaults()
	cfg.DataDir = envOrDefault("CHEAPCHAT_DATA_DIR", cfg.DataDir)

	path, explicit := configFilePath(cfg.DataDir)
	if path != "" {
		if err := applyYAML(&cfg, path, explicit); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "memory.sqlite")
	}
	if cfg.OpenAIAPIKey != "" && cfg.OpenAIKeySource == "" {
		cfg.OpenAIKeySource = "config"
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey, cfg.OpenAIKeySource = discoverKeyFiles(defaultKeyFiles)
	}
	if !containsFold(cfg.ModelChoices, cfg.ModelText) {
		cfg.ModelChoices = append([]string{cfg.ModelText}, cfg.ModelChoices...)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFilePath(dataDir string) (string, bool) {
	if p := strings.TrimSpace(os.Getenv("CHEAPCHAT_CONFIG")); p != "" {
		return p, true
	}
	p := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p, false
	}
	return "", false
}

func applyYAML(cfg *Config, path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func applyEnv(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.BindAddr = ":" + port
	}
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.StoreMode = strings.ToLower(envOrDefault("STORE_MODE", cfg.StoreMode))
	cfg.SQLitePath = envOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.TempDir = envOrDefault("TEMP_DIR", cfg.TempDir)
	cfg.LLMProvider = strings.ToLower(envOrDefault("LLM_PROVIDER", cfg.LLMProvider))
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicBaseURL = envOrDefault("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.ModelText = envOrDefault("MODEL_TEXT", cfg.ModelText)
	cfg.ModelChoices = listFromEnv("MODEL_CHOICES", cfg.ModelChoices)
	cfg.ModelSTT = envOrDefault("MODEL_STT", cfg.ModelSTT)
	cfg.ModelTTS = envOrDefault("MODEL_TTS", cfg.ModelTTS)
	cfg.ModelImage = envOrDefault("MODEL_IMAGE", cfg.ModelImage)
	cfg.TTSDefaultVoice = envOrDefault("TTS_DEFAULT_VOICE", cfg.TTSDefaultVoice)
	cfg.TTSVoices = listFromEnv("TTS_VOICES", cfg.TTSVoices)
	cfg.SearchProvider = strings.ToLower(envOrDefault("SEARCH_PROVIDER", cfg.SearchProvider))
	cfg.OCRLang = envOrDefault("OCR_LANG", cfg.OCRLang)
	cfg.PDFToTextPath = envOrDefault("PDFTOTEXT_PATH", cfg.PDFToTextPath)
	cfg.PDFToPPMPath = envOrDefault("PDFTOPPM_PATH", cfg.PDFToPPMPath)
	cfg.TesseractPath = envOrDefault("TESSERACT_PATH", cfg.TesseractPath)

	if key, source := discoverKeyEnv(); key != "" {
		cfg.OpenAIAPIKey, cfg.OpenAIKeySource = key, source
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return err
	}
	if cfg.TempTTL, err = durationFromEnv("TEMP_TTL", cfg.TempTTL); err != nil {
		return err
	}
	if cfg.MaxUploadBytes, err = int64FromEnv("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes); err != nil {
		return err
	}
	if cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return err
	}
	if cfg.ProfileMaxChars, err = intFromEnv("PROFILE_MAX_CHARS", cfg.ProfileMaxChars); err != nil {
		return err
	}
	if cfg.TitleMaxChars, err = intFromEnv("TITLE_MAX_CHARS", cfg.TitleMaxChars); err != nil {
		return err
	}
	if cfg.DocumentMaxChars, err = intFromEnv("DOCUMENT_MAX_CHARS", cfg.DocumentMaxChars); err != nil {
		return err
	}
	if cfg.SearchResults, err = intFromEnv("SEARCH_RESULTS", cfg.SearchResults); err != nil {
		return err
	}
	if cfg.PreviewTimeout, err = durationFromEnv("PREVIEW_TIMEOUT", cfg.PreviewTimeout); err != nil {
		return err
	}
	if cfg.PreviewMaxChars, err = intFromEnv("PREVIEW_MAX_CHARS", cfg.PreviewMaxChars); err != nil {
		return err
	}
	if cfg.PreviewCacheTTL, err = durationFromEnv("PREVIEW_CACHE_TTL", cfg.PreviewCacheTTL); err != nil {
		return err
	}
	if cfg.OCRDPI, err = intFromEnv("OCR_DPI", cfg.OCRDPI); err != nil {
		return err
	}
	return nil
}

func validate(cfg Config) error {
	switch cfg.StoreMode {
	case "auto", "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("STORE_MODE must be one of auto, sqlite, postgres, memory")
	}
	if cfg.StoreMode == "postgres" && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_MODE=postgres")
	}
	switch cfg.LLMProvider {
	case "auto", "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of auto, openai, anthropic, mock")
	}
	switch cfg.SearchProvider {
	case "duckduckgo", "mock", "off":
	default:
		return fmt.Errorf("SEARCH_PROVIDER must be one of duckduckgo, mock, off")
	}
	if cfg.TempTTL < time.Second {
		return fmt.Errorf("TEMP_TTL must be at least 1s")
	}
	if cfg.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.ProfileMaxChars <= 0 || cfg.TitleMaxChars <= 0 || cfg.DocumentMaxChars <= 0 {
		return fmt.Errorf("PROFILE_MAX_CHARS, TITLE_MAX_CHARS and DOCUMENT_MAX_CHARS must be positive")
	}
	if cfg.SearchResults <= 0 || cfg.SearchResults > 20 {
		return fmt.Errorf("SEARCH_RESULTS must be between 1 and 20")
	}
	if cfg.PreviewTimeout <= 0 {
		return fmt.Errorf("PREVIEW_TIMEOUT must be positive")
	}
	if cfg.OCRDPI < 72 || cfg.OCRDPI > 600 {
		return fmt.Errorf("OCR_DPI must be between 72 and 600")
	}
	if len(cfg.TTSVoices) == 0 {
		return fmt.Errorf("TTS_VOICES must not be empty")
	}
	if !containsFold(cfg.TTSVoices, cfg.TTSDefaultVoice) {
		return fmt.Errorf("TTS_DEFAULT_VOICE %q is not in TTS_VOICES", cfg.TTSDefaultVoice)
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func listFromEnv(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
