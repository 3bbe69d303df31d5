package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port      string `yaml:"port"`
		NotifyURL string `yaml:"notify_url"` // optional downstream consumer notified on completion
		PublicURL string `yaml:"public_url"` // base URL the render provider calls back on
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	Script struct {
		Addr                  string  `yaml:"addr"`
		APIKey                string  `yaml:"api_key"`
		Model                 string  `yaml:"model"`
		Temperature           float64 `yaml:"temperature"`
		FallbackSingleSection bool    `yaml:"fallback_single_section"`
	} `yaml:"script"`
	Speech struct {
		Addr    string       `yaml:"addr"`
		APIKey  string       `yaml:"api_key"`
		VoiceID string       `yaml:"voice_id"`
		Model   string       `yaml:"model"`
		Profile VoiceProfile `yaml:"profile"`
	} `yaml:"speech"`
	Stock struct {
		Addr   string `yaml:"addr"`
		APIKey string `yaml:"api_key"`
	} `yaml:"stock"`
	Render struct {
		Addr            string `yaml:"addr"`
		APIKey          string `yaml:"api_key"`
		PollIntervalSec int    `yaml:"poll_interval_seconds"`
		PollAttempts    int    `yaml:"poll_attempts"`
	} `yaml:"render"`
}

// VoiceProfile groups the provider tuning constants for speech synthesis so the
// values live in one named place instead of being scattered through call sites.
type VoiceProfile struct {
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	SpeakerBoost    bool    `yaml:"speaker_boost"`
}

var AppConfig *Config

func InitConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	applyDefaults(AppConfig)
	applyEnvOverrides(AppConfig)
}

func applyDefaults(c *Config) {
	if c.Render.PollIntervalSec <= 0 {
		c.Render.PollIntervalSec = 5
	}
	if c.Render.PollAttempts <= 0 {
		c.Render.PollAttempts = 120
	}
	if c.Script.Model == "" {
		c.Script.Model = "gpt-4o-mini"
	}
	if c.Speech.Model == "" {
		c.Speech.Model = "eleven_multilingual_v2"
	}
	if c.Speech.Profile == (VoiceProfile{}) {
		c.Speech.Profile = VoiceProfile{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.3,
			SpeakerBoost:    true,
		}
	}
}

// Secrets may come from the environment (godotenv in main loads .env locally);
// env values win over the yaml file.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v := os.Getenv("SCRIPT_API_KEY"); v != "" {
		c.Script.APIKey = v
	}
	if v := os.Getenv("SPEECH_API_KEY"); v != "" {
		c.Speech.APIKey = v
	}
	if v := os.Getenv("STOCK_API_KEY"); v != "" {
		c.Stock.APIKey = v
	}
	if v := os.Getenv("RENDER_API_KEY"); v != "" {
		c.Render.APIKey = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.MinIO.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.MinIO.SecretKey = v
	}
}
