package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration read from config.toml.
type Config struct {
	Basedir   string `toml:"basedir" yaml:"basedir"`
	Mode      string `toml:"mode" yaml:"mode"`
	Port      int    `toml:"port" yaml:"port"`
	UploadDir string `toml:"uploaddir" yaml:"uploaddir"`
	BodyLimit string `toml:"bodylimit" yaml:"bodylimit"`
	// UploadRetention is how long uploaded documents are kept, e.g. "24h".
	UploadRetention string            `toml:"uploadretention" yaml:"uploadretention"`
	Servers         map[string]server `toml:"servers" yaml:"servers"`
	OCR             OCRConfig         `toml:"ocr" yaml:"ocr"`
}

type server struct {
	Database   string `toml:"database" yaml:"database"`
	DBName     string `toml:"dbname" yaml:"dbname"`
	DBUser     string `toml:"dbuser" yaml:"dbuser"`
	DBPassword string `toml:"dbpassword" yaml:"dbpassword"`
	DBHost     string `toml:"dbhost" yaml:"dbhost"`
	DBLogger   string `toml:"dblogger" yaml:"dblogger"`
}

// OCRConfig holds the Azure Computer Vision credentials.
type OCRConfig struct {
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
	APIKey   string `toml:"apikey" yaml:"apikey"`
	Language string `toml:"language" yaml:"language"`
}

// DefaultConfig returns a development configuration using a local sqlite file.
func DefaultConfig() *Config {
	return &Config{
		Basedir:         ".",
		Mode:            "development",
		Port:            5000,
		UploadDir:       "uploads",
		BodyLimit:       "20M",
		UploadRetention: "24h",
		Servers: map[string]server{
			"development": {Database: "sqlite3", DBName: "smartbill.db"},
		},
		OCR: OCRConfig{Language: "en"},
	}
}

// LoadConfig reads the configuration file at path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. Values from a .env file
// next to the config (if present) and from the environment override the OCR
// settings.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}

	envfile := filepath.Join(filepath.Dir(path), ".env")
	if err = godotenv.Load(envfile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot load %s: %w", envfile, err)
	}
	cfg.applyEnv()

	if _, err = time.ParseDuration(cfg.UploadRetention); err != nil {
		return nil, fmt.Errorf("invalid uploadretention %q: %w", cfg.UploadRetention, err)
	}
	if _, ok := cfg.Servers[cfg.Mode]; !ok {
		return nil, fmt.Errorf("no server section for mode %q", cfg.Mode)
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("SMARTBILL_OCR_ENDPOINT"); v != "" {
		cfg.OCR.Endpoint = v
	}
	if v := os.Getenv("SMARTBILL_OCR_KEY"); v != "" {
		cfg.OCR.APIKey = v
	}
}

// UploadPath returns the absolute-or-relative directory uploaded files are
// stored in.
func (cfg *Config) UploadPath() string {
	if filepath.IsAbs(cfg.UploadDir) {
		return cfg.UploadDir
	}
	return filepath.Join(cfg.Basedir, cfg.UploadDir)
}

// SQLitePath returns the database file of the current sqlite3 server. Relative
// names live in the db directory below Basedir.
func (cfg *Config) SQLitePath() string {
	name := cfg.Servers[cfg.Mode].DBName
	if name == ":memory:" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Basedir, "db", name)
}

// UploadMaxAge is the parsed UploadRetention, 24 hours when unset or invalid.
func (cfg *Config) UploadMaxAge() time.Duration {
	d, err := time.ParseDuration(cfg.UploadRetention)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}
