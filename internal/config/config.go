package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/sticker-server/internal/templates"
	"github.com/cozy-creator/sticker-server/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const (
	DBDriverSQLite = "sqlite"
	DBDriverLibSQL = "libsql"
	DBDriverPG     = "pg"
)

const stickerPrefix = "STICKER"

type Config struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`
	StickerHome string `mapstructure:"sticker_home"`
	PublicDir   string `mapstructure:"public_dir"`

	ImagesDir           string `mapstructure:"images_dir"`
	ArchivesDir         string `mapstructure:"archives_dir"`
	PromptsDir          string `mapstructure:"prompts_dir"`
	GeneratedPromptsDir string `mapstructure:"generated_prompts_dir"`

	DB         *DBConfig         `mapstructure:"db"`
	OpenAI     *OpenAIConfig     `mapstructure:"openai"`
	Generation *GenerationConfig `mapstructure:"generation"`
	Queue      *QueueConfig      `mapstructure:"queue"`
	S3         *S3Config         `mapstructure:"s3"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// GenerationConfig holds the provider defaults and the throttle parameters
// handed to every worker run. Delays are in seconds.
type GenerationConfig struct {
	Provider     string  `mapstructure:"provider"`
	Model        string  `mapstructure:"model"`
	Size         string  `mapstructure:"size"`
	Quality      string  `mapstructure:"quality"`
	InitialDelay float64 `mapstructure:"initial_delay"`
	MinDelay     float64 `mapstructure:"min_delay"`
	MaxDelay     float64 `mapstructure:"max_delay"`
	MaxAttempts  int     `mapstructure:"max_attempts"`
}

type QueueConfig struct {
	AutoStart bool `mapstructure:"auto_start"`
}

// S3Config is optional. When set, built archives are mirrored to the bucket.
type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	PublicUrl   string `mapstructure:"public_url"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

var config *Config

func InitConfig() error {
	stickerHome, err := getStickerHome()
	if err != nil {
		return err
	}

	if err := createStickerHomeDirs(stickerHome); err != nil {
		return err
	}

	viper.Set("sticker_home", stickerHome)
	for key, subdir := range dataDirs {
		dir, err := getDataDir(stickerHome, key, subdir)
		if err != nil {
			return err
		}
		viper.Set(key, dir)
	}

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(stickerHome, ".env")
	}

	configFile := viper.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(stickerHome, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	viper.SetEnvPrefix(stickerPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()
	bindEnv()
	viper.SetConfigFile(configFile)
	setDefaults(stickerHome)

	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	config = cfg
	return nil
}

func IsLoaded() bool {
	return config != nil
}

func GetConfig() *Config {
	return config
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Returns the sticker home directory path.
// It attempts to retrieve the sticker home directory from the following sources in order:
// 1. The `sticker_home` flag from viper.
// 2. The `STICKER_HOME` environment variable.
// 3. The default sticker home directory.
func getStickerHome() (string, error) {
	stickerHome := viper.GetString("sticker_home")
	if stickerHome == "" {
		stickerHome = os.Getenv("STICKER_HOME")
		if stickerHome == "" {
			stickerHome = DefaultStickerHome
		}
	}

	stickerHome, err := pathutil.ExpandPath(stickerHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand sticker home path: %w", err)
	}

	return stickerHome, nil
}

func getDataDir(stickerHome, key, subdir string) (string, error) {
	if stickerHome == "" {
		return "", ErrStickerHomeNotSet
	}

	dir := viper.GetString(key)
	if dir == "" {
		dir = filepath.Join(stickerHome, subdir)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", ErrStickerHomeExpandFailed
	}

	return dir, nil
}

func createStickerHomeDirs(stickerHome string) error {
	if err := os.MkdirAll(stickerHome, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create sticker home directory: %w", err)
	}

	for _, subdir := range dataDirs {
		dir := filepath.Join(stickerHome, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}

// bindEnv registers keys that have no default so AutomaticEnv can see them.
// The OpenAI credential is also read from the unprefixed variable.
func bindEnv() {
	_ = viper.BindEnv("openai.api_key", stickerPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", stickerPrefix+"_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = viper.BindEnv("s3.access_key", stickerPrefix+"_S3_ACCESS_KEY")
	_ = viper.BindEnv("s3.secret_key", stickerPrefix+"_S3_SECRET_KEY")
}

func setDefaults(stickerHome string) {
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("environment", "dev")

	viper.SetDefault("db.driver", DBDriverSQLite)
	viper.SetDefault("db.dsn", "file:"+filepath.Join(stickerHome, "sticker.db"))

	viper.SetDefault("generation.provider", DefaultProvider)
	viper.SetDefault("generation.model", DefaultModel)
	viper.SetDefault("generation.size", DefaultImageSize)
	viper.SetDefault("generation.quality", DefaultImageQuality)
	viper.SetDefault("generation.initial_delay", DefaultInitialDelay)
	viper.SetDefault("generation.min_delay", DefaultMinDelay)
	viper.SetDefault("generation.max_delay", DefaultMaxDelay)
	viper.SetDefault("generation.max_attempts", DefaultMaxAttempts)

	viper.SetDefault("queue.auto_start", true)
}
