package configs

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		Env      string
		LogLevel string
	}
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	NATS struct {
		URL string
	}
	PayPal struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
	}
	Chat struct {
		APIKey    string
		APISecret string
		TokenTTL  time.Duration
	}
	WebSocket struct {
		PingInterval   string
		MaxMessageSize int
	}
	Auth struct {
		SecretKey string
	}
	Locks struct {
		TTL           time.Duration
		SweepInterval time.Duration
	}
	Features struct {
		EnableLogging    bool
		AllowCrossOrigin bool
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file
	if err := godotenv.Load("./configs/.env"); err != nil {
		log.Info("No .env file found")
	}

	viper.SetConfigName("config")    // Name of the config file (without extension)
	viper.SetConfigType("yaml")      // Config file type
	viper.AddConfigPath("./configs") // Path to look for the config file
	viper.AutomaticEnv()             // Automatically map environment variables

	// Allow dots in environment variables to map to nested keys
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults for the lock subsystem; a zero TTL would make every lock
	// instantly reclaimable by the sweeper.
	viper.SetDefault("locks.ttl", "90s")
	viper.SetDefault("locks.sweepinterval", "30s")
	viper.SetDefault("chat.tokenttl", "1h")

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	// Manually substitute environment variables in the config
	substituteEnvVarsInConfig()

	// Unmarshal the config into a struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Helper function to manually replace environment variables in config file values
func substituteEnvVarsInConfig() {
	for _, key := range viper.AllKeys() {
		value := viper.GetString(key)

		// Check if the value contains environment variable syntax (e.g., ${PORT})
		if strings.Contains(value, "${") {
			replacedValue := os.Expand(value, func(name string) string {
				return os.Getenv(name)
			})
			viper.Set(key, replacedValue)
		}
	}
}
