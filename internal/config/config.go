package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	ModeSimple  = "simple"
	ModeAgentic = "agentic"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	Port                string        `mapstructure:"PORT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	WebhookSecret       string        `mapstructure:"WEBHOOK_SECRET"`
	CORSAllowed         string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AIProvider          string        `mapstructure:"AI_PROVIDER"`
	AIMode              string        `mapstructure:"AI_MODE"`
	OpenAIAPIKey        string        `mapstructure:"OPENAI_API_KEY"`
	AnthropicAPIKey     string        `mapstructure:"ANTHROPIC_API_KEY"`
	CalendarServiceURL  string        `mapstructure:"CALENDAR_SERVICE_URL"`
	ConfidenceThreshold int           `mapstructure:"CONFIDENCE_THRESHOLD"`
	RosterFilePath      string        `mapstructure:"ROSTER_FILE_PATH"`
	GroupMeBotID        string        `mapstructure:"GROUPME_BOT_ID"`
	GroupMeAPIToken     string        `mapstructure:"GROUPME_API_TOKEN"`
	GroupMeGroupID      string        `mapstructure:"GROUPME_GROUP_ID"`
	DatabasePath        string        `mapstructure:"DATABASE_PATH"`
	PollCron            string        `mapstructure:"POLL_CRON"`
	PollLimit           int           `mapstructure:"POLL_LIMIT"`
	MockCalendarPort    string        `mapstructure:"MOCK_CALENDAR_PORT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("AI_PROVIDER", ProviderOpenAI)
	v.SetDefault("AI_MODE", ModeSimple)
	v.SetDefault("CONFIDENCE_THRESHOLD", 70)
	v.SetDefault("ROSTER_FILE_PATH", "data/roster.json")
	v.SetDefault("DATABASE_PATH", "data/shiftbot.db")
	v.SetDefault("POLL_CRON", "*/5 * * * *")
	v.SetDefault("POLL_LIMIT", 20)
	v.SetDefault("MOCK_CALENDAR_PORT", "8001")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateAIConfig checks that the selected provider has its API key set and
// that provider and mode values come from the recognized sets.
func (c Config) ValidateAIConfig() error {
	switch c.AIProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY must be set when using the openai provider")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY must be set when using the anthropic provider")
		}
	default:
		return fmt.Errorf("unsupported AI provider: %q", c.AIProvider)
	}

	if c.AIMode != ModeSimple && c.AIMode != ModeAgentic {
		return fmt.Errorf("unsupported AI mode: %q", c.AIMode)
	}
	return nil
}
