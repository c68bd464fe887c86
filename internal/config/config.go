package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"repeatme/internal/core/domain/reminder"
	dispatchreminders "repeatme/internal/core/services/dispatch_reminders"

	"github.com/caarlos0/env/v6"
	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	StorePostgres = "postgres"
	StoreSqlite   = "sqlite"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	IsTestMode     bool     `env:"TEST_MODE" envDefault:"false"`
	Port           uint16   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	SentryDsn      *url.URL `env:"SENTRY_DSN"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresqlURL string `env:"POSTGRESQL_URL"`
	SqlitePath    string `env:"SQLITE_PATH" envDefault:"repeatme.db"`
	RedisURL      string `env:"REDIS_URL"`

	RabbitmqURL                    string `env:"RABBITMQ_URL"`
	RabbitmqReminderDueQueue       string `env:"RABBITMQ_REMINDER_DUE_QUEUE" envDefault:"reminder.due"`
	RabbitmqReminderSubmittedQueue string `env:"RABBITMQ_REMINDER_SUBMITTED_QUEUE" envDefault:"reminder.submitted"`

	ReminderOffsets []reminder.Offset `env:"REMINDER_OFFSETS" envDefault:"1d,3d,7d,30d" envSeparator:","`

	DispatchPollInterval    time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"5s"`
	DispatchBatchSize       uint          `env:"DISPATCH_BATCH_SIZE" envDefault:"50"`
	DispatchLeaseDuration   time.Duration `env:"DISPATCH_LEASE_DURATION" envDefault:"2m"`
	DispatchDeliveryTimeout time.Duration `env:"DISPATCH_DELIVERY_TIMEOUT" envDefault:"30s"`
	DispatchConcurrency     int           `env:"DISPATCH_CONCURRENCY" envDefault:"8"`

	DefaultTransport string `env:"DEFAULT_TRANSPORT" envDefault:"telegram"`

	TelegramBaseURL        url.URL       `env:"TELEGRAM_BASE_URL" envDefault:"https://api.telegram.org"`
	TelegramBotToken       string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramRequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" envDefault:"10s"`

	AwsRegion                string `env:"AWS_REGION"`
	AwsAccessKey             string `env:"AWS_ACCESS_KEY"`
	AwsSecretKey             string `env:"AWS_SECRET_KEY"`
	AwsEmailSender           string `env:"AWS_EMAIL_SENDER"`
	AwsEmailReminderTemplate string `env:"AWS_EMAIL_REMINDER_TEMPLATE"`

	DisplayTimezone        string `env:"DISPLAY_TIMEZONE" envDefault:"UTC"`
	SubmitRateLimitPerHour uint16 `env:"SUBMIT_RATE_LIMIT_PER_HOUR" envDefault:"30"`
}

func Load() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(
			&c.StoreDriver,
			validation.Required,
			validation.In(StorePostgres, StoreSqlite, StoreRedis, StoreMemory),
		),
		validation.Field(&c.PostgresqlURL, validation.By(requiredWhen(c.StoreDriver == StorePostgres))),
		validation.Field(&c.SqlitePath, validation.By(requiredWhen(c.StoreDriver == StoreSqlite))),
		validation.Field(&c.RedisURL, validation.By(requiredWhen(c.StoreDriver == StoreRedis))),
		validation.Field(&c.ReminderOffsets, validation.By(func(interface{}) error {
			return reminder.ValidateOffsets(c.ReminderOffsets)
		})),
		validation.Field(&c.DispatchPollInterval, validation.Required),
		validation.Field(&c.DispatchBatchSize, validation.Required),
		validation.Field(&c.DispatchDeliveryTimeout, validation.Required),
		validation.Field(&c.DispatchLeaseDuration, validation.Required, validation.By(func(interface{}) error {
			if c.DispatchLeaseDuration <= c.DispatchDeliveryTimeout {
				return errors.New("must be longer than the delivery timeout")
			}
			return nil
		})),
		validation.Field(&c.DispatchConcurrency, validation.Required, validation.Min(1)),
		validation.Field(
			&c.DefaultTransport,
			validation.Required,
			validation.In("telegram", "email", "internal", "amqp", "log"),
		),
		validation.Field(&c.RabbitmqReminderDueQueue, validation.By(requiredWhen(c.RabbitmqURL != ""))),
		validation.Field(&c.RabbitmqReminderSubmittedQueue, validation.By(requiredWhen(c.RabbitmqURL != ""))),
		validation.Field(&c.DisplayTimezone, validation.By(func(interface{}) error {
			if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
				return errors.New("unknown time zone")
			}
			return nil
		})),
		validation.Field(&c.SubmitRateLimitPerHour, validation.Required),
	)
}

// IsEmailEnabled reports whether SES delivery is configured.
func (c *Config) IsEmailEnabled() bool {
	return c.AwsRegion != "" && c.AwsEmailSender != "" && c.AwsEmailReminderTemplate != ""
}

func (c *Config) Dispatch() dispatchreminders.Config {
	return dispatchreminders.Config{
		BatchSize:       c.DispatchBatchSize,
		Lease:           c.DispatchLeaseDuration,
		DeliveryTimeout: c.DispatchDeliveryTimeout,
		Concurrency:     c.DispatchConcurrency,
	}
}

func requiredWhen(condition bool) validation.RuleFunc {
	return func(value interface{}) error {
		if !condition {
			return nil
		}
		return validation.Validate(value, validation.Required)
	}
}
