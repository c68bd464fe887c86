package deps

import (
	"context"
	"fmt"
	"repeatme/internal/config"
	"repeatme/internal/core/domain/bot"
	"repeatme/internal/core/domain/clock"
	dl "repeatme/internal/core/domain/logging"
	drl "repeatme/internal/core/domain/rate_limiter"
	"repeatme/internal/core/domain/reminder"
	"repeatme/internal/db"
	"repeatme/internal/db/memory"
	dbreminder "repeatme/internal/db/reminder"
	"repeatme/internal/db/sqlite"
	"repeatme/internal/implementations/email"
	"repeatme/internal/implementations/logging"
	ratelimiter "repeatme/internal/implementations/rate_limiter"
	redisreminderstore "repeatme/internal/implementations/redis_reminder_store"
	remindersender "repeatme/internal/implementations/reminder_sender"
	telegrambotmessagesender "repeatme/internal/implementations/telegram_bot_message_sender"
	"repeatme/internal/rabbitmq"
	reminderdue "repeatme/internal/rabbitmq/publishers/reminder_due"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/getsentry/sentry-go"
	"github.com/r3labs/sse/v2"
	"github.com/redis/go-redis/v9"
)

const sqliteBusyTimeout = 5 * time.Second

type Deps struct {
	Config    *config.Config
	AwsConfig aws.Config
	Logger    dl.Logger

	Redis     *redis.Client
	Rabbitmq  *rabbitmq.Connection
	SseServer *sse.Server

	Now       func() time.Time
	Projector *clock.Projector

	ReminderStore reminder.Store
	RateLimiter   drl.RateLimiter

	EmailSender              *email.EmailSender
	TelegramBotMessageSender bot.TelegramBotMessageSender
	ReminderDuePublisher     *reminderdue.RabbitMQ

	Notifier reminder.Notifier
}

func InitDeps() (*Deps, func()) {
	deps := &Deps{}

	deps.initConfig()
	deps.initAwsConfig()

	closeLogger := deps.initLogger()
	closeSentry := deps.initSentry()
	deps.Now = clock.Now
	deps.initProjector()

	closeRedisClient := deps.initRedisClient()
	closeReminderStore := deps.initReminderStore()
	closeRabbitmqConn := deps.initRabbitmqConnection()
	closeSseServer := deps.initSseServer()
	closeReminderDuePublisher := deps.initReminderDuePublisher()

	deps.RateLimiter = deps.initRateLimiter()

	if deps.Config.IsEmailEnabled() {
		deps.EmailSender = email.NewEmailSender(
			deps.AwsConfig,
			deps.Config.AwsEmailSender,
			deps.Config.AwsEmailReminderTemplate,
		)
	}
	deps.TelegramBotMessageSender = telegrambotmessagesender.New(
		deps.Config.TelegramBaseURL,
		deps.Config.TelegramBotToken,
		deps.Config.TelegramRequestTimeout,
	)
	deps.Notifier = deps.initNotifier()

	return deps, func() {
		closeFuncs := []func(){
			closeSseServer,
			closeReminderDuePublisher,
			closeRabbitmqConn,
			closeReminderStore,
			closeRedisClient,
			closeSentry,
		}

		var wg sync.WaitGroup
		wg.Add(len(closeFuncs))
		for _, closeFunc := range closeFuncs {
			closeFunc := closeFunc
			go func() {
				closeFunc()
				wg.Done()
			}()
		}

		wg.Wait()
		closeLogger()
	}
}

func (deps *Deps) initConfig() {
	config, err := config.Load()
	if err != nil {
		panic(err)
	}
	deps.Config = config
}

func (deps *Deps) initAwsConfig() {
	cfg, err := awsConfig.LoadDefaultConfig(
		context.Background(),
		awsConfig.WithRegion(deps.Config.AwsRegion),
		awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				deps.Config.AwsAccessKey,
				deps.Config.AwsSecretKey,
				"",
			),
		),
		awsConfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(
				retry.AddWithMaxBackoffDelay(retry.NewStandard(), time.Second*5),
				3,
			)
		}),
	)
	if err != nil {
		panic(err)
	}
	deps.AwsConfig = cfg
}

func (deps *Deps) initLogger() func() {
	logger := logging.NewZapLogger(deps.Config.IsTestMode)
	deps.Logger = logger
	return func() { logger.Sync() }
}

func (deps *Deps) initSentry() func() {
	if deps.Config.SentryDsn == nil {
		deps.Logger.Info(context.Background(), "Sentry is disabled.")
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              deps.Config.SentryDsn.String(),
		TracesSampleRate: 0.01,
	})
	if err != nil {
		panic(fmt.Sprintf("could not init Sentry: %v\n", err))
	}
	deps.Logger.Info(context.Background(), "Sentry has been successfully initialized.")
	return func() {
		ok := sentry.Flush(5 * time.Second)
		deps.Logger.Info(context.Background(), "Sentry events flushed.", dl.Entry("ok", ok))
	}
}

func (deps *Deps) initProjector() {
	projector, err := clock.NewProjector(deps.Config.DisplayTimezone)
	if err != nil {
		panic(err)
	}
	deps.Projector = projector
}

func (deps *Deps) initReminderStore() func() {
	ctx := context.Background()
	log := deps.Logger
	driver := dl.Entry("driver", deps.Config.StoreDriver)

	switch deps.Config.StoreDriver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, deps.Config.PostgresqlURL)
		if err != nil {
			log.Error(ctx, "Could not connect to DB.", driver, dl.Entry("err", err))
			panic(err)
		}
		deps.ReminderStore = dbreminder.NewPgxReminderStore(pool)
		return func() {
			log.Info(ctx, "Shutting down DB connection.", driver)
			pool.Close()
			log.Info(ctx, "DB connection shut down.", driver)
		}
	case config.StoreSqlite:
		sqlDB, err := sqlite.Open(ctx, deps.Config.SqlitePath, sqliteBusyTimeout)
		if err != nil {
			log.Error(ctx, "Could not open DB.", driver, dl.Entry("err", err), dl.Entry("path", deps.Config.SqlitePath))
			panic(err)
		}
		deps.ReminderStore = sqlite.NewReminderStore(sqlDB)
		return func() {
			log.Info(ctx, "Shutting down DB connection.", driver)
			sqlDB.Close()
			log.Info(ctx, "DB connection shut down.", driver)
		}
	case config.StoreRedis:
		deps.ReminderStore = redisreminderstore.New(deps.Redis, redisreminderstore.DEFAULT_PREFIX)
	default:
		log.Warning(ctx, "Reminders are kept in memory and are lost on restart.", driver)
		deps.ReminderStore = memory.NewReminderStore()
	}
	return func() {}
}

func (deps *Deps) initRedisClient() func() {
	if deps.Config.RedisURL == "" {
		return func() {}
	}

	redisOpt, err := redis.ParseURL(deps.Config.RedisURL)
	if err != nil {
		deps.Logger.Error(context.Background(), "Could not connect to Redis.", dl.Entry("err", err))
		panic(err)
	}
	redisClient := redis.NewClient(redisOpt)
	deps.Redis = redisClient
	return func() {
		deps.Logger.Info(context.Background(), "Shutting down Redis client.")
		redisClient.Close()
		deps.Logger.Info(context.Background(), "Redis client shut down.")
	}
}

func (deps *Deps) initRateLimiter() drl.RateLimiter {
	if deps.Config.IsTestMode || deps.Redis == nil {
		deps.Logger.Info(context.Background(), "Rate limiting is disabled.")
		return ratelimiter.NewAllowAlways()
	}
	return ratelimiter.NewRedis(deps.Redis, deps.Logger, deps.Now)
}

func (deps *Deps) initRabbitmqConnection() func() {
	if deps.Config.RabbitmqURL == "" {
		return func() {}
	}

	rabbitmqConnection, err := rabbitmq.Dial(deps.Config.RabbitmqURL, deps.Logger)
	if err != nil {
		deps.Logger.Error(context.Background(), "Could not connect to RabbitMQ.", dl.Entry("err", err))
		panic("could not connect to RabbitMQ")
	}
	deps.Rabbitmq = rabbitmqConnection
	return func() {
		deps.Logger.Info(context.Background(), "Shutting down RabbitMQ connection.")
		rabbitmqConnection.Close()
		deps.Logger.Info(context.Background(), "RabbitMQ connection shut down.")
	}
}

func (deps *Deps) initReminderDuePublisher() func() {
	if deps.Rabbitmq == nil {
		return func() {}
	}

	rabbitmqChannel, err := deps.Rabbitmq.Channel()
	if err != nil {
		deps.Logger.Error(context.Background(), "Could not create RabbitMQ channel.", dl.Entry("err", err))
		panic(err)
	}
	queue := deps.Config.RabbitmqReminderDueQueue
	if err := rabbitmqChannel.DeclareQueue(queue); err != nil {
		deps.Logger.Error(context.Background(), "Could not create RabbitMQ queue.", dl.Entry("err", err))
		panic(err)
	}

	deps.ReminderDuePublisher = reminderdue.NewRabbitMQ(deps.Logger, rabbitmqChannel, "", queue, deps.Now)

	return func() {
		deps.Logger.Info(context.Background(), "Shutting down reminder due publisher.")
		rabbitmqChannel.Close()
		deps.Logger.Info(context.Background(), "Reminder due publisher shut down.")
	}
}

func (deps *Deps) initSseServer() func() {
	deps.SseServer = sse.New()
	deps.SseServer.AutoStream = true
	deps.SseServer.AutoReplay = false
	return func() {
		deps.Logger.Info(context.Background(), "Shutting down SSE server.")
		deps.SseServer.Close()
		deps.Logger.Info(context.Background(), "SSE server shut down.")
	}
}

func (deps *Deps) initNotifier() reminder.Notifier {
	var emailSender remindersender.EmailReminderSender
	if deps.EmailSender != nil {
		emailSender = deps.EmailSender
	}

	transports := map[remindersender.Scheme]remindersender.Transport{
		remindersender.SchemeTelegram: remindersender.NewTelegram(deps.TelegramBotMessageSender),
		remindersender.SchemeEmail:    remindersender.NewEmail(emailSender),
		remindersender.SchemeInternal: remindersender.NewInternal(deps.SseServer),
		remindersender.SchemeLog:      remindersender.NewLog(deps.Logger),
	}
	if deps.ReminderDuePublisher != nil {
		transports[remindersender.SchemeAMQP] = deps.ReminderDuePublisher
	}

	defaultScheme := remindersender.Scheme(deps.Config.DefaultTransport)
	if _, ok := transports[defaultScheme]; !ok {
		deps.Logger.Warning(
			context.Background(),
			"Default transport is not available.",
			dl.Entry("transport", defaultScheme),
		)
	}
	return remindersender.New(deps.Logger, defaultScheme, transports)
}
