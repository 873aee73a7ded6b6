package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/rabbitmq"
	"github.com/wb-go/wbf/redis"
	"github.com/wb-go/wbf/zlog"

	"github.com/adilzhm/notification-pipeline/internal/api/handlers/notification"
	"github.com/adilzhm/notification-pipeline/internal/api/router"
	"github.com/adilzhm/notification-pipeline/internal/api/server"
	"github.com/adilzhm/notification-pipeline/internal/config"
	"github.com/adilzhm/notification-pipeline/internal/model"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/handlers/delivery"
	"github.com/adilzhm/notification-pipeline/internal/rabbitmq/queue"
	notifrepo "github.com/adilzhm/notification-pipeline/internal/repository/notification"
	userrepo "github.com/adilzhm/notification-pipeline/internal/repository/user"
	"github.com/adilzhm/notification-pipeline/internal/sender"
	notifsvc "github.com/adilzhm/notification-pipeline/internal/service/notification"
	"github.com/adilzhm/notification-pipeline/internal/worker"
	"github.com/adilzhm/notification-pipeline/pkg/email"
	"github.com/adilzhm/notification-pipeline/pkg/sms"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Retries, cfg.RabbitMQ.Pause)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to open channel")
	}

	q, err := queue.New(ch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create notification queues")
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))

	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	notificationRepo := notifrepo.NewRepository(db)
	userRepo := userrepo.NewRepository(db)

	dbNum, err := strconv.Atoi(cfg.Redis.Database)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse redis database")
	}

	rdb := redis.New(cfg.Redis.Address, cfg.Redis.Password, dbNum)

	if err = rdb.Ping(ctx).Err(); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to parse email smtp port")
	}

	// Transport clients are built once here and injected; nothing
	// lazy-initializes shared state on first send.
	emailClient := email.NewClient(
		cfg.Email.SMTPHost,
		smtpPort,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
	)
	smsClient := sms.NewClient(cfg.SMS.GatewayURL, cfg.SMS.APIKey)

	senders := map[model.Channel]notifsvc.Sender{
		model.ChannelEmail: sender.NewEmail(emailClient),
		model.ChannelSMS:   sender.NewSMS(smsClient),
		model.ChannelInApp: sender.NewInApp(),
	}

	service := notifsvc.NewService(notificationRepo, userRepo, q, senders, rdb, cfg.Delivery.MaxAttempts)
	notifHandler := notification.NewHandler(service, val, cfg)
	messageHandler := delivery.NewHandler(service)

	dispatcher := worker.NewDispatcher(q, messageHandler)
	scheduler := worker.NewScheduler(service, cfg.Scheduler.Interval, cfg.Scheduler.StaleAfter, cfg.Scheduler.Batch)

	go dispatcher.Run(ctx, cfg.Retry, cfg.Workers.PerChannel)
	go scheduler.Run(ctx, cfg.Retry)

	r := router.New(notifHandler)
	s := server.New(cfg.Server.HTTPPort, r)

	go func() {
		if err := s.ListenAndServe(); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}

	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	if err := ch.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ channel")
	}

	if err := conn.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close RabbitMQ connection")
	}
}
