package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/leadflow/internal/infra/http/handlers"
	"github.com/xavierca1/leadflow/internal/infra/http/router"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

var (
	serveAddr        string
	serveNoScheduler bool
	serveMigrate     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server, the scheduler and the reply alert consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{autoMigrate: serveMigrate, withBroker: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.HTTP.AdminSecret == "" {
			logger.Warn("admin_secret_not_set", zap.String("hint", "admin endpoints will reject every request"))
		}
		if cfg.Meta.VerifyToken == "" {
			logger.Warn("meta_verify_token_not_set")
		}

		// A nil *RabbitMQ would report unhealthy; leave the interface empty instead.
		var broker handlers.BrokerState
		if a.broker != nil {
			broker = a.broker
		}

		handler := router.New(router.Handlers{
			Monday: handlers.NewMondayWebhookHandler(a.lifecycle, cfg.Monday.BoardID, logger.Named("monday_webhook")),
			Meta:   handlers.NewMetaWebhookHandler(a.lifecycle, cfg.Meta.VerifyToken, logger.Named("meta_webhook")),
			Admin:  handlers.NewAdminHandler(ctx, a.scheduler, a.sync, cfg.HTTP.AdminSecret, logger.Named("admin")),
			Health: handlers.NewHealthHandler(a.store, broker, a.scheduler, version),
		}, cfg.HTTP.CORSOrigins, logger.Named("http"))

		addr := serveAddr
		if addr == "" {
			addr = cfg.HTTP.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("server_starting", zap.String("addr", addr), zap.String("version", version))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			logger.Info("server_shutting_down")
			a.scheduler.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if !serveNoScheduler {
			a.scheduler.Start(gctx)
		}

		if a.broker != nil {
			notifier := mail.NewEmailSender(mail.Config{
				Host:     cfg.Mail.Host,
				Port:     cfg.Mail.Port,
				User:     cfg.Mail.User,
				Password: cfg.Mail.Password,
				From:     cfg.Mail.From,
				AlertTo:  cfg.Mail.AlertTo,
			}, a.location, logger.Named("mail"))
			consumer := queue.NewWorker(a.broker.Ch, notifier, logger.Named("queue"))

			g.Go(func() error {
				err := consumer.Start(gctx, queue.AlertsQueueName)
				if err != nil && gctx.Err() == nil {
					return err
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve webhooks only, without the periodic jobs")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations before starting")
	rootCmd.AddCommand(serveCmd)
}
