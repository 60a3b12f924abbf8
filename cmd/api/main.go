package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront/internal/app"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/handlers"
	"github.com/imrishuroy/go-storefront/internal/logging"
	"github.com/imrishuroy/go-storefront/internal/postgres"
)

const shutdownTimeout = 10 * time.Second

func setupRouter(a *app.App, log logrus.FieldLogger, trustUserHeader bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(log))

	handlers.RegisterRoutes(r, handlers.HandlerConfig{
		Catalog:         a.Catalog,
		Carts:           a.Carts,
		Checkout:        a.Checkout,
		Orders:          a.Orders,
		Sessions:        a.Gate,
		Log:             log,
		TrustUserHeader: trustUserHeader,
	})
	return r
}

func main() {
	cliApp := &cli.App{
		Name:  "storefront-api",
		Usage: "storefront catalog, cart and checkout API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "dotenv file read outside production",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		// RUN_LOCAL=true serves HTTP directly; otherwise the process is a Lambda.
		Action: func(c *cli.Context) error {
			cfg, log, err := load(c)
			if err != nil {
				return err
			}
			if cfg.RunLocal {
				return serve(c.Context, cfg, log)
			}
			return runLambda(c.Context, cfg, log)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server until SIGINT or SIGTERM",
				Action: func(c *cli.Context) error {
					cfg, log, err := load(c)
					if err != nil {
						return err
					}
					return serve(c.Context, cfg, log)
				},
			},
			{
				Name:  "lambda",
				Usage: "run behind API Gateway on AWS Lambda",
				Action: func(c *cli.Context) error {
					cfg, log, err := load(c)
					if err != nil {
						return err
					}
					return runLambda(c.Context, cfg, log)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply PostgreSQL schema migrations",
				Action: func(c *cli.Context) error {
					cfg, log, err := load(c)
					if err != nil {
						return err
					}
					if cfg.Backend != config.BackendPostgres {
						return errors.Errorf("migrate requires STORE_BACKEND=%s", config.BackendPostgres)
					}
					return postgres.Migrate(cfg.DatabaseURL, log)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("storefront-api failed")
	}
}

func load(c *cli.Context) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return cfg, nil, errors.Wrap(err, "load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, log, nil
}

// serve trusts X-User-Id outside production so the API can be driven locally
// without an authorizer.
func serve(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           setupRouter(a, log, !cfg.Production()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "backend": cfg.Backend}).Info("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runLambda(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	adapter := ginadapter.New(setupRouter(a, log, false))

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// ProxyWithContext keeps the authorizer context reachable from handlers
		return adapter.ProxyWithContext(ctx, req)
	})
	return nil
}
