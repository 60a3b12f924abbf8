package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/app"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/logging"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init app")
	}
	defer a.Close()

	p := NewProcessor(a.Statuses, a.Metrics, log.WithField("component", "worker"))

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"order_id":"local-order-1","owner_id":"local-user"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := p.Handle(ctx, event)
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.WithError(err).Fatal("local handler error")
		}
		return
	}

	lambda.Start(p.Handle)
}
