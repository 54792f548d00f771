// contract-alerts publishes the billing reminders of recurring contracts to Pub/Sub.
//
// Usage:
//
//	go run ./cmd/contract-alerts [-date 2025-01-31]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/utils"
	"github.com/solarclean/backoffice/workflow"
)

func main() {
	asOf, err := parseDateFlag()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := config.GetLogger()
	runId := "contract-alerts-" + uuid.NewString()
	ctx := utils.SetCorrelationIdInContext(context.Background(), runId)
	ctx = utils.SetUsernameInContext(ctx, "contract-alerts")
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	result, err := workflow.RunContractAlerts(ctx, asOf, workflow.PubSubPublisher{})
	if err != nil {
		config.LogError(logger, "contract-alerts", "main", "RunContractAlerts", asOf, err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"run_id":    runId,
		"as_of":     asOf.Format(time.DateOnly),
		"alerts":    len(result.Alerts),
		"published": result.Published,
		"duplicate": result.Duplicate,
		"failed":    result.Failed,
	}).Info("contract alerts run finished")
}
