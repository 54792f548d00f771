// recurring-billing generates the invoices of every due recurring contract.
// Meant to run once a day from Cloud Scheduler.
//
// Usage:
//
//	go run ./cmd/recurring-billing [-date 2025-01-31]
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
	runId := "recurring-billing-" + uuid.NewString()
	ctx := utils.SetCorrelationIdInContext(context.Background(), runId)
	ctx = utils.SetUsernameInContext(ctx, "recurring-billing")
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	result, err := workflow.RunRecurringBilling(ctx, asOf)
	if err != nil {
		config.LogError(logger, "recurring-billing", "main", "RunRecurringBilling", asOf, err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"run_id":   runId,
		"as_of":    asOf.Format(time.DateOnly),
		"invoices": len(result.Invoices),
		"ended":    len(result.Ended),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failed),
	}).Info("recurring billing run finished")
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}
