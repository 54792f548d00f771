package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"go.opentelemetry.io/otel/attribute"
)

const contractLockTTL = 2 * time.Minute

type BillingRunResult struct {
	AsOf     time.Time      `json:"date"`
	Invoices []string       `json:"factures"`
	Ended    []int          `json:"contrats_termines"`
	Skipped  []int          `json:"contrats_ignores"`
	Failed   map[int]string `json:"erreurs"`
}

// RunRecurringBilling generates one invoice per due contract. A contract locked
// by another runner is skipped; the database row lock still guards against a
// double invoice when Redis is unavailable.
func RunRecurringBilling(ctx context.Context, asOf time.Time) (*BillingRunResult, error) {
	ctx, span := tracer.Start(ctx, "RunRecurringBilling")
	defer span.End()

	logger := config.GetLogger()
	contracts, err := models.ListDueContracts(ctx, asOf)
	if err != nil {
		failSpan(span, err)
		config.LogError(logger, "recurringBilling.go", "RunRecurringBilling", "ListDueContracts", asOf, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("contracts.due", len(contracts)))

	result := &BillingRunResult{
		AsOf:     asOf,
		Invoices: make([]string, 0),
		Ended:    make([]int, 0),
		Skipped:  make([]int, 0),
		Failed:   make(map[int]string),
	}
	for _, contract := range contracts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		billContract(ctx, logger, contract, asOf, result)
	}

	logger.WithFields(logrus.Fields{
		"as_of":    asOf.Format("2006-01-02"),
		"invoices": len(result.Invoices),
		"ended":    len(result.Ended),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failed),
	}).Info("recurring billing run finished")
	return result, nil
}

func billContract(ctx context.Context, logger *logrus.Logger, contract *models.RecurringContract, asOf time.Time, result *BillingRunResult) {
	ctx, span := tracer.Start(ctx, "billContract")
	defer span.End()
	span.SetAttributes(attribute.Int("contract.id", contract.ID))

	fields := logrus.Fields{"contract_id": contract.ID, "client_id": contract.ClientId}
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("lock:contract:%d", contract.ID), contractLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.WithFields(fields).Warn("contract is being billed by another runner; skipped")
			result.Skipped = append(result.Skipped, contract.ID)
			return
		} else if err != nil {
			logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(fields).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	invoice, err := models.GenerateInvoiceFromContract(ctx, contract.ID, asOf)
	switch {
	case err == nil:
		result.Invoices = append(result.Invoices, invoice.Numero)
	case errors.Is(err, models.ErrContractEnded):
		logger.WithFields(fields).Warn("contract ended without tacit renewal; deactivated")
		result.Ended = append(result.Ended, contract.ID)
	case errors.Is(err, models.ErrContractNotDue), errors.Is(err, models.ErrContractInactive):
		result.Skipped = append(result.Skipped, contract.ID)
	default:
		failSpan(span, err)
		config.LogError(logger, "recurringBilling.go", "billContract", "GenerateInvoiceFromContract", contract.ID, err)
		result.Failed[contract.ID] = err.Error()
	}
}
