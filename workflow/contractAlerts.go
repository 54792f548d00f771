package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"go.opentelemetry.io/otel/attribute"
)

type NotificationPublisher interface {
	Publish(ctx context.Context, msg config.NotificationMessage) (string, error)
}

// PubSubPublisher sends notifications to the Pub/Sub notifications topic.
type PubSubPublisher struct{}

func (PubSubPublisher) Publish(ctx context.Context, msg config.NotificationMessage) (string, error) {
	return config.PublishNotification(ctx, msg)
}

type AlertRunResult struct {
	Alerts    []models.ContractAlert `json:"alertes"`
	Published int                    `json:"publiees"`
	Duplicate int                    `json:"deja_envoyees"`
	Failed    int                    `json:"erreurs"`
}

const sentAlertTTL = 36 * time.Hour

func alertKey(asOf time.Time, a models.ContractAlert) string {
	invoiceId := 0
	if a.InvoiceId != nil {
		invoiceId = *a.InvoiceId
	}
	return fmt.Sprintf("alert:%s:%s:%d:%d", asOf.Format("20060102"), a.Type, a.ContractId, invoiceId)
}

// RunContractAlerts computes the alerts due on asOf and publishes each one once per day.
// Delivery state is kept in Redis; without Redis every run publishes again.
func RunContractAlerts(ctx context.Context, asOf time.Time, publisher NotificationPublisher) (*AlertRunResult, error) {
	ctx, span := tracer.Start(ctx, "RunContractAlerts")
	defer span.End()

	logger := config.GetLogger()
	alerts, err := models.ComputeContractAlerts(ctx, asOf)
	if err != nil {
		failSpan(span, err)
		config.LogError(logger, "contractAlerts.go", "RunContractAlerts", "ComputeContractAlerts", asOf, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("alerts", len(alerts)))

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	result := &AlertRunResult{Alerts: alerts}
	for _, a := range alerts {
		key := alertKey(asOf, a)
		var sent bool
		if found, err := config.GetRedisObject(key, &sent); err != nil {
			logger.WithField("key", key).Warn("could not read alert delivery state: " + err.Error())
		} else if found {
			result.Duplicate++
			continue
		}

		msg := config.NotificationMessage{
			Type:          string(a.Type),
			ContractId:    a.ContractId,
			ClientId:      a.ClientId,
			Message:       a.Message,
			DueDate:       a.Date,
			CorrelationId: correlationId,
		}
		if a.InvoiceId != nil {
			msg.InvoiceId = *a.InvoiceId
		}
		id, err := publisher.Publish(ctx, msg)
		if err != nil {
			result.Failed++
			config.LogError(logger, "contractAlerts.go", "RunContractAlerts", "Publish", msg, err)
			continue
		}
		result.Published++
		if err := config.SetRedisObject(key, true, sentAlertTTL); err != nil {
			logger.WithField("key", key).Warn("could not store alert delivery state: " + err.Error())
		}
		logger.WithFields(logrus.Fields{
			"type":        a.Type,
			"contract_id": a.ContractId,
			"message_id":  id,
		}).Debug("alert published")
	}

	logger.WithFields(logrus.Fields{
		"as_of":     asOf.Format("2006-01-02"),
		"alerts":    len(alerts),
		"published": result.Published,
		"duplicate": result.Duplicate,
		"failed":    result.Failed,
	}).Info("contract alerts run finished")
	return result, nil
}
