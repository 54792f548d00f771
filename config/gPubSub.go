package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// NotificationMessage is published for every contract alert.
type NotificationMessage struct {
	Type          string    `json:"type"`
	ContractId    int       `json:"contract_id"`
	ClientId      string    `json:"client_id"`
	InvoiceId     int       `json:"invoice_id,omitempty"`
	Message       string    `json:"message"`
	DueDate       time.Time `json:"due_date"`
	CorrelationId string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			GetLogger().WithFields(logrus.Fields{"field": "pubsub", "projectId": projectID, "attempt": attempt}).Info("pubsub client ready")
			return c2, nil
		}
		if attempt >= 5 {
			return nil, err
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		GetLogger().WithFields(logrus.Fields{"field": "pubsub", "projectId": projectID, "attempt": attempt, "retryIn": sleep.String()}).Warn("pubsub client failed: " + err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// PublishNotification publishes msg on PUBSUB_TOPIC_NOTIFICATIONS and returns the server-assigned id.
func PublishNotification(ctx context.Context, msg NotificationMessage) (string, error) {
	topicName := os.Getenv("PUBSUB_TOPIC_NOTIFICATIONS")
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC_NOTIFICATIONS is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"type": msg.Type,
		},
	})
	return result.Get(ctx)
}
