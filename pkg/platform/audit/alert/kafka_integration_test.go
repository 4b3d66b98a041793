//go:build integration

package alert_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"workspace-audit/internal/platform/kafka/producer"
	"workspace-audit/pkg/platform/audit"
	"workspace-audit/pkg/platform/audit/alert"
	"workspace-audit/pkg/testutil/containers"
)

const alertTopic = "workspace-audit-alerts"

type KafkaNotifierIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestKafkaNotifierIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaNotifierIntegrationSuite))
}

func (s *KafkaNotifierIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), alertTopic, 1, 1))

	cfg := producer.DefaultConfig()
	cfg.Brokers = s.kafka.Brokers
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *KafkaNotifierIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close(context.Background())
	}
}

// Justification: responders consume alerts from Kafka; the record must carry
// the alert JSON keyed by type with severity headers.
func (s *KafkaNotifierIntegrationSuite) TestAlertIsPublished() {
	ctx := context.Background()
	n := alert.NewKafkaNotifier(s.producer, alertTopic)

	a := alert.Alert{
		Type:        alert.TypeSuspiciousLogin,
		Severity:    audit.SeverityHigh,
		Description: "11 failed logins for admin-7",
		Subject:     "admin-7",
		Count:       11,
		Events:      []alert.EventRef{{ID: "aud_1_0000000000000001", Action: audit.ActionFailedLogin}},
		RaisedAt:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(n.Notify(ctx, a))

	consumer, err := s.kafka.NewConsumer(ctx, "alert-verifier", alertTopic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 10*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == string(alert.TypeSuspiciousLogin)
	})
	s.Require().NotNil(record, "alert record should be delivered")

	var got alert.Alert
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(a.Subject, got.Subject)
	s.Equal(11, got.Count)
	s.Equal([]string{"aud_1_0000000000000001"}, got.EventIDs())

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal("HIGH", headers["severity"])
	s.Equal(string(alert.TypeSuspiciousLogin), headers["alert_type"])
}

// Justification: Kafka is a health dependency when configured.
func (s *KafkaNotifierIntegrationSuite) TestProducerHealth() {
	s.NoError(s.producer.Check(context.Background()))
}
