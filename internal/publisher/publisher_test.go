package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		name string
		stmt models.Statement
		want string
	}{
		{"booked", models.Statement{AccountCode: "123456789"}, "statements.123456789"},
		{"pending", models.Statement{AccountCode: "123", Pending: true}, "statements.pending.123"},
		{"wildcards replaced", models.Statement{AccountCode: "DE.12#3*"}, "statements.DE_12_3_"},
		{"no account", models.Statement{}, "statements.unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoutingKey("statements", &tt.stmt))
		})
	}
}

type recordingPublisher struct {
	got    []*models.Statement
	failAt int
}

func (r *recordingPublisher) Publish(_ context.Context, stmt *models.Statement) error {
	if r.failAt > 0 && len(r.got)+1 == r.failAt {
		return errors.New("broker down")
	}
	r.got = append(r.got, stmt)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestPublishAll(t *testing.T) {
	stmts := []*models.Statement{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	rec := &recordingPublisher{}
	require.NoError(t, PublishAll(context.Background(), rec, stmts))
	assert.Len(t, rec.got, 3)

	rec = &recordingPublisher{failAt: 2}
	err := PublishAll(context.Background(), rec, stmts)
	assert.ErrorContains(t, err, "statement 2")
	assert.Len(t, rec.got, 1)

	assert.NoError(t, PublishAll(context.Background(), NopPublisher{}, stmts))
}

func startRabbitMQContainer(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForLog("Server startup complete"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start rabbitmq container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestAMQPPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	url := startRabbitMQContainer(t, ctx)
	cfg := Config{URL: url, Exchange: "ebics", RoutingKey: "statements"}

	pub, err := NewAMQPPublisher(cfg, logging.NewMockLogger())
	require.NoError(t, err)
	defer func() { _ = pub.Close() }()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "statements.#", cfg.Exchange, false, nil))
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	stmt := &models.Statement{Type: "STA", ID: "7", AccountCode: "123", Currency: "EUR", EndBalance: decimal.NewFromInt(42)}
	require.NoError(t, pub.Publish(ctx, stmt))

	select {
	case msg := <-msgs:
		assert.Equal(t, "statements.123", msg.RoutingKey)
		assert.Equal(t, "application/json", msg.ContentType)
		assert.NotEmpty(t, msg.MessageId)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, "7", got["id"])
		assert.Equal(t, "42", got["end_balance"])
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for statement")
	}
}
