package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerbank/internal/models"
)

func TestEventKey(t *testing.T) {
	e := New(MoneyDeposited)
	e.AccountID = 42
	e.Username = "alice"
	require.Equal(t, "account-42", e.Key())

	c := New(ClientCreated)
	c.Username = "bob"
	require.Equal(t, "client-bob", c.Key())
}

func TestToMessage(t *testing.T) {
	amount := models.MustParseAmount("12.5")
	e := New(MoneyTransferred)
	e.Username = "alice"
	e.AccountID = 1
	e.DestinationID = 2
	e.Amount = &amount

	msg, err := toMessage(e)
	require.NoError(t, err)
	require.Equal(t, "account-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	require.Equal(t, "MoneyTransferred", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "MoneyTransferred", decoded["type"])
	require.Equal(t, 12.5, decoded["amount"])
	require.Equal(t, float64(2), decoded["destinationAccountId"])
	require.NotContains(t, decoded, "manager")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), New(ClientCreated), New(AccountCreated)))
	require.NoError(t, r.Publish(context.Background()))
	require.Equal(t, []Type{ClientCreated, AccountCreated}, r.Types())
	require.Len(t, r.Events(), 2)
	require.NotEqual(t, r.Events()[0].ID, r.Events()[1].ID)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), New(ClientDeleted)))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherDefaults(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "")
	require.Equal(t, DefaultTopic, p.writer.Topic)
	require.NoError(t, p.Publish(context.Background()))
	require.NoError(t, p.Close())
}
