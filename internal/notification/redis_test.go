package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestRedisNotifierPublishesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "balance-events")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	notifier := NewRedisNotifier(client, "balance-events")
	event := BalanceChange{
		OwnerID:         "merchant-1",
		WalletType:      "merchant",
		Currency:        "USD",
		Delta:           decimal.RequireFromString("868.5"),
		TransactionType: "payment",
		TransactionID:   "txn-1",
		At:              time.Now().UTC(),
	}
	if err := notifier.Notify(ctx, event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got BalanceChange
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.OwnerID != event.OwnerID || !got.Delta.Equal(event.Delta) || got.TransactionID != event.TransactionID {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestLoggerNotifierNilLogger(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Notify(context.Background(), BalanceChange{}); err != nil {
		t.Fatalf("nil notifier: %v", err)
	}
	if err := NewLoggerNotifier(nil).Notify(context.Background(), BalanceChange{}); err != nil {
		t.Fatalf("nil logger: %v", err)
	}
}
