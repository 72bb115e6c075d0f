package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lv-goldex/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []model.Notification
	fail bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(ctx context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.got = append(s.got, n)
	return nil
}

type staticAdmins []string

func (a staticAdmins) AdminIDs(ctx context.Context) ([]string, error) { return a, nil }

func TestDispatcherFansOutAndSurvivesSinkFailure(t *testing.T) {
	broken := &recordingSink{fail: true}
	ok := &recordingSink{}
	d := NewDispatcher(staticAdmins{"admin-1", "admin-2"}, nil, nil, time.Second, broken, ok)

	d.Notify("user-1", "Order created", "your order is pending", map[string]any{"order_id": "o-1"})
	d.NotifyAdmins("New order", "user-1 placed an order", nil)
	d.Wait()

	if len(ok.got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(ok.got))
	}
	users := map[string]bool{}
	for _, n := range ok.got {
		users[n.UserID] = true
	}
	if !users["user-1"] || !users["admin-1"] || !users["admin-2"] {
		t.Fatalf("unexpected recipients: %v", users)
	}
}

func TestDispatcherCopiesMetadata(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(nil, nil, nil, time.Second, sink)
	meta := map[string]any{"order_id": "o-1"}
	d.Notify("user-1", "t", "m", meta)
	meta["order_id"] = "mutated"
	d.Wait()
	if sink.got[0].Metadata["order_id"] != "o-1" {
		t.Fatalf("metadata aliased caller map")
	}
}

func TestHubDeliversOnlyToUser(t *testing.T) {
	h := NewHub()
	mine := h.Subscribe("user-1")
	other := h.Subscribe("user-2")
	defer h.Unsubscribe("user-1", mine)
	defer h.Unsubscribe("user-2", other)

	if err := h.Send(context.Background(), model.Notification{UserID: "user-1", Title: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case evt := <-mine:
		if evt.Type != "notification" {
			t.Fatalf("unexpected event type %s", evt.Type)
		}
	default:
		t.Fatalf("expected event for user-1")
	}
	select {
	case evt := <-other:
		t.Fatalf("unexpected event for user-2: %v", evt)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("user-1")
	h.Unsubscribe("user-1", ch)
	if _, open := <-ch; open {
		t.Fatalf("expected closed channel")
	}
	h.Publish("user-1", Event{Type: "notification"})
}

func TestKafkaSinkPublishesKeyedByUser(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n model.Notification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.UserID != "user-1" || n.Title != "Order completed" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sink := NewKafkaSinkWithProducer(producer, "goldex.notifications", nil)
	if err := sink.Send(context.Background(), model.Notification{UserID: "user-1", Title: "Order completed"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaSinkReportsFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sink := NewKafkaSinkWithProducer(producer, "goldex.notifications", nil)
	if err := sink.Send(context.Background(), model.Notification{UserID: "user-1"}); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected out of brokers, got %v", err)
	}
	_ = sink.Close()
}
