package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func anchoredFor(user byte) PortfolioAnchored {
	return PortfolioAnchored{
		User:          common.BytesToAddress([]byte{user}),
		ActionType:    1,
		Action:        "UPDATE_PORTFOLIO",
		DataHash:      common.BytesToHash([]byte{0xaa}),
		Timestamp:     1_700_000_000,
		SchemaVersion: 1,
	}
}

func TestFeedDeliversToMatchingSubscribers(t *testing.T) {
	feed := NewFeed(4)
	all, cancelAll := feed.Subscribe(nil)
	defer cancelAll()
	onlyTwo, cancelTwo := feed.Subscribe(func(evt Event) bool {
		anchored, ok := evt.(PortfolioAnchored)
		return ok && anchored.User == common.BytesToAddress([]byte{2})
	})
	defer cancelTwo()

	feed.Emit(anchoredFor(1))
	feed.Emit(anchoredFor(2))

	if got := len(all); got != 2 {
		t.Fatalf("expected 2 buffered events, got %d", got)
	}
	if got := len(onlyTwo); got != 1 {
		t.Fatalf("expected filtered subscriber to see 1 event, got %d", got)
	}
	evt := <-onlyTwo
	if evt.EventType() != TypePortfolioAnchored {
		t.Fatalf("unexpected event type %s", evt.EventType())
	}
}

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	feed := NewFeed(1)
	var droppedTypes []string
	feed.OnDrop(func(eventType string) { droppedTypes = append(droppedTypes, eventType) })
	_, cancel := feed.Subscribe(nil)
	feed.Emit(anchoredFor(1))
	feed.Emit(anchoredFor(1))
	if feed.Dropped() != 1 {
		t.Fatalf("expected one drop, got %d", feed.Dropped())
	}
	if len(droppedTypes) != 1 || droppedTypes[0] != TypePortfolioAnchored {
		t.Fatalf("expected drop hook for %s, got %v", TypePortfolioAnchored, droppedTypes)
	}
	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	feed.Emit(anchoredFor(1))
}

func TestMultiAndRecorder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	Multi{first, nil, NoopEmitter{}, second}.Emit(anchoredFor(3))
	if len(first.Events) != 1 || len(second.Events) != 1 {
		t.Fatalf("expected both recorders to observe the event")
	}
}

func TestPortfolioAnchoredAttributes(t *testing.T) {
	attrs := anchoredFor(9).Attributes()
	if attrs["action"] != "UPDATE_PORTFOLIO" || attrs["schemaVersion"] != "1" {
		t.Fatalf("unexpected attrs: %+v", attrs)
	}
	if attrs["timestamp"] != "1700000000" {
		t.Fatalf("unexpected timestamp attr: %s", attrs["timestamp"])
	}
}
