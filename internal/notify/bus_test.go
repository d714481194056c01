package notify

import "testing"

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewBus()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish()

	select {
	case <-ch1:
	default:
		t.Fatalf("subscriber 1 missed the broadcast")
	}
	select {
	case <-ch2:
	default:
		t.Fatalf("subscriber 2 missed the broadcast")
	}
}

func TestBus_CoalescesBackToBackBroadcasts(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish()
	b.Publish()
	b.Publish()

	// At-least-once: the undrained subscriber holds exactly one pending
	// signal.
	select {
	case <-ch:
	default:
		t.Fatalf("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatalf("signals must coalesce, got a second one")
	default:
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()

	cancel()
	b.Publish()

	select {
	case <-ch:
		t.Fatalf("cancelled subscriber must not receive broadcasts")
	default:
	}

	if b.Len() != 0 {
		t.Fatalf("expected no active subscriptions, got %d", b.Len())
	}
}

func TestBus_PublishWithoutSubscribersIsSafe(t *testing.T) {
	NewBus().Publish()
}
