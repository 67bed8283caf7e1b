package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe(StreamStateChanged, func(e Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: StreamStateChanged, Data: StreamStateData{Streaming: true}})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Type != StreamStateChanged {
			t.Errorf("Expected StreamStateChanged, got %v", received.Type)
		}
		if data, ok := received.Data.(StreamStateData); !ok || !data.Streaming {
			t.Errorf("Expected streaming payload, got %v", received.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: TranscriptUpdated, Data: nil})
	bus.Publish(Event{Type: UsageUpdated, Data: nil})
	bus.Publish(Event{Type: SessionError, Data: nil})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(TranscriptUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(Event{Type: TranscriptUpdated, Data: nil})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 event before unsub, got %d", count)
	}

	unsub()

	bus.PublishSync(Event{Type: TranscriptUpdated, Data: nil})
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected still 1 event after unsub, got %d", count)
	}
}

func TestBus_PublishSyncOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var deltas []string
	unsub := bus.Subscribe(TranscriptUpdated, func(e Event) {
		deltas = append(deltas, e.Data.(TranscriptData).Delta)
	})
	defer unsub()

	for _, d := range []string{"Hel", "lo ", "wor", "ld"} {
		bus.PublishSync(Event{Type: TranscriptUpdated, Data: TranscriptData{Delta: d}})
	}

	got := ""
	for _, d := range deltas {
		got += d
	}
	if got != "Hello world" {
		t.Errorf("Expected ordered deltas to spell 'Hello world', got %q", got)
	}
}

func TestBus_PublishOrderPreserved(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var deltas []string
	var wg sync.WaitGroup
	wg.Add(4)

	unsub := bus.Subscribe(TranscriptUpdated, func(e Event) {
		mu.Lock()
		deltas = append(deltas, e.Data.(TranscriptData).Delta)
		mu.Unlock()
		wg.Done()
	})
	defer unsub()

	for _, d := range []string{"Hel", "lo ", "wor", "ld"} {
		bus.Publish(Event{Type: TranscriptUpdated, Data: TranscriptData{Delta: d}})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}

	mu.Lock()
	defer mu.Unlock()
	got := ""
	for _, d := range deltas {
		got += d
	}
	if got != "Hello world" {
		t.Errorf("Expected async deltas in publish order, got %q", got)
	}
}

func TestBus_PublishAfterCloseDropsEvent(t *testing.T) {
	bus := NewBus()

	var count int32
	bus.Subscribe(TranscriptUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	bus.Publish(Event{Type: TranscriptUpdated, Data: TranscriptData{Delta: "late"}})

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Expected no delivery after close, got %d", count)
	}
}

func TestBus_FilteredByType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(UsageUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	bus.PublishSync(Event{Type: TranscriptUpdated, Data: nil})
	bus.PublishSync(Event{Type: UsageUpdated, Data: nil})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected only UsageUpdated delivery, got %d", count)
	}
}

func TestBus_ClosedBusIsInert(t *testing.T) {
	bus := NewBus()
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var count int32
	unsub := bus.Subscribe(TranscriptUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	defer unsub()

	bus.PublishSync(Event{Type: TranscriptUpdated, Data: nil})
	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("Expected no delivery after close, got %d", count)
	}
}
