package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"alarmkit/internal/eventbus"
	logx "alarmkit/pkg/logx"
)

type captureAdapter struct {
	mu    sync.Mutex
	sent  []string
	fails int // fail the first N sends
}

func (a *captureAdapter) Send(_ context.Context, text string, _ Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fails > 0 {
		a.fails--
		return errors.New("channel down")
	}
	a.sent = append(a.sent, text)
	return nil
}

func (a *captureAdapter) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startService(t *testing.T, cfg Config, ad Adapter) *Service {
	t.Helper()
	cfg.Enabled = true
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	s := New(cfg, ad, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		s.Stop(stopCtx)
		stop()
		cancel()
	})
	return s
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	ad := &captureAdapter{}
	s := startService(t, Config{}, ad)

	n := Notification{AlarmID: "alarm:1", Label: "wake", Priority: 5,
		FireAt: time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)}
	if err := s.Notify(context.Background(), n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(ad.snapshot()) == 1 })

	got := ad.snapshot()[0]
	if !strings.Contains(got, "wake") || !strings.HasPrefix(got, "⏰ ") {
		t.Fatalf("rendered text = %q", got)
	}
	if h := s.Snapshot(); len(h) != 1 {
		t.Fatalf("history = %v", h)
	}
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	ad := &captureAdapter{}
	s := startService(t, Config{DedupWindow: time.Minute}, ad)

	n := Notification{AlarmID: "alarm:1", Label: "wake",
		FireAt: time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)}
	for i := 0; i < 3; i++ {
		if err := s.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return len(ad.snapshot()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := ad.snapshot(); len(got) != 1 {
		t.Fatalf("duplicates delivered: %v", got)
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ad := &captureAdapter{fails: 2}
	s := startService(t, Config{RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, ad)

	if err := s.Notify(context.Background(), Notification{AlarmID: "alarm:1", Label: "wake"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(ad.snapshot()) == 1 })
}

func TestNotifyFailureEmitsBusEvent(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	ad := &captureAdapter{fails: 100}
	cfg := Config{Enabled: true, RetryMax: 1, RetryBase: time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond, RatePerSec: 1000}
	s := New(cfg, ad, logx.Nop(), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	if err := s.Notify(context.Background(), Notification{AlarmID: "alarm:1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == EventFailed {
				ev, ok := e.Data.(DeliveryEvent)
				if !ok || ev.AlarmID != "alarm:1" || ev.Error == "" {
					t.Fatalf("unexpected event payload: %+v", e.Data)
				}
				return
			}
		case <-deadline:
			t.Fatal("no notify.failed event observed")
		}
	}
}

func TestNotifyWhenDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{}, &captureAdapter{}, logx.Nop(), nil)
	if err := s.Notify(context.Background(), Notification{AlarmID: "a"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
