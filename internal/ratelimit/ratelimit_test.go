package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWindowLimiterComputesExactWait(t *testing.T) {
	wl := NewWindowLimiter(Window{Span: time.Minute, Max: 2})
	now := time.Now()

	wl.mu.Lock()
	defer wl.mu.Unlock()

	if w := wl.admitWait(now); w != 0 {
		t.Fatalf("first admission should pass, got wait %s", w)
	}
	if w := wl.admitWait(now.Add(time.Second)); w != 0 {
		t.Fatalf("second admission should pass, got wait %s", w)
	}
	// Window full: the slot frees when the oldest admission expires, 58s
	// from this attempt.
	if w := wl.admitWait(now.Add(2 * time.Second)); w != 58*time.Second {
		t.Fatalf("third admission wait = %s, want 58s", w)
	}
	// Past the window both admissions have expired.
	if w := wl.admitWait(now.Add(time.Minute + 2*time.Second)); w != 0 {
		t.Fatalf("admission after the window elapsed should pass, got wait %s", w)
	}
}

func TestWindowLimiterDropsUnboundedWindows(t *testing.T) {
	wl := NewWindowLimiter(Window{Span: time.Minute, Max: 0}, Window{Span: 0, Max: 5})
	if err := wl.Wait(context.Background()); err != nil {
		t.Fatalf("a limiter with no bounded windows must admit immediately: %v", err)
	}
}

func TestListPageLimiterSpacesPerHost(t *testing.T) {
	l := NewListPageLimiter(2, 60*time.Millisecond, 0)

	l.Acquire("suumo.jp")
	l.Release()

	start := time.Now()
	l.Acquire("homes.co.jp")
	l.Release()
	if time.Since(start) > 30*time.Millisecond {
		t.Fatal("a different host must not inherit another host's spacing")
	}

	start = time.Now()
	l.Acquire("suumo.jp")
	l.Release()
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("the same host must wait out its spacing")
	}
}

func TestHostOf(t *testing.T) {
	if h := HostOf("https://suumo.jp/jj/bukken/ichiran/"); h != "suumo.jp" {
		t.Fatalf("HostOf = %q, want suumo.jp", h)
	}
	if h := HostOf("://not-a-url"); h != "" {
		t.Fatalf("HostOf on an unparseable URL = %q, want empty", h)
	}
}

func TestAdaptiveLimiterSlowModeDropsRate(t *testing.T) {
	pace := DetailPacing{DayPerHour: 30, NightPerHour: 30, DefaultPerHour: 30}
	l := NewAdaptiveDetailLimiter(pace, AdaptiveConfig{Window: 4})

	for i := 0; i < 4; i++ {
		l.Observe(false)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if got := l.ratePerHourLocked(time.Now()); got != 5 {
		t.Fatalf("rate after a full window of failures = %d/hr, want the slow-mode 5/hr", got)
	}
}

func TestAdaptiveLimiterEnforcesEvenSpacing(t *testing.T) {
	pace := DetailPacing{DayPerHour: 60, NightPerHour: 60, DefaultPerHour: 60}
	l := NewAdaptiveDetailLimiter(pace, AdaptiveConfig{})
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.admitWaitLocked(now, 60); w != 0 {
		t.Fatalf("first admission should pass, got wait %s", w)
	}
	l.admitted = append(l.admitted, now)
	l.lastAt = now

	// 60/hr means one per minute; 10s in, 50s remain.
	if w := l.admitWaitLocked(now.Add(10*time.Second), 60); w != 50*time.Second {
		t.Fatalf("spacing wait = %s, want 50s", w)
	}
}
