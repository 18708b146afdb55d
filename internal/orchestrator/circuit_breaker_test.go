package orchestrator

import "testing"

func TestFieldBreakerMissCountIsCumulativeAcrossHits(t *testing.T) {
	b := NewFieldBreaker(5, 0.5, 10)

	// Four misses, then a hit: the hit must not reset the count.
	for i := 0; i < 4; i++ {
		if tripped, _ := b.Record("price", false); tripped {
			t.Fatalf("tripped early on miss %d", i+1)
		}
	}
	if tripped, _ := b.Record("price", true); tripped {
		t.Fatal("a hit must never trip the breaker")
	}

	tripped, reason := b.Record("price", false)
	if !tripped {
		t.Fatal("expected the fifth cumulative miss to trip despite the intervening hit")
	}
	if reason == "" {
		t.Fatal("expected a trip reason")
	}
}

func TestFieldBreakerRateTrip(t *testing.T) {
	// A miss threshold too high to matter: only the rate condition can trip.
	b := NewFieldBreaker(100, 0.5, 10)

	pattern := []bool{false, true, false, true, false, true, false, true, false, false}
	for i, hit := range pattern[:9] {
		if tripped, _ := b.Record("area", hit); tripped {
			t.Fatalf("tripped early at attempt %d", i+1)
		}
	}
	// Tenth attempt: 6 misses over 10 attempts, rate 0.6 > 0.5.
	if tripped, _ := b.Record("area", false); !tripped {
		t.Fatal("expected the rate condition to trip at 6/10 misses")
	}
}

func TestFieldBreakerCountsFieldsIndependently(t *testing.T) {
	b := NewFieldBreaker(3, 0.5, 100)

	b.Record("price", false)
	b.Record("area", false)
	b.Record("price", false)
	if tripped, _ := b.Record("area", false); tripped {
		t.Fatal("area has only two misses, must not trip on price's count")
	}
	if tripped, _ := b.Record("price", false); !tripped {
		t.Fatal("expected price to trip on its own third miss")
	}
}

func TestSuspiciousGuardResetsOnCleanUpdate(t *testing.T) {
	// Unlike the field breaker, the suspicious-update guard is a true
	// consecutive streak: a clean update breaks it.
	g := NewSuspiciousGuard(3)

	g.Record(true)
	g.Record(true)
	g.Record(false)
	if g.Record(true) {
		t.Fatal("streak was broken by the clean update, one flag must not trip")
	}
	g.Record(true)
	if !g.Record(true) {
		t.Fatal("expected three flags in a row to trip")
	}
}
