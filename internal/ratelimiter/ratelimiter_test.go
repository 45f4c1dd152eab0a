package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		wantNil   bool
	}{
		{name: "standard rate", perSecond: 100, burst: 200},
		{name: "low rate", perSecond: 1, burst: 2},
		{name: "zero burst", perSecond: 5, burst: 0},
		{name: "unlimited", perSecond: 0, burst: 0, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.perSecond, tt.burst)
			if tt.wantNil {
				if limiter != nil {
					t.Fatal("expected nil limiter for zero rate")
				}
				return
			}
			if limiter == nil || limiter.limiter == nil {
				t.Fatal("New() returned an unusable limiter")
			}
			if limiter.limiter.Burst() < 1 {
				t.Fatalf("burst must be at least 1, got %d", limiter.limiter.Burst())
			}
		})
	}
}

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow() {
			t.Fatalf("connection %d should be admitted (within burst)", i)
		}
	}
	if limiter.Allow() {
		t.Fatal("connection beyond burst should be throttled")
	}
}

func TestNilLimiterNeverThrottles(t *testing.T) {
	var limiter *RateLimiter

	for i := 0; i < 1000; i++ {
		if !limiter.Allow() {
			t.Fatal("nil limiter must always allow")
		}
	}
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter Wait returned %v", err)
	}
	if limiter.Limit() != 0 {
		t.Fatalf("nil limiter Limit() = %v, want 0", limiter.Limit())
	}
}

func TestWait_RespectsContext(t *testing.T) {
	limiter := New(1, 1)
	if !limiter.Allow() {
		t.Fatal("first token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("Wait should fail when the next token is beyond the deadline")
	}
}

func TestWait_Refills(t *testing.T) {
	limiter := New(100, 1)
	if !limiter.Allow() {
		t.Fatal("first token should be available")
	}

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Wait took too long: %v", elapsed)
	}
}
