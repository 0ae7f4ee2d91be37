package util

import (
	"context"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	l := NewLimiter(100*time.Millisecond, 2)

	if !l.Allow() {
		t.Error("expected first event to be allowed")
	}
	if !l.Allow() {
		t.Error("expected second event to be allowed (burst)")
	}
	if l.Allow() {
		t.Error("expected third event to be rejected (burst exhausted)")
	}

	time.Sleep(150 * time.Millisecond)
	if !l.Allow() {
		t.Error("expected an event to be allowed after the interval")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("expected unlimited limiter to allow event %d", i)
		}
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := NewLimiter(time.Hour, 1)
	l.Allow() // consume burst

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected wait to fail before the next token")
	}
}
