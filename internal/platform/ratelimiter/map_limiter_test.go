package ratelimiter

import (
	"fmt"
	"testing"
	"time"
)

func tracked(l *MapLimiter, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byKey[key]
	return ok
}

func TestMapLimiterSuppressesWithinInterval(t *testing.T) {
	l := New(1.0/3, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("scan-a", now) {
		t.Fatal("first event must be admitted")
	}
	if l.Allow("scan-a", now.Add(time.Second)) {
		t.Fatal("repeat inside the interval must be suppressed")
	}
	if !l.Allow("scan-b", now.Add(time.Second)) {
		t.Fatal("other keys are independent")
	}
	if !l.Allow("scan-a", now.Add(4*time.Second)) {
		t.Fatal("event after the interval must be admitted")
	}
}

func TestMapLimiterDisabledAndBlankKeys(t *testing.T) {
	var l *MapLimiter
	if !l.Allow("x", time.Now()) {
		t.Fatal("nil limiter must admit everything")
	}
	l.Forget("x")
	if New(0, 1, 0) != nil || New(1, 0, 0) != nil {
		t.Fatal("invalid arguments must disable limiting")
	}
	l = New(0.001, 1, 0)
	now := time.Now()
	if !l.Allow("  ", now) || !l.Allow("", now) {
		t.Fatal("blank keys are never limited")
	}
	if tracked(l, "") {
		t.Fatal("blank keys must not be tracked")
	}
}

func TestMapLimiterForget(t *testing.T) {
	l := New(0.001, 1, 0)
	now := time.Now()
	l.Allow("k", now)
	if l.Allow("k", now) {
		t.Fatal("expected suppression")
	}
	l.Forget(" k ")
	if !l.Allow("k", now) {
		t.Fatal("forgotten key must be admitted again")
	}
}

func TestMapLimiterEvictsIdleKeys(t *testing.T) {
	l := New(1, 1, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("old", start)
	later := start.Add(2 * time.Minute)
	for i := 0; i < 512; i++ {
		l.Allow(fmt.Sprintf("k-%d", i), later)
	}
	if tracked(l, "old") {
		t.Fatal("idle key should have been evicted")
	}
}
