package config

import (
	"strings"
	"testing"
	"time"
)

func TestDetectionThresholds(t *testing.T) {
	if LowConfidenceThreshold >= CriticalConfidenceThreshold {
		t.Errorf("LowConfidenceThreshold (%v) should be below CriticalConfidenceThreshold (%v)",
			LowConfidenceThreshold, CriticalConfidenceThreshold)
	}
	if CriticalConfidenceThreshold <= 0 || CriticalConfidenceThreshold >= 1 {
		t.Errorf("CriticalConfidenceThreshold should be within (0,1), got %v", CriticalConfidenceThreshold)
	}
	if MaxDetectionBatchSize <= 0 {
		t.Error("MaxDetectionBatchSize should be positive")
	}
}

func TestCriticalClasses(t *testing.T) {
	for _, class := range []string{"person", "vehicle", "weapon", "fire", "smoke"} {
		if !CriticalClasses[class] {
			t.Errorf("expected %q in critical allow-list", class)
		}
	}
	for class := range CriticalClasses {
		if class != strings.ToLower(class) {
			t.Errorf("critical class %q must be lowercase", class)
		}
	}
	if CriticalClasses["bird"] {
		t.Error("bird should not be critical")
	}
}

func TestPaginationLimits(t *testing.T) {
	if DefaultPaginationLimit > MaxPaginationLimit {
		t.Errorf("DefaultPaginationLimit (%d) should not exceed MaxPaginationLimit (%d)",
			DefaultPaginationLimit, MaxPaginationLimit)
	}

	if DefaultPaginationLimit <= 0 {
		t.Error("DefaultPaginationLimit should be positive")
	}

	if MaxPaginationLimit <= 0 {
		t.Error("MaxPaginationLimit should be positive")
	}
}

func TestIdempotencyTTLs(t *testing.T) {
	ttls := []struct {
		name string
		ttl  time.Duration
	}{
		{"KeyTTL", IdempotencyKeyTTL},
		{"LockTTL", IdempotencyLockTTL},
	}

	for _, tt := range ttls {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ttl <= 0 {
				t.Errorf("TTL for %s should be positive, got %v", tt.name, tt.ttl)
			}
		})
	}

	if IdempotencyLockTTL >= IdempotencyKeyTTL {
		t.Errorf("lock TTL (%v) should be shorter than key TTL (%v)", IdempotencyLockTTL, IdempotencyKeyTTL)
	}
}
