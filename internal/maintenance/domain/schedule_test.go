package maintenance

import "testing"

func TestBucketFor(t *testing.T) {
	cases := []struct {
		hours float64
		want  RULBucket
	}{
		{100, BucketCritical},
		{499.9, BucketCritical},
		{500, BucketWarning},
		{750, BucketWarning},
		{1000, BucketWarning},
		{1000.1, BucketHealthy},
		{5000, BucketHealthy},
	}
	for _, tc := range cases {
		if got := BucketFor(tc.hours, 1000, 500); got != tc.want {
			t.Fatalf("BucketFor(%v) = %s, want %s", tc.hours, got, tc.want)
		}
	}
}

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		bucket RULBucket
		hours  float64
		want   Priority
	}{
		{BucketCritical, 100, PriorityCritical},
		// The warning band splits at its midpoint of 750 hours.
		{BucketWarning, 600, PriorityHigh},
		{BucketWarning, 749.9, PriorityHigh},
		{BucketWarning, 750, PriorityMedium},
		{BucketWarning, 1000, PriorityMedium},
		{BucketHealthy, 5000, PriorityLow},
	}
	for _, tc := range cases {
		if got := PriorityFor(tc.bucket, tc.hours, 1000, 500); got != tc.want {
			t.Fatalf("PriorityFor(%s, %v) = %s, want %s", tc.bucket, tc.hours, got, tc.want)
		}
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !p.Valid() {
			t.Fatalf("expected %s to be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Fatal("expected unknown priority to be invalid")
	}
}

func TestEntryStatusValid(t *testing.T) {
	for _, s := range []EntryStatus{StatusScheduled, StatusCompleted, StatusCancelled} {
		if !s.Valid() {
			t.Fatalf("expected %s to be valid", s)
		}
	}
	if EntryStatus("paused").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}
