package model

import (
	"strconv"
	"testing"
	"time"
)

// TestWhoisRecordIsExpired checks the expiry rule used by reuse and cleanup.
func TestWhoisRecordIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("epoch one second in the past is expired", func(t *testing.T) {
		t.Parallel()

		r := WhoisRecord{Subject: "example.org", Epoch: strconv.FormatInt(now.Add(-time.Second).Unix(), 10)}
		if !r.IsExpired(now) {
			t.Error("expected record to be expired")
		}
	})

	t.Run("epoch one year ahead is not expired", func(t *testing.T) {
		t.Parallel()

		r := WhoisRecord{Subject: "example.org", Epoch: strconv.FormatInt(now.AddDate(1, 0, 0).Unix(), 10)}
		if r.IsExpired(now) {
			t.Error("expected record not to be expired")
		}
	})

	t.Run("float epoch is compared numerically", func(t *testing.T) {
		t.Parallel()

		r := WhoisRecord{Epoch: strconv.FormatInt(now.Unix()+100, 10) + ".5"}
		if r.IsExpired(now) {
			t.Error("expected record not to be expired")
		}
	})

	t.Run("garbage epoch is expired", func(t *testing.T) {
		t.Parallel()

		r := WhoisRecord{Epoch: "soon"}
		if !r.IsExpired(now) {
			t.Error("expected unreadable epoch to be expired")
		}
	})
}

// TestNewWhoisRecordClampsDates checks the ceiling applied to far-future dates.
func TestNewWhoisRecordClampsDates(t *testing.T) {
	t.Parallel()

	far := time.Date(12000, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := NewWhoisRecord("example.org", "example.org", far, "Example Registrar")

	if r.ExpirationDate != "31-dec-9999" {
		t.Errorf("expected clamped date 31-dec-9999, got %q", r.ExpirationDate)
	}
	if r.Epoch != strconv.FormatInt(MaxExpirationDate.Unix(), 10) {
		t.Errorf("expected epoch recomputed from the ceiling, got %q", r.Epoch)
	}
	if r.Overflows() {
		t.Error("clamped record must not overflow")
	}

	r.Epoch = strconv.FormatInt(MaxExpirationDate.Unix()+1, 10)
	if !r.Overflows() {
		t.Error("expected epoch beyond the ceiling to overflow")
	}
}

// TestContinueRecordIsPending checks the pending marker.
func TestContinueRecordIsPending(t *testing.T) {
	t.Parallel()

	if !(ContinueRecord{TestedAt: PendingTime}).IsPending() {
		t.Error("expected PendingTime row to be pending")
	}
	if (ContinueRecord{TestedAt: time.Now()}).IsPending() {
		t.Error("expected tested row not to be pending")
	}
}
