package slip

import (
	"testing"
	"time"
)

func testMatcher() *Matcher {
	return NewMatcher(100, 24*time.Hour, []string{"123-4-56789-0"})
}

func cleanData(now time.Time) *Data {
	return &Data{
		TransactionRef:  "TXN-1",
		AmountSatang:    136318,
		TransferredAt:   now.Add(-time.Hour),
		SenderAccount:   "999-9-99999-9",
		ReceiverAccount: "xxx-x-56789-0",
	}
}

func TestMatchAcceptsCleanSlip(t *testing.T) {
	now := time.Now().UTC()
	failed := testMatcher().Match(cleanData(now), 136318, now)
	if len(failed) != 0 {
		t.Fatalf("expected no failed checks, got %v", failed)
	}
}

func TestMatchAmountTolerance(t *testing.T) {
	now := time.Now().UTC()
	m := testMatcher()

	cases := []struct {
		name     string
		amount   int64
		wantFail bool
	}{
		{"exact", 136318, false},
		{"one baht short", 136218, false},
		{"one baht over", 136418, false},
		{"just past tolerance", 136217, true},
		{"way short", 100000, true},
	}
	for _, tc := range cases {
		data := cleanData(now)
		data.AmountSatang = tc.amount
		failed := m.Match(data, 136318, now)
		gotFail := false
		for _, check := range failed {
			if check == CheckAmount {
				gotFail = true
			}
		}
		if gotFail != tc.wantFail {
			t.Fatalf("%s: amount %d, failed=%v, want fail=%v", tc.name, tc.amount, failed, tc.wantFail)
		}
	}
}

func TestMatchReceiverDigitForms(t *testing.T) {
	now := time.Now().UTC()
	m := testMatcher()

	cases := []struct {
		name     string
		receiver string
		ok       bool
	}{
		{"full dashed form", "123-4-56789-0", true},
		{"bank masked tail", "56789-0", true},
		{"spaced digits", "5 6 7 8 9 0", true},
		{"wrong account", "111-1-11111-1", false},
		{"no digits", "xxx-x-xxxxx-x", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		data := cleanData(now)
		data.ReceiverAccount = tc.receiver
		failed := m.Match(data, 136318, now)
		gotMismatch := false
		for _, check := range failed {
			if check == CheckReceiver {
				gotMismatch = true
			}
		}
		if gotMismatch == tc.ok {
			t.Fatalf("%s: receiver %q, failed=%v", tc.name, tc.receiver, failed)
		}
	}
}

func TestMatchTransferRecency(t *testing.T) {
	now := time.Now().UTC()
	m := testMatcher()

	cases := []struct {
		name     string
		at       time.Time
		wantFail bool
	}{
		{"just now", now, false},
		{"within window", now.Add(-23 * time.Hour), false},
		{"past window", now.Add(-25 * time.Hour), true},
		{"future timestamp", now.Add(time.Hour), true},
	}
	for _, tc := range cases {
		data := cleanData(now)
		data.TransferredAt = tc.at
		failed := m.Match(data, 136318, now)
		gotStale := false
		for _, check := range failed {
			if check == CheckTransferStale {
				gotStale = true
			}
		}
		if gotStale != tc.wantFail {
			t.Fatalf("%s: transferred at %s, failed=%v, want fail=%v", tc.name, tc.at, failed, tc.wantFail)
		}
	}
}

func TestMatchReportsEveryFailure(t *testing.T) {
	now := time.Now().UTC()
	data := &Data{
		TransactionRef:  "TXN-BAD",
		AmountSatang:    50000,
		TransferredAt:   now.Add(-48 * time.Hour),
		ReceiverAccount: "111-1-11111-1",
	}
	failed := testMatcher().Match(data, 136318, now)
	if len(failed) != 3 {
		t.Fatalf("expected all three checks to fail, got %v", failed)
	}
}
