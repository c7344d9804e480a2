package slip

import (
	"strings"
	"time"
)

// Failed check labels, persisted on payment evidence.
const (
	CheckUnreadable    = "unreadable"
	CheckAmount        = "amount_mismatch"
	CheckReceiver      = "receiver_mismatch"
	CheckTransferStale = "stale_transfer"
)

// Matcher decides whether read slip data is acceptable evidence for an
// expected amount. All thresholds are injected from config.
type Matcher struct {
	ToleranceSatang int64
	RecencyWindow   time.Duration
	ShopAccounts    []string
}

func NewMatcher(toleranceSatang int64, recencyWindow time.Duration, shopAccounts []string) *Matcher {
	return &Matcher{
		ToleranceSatang: toleranceSatang,
		RecencyWindow:   recencyWindow,
		ShopAccounts:    shopAccounts,
	}
}

// Match returns the list of failed checks; an empty list means the slip is
// acceptable. Checks are independent so that a reviewer sees every problem at
// once.
func (m *Matcher) Match(data *Data, expectedSatang int64, now time.Time) []string {
	var failed []string

	diff := data.AmountSatang - expectedSatang
	if diff < 0 {
		diff = -diff
	}
	if diff > m.ToleranceSatang {
		failed = append(failed, CheckAmount)
	}

	if !m.receiverMatches(data.ReceiverAccount) {
		failed = append(failed, CheckReceiver)
	}

	age := now.Sub(data.TransferredAt)
	if age < 0 || age > m.RecencyWindow {
		failed = append(failed, CheckTransferStale)
	}

	return failed
}

// receiverMatches compares digit-only forms: banks mask account numbers
// differently ("xxx-x-12345-x" vs "1234512345"), so either side containing
// the other counts as a match.
func (m *Matcher) receiverMatches(receiver string) bool {
	got := digitsOnly(receiver)
	if got == "" {
		return false
	}
	for _, account := range m.ShopAccounts {
		want := digitsOnly(account)
		if want == "" {
			continue
		}
		if strings.Contains(got, want) || strings.Contains(want, got) {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
