// Package slip talks to the external transfer-slip reading service and
// decides whether a read slip is acceptable evidence for an order.
package slip

import (
	"context"
	"time"
)

// Data is the structured result of reading one slip image.
type Data struct {
	TransactionRef  string
	AmountSatang    int64
	TransferredAt   time.Time
	SenderAccount   string
	ReceiverAccount string
}

// Reader extracts structured data from a slip image reference. Any failure
// (network, timeout, malformed body) is an error; callers route errors to
// manual review, never to order failure.
type Reader interface {
	Read(ctx context.Context, imageRef string) (*Data, error)
}
