package slip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPReader posts slip image references to the configured provider. The
// provider reports amounts as decimal baht strings; they are converted to
// satang before anything else touches them.
type HTTPReader struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPReader(baseURL string, apiKey string, timeout time.Duration) *HTTPReader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReader{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type providerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		TransRef  string `json:"transRef"`
		Amount    string `json:"amount"`
		TransDate string `json:"transDate"`
		TransTime string `json:"transTime"`
		Sender    struct {
			Account struct {
				Value string `json:"value"`
			} `json:"account"`
		} `json:"sender"`
		Receiver struct {
			Account struct {
				Value string `json:"value"`
			} `json:"account"`
		} `json:"receiver"`
	} `json:"data"`
}

func (r *HTTPReader) Read(ctx context.Context, imageRef string) (*Data, error) {
	payload, err := json.Marshal(map[string]string{"image": imageRef})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slip provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slip provider returned status %d", resp.StatusCode)
	}

	var decoded providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("slip provider body: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("slip provider rejected image: %s", decoded.Message)
	}
	if decoded.Data.TransRef == "" {
		return nil, fmt.Errorf("slip provider returned no transaction ref")
	}

	amount, err := bahtToSatang(decoded.Data.Amount)
	if err != nil {
		return nil, err
	}

	transferredAt, err := parseTransferTime(decoded.Data.TransDate, decoded.Data.TransTime)
	if err != nil {
		return nil, err
	}

	return &Data{
		TransactionRef:  decoded.Data.TransRef,
		AmountSatang:    amount,
		TransferredAt:   transferredAt,
		SenderAccount:   decoded.Data.Sender.Account.Value,
		ReceiverAccount: decoded.Data.Receiver.Account.Value,
	}, nil
}

func bahtToSatang(amount string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("slip provider amount %q: %w", amount, err)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

func parseTransferTime(date string, clock string) (time.Time, error) {
	if clock == "" {
		clock = "00:00:00"
	}
	t, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("slip provider timestamp %q %q: %w", date, clock, err)
	}
	return t.UTC(), nil
}
