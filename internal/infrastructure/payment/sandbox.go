package payment

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"jazzcash-gateway/internal/domain"
	"jazzcash-gateway/internal/jazzcash"

	"github.com/google/uuid"
)

var (
	ErrBadSignature   = errors.New("sandbox: pp_SecureHash does not match request")
	ErrMissingReturn  = errors.New("sandbox: request has no pp_ReturnURL")
	ErrUnknownPayment = errors.New("sandbox: no payment for transaction ref")
)

// Response codes the sandbox hands out besides success.
const (
	CodeDeclined          = "124"
	CodeInsufficientFunds = "157"
)

// Callback is what the hosted page posts back to the merchant's return URL.
type Callback struct {
	ReturnURL string
	Fields    map[string]string
	// Delayed marks a paid transaction whose callback the shopper's browser
	// never delivered on time.
	Delayed bool
}

// StatusChecker asks the processor for the response code of a transaction.
// ErrUnknownPayment means the processor never saw the reference.
type StatusChecker interface {
	CheckStatus(ctx context.Context, txnRef string) (string, error)
}

// Processor stands in for the JazzCash hosted payment page.
type Processor interface {
	StatusChecker
	Pay(ctx context.Context, redirectURL string) (*Callback, error)
}

type sandboxProcessor struct {
	mu       sync.RWMutex
	password string
	results  map[string]string
	roll     func(n int) int
	latency  time.Duration
}

func NewSandboxProcessor(password string, latency time.Duration) Processor {
	return &sandboxProcessor{
		password: password,
		results:  make(map[string]string),
		roll:     rand.IntN,
		latency:  latency,
	}
}

func (p *sandboxProcessor) Pay(ctx context.Context, redirectURL string) (*Callback, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("sandbox: parse redirect: %w", err)
	}
	q := u.Query()
	if !p.signatureValid(q) {
		return nil, ErrBadSignature
	}
	returnURL := q.Get("pp_ReturnURL")
	if returnURL == "" {
		return nil, ErrMissingReturn
	}
	ref := q.Get("pp_TxnRefNo")

	// Paying the same reference twice replays the first result.
	p.mu.RLock()
	code, seen := p.results[ref]
	p.mu.RUnlock()

	delayed := false
	if !seen {
		chance := p.roll(100)
		switch {
		case chance < 70:
			code = domain.SuccessResponseCode
		case chance < 80:
			code = CodeInsufficientFunds
		case chance < 90:
			code = CodeDeclined
		default:
			// Charged, but the browser stalls before returning.
			code = domain.SuccessResponseCode
			delayed = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.latency):
		}

		p.mu.Lock()
		p.results[ref] = code
		p.mu.Unlock()
	}

	return &Callback{ReturnURL: returnURL, Fields: p.callbackFields(q, code), Delayed: delayed}, nil
}

func (p *sandboxProcessor) CheckStatus(ctx context.Context, txnRef string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	code, ok := p.results[txnRef]
	if !ok {
		return "", ErrUnknownPayment
	}
	return code, nil
}

func (p *sandboxProcessor) signatureValid(q url.Values) bool {
	want := jazzcash.RequestHash(
		p.password,
		q.Get("pp_MerchantID"),
		q.Get("pp_TxnRefNo"),
		q.Get("pp_Amount"),
		q.Get("pp_TxnDateTime"),
		q.Get("pp_BillReference"),
		q.Get("pp_Description"),
		q.Get("pp_MobileNumber"),
	)
	got := strings.ToLower(q.Get("pp_SecureHash"))
	return hmac.Equal([]byte(got), []byte(want))
}

func (p *sandboxProcessor) callbackFields(q url.Values, code string) map[string]string {
	fields := map[string]string{
		"pp_Version":              q.Get("pp_Version"),
		"pp_TxnType":              q.Get("pp_TxnType"),
		"pp_Language":             q.Get("pp_Language"),
		"pp_MerchantID":           q.Get("pp_MerchantID"),
		"pp_TxnRefNo":             q.Get("pp_TxnRefNo"),
		"pp_Amount":               q.Get("pp_Amount"),
		"pp_TxnCurrency":          "PKR",
		"pp_TxnDateTime":          q.Get("pp_TxnDateTime"),
		"pp_BillReference":        q.Get("pp_BillReference"),
		"pp_ResponseCode":         code,
		"pp_ResponseMessage":      responseMessage(code),
		"pp_RetreivalReferenceNo": strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
	}
	fields["pp_SecureHash"] = jazzcash.ResponseHash(p.password, fields)
	return fields
}

func responseMessage(code string) string {
	switch code {
	case domain.SuccessResponseCode:
		return "Thank you for Using JazzCash, your transaction was successful."
	case CodeInsufficientFunds:
		return "Insufficient balance."
	default:
		return "Transaction declined."
	}
}
