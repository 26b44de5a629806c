package jazzcash

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Version     = "1.1"
	TxnType     = "MWALLET"
	Language    = "EN"
	TimeLayout  = "20060102150405"
	txnRefStart = "TXN_"
)

var hundred = decimal.NewFromInt(100)

// Checkout is what the signer needs to know about one payment attempt.
type Checkout struct {
	OrderID      int64
	Total        decimal.Decimal
	MobileNumber string
	CNIC         string
}

// Signer builds signed JazzCash redirects. It holds no mutable state.
type Signer struct {
	gw    config.Gateway
	now   func() time.Time
	nonce func() string
}

func NewSigner(gw config.Gateway, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{gw: gw, now: now, nonce: randomNonce}
}

// BuildPaymentRequest validates the shopper input and returns the signed
// request together with the URL the browser must be sent to.
func (s *Signer) BuildPaymentRequest(c Checkout) (*domain.PaymentRequest, error) {
	if err := ValidateCheckoutFields(c.MobileNumber, c.CNIC); err != nil {
		return nil, err
	}

	amount, err := MinorUnits(c.Total)
	if err != nil {
		return nil, err
	}

	now := s.now()
	loc := s.gw.Location
	if loc == nil {
		loc = time.UTC
	}

	req := &domain.PaymentRequest{
		MerchantID:       s.gw.MerchantID,
		TransactionRef:   s.transactionRef(c.OrderID, now),
		AmountMinorUnits: amount,
		Timestamp:        now.In(loc).Format(TimeLayout),
		BillReference:    s.gw.BillReference,
		Description:      s.gw.TxnDescription,
		MobileNumber:     c.MobileNumber,
		CNIC:             c.CNIC,
		ReturnURL:        s.gw.ReturnURL,
	}
	req.SecureHash = RequestHash(
		s.gw.Password.Reveal(),
		req.MerchantID,
		req.TransactionRef,
		strconv.FormatInt(req.AmountMinorUnits, 10),
		req.Timestamp,
		req.BillReference,
		req.Description,
		req.MobileNumber,
	)

	redirect, err := s.redirectURL(req)
	if err != nil {
		return nil, err
	}
	req.RedirectURL = redirect
	return req, nil
}

// MinorUnits converts an order total to paisa, rounding half away from zero.
func MinorUnits(total decimal.Decimal) (int64, error) {
	if total.IsNegative() {
		return 0, domain.ErrInvalidAmount
	}
	return total.Mul(hundred).Round(0).IntPart(), nil
}

// QueryParams is the pp_* field set carried on the redirect.
func QueryParams(req *domain.PaymentRequest) url.Values {
	q := url.Values{}
	q.Set("pp_Version", Version)
	q.Set("pp_TxnType", TxnType)
	q.Set("pp_Language", Language)
	q.Set("pp_MerchantID", req.MerchantID)
	q.Set("pp_TxnRefNo", req.TransactionRef)
	q.Set("pp_Amount", strconv.FormatInt(req.AmountMinorUnits, 10))
	q.Set("pp_TxnDateTime", req.Timestamp)
	q.Set("pp_BillReference", req.BillReference)
	q.Set("pp_Description", req.Description)
	q.Set("pp_MobileNumber", req.MobileNumber)
	q.Set("pp_SecureHash", req.SecureHash)
	q.Set("pp_ReturnURL", req.ReturnURL)
	return q
}

func (s *Signer) redirectURL(req *domain.PaymentRequest) (string, error) {
	u, err := url.Parse(s.gw.EndpointURL())
	if err != nil {
		return "", fmt.Errorf("parse jazzcash endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range QueryParams(req) {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Signer) transactionRef(orderID int64, now time.Time) string {
	ref := txnRefStart + strconv.FormatInt(orderID, 10) + "_" + strconv.FormatInt(now.Unix(), 10)
	if s.gw.TxnRefNonce {
		ref += "_" + s.nonce()
	}
	return ref
}

func randomNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
