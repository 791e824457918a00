package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vuhieu2402/restaurant-payments/internal/config"
	"github.com/vuhieu2402/restaurant-payments/internal/metrics"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

// Wire field names of the gateway protocol.
const (
	fieldVersion       = "version"
	fieldCommand       = "command"
	fieldMerchantCode  = "merchant_code"
	fieldAmount        = "amount"
	fieldCurrency      = "currency"
	fieldTxnRef        = "txn_ref"
	fieldOrderInfo     = "order_info"
	fieldOrderType     = "order_type"
	fieldLocale        = "locale"
	fieldReturnURL     = "return_url"
	fieldIPAddr        = "ip_addr"
	fieldCreateDate    = "create_date"
	fieldResponseCode  = "response_code"
	fieldTransactionNo = "transaction_no"
	fieldPayDate       = "pay_date"
	fieldBankCode      = "bank_code"
	fieldCardType      = "card_type"

	commandPay   = "pay"
	commandQuery = "querydr"

	dateLayout = "20060102150405"
)

// ErrMissingTxnRef marks a verified payload that carries no transaction
// reference and therefore cannot be correlated to a payment.
var ErrMissingTxnRef = errors.New("callback missing transaction reference")

// NormalizedOutcome is the fixed-shape result of decoding a verified gateway
// payload. Nothing downstream of the client touches raw key-value maps.
type NormalizedOutcome struct {
	TxnRef       string
	Success      bool
	ResponseCode string
	Reason       string
	GatewayTxnID string
	Amount       float64
	PaidAt       time.Time
	CardBrand    string
	BankCode     string
	Raw          json.RawMessage
}

// Client translates domain intent into the gateway wire format and back.
type Client struct {
	cfg   config.GatewayConfig
	codec *SignatureCodec
	http  *http.Client
}

func NewClient(cfg config.GatewayConfig) (*Client, error) {
	if cfg.MerchantCode == "" || cfg.Secret == "" || cfg.PayURL == "" {
		return nil, fmt.Errorf("%w: merchant code, secret and pay URL are required", models.ErrUnsupportedGateway)
	}
	return &Client{
		cfg:   cfg,
		codec: NewSignatureCodec(cfg.Secret, cfg.AllowUnsigned),
		http:  &http.Client{Timeout: time.Duration(cfg.QueryTimeout) * time.Second},
	}, nil
}

// BuildPaymentURL assembles the signed redirect URL for an online payment.
// The returned transaction reference is referenceID suffixed with the unix
// timestamp; the caller must treat a persistence collision on it as a
// creation error.
func (c *Client) BuildPaymentURL(referenceID string, amount float64, orderInfo, clientIP string) (string, string, error) {
	txnRef := fmt.Sprintf("%s_%d", referenceID, time.Now().Unix())
	scaled := int64(math.Round(amount * float64(c.cfg.AmountScale)))

	params := map[string]string{
		fieldVersion:      c.cfg.Version,
		fieldCommand:      commandPay,
		fieldMerchantCode: c.cfg.MerchantCode,
		fieldAmount:       strconv.FormatInt(scaled, 10),
		fieldCurrency:     "VND",
		fieldTxnRef:       txnRef,
		fieldOrderInfo:    orderInfo,
		fieldOrderType:    "dining",
		fieldLocale:       c.cfg.Locale,
		fieldReturnURL:    c.cfg.ReturnURL,
		fieldIPAddr:       clientIP,
		fieldCreateDate:   time.Now().Format(dateLayout),
	}

	hash := c.codec.Sign(params)

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set(fieldSecureHashType, hashAlgorithm)
	q.Set(fieldSecureHash, hash)

	return c.cfg.PayURL + "?" + q.Encode(), txnRef, nil
}

// ParseCallback verifies the signature of an inbound callback or browser
// return payload and decodes it into a NormalizedOutcome. On any
// verification failure no other field of the payload may be trusted.
func (c *Client) ParseCallback(raw url.Values) (*NormalizedOutcome, error) {
	return c.decode(raw)
}

// QueryStatus issues a signed status query for a transaction reference. It
// is the active polling fallback for deployments the gateway cannot call
// back. Network failures map to ErrGatewayUnreachable and are retryable
// because the query is read-only.
func (c *Client) QueryStatus(ctx context.Context, txnRef string) (*NormalizedOutcome, error) {
	if c.cfg.QueryURL == "" {
		return nil, fmt.Errorf("%w: no query URL configured", models.ErrUnsupportedGateway)
	}

	params := map[string]string{
		fieldVersion:      c.cfg.Version,
		fieldCommand:      commandQuery,
		fieldMerchantCode: c.cfg.MerchantCode,
		fieldTxnRef:       txnRef,
		fieldCreateDate:   time.Now().Format(dateLayout),
	}
	hash := c.codec.Sign(params)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set(fieldSecureHashType, hashAlgorithm)
	form.Set(fieldSecureHash, hash)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.QueryURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveGatewayCall(commandQuery, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveGatewayCall(commandQuery, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: status %d", models.ErrGatewayUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ObserveGatewayCall(commandQuery, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnreachable, err)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		metrics.ObserveGatewayCall(commandQuery, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: undecodable response", models.ErrGatewayUnreachable)
	}
	metrics.ObserveGatewayCall(commandQuery, "ok", time.Since(start).Seconds())

	return c.decode(values)
}

// decode applies the shared decoding rules: verify first, then extract.
func (c *Client) decode(raw url.Values) (*NormalizedOutcome, error) {
	params := make(map[string]string, len(raw))
	for k := range raw {
		params[k] = raw.Get(k)
	}

	if err := c.codec.Verify(params); err != nil {
		metrics.SignatureFailuresTotal.Inc()
		return nil, err
	}

	txnRef := params[fieldTxnRef]
	if txnRef == "" {
		return nil, ErrMissingTxnRef
	}

	code := params[fieldResponseCode]
	out := &NormalizedOutcome{
		TxnRef:       txnRef,
		Success:      code == CodeSuccess,
		ResponseCode: code,
		Reason:       ReasonFor(code),
		GatewayTxnID: params[fieldTransactionNo],
		CardBrand:    params[fieldCardType],
		BankCode:     params[fieldBankCode],
	}

	if v := params[fieldAmount]; v != "" {
		if scaled, err := strconv.ParseInt(v, 10, 64); err == nil {
			out.Amount = float64(scaled) / float64(c.cfg.AmountScale)
		}
	}
	if v := params[fieldPayDate]; v != "" {
		if t, err := time.Parse(dateLayout, v); err == nil {
			out.PaidAt = t
		}
	}

	blob, _ := json.Marshal(params)
	out.Raw = blob
	return out, nil
}
