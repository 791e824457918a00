package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhieu2402/restaurant-payments/internal/config"
	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Name:         "cardgate",
		Version:      "2.1.0",
		MerchantCode: "REST01",
		Secret:       "s3cret",
		PayURL:       "https://sandbox.cardgate.example/pay",
		ReturnURL:    "https://restaurant.example/gateway/return",
		Locale:       "vn",
		AmountScale:  100,
		QueryTimeout: 2,
	}
}

func signedValues(t *testing.T, codec *SignatureCodec, params map[string]string) url.Values {
	t.Helper()
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set(fieldSecureHashType, hashAlgorithm)
	values.Set(fieldSecureHash, codec.Sign(params))
	return values
}

func TestBuildPaymentURL(t *testing.T) {
	client, err := NewClient(testGatewayConfig())
	require.NoError(t, err)

	payURL, txnRef, err := client.BuildPaymentURL("PAY-abc", 150000, "Thanh toan don hang 42", "203.0.113.9")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(txnRef, "PAY-abc_"), "txn ref %q must embed the payment id", txnRef)

	parsed, err := url.Parse(payURL)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "pay", q.Get(fieldCommand))
	assert.Equal(t, "REST01", q.Get(fieldMerchantCode))
	assert.Equal(t, "15000000", q.Get(fieldAmount), "amount must be scaled to gateway minor units")
	assert.Equal(t, txnRef, q.Get(fieldTxnRef))
	assert.Equal(t, "203.0.113.9", q.Get(fieldIPAddr))
	assert.NotEmpty(t, q.Get(fieldSecureHash))

	// The URL must verify with the same codec rules it was signed with.
	codec := NewSignatureCodec("s3cret", false)
	params := map[string]string{}
	for k := range q {
		params[k] = q.Get(k)
	}
	assert.NoError(t, codec.Verify(params))
}

func TestBuildPaymentURLRespectsAmountScale(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.AmountScale = 1
	client, err := NewClient(cfg)
	require.NoError(t, err)

	payURL, _, err := client.BuildPaymentURL("PAY-x", 300000, "deposit", "198.51.100.1")
	require.NoError(t, err)

	parsed, _ := url.Parse(payURL)
	assert.Equal(t, "300000", parsed.Query().Get(fieldAmount))
}

func TestParseCallbackSuccess(t *testing.T) {
	client, err := NewClient(testGatewayConfig())
	require.NoError(t, err)
	codec := NewSignatureCodec("s3cret", false)

	values := signedValues(t, codec, map[string]string{
		fieldTxnRef:        "PAY-abc_1700000000",
		fieldResponseCode:  "00",
		fieldAmount:        "15000000",
		fieldTransactionNo: "9912345",
		fieldPayDate:       "20240115103000",
		fieldBankCode:      "NCB",
		fieldCardType:      "ATM",
	})

	outcome, err := client.ParseCallback(values)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "PAY-abc_1700000000", outcome.TxnRef)
	assert.Equal(t, float64(150000), outcome.Amount, "amount must be divided back by the scale factor")
	assert.Equal(t, "9912345", outcome.GatewayTxnID)
	assert.Equal(t, "NCB", outcome.BankCode)
	assert.Equal(t, "ATM", outcome.CardBrand)
	assert.Equal(t, 2024, outcome.PaidAt.Year())
	assert.NotEmpty(t, outcome.Raw)
}

func TestParseCallbackFailureCodes(t *testing.T) {
	client, err := NewClient(testGatewayConfig())
	require.NoError(t, err)
	codec := NewSignatureCodec("s3cret", false)

	cases := []struct {
		code   string
		reason string
	}{
		{"51", "insufficient funds"},
		{"24", "cancelled by customer"},
		{"XX", "other gateway error"}, // unknown codes bucket instead of erroring
	}
	for _, tc := range cases {
		values := signedValues(t, codec, map[string]string{
			fieldTxnRef:       "PAY-abc_1700000000",
			fieldResponseCode: tc.code,
		})
		outcome, err := client.ParseCallback(values)
		require.NoError(t, err, "code %s", tc.code)
		assert.False(t, outcome.Success)
		assert.Equal(t, tc.reason, outcome.Reason)
	}
}

func TestParseCallbackRejectsBadSignature(t *testing.T) {
	client, err := NewClient(testGatewayConfig())
	require.NoError(t, err)

	values := url.Values{}
	values.Set(fieldTxnRef, "PAY-abc_1700000000")
	values.Set(fieldResponseCode, "00")
	values.Set(fieldSecureHash, strings.Repeat("ab", 64))

	_, err = client.ParseCallback(values)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}

func TestParseCallbackRequiresTxnRef(t *testing.T) {
	client, err := NewClient(testGatewayConfig())
	require.NoError(t, err)
	codec := NewSignatureCodec("s3cret", false)

	values := signedValues(t, codec, map[string]string{fieldResponseCode: "00"})

	_, err = client.ParseCallback(values)
	assert.ErrorIs(t, err, ErrMissingTxnRef)
}

func TestQueryStatus(t *testing.T) {
	codec := NewSignatureCodec("s3cret", false)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "querydr", r.Form.Get(fieldCommand))
		txnRef := r.Form.Get(fieldTxnRef)

		reply := signedValues(t, codec, map[string]string{
			fieldTxnRef:       txnRef,
			fieldResponseCode: "00",
			fieldAmount:       strconv.Itoa(30000000),
		})
		w.Write([]byte(reply.Encode()))
	}))
	defer srv.Close()

	cfg := testGatewayConfig()
	cfg.QueryURL = srv.URL
	client, err := NewClient(cfg)
	require.NoError(t, err)

	outcome, err := client.QueryStatus(context.Background(), "PAY-dep_1700000001")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, float64(300000), outcome.Amount)
}

func TestQueryStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testGatewayConfig()
	cfg.QueryURL = srv.URL
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.QueryStatus(context.Background(), "PAY-x_1")
	assert.ErrorIs(t, err, models.ErrGatewayUnreachable)
}

func TestNewClientRequiresMerchantConfig(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Secret = ""

	_, err := NewClient(cfg)
	assert.ErrorIs(t, err, models.ErrUnsupportedGateway)
}
