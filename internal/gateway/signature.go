package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/vuhieu2402/restaurant-payments/internal/models"
)

const (
	fieldSecureHash     = "secure_hash"
	fieldSecureHashType = "secure_hash_type"

	hashAlgorithm = "HMACSHA512"
)

// SignatureCodec signs and verifies the gateway's canonical parameter
// signature: keys sorted lexicographically, values URL-encoded, joined as
// k=v pairs with '&', HMAC-SHA512 over the result, lowercase hex.
type SignatureCodec struct {
	secret        []byte
	allowUnsigned bool
}

func NewSignatureCodec(secret string, allowUnsigned bool) *SignatureCodec {
	return &SignatureCodec{secret: []byte(secret), allowUnsigned: allowUnsigned}
}

// Sign computes the signature over all non-empty parameters.
func (c *SignatureCodec) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}

	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over every parameter except the hash and
// hash-type fields and compares it against the received value in constant
// time. A missing hash fails closed unless unsigned mode was enabled.
func (c *SignatureCodec) Verify(params map[string]string) error {
	received := params[fieldSecureHash]
	if received == "" {
		if c.allowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: no %s field in payload", models.ErrInvalidSignature, fieldSecureHash)
	}

	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if k == fieldSecureHash || k == fieldSecureHashType {
			continue
		}
		filtered[k] = v
	}

	expected := c.Sign(filtered)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(received))) {
		return models.ErrInvalidSignature
	}
	return nil
}
