package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	// FieldSecureHash carries the signature on signed-redirect callbacks.
	FieldSecureHash = "vnp_SecureHash"
	// FieldSecureHashType names the hash algorithm on signed-redirect callbacks.
	FieldSecureHashType = "vnp_SecureHashType"
)

// Codec canonicalises parameter maps and signs them with HMAC-SHA512.
type Codec struct {
	// ExcludedFields are dropped before canonicalisation. A nil slice means the secure hash
	// fields; an empty slice excludes nothing.
	ExcludedFields []string
	// SkipEmpty drops parameters with empty values, mirroring gateways that never sign them.
	SkipEmpty bool
}

// Default is the codec used by the package level helpers. Empty values are kept.
var Default = Codec{ExcludedFields: []string{FieldSecureHash, FieldSecureHashType}}

// Canonicalize renders params with keys sorted lexicographically and joined as key=value pairs
// by '&'. Keys and values are percent-encoded with spaces written as %20.
func Canonicalize(params map[string]string) string {
	return Default.Canonicalize(params)
}

// Sign returns the lower-case hex HMAC-SHA512 of canonical.
func Sign(canonical, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the signature of params under secret.
func Verify(params map[string]string, provided, secret string) bool {
	return Default.Verify(params, provided, secret)
}

// Canonicalize renders params after dropping excluded fields (and empty values when SkipEmpty).
func (c Codec) Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if c.excluded(key) {
			continue
		}
		if c.SkipEmpty && value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(key))
		b.WriteByte('=')
		b.WriteString(escape(params[key]))
	}
	return b.String()
}

// SignParams canonicalises params and signs the result.
func (c Codec) SignParams(params map[string]string, secret string) string {
	return Sign(c.Canonicalize(params), secret)
}

// Verify recomputes the signature of params and compares it with provided in constant time.
// An empty secret or signature never verifies.
func (c Codec) Verify(params map[string]string, provided, secret string) bool {
	provided = strings.TrimSpace(provided)
	if secret == "" || provided == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(c.SignParams(params, secret))
	if err != nil {
		return false
	}
	return hmac.Equal(got, want)
}

// Encode renders every parameter, signature fields included, as a query string in canonical
// order.
func (c Codec) Encode(params map[string]string) string {
	return Codec{ExcludedFields: []string{}, SkipEmpty: c.SkipEmpty}.Canonicalize(params)
}

func (c Codec) excluded(key string) bool {
	fields := c.ExcludedFields
	if fields == nil {
		fields = Default.ExcludedFields
	}
	for _, field := range fields {
		if strings.EqualFold(field, key) {
			return true
		}
	}
	return false
}

func escape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
