package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParams() map[string]string {
	return map[string]string{
		"vnp_Amount":            "12500000",
		"vnp_TxnRef":            "01J8ZK3V2Q6H",
		"vnp_OrderInfo":         "Thanh toan don hang 01J8ZK3V2Q6H",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_BankCode":          "",
	}
}

func TestCanonicalizeSortsAndEncodesSpaces(t *testing.T) {
	got := Canonicalize(map[string]string{
		"b":   "two words",
		"a":   "x+y",
		"c":   "",
		"a&b": "=",
	})

	assert.Equal(t, "a=x%2By&a%26b=%3D&b=two%20words&c=", got)
	assert.NotContains(t, got, "+")
}

func TestCanonicalizeDropsSignatureFields(t *testing.T) {
	params := sampleParams()
	base := Canonicalize(params)

	params[FieldSecureHash] = "deadbeef"
	params[FieldSecureHashType] = "HmacSHA512"

	assert.Equal(t, base, Canonicalize(params))
}

func TestSignMatchesHMACSHA512(t *testing.T) {
	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte("a=1&b=2"))
	want := hex.EncodeToString(mac.Sum(nil))

	got := Sign("a=1&b=2", "secret")
	assert.Equal(t, want, got)
	assert.Len(t, got, 128)
	assert.Equal(t, strings.ToLower(got), got)
}

func TestVerifyRoundTrip(t *testing.T) {
	params := sampleParams()
	sig := Sign(Canonicalize(params), "topsecret")

	params[FieldSecureHash] = sig
	require.True(t, Verify(params, sig, "topsecret"))
	require.True(t, Verify(params, strings.ToUpper(sig), "topsecret"), "hex comparison is case-insensitive")
}

func TestVerifyDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{name: "amount", mutate: func(p map[string]string) { p["vnp_Amount"] = "100" }},
		{name: "response code", mutate: func(p map[string]string) { p["vnp_ResponseCode"] = "24" }},
		{name: "added field", mutate: func(p map[string]string) { p["vnp_Extra"] = "1" }},
		{name: "removed field", mutate: func(p map[string]string) { delete(p, "vnp_OrderInfo") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := sampleParams()
			sig := Sign(Canonicalize(params), "topsecret")
			tc.mutate(params)
			assert.False(t, Verify(params, sig, "topsecret"))
		})
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	params := sampleParams()
	sig := Sign(Canonicalize(params), "topsecret")

	assert.False(t, Verify(params, sig, ""), "empty secret")
	assert.False(t, Verify(params, "", "topsecret"), "empty signature")
	assert.False(t, Verify(params, "not-hex", "topsecret"), "malformed signature")
	assert.False(t, Verify(params, sig, "other"), "wrong secret")
}

func TestCodecSkipEmpty(t *testing.T) {
	codec := Codec{SkipEmpty: true}
	params := sampleParams()

	canonical := codec.Canonicalize(params)
	assert.NotContains(t, canonical, "vnp_BankCode")

	sig := codec.SignParams(params, "k")
	assert.True(t, codec.Verify(params, sig, "k"))
	assert.False(t, Verify(params, sig, "k"), "default codec keeps empty values")
}

func TestCodecEncodeKeepsSignature(t *testing.T) {
	codec := Codec{SkipEmpty: true}
	params := map[string]string{"vnp_Amount": "100", FieldSecureHash: "abc", "vnp_BankCode": ""}

	assert.Equal(t, "vnp_Amount=100&vnp_SecureHash=abc", codec.Encode(params))
}

func TestCodecCustomExclusions(t *testing.T) {
	codec := Codec{ExcludedFields: []string{"signature"}}
	params := map[string]string{"amount": "10", "signature": "x", FieldSecureHash: "y"}

	assert.Equal(t, "amount=10&vnp_SecureHash=y", codec.Canonicalize(params))
}
