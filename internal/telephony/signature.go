// Package telephony holds provider-specific helpers shared by the webhook
// handlers and the operator CLI.
package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the provider's request signature
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Sign computes base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
// Repeated keys contribute every value in sorted order.
func Sign(authToken, rawURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the exact request URL and form
// parameters. The provider may sign with or without the default port, so
// both spellings of the URL are accepted.
func VerifySignature(authToken, signature, rawURL string, params url.Values) error {
	if signature == "" {
		return ErrMissingSignature
	}

	for _, candidate := range urlVariants(rawURL) {
		expected := Sign(authToken, candidate, params)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func urlVariants(rawURL string) []string {
	variants := []string{rawURL}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return variants
	}

	defaultPort := map[string]string{"https": "443", "http": "80"}[u.Scheme]
	if defaultPort == "" {
		return variants
	}

	alt := *u
	if u.Port() == defaultPort {
		alt.Host = u.Hostname()
	} else if u.Port() == "" {
		alt.Host = u.Hostname() + ":" + defaultPort
	} else {
		return variants
	}
	return append(variants, alt.String())
}
