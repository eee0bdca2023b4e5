package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the signed timestamp and digest of a webhook call
const SignatureHeader = "X-Webhook-Signature"

// MaxSkew limits how old a signed timestamp may be
const MaxSkew = 300 * time.Second

// Sign computes the header value for a payload: "t=<unix>,v1=<hex hmac>".
// The signed string is "<unix>.<body>".
func Sign(secret string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, digest(secret, ts, body))
}

// Verify checks the signature header against the body. now allows tests to
// pin the clock.
func Verify(secret, header string, body []byte, now time.Time) error {
	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("wrong timestamp '%s'", ts)
	}
	if d := now.Sub(time.Unix(sec, 0)); d > MaxSkew || d < -MaxSkew {
		return fmt.Errorf("timestamp outside tolerance")
	}
	expected := digest(secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func parseHeader(header string) (ts, sig string, err error) {
	if header == "" {
		return "", "", fmt.Errorf("no signature header")
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return "", "", fmt.Errorf("malformed signature header")
	}
	return ts, sig, nil
}

func digest(secret, ts string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
