package auth

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Credential is an opaque bearer string with its local expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be presented at now, keeping
// leeway in reserve for request latency.
func (c Credential) Valid(now time.Time, leeway time.Duration) bool {
	if strings.TrimSpace(c.Token) == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(leeway).Before(c.ExpiresAt)
}

// Claims is the decoded credential payload.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Signature string
	Encoding  string
}

var errMalformedCredential = errors.New("malformed credential payload")

// payloadEncoding is one historical layout of the credential payload. The
// trailing three fields are always expiry, issued-at, and signature.
type payloadEncoding struct {
	name      string
	delimiter string
}

// encodings is probed in order; the first delimiter present wins.
var encodings = []payloadEncoding{
	{name: "pipe", delimiter: "|"},
	{name: "legacy-colon", delimiter: ":"},
}

const trailingFields = 3

// DecodeClaims parses the credential payload without checking expiry.
func DecodeClaims(token string) (Claims, error) {
	payload, err := decodePayload(token)
	if err != nil {
		return Claims{}, err
	}
	for _, enc := range encodings {
		if !strings.Contains(payload, enc.delimiter) {
			continue
		}
		return enc.decode(payload)
	}
	return Claims{}, errMalformedCredential
}

// DecodeSubject returns the identity embedded in token, or false when the
// payload is malformed or already expired at now. A false result means no
// identity is available and is never an error.
func DecodeSubject(token string, now time.Time) (string, bool) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return "", false
	}
	if !now.Before(claims.ExpiresAt) {
		return "", false
	}
	return claims.Subject, true
}

func (e payloadEncoding) decode(payload string) (Claims, error) {
	fields := strings.Split(payload, e.delimiter)
	if len(fields) < trailingFields+1 {
		return Claims{}, errMalformedCredential
	}
	split := len(fields) - trailingFields
	subject := strings.Join(fields[:split], e.delimiter)
	if strings.TrimSpace(subject) == "" {
		return Claims{}, errMalformedCredential
	}
	expiry, err := parseUnix(fields[split])
	if err != nil {
		return Claims{}, err
	}
	issued, err := parseUnix(fields[split+1])
	if err != nil {
		return Claims{}, err
	}
	signature := fields[split+2]
	if signature == "" {
		return Claims{}, errMalformedCredential
	}
	return Claims{
		Subject:   subject,
		ExpiresAt: expiry,
		IssuedAt:  issued,
		Signature: signature,
		Encoding:  e.name,
	}, nil
}

func decodePayload(token string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(token), "=")
	if trimmed == "" {
		return "", errMalformedCredential
	}
	raw, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return "", errMalformedCredential
	}
	return string(raw), nil
}

func parseUnix(value string) (time.Time, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || seconds <= 0 {
		return time.Time{}, errMalformedCredential
	}
	return time.Unix(int64(seconds), 0), nil
}
