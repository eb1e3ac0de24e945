package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignatureField carries the provider's HMAC and is excluded from the
// signature base.
const SignatureField = "signature"

// DefaultTimestampMaxAge bounds how old a delivery may be before it is
// treated as a replay.
const DefaultTimestampMaxAge = 300 * time.Second

// FailedCheck names the authentication stage that rejected a delivery.
type FailedCheck string

const (
	FailedCheckIP        FailedCheck = "ip"
	FailedCheckTimestamp FailedCheck = "timestamp"
	FailedCheckSignature FailedCheck = "signature"
)

// Verdict is the outcome of webhook authentication.
type Verdict struct {
	Valid       bool
	FailedCheck FailedCheck
	Reason      string
}

// AuthenticatorConfig enables individual checks. A zero value for a check's
// configuration means that check is not enforced, not that it passed.
type AuthenticatorConfig struct {
	AllowedIPs      []string
	Secret          string
	TimestampCheck  bool
	TimestampMaxAge time.Duration
}

// Authenticator runs the configured origin checks in order: source IP,
// delivery timestamp, payload signature. The first failure short-circuits.
type Authenticator struct {
	allowExact    map[string]struct{}
	allowPrefixes []netip.Prefix
	secret        string
	checkTime     bool
	maxAge        time.Duration
	now           func() time.Time
}

// NewAuthenticator builds an authenticator from configuration. Allowlist
// entries may be exact addresses or CIDR ranges; unparseable entries are
// dropped rather than silently widening the list.
func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	a := &Authenticator{
		allowExact: make(map[string]struct{}),
		secret:     strings.TrimSpace(cfg.Secret),
		checkTime:  cfg.TimestampCheck,
		maxAge:     cfg.TimestampMaxAge,
		now:        time.Now,
	}
	if a.maxAge <= 0 {
		a.maxAge = DefaultTimestampMaxAge
	}
	for _, entry := range cfg.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil {
				a.allowPrefixes = append(a.allowPrefixes, prefix.Masked())
			}
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			a.allowExact[addr.String()] = struct{}{}
		}
	}
	return a
}

// WithClock overrides the time source used by the freshness check.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// Authenticate verifies the delivery's origin. valid=true only when every
// configured check passes.
func (a *Authenticator) Authenticate(payload map[string]any, clientIP string) Verdict {
	if verdict := a.checkIP(clientIP); !verdict.Valid {
		return verdict
	}
	if verdict := a.checkTimestamp(payload); !verdict.Valid {
		return verdict
	}
	if verdict := a.checkSignature(payload); !verdict.Valid {
		return verdict
	}
	return Verdict{Valid: true}
}

func (a *Authenticator) checkIP(clientIP string) Verdict {
	if len(a.allowExact) == 0 && len(a.allowPrefixes) == 0 {
		return Verdict{Valid: true}
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	if err != nil {
		return Verdict{FailedCheck: FailedCheckIP, Reason: fmt.Sprintf("unparseable client address %q", clientIP)}
	}
	if _, ok := a.allowExact[addr.String()]; ok {
		return Verdict{Valid: true}
	}
	for _, prefix := range a.allowPrefixes {
		if prefix.Contains(addr) {
			return Verdict{Valid: true}
		}
	}
	return Verdict{FailedCheck: FailedCheckIP, Reason: fmt.Sprintf("address %s not in allowlist", addr)}
}

func (a *Authenticator) checkTimestamp(payload map[string]any) Verdict {
	if !a.checkTime {
		return Verdict{Valid: true}
	}
	raw, ok := extractRawField(payload, "timestamp")
	if !ok {
		return Verdict{Valid: true}
	}
	webhookTime, err := parseWebhookTime(raw)
	if err != nil {
		return Verdict{FailedCheck: FailedCheckTimestamp, Reason: "unparseable timestamp"}
	}
	age := a.now().Sub(webhookTime)
	if age < 0 {
		return Verdict{FailedCheck: FailedCheckTimestamp, Reason: "timestamp is in the future"}
	}
	if age > a.maxAge {
		return Verdict{FailedCheck: FailedCheckTimestamp, Reason: fmt.Sprintf("delivery is %s old, max age %s", age.Truncate(time.Second), a.maxAge)}
	}
	return Verdict{Valid: true}
}

func (a *Authenticator) checkSignature(payload map[string]any) Verdict {
	if a.secret == "" {
		return Verdict{Valid: true}
	}
	received, ok := payload[SignatureField].(string)
	received = strings.ToLower(strings.TrimSpace(received))
	if !ok || received == "" {
		return Verdict{FailedCheck: FailedCheckSignature, Reason: "missing signature"}
	}
	expected := SignPayload(payload, a.secret)
	if !hmac.Equal([]byte(expected), []byte(received)) {
		return Verdict{FailedCheck: FailedCheckSignature, Reason: "signature mismatch"}
	}
	return Verdict{Valid: true}
}

// SignPayload computes the hex HMAC-SHA256 of the payload's canonical
// form: the signature field removed, remaining keys sorted, joined as
// key=value pairs with "&".
func SignPayload(payload map[string]any, secret string) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		if key == SignatureField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+signatureValue(payload[key]))
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func signatureValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func parseWebhookTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0), nil
		}
	case float64:
		return time.Unix(int64(v), 0), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return time.Unix(n, 0), nil
		}
		if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp value %v", value)
}
