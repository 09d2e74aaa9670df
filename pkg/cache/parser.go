package cache

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/moneta-app/moneta-core/pkg/security"
)

// PayloadKind classifies raw storage bytes into the closed set of shapes
// the engine has ever written.
type PayloadKind int

const (
	// KindEnvelope is an encrypted payload in any historical envelope shape
	KindEnvelope PayloadKind = iota
	// KindLegacyTimestamp is a bare numeric value under a known legacy key
	KindLegacyTimestamp
	// KindRawJSON is a generic pre-encryption JSON payload
	KindRawJSON
	// KindCorrupted is anything unparseable under every known shape
	KindCorrupted
)

// Envelope is the on-disk encrypted form. The current shape (v2) tags the
// payload with the sealing key's version; v1 stored IV and ciphertext as
// separate fields, and the oldest installs wrote a bare base64 blob.
type Envelope struct {
	Version    int    `json:"v,omitempty"`
	KeyID      string `json:"kid,omitempty"`
	Data       string `json:"data,omitempty"`       // v2 and bare: base64(IV ‖ ciphertext)
	IV         string `json:"iv,omitempty"`         // v1
	Ciphertext string `json:"ciphertext,omitempty"` // v1
}

// Blob normalizes any envelope shape to base64(IV ‖ ciphertext).
func (e *Envelope) Blob() (string, bool) {
	if e.Data != "" {
		return e.Data, true
	}
	if e.IV == "" || e.Ciphertext == "" {
		return "", false
	}

	iv, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return "", false
	}
	ct, err := base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(append(iv, ct...)), true
}

// Payload is the tagged result of parsing raw storage bytes.
type Payload struct {
	Kind     PayloadKind
	Envelope *Envelope
	LegacyTS int64
	Raw      json.RawMessage
}

// parsePayload classifies raw bytes read back from storage. It never
// fails: anything unrecognizable is KindCorrupted, which tells the caller
// to evict the key. Envelope shapes are tried first, then the bare-numeric
// normalization for known legacy keys, then generic JSON.
func (c *Config) parsePayload(key, raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Payload{Kind: KindCorrupted}
	}

	if env, ok := parseEnvelope(trimmed); ok {
		return Payload{Kind: KindEnvelope, Envelope: env}
	}

	if c.isLegacyKey(key) {
		if ts, ok := parseLegacyTimestamp(trimmed); ok {
			return Payload{Kind: KindLegacyTimestamp, LegacyTS: ts}
		}
	}

	if json.Valid([]byte(trimmed)) {
		return Payload{Kind: KindRawJSON, Raw: json.RawMessage(trimmed)}
	}

	return Payload{Kind: KindCorrupted}
}

func parseEnvelope(raw string) (*Envelope, bool) {
	if strings.HasPrefix(raw, "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, false
		}

		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, false
		}

		// v1 shape: separate IV and ciphertext fields
		if _, hasIV := fields["iv"]; hasIV {
			if _, hasCT := fields["ciphertext"]; hasCT {
				return &env, true
			}
		}

		// v2 shape: versioned, key-tagged blob
		if env.Version >= 2 && env.Data != "" {
			return &env, true
		}

		return nil, false
	}

	// Oldest shape: a bare base64 blob of IV ‖ ciphertext
	if security.IsEnvelopeBlob(raw) {
		return &Envelope{Data: raw}, true
	}

	return nil, false
}

// parseLegacyTimestamp accepts a bare epoch-milliseconds value, optionally
// JSON-quoted, as older builds wrote both forms.
func parseLegacyTimestamp(raw string) (int64, bool) {
	value := raw
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = value[1 : len(value)-1]
	}

	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil || ts < 0 {
		return 0, false
	}
	return ts, true
}
