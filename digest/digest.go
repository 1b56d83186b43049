// Package digest implements the client side of HTTP Digest authentication
// (RFC 2617, MD5 variant) as spoken by MiFi management interfaces.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// ClientNonce is the cnonce sent with every qop=auth response. It is fixed:
// the exchange is with a single device on the local network and some firmware
// expects the same cnonce for the whole session.
const ClientNonce = "test"

// Credentials identify the device administrator account.
type Credentials struct {
	Username string
	Password string
}

// Challenge is the parsed form of a WWW-Authenticate: Digest header.
type Challenge struct {
	Realm     string
	Nonce     string
	Qop       string
	Opaque    string
	Algorithm string
}

// ChallengeError reports a challenge that cannot be answered. Callers treat it
// as "no credentials available" rather than a hard failure.
type ChallengeError struct {
	Reason string
}

func (e *ChallengeError) Error() string {
	return "unusable digest challenge: " + e.Reason
}

// ParseChallenge parses a WWW-Authenticate header value. The scheme token is
// located case-insensitively anywhere in the value since some firmware
// prefixes extra text; realm and nonce must both be present.
func ParseChallenge(header string) (Challenge, error) {
	idx := indexFold(header, "digest")
	if idx < 0 {
		return Challenge{}, &ChallengeError{Reason: "scheme is not Digest"}
	}

	params := parseParams(header[idx+len("digest"):])
	ch := Challenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Qop:       selectQop(params["qop"]),
		Opaque:    params["opaque"],
		Algorithm: params["algorithm"],
	}

	if ch.Realm == "" {
		return Challenge{}, &ChallengeError{Reason: "missing realm"}
	}
	if ch.Nonce == "" {
		return Challenge{}, &ChallengeError{Reason: "missing nonce"}
	}
	if ch.Algorithm != "" && !strings.EqualFold(ch.Algorithm, "MD5") {
		return Challenge{}, &ChallengeError{Reason: fmt.Sprintf("unsupported algorithm %q", ch.Algorithm)}
	}

	return ch, nil
}

// indexFold returns the byte offset of the first case-insensitive match of
// ASCII token in s, or -1. Offsets always index s itself.
func indexFold(s, token string) int {
	for i := 0; i+len(token) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(token)], token) {
			return i
		}
	}
	return -1
}

// Session holds the per-client digest state. The nonce count increases once
// per generated Authorization header and is never reset, so a given nonce
// never sees the same nc twice. Safe for concurrent use.
type Session struct {
	mu         sync.Mutex
	lastNonce  string
	lastRealm  string
	lastQop    string
	nonceCount uint32
}

// Authorize builds the Authorization header value answering ch for the given
// request method and URI.
func (s *Session) Authorize(method, uri string, ch Challenge, cred Credentials) string {
	s.mu.Lock()
	s.lastNonce = ch.Nonce
	s.lastRealm = ch.Realm
	s.lastQop = ch.Qop
	s.nonceCount++
	nc := fmt.Sprintf("%08d", s.nonceCount)
	s.mu.Unlock()

	ha1 := md5Hex(cred.Username + ":" + ch.Realm + ":" + cred.Password)
	ha2 := md5Hex(method + ":" + uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, cred.Username, ch.Realm, ch.Nonce, uri)

	if ch.Qop == "auth" {
		response := md5Hex(ha1 + ":" + ch.Nonce + ":" + nc + ":" + ClientNonce + ":auth:" + ha2)
		fmt.Fprintf(&b, `, response="%s", qop=auth, nc=%s, cnonce="%s"`, response, nc, ClientNonce)
	} else {
		response := md5Hex(ha1 + ":" + ch.Nonce + ":" + ha2)
		fmt.Fprintf(&b, `, response="%s"`, response)
	}

	if ch.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, ch.Opaque)
	}
	if ch.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, ch.Algorithm)
	}

	return b.String()
}

// NonceCount returns the last nonce count used.
func (s *Session) NonceCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceCount
}

// LastChallenge returns the realm, nonce and qop of the most recent answered challenge.
func (s *Session) LastChallenge() (realm, nonce, qop string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRealm, s.lastNonce, s.lastQop
}

// Authenticator pairs credentials with a session.
type Authenticator struct {
	Credentials Credentials
	Session     Session
}

// NewAuthenticator creates an Authenticator for the given account.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{Credentials: Credentials{Username: username, Password: password}}
}

// Respond parses header and returns the Authorization value for method and uri.
// A *ChallengeError means no credentials can be offered.
func (a *Authenticator) Respond(header, method, uri string) (string, error) {
	ch, err := ParseChallenge(header)
	if err != nil {
		return "", err
	}
	return a.Session.Authorize(method, uri, ch, a.Credentials), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// selectQop picks "auth" out of a possibly comma separated qop list.
func selectQop(raw string) string {
	for _, q := range strings.Split(raw, ",") {
		if strings.TrimSpace(q) == "auth" {
			return "auth"
		}
	}
	return strings.TrimSpace(raw)
}

// parseParams splits key=value pairs on commas outside quoted strings and
// unquotes the values. Keys are lowercased.
func parseParams(s string) map[string]string {
	params := make(map[string]string)

	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())

	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = value[1 : len(value)-1]
		}
		params[key] = value
	}

	return params
}
