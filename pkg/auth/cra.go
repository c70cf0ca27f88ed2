package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// ChallengeFields are the fields the router embeds in a WAMP-CRA challenge
// string.
type ChallengeFields struct {
	AuthID       string `json:"authid"`
	AuthRole     string `json:"authrole"`
	AuthProvider string `json:"authprovider"`
	Session      int64  `json:"session"`
	Timestamp    string `json:"timestamp"`
	Nonce        string `json:"nonce"`
}

// NewChallenge builds the JSON challenge string a router sends in
// CHALLENGE.Extra["challenge"] for the wampcra method.
func NewChallenge(session int64, authid, authrole, authprovider string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: generate nonce: %w", err)
	}
	fields := ChallengeFields{
		AuthID:       authid,
		AuthRole:     authrole,
		AuthProvider: authprovider,
		Session:      session,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Nonce:        hex.EncodeToString(nonce),
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("auth: marshal challenge: %w", err)
	}
	return string(b), nil
}

// DeriveKey computes the CRA signing key for a password: the raw password
// if salt is nil, or base64(PBKDF2-HMAC-SHA256(password, salt, iterations,
// keylen)) otherwise.
func DeriveKey(password string, salt *Salt) string {
	if salt == nil {
		return password
	}
	key := pbkdf2.Key([]byte(password), []byte(salt.Salt), salt.Iterations, salt.KeyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Sign computes the client-side AUTHENTICATE signature: base64(HMAC-SHA256
// of the challenge string under key).
func Sign(challenge, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a client-supplied signature against the expected one in
// constant time.
func Verify(challenge, key, signature string) bool {
	expected := Sign(challenge, key)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
