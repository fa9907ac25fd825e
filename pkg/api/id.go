package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	requestIDPrefix = "req_"
	callIDPrefix    = "call_"
)

var (
	requestIDPattern = regexp.MustCompile(`^req_[a-zA-Z0-9]{24}$`)
)

// NewRequestID generates a new request ID with the "req_" prefix followed
// by 24 cryptographically random alphanumeric characters.
func NewRequestID() string {
	return requestIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID generates an identifier for a locally synthesized tool call.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateRequestID checks whether the given string is a valid request ID.
func ValidateRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
