package auth

import (
	"strconv"

	"github.com/gorilla/securecookie"
	"github.com/pkg/errors"
)

var errBadToken = errors.New("malformed session token")

// Codec converts between a user id and the opaque cookie value.
type Codec interface {
	Encode(userID int64) (string, error)
	Decode(token string) (int64, error)
}

// PlainCodec stores the user id as a decimal string. Anyone can forge it;
// it exists for deployments that have not configured a session secret.
type PlainCodec struct{}

func (PlainCodec) Encode(userID int64) (string, error) {
	return strconv.FormatInt(userID, 10), nil
}

func (PlainCodec) Decode(token string) (int64, error) {
	userID, err := strconv.ParseInt(token, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errBadToken
	}
	return userID, nil
}

// SignedCodec authenticates (and optionally encrypts) the user id with
// gorilla/securecookie.
type SignedCodec struct {
	name string
	sc   *securecookie.SecureCookie
}

// NewSignedCodec builds a codec bound to the cookie name. blockKey may be nil
// to sign without encrypting; when set it must be 16, 24 or 32 bytes.
func NewSignedCodec(name string, hashKey, blockKey []byte, maxAge int) (*SignedCodec, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("session hash key is empty")
	}
	sc := securecookie.New(hashKey, blockKey)
	if maxAge > 0 {
		sc.MaxAge(maxAge)
	}
	// Probe once so a bad block key fails at startup rather than on first login.
	if _, err := sc.Encode(name, int64(1)); err != nil {
		return nil, errors.Wrap(err, "session codec")
	}
	return &SignedCodec{name: name, sc: sc}, nil
}

func (c *SignedCodec) Encode(userID int64) (string, error) {
	token, err := c.sc.Encode(c.name, userID)
	if err != nil {
		return "", errors.Wrap(err, "encode session")
	}
	return token, nil
}

func (c *SignedCodec) Decode(token string) (int64, error) {
	var userID int64
	if err := c.sc.Decode(c.name, token, &userID); err != nil {
		return 0, errors.Wrap(err, "decode session")
	}
	if userID <= 0 {
		return 0, errBadToken
	}
	return userID, nil
}
