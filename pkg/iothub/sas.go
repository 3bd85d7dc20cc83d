package iothub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Signer computes the base64 HMAC-SHA256 signature of a SAS token.
type Signer interface {
	Sign(ctx context.Context, data string) (string, error)
}

// KeySigner signs with a shared access key held in memory.
type KeySigner struct {
	key []byte
}

// NewKeySigner decodes a base64 shared access key.
func NewKeySigner(key string) (*KeySigner, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, errors.Wrap(err, "shared access key is not base64")
	}
	return &KeySigner{key: raw}, nil
}

func (s *KeySigner) Sign(_ context.Context, data string) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// SASToken builds a shared access signature for the resource valid until
// expiry.
func SASToken(ctx context.Context, signer Signer, resource string, expiry time.Time) (string, error) {
	sr := url.QueryEscape(resource)
	se := strconv.FormatInt(expiry.Unix(), 10)
	sig, err := signer.Sign(ctx, sr+"\n"+se)
	if err != nil {
		return "", errors.WithMessage(err, "cannot sign sas token")
	}
	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s", sr, url.QueryEscape(sig), se), nil
}
