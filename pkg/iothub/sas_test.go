package iothub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSASToken(t *testing.T) {
	signer, err := NewKeySigner("c2VjcmV0LWtleS1mb3ItdGVzdGluZw==")
	require.NoError(t, err)

	token, err := SASToken(context.Background(), signer, "hub.azure-devices.net/devices/dev1", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Equal(t,
		"SharedAccessSignature sr=hub.azure-devices.net%2Fdevices%2Fdev1"+
			"&sig=InUUmwvhziV49t1FuRRpuyhLY%2BvAa5Betn%2BPvq0NTSQ%3D&se=1700000000",
		token)
}

func TestKeySignerRejectsInvalidKey(t *testing.T) {
	_, err := NewKeySigner("not base64!")
	assert.Error(t, err)
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, string) (string, error) {
	return "", assert.AnError
}

func TestSASTokenSignerFailure(t *testing.T) {
	_, err := SASToken(context.Background(), failingSigner{}, "hub/devices/dev1", time.Now())
	assert.ErrorIs(t, err, assert.AnError)
}
