package iothub

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/omnect/twin-agent/pkg/config"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const identityServiceAPIVersion = "2020-09-01"

// IdentityService provisions the client from the device's identity and key
// services.
type IdentityService struct {
	ClientType      config.ClientType
	IdentitydSocket string
	KeydSocket      string
}

func (s IdentityService) identity(ctx context.Context) (Identity, error) {
	identityd := newUnixHTTP(s.IdentitydSocket)

	var (
		resp gjson.Result
		err  error
	)
	switch s.ClientType {
	case config.ClientTypeModule:
		resp, err = identityd.do(ctx, http.MethodGet,
			"/identities/identity?api-version="+identityServiceAPIVersion, nil)
	default:
		resp, err = identityd.do(ctx, http.MethodPost,
			"/identities/device?api-version="+identityServiceAPIVersion, map[string]string{"type": "aziot"})
	}
	if err != nil {
		return Identity{}, errors.WithMessage(err, "identity service")
	}

	spec := resp.Get("spec")
	if auth := spec.Get("auth.type").String(); auth != "sas" {
		return Identity{}, errors.Errorf("identity service: unsupported authentication %q", auth)
	}
	fields, err := requireStrings(spec, "hubName", "deviceId", "auth.keyHandle")
	if err != nil {
		return Identity{}, errors.WithMessage(err, "identity service")
	}
	id := Identity{
		HostName:        fields[0],
		DeviceID:        fields[1],
		ModuleID:        spec.Get("moduleId").String(),
		GatewayHostName: spec.Get("gatewayHost").String(),
		Signer: &keyServiceSigner{
			keyd:      newUnixHTTP(s.KeydSocket),
			keyHandle: fields[2],
		},
	}
	if id.GatewayHostName == id.HostName {
		id.GatewayHostName = ""
	}
	if s.ClientType == config.ClientTypeModule && id.ModuleID == "" {
		return Identity{}, errors.New("identity service: module identity without module id")
	}
	return id, nil
}

// keyServiceSigner signs with a key that never leaves the key service.
type keyServiceSigner struct {
	keyd      *unixHTTP
	keyHandle string
}

func (s *keyServiceSigner) Sign(ctx context.Context, data string) (string, error) {
	req := struct {
		KeyHandle  string `json:"keyHandle"`
		Algorithm  string `json:"algorithm"`
		Parameters struct {
			Message string `json:"message"`
		} `json:"parameters"`
	}{KeyHandle: s.keyHandle, Algorithm: "HMAC-SHA256"}
	req.Parameters.Message = base64.StdEncoding.EncodeToString([]byte(data))

	resp, err := s.keyd.do(ctx, http.MethodPost, "/sign?api-version="+identityServiceAPIVersion, req)
	if err != nil {
		return "", errors.WithMessage(err, "key service")
	}
	sig, err := requireStrings(resp, "signature")
	if err != nil {
		return "", errors.WithMessage(err, "key service")
	}
	return sig[0], nil
}
