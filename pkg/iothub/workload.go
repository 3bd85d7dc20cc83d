package iothub

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"

	"github.com/pkg/errors"
)

// Variables the edge runtime sets for the modules it starts.
const (
	envWorkloadURI     = "IOTEDGE_WORKLOADURI"
	envHubHostName     = "IOTEDGE_IOTHUBHOSTNAME"
	envGatewayHostName = "IOTEDGE_GATEWAYHOSTNAME"
	envDeviceID        = "IOTEDGE_DEVICEID"
	envModuleID        = "IOTEDGE_MODULEID"
	envGenerationID    = "IOTEDGE_MODULEGENERATIONID"
	envAPIVersion      = "IOTEDGE_APIVERSION"
)

// EdgeEnvironment provisions the client as a module started by the edge
// runtime, signing through its workload API.
type EdgeEnvironment struct {
	WorkloadURI     string
	HostName        string
	GatewayHostName string
	DeviceID        string
	ModuleID        string
	GenerationID    string
	APIVersion      string
}

func edgeEnvironment(lookup func(string) (string, bool)) (EdgeEnvironment, bool, error) {
	uri, ok := lookup(envWorkloadURI)
	if !ok {
		return EdgeEnvironment{}, false, nil
	}
	env := EdgeEnvironment{WorkloadURI: uri}
	var missing []string
	for name, dst := range map[string]*string{
		envHubHostName:  &env.HostName,
		envDeviceID:     &env.DeviceID,
		envModuleID:     &env.ModuleID,
		envGenerationID: &env.GenerationID,
		envAPIVersion:   &env.APIVersion,
	} {
		v, ok := lookup(name)
		if !ok || v == "" {
			missing = append(missing, name)
			continue
		}
		*dst = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return EdgeEnvironment{}, true, errors.Errorf("edge environment lacks %v", missing)
	}
	env.GatewayHostName, _ = lookup(envGatewayHostName)
	return env, true, nil
}

func (e EdgeEnvironment) identity(ctx context.Context) (Identity, error) {
	workload := newUnixHTTP(e.WorkloadURI)

	id := Identity{
		HostName:        e.HostName,
		GatewayHostName: e.GatewayHostName,
		DeviceID:        e.DeviceID,
		ModuleID:        e.ModuleID,
		Signer:          &workloadSigner{workload: workload, env: e},
	}
	if e.GatewayHostName == "" {
		return id, nil
	}

	// Modules connect through edgeHub, whose certificate is issued by the
	// edge runtime's CA.
	resp, err := workload.do(ctx, http.MethodGet, "/trust-bundle?api-version="+url.QueryEscape(e.APIVersion), nil)
	if err != nil {
		return Identity{}, errors.WithMessage(err, "workload api")
	}
	bundle, err := requireStrings(resp, "certificate")
	if err != nil {
		return Identity{}, errors.WithMessage(err, "workload api trust bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(bundle[0])) {
		return Identity{}, errors.New("workload api trust bundle has no certificates")
	}
	id.RootCAs = pool
	return id, nil
}

type workloadSigner struct {
	workload *unixHTTP
	env      EdgeEnvironment
}

func (s *workloadSigner) Sign(ctx context.Context, data string) (string, error) {
	path := "/modules/" + url.PathEscape(s.env.ModuleID) +
		"/genid/" + url.PathEscape(s.env.GenerationID) +
		"/sign?api-version=" + url.QueryEscape(s.env.APIVersion)
	req := struct {
		KeyID string `json:"keyId"`
		Algo  string `json:"algo"`
		Data  string `json:"data"`
	}{KeyID: "primary", Algo: "HMACSHA256", Data: base64.StdEncoding.EncodeToString([]byte(data))}

	resp, err := s.workload.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return "", errors.WithMessage(err, "workload api")
	}
	digest, err := requireStrings(resp, "digest")
	if err != nil {
		return "", errors.WithMessage(err, "workload api")
	}
	return digest[0], nil
}
