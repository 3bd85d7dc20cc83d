package iothub

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const requestTimeout = 30 * time.Second

// unixHTTP talks HTTP to a local service listening on a unix socket.
type unixHTTP struct {
	socket string
	client *http.Client
}

func newUnixHTTP(socket string) *unixHTTP {
	socket = strings.TrimPrefix(socket, "unix://")
	return &unixHTTP{
		socket: socket,
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			},
		},
	}
}

// do sends body as JSON when not nil and returns the JSON response.
func (u *unixHTTP) do(ctx context.Context, method, path string, body interface{}) (gjson.Result, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return gjson.Result{}, errors.Wrap(err, "cannot encode request")
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://localhost"+path, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "cannot create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "%s %s on %s", method, path, u.socket)
	}
	defer resp.Body.Close()
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "%s %s: read response", method, path)
	}
	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, errors.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, errors.Errorf("%s %s: response is not JSON", method, path)
	}
	return gjson.ParseBytes(raw), nil
}

// requireStrings reads the named string fields, failing on the first one
// missing.
func requireStrings(doc gjson.Result, paths ...string) ([]string, error) {
	values := make([]string, len(paths))
	for i, p := range paths {
		v := doc.Get(p)
		if v.Type != gjson.String || v.String() == "" {
			return nil, errors.Errorf("response lacks %q", p)
		}
		values[i] = v.String()
	}
	return values, nil
}
