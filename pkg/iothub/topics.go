package iothub

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	apiVersion = "2021-04-12"

	topicDesired        = "$iothub/twin/PATCH/properties/desired/#"
	topicTwinResponses  = "$iothub/twin/res/#"
	topicMethods        = "$iothub/methods/POST/#"
	desiredPrefix       = "$iothub/twin/PATCH/properties/desired/"
	twinResponsePrefix  = "$iothub/twin/res/"
	methodRequestPrefix = "$iothub/methods/POST/"
)

// Method response statuses.
const (
	statusOK             = 200
	statusMethodNotFound = 404
	statusMethodFailed   = 500
)

func reportedTopic(rid string) string {
	return "$iothub/twin/PATCH/properties/reported/?$rid=" + rid
}

func twinGetTopic(rid string) string {
	return "$iothub/twin/GET/?$rid=" + rid
}

func methodResponseTopic(status int, rid string) string {
	return fmt.Sprintf("$iothub/methods/res/%d/?$rid=%s", status, rid)
}

// twinResponse is "$iothub/twin/res/{status}/?$rid={rid}[&$version={v}]".
type twinResponse struct {
	status int
	rid    string
}

func parseTwinResponse(topic string) (twinResponse, error) {
	rest := strings.TrimPrefix(topic, twinResponsePrefix)
	if rest == topic {
		return twinResponse{}, errors.Errorf("not a twin response: %q", topic)
	}
	status, query, err := splitQuery(rest)
	if err != nil {
		return twinResponse{}, err
	}
	code, err := strconv.Atoi(status)
	if err != nil {
		return twinResponse{}, errors.Wrapf(err, "twin response status in %q", topic)
	}
	rid := query.Get("$rid")
	if rid == "" {
		return twinResponse{}, errors.Errorf("twin response without request id: %q", topic)
	}
	return twinResponse{status: code, rid: rid}, nil
}

// methodRequest is "$iothub/methods/POST/{name}/?$rid={rid}".
type methodRequest struct {
	name string
	rid  string
}

func parseMethodRequest(topic string) (methodRequest, error) {
	rest := strings.TrimPrefix(topic, methodRequestPrefix)
	if rest == topic {
		return methodRequest{}, errors.Errorf("not a method request: %q", topic)
	}
	name, query, err := splitQuery(rest)
	if err != nil {
		return methodRequest{}, err
	}
	rid := query.Get("$rid")
	if name == "" || rid == "" {
		return methodRequest{}, errors.Errorf("incomplete method request: %q", topic)
	}
	return methodRequest{name: name, rid: rid}, nil
}

// splitQuery splits "{segment}/?{query}".
func splitQuery(s string) (string, url.Values, error) {
	parts := strings.SplitN(s, "/?", 2)
	if len(parts) != 2 {
		return "", nil, errors.Errorf("missing properties in %q", s)
	}
	query, err := url.ParseQuery(parts[1])
	if err != nil {
		return "", nil, errors.Wrapf(err, "properties of %q", s)
	}
	return parts[0], query, nil
}
