package iothub

import (
	"strings"

	"github.com/pkg/errors"
)

// ConnectionString is a parsed device or module connection string.
type ConnectionString struct {
	HostName        string
	DeviceID        string
	ModuleID        string
	SharedAccessKey string
	GatewayHostName string
}

// ParseConnectionString parses
// "HostName=...;DeviceId=...[;ModuleId=...];SharedAccessKey=...[;GatewayHostName=...]".
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		// Keys are base64 and may end with '='.
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return ConnectionString{}, errors.Errorf("connection string: malformed attribute %q", part)
		}
		switch kv[0] {
		case "HostName":
			cs.HostName = kv[1]
		case "DeviceId":
			cs.DeviceID = kv[1]
		case "ModuleId":
			cs.ModuleID = kv[1]
		case "SharedAccessKey":
			cs.SharedAccessKey = kv[1]
		case "GatewayHostName":
			cs.GatewayHostName = kv[1]
		case "SharedAccessKeyName", "x509":
			return ConnectionString{}, errors.Errorf("connection string: %s authentication is not supported", kv[0])
		default:
			return ConnectionString{}, errors.Errorf("connection string: unknown attribute %q", kv[0])
		}
	}

	var missing []string
	if cs.HostName == "" {
		missing = append(missing, "HostName")
	}
	if cs.DeviceID == "" {
		missing = append(missing, "DeviceId")
	}
	if cs.SharedAccessKey == "" {
		missing = append(missing, "SharedAccessKey")
	}
	if len(missing) > 0 {
		return ConnectionString{}, errors.Errorf("connection string: missing %s", strings.Join(missing, ", "))
	}
	return cs, nil
}
