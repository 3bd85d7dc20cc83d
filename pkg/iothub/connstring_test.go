package iothub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ConnectionString
	}{
		{
			"Device",
			"HostName=hub.azure-devices.net;DeviceId=dev1;SharedAccessKey=c2VjcmV0LWtleS1mb3ItdGVzdGluZw==",
			ConnectionString{
				HostName:        "hub.azure-devices.net",
				DeviceID:        "dev1",
				SharedAccessKey: "c2VjcmV0LWtleS1mb3ItdGVzdGluZw==",
			},
		},
		{
			"Module behind gateway",
			"HostName=hub.azure-devices.net;DeviceId=dev1;ModuleId=agent;SharedAccessKey=a2V5;GatewayHostName=edge.local\n",
			ConnectionString{
				HostName:        "hub.azure-devices.net",
				DeviceID:        "dev1",
				ModuleID:        "agent",
				SharedAccessKey: "a2V5",
				GatewayHostName: "edge.local",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs, err := ParseConnectionString(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cs)
		})
	}
}

func TestParseConnectionStringErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"Missing fields", "HostName=hub.azure-devices.net", "missing DeviceId, SharedAccessKey"},
		{"Malformed", "HostName=hub;DeviceId", "malformed attribute"},
		{"Unknown", "HostName=hub;DeviceId=d;SharedAccessKey=a2V5;Color=red", "unknown attribute"},
		{"Policy key", "HostName=hub;SharedAccessKeyName=iothubowner;SharedAccessKey=a2V5", "not supported"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConnectionString(tc.input)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}
