package iothub

import (
	"crypto/x509"
	"fmt"
)

const mqttPort = 8883

// Identity is what the client needs to authenticate with the hub.
type Identity struct {
	HostName        string
	GatewayHostName string
	DeviceID        string
	ModuleID        string
	Signer          Signer
	// RootCAs verify the server, the system pool when nil.
	RootCAs *x509.CertPool
}

func (i Identity) broker() string {
	host := i.HostName
	if i.GatewayHostName != "" {
		host = i.GatewayHostName
	}
	return fmt.Sprintf("ssl://%s:%d", host, mqttPort)
}

func (i Identity) clientID() string {
	if i.ModuleID != "" {
		return i.DeviceID + "/" + i.ModuleID
	}
	return i.DeviceID
}

func (i Identity) username() string {
	return fmt.Sprintf("%s/%s/?api-version=%s", i.HostName, i.clientID(), apiVersion)
}

// resource is the audience of the identity's SAS tokens.
func (i Identity) resource() string {
	r := i.HostName + "/devices/" + i.DeviceID
	if i.ModuleID != "" {
		r += "/modules/" + i.ModuleID
	}
	return r
}
