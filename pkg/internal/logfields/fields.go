package logfields

import (
	"github.com/sirupsen/logrus"
)

// Method describes a direct method invocation.
func Method(name string) logrus.Fields {
	return logrus.Fields{
		"method": name,
	}
}

// Desired describes a desired property update.
func Desired(scope string, size int) logrus.Fields {
	return logrus.Fields{
		"scope": scope,
		"bytes": size,
	}
}

// Request describes a hub request correlated by its request id.
func Request(kind, rid string) logrus.Fields {
	return logrus.Fields{
		"request": kind,
		"rid":     rid,
	}
}
