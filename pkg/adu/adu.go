// Package adu builds the documents the device update service reads from the
// twin: the device inventory and the update agent's identity.
package adu

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/omnect/twin-agent/pkg/marker"
	"github.com/omnect/twin-agent/pkg/platform"
	"github.com/omnect/twin-agent/pkg/twin"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// Locations the device update agent keeps its files in.
const (
	DefaultConfigPath     = "/etc/adu/du-config.json"
	DefaultSWVersionsPath = "/etc/sw-versions"
)

// DeviceInformation is the device inventory component.
type DeviceInformation struct {
	Discriminator         string `json:"__t"`
	Manufacturer          string `json:"manufacturer"`
	Model                 string `json:"model"`
	OSName                string `json:"osName"`
	SWVersion             string `json:"swVersion"`
	ProcessorArchitecture string `json:"processorArchitecture"`
	ProcessorManufacturer string `json:"processorManufacturer"`
	TotalMemory           uint64 `json:"totalMemory"`
	TotalStorage          uint64 `json:"totalStorage"`
}

// DeviceProperties identify the device to the update service when it matches
// update compatibility.
type DeviceProperties struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	CompatibilityID string `json:"compatibilityid"`
	ContractModelID string `json:"contractModelId"`
	AgentVersion    string `json:"aduVer"`
}

type Agent struct {
	DeviceProperties    DeviceProperties `json:"deviceProperties"`
	CompatPropertyNames string           `json:"compatPropertyNames"`
}

// DeviceUpdate is the update agent component.
type DeviceUpdate struct {
	Discriminator string `json:"__t"`
	Agent         Agent  `json:"agent"`
}

// Adu holds the documents built at startup. They don't change afterwards.
type Adu struct {
	deviceInformation DeviceInformation
	deviceUpdate      DeviceUpdate
}

var _ twin.InitialReporter = (*Adu)(nil)

// New reads the update agent configuration and the software version
// descriptor. The inventory facts the platform can't provide are logged and
// reported as placeholders.
func New(log logging.Logger, configPath, swVersionsPath string, p platform.Platform) (*Adu, error) {
	config, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	osName, swVersion, err := readSWVersions(swVersionsPath)
	if err != nil {
		return nil, err
	}

	inventory, err := platform.Collect(p)
	if err != nil {
		log.WithError(err).Warn("using placeholders for device inventory")
	}

	return &Adu{
		deviceInformation: DeviceInformation{
			Discriminator:         marker.ComponentDiscriminator,
			Manufacturer:          config.manufacturer,
			Model:                 config.model,
			OSName:                osName,
			SWVersion:             swVersion,
			ProcessorArchitecture: inventory.ProcessorArchitecture,
			ProcessorManufacturer: inventory.ProcessorManufacturer,
			TotalMemory:           inventory.TotalMemory,
			TotalStorage:          inventory.TotalStorage,
		},
		deviceUpdate: DeviceUpdate{
			Discriminator: marker.ComponentDiscriminator,
			Agent: Agent{
				DeviceProperties: DeviceProperties{
					Manufacturer:    config.agentManufacturer,
					Model:           config.agentModel,
					CompatibilityID: config.compatibilityID,
					ContractModelID: marker.DeviceUpdateContractModelID,
					AgentVersion:    marker.DeviceUpdateAgentVersion,
				},
				CompatPropertyNames: config.compatPropertyNames,
			},
		},
	}, nil
}

// DeviceInformation is the inventory document.
func (a *Adu) DeviceInformation() DeviceInformation {
	return a.deviceInformation
}

// DeviceUpdate is the agent identity document.
func (a *Adu) DeviceUpdate() DeviceUpdate {
	return a.deviceUpdate
}

// InitialReport returns the inventory and the agent identity patches, in that
// order.
func (a *Adu) InitialReport() ([]json.RawMessage, error) {
	info, err := twin.NewPatch(marker.DeviceInformationKey, a.deviceInformation)
	if err != nil {
		return nil, err
	}
	update, err := twin.NewPatch(marker.DeviceUpdateKey, a.deviceUpdate)
	if err != nil {
		return nil, err
	}
	return []json.RawMessage{info, update}, nil
}

type duConfig struct {
	manufacturer        string
	model               string
	agentManufacturer   string
	agentModel          string
	compatibilityID     string
	compatPropertyNames string
}

func readConfig(path string) (duConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return duConfig{}, errors.Wrap(err, "cannot read du-config.json")
	}
	raw = jsonc.ToJSON(raw)
	if !gjson.ValidBytes(raw) {
		return duConfig{}, errors.Errorf("cannot parse du-config.json %q", path)
	}
	doc := gjson.ParseBytes(raw)

	agent := doc.Get("agents")
	if agent.IsArray() {
		agent = agent.Get("0")
	}

	var (
		c       duConfig
		missing []string
	)
	fields := []struct {
		doc  gjson.Result
		path string
		name string
		dst  *string
	}{
		{doc, "manufacturer", "manufacturer", &c.manufacturer},
		{doc, "model", "model", &c.model},
		{agent, "manufacturer", "agents.manufacturer", &c.agentManufacturer},
		{agent, "model", "agents.model", &c.agentModel},
		{agent, "additionalDeviceProperties.compatibilityid", "agents.additionalDeviceProperties.compatibilityid", &c.compatibilityID},
		{doc, "compatPropertyNames", "compatPropertyNames", &c.compatPropertyNames},
	}
	for _, f := range fields {
		v := f.doc.Get(f.path)
		if v.Type != gjson.String {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = v.String()
	}
	if len(missing) > 0 {
		return duConfig{}, errors.Errorf("du-config.json: missing %s", strings.Join(missing, ", "))
	}
	return c, nil
}

// readSWVersions splits the descriptor into the OS name and its version.
func readSWVersions(path string) (string, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", errors.Wrap(err, "cannot read sw-versions")
	}
	fields := strings.Fields(string(raw))
	if len(fields) != 2 {
		return "", "", errors.Errorf("sw-versions: unexpected number of entries: %d", len(fields))
	}
	return fields[0], fields[1], nil
}
