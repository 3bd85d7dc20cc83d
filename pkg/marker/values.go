package marker

// ComponentDiscriminator marks a reported property as a component of a
// digital twin model.
const ComponentDiscriminator = "c"

// Method names a direct method understood by the agent.
type Method = string

const (
	MethodFactoryReset Method = "factory_reset"
)

// Update agent identity values announced to the device update service.
const (
	DeviceUpdateContractModelID = "dtmi:azure:iot:deviceUpdateContractModel;3"
	DeviceUpdateAgentVersion    = "DU;agent/1.1.0"
)

// ModuleVersion is the agent's version, set at build time.
var ModuleVersion = "0.0.0-dev"

// GitShortRev is the revision the agent was built from, set at build time.
var GitShortRev = "unknown"
