package marker

type Key = string

const (
	// ModuleVersionKey carries the agent's version in the reported properties.
	ModuleVersionKey Key = "module-version"
	// SDKVersionKey carries the hub client's version in the reported
	// properties.
	SDKVersionKey Key = "azure-sdk-version"
	// DeviceInformationKey is the reported device inventory consumed by the
	// device update service.
	DeviceInformationKey Key = "deviceInformation"
	// DeviceUpdateKey is the reported update agent identity consumed by the
	// device update service.
	DeviceUpdateKey Key = "deviceUpdate"

	// DesiredRootKey nests the desired properties inside a complete twin
	// document.
	DesiredRootKey Key = "desired"
	// VersionKey is the twin metadata key holding the document version. It is
	// present in every desired document and is never routed to a consumer.
	VersionKey Key = "$version"
)
