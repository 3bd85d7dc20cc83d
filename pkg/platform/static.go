package platform

// Static reports fixed placeholder facts. It is used when the running system
// isn't probed.
var Static Platform = staticPlatform{}

type staticPlatform struct{}

func (staticPlatform) inventory() Inventory {
	return Inventory{
		ProcessorArchitecture: "aarch64",
		ProcessorManufacturer: "ARM",
		TotalMemory:           123456,
		TotalStorage:          654321,
	}
}

func (s staticPlatform) ProcessorArchitecture() (string, error) {
	return s.inventory().ProcessorArchitecture, nil
}

func (s staticPlatform) ProcessorManufacturer() (string, error) {
	return s.inventory().ProcessorManufacturer, nil
}

func (s staticPlatform) TotalMemory() (uint64, error) {
	return s.inventory().TotalMemory, nil
}

func (s staticPlatform) TotalStorage() (uint64, error) {
	return s.inventory().TotalStorage, nil
}
