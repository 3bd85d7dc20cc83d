package platform

import "github.com/pkg/errors"

// Platform is implemented by providers of facts about the device's hardware.
type Platform interface {
	// ProcessorArchitecture reports the CPU architecture, for example
	// "aarch64".
	ProcessorArchitecture() (string, error)
	// ProcessorManufacturer reports the CPU vendor, for example "ARM".
	ProcessorManufacturer() (string, error)
	// TotalMemory reports the installed memory in KiB.
	TotalMemory() (uint64, error)
	// TotalStorage reports the capacity of the device's storage in KiB.
	TotalStorage() (uint64, error)
}

// Inventory is a snapshot of the facts a Platform reports.
type Inventory struct {
	ProcessorArchitecture string
	ProcessorManufacturer string
	TotalMemory           uint64
	TotalStorage          uint64
}

// Collect gathers an Inventory from the platform. Facts that can't be
// determined are reported as errors alongside the placeholder values of
// Static so callers may decide whether to proceed.
func Collect(p Platform) (Inventory, error) {
	var (
		inv  = staticPlatform{}.inventory()
		errs []string
	)
	if arch, err := p.ProcessorArchitecture(); err == nil {
		inv.ProcessorArchitecture = arch
	} else {
		errs = append(errs, errors.WithMessage(err, "processor architecture").Error())
	}
	if vendor, err := p.ProcessorManufacturer(); err == nil {
		inv.ProcessorManufacturer = vendor
	} else {
		errs = append(errs, errors.WithMessage(err, "processor manufacturer").Error())
	}
	if mem, err := p.TotalMemory(); err == nil {
		inv.TotalMemory = mem
	} else {
		errs = append(errs, errors.WithMessage(err, "total memory").Error())
	}
	if storage, err := p.TotalStorage(); err == nil {
		inv.TotalStorage = storage
	} else {
		errs = append(errs, errors.WithMessage(err, "total storage").Error())
	}
	if len(errs) > 0 {
		return inv, errors.Errorf("incomplete inventory: %v", errs)
	}
	return inv, nil
}
