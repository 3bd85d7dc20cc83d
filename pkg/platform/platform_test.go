package platform

import (
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

type testPlatform struct {
	ArchFn    func() (string, error)
	VendorFn  func() (string, error)
	MemoryFn  func() (uint64, error)
	StorageFn func() (uint64, error)
}

func (p *testPlatform) ProcessorArchitecture() (string, error) {
	if p.ArchFn != nil {
		return p.ArchFn()
	}
	return "x86_64", nil
}

func (p *testPlatform) ProcessorManufacturer() (string, error) {
	if p.VendorFn != nil {
		return p.VendorFn()
	}
	return "GenuineIntel", nil
}

func (p *testPlatform) TotalMemory() (uint64, error) {
	if p.MemoryFn != nil {
		return p.MemoryFn()
	}
	return 1024, nil
}

func (p *testPlatform) TotalStorage() (uint64, error) {
	if p.StorageFn != nil {
		return p.StorageFn()
	}
	return 2048, nil
}

func TestCollectStatic(t *testing.T) {
	inv, err := Collect(Static)
	assert.NilError(t, err)
	assert.DeepEqual(t, inv, Inventory{
		ProcessorArchitecture: "aarch64",
		ProcessorManufacturer: "ARM",
		TotalMemory:           123456,
		TotalStorage:          654321,
	})
}

func TestCollectFallsBackPerFact(t *testing.T) {
	p := &testPlatform{
		MemoryFn: func() (uint64, error) { return 0, errors.New("no meminfo") },
	}
	inv, err := Collect(p)
	assert.ErrorContains(t, err, "total memory: no meminfo")
	assert.Equal(t, inv.ProcessorArchitecture, "x86_64")
	assert.Equal(t, inv.ProcessorManufacturer, "GenuineIntel")
	assert.Equal(t, inv.TotalMemory, uint64(123456))
	assert.Equal(t, inv.TotalStorage, uint64(2048))
}
