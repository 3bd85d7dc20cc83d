package system

import (
	"os"
	"strconv"
	"strings"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	dbus "github.com/godbus/dbus/v5"
	"github.com/omnect/twin-agent/pkg/logging"
	"github.com/omnect/twin-agent/pkg/platform"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

var systemdSocket = "/run/systemd/private"

// Assert Platform as a platform implementor.
var _ platform.Platform = (*Platform)(nil)

// Platform reports facts about the running system. The architecture is asked
// of systemd, the remaining facts are read by gopsutil.
type Platform struct {
	log         logging.Logger
	storagePath string

	managerArch func() (string, error)
	kernelArch  func() (string, error)
	cpuInfo     func() ([]cpu.InfoStat, error)
	memory      func() (*mem.VirtualMemoryStat, error)
	usage       func(string) (*disk.UsageStat, error)
}

// New creates a Platform reporting the storage mounted at storagePath.
func New(storagePath string) *Platform {
	return &Platform{
		log:         logging.New("platform"),
		storagePath: storagePath,
		managerArch: systemdArchitecture,
		kernelArch:  host.KernelArch,
		cpuInfo:     cpu.Info,
		memory:      mem.VirtualMemory,
		usage:       disk.Usage,
	}
}

// ProcessorArchitecture reports the architecture systemd runs on, falling back
// to the kernel's machine name when systemd can't be reached.
func (p *Platform) ProcessorArchitecture() (string, error) {
	arch, err := p.managerArch()
	if err == nil {
		return unameArchitecture(arch), nil
	}
	p.log.WithError(err).Debug("unable to query systemd for architecture")
	arch, err = p.kernelArch()
	if err != nil {
		return "", errors.Wrap(err, "unable to query kernel architecture")
	}
	return arch, nil
}

// ProcessorManufacturer reports the vendor of the first CPU.
func (p *Platform) ProcessorManufacturer() (string, error) {
	infos, err := p.cpuInfo()
	if err != nil {
		return "", errors.Wrap(err, "unable to query cpu info")
	}
	for _, info := range infos {
		if info.VendorID != "" {
			return info.VendorID, nil
		}
	}
	return "", errors.New("no cpu reported a vendor")
}

// TotalMemory reports the installed memory in KiB.
func (p *Platform) TotalMemory() (uint64, error) {
	vm, err := p.memory()
	if err != nil {
		return 0, errors.Wrap(err, "unable to query memory")
	}
	return vm.Total / 1024, nil
}

// TotalStorage reports the capacity of the file system at the storage path in
// KiB.
func (p *Platform) TotalStorage() (uint64, error) {
	u, err := p.usage(p.storagePath)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to query usage of %s", p.storagePath)
	}
	return u.Total / 1024, nil
}

// unameArchitecture translates systemd's architecture identifiers into the
// machine names reported by uname, which the device update service expects.
func unameArchitecture(arch string) string {
	switch arch {
	case "arm64":
		return "aarch64"
	case "arm64-be":
		return "aarch64_be"
	case "x86-64":
		return "x86_64"
	case "x86":
		return "i686"
	default:
		return arch
	}
}

func systemdArchitecture() (string, error) {
	conn, err := connect()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	prop, err := conn.GetManagerProperty("Architecture")
	if err != nil {
		return "", errors.Wrap(err, "unable to query manager property")
	}
	// The property is rendered as a quoted D-Bus string.
	if unquoted, err := strconv.Unquote(prop); err == nil {
		prop = unquoted
	}
	prop = strings.TrimSpace(prop)
	if prop == "" {
		return "", errors.New("systemd reported an empty architecture")
	}
	return prop, nil
}

func connect() (*systemd.Conn, error) {
	dialer := func() (*dbus.Conn, error) {
		conn, err := dbus.Dial("unix:path=" + systemdSocket)
		if err != nil {
			return nil, errors.Wrap(err, "unable to connect to systemd socket")
		}
		// Authenticate with the user's authority.
		methods := []dbus.Auth{dbus.AuthExternal(strconv.Itoa(os.Getuid()))}
		err = conn.Auth(methods)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "unable to authenticate with systemd")
		}
		return conn, nil
	}
	return systemd.NewConnection(dialer)
}
