package device

import (
	"fmt"

	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// Enumerator discovers accelerator devices at startup. Implementations are
// expected to be cheap; enumeration happens once when the registry is built.
type Enumerator interface {
	Enumerate() ([]types.DeviceDescriptor, error)
}

// StaticEnumerator returns a fixed device list, typically declared in the
// node configuration.
type StaticEnumerator []types.DeviceDescriptor

func (s StaticEnumerator) Enumerate() ([]types.DeviceDescriptor, error) {
	out := make([]types.DeviceDescriptor, len(s))
	copy(out, s)
	return out, nil
}

// defaultHostMemory is assumed for the fallback host device when no devices
// are declared in configuration.
const defaultHostMemory = 8 << 30

// HostFallback returns an enumerator describing a single host-memory device.
// Used when the configuration declares no devices, so a development node can
// still schedule work.
func HostFallback() Enumerator {
	return StaticEnumerator{{Name: "host0", TotalMemory: defaultHostMemory}}
}

// FromConfig builds an enumerator from configured descriptors, falling back
// to the single host device when the list is empty.
func FromConfig(devs []types.DeviceDescriptor) (Enumerator, error) {
	if len(devs) == 0 {
		return HostFallback(), nil
	}
	seen := make(map[string]struct{}, len(devs))
	for _, d := range devs {
		if d.Name == "" {
			return nil, fmt.Errorf("configured device with empty name")
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return StaticEnumerator(devs), nil
}
