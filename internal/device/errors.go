package device

import "fmt"

// noDeviceError signals that enumeration retained zero devices. Fatal at
// startup: the node cannot schedule work without a device pool.
type noDeviceError struct{ minMemory uint64 }

func (e noDeviceError) Error() string {
	return fmt.Sprintf("no device with at least %d bytes of memory available", e.minMemory)
}

// IsNoDevice reports whether err indicates an empty retained device set.
func IsNoDevice(err error) bool {
	_, ok := err.(noDeviceError)
	return ok
}
