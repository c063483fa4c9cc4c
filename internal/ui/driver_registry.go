// File: internal/ui/driver_registry.go
package ui

import "fmt"

var driverFactory func() (Driver, error)

// RegisterDriverFactory installs the platform driver constructor. Platform
// packages call this from init; the engine itself stays platform-agnostic.
func RegisterDriverFactory(factory func() (Driver, error)) {
	driverFactory = factory
}

// NewDriver constructs the registered platform driver.
func NewDriver() (Driver, error) {
	if driverFactory == nil {
		return nil, fmt.Errorf("no host driver registered for this platform")
	}
	return driverFactory()
}
