// Package device exposes the device identity consumed by the onboarding
// exchange. Real devices back this with platform storage or fused
// identifiers; the static implementation serves commands and tests.
package device

// Identity supplies the identifying strings a device announces.
type Identity interface {
	// SerialNumber returns the device serial number.
	SerialNumber() string

	// Model returns the device model designation.
	Model() string
}

// StaticIdentity is a fixed Identity.
type StaticIdentity struct {
	Serial    string
	ModelName string
}

// SerialNumber implements Identity.
func (s *StaticIdentity) SerialNumber() string {
	return s.Serial
}

// Model implements Identity.
func (s *StaticIdentity) Model() string {
	return s.ModelName
}
