// Package discovery advertises and locates onboarding services over mDNS.
// Manufacturer services register under _odo._tcp; devices browse for them
// on the local network before falling back to configured DNS endpoints.
package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ServiceType is the mDNS service type for onboarding services.
	ServiceType = "_odo._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// TXT record keys.
const (
	TXTKeyProtocolVersion = "pv"
	TXTKeyVendor          = "vn"
	TXTKeyServiceName     = "sn"
)

var ErrMissingRequired = errors.New("missing required TXT field")

// ServiceInfo describes an advertised onboarding service.
type ServiceInfo struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the advertised hostname.
	Host string

	// Port the service listens on.
	Port uint16

	// Addresses are the resolved IP addresses as strings.
	Addresses []string

	// ProtocolVersion the service speaks.
	ProtocolVersion uint32

	// Vendor is a free-form vendor string.
	Vendor string

	// ServiceName is a human-readable service name.
	ServiceName string
}

// EncodeTXT creates the TXT records for a service advertisement.
func EncodeTXT(info *ServiceInfo) []string {
	txt := []string{
		fmt.Sprintf("%s=%d", TXTKeyProtocolVersion, info.ProtocolVersion),
	}
	if info.Vendor != "" {
		txt = append(txt, TXTKeyVendor+"="+info.Vendor)
	}
	if info.ServiceName != "" {
		txt = append(txt, TXTKeyServiceName+"="+info.ServiceName)
	}
	return txt
}

// DecodeTXT parses TXT records into info, leaving the endpoint fields
// untouched.
func DecodeTXT(txt []string, info *ServiceInfo) error {
	records := make(map[string]string, len(txt))
	for _, entry := range txt {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		records[key] = value
	}

	pvStr, ok := records[TXTKeyProtocolVersion]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocolVersion)
	}
	pv, err := strconv.ParseUint(pvStr, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid protocol version %q", pvStr)
	}
	info.ProtocolVersion = uint32(pv)

	info.Vendor = records[TXTKeyVendor]
	info.ServiceName = records[TXTKeyServiceName]
	return nil
}
