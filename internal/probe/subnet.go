package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/sabry-awad97/smart-scanner/internal/scan"
)

// ErrNoInterface is returned when no usable IPv4 interface exists.
var ErrNoInterface = errors.New("probe: no local IPv4 network interface")

// minPrefix keeps enumerated subnets at or below 65534 hosts.
const minPrefix = 16

// Subnet enumerates every host of an IPv4 network crossed with Ports,
// host-major. With an empty CIDR it uses the /24 of the first non-loopback
// IPv4 interface.
type Subnet struct {
	CIDR  string
	Ports []int

	// addrs lists interface addresses; nil means net.InterfaceAddrs.
	addrs func() ([]net.Addr, error)
}

// Enumerate implements scan.Enumerator.
func (s Subnet) Enumerate(ctx context.Context) ([]scan.Candidate, error) {
	prefix, err := s.prefix()
	if err != nil {
		return nil, err
	}
	ports := s.Ports
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	var out []scan.Candidate
	first := prefix.Addr()
	last := broadcast(prefix)
	for a := first.Next(); a.IsValid() && a.Less(last); a = a.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, port := range ports {
			out = append(out, scan.Candidate{Address: a.String(), Port: port})
		}
	}
	return out, nil
}

func (s Subnet) prefix() (netip.Prefix, error) {
	if s.CIDR != "" {
		p, err := netip.ParsePrefix(s.CIDR)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("probe: subnet %q: %w", s.CIDR, err)
		}
		if !p.Addr().Is4() {
			return netip.Prefix{}, fmt.Errorf("probe: subnet %q is not IPv4", s.CIDR)
		}
		if p.Bits() < minPrefix || p.Bits() > 30 {
			return netip.Prefix{}, fmt.Errorf("probe: subnet %q must be between /%d and /30", s.CIDR, minPrefix)
		}
		return p.Masked(), nil
	}
	return s.localPrefix()
}

func (s Subnet) localPrefix() (netip.Prefix, error) {
	list := s.addrs
	if list == nil {
		list = net.InterfaceAddrs
	}
	addrs, err := list()
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %v", ErrNoInterface, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP.To4())
		if !ok || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return netip.PrefixFrom(ip, 24).Masked(), nil
	}
	return netip.Prefix{}, ErrNoInterface
}

// broadcast returns the last address of an IPv4 prefix.
func broadcast(p netip.Prefix) netip.Addr {
	b := p.Addr().As4()
	hostBits := 32 - p.Bits()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	v |= (1 << hostBits) - 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
