package server

import (
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// AccessOrder selects how the allow and deny lists are combined.
type AccessOrder int

const (
	// OrderDenyAllow defaults to allow; the deny list blocks an address
	// unless the allow list rescues it.
	OrderDenyAllow AccessOrder = iota
	// OrderAllowDeny defaults to deny when the allow list is non-empty;
	// an address must match the allow list and the deny list overrides.
	OrderAllowDeny
	// OrderMutualFailure admits only addresses that are in the allow
	// list and not in the deny list.
	OrderMutualFailure
)

// ParseAccessOrder maps the settings string to an AccessOrder. Unknown
// values fall back to deny,allow, matching the old server.
func ParseAccessOrder(s string) AccessOrder {
	switch s {
	case "deny,allow":
		return OrderDenyAllow
	case "allow,deny":
		return OrderAllowDeny
	case "mutual-failure":
		return OrderMutualFailure
	default:
		return OrderDenyAllow
	}
}

// AccessList is a set of IPv4 networks.
type AccessList []netip.Prefix

// Contains reports whether addr falls in any of the list's networks.
func (l AccessList) Contains(addr netip.Addr) bool {
	for _, prefix := range l {
		if prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// ParseAccessList parses a comma separated list of networks. Invalid
// entries are logged and skipped, never fatal: a typo in the settings
// must not keep the server down.
func ParseAccessList(kind, list string, logger *zap.Logger) AccessList {
	logger.Info("Loading access list", zap.String("kind", kind))

	result := make(AccessList, 0)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := parseIPMask(entry)
		if err != nil {
			logger.Error("Invalid ip or ip range in access list",
				zap.String("kind", kind), zap.String("entry", entry), zap.Error(err))
			continue
		}
		logger.Info("Loaded access list entry",
			zap.String("kind", kind), zap.Stringer("network", prefix))
		result = append(result, prefix)
	}

	logger.Info("Access list loaded", zap.String("kind", kind), zap.Int("size", len(result)))
	return result
}

// parseIPMask accepts the formats the old settings allowed: "all",
// plain addresses, CIDR notation and the legacy ip/netmask form.
func parseIPMask(s string) (netip.Prefix, error) {
	if s == "all" {
		return netip.PrefixFrom(netip.IPv4Unspecified(), 0), nil
	}

	if ip, mask, found := strings.Cut(s, "/"); found {
		// Legacy dotted netmask, e.g. 10.0.0.0/255.0.0.0.
		if strings.Contains(mask, ".") {
			maskAddr, err := netip.ParseAddr(mask)
			if err != nil || !maskAddr.Is4() {
				return netip.Prefix{}, fmt.Errorf("invalid netmask %q", mask)
			}
			bits, err := maskBits(maskAddr)
			if err != nil {
				return netip.Prefix{}, err
			}
			addr, err := netip.ParseAddr(ip)
			if err != nil {
				return netip.Prefix{}, fmt.Errorf("invalid address %q: %w", ip, err)
			}
			return addr.Prefix(bits)
		}
		return netip.ParsePrefix(s)
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// maskBits converts a dotted netmask into a prefix length, rejecting
// non-contiguous masks.
func maskBits(mask netip.Addr) (int, error) {
	raw := mask.As4()
	bits := 0
	seenZero := false
	for _, octet := range raw {
		for i := 7; i >= 0; i-- {
			if octet&(1<<i) != 0 {
				if seenZero {
					return 0, fmt.Errorf("non-contiguous netmask %s", mask)
				}
				bits++
			} else {
				seenZero = true
			}
		}
	}
	return bits, nil
}

// AccessRules combines the order mode with the two lists.
type AccessRules struct {
	Enabled bool
	Order   AccessOrder
	Allow   AccessList
	Deny    AccessList
}

// Allowed applies the configured order to one address.
func (r AccessRules) Allowed(addr netip.Addr) bool {
	if !r.Enabled {
		return true
	}
	addr = addr.Unmap()
	inAllow := r.Allow.Contains(addr)
	inDeny := r.Deny.Contains(addr)

	switch r.Order {
	case OrderAllowDeny:
		if len(r.Allow) == 0 {
			return !inDeny
		}
		return inAllow && !inDeny
	case OrderMutualFailure:
		return inAllow && !inDeny
	default: // OrderDenyAllow
		return !inDeny || inAllow
	}
}
