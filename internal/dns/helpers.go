package dns

import (
	"fmt"
	"strings"

	miekgdns "github.com/miekg/dns"
	"k8s.io/apimachinery/pkg/util/validation"
	utilnet "k8s.io/utils/net"
)

// FQDN joins a relative record name and a zone name.
// e.g. ("dev-app", "example.internal") → "dev-app.example.internal"
func FQDN(name, zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	if name == "" || name == "@" {
		return zone
	}
	return name + "." + zone
}

// SameHost reports whether two host names are equal, ignoring case and a
// trailing dot.
func SameHost(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}

// Validate checks that the record can be written to a zone as-is.
func (r Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if r.Name != "@" && !isHostName(r.Name, true) {
		return fmt.Errorf("%w: %q is not a valid record name", ErrInvalidRecord, r.Name)
	}
	if r.Owner == "" {
		return fmt.Errorf("%w: %s has no owner", ErrInvalidRecord, r.Name)
	}
	if r.TTL <= 0 {
		return fmt.Errorf("%w: %s has TTL %d", ErrInvalidRecord, r.Name, r.TTL)
	}

	switch r.Type {
	case TypeA:
		if len(r.Targets) == 0 {
			return fmt.Errorf("%w: A record %s has no targets", ErrInvalidRecord, r.Name)
		}
		for _, ip := range r.Targets {
			if !utilnet.IsIPv4String(ip) {
				return fmt.Errorf("%w: A record %s has non-IPv4 target %q", ErrInvalidRecord, r.Name, ip)
			}
		}
	case TypeCNAME:
		if len(r.Targets) != 1 {
			return fmt.Errorf("%w: CNAME record %s needs exactly one target, got %d", ErrInvalidRecord, r.Name, len(r.Targets))
		}
		target := r.Targets[0]
		if target == "" {
			return fmt.Errorf("%w: CNAME record %s has an empty target", ErrInvalidRecord, r.Name)
		}
		if utilnet.IsIPv4String(target) || !isHostName(strings.TrimSuffix(target, "."), false) {
			return fmt.Errorf("%w: CNAME record %s has invalid target %q", ErrInvalidRecord, r.Name, target)
		}
	default:
		return fmt.Errorf("%w: unsupported record type %q", ErrInvalidRecord, r.Type)
	}
	return nil
}

// isHostName reports whether name is made of RFC 1123 labels of at most 63
// characters. A leading "*." label is accepted when wildcard is set.
func isHostName(name string, wildcard bool) bool {
	if _, ok := miekgdns.IsDomainName(name); !ok {
		return false
	}
	name = strings.ToLower(name)
	if wildcard && strings.HasPrefix(name, "*.") {
		return len(validation.IsWildcardDNS1123Subdomain(name)) == 0
	}
	return len(validation.IsDNS1123Subdomain(name)) == 0
}
