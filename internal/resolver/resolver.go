// Package resolver derives the DNS records a workload asks for from its
// annotations and load-balancer addresses.
package resolver

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

const (
	// DefaultAnnotationDomain prefixes the record annotations.
	DefaultAnnotationDomain = "xlscsde.nhs.uk"

	// LegacyPrefixAnnotation is read from Services when legacy annotations are
	// enabled. Its value is a space-separated list of record names.
	LegacyPrefixAnnotation = "service.beta.kubernetes.io/azure-private-dns-prefix"

	// DefaultLegacyOwner is the owner tag the prefix-annotation watcher wrote.
	DefaultLegacyOwner = "aks-dns-operator"

	// LoopbackTarget claims a name for a workload that has no address yet.
	LoopbackTarget = "127.0.0.1"

	fallbackIngressHost = "nginx"
)

// Source says which rule produced a desired record.
type Source string

const (
	SourceOverride         Source = "override"
	SourceAddresses        Source = "addresses"
	SourceIngressFallback  Source = "ingress-fallback"
	SourceLoopbackFallback Source = "loopback-fallback"
	SourceLegacy           Source = "legacy-annotation"
)

// Desired is a record the workload wants, with the rule that produced it.
type Desired struct {
	Record dns.Record
	Source Source
}

// Resolver maps workloads to desired records. The zero value is not usable;
// Zone must be set.
type Resolver struct {
	AnnotationDomain string // e.g. "xlscsde.nhs.uk"
	Prefix           string // prepended to every record name
	Zone             string // zone name, used for the ingress fallback target
	OwnerPrefix      string // optional, prepended to the owner tag with a "/"
	Legacy           bool   // also honour LegacyPrefixAnnotation on Services
	LegacyOwner      string // owner tag of legacy records, defaults to the workload owner
}

func (r *Resolver) domain() string {
	if r.AnnotationDomain == "" {
		return DefaultAnnotationDomain
	}
	return r.AnnotationDomain
}

// RecordAnnotation is the annotation that requests a record.
func (r *Resolver) RecordAnnotation() string { return r.domain() + "/dns-record" }

// TargetAnnotation overrides the record targets.
func (r *Resolver) TargetAnnotation() string { return r.domain() + "/dns-record-target" }

// TypeAnnotation selects the record type when targets are overridden.
func (r *Resolver) TypeAnnotation() string { return r.domain() + "/dns-record-type" }

// Keys returns every annotation key that influences resolution.
func (r *Resolver) Keys() []string {
	keys := []string{r.RecordAnnotation(), r.TargetAnnotation(), r.TypeAnnotation()}
	if r.Legacy {
		keys = append(keys, LegacyPrefixAnnotation)
	}
	return keys
}

// Requested reports whether the annotations ask for any record.
func (r *Resolver) Requested(annotations map[string]string) bool {
	if _, ok := annotations[r.RecordAnnotation()]; ok {
		return true
	}
	if r.Legacy {
		_, ok := annotations[LegacyPrefixAnnotation]
		return ok
	}
	return false
}

// AnnotationsChanged reports whether any annotation that influences
// resolution differs between the two maps.
func (r *Resolver) AnnotationsChanged(oldAnn, newAnn map[string]string) bool {
	for _, k := range r.Keys() {
		ov, ook := oldAnn[k]
		nv, nok := newAnn[k]
		if ook != nok || ov != nv {
			return true
		}
	}
	return false
}

// Owner returns the owner tag for a workload.
func (r *Resolver) Owner(w workload.Workload) string {
	if r.OwnerPrefix == "" {
		return w.Owner()
	}
	return r.OwnerPrefix + "/" + w.Owner()
}

// Resolve returns the records the workload asks for. A workload without the
// record annotation yields none. Errors wrap dns.ErrInvalidRecord.
func (r *Resolver) Resolve(w workload.Workload) ([]Desired, error) {
	var out []Desired

	if name, ok := w.Annotations[r.RecordAnnotation()]; ok {
		d, err := r.resolveAnnotated(w, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if r.Legacy && w.Kind == workload.KindService && len(w.Addresses) > 0 {
		seen := sets.New[string]()
		for _, d := range out {
			seen.Insert(strings.ToLower(d.Record.Name))
		}
		for _, name := range strings.Fields(w.Annotations[LegacyPrefixAnnotation]) {
			if seen.Has(strings.ToLower(name)) {
				continue
			}
			seen.Insert(strings.ToLower(name))
			rec := r.record(w, name, dns.TypeA, w.Addresses)
			if r.LegacyOwner != "" {
				rec.Owner = r.LegacyOwner
			}
			out = append(out, Desired{Record: rec, Source: SourceLegacy})
		}
	}
	return out, nil
}

func (r *Resolver) resolveAnnotated(w workload.Workload, name string) (Desired, error) {
	name = r.Prefix + name

	if target := strings.TrimSpace(w.Annotations[r.TargetAnnotation()]); target != "" {
		recordType, err := r.overrideType(w.Annotations)
		if err != nil {
			return Desired{}, err
		}
		var targets []string
		switch recordType {
		case dns.TypeA:
			for _, t := range strings.Split(target, ",") {
				if t = strings.TrimSpace(t); t != "" {
					targets = append(targets, t)
				}
			}
		case dns.TypeCNAME:
			targets = []string{target}
		}
		return Desired{Record: r.record(w, name, recordType, targets), Source: SourceOverride}, nil
	}

	if len(w.Addresses) > 0 {
		return Desired{Record: r.record(w, name, dns.TypeA, w.Addresses), Source: SourceAddresses}, nil
	}

	if w.Kind == workload.KindIngress {
		target := dns.FQDN(r.Prefix+fallbackIngressHost, r.Zone)
		return Desired{Record: r.record(w, name, dns.TypeCNAME, []string{target}), Source: SourceIngressFallback}, nil
	}
	return Desired{Record: r.record(w, name, dns.TypeA, []string{LoopbackTarget}), Source: SourceLoopbackFallback}, nil
}

func (r *Resolver) overrideType(annotations map[string]string) (dns.RecordType, error) {
	v := strings.ToUpper(strings.TrimSpace(annotations[r.TypeAnnotation()]))
	switch dns.RecordType(v) {
	case "", dns.TypeA:
		return dns.TypeA, nil
	case dns.TypeCNAME:
		return dns.TypeCNAME, nil
	default:
		return "", fmt.Errorf("%w: annotation %s has unsupported record type %q", dns.ErrInvalidRecord, r.TypeAnnotation(), annotations[r.TypeAnnotation()])
	}
}

// record builds a dns.Record. A targets are de-duplicated and sorted so that
// writes are deterministic.
func (r *Resolver) record(w workload.Workload, name string, t dns.RecordType, targets []string) dns.Record {
	if t == dns.TypeA {
		targets = sets.List(sets.New(targets...))
	}
	return dns.Record{
		Name:    name,
		Type:    t,
		Targets: targets,
		Owner:   r.Owner(w),
		TTL:     dns.DefaultTTL,
	}
}
