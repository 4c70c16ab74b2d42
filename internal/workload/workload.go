// Package workload turns cluster objects (Services, Ingresses, Gateways) into
// the kind, identity, annotations and load-balancer addresses the resolver needs.
package workload

import (
	"fmt"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	utilnet "k8s.io/utils/net"
	"sigs.k8s.io/controller-runtime/pkg/client"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

// Kind names a supported workload kind. It is also the first segment of the
// owner tag written to the zone.
type Kind string

const (
	KindService Kind = "service"
	KindIngress Kind = "ingress"
	KindGateway Kind = "gateway"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindService, KindIngress, KindGateway}

// Workload is the part of a cluster object that record resolution looks at.
type Workload struct {
	Kind        Kind
	Namespace   string
	Name        string
	Annotations map[string]string
	Addresses   []string // IPv4 load-balancer addresses in status order
}

// Owner returns "<kind>/<namespace>/<name>".
func (w Workload) Owner() string {
	return fmt.Sprintf("%s/%s/%s", w.Kind, w.Namespace, w.Name)
}

// FromService reads a Service's load-balancer ingress IPs.
func FromService(svc *corev1.Service) Workload {
	var ips []string
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		ips = appendIPv4(ips, ing.IP)
	}
	return Workload{
		Kind:        KindService,
		Namespace:   svc.Namespace,
		Name:        svc.Name,
		Annotations: svc.Annotations,
		Addresses:   ips,
	}
}

// FromIngress reads an Ingress's load-balancer ingress IPs.
func FromIngress(ing *networkingv1.Ingress) Workload {
	var ips []string
	for _, lb := range ing.Status.LoadBalancer.Ingress {
		ips = appendIPv4(ips, lb.IP)
	}
	return Workload{
		Kind:        KindIngress,
		Namespace:   ing.Namespace,
		Name:        ing.Name,
		Annotations: ing.Annotations,
		Addresses:   ips,
	}
}

// FromGateway reads a Gateway's status addresses of type IPAddress.
func FromGateway(gw *gatewayv1.Gateway) Workload {
	var ips []string
	for _, addr := range gw.Status.Addresses {
		if addr.Type != nil && *addr.Type != gatewayv1.IPAddressType {
			continue
		}
		ips = appendIPv4(ips, addr.Value)
	}
	return Workload{
		Kind:        KindGateway,
		Namespace:   gw.Namespace,
		Name:        gw.Name,
		Annotations: gw.Annotations,
		Addresses:   ips,
	}
}

// FromObject dispatches on the concrete object type.
func FromObject(obj client.Object) (Workload, error) {
	switch o := obj.(type) {
	case *corev1.Service:
		return FromService(o), nil
	case *networkingv1.Ingress:
		return FromIngress(o), nil
	case *gatewayv1.Gateway:
		return FromGateway(o), nil
	default:
		return Workload{}, fmt.Errorf("workload: unsupported object type %T", obj)
	}
}

// appendIPv4 skips empty entries (hostname-only load balancers) and non-IPv4
// addresses, which cannot go into an A record.
func appendIPv4(ips []string, ip string) []string {
	if ip == "" || !utilnet.IsIPv4String(ip) {
		return ips
	}
	return append(ips, ip)
}

// NewObject returns an empty object of the given kind.
func NewObject(kind Kind) (client.Object, error) {
	switch kind {
	case KindService:
		return &corev1.Service{}, nil
	case KindIngress:
		return &networkingv1.Ingress{}, nil
	case KindGateway:
		return &gatewayv1.Gateway{}, nil
	default:
		return nil, fmt.Errorf("workload: unknown kind %q", kind)
	}
}

// NewList returns an empty list of the given kind.
func NewList(kind Kind) (client.ObjectList, error) {
	switch kind {
	case KindService:
		return &corev1.ServiceList{}, nil
	case KindIngress:
		return &networkingv1.IngressList{}, nil
	case KindGateway:
		return &gatewayv1.GatewayList{}, nil
	default:
		return nil, fmt.Errorf("workload: unknown kind %q", kind)
	}
}

// ParseKinds parses names such as ["service", "Ingress"] into kinds, dropping
// duplicates and keeping the first-seen order.
func ParseKinds(names []string) ([]Kind, error) {
	var kinds []Kind
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		k := Kind(n)
		if !slices.Contains(Kinds, k) {
			return nil, fmt.Errorf("workload: unknown kind %q (supported: %v)", n, Kinds)
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("workload: no kinds enabled")
	}
	return kinds, nil
}
