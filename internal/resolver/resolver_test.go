package resolver

import (
	"errors"
	"slices"
	"testing"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

func newResolver() *Resolver {
	return &Resolver{Prefix: "dev-", Zone: "example.internal"}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		kind        workload.Kind
		annotations map[string]string
		addresses   []string
		wantType    dns.RecordType
		wantName    string
		wantTargets []string
		wantSource  Source
	}{
		{
			name:        "addresses become an A record",
			kind:        workload.KindService,
			annotations: map[string]string{"xlscsde.nhs.uk/dns-record": "app"},
			addresses:   []string{"10.0.0.2", "10.0.0.1", "10.0.0.2"},
			wantType:    dns.TypeA,
			wantName:    "dev-app",
			wantTargets: []string{"10.0.0.1", "10.0.0.2"},
			wantSource:  SourceAddresses,
		},
		{
			name:        "ingress without addresses falls back to the shared ingress host",
			kind:        workload.KindIngress,
			annotations: map[string]string{"xlscsde.nhs.uk/dns-record": "foo"},
			wantType:    dns.TypeCNAME,
			wantName:    "dev-foo",
			wantTargets: []string{"dev-nginx.example.internal"},
			wantSource:  SourceIngressFallback,
		},
		{
			name:        "service without addresses falls back to loopback",
			kind:        workload.KindService,
			annotations: map[string]string{"xlscsde.nhs.uk/dns-record": "foo"},
			wantType:    dns.TypeA,
			wantName:    "dev-foo",
			wantTargets: []string{"127.0.0.1"},
			wantSource:  SourceLoopbackFallback,
		},
		{
			name:        "gateway without addresses falls back to loopback",
			kind:        workload.KindGateway,
			annotations: map[string]string{"xlscsde.nhs.uk/dns-record": "gw"},
			wantType:    dns.TypeA,
			wantName:    "dev-gw",
			wantTargets: []string{"127.0.0.1"},
			wantSource:  SourceLoopbackFallback,
		},
		{
			name: "override wins over addresses",
			kind: workload.KindService,
			annotations: map[string]string{
				"xlscsde.nhs.uk/dns-record":        "app",
				"xlscsde.nhs.uk/dns-record-target": "5.6.7.8, 1.2.3.4,,",
			},
			addresses:   []string{"10.0.0.1"},
			wantType:    dns.TypeA,
			wantName:    "dev-app",
			wantTargets: []string{"1.2.3.4", "5.6.7.8"},
			wantSource:  SourceOverride,
		},
		{
			name: "cname override keeps the whole value",
			kind: workload.KindIngress,
			annotations: map[string]string{
				"xlscsde.nhs.uk/dns-record":        "web",
				"xlscsde.nhs.uk/dns-record-target": "frontdoor.example.com",
				"xlscsde.nhs.uk/dns-record-type":   "cname",
			},
			wantType:    dns.TypeCNAME,
			wantName:    "dev-web",
			wantTargets: []string{"frontdoor.example.com"},
			wantSource:  SourceOverride,
		},
		{
			name: "empty override is ignored",
			kind: workload.KindService,
			annotations: map[string]string{
				"xlscsde.nhs.uk/dns-record":        "app",
				"xlscsde.nhs.uk/dns-record-target": " ",
			},
			addresses:   []string{"10.0.0.1"},
			wantType:    dns.TypeA,
			wantName:    "dev-app",
			wantTargets: []string{"10.0.0.1"},
			wantSource:  SourceAddresses,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := workload.Workload{Kind: tt.kind, Namespace: "ns", Name: "obj", Annotations: tt.annotations, Addresses: tt.addresses}
			got, err := newResolver().Resolve(w)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d records, want 1", len(got))
			}
			rec := got[0].Record
			if rec.Name != tt.wantName || rec.Type != tt.wantType || !slices.Equal(rec.Targets, tt.wantTargets) {
				t.Errorf("record = %+v, want %s %s %v", rec, tt.wantName, tt.wantType, tt.wantTargets)
			}
			if got[0].Source != tt.wantSource {
				t.Errorf("source = %s, want %s", got[0].Source, tt.wantSource)
			}
			if rec.Owner != string(tt.kind)+"/ns/obj" {
				t.Errorf("owner = %s", rec.Owner)
			}
			if rec.TTL != 300 {
				t.Errorf("ttl = %d", rec.TTL)
			}
			if err := rec.Validate(); err != nil {
				t.Errorf("resolved record does not validate: %v", err)
			}
		})
	}
}

func TestResolveNotRequested(t *testing.T) {
	w := workload.Workload{Kind: workload.KindService, Namespace: "ns", Name: "obj", Addresses: []string{"10.0.0.1"},
		Annotations: map[string]string{"other.io/dns-record": "x"}}
	got, err := newResolver().Resolve(w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want nothing", got)
	}
}

func TestResolveUnknownType(t *testing.T) {
	w := workload.Workload{Kind: workload.KindService, Namespace: "ns", Name: "obj", Annotations: map[string]string{
		"xlscsde.nhs.uk/dns-record":        "app",
		"xlscsde.nhs.uk/dns-record-target": "txt-value",
		"xlscsde.nhs.uk/dns-record-type":   "TXT",
	}}
	_, err := newResolver().Resolve(w)
	if !errors.Is(err, dns.ErrInvalidRecord) {
		t.Fatalf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestOwnerPrefix(t *testing.T) {
	r := newResolver()
	r.OwnerPrefix = "aks-dns-operator"
	w := workload.Workload{Kind: workload.KindService, Namespace: "ns", Name: "a"}
	if got := r.Owner(w); got != "aks-dns-operator/service/ns/a" {
		t.Errorf("Owner = %s", got)
	}
}

func TestCustomAnnotationDomain(t *testing.T) {
	r := newResolver()
	r.AnnotationDomain = "dns.example.org"
	w := workload.Workload{Kind: workload.KindService, Namespace: "ns", Name: "a",
		Annotations: map[string]string{"dns.example.org/dns-record": "svc"}, Addresses: []string{"10.0.0.1"}}
	got, err := r.Resolve(w)
	if err != nil || len(got) != 1 || got[0].Record.Name != "dev-svc" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestLegacyAnnotation(t *testing.T) {
	r := newResolver()
	r.Legacy = true
	w := workload.Workload{
		Kind: workload.KindService, Namespace: "ns", Name: "a",
		Annotations: map[string]string{
			LegacyPrefixAnnotation:      "api  api-internal dev-app",
			"xlscsde.nhs.uk/dns-record": "app",
		},
		Addresses: []string{"10.0.0.1"},
	}
	got, err := r.Resolve(w)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var names []string
	for _, d := range got {
		names = append(names, d.Record.Name)
	}
	// dev-app is already produced by the record annotation.
	if !slices.Equal(names, []string{"dev-app", "api", "api-internal"}) {
		t.Errorf("names = %v", names)
	}
	if got[1].Source != SourceLegacy {
		t.Errorf("source = %s", got[1].Source)
	}

	w.Addresses = nil
	got, _ = r.Resolve(w)
	if len(got) != 1 {
		t.Errorf("legacy names need addresses, got %d records", len(got))
	}

	r.Legacy = false
	w.Addresses = []string{"10.0.0.1"}
	got, _ = r.Resolve(w)
	if len(got) != 1 {
		t.Errorf("legacy disabled, got %d records", len(got))
	}
}

func TestLegacyOwner(t *testing.T) {
	r := newResolver()
	r.Legacy = true
	w := workload.Workload{
		Kind: workload.KindService, Namespace: "ns", Name: "a",
		Annotations: map[string]string{
			LegacyPrefixAnnotation:      "api",
			"xlscsde.nhs.uk/dns-record": "app",
		},
		Addresses: []string{"10.0.0.1"},
	}

	got, err := r.Resolve(w)
	if err != nil || len(got) != 2 {
		t.Fatalf("got %v, %v", got, err)
	}
	if got[1].Record.Owner != r.Owner(w) {
		t.Errorf("without LegacyOwner, owner = %q, want %q", got[1].Record.Owner, r.Owner(w))
	}

	r.LegacyOwner = DefaultLegacyOwner
	got, _ = r.Resolve(w)
	if got[0].Record.Owner != r.Owner(w) {
		t.Errorf("annotated record owner = %q", got[0].Record.Owner)
	}
	if got[1].Record.Owner != DefaultLegacyOwner {
		t.Errorf("legacy record owner = %q, want %q", got[1].Record.Owner, DefaultLegacyOwner)
	}
}

func TestRequestedAndAnnotationsChanged(t *testing.T) {
	r := newResolver()
	if r.Requested(map[string]string{"x": "y"}) {
		t.Error("unexpected request")
	}
	if !r.Requested(map[string]string{"xlscsde.nhs.uk/dns-record": ""}) {
		t.Error("record annotation should count as a request")
	}
	if r.Requested(map[string]string{LegacyPrefixAnnotation: "a"}) {
		t.Error("legacy annotation counted while disabled")
	}

	old := map[string]string{"xlscsde.nhs.uk/dns-record": "a", "unrelated": "1"}
	if r.AnnotationsChanged(old, map[string]string{"xlscsde.nhs.uk/dns-record": "a", "unrelated": "2"}) {
		t.Error("unrelated change reported")
	}
	if !r.AnnotationsChanged(old, map[string]string{"xlscsde.nhs.uk/dns-record": "a", "xlscsde.nhs.uk/dns-record-type": "A"}) {
		t.Error("added type annotation not reported")
	}
	if !r.AnnotationsChanged(old, nil) {
		t.Error("removed record annotation not reported")
	}
}
