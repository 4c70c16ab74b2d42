package controller

import (
	"context"
	"slices"
	"testing"
	"time"

	logrtesting "github.com/go-logr/logr/testing"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

func newPoller(t *testing.T, h *harness, kinds ...workload.Kind) *Poller {
	t.Helper()
	return &Poller{
		Reader:   h.client,
		Kinds:    kinds,
		Syncer:   h.syncer,
		Interval: 10 * time.Millisecond,
		Log:      logrtesting.NewTestLogger(t),
	}
}

func TestPollOnce(t *testing.T) {
	h := newHarness(t,
		service("app", map[string]string{"xlscsde.nhs.uk/dns-record": "app"}, "10.0.0.2", "10.0.0.1"),
		service("pending", map[string]string{"xlscsde.nhs.uk/dns-record": "pending"}),
		service("plain", nil, "10.0.0.3"),
		service("bad", map[string]string{
			"xlscsde.nhs.uk/dns-record":        "bad",
			"xlscsde.nhs.uk/dns-record-target": "x",
			"xlscsde.nhs.uk/dns-record-type":   "MX",
		}),
		ingress("web", map[string]string{"xlscsde.nhs.uk/dns-record": "web"}),
	)

	if err := newPoller(t, h, workload.KindService, workload.KindIngress).PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	got, err := h.zone.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var summary []string
	for _, r := range got {
		summary = append(summary, r.Name+" "+string(r.Type))
	}
	want := []string{"dev-app A", "dev-pending A", "dev-web CNAME"}
	if !slices.Equal(summary, want) {
		t.Errorf("zone = %v, want %v", summary, want)
	}

	app, _ := h.zone.Get("dev-app", dns.TypeA)
	if !slices.Equal(app.Targets, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Errorf("dev-app targets = %v", app.Targets)
	}
	pending, _ := h.zone.Get("dev-pending", dns.TypeA)
	if !slices.Equal(pending.Targets, []string{"127.0.0.1"}) {
		t.Errorf("dev-pending targets = %v", pending.Targets)
	}

	// Second pass finds nothing to do.
	writes := h.zone.Writes()
	if err := newPoller(t, h, workload.KindService, workload.KindIngress).PollOnce(context.Background()); err != nil {
		t.Fatalf("second PollOnce: %v", err)
	}
	if h.zone.Writes() != writes {
		t.Error("second pass wrote to the zone")
	}
}

func TestPollerOnlyListsEnabledKinds(t *testing.T) {
	h := newHarness(t, ingress("web", map[string]string{"xlscsde.nhs.uk/dns-record": "web"}))

	if err := newPoller(t, h, workload.KindService).PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if h.zone.Writes() != 0 {
		t.Error("ingress synced although only services are enabled")
	}
}

func TestPollerStart(t *testing.T) {
	h := newHarness(t, service("app", map[string]string{"xlscsde.nhs.uk/dns-record": "app"}, "10.0.0.1"))
	p := newPoller(t, h, workload.KindService)

	if !p.NeedLeaderElection() {
		t.Error("poller must run on the leader only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	err := wait.PollUntilContextTimeout(context.Background(), 5*time.Millisecond, 5*time.Second, true,
		func(context.Context) (bool, error) {
			_, ok := h.zone.Get("dev-app", dns.TypeA)
			return ok, nil
		})
	cancel()
	if err != nil {
		t.Fatalf("record never written: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
