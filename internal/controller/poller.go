package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/metrics"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

// DefaultPollInterval is used when Poller.Interval is not set.
const DefaultPollInterval = time.Minute

// Poller lists every workload of the enabled kinds on a fixed interval and
// syncs the annotated ones. It is the alternative to the watch controllers.
type Poller struct {
	Reader   client.Reader
	Kinds    []workload.Kind
	Syncer   *Syncer
	Interval time.Duration
	Log      logr.Logger
	Metrics  metrics.Collector // optional
}

var (
	_ manager.Runnable               = &Poller{}
	_ manager.LeaderElectionRunnable = &Poller{}
)

// Start polls until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p.Log.Info("starting poller", "interval", interval, "kinds", p.Kinds)
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		if err := p.PollOnce(ctx); err != nil {
			p.Log.Error(err, "poll pass failed, retrying next tick")
		}
	}, interval)
	return nil
}

// NeedLeaderElection keeps a single replica polling when leader election is on.
func (p *Poller) NeedLeaderElection() bool {
	return true
}

// PollOnce runs a single pass over every workload of the enabled kinds.
// Invalid records are logged and do not fail the pass.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := time.Now()
	var (
		errs  []error
		count int
	)

	for _, kind := range p.Kinds {
		list, err := workload.NewList(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.Reader.List(ctx, list); err != nil {
			errs = append(errs, fmt.Errorf("listing %s: %w", kind, err))
			continue
		}

		err = meta.EachListItem(list, func(o runtime.Object) error {
			obj, ok := o.(client.Object)
			if !ok || !obj.GetDeletionTimestamp().IsZero() {
				return nil
			}
			if !p.Syncer.Resolver.Requested(obj.GetAnnotations()) {
				return nil
			}
			count++
			if err := p.Syncer.Sync(ctx, obj); err != nil && !errors.Is(err, dns.ErrInvalidRecord) {
				errs = append(errs, fmt.Errorf("%s %s/%s: %w", kind, obj.GetNamespace(), obj.GetName(), err))
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	status := metrics.StatusSuccess
	if len(errs) > 0 {
		status = metrics.StatusError
	}
	p.metrics().RecordPoll(ctx, status, time.Since(start), count)
	p.Log.V(1).Info("poll pass finished", "workloads", count, "errors", len(errs), "duration", time.Since(start))
	return errors.Join(errs...)
}

func (p *Poller) metrics() metrics.Collector {
	if p.Metrics == nil {
		return metrics.NewNoopCollector()
	}
	return p.Metrics
}
