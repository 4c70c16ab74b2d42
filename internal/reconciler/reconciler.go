package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/metrics"
)

const (
	opList           = "list"
	opCreateOrUpdate = "create_or_update"
	opDelete         = "delete"
)

// Reconciler runs one read-decide-write pass per desired record. It holds no
// state between passes; every pass lists the zone again.
type Reconciler struct {
	Zone    dns.Zone
	Log     logr.Logger
	Metrics metrics.Collector // optional
}

// New returns a Reconciler for zone.
func New(zone dns.Zone, log logr.Logger, collector metrics.Collector) *Reconciler {
	return &Reconciler{Zone: zone, Log: log, Metrics: collector}
}

func (r *Reconciler) metrics() metrics.Collector {
	if r.Metrics == nil {
		return metrics.NewNoopCollector()
	}
	return r.Metrics
}

// Reconcile brings the zone in line with desired, or explains why it did not.
//
// An invalid desired record returns an error wrapping dns.ErrInvalidRecord
// without touching the zone. REJECT is not an error: the decision carries the
// conflict (see Decision.Err). Zone failures are returned wrapped and are safe
// to retry.
func (r *Reconciler) Reconcile(ctx context.Context, desired dns.Record) (Decision, error) {
	log := r.Log.WithValues("zone", r.Zone.Name(), "name", desired.Name, "type", desired.Type, "owner", desired.Owner)

	if err := desired.Validate(); err != nil {
		d := Decision{Action: ActionInvalid, Reason: ReasonValidation}
		r.metrics().RecordDecision(ctx, string(d.Action), string(d.Reason))
		log.Error(err, "desired record is invalid, not writing", "targets", desired.Targets)
		return d, err
	}

	var listing []dns.ExistingRecord
	err := r.call(ctx, opList, func() error {
		var err error
		listing, err = r.Zone.List(ctx)
		return err
	})
	if err != nil {
		return Decision{}, fmt.Errorf("listing zone %s: %w", r.Zone.Name(), err)
	}
	r.metrics().RecordZoneRecords(ctx, len(listing))

	d := Decide(desired, listing)
	r.metrics().RecordDecision(ctx, string(d.Action), string(d.Reason))
	r.logDecision(log, desired, d)

	switch d.Action {
	case ActionCreate:
		err = r.write(ctx, desired, dns.Precondition{IfNoneMatch: true})
	case ActionUpdate:
		err = r.write(ctx, desired, dns.Precondition{IfMatch: d.Existing.ETag})
	case ActionReplace:
		err = r.replace(ctx, log, desired, d.Existing)
	}
	return d, err
}

func (r *Reconciler) write(ctx context.Context, desired dns.Record, pre dns.Precondition) error {
	err := r.call(ctx, opCreateOrUpdate, func() error {
		return r.Zone.CreateOrUpdate(ctx, desired, pre)
	})
	if err != nil {
		return fmt.Errorf("writing %s record %s: %w", desired.Type, desired.Name, err)
	}
	return nil
}

func (r *Reconciler) replace(ctx context.Context, log logr.Logger, desired dns.Record, old *dns.ExistingRecord) error {
	err := r.call(ctx, opDelete, func() error {
		return r.Zone.Delete(ctx, old.Name, old.Type, dns.Precondition{IfMatch: old.ETag})
	})
	if err != nil {
		return fmt.Errorf("deleting %s record %s: %w", old.Type, old.Name, err)
	}
	log.Info("deleted record of previous type", "previousType", old.Type, "previousTargets", old.Targets)
	return r.write(ctx, desired, dns.Precondition{IfNoneMatch: true})
}

func (r *Reconciler) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		r.metrics().RecordZoneError(ctx, op, metrics.ClassifyZoneError(err))
	}
	r.metrics().RecordZoneCall(ctx, op, status, time.Since(start))
	return err
}

func (r *Reconciler) logDecision(log logr.Logger, desired dns.Record, d Decision) {
	kv := []any{
		"action", d.Action,
		"reason", d.Reason,
		"found", d.Found,
		"ownerMatch", d.OwnerMatch,
		"equal", d.Equal,
		"desiredTargets", desired.Targets,
	}
	if d.Existing != nil {
		kv = append(kv,
			"existingType", d.Existing.Type,
			"existingTargets", d.Existing.Targets,
			"existingOwner", d.Existing.Owner,
		)
	}

	switch d.Action {
	case ActionReject:
		log.Error(d.Err(), "refusing to write record", kv...)
	case ActionSkip:
		log.Info("record up to date", kv...)
	default:
		log.Info("writing record", kv...)
	}
}
