package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/reconciler"
	"github.com/lscsde/aks-dns-operator/internal/resolver"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

// Event reasons recorded on workloads.
const (
	ReasonRecordCreated  = "DNSRecordCreated"
	ReasonRecordUpdated  = "DNSRecordUpdated"
	ReasonRecordReplaced = "DNSRecordReplaced"
	ReasonRecordRejected = "DNSRecordRejected"
	ReasonRecordInvalid  = "DNSRecordInvalid"
	ReasonSyncFailed     = "DNSSyncFailed"
)

// Syncer runs one reconciliation pass for a workload. The watch controllers
// and the poller share it.
type Syncer struct {
	Resolver   *resolver.Resolver
	Reconciler *reconciler.Reconciler
	Recorder   record.EventRecorder // optional
	Log        logr.Logger
}

// Sync resolves the records obj asks for and reconciles each of them.
//
// Zone failures are returned first so that the caller retries. When the only
// failures are invalid records the error wraps dns.ErrInvalidRecord.
func (s *Syncer) Sync(ctx context.Context, obj client.Object) error {
	w, err := workload.FromObject(obj)
	if err != nil {
		return err
	}
	log := s.Log.WithValues("kind", w.Kind, "namespace", w.Namespace, "name", w.Name)

	desired, err := s.Resolver.Resolve(w)
	if err != nil {
		log.Error(err, "cannot resolve desired record")
		s.event(obj, corev1.EventTypeWarning, ReasonRecordInvalid, err.Error())
		return err
	}
	if len(desired) == 0 {
		log.V(1).Info("no DNS record requested")
		return nil
	}

	var failed, invalid []error
	for _, want := range desired {
		log.V(1).Info("resolved desired record", "record", want.Record.Name, "type", want.Record.Type,
			"targets", want.Record.Targets, "source", want.Source)

		d, err := s.Reconciler.Reconcile(ctx, want.Record)
		switch {
		case errors.Is(err, dns.ErrInvalidRecord):
			invalid = append(invalid, err)
			s.event(obj, corev1.EventTypeWarning, ReasonRecordInvalid, err.Error())
			continue
		case err != nil:
			failed = append(failed, err)
			s.event(obj, corev1.EventTypeWarning, ReasonSyncFailed, syncFailedMessage(want.Record, d, err))
			continue
		}
		s.recordDecision(obj, want.Record, d)
	}

	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return errors.Join(invalid...)
}

// syncFailedMessage names the write that failed, or the zone listing when no
// decision was reached.
func syncFailedMessage(rec dns.Record, d reconciler.Decision, err error) string {
	if d.Action == "" {
		return fmt.Sprintf("listing zone for %s record %s: %v", rec.Type, rec.Name, err)
	}
	return fmt.Sprintf("%s %s record %s: %v", d.Action, rec.Type, rec.Name, err)
}

func (s *Syncer) recordDecision(obj client.Object, rec dns.Record, d reconciler.Decision) {
	switch d.Action {
	case reconciler.ActionCreate:
		s.event(obj, corev1.EventTypeNormal, ReasonRecordCreated,
			fmt.Sprintf("created %s record %s -> %v", rec.Type, rec.Name, rec.Targets))
	case reconciler.ActionUpdate:
		s.event(obj, corev1.EventTypeNormal, ReasonRecordUpdated,
			fmt.Sprintf("updated %s record %s -> %v", rec.Type, rec.Name, rec.Targets))
	case reconciler.ActionReplace:
		s.event(obj, corev1.EventTypeNormal, ReasonRecordReplaced,
			fmt.Sprintf("replaced %s record %s with %s -> %v", d.Existing.Type, rec.Name, rec.Type, rec.Targets))
	case reconciler.ActionReject:
		s.event(obj, corev1.EventTypeWarning, ReasonRecordRejected,
			fmt.Sprintf("not writing %s record %s (%s): %v", rec.Type, rec.Name, d.Reason, d.Err()))
	}
}

func (s *Syncer) event(obj client.Object, eventType, reason, message string) {
	if s.Recorder == nil {
		return
	}
	s.Recorder.Event(obj, eventType, reason, message)
}
