package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	crcontroller "sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

// WorkloadReconciler reconciles the DNS records of one workload kind.
type WorkloadReconciler struct {
	client.Client
	Kind                    workload.Kind
	Syncer                  *Syncer
	Log                     logr.Logger
	MaxConcurrentReconciles int
}

func (r *WorkloadReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	obj, err := workload.NewObject(r.Kind)
	if err != nil {
		return ctrl.Result{}, reconcile.TerminalError(err)
	}
	if err := r.Get(ctx, req.NamespacedName, obj); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	// Records outlive their workloads; nothing to do on deletion.
	if !obj.GetDeletionTimestamp().IsZero() {
		return ctrl.Result{}, nil
	}
	if !r.Syncer.Resolver.Requested(obj.GetAnnotations()) {
		return ctrl.Result{}, nil
	}

	r.Log.V(1).Info("reconciling", "kind", r.Kind, "name", req.NamespacedName)
	err = r.Syncer.Sync(ctx, obj)
	switch {
	case err == nil:
		return ctrl.Result{}, nil
	case errors.Is(err, dns.ErrInvalidRecord):
		// Retrying cannot fix the annotations; the next update event will.
		return ctrl.Result{}, reconcile.TerminalError(err)
	default:
		return ctrl.Result{}, fmt.Errorf("syncing %s %s: %w", r.Kind, req.NamespacedName, err)
	}
}

func (r *WorkloadReconciler) SetupWithManager(mgr ctrl.Manager) error {
	obj, err := workload.NewObject(r.Kind)
	if err != nil {
		return err
	}
	return ctrl.NewControllerManagedBy(mgr).
		Named(string(r.Kind)+"-dns").
		For(obj, builder.WithPredicates(r.predicates())).
		WithOptions(crcontroller.Options{MaxConcurrentReconciles: r.MaxConcurrentReconciles}).
		Complete(r)
}

// predicates passes creates (including the initial list on start) of
// annotated workloads, and updates that change the relevant annotations or
// the load-balancer addresses.
func (r *WorkloadReconciler) predicates() predicate.Funcs {
	res := r.Syncer.Resolver
	return predicate.Funcs{
		CreateFunc: func(e event.CreateEvent) bool {
			return res.Requested(e.Object.GetAnnotations())
		},
		UpdateFunc: func(e event.UpdateEvent) bool {
			if !res.Requested(e.ObjectNew.GetAnnotations()) {
				return false
			}
			if res.AnnotationsChanged(e.ObjectOld.GetAnnotations(), e.ObjectNew.GetAnnotations()) {
				return true
			}
			return addressesChanged(e.ObjectOld, e.ObjectNew)
		},
		DeleteFunc: func(event.DeleteEvent) bool {
			return false
		},
		GenericFunc: func(e event.GenericEvent) bool {
			return res.Requested(e.Object.GetAnnotations())
		},
	}
}

func addressesChanged(oldObj, newObj client.Object) bool {
	o, err := workload.FromObject(oldObj)
	if err != nil {
		return true
	}
	n, err := workload.FromObject(newObj)
	if err != nil {
		return true
	}
	return !slices.Equal(o.Addresses, n.Addresses)
}
