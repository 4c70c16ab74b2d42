package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/lscsde/aks-dns-operator/internal/config"
	"github.com/lscsde/aks-dns-operator/internal/controller"
	"github.com/lscsde/aks-dns-operator/internal/dns"
	_ "github.com/lscsde/aks-dns-operator/internal/dns/providers"
	"github.com/lscsde/aks-dns-operator/internal/metrics"
	"github.com/lscsde/aks-dns-operator/internal/reconciler"
)

const operatorName = "aks-dns-operator"

func newRootCommand() *cobra.Command {
	zapOpts := zap.Options{
		Development: true,
	}

	cmd := &cobra.Command{
		Use:   operatorName,
		Short: "Keeps Azure Private DNS records in sync with Service and Ingress addresses",
		Long: `aks-dns-operator watches annotated Services, Ingresses and Gateways and
maintains A or CNAME records for them in an Azure Private DNS zone. Records are
tagged with their owner and records owned by someone else are never changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			opts, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(ctrl.SetupSignalHandler(), opts)
		},
	}

	config.BindFlags(cmd.Flags())
	goFlags := flag.NewFlagSet(operatorName, flag.ExitOnError)
	zapOpts.BindFlags(goFlags)
	cmd.Flags().AddGoFlagSet(goFlags)

	return cmd
}

func run(ctx context.Context, opts *config.Options) error {
	log := ctrl.Log.WithName("setup")

	log.Info("starting "+operatorName, "version", Version, "zone", opts.Zone, "source", opts.Source, "kinds", opts.Kinds)

	providerCfg, err := opts.ProviderConfig()
	if err != nil {
		return fmt.Errorf("unable to load provider config: %w", err)
	}
	log.Info("loaded provider config", "provider", providerCfg.Provider, "path", opts.ProviderConfigPath)

	zone, err := dns.NewZone(providerCfg.Provider, ctrl.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
	if err != nil {
		return fmt.Errorf("unable to create DNS zone client: %w", err)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                  scheme,
		Metrics:                 metricsserver.Options{BindAddress: opts.MetricsAddr},
		HealthProbeBindAddress:  opts.HealthAddr,
		LeaderElection:          opts.LeaderElect,
		LeaderElectionID:        operatorName,
		LeaderElectionNamespace: opts.LeaderElectionNamespace,
	})
	if err != nil {
		return fmt.Errorf("unable to create manager: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	collector := metrics.NewCollector(crmetrics.Registry)
	syncer := &controller.Syncer{
		Resolver:   opts.Resolver(),
		Reconciler: reconciler.New(zone, ctrl.Log.WithName("reconciler"), collector),
		Recorder:   mgr.GetEventRecorderFor(operatorName),
		Log:        ctrl.Log.WithName("sync"),
	}

	switch opts.Source {
	case config.SourcePoll:
		poller := &controller.Poller{
			Reader:   mgr.GetAPIReader(),
			Kinds:    opts.Kinds,
			Syncer:   syncer,
			Interval: opts.PollInterval,
			Log:      ctrl.Log.WithName("poller"),
			Metrics:  collector,
		}
		if err := mgr.Add(poller); err != nil {
			return fmt.Errorf("unable to add poller: %w", err)
		}
	default:
		for _, kind := range opts.Kinds {
			r := &controller.WorkloadReconciler{
				Client:                  mgr.GetClient(),
				Kind:                    kind,
				Syncer:                  syncer,
				Log:                     ctrl.Log.WithName(string(kind) + "-controller"),
				MaxConcurrentReconciles: opts.MaxConcurrentReconciles,
			}
			if err := r.SetupWithManager(mgr); err != nil {
				return fmt.Errorf("unable to set up %s controller: %w", kind, err)
			}
		}
	}

	log.Info("starting manager")
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("manager exited with error: %w", err)
	}

	return nil
}
