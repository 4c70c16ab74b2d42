package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lscsde/aks-dns-operator/internal/dns"
	"github.com/lscsde/aks-dns-operator/internal/resolver"
	"github.com/lscsde/aks-dns-operator/internal/workload"
)

// Event sources.
const (
	SourceWatch = "watch"
	SourcePoll  = "poll"
)

const defaultProvider = "azure-private-dns"

// Options is the operator configuration, fixed at process start.
type Options struct {
	Zone               string
	Prefix             string
	SubscriptionID     string
	ResourceGroup      string
	ManagedBy          string
	AnnotationDomain   string
	LegacyAnnotations  bool
	LegacyOwner        string
	Provider           string
	ProviderConfigPath string

	Source                  string
	PollInterval            time.Duration
	Kinds                   []workload.Kind
	MaxConcurrentReconciles int

	LeaderElect             bool
	LeaderElectionNamespace string
	MetricsAddr             string
	HealthAddr              string
}

// BindFlags registers the operator flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("private-dns-zone", "", "Private DNS zone to manage (env PRIVATE_DNS_ZONE)")
	fs.String("dns-prefix", "", "Prefix prepended to every record name")
	fs.String("az-subscription-id", "", "Azure subscription of the zone")
	fs.String("resource-group-name", "", "Azure resource group of the zone")
	fs.String("managed-by", "", "Prefix for the managedBy owner tag")
	fs.String("annotation-domain", resolver.DefaultAnnotationDomain, "Domain of the dns-record annotations")
	fs.Bool("legacy-annotations", false, "Also honour "+resolver.LegacyPrefixAnnotation+" on Services")
	fs.String("legacy-owner", resolver.DefaultLegacyOwner, "managedBy tag of records created from the legacy annotation (empty: the workload owner)")
	fs.String("provider", defaultProvider, fmt.Sprintf("DNS provider %v", dns.Providers()))
	fs.String("provider-config", "", "Optional YAML file with provider settings")

	fs.String("source", SourceWatch, "Event source: watch or poll")
	fs.Duration("poll-interval", time.Minute, "Interval between poll passes (source=poll)")
	fs.StringSlice("kinds", []string{string(workload.KindService), string(workload.KindIngress)}, "Workload kinds to manage (service, ingress, gateway)")
	fs.Int("max-concurrent-reconciles", 1, "Concurrent reconciles per kind (source=watch)")

	fs.Bool("leader-elect", false, "Enable leader election for high availability")
	fs.String("leader-election-namespace", "", "Namespace for the leader election lease")
	fs.String("metrics-addr", ":9090", "Address for metrics endpoint")
	fs.String("health-addr", ":8081", "Address for health probe endpoint")
}

// NewViper returns a viper instance reading flags from fs and environment
// variables named after the flags, upper-cased with "-" replaced by "_".
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Names used by the older polling deployment.
	if err := v.BindEnv("private-dns-zone", "PRIVATE_DNS_ZONE", "PRIVATE_ZONE_NAME"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("az-subscription-id", "AZ_SUBSCRIPTION_ID", "SUBSCRIPTION_ID"); err != nil {
		return nil, err
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

// Load reads and validates Options.
func Load(v *viper.Viper) (*Options, error) {
	kinds, err := workload.ParseKinds(splitList(v.GetStringSlice("kinds")))
	if err != nil {
		return nil, err
	}

	opts := &Options{
		Zone:               strings.TrimSuffix(v.GetString("private-dns-zone"), "."),
		Prefix:             v.GetString("dns-prefix"),
		SubscriptionID:     v.GetString("az-subscription-id"),
		ResourceGroup:      v.GetString("resource-group-name"),
		ManagedBy:          v.GetString("managed-by"),
		AnnotationDomain:   v.GetString("annotation-domain"),
		LegacyAnnotations:  v.GetBool("legacy-annotations"),
		LegacyOwner:        v.GetString("legacy-owner"),
		Provider:           v.GetString("provider"),
		ProviderConfigPath: v.GetString("provider-config"),

		Source:                  v.GetString("source"),
		PollInterval:            v.GetDuration("poll-interval"),
		Kinds:                   kinds,
		MaxConcurrentReconciles: v.GetInt("max-concurrent-reconciles"),

		LeaderElect:             v.GetBool("leader-elect"),
		LeaderElectionNamespace: v.GetString("leader-election-namespace"),
		MetricsAddr:             v.GetString("metrics-addr"),
		HealthAddr:              v.GetString("health-addr"),
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// splitList accepts both repeated values and comma-separated strings, as
// environment variables arrive as a single string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the options that do not depend on the provider.
func (o *Options) Validate() error {
	if o.Zone == "" {
		return fmt.Errorf("private-dns-zone is required (use --private-dns-zone or PRIVATE_DNS_ZONE env var)")
	}
	if o.AnnotationDomain == "" {
		return fmt.Errorf("annotation-domain must not be empty")
	}
	switch o.Source {
	case SourceWatch:
		if o.MaxConcurrentReconciles < 1 {
			return fmt.Errorf("max-concurrent-reconciles must be at least 1, got %d", o.MaxConcurrentReconciles)
		}
	case SourcePoll:
		if o.PollInterval <= 0 {
			return fmt.Errorf("poll-interval must be positive, got %s", o.PollInterval)
		}
	default:
		return fmt.Errorf("unknown source %q (use %s or %s)", o.Source, SourceWatch, SourcePoll)
	}
	return nil
}

// Resolver builds the desired-record resolver for these options.
func (o *Options) Resolver() *resolver.Resolver {
	return &resolver.Resolver{
		AnnotationDomain: o.AnnotationDomain,
		Prefix:           o.Prefix,
		Zone:             o.Zone,
		OwnerPrefix:      o.ManagedBy,
		Legacy:           o.LegacyAnnotations,
		LegacyOwner:      o.LegacyOwner,
	}
}

// ProviderConfig returns the provider settings: the provider file when one is
// configured, completed with the zone, subscription and resource group flags.
func (o *Options) ProviderConfig() (*ProviderConfig, error) {
	cfg := &ProviderConfig{Provider: o.Provider}
	if o.ProviderConfigPath != "" {
		fileCfg, err := LoadProviderConfigFromPath(o.ProviderConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]string{}
	}

	if zone := cfg.Settings[dns.SettingZoneName]; zone != "" && !dns.SameHost(zone, o.Zone) {
		return nil, fmt.Errorf("provider config zone_name %q does not match private-dns-zone %q", zone, o.Zone)
	}
	cfg.Settings[dns.SettingZoneName] = o.Zone
	setDefault(cfg.Settings, "subscription_id", o.SubscriptionID)
	setDefault(cfg.Settings, "resource_group", o.ResourceGroup)
	return cfg, nil
}

func setDefault(settings map[string]string, key, value string) {
	if settings[key] == "" && value != "" {
		settings[key] = value
	}
}
