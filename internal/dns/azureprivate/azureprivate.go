// Package azureprivate implements dns.Zone on top of an Azure Private DNS zone.
package azureprivate

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/privatedns/armprivatedns"
	"github.com/go-logr/logr"
	"k8s.io/utils/ptr"

	"github.com/lscsde/aks-dns-operator/internal/dns"
)

// ProviderType is the registry name of the Azure Private DNS provider.
const ProviderType = "azure-private-dns"

const (
	defaultMaxRetries    = 3
	defaultMaxRetryDelay = math.MaxInt64
	defaultRetryDelay    = 5 * time.Second
)

func init() {
	dns.Register(ProviderType, func(log logr.Logger, settings map[string]string) (dns.Zone, error) {
		return New(log, settings)
	})
}

// recordSetsClient is the subset of armprivatedns.RecordSetsClient used here.
type recordSetsClient interface {
	NewListPager(resourceGroupName, privateZoneName string, options *armprivatedns.RecordSetsClientListOptions) *runtime.Pager[armprivatedns.RecordSetsClientListResponse]
	CreateOrUpdate(ctx context.Context, resourceGroupName, privateZoneName string, recordType armprivatedns.RecordType, relativeRecordSetName string, parameters armprivatedns.RecordSet, options *armprivatedns.RecordSetsClientCreateOrUpdateOptions) (armprivatedns.RecordSetsClientCreateOrUpdateResponse, error)
	Delete(ctx context.Context, resourceGroupName, privateZoneName string, recordType armprivatedns.RecordType, relativeRecordSetName string, options *armprivatedns.RecordSetsClientDeleteOptions) (armprivatedns.RecordSetsClientDeleteResponse, error)
}

var _ recordSetsClient = &armprivatedns.RecordSetsClient{}

// Zone implements dns.Zone for one Azure Private DNS zone.
type Zone struct {
	log           logr.Logger
	resourceGroup string
	zoneName      string
	records       recordSetsClient
}

var _ dns.Zone = &Zone{}

// New creates an Azure Private DNS zone client from the given settings map.
// Required settings: subscription_id, resource_group, zone_name.
// Optional settings: tenant_id, client_id, client_secret (service principal;
// otherwise DefaultAzureCredential is used) and cloud (AzurePublic, AzureChina,
// AzureGovernment).
func New(log logr.Logger, settings map[string]string) (*Zone, error) {
	for _, k := range []string{"subscription_id", "resource_group", dns.SettingZoneName} {
		if settings[k] == "" {
			return nil, fmt.Errorf("azure-private-dns: missing required setting '%s'", k)
		}
	}

	cred, err := newCredential(settings)
	if err != nil {
		return nil, err
	}
	opts, err := clientOptions(settings["cloud"])
	if err != nil {
		return nil, err
	}
	return NewFromCredential(log, cred, opts, settings["subscription_id"], settings["resource_group"], settings[dns.SettingZoneName])
}

// NewFromCredential creates a zone client with an explicit credential and client options.
func NewFromCredential(log logr.Logger, cred azcore.TokenCredential, opts *arm.ClientOptions, subscriptionID, resourceGroup, zoneName string) (*Zone, error) {
	client, err := armprivatedns.NewRecordSetsClient(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("azure-private-dns: create record sets client: %w", err)
	}
	return newZone(log, client, resourceGroup, zoneName), nil
}

func newZone(log logr.Logger, client recordSetsClient, resourceGroup, zoneName string) *Zone {
	return &Zone{
		log:           log.WithValues("resourceGroup", resourceGroup, "zone", zoneName),
		resourceGroup: resourceGroup,
		zoneName:      zoneName,
		records:       client,
	}
}

func newCredential(settings map[string]string) (azcore.TokenCredential, error) {
	tenantID, clientID, secret := settings["tenant_id"], settings["client_id"], settings["client_secret"]
	if clientID != "" && secret != "" {
		if tenantID == "" {
			return nil, fmt.Errorf("azure-private-dns: setting 'tenant_id' is required with 'client_secret'")
		}
		cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, secret, nil)
		if err != nil {
			return nil, fmt.Errorf("azure-private-dns: client secret credential: %w", err)
		}
		return cred, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure-private-dns: default credential: %w", err)
	}
	return cred, nil
}

func cloudConfiguration(name string) (cloud.Configuration, error) {
	switch name {
	case "", "AzurePublic":
		return cloud.AzurePublic, nil
	case "AzureChina":
		return cloud.AzureChina, nil
	case "AzureGovernment":
		return cloud.AzureGovernment, nil
	default:
		return cloud.Configuration{}, fmt.Errorf("azure-private-dns: unknown cloud configuration name %q", name)
	}
}

func clientOptions(cloudName string) (*arm.ClientOptions, error) {
	cloudConf, err := cloudConfiguration(cloudName)
	if err != nil {
		return nil, err
	}
	return &arm.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Cloud: cloudConf,
			Retry: policy.RetryOptions{
				RetryDelay:    defaultRetryDelay,
				MaxRetryDelay: defaultMaxRetryDelay,
				MaxRetries:    defaultMaxRetries,
				StatusCodes: []int{
					http.StatusRequestTimeout,      // 408
					http.StatusTooManyRequests,     // 429
					http.StatusInternalServerError, // 500
					http.StatusBadGateway,          // 502
					http.StatusServiceUnavailable,  // 503
					http.StatusGatewayTimeout,      // 504
				},
			},
			Transport: &http.Client{Transport: transport()},
		},
	}, nil
}

func transport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Name returns the zone name.
func (z *Zone) Name() string {
	return z.zoneName
}

// List returns every record set in the zone, following all pages.
func (z *Zone) List(ctx context.Context) ([]dns.ExistingRecord, error) {
	var (
		out   []dns.ExistingRecord
		pages int
	)
	pager := z.records.NewListPager(z.resourceGroup, z.zoneName, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure-private-dns: list record sets (page %d): %w", pages+1, err)
		}
		pages++
		for _, rs := range page.Value {
			if rs == nil {
				continue
			}
			out = append(out, fromRecordSet(rs))
		}
	}
	z.log.V(1).Info("listed record sets", "count", len(out), "pages", pages)
	return out, nil
}

// CreateOrUpdate writes the whole record set, replacing targets and metadata.
func (z *Zone) CreateOrUpdate(ctx context.Context, record dns.Record, pre dns.Precondition) error {
	recordType, err := toAzureRecordType(record.Type)
	if err != nil {
		return err
	}

	opts := &armprivatedns.RecordSetsClientCreateOrUpdateOptions{}
	if pre.IfMatch != "" {
		opts.IfMatch = ptr.To(pre.IfMatch)
	}
	if pre.IfNoneMatch {
		opts.IfNoneMatch = ptr.To("*")
	}

	z.log.Info("writing record set", "name", record.Name, "type", record.Type, "targets", record.Targets, "owner", record.Owner)
	_, err = z.records.CreateOrUpdate(ctx, z.resourceGroup, z.zoneName, recordType, record.Name, toRecordSet(record), opts)
	if err != nil {
		return wrapError(fmt.Sprintf("create or update %s %s", record.Type, record.Name), err)
	}
	return nil
}

// Delete removes a record set.
func (z *Zone) Delete(ctx context.Context, name string, t dns.RecordType, pre dns.Precondition) error {
	recordType, err := toAzureRecordType(t)
	if err != nil {
		return err
	}

	opts := &armprivatedns.RecordSetsClientDeleteOptions{}
	if pre.IfMatch != "" {
		opts.IfMatch = ptr.To(pre.IfMatch)
	}

	z.log.Info("deleting record set", "name", name, "type", t)
	if _, err := z.records.Delete(ctx, z.resourceGroup, z.zoneName, recordType, name, opts); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return wrapError(fmt.Sprintf("delete %s %s", t, name), err)
	}
	return nil
}

func wrapError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusPreconditionFailed {
		return fmt.Errorf("azure-private-dns: %s: %w: %w", op, dns.ErrPreconditionFailed, err)
	}
	return fmt.Errorf("azure-private-dns: %s: %w", op, err)
}

func toAzureRecordType(t dns.RecordType) (armprivatedns.RecordType, error) {
	switch t {
	case dns.TypeA:
		return armprivatedns.RecordTypeA, nil
	case dns.TypeCNAME:
		return armprivatedns.RecordTypeCNAME, nil
	default:
		return "", fmt.Errorf("azure-private-dns: unsupported record type %q", t)
	}
}

// recordTypeOf maps "Microsoft.Network/privateDnsZones/A" to "A".
func recordTypeOf(rs *armprivatedns.RecordSet) dns.RecordType {
	t := ptr.Deref(rs.Type, "")
	if i := strings.LastIndex(t, "/"); i >= 0 {
		t = t[i+1:]
	}
	return dns.RecordType(strings.ToUpper(t))
}

func fromRecordSet(rs *armprivatedns.RecordSet) dns.ExistingRecord {
	rec := dns.ExistingRecord{
		Name: ptr.Deref(rs.Name, ""),
		Type: recordTypeOf(rs),
		ETag: ptr.Deref(rs.Etag, ""),
	}
	props := rs.Properties
	if props == nil {
		return rec
	}

	for k, v := range props.Metadata {
		// Metadata keys are matched case-insensitively; ARM may return them lower-cased.
		if strings.EqualFold(k, dns.OwnerMetadataKey) {
			rec.Owner = ptr.Deref(v, "")
		}
	}

	switch rec.Type {
	case dns.TypeA:
		for _, a := range props.ARecords {
			if a != nil && a.IPv4Address != nil {
				rec.Targets = append(rec.Targets, *a.IPv4Address)
			}
		}
	case dns.TypeCNAME:
		if props.CnameRecord != nil && props.CnameRecord.Cname != nil {
			rec.Targets = []string{*props.CnameRecord.Cname}
		}
	}
	return rec
}

func toRecordSet(record dns.Record) armprivatedns.RecordSet {
	props := &armprivatedns.RecordSetProperties{
		TTL: ptr.To(record.TTL),
		Metadata: map[string]*string{
			dns.OwnerMetadataKey: ptr.To(record.Owner),
		},
	}
	switch record.Type {
	case dns.TypeA:
		props.ARecords = make([]*armprivatedns.ARecord, 0, len(record.Targets))
		for _, ip := range record.Targets {
			props.ARecords = append(props.ARecords, &armprivatedns.ARecord{IPv4Address: ptr.To(ip)})
		}
	case dns.TypeCNAME:
		props.CnameRecord = &armprivatedns.CnameRecord{Cname: ptr.To(record.Targets[0])}
	}
	return armprivatedns.RecordSet{Properties: props}
}
