// Package memory implements dns.Zone in process memory. It backs local runs
// with --provider=memory and is used as a zone double in tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/lscsde/aks-dns-operator/internal/dns"
)

// ProviderType is the registry name of the in-memory provider.
const ProviderType = "memory"

func init() {
	dns.Register(ProviderType, func(log logr.Logger, settings map[string]string) (dns.Zone, error) {
		name := settings[dns.SettingZoneName]
		if name == "" {
			return nil, fmt.Errorf("memory: missing required setting 'zone_name'")
		}
		return New(name, log), nil
	})
}

type key struct {
	name       string
	recordType dns.RecordType
}

// Zone is a dns.Zone that keeps record sets in a map.
type Zone struct {
	mu      sync.Mutex
	name    string
	records map[key]dns.ExistingRecord
	version int
	writes  int
	log     logr.Logger
}

var _ dns.Zone = &Zone{}

// New creates an empty in-memory zone.
func New(name string, log logr.Logger) *Zone {
	return &Zone{name: name, records: map[key]dns.ExistingRecord{}, log: log}
}

func keyOf(name string, t dns.RecordType) key {
	return key{name: strings.ToLower(name), recordType: t}
}

func (z *Zone) nextETag() string {
	z.version++
	return strconv.Itoa(z.version)
}

// Name returns the zone name.
func (z *Zone) Name() string {
	return z.name
}

// Seed stores a record set as-is, bypassing preconditions. Use it to model
// records created by someone else.
func (z *Zone) Seed(rec dns.ExistingRecord) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if rec.ETag == "" {
		rec.ETag = z.nextETag()
	}
	rec.Targets = slices.Clone(rec.Targets)
	z.records[keyOf(rec.Name, rec.Type)] = rec
}

// Get returns a single record set.
func (z *Zone) Get(name string, t dns.RecordType) (dns.ExistingRecord, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	rec, ok := z.records[keyOf(name, t)]
	rec.Targets = slices.Clone(rec.Targets)
	return rec, ok
}

// Writes returns how many CreateOrUpdate and Delete calls changed the zone.
func (z *Zone) Writes() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.writes
}

// List returns a copy of all record sets ordered by name and type.
func (z *Zone) List(_ context.Context) ([]dns.ExistingRecord, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	out := make([]dns.ExistingRecord, 0, len(z.records))
	for _, rec := range z.records {
		rec.Targets = slices.Clone(rec.Targets)
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b dns.ExistingRecord) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Type, b.Type))
	})
	return out, nil
}

func (z *Zone) check(k key, pre dns.Precondition) error {
	cur, exists := z.records[k]
	if pre.IfNoneMatch && exists {
		return fmt.Errorf("memory: %s %s already exists: %w", k.recordType, k.name, dns.ErrPreconditionFailed)
	}
	if pre.IfMatch != "" && (!exists || cur.ETag != pre.IfMatch) {
		return fmt.Errorf("memory: %s %s changed since etag %s: %w", k.recordType, k.name, pre.IfMatch, dns.ErrPreconditionFailed)
	}
	return nil
}

// CreateOrUpdate replaces the record set keyed by name and type.
func (z *Zone) CreateOrUpdate(_ context.Context, record dns.Record, pre dns.Precondition) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	k := keyOf(record.Name, record.Type)
	if err := z.check(k, pre); err != nil {
		return err
	}
	z.records[k] = dns.ExistingRecord{
		Name:    record.Name,
		Type:    record.Type,
		Targets: slices.Clone(record.Targets),
		Owner:   record.Owner,
		ETag:    z.nextETag(),
	}
	z.writes++
	z.log.V(1).Info("stored record set", "name", record.Name, "type", record.Type, "targets", record.Targets)
	return nil
}

// Delete removes a record set. Deleting a missing record set is not an error.
func (z *Zone) Delete(_ context.Context, name string, t dns.RecordType, pre dns.Precondition) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	k := keyOf(name, t)
	if err := z.check(k, pre); err != nil {
		return err
	}
	if _, ok := z.records[k]; !ok {
		return nil
	}
	delete(z.records, k)
	z.writes++
	z.log.V(1).Info("deleted record set", "name", name, "type", t)
	return nil
}
