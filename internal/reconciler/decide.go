// Package reconciler decides how a desired record relates to the zone and
// applies that decision.
package reconciler

import (
	"errors"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/lscsde/aks-dns-operator/internal/dns"
)

// Action is the outcome of a reconciliation decision.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace" // delete our record of the other type, then create
	ActionSkip    Action = "skip"
	ActionReject  Action = "reject"
	ActionInvalid Action = "invalid" // desired record failed validation
)

// Reason explains an Action.
type Reason string

const (
	ReasonNotFound       Reason = "not-found"
	ReasonUnchanged      Reason = "unchanged"
	ReasonTargetsChanged Reason = "targets-changed"
	ReasonTypeChanged    Reason = "type-changed"
	ReasonUnmanaged      Reason = "unmanaged"
	ReasonOwnerConflict  Reason = "owner-conflict"
	ReasonTypeConflict   Reason = "type-conflict"
	ReasonValidation     Reason = "validation"
)

var (
	// ErrUnmanaged is reported when the name is held by a record without an owner tag.
	ErrUnmanaged = errors.New("record exists without an owner tag")
	// ErrOwnerConflict is reported when the name is held by another owner.
	ErrOwnerConflict = errors.New("record is owned by another workload")
	// ErrTypeConflict is reported when the name is held by a record of another type.
	ErrTypeConflict = errors.New("record of another type exists")
)

// Decision is the result of comparing a desired record with the zone.
type Decision struct {
	Action     Action
	Reason     Reason
	Found      bool // some record set already uses the name
	OwnerMatch bool
	Equal      bool
	// Existing is the record set the decision was made against, nil when
	// nothing uses the name.
	Existing *dns.ExistingRecord
}

// Err returns the conflict behind a REJECT, nil otherwise.
func (d Decision) Err() error {
	if d.Action != ActionReject {
		return nil
	}
	switch d.Reason {
	case ReasonUnmanaged:
		return ErrUnmanaged
	case ReasonOwnerConflict:
		return ErrOwnerConflict
	case ReasonTypeConflict:
		return ErrTypeConflict
	}
	return nil
}

// Decide compares desired against a full zone listing. Rules, in order:
//  1. nothing uses the name: create
//  2. a record of a conflicting type uses the name: replace it when it is
//     ours and the only record there, otherwise reject
//  3. the record has no owner tag: reject
//  4. the record has another owner: reject
//  5. same targets: skip, otherwise update
func Decide(desired dns.Record, listing []dns.ExistingRecord) Decision {
	var (
		same      *dns.ExistingRecord
		conflicts []*dns.ExistingRecord
	)
	for i := range listing {
		rec := &listing[i]
		if !strings.EqualFold(rec.Name, desired.Name) {
			continue
		}
		switch {
		case rec.Type == desired.Type:
			same = rec
		case typesConflict(desired.Type, rec.Type):
			conflicts = append(conflicts, rec)
		}
	}

	if same == nil && len(conflicts) == 0 {
		return Decision{Action: ActionCreate, Reason: ReasonNotFound}
	}

	if len(conflicts) > 0 {
		other := conflicts[0]
		d := Decision{
			Found:      true,
			OwnerMatch: other.Owner == desired.Owner,
			Existing:   other,
		}
		if same == nil && len(conflicts) == 1 && d.OwnerMatch {
			d.Action, d.Reason = ActionReplace, ReasonTypeChanged
			return d
		}
		d.Action, d.Reason = ActionReject, ReasonTypeConflict
		return d
	}

	d := Decision{Found: true, Existing: same}
	switch {
	case same.Owner == "":
		d.Action, d.Reason = ActionReject, ReasonUnmanaged
	case same.Owner != desired.Owner:
		d.Action, d.Reason = ActionReject, ReasonOwnerConflict
	default:
		d.OwnerMatch = true
		d.Equal = TargetsEqual(desired.Type, desired.Targets, same.Targets)
		if d.Equal {
			d.Action, d.Reason = ActionSkip, ReasonUnchanged
		} else {
			d.Action, d.Reason = ActionUpdate, ReasonTargetsChanged
		}
	}
	return d
}

// typesConflict reports whether a record of type other prevents writing
// desired under the same name. A CNAME cannot share its name with anything.
func typesConflict(desired, other dns.RecordType) bool {
	return desired == dns.TypeCNAME || other == dns.TypeCNAME
}

// TargetsEqual compares A targets as sets and CNAME targets as host names.
func TargetsEqual(t dns.RecordType, desired, existing []string) bool {
	switch t {
	case dns.TypeA:
		return sets.New(desired...).Equal(sets.New(existing...))
	case dns.TypeCNAME:
		return len(desired) == 1 && len(existing) == 1 && dns.SameHost(desired[0], existing[0])
	default:
		return false
	}
}
