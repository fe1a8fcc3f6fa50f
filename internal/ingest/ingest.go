// Package ingest implements the Ingestion Pipeline: pre-pass validation of
// an inbound batch, then a two-pass apply - scalars first, foreign keys and
// many-to-many membership second - so that a batch containing a child row
// before its parent still converges once the parent's own change applies.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	"github.com/lerianstudio/midaz-sync/internal/capture"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/google/uuid"
)

// ChangeOutcome records the per-change result of a batch, so a partial
// failure never silently drops a sibling change.
type ChangeOutcome struct {
	EventUUID uuid.UUID
	Err       error
}

// Processor drives the two-pass apply over one inbound batch.
type Processor struct {
	registry *registry.Registry
	events   ledgerstore.EventRepository
	acks     ledgerstore.AckRepository
	stations ledgerstore.StationRepository
}

func NewProcessor(reg *registry.Registry, events ledgerstore.EventRepository, acks ledgerstore.AckRepository, stations ledgerstore.StationRepository) *Processor {
	return &Processor{registry: reg, events: events, acks: acks, stations: stations}
}

// pending tracks a validated change through both passes.
type pending struct {
	change     domain.InboundChange
	descriptor registry.TypeDescriptor
	data       map[string]any
	instance   any
}

// ApplyBatch validates, records and applies every change in changes,
// sourced from sourceStationID. Each change is isolated: one change's
// failure is reported in the returned slice without blocking its siblings.
func (p *Processor) ApplyBatch(ctx context.Context, sourceStationID int64, changes []domain.InboundChange) []ChangeOutcome {
	ctx = capture.WithSyncOperation(ctx)
	logger := common.NewLoggerFromContext(ctx)

	outcomes := make([]ChangeOutcome, 0, len(changes))
	accepted := make([]pending, 0, len(changes))

	for _, change := range changes {
		descriptor, data, err := p.validate(change)
		if err != nil {
			outcomes = append(outcomes, ChangeOutcome{EventUUID: change.EventUUID, Err: err})
			continue
		}

		if err := p.recordEvent(ctx, sourceStationID, change); err != nil {
			logger.Errorf("ingest: failed to record event %s: %v", change.EventUUID, err)
			outcomes = append(outcomes, ChangeOutcome{EventUUID: change.EventUUID, Err: err})

			continue
		}

		accepted = append(accepted, pending{change: change, descriptor: descriptor, data: data})
	}

	// First pass: persist base objects (scalar/datetime/decimal/uuid/file
	// fields only). Foreign-reference and many-to-many fields are left for
	// the second pass so a child row can land before its parent exists.
	for i := range accepted {
		acc := &accepted[i]

		if acc.change.Action == domain.ActionDeleted {
			if err := acc.descriptor.DeleteByPK(ctx, acc.change.ObjectID); err != nil {
				outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID, Err: err})
			} else {
				outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID})
			}

			acc.instance = nil

			continue
		}

		instance, err := p.loadOrCreate(ctx, acc.descriptor, acc.change.ObjectID, acc.data)
		if err != nil {
			outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID, Err: err})
			continue
		}

		if err := acc.descriptor.ApplyScalars(instance, acc.data); err != nil {
			outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID, Err: err})
			continue
		}

		if err := acc.descriptor.Persist(ctx, instance); err != nil {
			outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID, Err: err})
			continue
		}

		acc.instance = instance
	}

	// Second pass: resolve foreign-reference and many-to-many fields. A
	// target that still doesn't exist is skipped silently - a later event
	// (the parent's own create) will complete the convergence.
	for i := range accepted {
		acc := &accepted[i]
		if acc.instance == nil {
			continue
		}

		for _, fd := range acc.descriptor.Fields() {
			raw, present := acc.data[fd.Name]
			if !present && fd.Kind == registry.FieldForeignRef {
				raw, present = acc.data[fd.Name+"_id"]
			}

			if !present || raw == nil {
				continue
			}

			switch fd.Kind {
			case registry.FieldForeignRef:
				targetPK := fmt.Sprintf("%v", raw)

				if _, err := acc.descriptor.ResolveFK(ctx, acc.instance, fd.Name, targetPK); err != nil {
					logger.Errorf("ingest: resolve_fk %s.%s: %v", acc.descriptor.Name(), fd.Name, err)
					continue
				}
			case registry.FieldManyToMany:
				var pks []string

				items, _ := raw.([]any)
				for _, item := range items {
					pks = append(pks, fmt.Sprintf("%v", item))
				}

				if err := acc.descriptor.SetM2M(ctx, acc.instance, fd.Name, pks); err != nil {
					logger.Errorf("ingest: set_m2m %s.%s: %v", acc.descriptor.Name(), fd.Name, err)
					continue
				}
			default:
				continue
			}
		}

		if err := acc.descriptor.Persist(ctx, acc.instance); err != nil {
			outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID, Err: err})
			continue
		}

		outcomes = append(outcomes, ChangeOutcome{EventUUID: acc.change.EventUUID})
	}

	return outcomes
}

// loadOrCreate resolves an existing instance in the order the ingestion
// pipeline's invariant requires: by primary key first, then by any unique
// scalar field present in the payload, finally falling back to a fresh
// instance carrying the incoming primary key.
func (p *Processor) loadOrCreate(ctx context.Context, d registry.TypeDescriptor, objectID string, data map[string]any) (any, error) {
	existing, err := d.LoadByPK(ctx, objectID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return existing, nil
	}

	for _, fd := range d.Fields() {
		if !fd.Unique {
			continue
		}

		value, present := data[fd.Name]
		if !present || value == nil {
			continue
		}

		match, err := d.LookupByUnique(ctx, fd.Name, value)
		if err != nil {
			return nil, common.ValidateBusinessError(cn.ErrAmbiguousUniqueMatch, d.Name(), fd.Name)
		}

		if match != nil {
			return match, nil
		}
	}

	return d.New(objectID), nil
}

// validate implements the pre-pass: the model tag must resolve, the action
// must be one of C/U/D, object_id must match the entity's primary-key kind,
// and data_payload must decode as a JSON object.
func (p *Processor) validate(change domain.InboundChange) (registry.TypeDescriptor, map[string]any, error) {
	return ValidatePrePass(p.registry, change)
}

// ValidatePrePass runs the §4.E pre-pass against one change: the model tag
// must resolve against reg, the action must be one of C/U/D, object_id must
// match the entity's primary-key kind, and data_payload must decode as a
// JSON object. The Delivery API's Push handler runs this synchronously to
// reject a malformed change with a 400 before it ever reaches the async
// ingestion worker; Processor.ApplyBatch runs the identical check again on
// dequeue.
func ValidatePrePass(reg *registry.Registry, change domain.InboundChange) (registry.TypeDescriptor, map[string]any, error) {
	descriptor, err := reg.Resolve(change.Model)
	if err != nil {
		return nil, nil, common.ValidateBusinessError(cn.ErrUnknownEntityType, "Change", change.Model)
	}

	if !change.Action.IsValid() {
		return nil, nil, common.ValidateBusinessError(cn.ErrInvalidAction, "Change")
	}

	if !validObjectID(descriptor.PKKind(), change.ObjectID) {
		return nil, nil, common.ValidateBusinessError(cn.ErrInvalidObjectIDKind, "Change", change.ObjectID)
	}

	var data map[string]any
	if err := json.Unmarshal(change.DataPayload, &data); err != nil {
		return nil, nil, common.ValidateBusinessError(cn.ErrMalformedDataPayload, "Change")
	}

	return descriptor, data, nil
}

func validObjectID(kind registry.PKKind, objectID string) bool {
	switch kind {
	case registry.PKUUID:
		return common.IsUUID(objectID)
	default:
		for _, r := range objectID {
			if r < '0' || r > '9' {
				return false
			}
		}

		return len(objectID) > 0
	}
}

// recordEvent writes the Event row for a pushed change and fans it out to
// every known station except the source - the source already has this
// change, having just pushed it. A change whose event_uuid was already
// recorded is a redelivery: the event/fanout step is skipped but the apply
// passes still run, since re-applying the same payload is itself idempotent.
func (p *Processor) recordEvent(ctx context.Context, sourceStationID int64, change domain.InboundChange) error {
	if existing, err := p.events.Find(ctx, change.EventUUID); err == nil && existing != nil {
		return nil
	}

	ev := &domain.Event{
		ID:              change.EventUUID,
		EntityType:      change.Model,
		ObjectID:        change.ObjectID,
		Action:          change.Action,
		Payload:         change.DataPayload,
		SourceStationID: &sourceStationID,
	}

	created, err := p.events.Create(ctx, ev)
	if err != nil {
		return err
	}

	stations, err := p.stations.List(ctx)
	if err != nil {
		return err
	}

	targets := make([]int64, 0, len(stations))

	for _, s := range stations {
		if s.ID != sourceStationID {
			targets = append(targets, s.ID)
		}
	}

	return p.acks.CreateFanout(ctx, created.ID, targets)
}
