// Package registry implements the Entity Registry & Snapshot component: a
// process-wide map from qualified entity name to a type descriptor exposing
// the capability interface the ingestion pipeline and outbound serializer
// drive polymorphism through. Every registered entity supplies a descriptor,
// built once at startup. StructDescriptor, the only implementation here,
// builds its field table from a struct's sync tags and reads and writes
// instances through reflection at runtime.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// PKKind is the primitive kind of an entity's primary key.
type PKKind int

const (
	PKInt PKKind = iota
	PKUUID
)

// FieldKind classifies a field for snapshot/apply purposes.
type FieldKind int

const (
	FieldScalar FieldKind = iota
	FieldDateTime
	FieldDecimal
	FieldUUID
	FieldForeignRef
	FieldManyToMany
	FieldEmbeddedFile
	FieldIgnored
)

// Direction distinguishes outbound serialization contexts: a pushed payload
// embeds file content inline, a pulled payload references files by URL.
type Direction int

const (
	DirectionPush Direction = iota
	DirectionPull
)

// FieldDescriptor describes one field of a registered entity.
type FieldDescriptor struct {
	Name      string
	Kind      FieldKind
	Unique    bool   // eligible for the unique-scalar fallback lookup
	RefEntity string // target qualified name, set for FieldForeignRef/FieldManyToMany
}

// File is the embedded-file field representation used on the wire for
// pushed payloads: inline base64 content under a filename.
type File struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// TypeDescriptor is the capability interface every registered entity type
// implements, per the registry's tagged-variant design: snapshot, apply
// scalars, resolve foreign keys, set many-to-many membership, load by
// primary key, look up by unique field, and delete by primary key.
type TypeDescriptor interface {
	Name() string
	PKKind() PKKind
	Fields() []FieldDescriptor

	// LoadByPK resolves an existing instance by primary key. Returns
	// (nil, nil) if no row exists.
	LoadByPK(ctx context.Context, pk string) (any, error)

	// LookupByUnique resolves an existing instance by a unique scalar
	// field's value. Returns (nil, nil) if no row matches, and an error if
	// more than one row matches (ambiguous).
	LookupByUnique(ctx context.Context, field string, value any) (any, error)

	// New constructs a fresh zero-value instance with the given primary key.
	New(pk string) any

	// Snapshot serializes an instance to an outbound payload per §4.A rules.
	Snapshot(ctx context.Context, instance any, dir Direction) (map[string]any, error)

	// ApplyScalars writes scalar/date-time/decimal/UUID field values from
	// data onto instance, parsing ISO-8601 timestamps and decoding files.
	ApplyScalars(instance any, data map[string]any) error

	// ResolveFK looks up the target of a foreign-reference field by primary
	// key and attaches it to instance. A missing target is not an error -
	// the caller treats that as "skip silently".
	ResolveFK(ctx context.Context, instance any, field string, targetPK string) (found bool, err error)

	// SetM2M replaces a many-to-many field's membership with the targets
	// resolvable from targetPKs; unresolvable targets are dropped.
	SetM2M(ctx context.Context, instance any, field string, targetPKs []string) error

	// Persist writes instance to the entity's store. It does not mark the
	// write itself; the ingestion pipeline calls it under a context marked
	// by capture.WithSyncOperation, so the capture hook does not re-fire.
	Persist(ctx context.Context, instance any) error

	// DeleteByPK removes the row identified by pk, if present.
	DeleteByPK(ctx context.Context, pk string) error

	// PKOf extracts the primary key string from an instance.
	PKOf(instance any) string
}

// Registry is the process-wide, immutable-after-startup map of qualified
// name to descriptor. Only mutations on registered types are captured.
type Registry struct {
	mu    sync.RWMutex
	types map[string]TypeDescriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[string]TypeDescriptor)}
}

// Register adds a descriptor under its own qualified Name. Intended to be
// called during process startup, before the registry is shared across
// goroutines.
func (r *Registry) Register(d TypeDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[d.Name()] = d
}

// Resolve returns the descriptor for a qualified name, or an error if the
// name is absent from the allow-list.
func (r *Registry) Resolve(name string) (TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("unregistered entity type %q", name)
	}

	return d, nil
}

// existenceSettable is implemented by descriptors that support checking a
// foreign-reference target's existence before resolving it. StructDescriptor
// implements this; a hand-written TypeDescriptor is free not to.
type existenceSettable interface {
	SetExistenceResolver(f func(entity, pk string) bool)
}

// WireForeignKeys gives every registered descriptor that supports it a
// resolver closure bound back to this registry, so ResolveFK can tell a
// dangling foreign key (target entity registered, target row absent) apart
// from one that is simply unresolvable and skip it silently rather than
// writing a reference to a row that doesn't exist. Call once, after every
// entity type has been registered.
func (r *Registry) WireForeignKeys() {
	r.mu.RLock()
	types := make([]TypeDescriptor, 0, len(r.types))
	for _, d := range r.types {
		types = append(types, d)
	}
	r.mu.RUnlock()

	for _, d := range types {
		settable, ok := d.(existenceSettable)
		if !ok {
			continue
		}

		settable.SetExistenceResolver(func(entity, pk string) bool {
			target, err := r.Resolve(entity)
			if err != nil {
				return false
			}

			instance, err := target.LoadByPK(context.Background(), pk)

			return err == nil && instance != nil
		})
	}
}

// Names lists every registered qualified name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}

	return names
}
