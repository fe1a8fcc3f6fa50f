package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fieldMeta is the reflective description of one struct field, built once
// when a StructDescriptor is constructed and never recomputed per instance.
type fieldMeta struct {
	FieldDescriptor
	structFieldName string
	jsonKey         string
}

// StructDescriptor is a reflection-driven TypeDescriptor for a Go struct
// type T. Field classification is read from a `sync:"..."` struct tag once
// at construction time; per-instance operations only ever reflect over the
// metadata table this builds, never re-derive it - the explicit capability
// methods the registry's interface requires are satisfied generically
// instead of being hand-written once per entity.
//
// Tag grammar: `sync:"pk"`, `sync:"scalar"`, `sync:"scalar,unique"`,
// `sync:"datetime"`, `sync:"decimal"`, `sync:"uuid"`, `sync:"fk=<entity>"`,
// `sync:"m2m=<entity>"`, `sync:"file"`, `sync:"ignore"`.
type StructDescriptor struct {
	name    string
	pkKind  PKKind
	typ     reflect.Type
	pkField fieldMeta
	fields  []fieldMeta

	mu     sync.RWMutex
	byPK   map[string]any
	byURL  func(filename string) string

	// exists is wired by Registry.WireForeignKeys once every entity type
	// has been registered, so ResolveFK can tell a genuinely dangling
	// foreign key apart from one that simply hasn't been wired yet.
	exists func(entity, pk string) bool
}

// SetExistenceResolver wires the callback ResolveFK uses to check whether a
// foreign-reference field's target row exists in its own entity's store.
// Called once by Registry.WireForeignKeys after every type is registered.
func (d *StructDescriptor) SetExistenceResolver(f func(entity, pk string) bool) {
	d.exists = f
}

// Describe builds a StructDescriptor for struct type T by reading its
// `sync` tags. T must be a struct type (not a pointer).
func Describe[T any](name string, pkKind PKKind, fileURL func(filename string) string) *StructDescriptor {
	var zero T

	t := reflect.TypeOf(zero)

	d := &StructDescriptor{
		name:   name,
		pkKind: pkKind,
		typ:    t,
		byPK:   make(map[string]any),
		byURL:  fileURL,
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)

		tag, ok := sf.Tag.Lookup("sync")
		if !ok {
			continue
		}

		parts := strings.Split(tag, ",")
		kind := parts[0]

		unique := false

		for _, p := range parts[1:] {
			if p == "unique" {
				unique = true
			}
		}

		jsonKey := strings.SplitN(sf.Tag.Get("json"), ",", 2)[0]
		if jsonKey == "" {
			jsonKey = strings.ToLower(sf.Name)
		}

		fm := fieldMeta{structFieldName: sf.Name, jsonKey: jsonKey}
		fm.Name = jsonKey
		fm.Unique = unique

		switch {
		case kind == "pk":
			fm.Kind = FieldScalar
			d.pkField = fm

			continue
		case kind == "scalar":
			fm.Kind = FieldScalar
		case kind == "datetime":
			fm.Kind = FieldDateTime
		case kind == "decimal":
			fm.Kind = FieldDecimal
		case kind == "uuid":
			fm.Kind = FieldUUID
		case kind == "file":
			fm.Kind = FieldEmbeddedFile
		case kind == "ignore":
			fm.Kind = FieldIgnored
		case strings.HasPrefix(kind, "fk="):
			fm.Kind = FieldForeignRef
			fm.RefEntity = strings.TrimPrefix(kind, "fk=")
		case strings.HasPrefix(kind, "m2m="):
			fm.Kind = FieldManyToMany
			fm.RefEntity = strings.TrimPrefix(kind, "m2m=")
		default:
			panic(fmt.Sprintf("registry: unknown sync tag %q on %s.%s", tag, name, sf.Name))
		}

		d.fields = append(d.fields, fm)
	}

	return d
}

func (d *StructDescriptor) Name() string            { return d.name }
func (d *StructDescriptor) PKKind() PKKind           { return d.pkKind }
func (d *StructDescriptor) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.FieldDescriptor
	}

	return out
}

// New constructs a zero instance of T with its primary key field set to pk.
func (d *StructDescriptor) New(pk string) any {
	v := reflect.New(d.typ)
	d.setPK(v, pk)

	return v.Interface()
}

func (d *StructDescriptor) PKOf(instance any) string {
	v := reflect.ValueOf(instance)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	fv := v.FieldByName(d.pkField.structFieldName)

	return d.scalarToString(fv)
}

func (d *StructDescriptor) setPK(v reflect.Value, pk string) {
	fv := v.Elem().FieldByName(d.pkField.structFieldName)
	d.setScalar(fv, pk)
}

// LoadByPK returns the in-memory row for pk, or (nil, nil) if absent.
func (d *StructDescriptor) LoadByPK(ctx context.Context, pk string) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if v, ok := d.byPK[pk]; ok {
		return clone(v), nil
	}

	return nil, nil
}

// LookupByUnique scans the in-memory store for exactly one row whose field
// matches value. More than one match is an ambiguous lookup and returns an
// error instead of an arbitrary pick, per the registry's stricter fallback
// rule.
func (d *StructDescriptor) LookupByUnique(ctx context.Context, field string, value any) (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var fm *fieldMeta

	for i := range d.fields {
		if d.fields[i].Name == field && d.fields[i].Unique {
			fm = &d.fields[i]
			break
		}
	}

	if fm == nil {
		return nil, fmt.Errorf("field %q is not a unique field of %s", field, d.name)
	}

	want := fmt.Sprintf("%v", value)

	var matches []any

	for _, row := range d.byPK {
		v := reflect.ValueOf(row).Elem()
		fv := v.FieldByName(fm.structFieldName)

		if d.scalarToString(fv) == want {
			matches = append(matches, row)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return clone(matches[0]), nil
	default:
		return nil, fmt.Errorf("ambiguous unique match on %s.%s=%v: %d rows", d.name, field, value, len(matches))
	}
}

// Persist upserts instance into the in-memory store, keyed by primary key.
func (d *StructDescriptor) Persist(ctx context.Context, instance any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pk := d.PKOf(instance)
	d.byPK[pk] = clone(instance)

	return nil
}

// DeleteByPK removes the row identified by pk, if present.
func (d *StructDescriptor) DeleteByPK(ctx context.Context, pk string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.byPK, pk)

	return nil
}

// ApplyScalars writes scalar/date-time/decimal/UUID/file values from data
// onto instance. Foreign-reference and many-to-many keys present in data are
// ignored here; the caller defers those to ResolveFK/SetM2M.
func (d *StructDescriptor) ApplyScalars(instance any, data map[string]any) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr {
		return fmt.Errorf("registry: ApplyScalars requires a pointer instance")
	}

	v = v.Elem()

	for _, fm := range d.fields {
		raw, present := data[fm.Name]

		fv := v.FieldByName(fm.structFieldName)

		switch fm.Kind {
		case FieldScalar, FieldUUID:
			if present {
				d.setScalar(fv, fmt.Sprintf("%v", raw))
			}
		case FieldDateTime:
			if present {
				t, err := parseISO8601(fmt.Sprintf("%v", raw))
				if err != nil {
					return fmt.Errorf("field %s: %w", fm.Name, err)
				}

				fv.Set(reflect.ValueOf(t))
			}
		case FieldDecimal:
			if present {
				dec, err := decimal.NewFromString(fmt.Sprintf("%v", raw))
				if err != nil {
					return fmt.Errorf("field %s: %w", fm.Name, err)
				}

				fv.Set(reflect.ValueOf(dec))
			}
		case FieldEmbeddedFile:
			if err := d.applyFile(fv, raw, present); err != nil {
				return fmt.Errorf("field %s: %w", fm.Name, err)
			}
		}
	}

	return nil
}

func (d *StructDescriptor) applyFile(fv reflect.Value, raw any, present bool) error {
	if !present || raw == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("expected file object, got %T", raw)
	}

	filename, _ := m["filename"].(string)
	contentB64, _ := m["content"].(string)

	content, err := base64.StdEncoding.DecodeString(contentB64)
	if err != nil {
		return fmt.Errorf("invalid base64 content: %w", err)
	}

	fv.Set(reflect.ValueOf(File{Filename: filename, Content: content}))

	return nil
}

// ResolveFK looks up the target descriptor's row by primary key and stores
// the foreign key on the owning instance's "<Field>ID" field (int, UUID or
// string).
// A missing target returns found=false and no error - the caller treats that
// as "skip silently, a later event will resolve it".
func (d *StructDescriptor) ResolveFK(ctx context.Context, instance any, field string, targetPK string) (bool, error) {
	v := reflect.ValueOf(instance).Elem()

	var fm *fieldMeta

	for i := range d.fields {
		if d.fields[i].Name == field {
			fm = &d.fields[i]
			break
		}
	}

	if fm == nil {
		return false, fmt.Errorf("no such foreign-reference field %q on %s", field, d.name)
	}

	if d.exists != nil && !d.exists(fm.RefEntity, targetPK) {
		return false, nil
	}

	idFieldName := fm.structFieldName + "ID"

	idField := v.FieldByName(idFieldName)
	if !idField.IsValid() {
		return false, fmt.Errorf("missing backing field %s for foreign reference %s", idFieldName, field)
	}

	d.setScalar(idField, targetPK)

	return true, nil
}

// SetM2M is a no-op placeholder: neither reference fixture declares a
// many-to-many field, so there is nothing to resolve against this in-memory
// store. It does nothing for any StructDescriptor, including one whose type
// declares an m2m field; no membership is recorded.
func (d *StructDescriptor) SetM2M(ctx context.Context, instance any, field string, targetPKs []string) error {
	return nil
}

// Snapshot serializes instance into a JSON-ready map following §4.A rules.
func (d *StructDescriptor) Snapshot(ctx context.Context, instance any, dir Direction) (map[string]any, error) {
	v := reflect.ValueOf(instance)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	out := map[string]any{d.pkField.Name: d.scalarToString(v.FieldByName(d.pkField.structFieldName))}

	for _, fm := range d.fields {
		fv := v.FieldByName(fm.structFieldName)

		switch fm.Kind {
		case FieldIgnored, FieldManyToMany:
			continue
		case FieldForeignRef:
			idField := v.FieldByName(fm.structFieldName + "ID")
			out[fm.Name+"_id"] = d.scalarToString(idField)
		case FieldDateTime:
			t, _ := fv.Interface().(time.Time)
			out[fm.Name] = t.UTC().Format(time.RFC3339)
		case FieldDecimal:
			dec, _ := fv.Interface().(decimal.Decimal)
			out[fm.Name] = dec.String()
		case FieldUUID:
			out[fm.Name] = d.scalarToString(fv)
		case FieldEmbeddedFile:
			f, _ := fv.Interface().(File)
			if f.Filename == "" {
				out[fm.Name] = nil
				continue
			}

			if dir == DirectionPull && d.byURL != nil {
				out[fm.Name] = d.byURL(f.Filename)
			} else {
				out[fm.Name] = map[string]any{
					"filename": f.Filename,
					"content":  base64.StdEncoding.EncodeToString(f.Content),
				}
			}
		default:
			out[fm.Name] = fv.Interface()
		}
	}

	return out, nil
}

func (d *StructDescriptor) scalarToString(fv reflect.Value) string {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(fv.Int(), 10)
	default:
		if u, ok := fv.Interface().(uuid.UUID); ok {
			return u.String()
		}

		return fmt.Sprintf("%v", fv.Interface())
	}
}

func (d *StructDescriptor) setScalar(fv reflect.Value, s string) {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(s, 10, 64)
		fv.SetInt(n)
	default:
		if fv.Type() == reflect.TypeOf(uuid.UUID{}) {
			u, _ := uuid.Parse(s)
			fv.Set(reflect.ValueOf(u))

			return
		}

		fv.SetString(s)
	}
}

// parseISO8601 parses a timestamp, rewriting a trailing "Z" to "+00:00" per
// §4.E's field-classification rule.
func parseISO8601(s string) (time.Time, error) {
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	return time.Parse(time.RFC3339, s)
}

// clone deep-copies a pointer-to-struct instance so the in-memory store
// never aliases mutable state with a caller's reference.
func clone(instance any) any {
	v := reflect.ValueOf(instance)
	nv := reflect.New(v.Elem().Type())
	nv.Elem().Set(v.Elem())

	return nv.Interface()
}
