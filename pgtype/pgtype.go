// Package pgtype maps PostgreSQL type OIDs to binary-format codecs.
//
// A Map holds the codecs for one pool. Reads go through an atomically
// published snapshot and never lock; registration copies the snapshot
// and republishes it, so a Map is safe for concurrent use by many
// connections while a refresh is adding entries.
package pgtype

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PostgreSQL type OIDs for the types with built-in codecs.
const (
	BoolOID        = 16
	ByteaOID       = 17
	QCharOID       = 18
	NameOID        = 19
	Int8OID        = 20
	Int2OID        = 21
	Int4OID        = 23
	TextOID        = 25
	OIDOID         = 26
	JSONOID        = 114
	Float4OID      = 700
	Float8OID      = 701
	UnknownOID     = 705
	BPCharOID      = 1042
	VarcharOID     = 1043
	DateOID        = 1082
	TimestampOID   = 1114
	TimestamptzOID = 1184
	IntervalOID    = 1186
	NumericOID     = 1700
	UUIDOID        = 2950
	JSONBOID       = 3802
)

// InfinityModifier is returned as the decoded value for the special
// infinity values of date and timestamp types.
type InfinityModifier int8

const (
	Infinity         InfinityModifier = 1
	None             InfinityModifier = 0
	NegativeInfinity InfinityModifier = -Infinity
)

func (im InfinityModifier) String() string {
	switch im {
	case None:
		return "none"
	case Infinity:
		return "infinity"
	case NegativeInfinity:
		return "-infinity"
	default:
		return "invalid"
	}
}

// Codec encodes and decodes values of one PostgreSQL type in the
// binary wire format.
type Codec interface {
	// EncodeBinary appends the wire representation of value to buf.
	// value is never nil; NULL is handled by the caller.
	EncodeBinary(value any, buf []byte) ([]byte, error)

	// DecodeBinary parses a wire value. src is never nil.
	DecodeBinary(src []byte) (any, error)
}

// DataType ties a codec to a type's OID and name.
type DataType struct {
	Name  string
	OID   uint32
	Codec Codec
}

// RefreshFunc loads codecs for OIDs the Map does not know, typically
// by querying pg_type over a dedicated connection, and registers what
// it finds.
type RefreshFunc func(ctx context.Context, oids []uint32) error

type snapshot struct {
	byOID  map[uint32]*DataType
	byName map[string]*DataType
}

// Map is a registry of codecs keyed by OID.
type Map struct {
	snap atomic.Pointer[snapshot]

	mu            sync.Mutex // serializes writers
	valueOIDFuncs []func(any) (uint32, bool)
	refresh       RefreshFunc
}

// NewMap returns a Map with codecs for the built-in scalar types
// registered.
func NewMap() *Map {
	m := &Map{}
	m.snap.Store(&snapshot{
		byOID:  make(map[uint32]*DataType),
		byName: make(map[string]*DataType),
	})

	m.RegisterDataType(DataType{Name: "bool", OID: BoolOID, Codec: BoolCodec{}})
	m.RegisterDataType(DataType{Name: "bytea", OID: ByteaOID, Codec: ByteaCodec{}})
	m.RegisterDataType(DataType{Name: "char", OID: QCharOID, Codec: QCharCodec{}})
	m.RegisterDataType(DataType{Name: "name", OID: NameOID, Codec: TextCodec{}})
	m.RegisterDataType(DataType{Name: "int8", OID: Int8OID, Codec: Int8Codec{}})
	m.RegisterDataType(DataType{Name: "int2", OID: Int2OID, Codec: Int2Codec{}})
	m.RegisterDataType(DataType{Name: "int4", OID: Int4OID, Codec: Int4Codec{}})
	m.RegisterDataType(DataType{Name: "text", OID: TextOID, Codec: TextCodec{}})
	m.RegisterDataType(DataType{Name: "oid", OID: OIDOID, Codec: OIDCodec{}})
	m.RegisterDataType(DataType{Name: "json", OID: JSONOID, Codec: JSONCodec{}})
	m.RegisterDataType(DataType{Name: "float4", OID: Float4OID, Codec: Float4Codec{}})
	m.RegisterDataType(DataType{Name: "float8", OID: Float8OID, Codec: Float8Codec{}})
	m.RegisterDataType(DataType{Name: "unknown", OID: UnknownOID, Codec: TextCodec{}})
	m.RegisterDataType(DataType{Name: "bpchar", OID: BPCharOID, Codec: TextCodec{}})
	m.RegisterDataType(DataType{Name: "varchar", OID: VarcharOID, Codec: TextCodec{}})
	m.RegisterDataType(DataType{Name: "date", OID: DateOID, Codec: DateCodec{}})
	m.RegisterDataType(DataType{Name: "timestamp", OID: TimestampOID, Codec: TimestampCodec{}})
	m.RegisterDataType(DataType{Name: "timestamptz", OID: TimestamptzOID, Codec: TimestamptzCodec{}})
	m.RegisterDataType(DataType{Name: "interval", OID: IntervalOID, Codec: IntervalCodec{}})
	m.RegisterDataType(DataType{Name: "numeric", OID: NumericOID, Codec: NumericCodec{}})
	m.RegisterDataType(DataType{Name: "uuid", OID: UUIDOID, Codec: UUIDCodec{}})
	m.RegisterDataType(DataType{Name: "jsonb", OID: JSONBOID, Codec: JSONBCodec{}})

	return m
}

// RegisterDataType makes a codec available under its OID and name. An
// existing registration for the same OID is replaced.
func (m *Map) RegisterDataType(dt DataType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.snap.Load()
	next := &snapshot{
		byOID:  make(map[uint32]*DataType, len(old.byOID)+1),
		byName: make(map[string]*DataType, len(old.byName)+1),
	}
	for k, v := range old.byOID {
		next.byOID[k] = v
	}
	for k, v := range old.byName {
		next.byName[k] = v
	}
	next.byOID[dt.OID] = &dt
	next.byName[dt.Name] = &dt

	m.snap.Store(next)
}

// RegisterValueOID adds a value-to-OID inference used by OIDForValue
// for value types the core does not know about. Later registrations
// win over earlier ones.
func (m *Map) RegisterValueOID(f func(value any) (uint32, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueOIDFuncs = append([]func(any) (uint32, bool){f}, m.valueOIDFuncs...)
}

// SetRefresh installs the out-of-band loader invoked by Refresh.
func (m *Map) SetRefresh(f RefreshFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = f
}

// DataTypeForOID returns the registered type for oid.
func (m *Map) DataTypeForOID(oid uint32) (*DataType, bool) {
	dt, ok := m.snap.Load().byOID[oid]
	return dt, ok
}

// DataTypeForName returns the registered type named name.
func (m *Map) DataTypeForName(name string) (*DataType, bool) {
	dt, ok := m.snap.Load().byName[name]
	return dt, ok
}

// KnownOIDs reports which of oids have a registered codec.
func (m *Map) KnownOIDs(oids []uint32) (known, missing []uint32) {
	byOID := m.snap.Load().byOID
	for _, oid := range oids {
		if _, ok := byOID[oid]; ok {
			known = append(known, oid)
		} else {
			missing = append(missing, oid)
		}
	}
	return known, missing
}

// Refresh invokes the installed RefreshFunc for oids. It is a no-op
// when no refresh is installed.
func (m *Map) Refresh(ctx context.Context, oids []uint32) error {
	m.mu.Lock()
	f := m.refresh
	m.mu.Unlock()

	if f == nil {
		return nil
	}
	return f(ctx, oids)
}

// ErrNoCodec is wrapped by EncodeBinary when no codec is registered
// for the requested OID.
var ErrNoCodec = errors.New("no codec registered for type")

// EncodeBinary appends the binary wire value of value for the type
// identified by oid. A nil value must be turned into NULL by the
// caller before reaching here.
func (m *Map) EncodeBinary(oid uint32, value any, buf []byte) ([]byte, error) {
	dt, ok := m.DataTypeForOID(oid)
	if ok {
		return dt.Codec.EncodeBinary(value, buf)
	}

	// a raw value round-trips into a type we have no codec for
	if raw, isRaw := value.([]byte); isRaw {
		return append(buf, raw...), nil
	}
	return nil, fmt.Errorf("oid %d: %w", oid, ErrNoCodec)
}

// DecodeBinary parses the binary wire value src for the type
// identified by oid. Unknown OIDs pass through as a copy of the raw
// bytes rather than failing the row.
func (m *Map) DecodeBinary(oid uint32, src []byte) (any, error) {
	dt, ok := m.DataTypeForOID(oid)
	if !ok {
		raw := make([]byte, len(src))
		copy(raw, src)
		return raw, nil
	}
	return dt.Codec.DecodeBinary(src)
}

// BindRequiresStatementDescription reports whether any of args has a
// runtime type that does not determine its PostgreSQL type, in which
// case the extended-query flow must ask the server to describe the
// statement before binding.
func (m *Map) BindRequiresStatementDescription(args []any) bool {
	for _, arg := range args {
		if _, ok := m.OIDForValue(arg); !ok {
			return true
		}
	}
	return false
}
