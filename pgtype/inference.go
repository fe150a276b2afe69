package pgtype

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/apd"
	"github.com/gofrs/uuid"
)

// OIDForValue infers the PostgreSQL type of a Go value. It reports
// false for nil and for polymorphic values (maps, slices other than
// []byte) whose element type the server must determine.
func (m *Map) OIDForValue(value any) (uint32, bool) {
	m.mu.Lock()
	fns := m.valueOIDFuncs
	m.mu.Unlock()
	for _, f := range fns {
		if oid, ok := f(value); ok {
			return oid, true
		}
	}

	switch value.(type) {
	case nil:
		return 0, false
	case bool:
		return BoolOID, true
	case int16:
		return Int2OID, true
	case int32:
		return Int4OID, true
	case int, int64:
		return Int8OID, true
	case float32:
		return Float4OID, true
	case float64:
		return Float8OID, true
	case string:
		return TextOID, true
	case json.RawMessage:
		return JSONBOID, true
	case []byte:
		return ByteaOID, true
	case time.Time:
		return TimestamptzOID, true
	case time.Duration, Interval:
		return IntervalOID, true
	case uuid.UUID:
		return UUIDOID, true
	case apd.Decimal, *apd.Decimal, Numeric:
		return NumericOID, true
	default:
		return 0, false
	}
}
