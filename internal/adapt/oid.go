package adapt

// PostgreSQL built-in type OIDs used by the built-in adapters.
const (
	BoolOID        uint32 = 16
	ByteaOID       uint32 = 17
	NameOID        uint32 = 19
	Int8OID        uint32 = 20
	Int2OID        uint32 = 21
	Int4OID        uint32 = 23
	TextOID        uint32 = 25
	OIDOID         uint32 = 26
	Float4OID      uint32 = 700
	Float8OID      uint32 = 701
	Int4ArrayOID   uint32 = 1007
	TextArrayOID   uint32 = 1009
	Int8ArrayOID   uint32 = 1016
	Float8ArrayOID uint32 = 1022
	BPCharOID      uint32 = 1042
	VarcharOID     uint32 = 1043
	DateOID        uint32 = 1082
	TimestampOID   uint32 = 1114
	TimestamptzOID uint32 = 1184
	NumericOID     uint32 = 1700
	UUIDOID        uint32 = 2950
)
