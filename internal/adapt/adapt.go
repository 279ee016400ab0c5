/*
 * Copyright (c) 2021-2022 UNNG Lab.
 */

// Package adapt converts Go values to and from PostgreSQL wire representations.
//
// Conversion is driven by a Registry holding dump adapters keyed by the Go type of the
// value and load adapters keyed by the PostgreSQL type OID. Registries layer: a derived
// registry consults its own registrations first and falls back to its parent, so a
// per-call registry overrides a connection default for the same type. Last registration
// for the same key wins.
package adapt

import (
	"fmt"

	"github.com/modern-go/reflect2"

	"pgcore/internal/wire"
)

// UnknownOID lets the server infer the parameter type from context.
const UnknownOID uint32 = 0

// Dumper converts one logical Go type to its wire representation.
type Dumper interface {
	// OID is the parameter type OID declared to the server, UnknownOID to let the
	// server infer it.
	OID() uint32
	// Format is the wire format the dumper produces.
	Format() int16
	// Dump appends the wire representation of v to buf.
	Dump(v interface{}, buf []byte) ([]byte, error)
}

// Loader converts a wire value of one type OID back to a Go value.
type Loader interface {
	Load(data []byte, format int16) (interface{}, error)
}

// LoadError occurs when a wire value cannot be converted to a Go value.
type LoadError struct {
	OID    uint32
	Format int16
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load oid %d format %d: %s", e.OID, e.Format, e.Reason)
}

// DataOverflowError occurs when a wire value is outside the range representable by the
// target Go type. PostgreSQL's symbolic infinity is never clamped to a boundary value;
// clamping would be lossy and non-bijective.
type DataOverflowError struct {
	OID   uint32
	Value string
}

func (e *DataOverflowError) Error() string {
	return fmt.Sprintf("value %q of oid %d overflows the representable range", e.Value, e.OID)
}

// DumpError occurs when a Go value cannot be converted to a wire representation.
type DumpError struct {
	Value interface{}
	Msg   string
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("cannot dump %T: %s", e.Value, e.Msg)
}

// Registry maps Go types to dump adapters and type OIDs to load adapters.
type Registry struct {
	parent  *Registry
	dumpers map[uintptr]Dumper
	loaders map[uint32]Loader

	// binaryResult marks OIDs requested from the server in binary format.
	binaryResult map[uint32]bool
}

// NewRegistry returns a registry with all built-in adapters registered.
func NewRegistry() *Registry {
	r := &Registry{
		dumpers:      make(map[uintptr]Dumper, 32),
		loaders:      make(map[uint32]Loader, 32),
		binaryResult: make(map[uint32]bool, 32),
	}
	r.registerBuiltins()
	return r
}

// Derive returns an empty registry layered over r. Lookups consult the derived registry
// first; the most specific registration wins.
func (r *Registry) Derive() *Registry {
	return &Registry{
		parent:  r,
		dumpers: make(map[uintptr]Dumper, 4),
		loaders: make(map[uint32]Loader, 4),
	}
}

// RegisterDump associates the dynamic type of sample with d, overwriting any previous
// registration for that type.
func (r *Registry) RegisterDump(sample interface{}, d Dumper) {
	r.dumpers[rtypeOf(sample)] = d
}

// RegisterLoad associates oid with l, overwriting any previous registration.
// binaryResult controls whether results of this OID are requested in binary format.
func (r *Registry) RegisterLoad(oid uint32, l Loader, binaryResult bool) {
	r.loaders[oid] = l
	if r.binaryResult != nil {
		r.binaryResult[oid] = binaryResult
	}
}

func rtypeOf(v interface{}) uintptr {
	return uintptr(reflect2.RTypeOf(v))
}

func (r *Registry) dumperFor(v interface{}) Dumper {
	rtype := rtypeOf(v)
	for reg := r; reg != nil; reg = reg.parent {
		if d, ok := reg.dumpers[rtype]; ok {
			return d
		}
	}
	return nil
}

func (r *Registry) loaderFor(oid uint32) Loader {
	for reg := r; reg != nil; reg = reg.parent {
		if l, ok := reg.loaders[oid]; ok {
			return l
		}
	}
	return nil
}

// Dump converts v for transmission. nil (or a typed nil pointer) becomes SQL NULL:
// nil data with unknown OID. When no dumper is registered for v's type the value is
// stringified and sent in text format with unknown OID so the server infers the type.
func (r *Registry) Dump(v interface{}) (data []byte, oid uint32, format int16, err error) {
	if v == nil {
		return nil, UnknownOID, wire.TextFormatCode, nil
	}
	if v, ok := derefPointer(v); ok {
		if v == nil {
			return nil, UnknownOID, wire.TextFormatCode, nil
		}
		return r.Dump(v)
	}

	if d := r.dumperFor(v); d != nil {
		data, err = d.Dump(v, nil)
		if err != nil {
			return nil, 0, 0, err
		}
		if data == nil {
			data = []byte{}
		}
		return data, d.OID(), d.Format(), nil
	}

	s, ok := stringifyFallback(v)
	if !ok {
		return nil, 0, 0, &DumpError{Value: v, Msg: "no dumper registered and value is not stringifiable"}
	}
	return []byte(s), UnknownOID, wire.TextFormatCode, nil
}

// Load converts a wire value to a Go value. nil data is SQL NULL and loads as nil.
// Without a registered loader, text values load as string and binary values as a copy of
// the raw bytes.
func (r *Registry) Load(data []byte, oid uint32, format int16) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	if l := r.loaderFor(oid); l != nil {
		return l.Load(data, format)
	}
	if format == wire.TextFormatCode {
		return string(data), nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ResultFormatCodeForOID reports the format the registry wants results of oid in.
func (r *Registry) ResultFormatCodeForOID(oid uint32) int16 {
	for reg := r; reg != nil; reg = reg.parent {
		if reg.binaryResult != nil {
			if bin, ok := reg.binaryResult[oid]; ok {
				if bin {
					return wire.BinaryFormatCode
				}
				return wire.TextFormatCode
			}
		}
	}
	return wire.TextFormatCode
}
