// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import "strconv"

// DType is an enum that represents the element type of a tensor, or of the output of a graph node.
//
// The values follow the PJRT buffer type numbering where one exists, so dumps remain comparable
// with other tools. Uint1 has no PJRT counterpart and uses a value outside of that range.
type DType int32

const (
	// InvalidDType is the zero value, used as "not set".
	InvalidDType DType = 0

	// Bool is a two-state boolean, stored one per byte.
	Bool DType = 1

	// Int8 is a signed integral value of fixed width.
	Int8 DType = 2

	// Int16 is a signed integral value of fixed width.
	Int16 DType = 3

	// Int32 is a signed integral value of fixed width.
	Int32 DType = 4

	// Int64 is a signed integral value of fixed width.
	Int64 DType = 5

	// Uint8 is an unsigned integral value of fixed width.
	Uint8 DType = 6

	// Uint16 is an unsigned integral value of fixed width.
	Uint16 DType = 7

	// Uint32 is an unsigned integral value of fixed width.
	Uint32 DType = 8

	// Uint64 is an unsigned integral value of fixed width.
	Uint64 DType = 9

	// Float16 is the IEEE 754 half-precision float.
	Float16 DType = 10

	// Float32 is the IEEE 754 single-precision float.
	Float32 DType = 11

	// Float64 is the IEEE 754 double-precision float.
	Float64 DType = 12

	// BFloat16 is the "brain" float: the upper 16 bits of a Float32.
	BFloat16 DType = 13

	// Int4 is a signed 4-bit integer, packed two per byte.
	Int4 DType = 21

	// Uint4 is an unsigned 4-bit integer, packed two per byte.
	Uint4 DType = 22

	// Uint1 is a single bit, packed eight per byte.
	Uint1 DType = 30
)

// Aliases with the short names used by graph dumps.
const (
	INVALID = InvalidDType
	PRED    = Bool
	S4      = Int4
	S8      = Int8
	S16     = Int16
	S32     = Int32
	S64     = Int64
	U1      = Uint1
	U4      = Uint4
	U8      = Uint8
	U16     = Uint16
	U32     = Uint32
	U64     = Uint64
	F16     = Float16
	F32     = Float32
	F64     = Float64
	BF16    = BFloat16
)

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	BFloat16:     "BFloat16",
	Int4:         "Int4",
	Uint4:        "Uint4",
	Uint1:        "Uint1",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "DType(" + strconv.Itoa(int(dtype)) + ")"
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"INVALID":      InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"boolean":      Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"I8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"I16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"I32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"I64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
	"Int4":         Int4,
	"S4":           Int4,
	"I4":           Int4,
	"Uint4":        Uint4,
	"U4":           Uint4,
	"Uint1":        Uint1,
	"U1":           Uint1,
}
