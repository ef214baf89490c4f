// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/AlexKoff88/openvino/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
)

// Bit layout of the packed dtypes, the same used by the graph IR serialization:
//
//   - Uint1: 8 values per byte, the first value in the most significant bit.
//   - Uint4 and Int4: 2 values per byte, the first value in the high nibble.
//     Int4 is two's complement in its nibble.

// GetPacked returns the value at position idx of the packed data of the given dtype.
func GetPacked(data []byte, dtype dtypes.DType, idx int) int8 {
	switch dtype {
	case dtypes.Uint1:
		bitIdx := 7 - idx%8
		return int8((data[idx/8] >> bitIdx) & 1)
	case dtypes.Uint4:
		return int8(nibble(data, idx))
	case dtypes.Int4:
		v := nibble(data, idx)
		if v&0x08 != 0 {
			v |= 0xF0
		}
		return int8(v)
	}
	exceptions.Panicf("GetPacked: dtype %s is not packed", dtype)
	panic(nil)
}

func nibble(data []byte, idx int) uint8 {
	shift := 4 * ((idx + 1) % 2)
	return (data[idx/2] >> shift) & 0x0F
}

// SetPacked sets the value at position idx of the packed data of the given dtype.
//
// Uint1 stores 1 for any non-zero value, Uint4 and Int4 store the lower 4 bits of value: out of range
// values wrap around (-1 is stored as Uint4 15, 16 as 0).
func SetPacked(data []byte, dtype dtypes.DType, idx int, value int8) {
	switch dtype {
	case dtypes.Uint1:
		mask := byte(1) << (7 - idx%8)
		if value != 0 {
			data[idx/8] |= mask
		} else {
			data[idx/8] &^= mask
		}
	case dtypes.Uint4, dtypes.Int4:
		shift := 4 * ((idx + 1) % 2)
		byteIdx := idx / 2
		data[byteIdx] = (data[byteIdx] &^ (0x0F << shift)) | ((uint8(value) & 0x0F) << shift)
	default:
		exceptions.Panicf("SetPacked: dtype %s is not packed", dtype)
	}
}
