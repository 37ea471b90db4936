// elPrep: a high-performance tool for analyzing SAM/BAM files.
// Copyright (c) 2020 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elprep/blob/master/LICENSE.txt>.

package filters

import "github.com/exascience/elrealign/sam"

func minInt32(x, y int32) int32 {
	if x < y {
		return x
	}
	return y
}

func maxInt32(x, y int32) int32 {
	if x > y {
		return x
	}
	return y
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

func isRegularBase(base byte) bool {
	switch base {
	case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		return true
	default:
		return false
	}
}

func toUpper(base byte) byte {
	if 'a' <= base && base <= 'z' {
		return base - 'a' + 'A'
	}
	return base
}

// mergeCigar removes empty operations and joins adjacent operations
// of the same kind.
func mergeCigar(cigar []sam.CigarOperation) []sam.CigarOperation {
	result := cigar[:0]
	for _, op := range cigar {
		switch {
		case op.Length == 0:
		case len(result) > 0 && result[len(result)-1].Operation == op.Operation:
			result[len(result)-1].Length += op.Length
		default:
			result = append(result, op)
		}
	}
	return result
}

func countIndels(cigar []sam.CigarOperation) (n int) {
	for _, op := range cigar {
		if op.Operation == 'I' || op.Operation == 'D' {
			n++
		}
	}
	return n
}
