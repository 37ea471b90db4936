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

package sam

import (
	"fmt"
	"strconv"
	"sync"
)

// A CigarOperation is one run of a CIGAR string.
type CigarOperation struct {
	Length    int32
	Operation byte
}

// CigarOperations lists the valid CIGAR operation characters.
const CigarOperations = "MIDNSHPX="

var cigarOperationsTable [256]bool

func init() {
	for _, c := range CigarOperations {
		cigarOperationsTable[c] = true
	}
}

func isDigit(char byte) bool { return ('0' <= char) && (char <= '9') }

func newCigarOperation(cigar string, i int) (op CigarOperation, j int, err error) {
	for j = i; j < len(cigar); j++ {
		if char := cigar[j]; !isDigit(char) {
			if j == i {
				return op, j, fmt.Errorf("Missing length for CIGAR operation %c", char)
			}
			length, nerr := strconv.ParseInt(cigar[i:j], 10, 32)
			if nerr != nil {
				return op, j, nerr
			}
			if !cigarOperationsTable[char] {
				return op, j, fmt.Errorf("Invalid CIGAR operation %c", char)
			}
			return CigarOperation{int32(length), char}, j + 1, nil
		}
	}
	return op, j, fmt.Errorf("Missing CIGAR operation after length %v", cigar[i:])
}

var (
	cigarSliceCache      = map[string][]CigarOperation{"*": {}}
	cigarSliceCacheMutex = sync.RWMutex{}
)

func slowScanCigarString(cigar string) ([]CigarOperation, error) {
	var slice []CigarOperation
	for i := 0; i < len(cigar); {
		cigarOperation, j, err := newCigarOperation(cigar, i)
		if err != nil {
			return nil, fmt.Errorf("%v, while scanning CIGAR string %v", err, cigar)
		}
		slice = append(slice, cigarOperation)
		i = j
	}
	cigarSliceCacheMutex.Lock()
	if value, found := cigarSliceCache[cigar]; found {
		slice = value
	} else {
		cigarSliceCache[cigar] = slice
	}
	cigarSliceCacheMutex.Unlock()
	return slice, nil
}

// ScanCigarString parses a CIGAR string. The result is shared between
// all callers that scan the same string, and must not be modified.
func ScanCigarString(cigar string) ([]CigarOperation, error) {
	cigarSliceCacheMutex.RLock()
	value, found := cigarSliceCache[cigar]
	cigarSliceCacheMutex.RUnlock()
	if found {
		return value, nil
	}
	return slowScanCigarString(cigar)
}

// AppendCigar formats a CIGAR into a byte slice, "*" if empty.
func AppendCigar(out []byte, cigar []CigarOperation) []byte {
	if len(cigar) == 0 {
		return append(out, '*')
	}
	for _, op := range cigar {
		out = append(strconv.AppendInt(out, int64(op.Length), 10), op.Operation)
	}
	return out
}

// CigarString formats a CIGAR, "*" if empty.
func CigarString(cigar []CigarOperation) string {
	return string(AppendCigar(nil, cigar))
}

// CigarEqual reports whether two CIGARs are identical.
func CigarEqual(c1, c2 []CigarOperation) bool {
	if len(c1) != len(c2) {
		return false
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			return false
		}
	}
	return true
}

// OperatorConsumesReadBases reports whether a CIGAR operation
// consumes read bases.
func OperatorConsumesReadBases(operator byte) bool {
	switch operator {
	case 'M', 'I', 'S', '=', 'X':
		return true
	default:
		return false
	}
}

// OperatorConsumesReferenceBases reports whether a CIGAR operation
// consumes reference bases.
func OperatorConsumesReferenceBases(operator byte) bool {
	switch operator {
	case 'M', 'D', 'N', '=', 'X':
		return true
	default:
		return false
	}
}

// ReadLengthFromCigar sums the lengths of all CIGAR operations that
// consume read bases.
func ReadLengthFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if OperatorConsumesReadBases(op.Operation) {
			length += op.Length
		}
	}
	return length
}

// ReferenceLengthFromCigar sums the lengths of all CIGAR operations
// that consume reference bases.
func ReferenceLengthFromCigar(cigar []CigarOperation) int32 {
	var length int32
	for _, op := range cigar {
		if OperatorConsumesReferenceBases(op.Operation) {
			length += op.Length
		}
	}
	return length
}

// End returns the 1-based position of the last reference base covered
// by the alignment. For alignments without reference bases, this is
// POS - 1.
func (aln *Alignment) End() int32 {
	return aln.POS + ReferenceLengthFromCigar(aln.CIGAR) - 1
}

// NumAlignmentBlocks counts the gapless aligned blocks of a CIGAR,
// that is its M, = and X runs.
func NumAlignmentBlocks(cigar []CigarOperation) int {
	var blocks int
	for _, op := range cigar {
		switch op.Operation {
		case 'M', '=', 'X':
			blocks++
		}
	}
	return blocks
}

// IsClipped reports whether the alignment has soft or hard clips.
func IsClipped(cigar []CigarOperation) bool {
	for _, op := range cigar {
		if op.Operation == 'S' || op.Operation == 'H' {
			return true
		}
	}
	return false
}
