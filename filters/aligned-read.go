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

import (
	"log"

	"github.com/exascience/elrealign/sam"
)

// An alignedRead holds the tentative realignment of a read. The read
// itself only changes when finalizeUpdate is called.
type alignedRead struct {
	aln *sam.Alignment
	// newCigar is nil while the read keeps its original cigar.
	newCigar []sam.CigarOperation
	// newStart is -1 while the read keeps its original position.
	newStart                 int32
	mismatchScoreToReference int
	alignerMismatchScore     int64
}

func newAlignedRead(aln *sam.Alignment) *alignedRead {
	return &alignedRead{aln: aln, newStart: -1}
}

func (read *alignedRead) bases() []byte {
	return read.aln.SEQ
}

func (read *alignedRead) qualities() []byte {
	return read.aln.QUAL
}

func (read *alignedRead) length() int32 {
	return int32(len(read.aln.SEQ))
}

func (read *alignedRead) cigar() []sam.CigarOperation {
	if read.newCigar != nil {
		return read.newCigar
	}
	return read.aln.CIGAR
}

// setCigar tentatively sets a new cigar. A nil cigar, or one equal to
// the original, resets the read to its original cigar.
func (read *alignedRead) setCigar(cigar []sam.CigarOperation) {
	if cigar == nil || sam.CigarEqual(read.aln.CIGAR, cigar) {
		read.newCigar = nil
		return
	}
	read.newCigar = cigar
}

func (read *alignedRead) setAlignmentStart(start int32) {
	read.newStart = start
}

func (read *alignedRead) alignmentStart() int32 {
	if read.newStart != -1 {
		return read.newStart
	}
	return read.aln.POS
}

func (read *alignedRead) originalAlignmentStart() int32 {
	return read.aln.POS
}

// Tags for the original alignment of realigned reads.
const (
	OriginalCigarTag    = "OC"
	OriginalPositionTag = "OP"
)

// finalizeUpdate applies the tentative realignment to the read and
// reports whether the read changed. Reads that would move more than
// maxPositionalMove bases are left alone.
func (read *alignedRead) finalizeUpdate(maxPositionalMove int32, originalAlignmentTags bool) bool {
	if read.newCigar == nil {
		return false
	}
	aln := read.aln
	if read.newStart == -1 {
		read.newStart = aln.POS
	} else if absInt32(read.newStart-aln.POS) > maxPositionalMove {
		log.Printf("Not realigning read %v at %v:%v, it would move more than %v bases to %v.", aln.QNAME, aln.RNAME, aln.POS, maxPositionalMove, read.newStart)
		return false
	}

	if originalAlignmentTags {
		aln.SetTag(OriginalCigarTag, 'Z', sam.CigarString(aln.CIGAR))
		if read.newStart != aln.POS {
			aln.SetIntTag(OriginalPositionTag, aln.POS)
		}
	}

	oldStart, oldEnd := aln.POS, aln.End()
	aln.CIGAR, aln.POS = read.newCigar, read.newStart
	updateInsertSize(aln, oldStart, oldEnd)
	return true
}

// updateInsertSize adjusts TLEN after the read moved from
// [oldStart, oldEnd]. The outer end of the fragment stays where it
// was, unless it was defined by this read.
func updateInsertSize(aln *sam.Alignment, oldStart, oldEnd int32) {
	switch newStart, newEnd := aln.POS, aln.End(); {
	case aln.TLEN > 0:
		outerEnd := oldStart + aln.TLEN - 1
		if oldEnd == outerEnd {
			outerEnd = newEnd
		}
		aln.TLEN = outerEnd - newStart + 1
	case aln.TLEN < 0:
		outerStart := oldEnd + aln.TLEN + 1
		if oldStart == outerStart {
			outerStart = newStart
		}
		aln.TLEN = -(newEnd - outerStart + 1)
	}
}
