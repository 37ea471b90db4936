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
	"math"

	"github.com/exascience/elrealign/sam"
)

// updateRead derives the tentative cigar and position of a read from
// the consensus it aligns to. altCigar is the cigar of the consensus,
// altPosOnRef where the consensus cigar starts on the reference window
// and myPosOnAlt the offset of the read on the consensus. Reads that
// lie entirely on one side of the indel keep their original alignment.
// updateRead returns false if the consensus cigar has an unexpected
// shape.
func updateRead(altCigar []sam.CigarOperation, altPosOnRef, myPosOnAlt int32, read *alignedRead, leftmostIndex int32) bool {
	readLength := read.length()

	if len(altCigar) == 1 {
		read.setAlignmentStart(leftmostIndex + myPosOnAlt)
		read.setCigar([]sam.CigarOperation{{Length: readLength, Operation: 'M'}})
		return true
	}

	altCE1, altCE2 := altCigar[0], altCigar[1]

	var leadingMatchingBlockLength int32
	var indelCE sam.CigarOperation
	switch altCE1.Operation {
	case 'I':
		if altCE2.Operation != 'M' {
			log.Printf("When the first element of the alt consensus is I, the second one must be M. Actual: %v. Skipping this site...", sam.CigarString(altCigar))
			return false
		}
		indelCE = altCE1
	case 'M':
		if altCE2.Operation != 'I' && altCE2.Operation != 'D' {
			log.Printf("When the first element of the alt consensus is M, the second one must be I or D. Actual: %v. Skipping this site...", sam.CigarString(altCigar))
			return false
		}
		indelCE = altCE2
		leadingMatchingBlockLength = altCE1.Length
	default:
		log.Printf("First element of the alt consensus cigar must be M or I. Actual: %v. Skipping this site...", sam.CigarString(altCigar))
		return false
	}

	endOfFirstBlock := altPosOnRef + leadingMatchingBlockLength
	sawAlignmentStart := false
	readCigar := make([]sam.CigarOperation, 0, 3)

	// reads starting before the indel
	if myPosOnAlt < endOfFirstBlock {
		read.setAlignmentStart(leftmostIndex + myPosOnAlt)
		sawAlignmentStart = true
		if myPosOnAlt+readLength <= endOfFirstBlock {
			read.setCigar(nil)
			return true
		}
		readCigar = append(readCigar, sam.CigarOperation{Length: endOfFirstBlock - myPosOnAlt, Operation: 'M'})
	}

	switch indelCE.Operation {
	case 'I':
		// reads ending inside the insertion
		if myPosOnAlt+readLength < endOfFirstBlock+indelCE.Length {
			partialInsertionLength := myPosOnAlt + readLength - endOfFirstBlock
			if !sawAlignmentStart {
				partialInsertionLength = readLength
			}
			readCigar = append(readCigar, sam.CigarOperation{Length: partialInsertionLength, Operation: 'I'})
			read.setCigar(readCigar)
			return true
		}
		// reads starting inside the insertion
		if !sawAlignmentStart && myPosOnAlt < endOfFirstBlock+indelCE.Length {
			read.setAlignmentStart(leftmostIndex + endOfFirstBlock)
			readCigar = append(readCigar, sam.CigarOperation{Length: indelCE.Length - (myPosOnAlt - endOfFirstBlock), Operation: 'I'})
			sawAlignmentStart = true
		} else if sawAlignmentStart {
			readCigar = append(readCigar, indelCE)
		}
	case 'D':
		if sawAlignmentStart {
			readCigar = append(readCigar, indelCE)
		}
	}

	// reads starting after the indel
	if !sawAlignmentStart {
		read.setCigar(nil)
		return true
	}

	readRemaining := readLength
	for _, ce := range readCigar {
		if ce.Operation != 'D' {
			readRemaining -= ce.Length
		}
	}
	if readRemaining > 0 {
		readCigar = append(readCigar, sam.CigarOperation{Length: readRemaining, Operation: 'M'})
	}
	read.setCigar(readCigar)
	return true
}

// nmTag computes the edit distance of an alignment to the reference:
// mismatching aligned bases plus inserted and deleted bases. refSeq[0]
// is at the 1-based position leftmostIndex.
func nmTag(aln *sam.Alignment, refSeq []byte, leftmostIndex int32) int32 {
	var nm int32
	readIdx := int32(0)
	refIdx := aln.POS - leftmostIndex
	refLength := int32(len(refSeq))
	for _, ce := range aln.CIGAR {
		switch ce.Operation {
		case 'M', '=', 'X':
			for j := int32(0); j < ce.Length; j++ {
				if r := refIdx + j; r >= 0 && r < refLength && toUpper(aln.SEQ[readIdx+j]) != refSeq[r] {
					nm++
				}
			}
			readIdx += ce.Length
			refIdx += ce.Length
		case 'I':
			nm += ce.Length
			readIdx += ce.Length
		case 'S':
			readIdx += ce.Length
		case 'D':
			nm += ce.Length
			refIdx += ce.Length
		case 'N':
			refIdx += ce.Length
		}
	}
	return nm
}

// updateMappingQuality raises the mapping quality of a realigned read
// by the rounded LOD improvement. 255 means unknown and is left alone.
func updateMappingQuality(aln *sam.Alignment, improvement float64) {
	if aln.MAPQ == 255 {
		return
	}
	mapq := int(aln.MAPQ) + int(math.Round(improvement/10))
	if mapq > 255 {
		mapq = 255
	} else if mapq < 0 {
		mapq = 0
	}
	aln.MAPQ = byte(mapq)
}
