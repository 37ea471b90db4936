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

// sequencePeriod returns the smallest period of seq that is at least
// minPeriod. The length of seq is always a period.
func sequencePeriod(seq []byte, minPeriod int) int {
	for period := minPeriod; period < len(seq); period++ {
		periodic := true
		for i := period; i < len(seq); i++ {
			if seq[i] != seq[i-period] {
				periodic = false
				break
			}
		}
		if periodic {
			return period
		}
	}
	return len(seq)
}

// LeftAlignIndel moves the indel of a cigar of the form M-indel-rest to
// its leftmost equivalent position across repeated reference sequence.
// refIndex and readIndex are the 0-based positions where the cigar
// starts on the reference and on the read. Cigars with zero or more
// than one indel, or that do not start with M, are returned unchanged.
//
// A shift that would need more matching bases before the indel than the
// cigar has is refused, unless allowNegativeShift is set, in which case
// the indel is moved as far as the leading block permits. A shift that
// uses up the leading block exactly drops it for an insertion. A deletion
// always keeps at least one matching base in front of it, so it stops one
// period short.
func LeftAlignIndel(cigar []sam.CigarOperation, reference, read []byte, refIndex, readIndex int32, allowNegativeShift bool) []sam.CigarOperation {
	if len(cigar) < 2 || countIndels(cigar) != 1 {
		return cigar
	}
	ce1, ce2 := cigar[0], cigar[1]
	if ce1.Operation != 'M' {
		return cigar
	}

	indelLength := int(ce2.Length)
	indelIndexOnRef := int(refIndex + ce1.Length)
	indelIndexOnRead := int(readIndex + ce1.Length)

	var indelString []byte
	switch ce2.Operation {
	case 'D':
		if indelIndexOnRef < 0 || indelIndexOnRef+indelLength > len(reference) {
			return cigar
		}
		indelString = reference[indelIndexOnRef : indelIndexOnRef+indelLength]
	case 'I':
		if indelIndexOnRead < 0 || indelIndexOnRead+indelLength > len(read) {
			return cigar
		}
		indelString = read[indelIndexOnRead : indelIndexOnRead+indelLength]
	default:
		return cigar
	}

	// Only whole periods of the indel can be moved. Insertions are
	// compared against the reference as well, never against the read.
	var difference, bestPeriod int
	for period := 0; period < indelLength; {
		period = sequencePeriod(indelString, period+1)
		if indelLength%period != 0 {
			continue
		}
		newIndex := indelIndexOnRef
		for newIndex >= period && newIndex <= len(reference) {
			match := true
			for testRefPos, indelPos := newIndex-period, 0; testRefPos < newIndex; testRefPos, indelPos = testRefPos+1, indelPos+1 {
				if indelChr := indelString[indelPos]; reference[testRefPos] != indelChr || !isRegularBase(indelChr) {
					match = false
					break
				}
			}
			if !match {
				break
			}
			newIndex -= period
		}
		if newDifference := indelIndexOnRef - newIndex; newDifference > difference {
			difference, bestPeriod = newDifference, period
		}
		if period == 1 {
			break
		}
	}

	if difference == 0 {
		return cigar
	}

	minLead := 0
	if ce2.Operation == 'D' {
		minLead = 1
	}
	if int(ce1.Length)-difference < 0 && !allowNegativeShift {
		return cigar
	}
	if int(ce1.Length)-difference < minLead {
		for difference > 0 && int(ce1.Length)-difference < minLead {
			difference -= bestPeriod
		}
		if difference <= 0 {
			return cigar
		}
	}

	shift := int32(difference)
	newCigar := make([]sam.CigarOperation, 0, len(cigar)+1)
	if lead := ce1.Length - shift; lead > 0 {
		newCigar = append(newCigar, sam.CigarOperation{Length: lead, Operation: 'M'})
	}
	newCigar = append(newCigar, ce2)
	switch {
	case len(cigar) == 2:
		newCigar = append(newCigar, sam.CigarOperation{Length: shift, Operation: 'M'})
	case cigar[2].Operation == 'M':
		newCigar = append(newCigar, sam.CigarOperation{Length: cigar[2].Length + shift, Operation: 'M'})
		newCigar = append(newCigar, cigar[3:]...)
	default:
		newCigar = append(newCigar, sam.CigarOperation{Length: shift, Operation: 'M'})
		newCigar = append(newCigar, cigar[2:]...)
	}
	return newCigar
}
