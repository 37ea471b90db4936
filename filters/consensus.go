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
	"github.com/exascience/elrealign/internal"
	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/vcf"
)

type readOffset struct {
	read   int
	offset int32
}

// A consensus is an alternate version of the reference window with
// exactly one indel.
type consensus struct {
	str                 []byte
	cigar               []sam.CigarOperation
	positionOnReference int32
	mismatchSum         int64
	readIndexes         []readOffset
}

// consensusSet keeps consensuses in insertion order, without
// duplicate sequences.
type consensusSet struct {
	index map[string]struct{}
	list  []*consensus
}

func newConsensusSet() *consensusSet {
	return &consensusSet{index: make(map[string]struct{})}
}

func (set *consensusSet) add(c *consensus) bool {
	if c == nil {
		return false
	}
	key := string(c.str)
	if _, found := set.index[key]; found {
		return false
	}
	set.index[key] = struct{}{}
	set.list = append(set.list, c)
	return true
}

func (set *consensusSet) len() int {
	return len(set.list)
}

// newKnownIndelConsensus inserts or deletes a known indel in the
// reference window. Known indels carry a padding base, so the indel
// itself starts one position after POS.
func newKnownIndelConsensus(variant *vcf.Variant, reference []byte, leftmostIndex int32) *consensus {
	if !variant.IsIndel() {
		return nil
	}
	indexOnRef := variant.Pos - leftmostIndex + 1
	refLength := int32(len(reference))
	if indexOnRef < 0 || indexOnRef >= refLength {
		return nil
	}

	str := make([]byte, 0, len(reference)+len(variant.FirstAlt()))
	var cigar []sam.CigarOperation
	str = append(str, reference[:indexOnRef]...)
	if indexOnRef > 0 {
		cigar = append(cigar, sam.CigarOperation{Length: indexOnRef, Operation: 'M'})
	}
	refIdx := indexOnRef
	if variant.IsSimpleDeletion() {
		length := int32(len(variant.Ref)) - 1
		refIdx += length
		cigar = append(cigar, sam.CigarOperation{Length: length, Operation: 'D'})
	} else {
		bases := variant.FirstAlt()[1:]
		for i := 0; i < len(bases); i++ {
			str = append(str, toUpper(bases[i]))
		}
		cigar = append(cigar, sam.CigarOperation{Length: int32(len(bases)), Operation: 'I'})
	}
	if refLength-refIdx > 0 {
		cigar = append(cigar, sam.CigarOperation{Length: refLength - refIdx, Operation: 'M'})
		str = append(str, reference[refIdx:]...)
	}
	return &consensus{str: str, cigar: cigar}
}

// newReadConsensus builds a consensus from a read whose cigar starts at
// indexOnRef on the reference window. It returns nil unless the cigar
// has exactly one indel that lies within the window, and insertions
// consist of regular bases only.
func newReadConsensus(indexOnRef int32, cigar []sam.CigarOperation, reference, read []byte) *consensus {
	if indexOnRef < 0 || int(indexOnRef) > len(reference) {
		return nil
	}
	if len(cigar) == 1 && cigar[0].Operation == 'M' {
		return nil
	}

	elements := make([]sam.CigarOperation, 0, len(cigar))
	str := make([]byte, 0, len(reference)+len(read))
	str = append(str, reference[:indexOnRef]...)

	var indelCount int
	var altIdx int32
	refIdx := indexOnRef
	refLength := int32(len(reference))
	for _, ce := range cigar {
		switch ce.Operation {
		case 'D':
			refIdx += ce.Length
			indelCount++
			elements = append(elements, ce)
		case 'M', '=', 'X', 'N':
			if ce.Operation != 'N' {
				altIdx += ce.Length
			}
			if refLength < refIdx+ce.Length {
				return nil
			}
			str = append(str, reference[refIdx:refIdx+ce.Length]...)
			refIdx += ce.Length
			elements = append(elements, sam.CigarOperation{Length: ce.Length, Operation: 'M'})
		case 'I':
			if int(altIdx+ce.Length) > len(read) {
				return nil
			}
			for _, base := range read[altIdx : altIdx+ce.Length] {
				if !isRegularBase(base) {
					return nil
				}
				str = append(str, toUpper(base))
			}
			altIdx += ce.Length
			indelCount++
			elements = append(elements, ce)
		case 'S':
			altIdx += ce.Length
		}
	}
	if indelCount != 1 || refLength < refIdx {
		return nil
	}
	str = append(str, reference[refIdx:]...)
	return &consensus{str: str, cigar: mergeCigar(elements), positionOnReference: indexOnRef}
}

// consensusBuilder proposes consensuses for one reference window.
type consensusBuilder struct {
	config    *RealignerConfig
	random    *internal.Rand
	reference []byte
	// leftmostIndex is the 1-based position of reference[0].
	leftmostIndex int32
}

func (builder *consensusBuilder) addKnownIndels(set *consensusSet, knownIndels []*vcf.Variant) {
	for _, variant := range knownIndels {
		set.add(newKnownIndelConsensus(variant, builder.reference, builder.leftmostIndex))
	}
}

// addFromReads aligns reads against the reference window and adds the
// resulting consensuses. When there are too many reads, a random
// sample is aligned instead, until enough consensuses are found.
func (builder *consensusBuilder) addFromReads(set *consensusSet, reads []*alignedRead) {
	maxReads := builder.config.MaxReadsForConsensuses
	if len(reads) <= maxReads {
		for _, read := range reads {
			builder.align(set, read)
		}
		return
	}
	candidates := append([]*alignedRead(nil), reads...)
	for readsSeen := 0; readsSeen < maxReads && set.len() < builder.config.MaxConsensuses; readsSeen++ {
		index := builder.random.Int31n(int32(len(candidates)))
		read := candidates[index]
		candidates = append(candidates[:index], candidates[index+1:]...)
		builder.align(set, read)
	}
}

func (builder *consensusBuilder) align(set *consensusSet, read *alignedRead) {
	if builder.config.CheckEarly {
		for _, c := range set.list {
			if _, score := findBestOffset(c.str, read, builder.leftmostIndex); score == 0 {
				return
			}
		}
	}
	offset, cigar := PairwiseAlign(builder.reference, read.bases(), ConsensusSWParameters)
	set.add(newReadConsensus(offset, cigar, builder.reference, read.bases()))
}
