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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elrealign/sam"
)

func newTestRead(t *testing.T, name string, pos int32, cigarString, seq string, qual byte) *sam.Alignment {
	aln := sam.NewAlignment()
	aln.QNAME = name
	aln.RNAME = "chr1"
	aln.REFID = 0
	aln.POS = pos
	aln.MAPQ = 60
	aln.CIGAR = cigar(t, cigarString)
	aln.RNEXT = "*"
	aln.SEQ = []byte(seq)
	aln.QUAL = make([]byte, len(seq))
	for i := range aln.QUAL {
		aln.QUAL[i] = qual
	}
	return aln
}

func TestMismatchQualitySumIgnoreCigar(t *testing.T) {
	read := newAlignedRead(newTestRead(t, "r", 1, "4M", "ACNT", 20))
	assert.Equal(t, 0, mismatchQualitySumIgnoreCigar(read, []byte("ACGT"), 0, 1000))
	assert.Equal(t, 40, mismatchQualitySumIgnoreCigar(read, []byte("AGGA"), 0, 1000))
	// bases off the window cost maxQual each
	assert.Equal(t, maxQual+20, mismatchQualitySumIgnoreCigar(read, []byte("CAGT"), -1, 1000))
	assert.Equal(t, 20, mismatchQualitySumIgnoreCigar(read, []byte("AGGA"), 0, 10))
}

func TestMismatchingQualities(t *testing.T) {
	aln := newTestRead(t, "r", 1, "2M1I2M", "ACTGT", 10)
	aln.QUAL[4] = 30
	assert.Equal(t, int64(30), mismatchingQualities(aln, []byte("ACGA"), 0))
}

func TestFindBestOffset(t *testing.T) {
	read := newAlignedRead(newTestRead(t, "r", 1, "4M", "CCGG", 20))
	offset, score := findBestOffset([]byte("AACCGGAA"), read, 1)
	assert.Equal(t, int32(2), offset)
	assert.Equal(t, 0, score)

	offset, score = findBestOffset([]byte("CCGAAAAA"), read, 1)
	assert.Equal(t, int32(0), offset)
	assert.Equal(t, 20, score)
}

func TestUpdateRead(t *testing.T) {
	altCigar := cigar(t, "9M2D9M")

	read := newAlignedRead(newTestRead(t, "spanning", 1, "18M", "AAAAAACCCCCCAAAAAA", 30))
	require.True(t, updateRead(altCigar, 0, 0, read, 1))
	assert.Equal(t, "9M2D9M", sam.CigarString(read.cigar()))
	assert.Equal(t, int32(1), read.alignmentStart())

	before := newAlignedRead(newTestRead(t, "before", 1, "5M", "AAAAA", 30))
	require.True(t, updateRead(altCigar, 0, 2, before, 1))
	assert.Nil(t, before.newCigar)
	assert.Equal(t, int32(3), before.alignmentStart())

	after := newAlignedRead(newTestRead(t, "after", 12, "5M", "CCAAA", 30))
	require.True(t, updateRead(altCigar, 0, 10, after, 1))
	assert.Nil(t, after.newCigar)
	assert.Equal(t, int32(12), after.alignmentStart())
}

func TestUpdateReadInsertion(t *testing.T) {
	altCigar := cigar(t, "5M2I10M")

	inside := newAlignedRead(newTestRead(t, "inside", 7, "8M", "ACGTACGT", 30))
	require.True(t, updateRead(altCigar, 0, 6, inside, 1))
	assert.Equal(t, "1I7M", sam.CigarString(inside.cigar()))
	assert.Equal(t, int32(6), inside.alignmentStart())

	ending := newAlignedRead(newTestRead(t, "ending", 1, "6M", "ACGTAC", 30))
	require.True(t, updateRead(altCigar, 0, 0, ending, 1))
	assert.Equal(t, "5M1I", sam.CigarString(ending.cigar()))
}

func TestUpdateReadRejectsBadConsensus(t *testing.T) {
	read := newAlignedRead(newTestRead(t, "r", 1, "4M", "ACGT", 30))
	assert.False(t, updateRead(cigar(t, "2D4M"), 0, 0, read, 1))
	assert.False(t, updateRead(cigar(t, "2M3M"), 0, 0, read, 1))
	assert.False(t, updateRead(cigar(t, "2I1D"), 0, 0, read, 1))
}

func TestFinalizeUpdate(t *testing.T) {
	aln := newTestRead(t, "r", 100, "18M", "AAAAAACCCCCCAAAAAA", 30)
	aln.TLEN = 200
	read := newAlignedRead(aln)
	read.setCigar(cigar(t, "9M2D9M"))
	read.setAlignmentStart(90)
	require.True(t, read.finalizeUpdate(200, true))

	assert.Equal(t, int32(90), aln.POS)
	assert.Equal(t, "9M2D9M", sam.CigarString(aln.CIGAR))
	assert.Equal(t, int32(210), aln.TLEN)
	oc, ok := aln.Tag(OriginalCigarTag)
	require.True(t, ok)
	assert.Equal(t, "18M", oc.Value)
	op, ok := aln.Tag(OriginalPositionTag)
	require.True(t, ok)
	assert.Equal(t, "100", op.Value)
}

func TestFinalizeUpdateNegativeInsertSize(t *testing.T) {
	aln := newTestRead(t, "r", 100, "18M", "AAAAAACCCCCCAAAAAA", 30)
	aln.TLEN = -18
	read := newAlignedRead(aln)
	read.setCigar(cigar(t, "9M2D9M"))
	require.True(t, read.finalizeUpdate(200, false))

	// the read defines both ends of the fragment
	assert.Equal(t, int32(-20), aln.TLEN)
	_, ok := aln.Tag(OriginalCigarTag)
	assert.False(t, ok)
}

func TestFinalizeUpdateRefusesLargeMoves(t *testing.T) {
	aln := newTestRead(t, "r", 100, "4M", "ACGT", 30)
	read := newAlignedRead(aln)
	read.setCigar(cigar(t, "2M1D2M"))
	read.setAlignmentStart(10)
	assert.False(t, read.finalizeUpdate(50, true))
	assert.Equal(t, int32(100), aln.POS)
	assert.Equal(t, "4M", sam.CigarString(aln.CIGAR))
	assert.Empty(t, aln.TAGS)
}

func TestFinalizeUpdateWithoutChanges(t *testing.T) {
	aln := newTestRead(t, "r", 100, "4M", "ACGT", 30)
	read := newAlignedRead(aln)
	read.setCigar(cigar(t, "4M"))
	assert.False(t, read.finalizeUpdate(50, true))
}

func TestNMTag(t *testing.T) {
	aln := newTestRead(t, "r", 2, "3M1I2M2D2M", "CGTTAAGT", 30)
	// reference from position 1: ACGTAACCGT
	assert.Equal(t, int32(3), nmTag(aln, []byte("ACGTAACCGT"), 1))
	aln.SEQ[0] = 'a'
	assert.Equal(t, int32(4), nmTag(aln, []byte("ACGTAACCGT"), 1))
}

func TestUpdateMappingQuality(t *testing.T) {
	aln := sam.NewAlignment()
	aln.MAPQ = 60
	updateMappingQuality(aln, 96)
	assert.Equal(t, byte(70), aln.MAPQ)

	aln.MAPQ = 250
	updateMappingQuality(aln, 96)
	assert.Equal(t, byte(255), aln.MAPQ)

	aln.MAPQ = 255
	updateMappingQuality(aln, 20)
	assert.Equal(t, byte(255), aln.MAPQ)
}

func TestAlternateReducesEntropy(t *testing.T) {
	reference := []byte("AAAAAACCCTTCCCAAAAAA")
	read := newAlignedRead(newTestRead(t, "r", 1, "18M", "AAAAAACCCCCCAAAAAA", 30))
	read.setCigar(cigar(t, "9M2D9M"))
	reduces, snps := alternateReducesEntropy([]*alignedRead{read}, reference, 1, "chr1", 0.15)
	assert.True(t, reduces)
	assert.Equal(t, []string{"chr1:10 NOT_SNP", "chr1:11 NOT_SNP", "chr1:13 NOT_SNP", "chr1:14 NOT_SNP"}, snps)
}

func TestAlternateIncreasesEntropy(t *testing.T) {
	reference := []byte("ACGTACGTAC")
	aln := newTestRead(t, "r", 1, "10M", "ACGTTCGTAC", 30)
	aln.QUAL[3] = 20
	read := newAlignedRead(aln)
	read.setAlignmentStart(2)
	read.setCigar(cigar(t, "9M1S"))
	reduces, snps := alternateReducesEntropy([]*alignedRead{read}, reference, 1, "chr1", 0.15)
	assert.False(t, reduces)
	assert.Equal(t, []string{"chr1:5 SAME_SNP"}, snps)
}
