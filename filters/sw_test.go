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

func cigar(t *testing.T, s string) []sam.CigarOperation {
	c, err := sam.ScanCigarString(s)
	require.NoError(t, err)
	return c
}

func TestPairwiseAlignExactMatch(t *testing.T) {
	offset, c := PairwiseAlign([]byte("GGGGGACGTACGTCCCCC"), []byte("ACGTACGT"), ConsensusSWParameters)
	assert.Equal(t, int32(5), offset)
	assert.Equal(t, "8M", sam.CigarString(c))
}

func TestPairwiseAlignDeletion(t *testing.T) {
	offset, c := PairwiseAlign([]byte("AAAAAACCCTTCCCAAAAAA"), []byte("AAAAAACCCCCCAAAAAA"), ConsensusSWParameters)
	assert.Equal(t, int32(0), offset)
	assert.Equal(t, "9M2D9M", sam.CigarString(c))
}

func TestPairwiseAlignEmpty(t *testing.T) {
	offset, c := PairwiseAlign(nil, []byte("ACGT"), ConsensusSWParameters)
	assert.Equal(t, int32(0), offset)
	assert.Nil(t, c)
}

func TestSequencePeriod(t *testing.T) {
	assert.Equal(t, 2, sequencePeriod([]byte("ATATAT"), 1))
	assert.Equal(t, 1, sequencePeriod([]byte("TTT"), 1))
	assert.Equal(t, 3, sequencePeriod([]byte("ACG"), 1))
	assert.Equal(t, 4, sequencePeriod([]byte("ATATAT"), 3))
}

func TestLeftAlignIndel(t *testing.T) {
	tests := []struct {
		name, reference, read, cigar, expected string
		negativeShift                          bool
	}{
		{"deletion in dinucleotide repeat", "GGGATATATCCC", "GGGATATCCC", "7M2D3M", "3M2D7M", false},
		{"insertion in dinucleotide repeat", "GGATATCC", "GGATATATCC", "6M2I2M", "2M2I6M", false},
		{"deletion without repeat", "ACGTACGT", "ACGACGT", "3M1D4M", "3M1D4M", false},
		{"deletion reaching the first base", "ATATATCC", "ATATCC", "2M2D4M", "2M2D4M", false},
		{"deletion reaching the first base with negative shifts", "ATATATCC", "ATATCC", "2M2D4M", "2M2D4M", true},
		{"insertion reaching the first base", "AACC", "AAACC", "2M1I2M", "1I4M", false},
		{"two indels", "GGGATATATCCC", "GGGATATCC", "7M2D1M1D1M", "7M2D1M1D1M", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := LeftAlignIndel(cigar(t, test.cigar), []byte(test.reference), []byte(test.read), 0, 0, test.negativeShift)
			assert.Equal(t, test.expected, sam.CigarString(result))
		})
	}
}

func TestLeftAlignIndelIsIdempotent(t *testing.T) {
	reference, read := []byte("GGGATATATCCC"), []byte("GGGATATCCC")
	once := LeftAlignIndel(cigar(t, "7M2D3M"), reference, read, 0, 0, false)
	twice := LeftAlignIndel(once, reference, read, 0, 0, false)
	assert.Equal(t, sam.CigarString(once), sam.CigarString(twice))
}

func TestLeftAlignIndelHomopolymerKeepsLeadingBase(t *testing.T) {
	// the deletion can move to the very first base, but must keep one M
	result := LeftAlignIndel(cigar(t, "3M1D2M"), []byte("AAAACC"), []byte("AAACC"), 0, 0, true)
	assert.Equal(t, "1M1D4M", sam.CigarString(result))
	result = LeftAlignIndel(cigar(t, "3M1D2M"), []byte("AAAACC"), []byte("AAACC"), 0, 0, false)
	assert.Equal(t, "1M1D4M", sam.CigarString(result))
	result = LeftAlignIndel(cigar(t, "7M1D2M"), []byte("AAAAAAAACC"), []byte("AAAAAAACC"), 0, 0, false)
	assert.Equal(t, "1M1D8M", sam.CigarString(result))
}

func TestLeftAlignIndelNegativeShift(t *testing.T) {
	// the homopolymer continues before the start of the cigar
	reference, read := []byte("AAAAAACC"), []byte("AAACC")
	result := LeftAlignIndel(cigar(t, "2M1D3M"), reference, read, 2, 0, false)
	assert.Equal(t, "2M1D3M", sam.CigarString(result))
	result = LeftAlignIndel(cigar(t, "2M1D3M"), reference, read, 2, 0, true)
	assert.Equal(t, "1M1D4M", sam.CigarString(result))
}

func TestMergeCigar(t *testing.T) {
	c := []sam.CigarOperation{{Length: 2, Operation: 'M'}, {Length: 0, Operation: 'I'}, {Length: 3, Operation: 'M'}, {Length: 1, Operation: 'D'}, {Length: 1, Operation: 'D'}, {Length: 1, Operation: 'M'}}
	assert.Equal(t, "5M2D1M", sam.CigarString(mergeCigar(c)))
}
