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

package vcf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVcf = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
chr1	100	del1	ACT	A	.	PASS	.
chr1	150	snp1	A	G	.	PASS	.
chr1	200	ins1	T	TGG	.	PASS	.
chr1	300	cpx	AC	GT	.	PASS	.
chr2	50	del2	GA	G,GAA	.	PASS	.
chr2	60	sym	G	<DEL>	.	PASS	.
`

func TestParseVariant(t *testing.T) {
	variant, err := ParseVariant("chr1\t100\trs1\tACT\tA,AC")
	require.NoError(t, err)
	assert.Equal(t, &Variant{Chrom: "chr1", Pos: 100, ID: "rs1", Ref: "ACT", Alt: []string{"A", "AC"}}, variant)
	assert.Equal(t, int32(102), variant.End())

	noAlt, err := ParseVariant("chr1\t7\t.\tA\t.")
	require.NoError(t, err)
	assert.Empty(t, noAlt.Alt)
	assert.False(t, noAlt.IsIndel())

	_, err = ParseVariant("chr1\tx\t.\tA\tC")
	assert.Error(t, err)
	_, err = ParseVariant("chr1\t1")
	assert.Error(t, err)
}

func TestIndelClassification(t *testing.T) {
	variants, err := ReadVariants(strings.NewReader(testVcf))
	require.NoError(t, err)
	require.Len(t, variants, 6)

	kinds := make(map[string]string)
	for _, variant := range variants {
		switch {
		case variant.IsSimpleDeletion():
			kinds[variant.ID] = "D"
		case variant.IsSimpleInsertion():
			kinds[variant.ID] = "I"
		default:
			kinds[variant.ID] = "-"
		}
	}
	assert.Equal(t, map[string]string{
		"del1": "D", "snp1": "-", "ins1": "I", "cpx": "-", "del2": "D", "sym": "-",
	}, kinds)
}

func TestIndelIndexOverlapping(t *testing.T) {
	variants, err := ReadVariants(strings.NewReader(testVcf))
	require.NoError(t, err)
	index := NewIndelIndex(variants)
	assert.Equal(t, 3, index.Len())

	ids := func(variants []*Variant) (result []string) {
		for _, variant := range variants {
			result = append(result, variant.ID)
		}
		return
	}
	assert.Equal(t, []string{"del1"}, ids(index.Overlapping("chr1", 102, 150)))
	assert.Nil(t, index.Overlapping("chr1", 103, 199))
	assert.Equal(t, []string{"del1", "ins1"}, ids(index.Overlapping("chr1", 1, 1000)))
	assert.Equal(t, []string{"del2"}, ids(index.Overlapping("chr2", 51, 51)))
	assert.Nil(t, index.Overlapping("chr3", 1, 1000))

	var empty *IndelIndex
	assert.Nil(t, empty.Overlapping("chr1", 1, 1000))
	assert.Equal(t, 0, empty.Len())
}
