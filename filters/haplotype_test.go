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
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/elrealign/fasta"
	"github.com/exascience/elrealign/intervals"
	"github.com/exascience/elrealign/vcf"
)

var testDeletion = &vcf.Variant{Chrom: "chr1", Pos: 9, Ref: "CTT", Alt: []string{"C"}}

func TestMakeHaplotypes(t *testing.T) {
	haplotypes := MakeHaplotypes([]byte(testReference), 1, testDeletion)
	require.Len(t, haplotypes, 2)
	assert.True(t, haplotypes[0].IsRef)
	assert.Equal(t, testReference, string(haplotypes[0].Bases))
	assert.False(t, haplotypes[1].IsRef)
	assert.Equal(t, testRead, string(haplotypes[1].Bases))
	assert.Equal(t, int32(1), haplotypes[1].Start)

	snp := &vcf.Variant{Chrom: "chr1", Pos: 9, Ref: "C", Alt: []string{"G"}}
	assert.Len(t, MakeHaplotypes([]byte(testReference), 1, snp), 1)
}

func TestLikelihoodReadTrimming(t *testing.T) {
	aln := newTestRead(t, "r", 100, "1S7M", "ACGTACGT", 30)
	copy(aln.QUAL, []byte{30, 5, 30, 30, 30, 30, 30, 8})
	read, ok := newLikelihoodRead(aln)
	require.True(t, ok)
	assert.Equal(t, "GTACG", string(read.bases))
	assert.Equal(t, int32(101), read.start)
	assert.Equal(t, int32(105), read.end)

	aln = newTestRead(t, "r", 100, "8M", "ACGTACGT", 9)
	_, ok = newLikelihoodRead(aln)
	assert.False(t, ok)

	aln = newTestRead(t, "r", 100, "4S4S", "ACGTACGT", 30)
	_, ok = newLikelihoodRead(aln)
	assert.False(t, ok)
}

func TestHaplotypeWindow(t *testing.T) {
	haplotype := &Haplotype{Bases: []byte("AAAAACCCCCGGGGGTTTTT"), Start: 101}
	read := likelihoodRead{bases: []byte("CCGG"), start: 109, end: 112}
	assert.Equal(t, "ACCCCCGGGGGT", string(read.haplotypeWindow(haplotype, 1)))
	assert.Equal(t, "ACCCCCGGGGGT", string(read.haplotypeWindow(haplotype, -1)))
	read = likelihoodRead{bases: []byte("AAAA"), start: 95, end: 98}
	assert.Equal(t, "AAAA", string(read.haplotypeWindow(haplotype, 0)))
}

func TestReadHaplotypeLikelihoods(t *testing.T) {
	reads := deletionReads(t, 3, 30)
	reads = append(reads, newTestRead(t, "lowqual", 1, "18M", testRead, 2))
	haplotypes := MakeHaplotypes([]byte(testReference), 1, testDeletion)
	likelihoods := ReadHaplotypeLikelihoods(reads, haplotypes, -2, NewPairHMM(DefaultPairHMMConfig()))
	require.Len(t, likelihoods, 4)
	for _, l := range likelihoods[:3] {
		assert.True(t, l[1] > l[0])
	}
	assert.Equal(t, []float64{0, 0}, likelihoods[3])
}

func TestDiploidHaplotypeLikelihoods(t *testing.T) {
	diploid := DiploidHaplotypeLikelihoods([][]float64{{-1, -3}, {-2, -2}, {math.Inf(-1), -1}}, 2)
	assert.InDelta(t, -3, diploid[0][0], 1e-9)
	assert.InDelta(t, math.Log10(0.1+0.001)-math.Log10(2)-2, diploid[0][1], 1e-9)
	assert.InDelta(t, -6, diploid[1][1], 1e-9)
	assert.Equal(t, 0.0, diploid[1][0])
}

func TestGenotypeLikelihoods(t *testing.T) {
	assert.Equal(t, []float64{-0.5, 0, -2.5}, GenotypeLikelihoods([][]float64{{-3, -2.5}, {0, -5}}))
}

func TestIndelLikelihoods(t *testing.T) {
	var out bytes.Buffer
	knownIndels := vcf.NewIndelIndex([]*vcf.Variant{testDeletion})
	targets := []intervals.Locus{testLocus(1, 20), testLocus(500, 600)}
	l, err := NewIndelLikelihoods(fasta.Fasta{"chr1": []byte(testReference)}, targets, knownIndels, NewPairHMM(DefaultPairHMMConfig()), DefaultHaplotypeSize, &out)
	require.NoError(t, err)

	reads := deletionReads(t, 4, 30)
	unmapped := newTestRead(t, "mapq0", 1, "18M", testRead, 30)
	unmapped.MAPQ = 0
	reads = append(reads, unmapped, newTestRead(t, "far", 300, "18M", testRead, 30))
	for _, aln := range reads {
		require.NoError(t, l.Add(aln))
	}
	require.NoError(t, l.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 6)
	assert.Equal(t, []string{"chr1", "9", "CTT", "C", "4"}, fields[:5])
	gls := strings.Split(fields[5], ",")
	require.Len(t, gls, 3)
	assert.Equal(t, "0.00", gls[2])
	assert.True(t, strings.HasPrefix(gls[0], "-"))
}

func TestNewIndelLikelihoodsRejectsSmallHaplotypes(t *testing.T) {
	_, err := NewIndelLikelihoods(fasta.Fasta{}, nil, nil, NewPairHMM(DefaultPairHMMConfig()), 1, &bytes.Buffer{})
	assert.Error(t, err)
}
