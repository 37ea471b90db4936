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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func uniformQuals(n int, qual byte) []byte {
	quals := make([]byte, n)
	for i := range quals {
		quals[i] = qual
	}
	return quals
}

func TestBaseProbabilities(t *testing.T) {
	assert.InDelta(t, math.Log10(0.9)-math.Log10(4), baseMatchLog10[10], 1e-9)
	assert.InDelta(t, math.Log10(0.1)-math.Log10(3)-math.Log10(4), baseMismatchLog10[10], 1e-9)
	assert.Equal(t, baseMatchLog10[1], baseLog10Probability('A', 'A', 0))
	assert.Equal(t, baseMismatchLog10[maxCachedQual], baseLog10Probability('A', 'C', 200))
}

func TestSoftMax(t *testing.T) {
	assert.InDelta(t, math.Log10(2), softMax(0, 0), 1e-12)
	assert.InDelta(t, math.Log10(0.1+0.01), softMax(-2, -1), 1e-12)
	assert.Equal(t, -3.0, softMax(math.Inf(-1), -3))
	assert.True(t, math.IsInf(softMax(math.Inf(-1), math.Inf(-1)), -1))
	assert.InDelta(t, math.Log10(3), softMax3(0, 0, 0), 1e-12)
}

func TestHomopolymerRunLengths(t *testing.T) {
	assert.Equal(t,
		[]int{0, 1, 1, 0, 0, 0, 5, 5, 5, 5, 5, 5, 0, 0, 0, 0, 0, 0},
		homopolymerRunLengths([]byte("AGGTGACCCCCCTGAGAG")))
	assert.Empty(t, homopolymerRunLengths(nil))
}

func TestGapProbabilities(t *testing.T) {
	hmm := NewPairHMM(DefaultPairHMMConfig())
	gop, gcp := hmm.gapProbabilities([]byte("ACCCCCCCCCCG"))
	assert.Equal(t, -4.5, gop[0])
	assert.Equal(t, -1.0, gcp[0])
	// a run of ten bases counts 9 neighbours
	assert.InDelta(t, -4.5+0.6, gop[1], 1e-9)
	assert.InDelta(t, -1.0, gcp[1], 1e-9)

	hmm = NewPairHMM(PairHMMConfig{GapOpenPenalty: 40, GapContinuationPenalty: 10})
	gop, _ = hmm.gapProbabilities([]byte("ACCCCCCCCCCG"))
	assert.Equal(t, -4.0, gop[1])
}

func TestGapTablesAreCapped(t *testing.T) {
	hmm := NewPairHMM(DefaultPairHMMConfig())
	assert.InDelta(t, -3.0, hmm.gapOpenTable[maxHrunGapIndex-1], 1e-9)
	assert.InDelta(t, -1.0, hmm.gapContTable[maxHrunGapIndex-1], 1e-9)
	for i := 1; i < maxHrunGapIndex; i++ {
		assert.True(t, hmm.gapOpenTable[i] >= hmm.gapOpenTable[i-1])
	}
}

func TestPairHMMPrefersMatchingHaplotype(t *testing.T) {
	read := []byte("ACGTTGCAAGTC")
	quals := uniformQuals(len(read), 30)
	for _, config := range []PairHMMConfig{
		DefaultPairHMMConfig(),
		{GapOpenPenalty: 45, GapContinuationPenalty: 10, Viterbi: true},
		{GapOpenPenalty: 45, GapContinuationPenalty: 10, NonAffine: true},
		{GapOpenPenalty: 45, GapContinuationPenalty: 10, NonAffine: true, Viterbi: true},
	} {
		hmm := NewPairHMM(config)
		same := hmm.ReadLikelihood([]byte("ACGTTGCAAGTC"), read, quals)
		mismatch := hmm.ReadLikelihood([]byte("ACGTTGGAAGTC"), read, quals)
		assert.True(t, same > mismatch, "%+v", config)
		assert.True(t, same < 0, "%+v", config)
	}
}

func TestPairHMMViterbiBoundsForward(t *testing.T) {
	haplotype := []byte("TTACGTAACGTCC")
	read := []byte("ACGTACGT")
	quals := uniformQuals(len(read), 20)
	for _, nonAffine := range []bool{false, true} {
		forward := NewPairHMM(PairHMMConfig{GapOpenPenalty: 45, GapContinuationPenalty: 10, NonAffine: nonAffine})
		viterbi := NewPairHMM(PairHMMConfig{GapOpenPenalty: 45, GapContinuationPenalty: 10, NonAffine: nonAffine, Viterbi: true})
		assert.True(t, viterbi.ReadLikelihood(haplotype, read, quals) <= forward.ReadLikelihood(haplotype, read, quals))
	}
}

func TestNonAffineSkipsHaplotypeFlanks(t *testing.T) {
	hmm := NewPairHMM(PairHMMConfig{GapOpenPenalty: 45, GapContinuationPenalty: 10, NonAffine: true, Viterbi: true})
	likelihood := hmm.ReadLikelihood([]byte("TTACGTTT"), []byte("ACG"), uniformQuals(3, 30))
	assert.InDelta(t, 3*baseMatchLog10[30], likelihood, 1e-9)
}

func TestAffineDeletion(t *testing.T) {
	hmm := NewPairHMM(DefaultPairHMMConfig())
	quals := uniformQuals(len(testRead), 30)
	withDeletion := hmm.ReadLikelihood([]byte(testReference), []byte(testRead), quals)
	exact := hmm.ReadLikelihood([]byte(testRead), []byte(testRead), quals)
	assert.True(t, exact > withDeletion)
	assert.False(t, math.IsInf(withDeletion, 0))
}
