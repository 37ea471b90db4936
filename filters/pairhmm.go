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
	"sync"
)

const maxCachedQual = 127

// Per quality score, the log10 probability that a read base matches or
// mismatches a haplotype base, with a uniform prior over the four bases.
var baseMatchLog10, baseMismatchLog10 [maxCachedQual + 1]float64

var (
	log10Four  = log10(4)
	log10Three = log10(3)
	log10Half  = -log10(2)
)

func init() {
	for q := 1; q <= maxCachedQual; q++ {
		errorProbability := qualityToErrorProbability(float64(q))
		baseMatchLog10[q] = log10(1-errorProbability) - log10Four
		baseMismatchLog10[q] = log10(errorProbability) - log10Three - log10Four
	}
}

func qualityToErrorProbability(phred float64) float64 {
	return math.Pow(10, phred/-10.0)
}

func cachedQual(qual byte) byte {
	switch {
	case qual < 1:
		return 1
	case qual > maxCachedQual:
		return maxCachedQual
	default:
		return qual
	}
}

func baseLog10Probability(readBase, haplotypeBase, qual byte) float64 {
	if readBase == haplotypeBase {
		return baseMatchLog10[cachedQual(qual)]
	}
	return baseMismatchLog10[cachedQual(qual)]
}

// softMax returns log10(10^a + 10^b) without leaving the log domain.
func softMax(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(b, -1) {
		return a
	}
	return a + log10(1+math.Pow(10, b-a))
}

func softMax3(a, b, c float64) float64 {
	return softMax(softMax(a, b), c)
}

func max3(a, b, c float64) float64 {
	return math.Max(math.Max(a, b), c)
}

// Homopolymer runs from this length on lower the gap penalties, one
// phred unit per base, up to maxHrunGapIndex.
const (
	startHrunGapIndex  = 4
	maxHrunGapIndex    = 20
	minGapOpenPenalty  = 30.0
	minGapContPenalty  = 10.0
	gapPenaltyHrunStep = 1.0
)

// PairHMMConfig holds the parameters of a PairHMM. Penalties are phred
// scaled.
type PairHMMConfig struct {
	GapOpenPenalty         float64
	GapContinuationPenalty float64
	// NonAffine selects the single-matrix model with linear gap costs.
	NonAffine bool
	// Viterbi scores the most probable alignment instead of summing
	// over all alignments.
	Viterbi bool
	// ContextDependentGaps lowers the gap penalties inside
	// homopolymer runs of the haplotype.
	ContextDependentGaps bool
}

// DefaultPairHMMConfig returns the default pair-HMM parameters.
func DefaultPairHMMConfig() PairHMMConfig {
	return PairHMMConfig{
		GapOpenPenalty:         45,
		GapContinuationPenalty: 10,
		ContextDependentGaps:   true,
	}
}

// A PairHMM computes log10 likelihoods of reads given haplotypes. Scores
// of the affine and non-affine models are not comparable with each
// other.
type PairHMM struct {
	config                     PairHMMConfig
	gapOpenLog10, gapContLog10 float64
	gapOpenTable, gapContTable [maxHrunGapIndex]float64
}

// NewPairHMM creates a PairHMM for the given parameters.
func NewPairHMM(config PairHMMConfig) *PairHMM {
	hmm := &PairHMM{
		config:       config,
		gapOpenLog10: -config.GapOpenPenalty / 10,
		gapContLog10: -config.GapContinuationPenalty / 10,
	}
	gop, gcp := hmm.gapOpenLog10, hmm.gapContLog10
	for i := 0; i < startHrunGapIndex; i++ {
		hmm.gapOpenTable[i], hmm.gapContTable[i] = gop, gcp
	}
	const step = gapPenaltyHrunStep / 10
	maxGOP, maxGCP := -minGapOpenPenalty/10, -minGapContPenalty/10
	for i := startHrunGapIndex; i < maxHrunGapIndex; i++ {
		if gop += step; gop > maxGOP {
			gop = maxGOP
		}
		if gcp += step; gcp > maxGCP {
			gcp = maxGCP
		}
		hmm.gapOpenTable[i], hmm.gapContTable[i] = gop, gcp
	}
	return hmm
}

// homopolymerRunLengths returns, per position, the length of the
// homopolymer run around it, not counting the base itself. The first
// position is always 0.
//   AGGTGACCCCCCTGAGAG
//   011000555555000000
func homopolymerRunLengths(bases []byte) []int {
	hrun := make([]int, len(bases))
	if len(bases) == 0 {
		return hrun
	}
	forward := make([]int, len(bases))
	reverse := make([]int, len(bases))
	for i := 1; i < len(bases); i++ {
		if bases[i] == bases[i-1] {
			forward[i] = forward[i-1] + 1
		}
	}
	for i := len(bases) - 1; i > 0; i-- {
		if bases[i-1] == bases[i] {
			reverse[i-1] += reverse[i] + 1
		}
	}
	for i := 1; i < len(bases); i++ {
		hrun[i] = forward[i] + reverse[i]
	}
	return hrun
}

// gapProbabilities returns the log10 gap-open and gap-continuation
// probabilities for each position of the haplotype.
func (hmm *PairHMM) gapProbabilities(haplotype []byte) (gop, gcp []float64) {
	gop = make([]float64, len(haplotype))
	gcp = make([]float64, len(haplotype))
	if !hmm.config.ContextDependentGaps {
		for i := range haplotype {
			gop[i], gcp[i] = hmm.gapOpenLog10, hmm.gapContLog10
		}
		return gop, gcp
	}
	for i, hrun := range homopolymerRunLengths(haplotype) {
		if hrun >= maxHrunGapIndex {
			hrun = maxHrunGapIndex - 1
		}
		gop[i], gcp[i] = hmm.gapOpenTable[hrun], hmm.gapContTable[hrun]
	}
	return gop, gcp
}

type pairHMMMatrices struct {
	match, insertion, deletion float64Matrix
}

var pairHMMMatricesPool = sync.Pool{New: func() interface{} { return new(pairHMMMatrices) }}

func getPairHMMMatrices() *pairHMMMatrices {
	return pairHMMMatricesPool.Get().(*pairHMMMatrices)
}

func putPairHMMMatrices(p *pairHMMMatrices) {
	pairHMMMatricesPool.Put(p)
}

func (m *float64Matrix) fill(value float64) {
	for i := range m.array {
		m.array[i] = value
	}
}

func (hmm *PairHMM) combine(a, b, c float64) float64 {
	if hmm.config.Viterbi {
		return max3(a, b, c)
	}
	return softMax3(a, b, c)
}

// ReadLikelihood returns the log10 likelihood of the read bases with
// the given qualities under the haplotype.
func (hmm *PairHMM) ReadLikelihood(haplotype, read, quals []byte) float64 {
	if hmm.config.NonAffine {
		return hmm.nonAffineLikelihood(haplotype, read, quals)
	}
	gop, gcp := hmm.gapProbabilities(haplotype)
	return hmm.affineLikelihood(haplotype, read, quals, gop, gcp)
}

// nonAffineLikelihood aligns the whole read against any part of the
// haplotype with a linear gap cost. Skipping a haplotype prefix or
// suffix is free, read bases outside the haplotype are not.
func (hmm *PairHMM) nonAffineLikelihood(haplotype, read, quals []byte) float64 {
	rows, cols := int32(len(read)+1), int32(len(haplotype)+1)
	p := getPairHMMMatrices()
	defer putPairHMMMatrices(p)
	p.match.ensureSize(rows, cols)
	path := &p.match

	gap := hmm.gapOpenLog10
	for i := int32(1); i < rows; i++ {
		path.rowView(i)[0] = gap * float64(i)
	}
	for i := int32(1); i < rows; i++ {
		x, qual := read[i-1], quals[i-1]
		previous, current := path.rowView(i-1), path.rowView(i)
		for j := int32(1); j < cols; j++ {
			current[j] = hmm.combine(
				previous[j-1]+baseLog10Probability(x, haplotype[j-1], qual),
				previous[j]+gap,
				current[j-1]+gap,
			)
		}
	}

	last := path.rowView(rows - 1)
	best := math.Inf(-1)
	for j := int32(1); j < cols; j++ {
		if hmm.config.Viterbi {
			best = math.Max(best, last[j])
		} else {
			best = softMax(best, last[j])
		}
	}
	return best
}

// affineLikelihood runs the three-state pair-HMM. Gaps at either end
// of the read or haplotype cost log10(1/2) per base.
func (hmm *PairHMM) affineLikelihood(haplotype, read, quals []byte, gop, gcp []float64) float64 {
	rows, cols := int32(len(read)+1), int32(len(haplotype)+1)
	p := getPairHMMMatrices()
	defer putPairHMMMatrices(p)
	p.match.ensureSize(rows, cols)
	p.insertion.ensureSize(rows, cols)
	p.deletion.ensureSize(rows, cols)
	inf := math.Inf(-1)
	p.match.fill(inf)
	p.insertion.fill(inf)
	p.deletion.fill(inf)

	// insertion: read bases not on the haplotype, deletion: haplotype
	// bases not in the read
	for i := int32(1); i < rows; i++ {
		p.insertion.rowView(i)[0] = log10Half * float64(i)
	}
	deletion0 := p.deletion.rowView(0)
	for j := int32(1); j < cols; j++ {
		deletion0[j] = log10Half * float64(j)
	}
	p.match.rowView(0)[0] = log10Half
	p.insertion.rowView(0)[0] = 0
	deletion0[0] = 0

	for i := int32(1); i < rows; i++ {
		x, qual := read[i-1], quals[i-1]
		matchI1, matchI := p.match.rowView(i-1), p.match.rowView(i)
		insertionI1, insertionI := p.insertion.rowView(i-1), p.insertion.rowView(i)
		deletionI1, deletionI := p.deletion.rowView(i-1), p.deletion.rowView(i)
		lastRow := i == rows-1
		for j := int32(1); j < cols; j++ {
			pBase := baseLog10Probability(x, haplotype[j-1], qual)
			matchI[j] = hmm.combine(matchI1[j-1]+pBase, insertionI1[j-1]+pBase, deletionI1[j-1]+pBase)

			open, cont := gop[j-1], gcp[j-1]
			if j == cols-1 {
				open, cont = log10Half, log10Half
			}
			insertionI[j] = hmm.combine(matchI1[j]+open, insertionI1[j]+cont, inf)

			open, cont = gop[j-1], gcp[j-1]
			if lastRow {
				open, cont = log10Half, log10Half
			}
			deletionI[j] = hmm.combine(matchI[j-1]+open, deletionI[j-1]+cont, inf)
		}
	}

	i, j := rows-1, cols-1
	return hmm.combine(p.match.at(i, j), p.insertion.at(i, j), p.deletion.at(i, j))
}
