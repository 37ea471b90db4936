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
	"fmt"
	"math"
)

// TrellisConfig holds the error model of a HaplotypeTrellis.
type TrellisConfig struct {
	// MaxDeletionLength is the longest deletion a single read base can
	// jump over.
	MaxDeletionLength int

	InsertionStartProbability, InsertionEndProbability float64

	// DeletionProbability is the probability that a read base is followed
	// by a deletion of any length.
	DeletionProbability float64
}

// DefaultTrellisConfig returns the default trellis error model.
func DefaultTrellisConfig() TrellisConfig {
	return TrellisConfig{
		MaxDeletionLength:         3,
		InsertionStartProbability: 1e-3,
		InsertionEndProbability:   0.5,
		DeletionProbability:       1e-3,
	}
}

const maxTrellisQual = 60

var trellisMatchCost, trellisMismatchCost [maxTrellisQual + 1]float64

func init() {
	for q := 1; q <= maxTrellisQual; q++ {
		trellisMatchCost[q] = probabilityToQuality(1 - qualityToErrorProbability(float64(q)))
		trellisMismatchCost[q] = float64(q)
	}
}

func probabilityToQuality(p float64) float64 {
	return -10 * log10(p)
}

// A HaplotypeTrellis aligns reads to haplotypes with a Viterbi search
// over haplotype positions. Each read base either advances one position,
// skips up to MaxDeletionLength-1 positions, or stays in place as an
// insertion. Two extra states before and after the haplotype absorb read
// bases that hang over its ends; such a base costs as much as a mismatch
// at its quality. Costs are phred scaled and minimized.
type HaplotypeTrellis struct {
	config TrellisConfig

	// deletionCosts[k] is the cost of advancing k positions
	deletionCosts []float64

	insertionStart, oneMinusInsertionStart, oneMinusInsertionEnd float64
}

// NewHaplotypeTrellis returns a trellis for the given error model.
func NewHaplotypeTrellis(config TrellisConfig) (*HaplotypeTrellis, error) {
	if config.MaxDeletionLength < 1 {
		return nil, fmt.Errorf("invalid maximum deletion length %v", config.MaxDeletionLength)
	}
	for _, p := range []float64{config.InsertionStartProbability, config.InsertionEndProbability, config.DeletionProbability} {
		if !(p > 0 && p < 1) {
			return nil, fmt.Errorf("invalid trellis probability %v", p)
		}
	}
	costs := make([]float64, config.MaxDeletionLength+1)
	costs[0] = math.Inf(1)
	costs[1] = probabilityToQuality(1 - config.DeletionProbability)
	var sum float64
	prob := 1.0
	for k := 2; k <= config.MaxDeletionLength; k++ {
		costs[k] = prob
		sum += prob
		prob *= math.Exp(-1)
	}
	for k := 2; k <= config.MaxDeletionLength; k++ {
		costs[k] = probabilityToQuality(config.DeletionProbability * costs[k] / sum)
	}
	return &HaplotypeTrellis{
		config:                 config,
		deletionCosts:          costs,
		insertionStart:         probabilityToQuality(config.InsertionStartProbability),
		oneMinusInsertionStart: probabilityToQuality(1 - config.InsertionStartProbability),
		oneMinusInsertionEnd:   probabilityToQuality(1 - config.InsertionEndProbability),
	}, nil
}

func clampTrellisQual(qual byte) byte {
	if qual < 1 {
		return 1
	} else if qual > maxTrellisQual {
		return maxTrellisQual
	}
	return qual
}

func trellisBaseCost(readBase, haplotypeBase, qual byte) float64 {
	qual = clampTrellisQual(qual)
	if readBase == haplotypeBase {
		return trellisMatchCost[qual]
	}
	return trellisMismatchCost[qual]
}

func trellisOverhangCost(qual byte) float64 {
	return trellisMismatchCost[clampTrellisQual(qual)]
}

// Align returns the phred-scaled cost of the best path of the read
// through the haplotype, and for every read base the state it is
// aligned to: 0 before the haplotype, i for haplotype[i-1], and
// len(haplotype)+1 after the haplotype.
func (trellis *HaplotypeTrellis) Align(haplotype, read, quals []byte) (float64, []int) {
	if len(read) == 0 {
		return 0, nil
	}
	nofStates := int32(len(haplotype) + 2)
	left, right := int32(0), nofStates-1
	readLength := int32(len(read))

	var metrics float64Matrix
	var back int32Matrix
	metrics.ensureSize(readLength+1, nofStates)
	back.ensureSize(readLength+1, nofStates)

	maxJump := int32(trellis.config.MaxDeletionLength)
	for r := int32(0); r < readLength; r++ {
		previous, current := metrics.rowView(r), metrics.rowView(r+1)
		backRow := back.rowView(r + 1)
		readBase, qual := read[r], quals[r]

		overhangCost := trellisOverhangCost(qual)
		current[left] = previous[left] + overhangCost
		backRow[left] = left

		for x := left + 1; x <= right; x++ {
			baseCost := overhangCost
			if x < right {
				baseCost = trellisBaseCost(readBase, haplotype[x-1], qual)
			}

			best, bestIndex := math.Inf(1), int32(-1)
			for old := x - 1; old >= x-maxJump && old >= 0; old-- {
				metric := previous[old] + trellis.deletionCosts[x-old] + baseCost
				if old != x-1 {
					metric += trellis.oneMinusInsertionStart
				}
				if metric < best {
					best, bestIndex = metric, old
				}
			}
			var stay float64
			if x < right {
				stay = previous[x] + baseCost + trellis.insertionStart + trellis.oneMinusInsertionEnd
			} else {
				stay = previous[x] + overhangCost
			}
			if stay < best {
				best, bestIndex = stay, x
			}
			current[x] = best
			backRow[x] = bestIndex
		}
	}

	last := metrics.rowView(readLength)
	bestState := int32(0)
	for x := int32(1); x < nofStates; x++ {
		if last[x] < last[bestState] {
			bestState = x
		}
	}
	path := make([]int, readLength)
	path[readLength-1] = int(bestState)
	for k := readLength - 2; k >= 0; k-- {
		path[k] = int(back.at(k+2, int32(path[k+1])))
	}
	return last[bestState], path
}
