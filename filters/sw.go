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

	"github.com/exascience/elrealign/sam"
)

// SWParameters are the scores of a Smith-Waterman alignment. Penalties
// are negative.
type SWParameters struct {
	Match, Mismatch, GapOpen, GapExtend float64
}

// ConsensusSWParameters are the scores used for aligning reads against
// the reference window when searching for consensus indels.
var ConsensusSWParameters = SWParameters{Match: 30, Mismatch: -10, GapOpen: -10, GapExtend: -2}

type float64Matrix struct {
	cols  int32
	array []float64
}

func (m *float64Matrix) ensureSize(rows, cols int32) {
	m.cols = cols
	totalSize := rows * cols
	if totalSize <= int32(cap(m.array)) {
		m.array = m.array[:totalSize]
		for i := int32(0); i < totalSize; i++ {
			m.array[i] = 0
		}
	} else {
		m.array = make([]float64, totalSize)
	}
}

func (m *float64Matrix) at(row, col int32) float64 {
	return m.array[row*m.cols+col]
}

func (m *float64Matrix) rowView(row int32) []float64 {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}

type int32Matrix struct {
	cols  int32
	array []int32
}

func (m *int32Matrix) ensureSize(rows, cols int32) {
	m.cols = cols
	totalSize := rows * cols
	if totalSize <= int32(cap(m.array)) {
		m.array = m.array[:totalSize]
		for i := int32(0); i < totalSize; i++ {
			m.array[i] = 0
		}
	} else {
		m.array = make([]int32, totalSize)
	}
}

func (m *int32Matrix) at(row, col int32) int32 {
	return m.array[row*m.cols+col]
}

func (m *int32Matrix) rowView(row int32) []int32 {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}

type smithWatermanMatrices struct {
	sw                 float64Matrix
	backtrack          int32Matrix
	bestGapV, bestGapH []float64
	gapSizeV, gapSizeH []int32
}

var smithWatermanMatricesPool = sync.Pool{New: func() interface{} { return &smithWatermanMatrices{} }}

func getSmithWatermanMatrices() *smithWatermanMatrices {
	return smithWatermanMatricesPool.Get().(*smithWatermanMatrices)
}

func putSmithWatermanMatrices(sw *smithWatermanMatrices) {
	smithWatermanMatricesPool.Put(sw)
}

func ensureFloat64Vector(v []float64, sz int32, initValue float64) (result []float64) {
	if sz <= int32(cap(v)) {
		result = v[:sz]
	} else {
		result = make([]float64, sz)
	}
	for i := int32(0); i < sz; i++ {
		result[i] = initValue
	}
	return
}

func ensureInt32Vector(v []int32, sz, initValue int32) (result []int32) {
	if sz <= int32(cap(v)) {
		result = v[:sz]
	} else {
		result = make([]int32, sz)
	}
	for i := int32(0); i < sz; i++ {
		result[i] = initValue
	}
	return
}

// extendGap extends the best gap ending in a cell by one base, or opens
// a new gap after score when that is better.
func extendGap(best *float64, size *int32, score float64, p SWParameters) {
	*best += p.GapExtend
	if open := score + p.GapOpen; open > *best {
		*best, *size = open, 1
	} else {
		*size++
	}
}

// PairwiseAlign computes a local alignment of query against reference
// with affine gap costs. It returns the 0-based offset of the first
// aligned query base on the reference together with the cigar of the
// query. Query bases hanging over either end of the alignment are
// soft clipped.
func PairwiseAlign(reference, query []byte, p SWParameters) (int32, []sam.CigarOperation) {
	refLength := int32(len(reference))
	altLength := int32(len(query))
	if refLength == 0 || altLength == 0 {
		return 0, nil
	}

	sw := getSmithWatermanMatrices()
	defer putSmithWatermanMatrices(sw)

	nrow := refLength + 1
	ncol := altLength + 1
	sw.sw.ensureSize(nrow, ncol)
	sw.backtrack.ensureSize(nrow, ncol)

	const (
		matrixMinCutoff = -1.0e100
		lowInitValue    = -1.0e40
	)

	sw.bestGapV = ensureFloat64Vector(sw.bestGapV, ncol+1, lowInitValue)
	sw.gapSizeV = ensureInt32Vector(sw.gapSizeV, ncol+1, 0)
	sw.bestGapH = ensureFloat64Vector(sw.bestGapH, nrow+1, lowInitValue)
	sw.gapSizeH = ensureInt32Vector(sw.gapSizeH, nrow+1, 0)

	curRow := sw.sw.rowView(0)

	for i := int32(1); i < nrow; i++ {
		aBase := reference[i-1]
		lastRow := curRow
		curRow = sw.sw.rowView(i)
		curBacktrackRow := sw.backtrack.rowView(i)

		for j := int32(1); j < ncol; j++ {
			stepDiag := lastRow[j-1]
			if aBase == query[j-1] {
				stepDiag += p.Match
			} else {
				stepDiag += p.Mismatch
			}

			extendGap(&sw.bestGapV[j], &sw.gapSizeV[j], lastRow[j], p)
			extendGap(&sw.bestGapH[i], &sw.gapSizeH[i], curRow[j-1], p)
			stepDown, stepRight := sw.bestGapV[j], sw.bestGapH[i]

			// a gap is only taken when it is strictly better than the diagonal
			score, backtrack := stepDiag, int32(0)
			if stepDown > stepRight {
				if stepDown > stepDiag {
					score, backtrack = stepDown, sw.gapSizeV[j]
				}
			} else if stepRight > stepDiag {
				score, backtrack = stepRight, -sw.gapSizeH[i]
			}
			curRow[j] = math.Max(matrixMinCutoff, score)
			curBacktrackRow[j] = backtrack
		}
	}

	maxScore := math.Inf(-1)
	var segmentLength, p1 int32
	p2 := altLength

	for i := int32(1); i < nrow; i++ {
		if curScore := sw.sw.at(i, altLength); curScore >= maxScore {
			p1 = i
			maxScore = curScore
		}
	}
	bottomRow := sw.sw.rowView(refLength)
	for j := int32(1); j < ncol; j++ {
		if curScore := bottomRow[j]; curScore > maxScore || (curScore == maxScore && absInt32(refLength-j) < absInt32(p1-p2)) {
			p1 = refLength
			p2 = j
			maxScore = curScore
			segmentLength = altLength - j
		}
	}

	lce := make([]sam.CigarOperation, 0, 5)
	if segmentLength > 0 {
		lce = append(lce, sam.CigarOperation{Length: segmentLength, Operation: 'S'})
		segmentLength = 0
	}
	state := byte('M')
	for {
		stepLength := int32(1)
		btr := sw.backtrack.at(p1, p2)
		var newState byte
		if btr > 0 {
			newState = 'D'
			stepLength = btr
			p1 -= btr
		} else if btr < 0 {
			newState = 'I'
			stepLength = -btr
			p2 += btr
		} else {
			newState = 'M'
			p1--
			p2--
		}

		if newState == state {
			segmentLength += stepLength
		} else {
			lce = append(lce, sam.CigarOperation{Length: segmentLength, Operation: state})
			segmentLength = stepLength
			state = newState
		}

		if p1 <= 0 || p2 <= 0 {
			break
		}
	}

	lce = append(lce, sam.CigarOperation{Length: segmentLength, Operation: state})
	if p2 > 0 {
		lce = append(lce, sam.CigarOperation{Length: p2, Operation: 'S'})
	}

	for i, j := 0, len(lce)-1; i < j; i, j = i+1, j-1 {
		lce[i], lce[j] = lce[j], lce[i]
	}
	return p1, mergeCigar(lce)
}
