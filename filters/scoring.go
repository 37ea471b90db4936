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
	"strconv"

	"github.com/exascience/elrealign/sam"
)

// maxQual is charged for every read base that falls outside the
// reference window.
const maxQual = 99

// mismatchColumnCleanedFraction is the fraction by which the mismatch
// rate of a column must drop before it counts as cleaned.
const mismatchColumnCleanedFraction = 0.75

// mismatchQualitySumIgnoreCigar sums the qualities of the read bases
// that differ from refSeq when the read is laid out gaplessly from
// refIndex. Ambiguous bases never count as mismatches. The sum stops
// growing once it exceeds quitAboveThisValue.
func mismatchQualitySumIgnoreCigar(read *alignedRead, refSeq []byte, refIndex int32, quitAboveThisValue int) int {
	readSeq, quals := read.bases(), read.qualities()
	refLength := int32(len(refSeq))
	sum := 0
	for readIndex := 0; readIndex < len(readSeq); readIndex, refIndex = readIndex+1, refIndex+1 {
		if refIndex < 0 || refIndex >= refLength {
			sum += maxQual
			if sum > quitAboveThisValue {
				return sum
			}
			continue
		}
		refChr, readChr := refSeq[refIndex], readSeq[readIndex]
		if !isRegularBase(readChr) || !isRegularBase(refChr) {
			continue
		}
		if readChr != refChr {
			sum += int(quals[readIndex])
			if sum > quitAboveThisValue {
				return sum
			}
		}
	}
	return sum
}

// mismatchingQualities sums the qualities of the mismatching bases of
// an alignment along its cigar, starting at refIndex on refSeq.
func mismatchingQualities(aln *sam.Alignment, refSeq []byte, refIndex int32) (sum int64) {
	var readIdx int32
	refLength := int32(len(refSeq))
	for _, ce := range aln.CIGAR {
		switch ce.Operation {
		case 'X':
			for j := int32(0); j < ce.Length; j++ {
				sum += int64(aln.QUAL[readIdx+j])
			}
			refIndex += ce.Length
			readIdx += ce.Length
		case '=':
			refIndex += ce.Length
			readIdx += ce.Length
		case 'M':
			for j := int32(0); j < ce.Length; j, refIndex, readIdx = j+1, refIndex+1, readIdx+1 {
				if refIndex < 0 || refIndex >= refLength {
					continue
				}
				if aln.SEQ[readIdx] != refSeq[refIndex] {
					sum += int64(aln.QUAL[readIdx])
				}
			}
		case 'I', 'S':
			readIdx += ce.Length
		case 'D', 'N':
			refIndex += ce.Length
		}
	}
	return sum
}

// findBestOffset returns the offset on ref where the read, laid out
// gaplessly, has the lowest mismatch quality sum, together with that
// sum. The original position is tried first. Ties keep the earliest
// offset tried, and a perfect match ends the search.
func findBestOffset(ref []byte, read *alignedRead, leftmostIndex int32) (int32, int) {
	originalAlignment := read.originalAlignmentStart() - leftmostIndex
	bestScore := mismatchQualitySumIgnoreCigar(read, ref, originalAlignment, math.MaxInt32)
	bestIndex := originalAlignment
	if bestScore == 0 {
		return bestIndex, 0
	}

	for i := int32(0); i < originalAlignment; i++ {
		if score := mismatchQualitySumIgnoreCigar(read, ref, i, bestScore); score < bestScore {
			bestScore, bestIndex = score, i
			if bestScore == 0 {
				return bestIndex, 0
			}
		}
	}

	maxPossibleStart := int32(len(ref)) - read.length()
	for i := originalAlignment + 1; i <= maxPossibleStart; i++ {
		if score := mismatchQualitySumIgnoreCigar(read, ref, i, bestScore); score < bestScore {
			bestScore, bestIndex = score, i
			if bestScore == 0 {
				return bestIndex, 0
			}
		}
	}

	return bestIndex, bestScore
}

// entropyCheck compares, column by column, the quality mass of the
// mismatching bases before and after realignment.
type entropyCheck struct {
	threshold float64

	originalMismatchBases, totalOriginal []int
	cleanedMismatchBases, totalCleaned   []int

	originalMismatchColumns, cleanedMismatchColumns int

	// snps lists the columns that mismatched before realignment as
	// "chr:pos SAME_SNP" or "chr:pos NOT_SNP".
	snps []string
}

// alternateReducesEntropy reports whether the tentative realignments
// of reads reduce the number of reference columns with a high rate of
// mismatching quality. Only reads with a single gapless block in
// their original alignment are considered.
func alternateReducesEntropy(reads []*alignedRead, reference []byte, leftmostIndex int32, contig string, threshold float64) (bool, []string) {
	refLength := len(reference)
	check := entropyCheck{
		threshold:             threshold,
		originalMismatchBases: make([]int, refLength),
		totalOriginal:         make([]int, refLength),
		cleanedMismatchBases:  make([]int, refLength),
		totalCleaned:          make([]int, refLength),
	}

	for _, read := range reads {
		if sam.NumAlignmentBlocks(read.aln.CIGAR) > 1 {
			continue
		}
		readStr, quals := read.bases(), read.qualities()

		refIdx := int(read.originalAlignmentStart() - leftmostIndex)
		for j := 0; j < len(readStr); j, refIdx = j+1, refIdx+1 {
			if refIdx < 0 || refIdx >= refLength {
				break
			}
			check.totalOriginal[refIdx] += int(quals[j])
			if readStr[j] != reference[refIdx] {
				check.originalMismatchBases[refIdx] += int(quals[j])
			}
		}

		refIdx = int(read.alignmentStart() - leftmostIndex)
		altIdx := 0
	cigarLoop:
		for _, ce := range read.cigar() {
			length := int(ce.Length)
			switch ce.Operation {
			case 'M', '=', 'X':
				for k := 0; k < length; k, refIdx, altIdx = k+1, refIdx+1, altIdx+1 {
					if refIdx >= refLength {
						break cigarLoop
					}
					if refIdx < 0 {
						continue
					}
					check.totalCleaned[refIdx] += int(quals[altIdx])
					if readStr[altIdx] != reference[refIdx] {
						check.cleanedMismatchBases[refIdx] += int(quals[altIdx])
					}
				}
			case 'I':
				altIdx += length
			case 'D':
				refIdx += length
			}
		}
	}

	for i := 0; i < refLength; i++ {
		check.column(i, contig, leftmostIndex)
	}

	reduces := check.originalMismatchColumns == 0 || check.cleanedMismatchColumns < check.originalMismatchColumns
	return reduces, check.snps
}

func (check *entropyCheck) column(i int, contig string, leftmostIndex int32) {
	original, cleaned := check.originalMismatchBases[i], check.cleanedMismatchBases[i]
	if original == cleaned {
		return
	}
	totalOriginal, totalCleaned := check.totalOriginal[i], check.totalCleaned[i]
	switch {
	case float64(original) > float64(totalOriginal)*check.threshold:
		check.originalMismatchColumns++
		stillMismatches := totalCleaned > 0 &&
			float64(cleaned)/float64(totalCleaned) > float64(original)/float64(totalOriginal)*(1-mismatchColumnCleanedFraction)
		snp := contig + ":" + strconv.Itoa(int(leftmostIndex)+i)
		if stillMismatches {
			check.cleanedMismatchColumns++
			snp += " SAME_SNP"
		} else {
			snp += " NOT_SNP"
		}
		check.snps = append(check.snps, snp)
	case float64(cleaned) > float64(totalCleaned)*check.threshold:
		check.cleanedMismatchColumns++
	}
}
