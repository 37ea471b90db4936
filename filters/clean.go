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
	"strings"

	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"

	"github.com/exascience/elrealign/sam"
)

// prefersAlternate decides whether a read that scores altScore against
// a consensus and refScore against the reference supports the
// consensus.
func (r *IndelRealigner) prefersAlternate(altScore, refScore int) bool {
	if r.config.TiesFavorAlternate {
		return altScore <= refScore
	}
	return altScore < refScore
}

func (r *IndelRealigner) scoreConsensus(c *consensus, altReads []*alignedRead, leftmostIndex int32) {
	for j, read := range altReads {
		offset, myScore := findBestOffset(c.str, read, leftmostIndex)
		if int64(myScore) > read.alignerMismatchScore || !r.prefersAlternate(myScore, read.mismatchScoreToReference) {
			myScore = read.mismatchScoreToReference
		} else {
			c.readIndexes = append(c.readIndexes, readOffset{read: j, offset: offset})
		}
		if !read.aln.IsDuplicate() {
			c.mismatchSum += int64(myScore)
		}
	}
}

// clean realigns the reads of the current bin if a consensus explains
// them sufficiently better than the reference.
func (r *IndelRealigner) clean() error {
	reads := r.bin.reads
	reference, leftmostIndex, err := r.bin.getReference(r.reference)
	if err != nil {
		return err
	}
	contig := r.bin.contig
	interval := r.intervals[r.currentInterval].String()

	consensuses := newConsensusSet()
	builder := consensusBuilder{
		config:        &r.config,
		random:        r.random,
		reference:     reference,
		leftmostIndex: leftmostIndex,
	}
	builder.addKnownIndels(consensuses, r.knownIndels.Overlapping(contig, r.bin.start, r.bin.stop))

	var altReads, altAlignmentsToTest []*alignedRead
	var totalRawMismatchSum int64
	for _, aln := range reads {
		read := newAlignedRead(aln)
		numBlocks := sam.NumAlignmentBlocks(aln.CIGAR)
		if numBlocks == 2 {
			read.setCigar(LeftAlignIndel(aln.CIGAR, reference, aln.SEQ, aln.POS-leftmostIndex, 0, r.config.AllowNegativeShift))
		}
		startOnRef := aln.POS - leftmostIndex
		rawMismatchScore := mismatchQualitySumIgnoreCigar(read, reference, startOnRef, math.MaxInt32)
		if rawMismatchScore == 0 {
			continue
		}
		altReads = append(altReads, read)
		if !aln.IsDuplicate() {
			totalRawMismatchSum += int64(rawMismatchScore)
		}
		read.mismatchScoreToReference = rawMismatchScore
		read.alignerMismatchScore = mismatchingQualities(aln, reference, startOnRef)
		if r.config.ConsensusModel != KnownsOnly && numBlocks == 2 {
			consensuses.add(newReadConsensus(startOnRef, read.cigar(), reference, aln.SEQ))
		} else {
			altAlignmentsToTest = append(altAlignmentsToTest, read)
		}
	}

	if r.config.ConsensusModel == UseSW {
		builder.addFromReads(consensuses, altAlignmentsToTest)
	}

	parallel.Range(0, consensuses.len(), 0, func(low, high int) {
		for _, c := range consensuses.list[low:high] {
			r.scoreConsensus(c, altReads, leftmostIndex)
		}
	})

	var bestConsensus *consensus
	for _, c := range consensuses.list {
		if bestConsensus == nil || bestConsensus.mismatchSum > c.mismatchSum {
			bestConsensus = c
		}
	}

	improvement := -1.0
	if bestConsensus != nil {
		improvement = float64(totalRawMismatchSum-bestConsensus.mismatchSum) / 10
	}
	if improvement < r.config.LODThreshold {
		r.reports.stats.writeLine(interval + "\tFAIL\t" + formatf(improvement, 1))
		return nil
	}

	bestConsensus.cigar = LeftAlignIndel(bestConsensus.cigar, reference, bestConsensus.str,
		bestConsensus.positionOnReference, bestConsensus.positionOnReference, r.config.AllowNegativeShift)

	for _, pair := range bestConsensus.readIndexes {
		if !updateRead(bestConsensus.cigar, bestConsensus.positionOnReference, pair.offset, altReads[pair.read], leftmostIndex) {
			return nil
		}
	}

	if r.config.ConsensusModel != KnownsOnly {
		reduces, snps := alternateReducesEntropy(altReads, reference, leftmostIndex, contig, r.config.EntropyThreshold)
		if !reduces {
			r.reports.stats.writeLine(interval + "\tFAIL (bad indel)\t" + formatf(improvement, 1))
			return nil
		}
		for _, snp := range snps {
			r.reports.snps.writeLine(snp)
		}
	}

	if len(bestConsensus.cigar) > 1 {
		r.reports.indels.writeLine(indelLine(bestConsensus, reference, leftmostIndex, contig, improvement))
		r.reports.stats.writeLine(interval + "\tCLEAN (found indel)\t" + formatf(improvement, 1))
	} else {
		r.reports.stats.writeLine(interval + "\tCLEAN\t" + formatf(improvement, 1))
	}

	realigned := bitset.New(uint(len(altReads)))
	for _, pair := range bestConsensus.readIndexes {
		if altReads[pair.read].finalizeUpdate(r.config.MaxPositionalMove, !r.config.NoOriginalAlignmentTags) {
			realigned.Set(uint(pair.read))
		}
	}
	for i, ok := realigned.NextSet(0); ok; i, ok = realigned.NextSet(i + 1) {
		aln := altReads[i].aln
		updateMappingQuality(aln, improvement)
		if _, found := aln.Tag("NM"); found {
			start, end := readSpan(aln)
			if err := r.bin.cover(r.reference, start, end); err != nil {
				return err
			}
			aln.SetIntTag("NM", nmTag(aln, r.bin.reference, r.bin.leftmostIndex))
		}
		aln.DeleteTag("MD")
	}
	if n := int(realigned.Count()); n > 0 {
		r.nofIntervalsCleaned++
		r.nofReadsRealigned += n
	}
	return nil
}

// indelLine describes the indel of a committed consensus: contig,
// position, length, type, bases and LOD improvement.
func indelLine(c *consensus, reference []byte, leftmostIndex int32, contig string, improvement float64) string {
	position := c.positionOnReference + c.cigar[0].Length
	indel := c.cigar[1]
	source := c.str
	if indel.Operation == 'D' {
		source = reference
	}
	end := minInt(int(position+indel.Length), len(source))
	var bases string
	if int(position) < end {
		bases = string(source[position:end])
	}
	var sb strings.Builder
	sb.WriteString(contig)
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(int(leftmostIndex + position - 1)))
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(int(indel.Length)))
	sb.WriteByte('\t')
	sb.WriteByte(indel.Operation)
	sb.WriteByte('\t')
	sb.WriteString(bases)
	sb.WriteByte('\t')
	sb.WriteString(formatf(improvement, 1))
	return sb.String()
}
