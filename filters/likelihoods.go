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
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/exascience/elrealign/fasta"
	"github.com/exascience/elrealign/intervals"
	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/vcf"
)

// DefaultHaplotypeSize is the default length of the reference window
// around a known indel from which haplotypes are built.
const DefaultHaplotypeSize = 80

// IndelLikelihoods computes genotype likelihoods for the known indels in
// a set of target intervals from a coordinate-sorted stream of reads.
// For every known indel it writes a line
//
//   contig pos ref alt reads gl(ref/ref),gl(ref/alt),gl(alt/alt)
//
// with likelihoods in log10, normalized to the best genotype.
type IndelLikelihoods struct {
	reference     fasta.Reference
	intervals     []intervals.Locus
	knownIndels   *vcf.IndelIndex
	hmm           *PairHMM
	haplotypeSize int32
	out           *report

	currentInterval int
	reads           []*sam.Alignment

	nofVariants int
}

// NewIndelLikelihoods creates a likelihood computation that writes its
// results to out. The intervals must be resolved against the header and
// sorted.
func NewIndelLikelihoods(reference fasta.Reference, targets []intervals.Locus, knownIndels *vcf.IndelIndex, hmm *PairHMM, haplotypeSize int, out io.Writer) (*IndelLikelihoods, error) {
	if haplotypeSize < 2 {
		return nil, fmt.Errorf("invalid haplotype size %v", haplotypeSize)
	}
	return &IndelLikelihoods{
		reference:     reference,
		intervals:     targets,
		knownIndels:   knownIndels,
		hmm:           hmm,
		haplotypeSize: int32(haplotypeSize),
		out:           newReport("likelihoods", out),
	}, nil
}

func usableForLikelihoods(aln *sam.Alignment) bool {
	return !aln.IsUnmapped() &&
		!aln.IsSecondary() &&
		!aln.IsDuplicate() &&
		!aln.IsQCFailed() &&
		aln.MAPQ > 0 &&
		len(aln.CIGAR) > 0 &&
		len(aln.SEQ) > 0 && len(aln.QUAL) == len(aln.SEQ)
}

// Add feeds the next read of the stream.
func (l *IndelLikelihoods) Add(aln *sam.Alignment) error {
	if aln.REFID < 0 {
		return nil
	}
	start, stop := readSpan(aln)
	for l.currentInterval < len(l.intervals) && intervalBefore(l.intervals[l.currentInterval], aln, start) {
		if err := l.evaluate(); err != nil {
			return err
		}
		l.currentInterval++
	}
	if l.currentInterval < len(l.intervals) &&
		overlaps(aln, start, stop, l.intervals[l.currentInterval]) &&
		usableForLikelihoods(aln) {
		l.reads = append(l.reads, aln)
	}
	return nil
}

// Close evaluates the remaining intervals and flushes the output.
func (l *IndelLikelihoods) Close() error {
	for ; l.currentInterval < len(l.intervals); l.currentInterval++ {
		if err := l.evaluate(); err != nil {
			return err
		}
	}
	log.Printf("Computed likelihoods for %v known indels.", l.nofVariants)
	return l.out.close()
}

func (l *IndelLikelihoods) evaluate() error {
	defer func() { l.reads = nil }()
	interval := l.intervals[l.currentInterval]
	variants := l.knownIndels.Overlapping(interval.Contig, interval.Start, interval.End)
	if len(variants) == 0 {
		return nil
	}
	contigLength := int32(l.reference.Len(interval.Contig))
	if contigLength < 0 {
		return fmt.Errorf("contig %v not found in the reference", interval.Contig)
	}
	for _, variant := range variants {
		windowStart := maxInt32(variant.Pos-l.haplotypeSize/2, 1)
		windowEnd := minInt32(variant.End()+l.haplotypeSize/2, contigLength)
		window, err := l.reference.Seq(interval.Contig, int(windowStart-1), int(windowEnd-windowStart+1))
		if err != nil {
			return err
		}
		haplotypes := MakeHaplotypes(window, windowStart, variant)
		if len(haplotypes) < 2 {
			continue
		}
		var reads []*sam.Alignment
		for _, aln := range l.reads {
			if start, stop := readSpan(aln); start <= variant.End() && stop >= variant.Pos {
				reads = append(reads, aln)
			}
		}
		eventLength := int32(len(variant.FirstAlt()) - len(variant.Ref))
		readLikelihoods := ReadHaplotypeLikelihoods(reads, haplotypes, eventLength, l.hmm)
		genotypeLikelihoods := GenotypeLikelihoods(DiploidHaplotypeLikelihoods(readLikelihoods, len(haplotypes)))
		l.out.writeLine(likelihoodLine(variant, len(reads), genotypeLikelihoods))
		l.nofVariants++
	}
	return nil
}

func likelihoodLine(variant *vcf.Variant, nofReads int, genotypeLikelihoods []float64) string {
	var b strings.Builder
	b.WriteString(variant.Chrom)
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(int64(variant.Pos), 10))
	b.WriteByte('\t')
	b.WriteString(variant.Ref)
	b.WriteByte('\t')
	b.WriteString(variant.FirstAlt())
	b.WriteByte('\t')
	b.WriteString(strconv.Itoa(nofReads))
	b.WriteByte('\t')
	for i, gl := range genotypeLikelihoods {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatf(gl, 2))
	}
	return b.String()
}
