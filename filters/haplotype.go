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

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/vcf"
)

// A Haplotype is a candidate sequence for a region of the reference.
// Start is the 1-based reference position of Bases[0].
type Haplotype struct {
	Bases []byte
	Start int32
	IsRef bool
}

func (haplotype *Haplotype) end() int32 {
	return haplotype.Start + int32(len(haplotype.Bases)) - 1
}

// MakeHaplotypes returns the reference haplotype of a window followed
// by the haplotype that carries the indel, if the indel can be placed
// in the window. window[0] is at the 1-based position windowStart.
func MakeHaplotypes(window []byte, windowStart int32, variant *vcf.Variant) []*Haplotype {
	haplotypes := []*Haplotype{{Bases: window, Start: windowStart, IsRef: true}}
	if c := newKnownIndelConsensus(variant, window, windowStart); c != nil {
		haplotypes = append(haplotypes, &Haplotype{Bases: c.str, Start: windowStart})
	}
	return haplotypes
}

const (
	// read ends below this quality are not used for likelihoods
	minLikelihoodBaseQuality = 10
	haplotypeTrailingBases   = 3
)

// likelihoodRead holds the part of a read that is compared against
// haplotypes: soft clips and low quality ends removed.
type likelihoodRead struct {
	bases, quals []byte
	// start and end are the reference positions of the kept bases
	start, end int32
}

func newLikelihoodRead(aln *sam.Alignment) (read likelihoodRead, ok bool) {
	var startClip, endClip int
	for _, op := range aln.CIGAR {
		if op.Operation == 'S' {
			startClip += int(op.Length)
		} else if op.Operation != 'H' {
			break
		}
	}
	for i := len(aln.CIGAR) - 1; i >= 0; i-- {
		if op := aln.CIGAR[i]; op.Operation == 'S' {
			endClip += int(op.Length)
		} else if op.Operation != 'H' {
			break
		}
	}
	n := len(aln.SEQ)
	if len(aln.QUAL) != n || startClip+endClip >= n {
		return read, false
	}
	low, high := startClip, n-endClip
	for low < high && aln.QUAL[low] < minLikelihoodBaseQuality {
		low++
	}
	for high > low && aln.QUAL[high-1] < minLikelihoodBaseQuality {
		high--
	}
	if low >= high {
		return read, false
	}
	return likelihoodRead{
		bases: aln.SEQ[low:high],
		quals: aln.QUAL[low:high],
		start: aln.POS + int32(low-startClip),
		end:   aln.End() - int32(n-endClip-high),
	}, true
}

// haplotypeWindow returns the bases of the haplotype a read is compared
// against: the read's span, widened by a few bases and the length of the
// event.
func (read *likelihoodRead) haplotypeWindow(haplotype *Haplotype, eventLength int32) []byte {
	extra := haplotypeTrailingBases + eventLength
	if extra < haplotypeTrailingBases {
		extra = haplotypeTrailingBases - eventLength
	}
	start := maxInt32(read.start-extra, haplotype.Start)
	stop := minInt32(read.end+extra, haplotype.end())
	if readLength := int32(len(read.bases)); stop < start+readLength-1 {
		stop = minInt32(start+readLength-1, haplotype.end())
	}
	if start > stop {
		return haplotype.Bases
	}
	return haplotype.Bases[start-haplotype.Start : stop-haplotype.Start+1]
}

// ReadHaplotypeLikelihoods returns, per read and per haplotype, the
// log10 likelihood of the read given the haplotype. eventLength is the
// length of the indel that distinguishes the haplotypes. Reads without
// usable bases get likelihood 0 for every haplotype.
func ReadHaplotypeLikelihoods(alns []*sam.Alignment, haplotypes []*Haplotype, eventLength int32, hmm *PairHMM) [][]float64 {
	result := make([][]float64, len(alns))
	parallel.Range(0, len(alns), 0, func(low, high int) {
		for i := low; i < high; i++ {
			likelihoods := make([]float64, len(haplotypes))
			result[i] = likelihoods
			read, ok := newLikelihoodRead(alns[i])
			if !ok {
				continue
			}
			for j, haplotype := range haplotypes {
				likelihoods[j] = hmm.ReadLikelihood(read.haplotypeWindow(haplotype, eventLength), read.bases, read.quals)
			}
		}
	})
	return result
}

// DiploidHaplotypeLikelihoods combines per-read likelihoods into the
// log10 likelihood of each unordered pair of haplotypes. Entry [i][j]
// with i <= j sums, over all reads, the log10 of the average of the
// read's likelihoods under haplotypes i and j. Entries below the
// diagonal are 0.
func DiploidHaplotypeLikelihoods(readLikelihoods [][]float64, nofHaplotypes int) [][]float64 {
	result := make([][]float64, nofHaplotypes)
	for i := range result {
		result[i] = make([]float64, nofHaplotypes)
		for j := i; j < nofHaplotypes; j++ {
			var sum float64
			for _, likelihoods := range readLikelihoods {
				li, lj := likelihoods[i], likelihoods[j]
				if math.IsInf(li, 0) || math.IsInf(lj, 0) {
					continue
				}
				sum += softMax(li, lj) + log10Half
			}
			result[i][j] = sum
		}
	}
	return result
}

// GenotypeLikelihoods flattens the upper triangle of a diploid
// likelihood matrix in the order (0,0), (0,1), ..., (1,1), ... and
// normalizes it so that the best genotype has likelihood 0.
func GenotypeLikelihoods(diploidLikelihoods [][]float64) []float64 {
	n := len(diploidLikelihoods)
	result := make([]float64, 0, n*(n+1)/2)
	best := math.Inf(-1)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			l := diploidLikelihoods[i][j]
			result = append(result, l)
			best = math.Max(best, l)
		}
	}
	for i := range result {
		result[i] -= best
	}
	return result
}
