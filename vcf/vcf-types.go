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

// Package vcf reads the known indels that seed realignment
// consensuses.
package vcf

import (
	"sort"
	"strconv"
)

// Variant is a VCF record reduced to the columns the realigner uses.
// POS is 1-based.
type Variant struct {
	Chrom string
	Pos   int32
	ID    string
	Ref   string
	Alt   []string
}

func (variant *Variant) String() string {
	return variant.Chrom + ":" + strconv.Itoa(int(variant.Pos)) + " " + variant.Ref + ">" + variant.FirstAlt()
}

// FirstAlt returns the first alternate allele, or "" if there is none.
func (variant *Variant) FirstAlt() string {
	if len(variant.Alt) == 0 {
		return ""
	}
	return variant.Alt[0]
}

func regularAllele(allele string) bool {
	if allele == "" {
		return false
	}
	for i := 0; i < len(allele); i++ {
		switch allele[i] {
		case 'A', 'C', 'G', 'T', 'N', 'a', 'c', 'g', 't', 'n':
		default:
			return false
		}
	}
	return true
}

// IsSimpleDeletion reports whether the first alternate allele is the
// padding base of a longer reference allele.
func (variant *Variant) IsSimpleDeletion() bool {
	alt := variant.FirstAlt()
	return len(alt) == 1 && len(variant.Ref) > 1 &&
		regularAllele(alt) && regularAllele(variant.Ref) && alt[0] == variant.Ref[0]
}

// IsSimpleInsertion reports whether the first alternate allele extends
// a single reference padding base.
func (variant *Variant) IsSimpleInsertion() bool {
	alt := variant.FirstAlt()
	return len(variant.Ref) == 1 && len(alt) > 1 &&
		regularAllele(alt) && regularAllele(variant.Ref) && alt[0] == variant.Ref[0]
}

// IsIndel reports whether the variant is a simple insertion or
// deletion.
func (variant *Variant) IsIndel() bool {
	return variant.IsSimpleDeletion() || variant.IsSimpleInsertion()
}

// End returns the last reference position covered by the variant.
func (variant *Variant) End() int32 {
	return variant.Pos + int32(len(variant.Ref)) - 1
}

// IndelIndex holds known indels per contig, sorted by position.
type IndelIndex struct {
	contigs map[string][]*Variant
	// maxSpan is the longest reference allele per contig, used to
	// bound overlap queries.
	maxSpan map[string]int32
}

// NewIndelIndex indexes the indels among variants; other records are
// ignored.
func NewIndelIndex(variants []*Variant) *IndelIndex {
	index := &IndelIndex{
		contigs: make(map[string][]*Variant),
		maxSpan: make(map[string]int32),
	}
	for _, variant := range variants {
		if !variant.IsIndel() {
			continue
		}
		index.contigs[variant.Chrom] = append(index.contigs[variant.Chrom], variant)
		if span := int32(len(variant.Ref)); span > index.maxSpan[variant.Chrom] {
			index.maxSpan[variant.Chrom] = span
		}
	}
	for _, list := range index.contigs {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Pos < list[j].Pos
		})
	}
	return index
}

// Len returns the number of indexed indels.
func (index *IndelIndex) Len() (n int) {
	if index == nil {
		return 0
	}
	for _, list := range index.contigs {
		n += len(list)
	}
	return n
}

// Overlapping returns the indels whose reference allele overlaps the
// 1-based closed range [start, end] on contig, in position order. A
// nil index has no indels.
func (index *IndelIndex) Overlapping(contig string, start, end int32) []*Variant {
	if index == nil {
		return nil
	}
	list := index.contigs[contig]
	first := sort.Search(len(list), func(i int) bool {
		return list[i].Pos > start-index.maxSpan[contig]
	})
	var result []*Variant
	for _, variant := range list[first:] {
		if variant.Pos > end {
			break
		}
		if variant.End() >= start {
			result = append(result, variant)
		}
	}
	return result
}
