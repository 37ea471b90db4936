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

// Package intervals loads the target intervals the realigner walks
// over.
package intervals

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	psort "github.com/exascience/pargo/sort"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Interval is a 1-based closed range of positions.
type Interval struct {
	Start, End int32
}

// Extend makes interval1 larger if it overlaps with or directly abuts
// interval2, by storing max(interval1.End, interval2.End) in
// interval1.End; otherwise, interval1 remains unchanged.
// Returns true if the two intervals were merged.
// interval2.Start >= interval1.Start must be true before
// calling Extend.
func (interval1 *Interval) Extend(interval2 Interval) bool {
	if interval2.Start-1 > interval1.End {
		return false
	}
	if interval2.End > interval1.End {
		interval1.End = interval2.End
	}
	return true
}

// Contains reports whether pos lies in the interval.
func (interval1 Interval) Contains(pos int32) bool {
	return interval1.Start <= pos && pos <= interval1.End
}

// A Locus is an interval on a contig. ContigIndex is the position of
// the contig in the sequence dictionary.
type Locus struct {
	Contig      string
	ContigIndex int32
	Interval
}

func (locus Locus) String() string {
	return locus.Contig + ":" + strconv.Itoa(int(locus.Start)) + "-" + strconv.Itoa(int(locus.End))
}

// ContigIndexer resolves contig names. sam.Header is a ContigIndexer.
type ContigIndexer interface {
	ContigIndex(contig string) int32
}

func parsePosition(s string) (int32, error) {
	value, err := strconv.ParseInt(strings.Replace(s, ",", "", -1), 10, 32)
	return int32(value), err
}

// ParseLocus parses "chr", "chr:pos" and "chr:start-stop". A whole
// contig is represented with End set to maxEnd.
func ParseLocus(s string, maxEnd int32) (locus Locus, err error) {
	s = strings.TrimSpace(s)
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return Locus{Contig: s, ContigIndex: -1, Interval: Interval{1, maxEnd}}, nil
	}
	locus.Contig, locus.ContigIndex = s[:colon], -1
	span := s[colon+1:]
	if dash := strings.IndexByte(span, '-'); dash >= 0 {
		if locus.Start, err = parsePosition(span[:dash]); err != nil {
			return locus, errors.Wrapf(err, "invalid interval %v", s)
		}
		if locus.End, err = parsePosition(span[dash+1:]); err != nil {
			return locus, errors.Wrapf(err, "invalid interval %v", s)
		}
	} else {
		if locus.Start, err = parsePosition(span); err != nil {
			return locus, errors.Wrapf(err, "invalid interval %v", s)
		}
		locus.End = locus.Start
	}
	if locus.Start < 1 || locus.End < locus.Start {
		return locus, errors.Errorf("invalid interval %v", s)
	}
	return locus, nil
}

// ParseIntervalList parses one interval per line. Empty lines, lines
// starting with # and Picard-style @ header lines are skipped. Picard
// interval rows (contig, start, stop, strand, name) are accepted as
// well.
func ParseIntervalList(r io.Reader) ([]Locus, error) {
	var loci []Locus
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' || text[0] == '@' {
			continue
		}
		if fields := strings.Split(text, "\t"); len(fields) >= 3 {
			text = fields[0] + ":" + fields[1] + "-" + fields[2]
		}
		locus, err := ParseLocus(text, int32(^uint32(0)>>1))
		if err != nil {
			return nil, errors.Wrapf(err, "line %v", line)
		}
		loci = append(loci, locus)
	}
	return loci, scanner.Err()
}

// ParseBed parses a BED file. See
// https://genome.ucsc.edu/FAQ/FAQformat.html#format1
//
// BED ranges are 0-based and half open; they are converted to 1-based
// closed intervals.
func ParseBed(r io.Reader) ([]Locus, error) {
	var loci []Locus
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" || strings.HasPrefix(text, "#") ||
			strings.HasPrefix(text, "track") ||
			strings.HasPrefix(text, "browser") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return nil, errors.Errorf("line %v: BED entry with fewer than 3 fields", line)
		}
		start, err := parsePosition(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "line %v", line)
		}
		end, err := parsePosition(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "line %v", line)
		}
		if end <= start {
			continue
		}
		loci = append(loci, Locus{Contig: fields[0], ContigIndex: -1, Interval: Interval{start + 1, end}})
	}
	return loci, scanner.Err()
}

type locusSorter []Locus

func locusLess(l1, l2 Locus) bool {
	switch {
	case l1.ContigIndex < l2.ContigIndex:
		return true
	case l1.ContigIndex > l2.ContigIndex:
		return false
	default:
		return l1.Start < l2.Start
	}
}

func (s locusSorter) SequentialSort(i, j int) {
	loci := s[i:j]
	sort.SliceStable(loci, func(i, j int) bool {
		return locusLess(loci[i], loci[j])
	})
}

func (s locusSorter) NewTemp() psort.StableSorter {
	return locusSorter(make([]Locus, len(s)))
}

func (s locusSorter) Len() int {
	return len(s)
}

func (s locusSorter) Less(i, j int) bool {
	return locusLess(s[i], s[j])
}

func (s locusSorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(locusSorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// SortLoci sorts loci by contig index, then by start, using a
// parallel stable sort.
func SortLoci(loci []Locus) {
	psort.StableSort(locusSorter(loci))
}

// Merge merges overlapping or abutting loci on the same contig.
// loci must be sorted before calling Merge. The result shares memory
// with the loci argument.
func Merge(loci []Locus) []Locus {
	if len(loci) == 0 {
		return loci
	}
	i := 0
	for _, locus := range loci[1:] {
		if locus.ContigIndex == loci[i].ContigIndex && loci[i].Extend(locus.Interval) {
			continue
		}
		i++
		loci[i] = locus
	}
	return loci[:i+1]
}

// Resolve sets the contig index of every locus and clips whole-contig
// loci to the contig length. Loci on contigs that are not in the
// dictionary are reported as an error.
func Resolve(loci []Locus, contigs ContigIndexer, contigLength func(string) int) error {
	for i := range loci {
		index := contigs.ContigIndex(loci[i].Contig)
		if index < 0 {
			return errors.Errorf("interval %v on a contig that is not in the sequence dictionary", loci[i])
		}
		loci[i].ContigIndex = index
		if contigLength != nil {
			if n := int32(contigLength(loci[i].Contig)); n > 0 && loci[i].End > n {
				loci[i].End = n
			}
		}
	}
	return nil
}

// Load reads target intervals from a GATK interval list or a BED file
// (extension .bed), optionally gzip compressed, and returns them
// resolved, sorted and merged.
func Load(filename string, contigs ContigIndexer, contigLength func(string) int) ([]Locus, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	name := filename
	if filepath.Ext(name) == ".gz" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %v", filename)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	var loci []Locus
	if filepath.Ext(name) == ".bed" {
		loci, err = ParseBed(r)
	} else {
		loci, err = ParseIntervalList(r)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %v", filename)
	}
	if err := Resolve(loci, contigs, contigLength); err != nil {
		return nil, errors.Wrapf(err, "in %v", filename)
	}
	SortLoci(loci)
	return Merge(loci), nil
}
