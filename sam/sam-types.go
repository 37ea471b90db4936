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

package sam

import (
	"sort"
	"strconv"
	"strings"

	psort "github.com/exascience/pargo/sort"
)

// FileFormatVersion is the SAM version written into new @HD lines.
const FileFormatVersion = "1.6"

// A Reference is one @SQ entry of a header.
type Reference struct {
	Name   string
	Length int32
}

// Header is a SAM file header. Lines are kept verbatim, without the
// trailing newline; the @SQ entries are additionally decoded so that
// contig order can be established.
type Header struct {
	Lines []string
	SQ    []Reference
	index map[string]int32
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{index: make(map[string]int32)}
}

// AddLine appends a header line, decoding it if it is an @SQ line.
func (hdr *Header) AddLine(line string) error {
	if strings.HasPrefix(line, "@SQ\t") {
		var sc StringScanner
		sc.Reset(line[4:])
		var ref Reference
		ref.Length = -1
		for sc.Len() > 0 {
			switch tag, value := sc.ParseHeaderField(); tag {
			case "SN":
				ref.Name = value
			case "LN":
				ln, err := strconv.ParseInt(value, 10, 32)
				if err != nil {
					return err
				}
				ref.Length = int32(ln)
			}
		}
		if err := sc.Err(); err != nil {
			return err
		}
		if ref.Name == "" {
			return errMissingSN
		}
		hdr.index[ref.Name] = int32(len(hdr.SQ))
		hdr.SQ = append(hdr.SQ, ref)
	}
	hdr.Lines = append(hdr.Lines, line)
	return nil
}

// ContigIndex returns the position of the contig in the @SQ lines, or
// -1 for "*" and unknown contigs.
func (hdr *Header) ContigIndex(name string) int32 {
	if index, ok := hdr.index[name]; ok {
		return index
	}
	return -1
}

// HDSO returns the sorting order recorded in the @HD line.
func (hdr *Header) HDSO() string {
	if len(hdr.Lines) > 0 && strings.HasPrefix(hdr.Lines[0], "@HD\t") {
		for _, field := range strings.Split(hdr.Lines[0][4:], "\t") {
			if strings.HasPrefix(field, "SO:") {
				return field[3:]
			}
		}
	}
	return "unknown"
}

// SetHDSO records a sorting order in the @HD line, creating one if
// necessary.
func (hdr *Header) SetHDSO(value string) {
	if len(hdr.Lines) == 0 || !strings.HasPrefix(hdr.Lines[0], "@HD\t") {
		hdr.Lines = append([]string{"@HD\tVN:" + FileFormatVersion + "\tSO:" + value}, hdr.Lines...)
		return
	}
	fields := strings.Split(hdr.Lines[0], "\t")
	found := false
	for i, field := range fields {
		if strings.HasPrefix(field, "SO:") {
			fields[i] = "SO:" + value
			found = true
		}
	}
	if !found {
		fields = append(fields, "SO:"+value)
	}
	hdr.Lines[0] = strings.Join(fields, "\t")
}

// AddPG appends a @PG line for the given program.
func (hdr *Header) AddPG(id, name, version, commandLine string) {
	line := "@PG\tID:" + id + "\tPN:" + name + "\tVN:" + version
	if commandLine != "" {
		line += "\tCL:" + commandLine
	}
	hdr.Lines = append(hdr.Lines, line)
}

// Text returns the header formatted as SAM text.
func (hdr *Header) Text() []byte {
	var out []byte
	for _, line := range hdr.Lines {
		out = append(append(out, line...), '\n')
	}
	return out
}

// A Field is an optional field of an alignment. The value is kept in
// its SAM text representation.
type Field struct {
	Tag   string
	Type  byte
	Value string
}

// Alignment is a single alignment record. POS is 1-based, 0 means
// no position. QUAL holds phred values, not ASCII characters, and is
// nil when absent, as is SEQ.
type Alignment struct {
	QNAME string
	FLAG  uint16
	RNAME string
	POS   int32
	MAPQ  byte
	CIGAR []CigarOperation
	RNEXT string
	PNEXT int32
	TLEN  int32
	SEQ   []byte
	QUAL  []byte
	TAGS  []Field

	// REFID is the index of RNAME in the header, -1 if unknown.
	REFID int32
	// MateREFID is the index of RNEXT in the header, -1 if unknown.
	MateREFID int32
}

// NewAlignment allocates an alignment with unknown reference indices.
func NewAlignment() *Alignment {
	return &Alignment{REFID: -1, MateREFID: -1}
}

// Tag returns the optional field with the given tag.
func (aln *Alignment) Tag(tag string) (Field, bool) {
	for _, field := range aln.TAGS {
		if field.Tag == tag {
			return field, true
		}
	}
	return Field{}, false
}

// SetTag sets or replaces an optional field.
func (aln *Alignment) SetTag(tag string, typ byte, value string) {
	for i := range aln.TAGS {
		if aln.TAGS[i].Tag == tag {
			aln.TAGS[i].Type, aln.TAGS[i].Value = typ, value
			return
		}
	}
	aln.TAGS = append(aln.TAGS, Field{tag, typ, value})
}

// SetIntTag sets or replaces an optional integer field.
func (aln *Alignment) SetIntTag(tag string, value int32) {
	aln.SetTag(tag, 'i', strconv.FormatInt(int64(value), 10))
}

// DeleteTag removes an optional field, if present.
func (aln *Alignment) DeleteTag(tag string) {
	for i := range aln.TAGS {
		if aln.TAGS[i].Tag == tag {
			aln.TAGS = append(aln.TAGS[:i], aln.TAGS[i+1:]...)
			return
		}
	}
}

// CoordinateLess orders alignments by reference index and position.
// Alignments without a reference index come last.
func CoordinateLess(aln1, aln2 *Alignment) bool {
	refid1 := aln1.REFID
	refid2 := aln2.REFID
	switch {
	case refid1 < refid2:
		return refid1 >= 0
	case refid2 < refid1:
		return refid2 < 0
	default:
		return aln1.POS < aln2.POS
	}
}

// Flag bits.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsMultiple() bool      { return (aln.FLAG & Multiple) != 0 }
func (aln *Alignment) IsProper() bool        { return (aln.FLAG & Proper) != 0 }
func (aln *Alignment) IsUnmapped() bool      { return (aln.FLAG & Unmapped) != 0 }
func (aln *Alignment) IsNextUnmapped() bool  { return (aln.FLAG & NextUnmapped) != 0 }
func (aln *Alignment) IsReversed() bool      { return (aln.FLAG & Reversed) != 0 }
func (aln *Alignment) IsSecondary() bool     { return (aln.FLAG & Secondary) != 0 }
func (aln *Alignment) IsQCFailed() bool      { return (aln.FLAG & QCFailed) != 0 }
func (aln *Alignment) IsDuplicate() bool     { return (aln.FLAG & Duplicate) != 0 }
func (aln *Alignment) IsSupplementary() bool { return (aln.FLAG & Supplementary) != 0 }

type (
	// By is a less-than predicate on alignments
	By func(aln1, aln2 *Alignment) bool

	alignmentSorter struct {
		alns []*Alignment
		by   By
	}
)

func (s alignmentSorter) SequentialSort(i, j int) {
	alns, by := s.alns[i:j], s.by
	sort.SliceStable(alns, func(i, j int) bool {
		return by(alns[i], alns[j])
	})
}

func (s alignmentSorter) NewTemp() psort.StableSorter {
	return alignmentSorter{make([]*Alignment, len(s.alns)), s.by}
}

func (s alignmentSorter) Len() int {
	return len(s.alns)
}

func (s alignmentSorter) Less(i, j int) bool {
	return s.by(s.alns[i], s.alns[j])
}

func (s alignmentSorter) Assign(p psort.StableSorter) func(i, j, len int) {
	dst, src := s.alns, p.(alignmentSorter).alns
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// ParallelStableSort sorts the alignments in parallel, keeping the
// relative order of equal alignments.
func (by By) ParallelStableSort(alns []*Alignment) {
	psort.StableSort(alignmentSorter{alns, by})
}
