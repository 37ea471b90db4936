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

package fasta

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// A Reference gives access to reference bases by contig.
type Reference interface {
	// Seq returns a copy of length bases of contig, starting at the
	// 0-based position start. The result is truncated at the end of
	// the contig.
	Seq(contig string, start, length int) ([]byte, error)
	// Len returns the length of contig, or -1 if it is unknown.
	Len(contig string) int
}

type contigSource interface {
	Contig(contig string) ([]byte, bool)
}

// Contig returns the bases of a contig.
func (fasta Fasta) Contig(contig string) ([]byte, bool) {
	seq, ok := fasta[contig]
	return seq, ok
}

func subsequence(src contigSource, contig string, start, length int) ([]byte, error) {
	seq, ok := src.Contig(contig)
	if !ok {
		return nil, errors.Errorf("unknown contig %v in reference", contig)
	}
	if start < 0 || start > len(seq) || length < 0 {
		return nil, errors.Errorf("reference range %v:%v+%v out of bounds (contig length %v)", contig, start, length, len(seq))
	}
	end := start + length
	if end > len(seq) {
		end = len(seq)
	}
	result := append([]byte(nil), seq[start:end]...)
	Normalize(result)
	return result, nil
}

func contigLength(src contigSource, contig string) int {
	if seq, ok := src.Contig(contig); ok {
		return len(seq)
	}
	return -1
}

// Seq implements the Reference interface.
func (fasta Fasta) Seq(contig string, start, length int) ([]byte, error) {
	return subsequence(fasta, contig, start, length)
}

// Len implements the Reference interface.
func (fasta Fasta) Len(contig string) int {
	return contigLength(fasta, contig)
}

// Seq implements the Reference interface.
func (fasta *MappedFasta) Seq(contig string, start, length int) ([]byte, error) {
	if err := fasta.Err(); err != nil {
		return nil, err
	}
	return subsequence(fasta, contig, start, length)
}

// Len implements the Reference interface.
func (fasta *MappedFasta) Len(contig string) int {
	return contigLength(fasta, contig)
}

// OpenReference loads a reference. Files with an .elfasta extension
// are memory mapped, anything else is parsed as (possibly gzipped)
// FASTA, using a .fai index next to it when one exists. The returned
// close function releases the reference.
func OpenReference(filename string) (Reference, func() error, error) {
	if filepath.Ext(filename) == ".elfasta" {
		mapped := OpenElfasta(filename)
		if err := mapped.Err(); err != nil {
			return nil, nil, err
		}
		return mapped, mapped.Close, nil
	}
	fai, err := ParseFai(filename + ".fai")
	if err != nil {
		fai = nil
	}
	fasta, err := ParseFasta(filename, fai)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "loading reference %v", filename)
	}
	return fasta, func() error { return nil }, nil
}
