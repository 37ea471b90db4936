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
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// FaiReference represents an entry in an FAI file.
type FaiReference struct {
	Length    int32
	Offset    int64
	LineBases int32
	LineWidth int32
}

// ParseFai parses an FAI file.
func ParseFai(filename string) (map[string]FaiReference, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fai := make(map[string]FaiReference)
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		b := bytes.Split(scanner.Bytes(), []byte("\t"))
		if len(b) != 5 {
			return nil, errors.Errorf("badly formatted fai file %v, line %v: invalid number of entries", filename, line)
		}
		var values [4]int64
		for i := range values {
			if values[i], err = strconv.ParseInt(string(b[i+1]), 10, 64); err != nil {
				return nil, errors.Wrapf(err, "in fai file %v, line %v", filename, line)
			}
		}
		fai[string(b[0])] = FaiReference{
			Length:    int32(values[0]),
			Offset:    values[1],
			LineBases: int32(values[2]),
			LineWidth: int32(values[3]),
		}
	}
	return fai, errors.Wrapf(scanner.Err(), "reading fai file %v", filename)
}

func contigFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	if j > len(b) {
		j = len(b)
	}
	return string(b[i:j])
}

var upperAndN [256]byte

func init() {
	for i := range upperAndN {
		upperAndN[i] = byte(i)
	}
	for _, c := range []byte("acgtn") {
		upperAndN[c] = c - 'a' + 'A'
	}
	for _, c := range []byte("RYMKWSBDHVrymkwsbdhv") {
		upperAndN[c] = 'N'
	}
}

// ToUpperAndN converts a base to upper case and replaces IUPAC
// ambiguity codes by N.
func ToUpperAndN(base byte) byte {
	return upperAndN[base]
}

// Normalize applies ToUpperAndN to every base in place.
func Normalize(bases []byte) {
	for i, c := range bases {
		bases[i] = upperAndN[c]
	}
}

// Fasta maps contig names to their normalized bases.
type Fasta map[string][]byte

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() (err error) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if cerr := r.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return
}

func openText(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(filename) != ".gz" {
		return f, nil
	}
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "opening %v", filename)
	}
	return readCloser{gz, []io.Closer{f, gz}}, nil
}

// ParseFasta sequentially parses a FASTA file, which may be gzip
// compressed. Bases are converted with ToUpperAndN.
//
// If fai is given, the sequences are pre-allocated.
func ParseFasta(filename string, fai map[string]FaiReference) (Fasta, error) {
	f, err := openText(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseFasta(f, fai)
}

func parseFasta(r io.Reader, fai map[string]FaiReference) (Fasta, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)

	fasta := make(Fasta)
	contig := ""
	var seq []byte
	seen := false
	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			if seen {
				fasta[contig] = seq
			}
			contig, seen = contigFromHeader(b), true
			seq = nil
			if ref, ok := fai[contig]; ok {
				seq = make([]byte, 0, ref.Length)
			}
			continue
		}
		if !seen {
			return nil, errors.New("invalid fasta file: missing first header")
		}
		start := len(seq)
		seq = append(seq, b...)
		Normalize(seq[start:])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading fasta file")
	}
	if !seen {
		return nil, errors.New("empty fasta file")
	}
	fasta[contig] = seq
	return fasta, nil
}
