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

package vcf

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ParseVariant parses the CHROM, POS, ID, REF and ALT columns of a VCF
// data line. Remaining columns are ignored.
func ParseVariant(line string) (*Variant, error) {
	fields := strings.SplitN(line, "\t", 6)
	if len(fields) < 5 {
		return nil, errors.Errorf("VCF line with fewer than 5 columns: %q", line)
	}
	pos, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid POS in VCF line %q", line)
	}
	variant := &Variant{
		Chrom: fields[0],
		Pos:   int32(pos),
		ID:    fields[2],
		Ref:   fields[3],
	}
	if alt := fields[4]; alt != "." {
		variant.Alt = strings.Split(alt, ",")
	}
	return variant, nil
}

// ReadVariants parses all data lines of a VCF stream. Lines are parsed
// in parallel; the result is in file order.
func ReadVariants(r io.Reader) ([]*Variant, error) {
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(r))
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		lines := data.([]string)
		variants := make([]*Variant, 0, len(lines))
		for _, line := range lines {
			if line == "" || line[0] == '#' {
				continue
			}
			variant, err := ParseVariant(line)
			if err != nil {
				p.SetErr(err)
				return variants
			}
			variants = append(variants, variant)
		}
		return variants
	})))
	var variants []*Variant
	p.Add(pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
		variants = append(variants, data.([]*Variant)...)
		return data
	})))
	p.Run()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

// ReadVariantsFile reads a VCF file, decompressing it if its name
// ends in .gz.
func ReadVariantsFile(filename string) ([]*Variant, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = bufio.NewReader(f)
	if filepath.Ext(filename) == ".gz" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %v", filename)
		}
		defer gz.Close()
		r = gz
	}
	variants, err := ReadVariants(r)
	return variants, errors.Wrapf(err, "reading %v", filename)
}

// LoadKnownIndels reads the given VCF files and indexes their indels.
func LoadKnownIndels(filenames ...string) (*IndelIndex, error) {
	var all []*Variant
	for _, filename := range filenames {
		variants, err := ReadVariantsFile(filename)
		if err != nil {
			return nil, err
		}
		all = append(all, variants...)
	}
	return NewIndelIndex(all), nil
}
