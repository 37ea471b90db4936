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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/exascience/elrealign/internal"
	"github.com/exascience/pargo/pipeline"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

type (
	// alignmentReader is a common interface for reading both SAM and BAM files.
	alignmentReader interface {
		ParseHeader() (*Header, error)
		ParseAlignment([]byte) (*Alignment, error)
		pipeline.Source
		io.Closer
	}

	// InputFile represents a SAM or BAM file for input.
	InputFile struct {
		reader alignmentReader
	}
)

// Close closes the SAM/BAM input file.
func (f *InputFile) Close() error {
	return f.reader.Close()
}

// ParseHeader fetches the header from a SAM or BAM file. It must be
// called before any alignments are parsed.
func (f *InputFile) ParseHeader() (*Header, error) {
	return f.reader.ParseHeader()
}

// ParseAlignment parses one SAM alignment line into an alignment,
// resolving reference indices against the parsed header.
func (f *InputFile) ParseAlignment(block []byte) (*Alignment, error) {
	return f.reader.ParseAlignment(block)
}

// Err implements the method of the pipeline.Source interface.
func (f *InputFile) Err() error {
	return f.reader.Err()
}

// Prepare implements the method of the pipeline.Source interface.
func (f *InputFile) Prepare(ctx context.Context) int {
	return f.reader.Prepare(ctx)
}

// Fetch implements the method of the pipeline.Source interface.
func (f *InputFile) Fetch(size int) int {
	return f.reader.Fetch(size)
}

// Data implements the method of the pipeline.Source interface.
func (f *InputFile) Data() interface{} {
	return f.reader.Data()
}

type (
	// alignmentWriter is a common interface for writing both SAM and BAM files.
	alignmentWriter interface {
		FormatHeader(hdr *Header) error
		FormatAlignment(aln *Alignment, out []byte) ([]byte, error)
		io.WriteCloser
	}

	// OutputFile represents a SAM or BAM file for output. Output is
	// written to a temporary file in the same directory, which is
	// renamed on Close.
	OutputFile struct {
		writer   alignmentWriter
		tempName string
		name     string
	}
)

// Close closes a SAM or BAM output file and moves it into place.
func (f *OutputFile) Close() error {
	if err := f.writer.Close(); err != nil {
		return err
	}
	if f.tempName == "" {
		return nil
	}
	return errors.Wrapf(os.Rename(f.tempName, f.name), "moving output to %v", f.name)
}

// FormatHeader writes the header to a SAM or BAM file.
func (f *OutputFile) FormatHeader(hdr *Header) error {
	return f.writer.FormatHeader(hdr)
}

// FormatAlignment formats an alignment into a block of bytes for a SAM or BAM file.
func (f *OutputFile) FormatAlignment(aln *Alignment, out []byte) ([]byte, error) {
	return f.writer.FormatAlignment(aln, out)
}

// Write can be used to write the blocks of bytes from FormatAlignment
// to the underlying SAM or BAM file.
func (f *OutputFile) Write(p []byte) (int, error) {
	return f.writer.Write(p)
}

// SAM file extensions.
const (
	SamExt  = ".sam"
	BamExt  = ".bam"
	GzExt   = ".gz"
	cramExt = ".cram"
)

type gzipReadCloser struct {
	*gzip.Reader
	file io.Closer
}

func (r gzipReadCloser) Close() error {
	err := r.Reader.Close()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open a SAM or BAM file for input.
//
// If the filename extension is not .bam, then .sam is always
// assumed. A .sam.gz file is decompressed on the fly.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin
func Open(name string) (*InputFile, error) {
	if name == "/dev/stdin" {
		return &InputFile{
			reader: &samReader{
				rc:  os.Stdin,
				buf: bufio.NewReader(os.Stdin),
			},
		}, nil
	}
	switch filepath.Ext(name) {
	case BamExt:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		reader, err := newBamReader(file, 0)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "in %v", name)
		}
		return &InputFile{reader: reader}, nil
	case cramExt:
		return nil, fmt.Errorf("CRAM format not supported when opening %v", name)
	case GzExt:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		gz, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "opening %v", name)
		}
		return &InputFile{
			reader: &samReader{
				rc:  gzipReadCloser{gz, file},
				buf: bufio.NewReader(gz),
			},
		}, nil
	default:
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		return &InputFile{
			reader: &samReader{
				rc:  file,
				buf: bufio.NewReader(file),
			},
		}, nil
	}
}

// Create a SAM or BAM file for output.
//
// If the filename extension is not .bam, then .sam is always
// assumed.
//
// If the name is "/dev/stdout", then the output is written to
// os.Stdout.
func Create(name string) (*OutputFile, error) {
	if name == "/dev/stdout" {
		return &OutputFile{writer: newSamWriter(os.Stdout)}, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == cramExt {
		return nil, fmt.Errorf("CRAM format not supported when creating %v", name)
	}
	tempName := internal.TempFilename(name)
	file, err := os.Create(tempName)
	if err != nil {
		return nil, err
	}
	f := &OutputFile{tempName: tempName, name: name}
	if ext == BamExt {
		f.writer = &bamWriter{wc: file, compression: gzip.DefaultCompression}
	} else {
		f.writer = newSamWriter(file)
	}
	return f, nil
}
