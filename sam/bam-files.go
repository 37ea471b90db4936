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
	"bytes"
	"context"
	"io"
	"os"

	"github.com/biogo/hts/bam"
	hts "github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// bamReader is an alignmentReader for BAM input. Records are decoded
// by biogo and handed to the pipeline in SAM text form.
type bamReader struct {
	rc     io.Closer
	bam    *bam.Reader
	header *Header
	data   [][]byte
	err    error
}

func newBamReader(rc io.ReadCloser, readers int) (*bamReader, error) {
	br, err := bam.NewReader(rc, readers)
	if err != nil {
		return nil, errors.Wrap(err, "opening BAM stream")
	}
	return &bamReader{rc: rc, bam: br}, nil
}

func (reader *bamReader) ParseHeader() (*Header, error) {
	text, err := reader.bam.Header().MarshalText()
	if err != nil {
		return nil, errors.Wrap(err, "decoding BAM header")
	}
	hdr := NewHeader()
	for _, line := range bytes.Split(text, []byte("\n")) {
		if line = trimLine(line); len(line) > 0 {
			if err := hdr.AddLine(string(line)); err != nil {
				return nil, err
			}
		}
	}
	reader.header = hdr
	return hdr, nil
}

func (reader *bamReader) ParseAlignment(record []byte) (*Alignment, error) {
	return parseRecord(reader.header, record)
}

func (reader *bamReader) Err() error {
	return reader.err
}

func (*bamReader) Prepare(_ context.Context) (size int) {
	return -1
}

func (reader *bamReader) Fetch(size int) (fetched int) {
	records := make([][]byte, 0, size)
	for fetched < size {
		rec, err := reader.bam.Read()
		if err != nil {
			if err != io.EOF {
				reader.err = errors.Wrap(err, "reading BAM record")
			}
			break
		}
		text, err := rec.MarshalText()
		if err != nil {
			reader.err = errors.Wrap(err, "formatting BAM record")
			break
		}
		records = append(records, trimLine(text))
		fetched++
	}
	reader.data = records
	return fetched
}

func (reader *bamReader) Data() interface{} {
	return reader.data
}

func (reader *bamReader) Close() error {
	err := reader.bam.Close()
	if reader.rc != os.Stdin {
		if cerr := reader.rc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// bamWriter is an alignmentWriter for BAM output. FormatAlignment
// produces SAM text that Write encodes through biogo.
type bamWriter struct {
	wc          io.WriteCloser
	compression int
	header      *hts.Header
	bam         *bam.Writer
}

func (writer *bamWriter) FormatHeader(hdr *Header) error {
	h, err := hts.NewHeader(hdr.Text(), nil)
	if err != nil {
		return errors.Wrap(err, "encoding BAM header")
	}
	bw, err := bam.NewWriter(writer.wc, h, writer.compression)
	if err != nil {
		return errors.Wrap(err, "opening BAM stream")
	}
	writer.header, writer.bam = h, bw
	return nil
}

func (*bamWriter) FormatAlignment(aln *Alignment, out []byte) ([]byte, error) {
	return aln.Format(out), nil
}

func (writer *bamWriter) Write(p []byte) (int, error) {
	if writer.bam == nil {
		return 0, errors.New("BAM header not written")
	}
	var rec hts.Record
	if err := rec.UnmarshalSAM(writer.header, trimLine(p)); err != nil {
		return 0, errors.Wrap(err, "encoding BAM record")
	}
	if err := writer.bam.Write(&rec); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (writer *bamWriter) Close() error {
	var err error
	if writer.bam != nil {
		err = writer.bam.Close()
	}
	if writer.wc != os.Stdout {
		if cerr := writer.wc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
