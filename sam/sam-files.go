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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

var errMissingSN = errors.New("SN entry in a SQ header line missing")

// ParseHeaderField scans one TAG:VALUE field of a header line.
func (sc *StringScanner) ParseHeaderField() (tag, value string) {
	if sc.err != nil {
		return
	}
	tag, ok := sc.readUntil(':')
	if !ok || (len(tag) != 2) {
		sc.setErr(fmt.Errorf("Invalid field tag %v", tag))
		return "", ""
	}
	value, _ = sc.readUntil('\t')
	return tag, value
}

func (sc *StringScanner) parseOptionalField() (field Field) {
	entry, _ := sc.readUntil('\t')
	if len(entry) < 5 || entry[2] != ':' || entry[4] != ':' {
		sc.setErr(fmt.Errorf("Invalid optional field %v in SAM alignment line", entry))
		return
	}
	return Field{Tag: entry[:2], Type: entry[3], Value: entry[5:]}
}

func parseBases(s string) []byte {
	if s == "*" {
		return nil
	}
	return []byte(s)
}

func parseQualities(s string) []byte {
	if s == "*" {
		return nil
	}
	qual := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		qual[i] = s[i] - 33
	}
	return qual
}

// ParseAlignment scans a SAM alignment line. Reference indices are
// not resolved.
func (sc *StringScanner) ParseAlignment() *Alignment {
	aln := NewAlignment()

	aln.QNAME = sc.doString()
	aln.FLAG = uint16(sc.doUint(16))
	aln.RNAME = sc.doString()
	aln.POS = sc.doInt32()
	aln.MAPQ = byte(sc.doUint(8))
	cigarString := sc.doString()
	aln.RNEXT = sc.doString()
	aln.PNEXT = sc.doInt32()
	aln.TLEN = sc.doInt32()
	aln.SEQ = parseBases(sc.doString())
	qual, _ := sc.readUntil('\t')
	aln.QUAL = parseQualities(qual)

	if sc.err == nil {
		cigar, err := ScanCigarString(cigarString)
		if err != nil {
			sc.setErr(err)
		} else {
			aln.CIGAR = append([]CigarOperation(nil), cigar...)
		}
	}

	for sc.Len() > 0 {
		aln.TAGS = append(aln.TAGS, sc.parseOptionalField())
	}

	return aln
}

// ResolveReferences sets REFID and MateREFID from the header.
func (hdr *Header) ResolveReferences(aln *Alignment) {
	aln.REFID = hdr.ContigIndex(aln.RNAME)
	switch aln.RNEXT {
	case "=":
		aln.MateREFID = aln.REFID
	default:
		aln.MateREFID = hdr.ContigIndex(aln.RNEXT)
	}
}

// Format appends the SAM text of the alignment, including a trailing
// newline.
func (aln *Alignment) Format(out []byte) []byte {
	out = append(append(out, aln.QNAME...), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.FLAG), 10), '\t')
	out = append(append(out, aln.RNAME...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.POS), 10), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.MAPQ), 10), '\t')
	out = append(AppendCigar(out, aln.CIGAR), '\t')
	out = append(append(out, aln.RNEXT...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.PNEXT), 10), '\t')
	out = append(strconv.AppendInt(out, int64(aln.TLEN), 10), '\t')
	if aln.SEQ == nil {
		out = append(out, '*')
	} else {
		out = append(out, aln.SEQ...)
	}
	out = append(out, '\t')
	if aln.QUAL == nil {
		out = append(out, '*')
	} else {
		for _, q := range aln.QUAL {
			out = append(out, q+33)
		}
	}
	for _, field := range aln.TAGS {
		out = append(append(append(out, '\t'), field.Tag...), ':', field.Type, ':')
		out = append(out, field.Value...)
	}
	return append(out, '\n')
}

func trimLine(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// samReader is an alignmentReader for SAM text input.
type samReader struct {
	rc     io.Closer
	buf    *bufio.Reader
	header *Header
	data   [][]byte
	err    error
}

func (reader *samReader) ParseHeader() (*Header, error) {
	hdr := NewHeader()
	for {
		data, err := reader.buf.Peek(1)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if data[0] != '@' {
			break
		}
		line, err := reader.buf.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err := hdr.AddLine(string(trimLine(line))); err != nil {
			return nil, err
		}
		if err == io.EOF {
			break
		}
	}
	reader.header = hdr
	return hdr, nil
}

func parseRecord(hdr *Header, record []byte) (*Alignment, error) {
	var sc StringScanner
	sc.Reset(string(record))
	aln := sc.ParseAlignment()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if hdr != nil {
		hdr.ResolveReferences(aln)
	}
	return aln, nil
}

func (reader *samReader) ParseAlignment(record []byte) (*Alignment, error) {
	return parseRecord(reader.header, record)
}

func (reader *samReader) Err() error {
	return reader.err
}

func (*samReader) Prepare(_ context.Context) (size int) {
	return -1
}

func (reader *samReader) Fetch(size int) (fetched int) {
	records := make([][]byte, 0, size)
	for fetched < size {
		line, err := reader.buf.ReadBytes('\n')
		if line = trimLine(line); len(line) > 0 {
			records = append(records, line)
			fetched++
		}
		if err != nil {
			if err != io.EOF {
				reader.err = err
			}
			break
		}
	}
	reader.data = records
	return fetched
}

func (reader *samReader) Data() interface{} {
	return reader.data
}

func (reader *samReader) Close() error {
	if reader.rc == os.Stdin {
		return nil
	}
	return reader.rc.Close()
}

// samWriter is an alignmentWriter for SAM text output.
type samWriter struct {
	wc  io.WriteCloser
	buf *bufio.Writer
}

func newSamWriter(wc io.WriteCloser) *samWriter {
	return &samWriter{wc: wc, buf: bufio.NewWriter(wc)}
}

func (writer *samWriter) FormatHeader(hdr *Header) error {
	_, err := writer.buf.Write(hdr.Text())
	return err
}

func (*samWriter) FormatAlignment(aln *Alignment, out []byte) ([]byte, error) {
	return aln.Format(out), nil
}

func (writer *samWriter) Write(p []byte) (int, error) {
	return writer.buf.Write(p)
}

func (writer *samWriter) Close() error {
	if err := writer.buf.Flush(); err != nil {
		return err
	}
	if writer.wc == os.Stdout {
		return nil
	}
	return writer.wc.Close()
}
