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
	"fmt"

	"github.com/exascience/pargo/pipeline"
)

const (
	minBatchSize = 4096
	maxBatchSize = 262144
)

// AlignmentToBytes returns a pargo pipeline.Filter that formats
// slices of Alignment pointers into slices of bytes representing
// these alignments according to the SAM/BAM file format.
func AlignmentToBytes(writer *OutputFile) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			alns := data.([]*Alignment)
			records := make([][]byte, 0, len(alns))
			var buf []byte
			var err error
			for _, aln := range alns {
				buf, err = writer.FormatAlignment(aln, buf)
				if err != nil {
					p.SetErr(fmt.Errorf("%v in AlignmentToBytes", err))
				}
				records = append(records, append([]byte(nil), buf...))
				buf = buf[:0]
			}
			return records
		}
		return
	}
}

// BytesToAlignment returns a pargo pipeline.Filter that parses
// slices of bytes representing alignments according to the SAM/BAM file
// format into slices of pointers to freshly allocated Alignment
// values.
func BytesToAlignment(reader *InputFile) pipeline.Filter {
	return func(p *pipeline.Pipeline, _ pipeline.NodeKind, _ *int) (receiver pipeline.Receiver, _ pipeline.Finalizer) {
		receiver = func(_ int, data interface{}) interface{} {
			records := data.([][]byte)
			alns := make([]*Alignment, 0, len(records))
			for _, record := range records {
				aln, err := reader.ParseAlignment(record)
				if err != nil {
					p.SetErr(fmt.Errorf("%v, while parsing SAM alignment %q", err, record))
					return alns
				}
				alns = append(alns, aln)
			}
			return alns
		}
		return
	}
}

// NewInputPipeline returns a pipeline that reads and parses the
// alignments of the given input file in batches.
func NewInputPipeline(input *InputFile) *pipeline.Pipeline {
	var p pipeline.Pipeline
	p.Source(input)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(pipeline.LimitedPar(0, BytesToAlignment(input)))
	return &p
}

// AddNodes adds the nodes that format the alignments they receive and
// write them in order to the output file.
func (f *OutputFile) AddNodes(p *pipeline.Pipeline) {
	p.Add(
		pipeline.LimitedPar(0, AlignmentToBytes(f)),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			var err error
			for _, aln := range data.([][]byte) {
				if _, err = f.Write(aln); err != nil {
					break
				}
			}
			if err != nil {
				p.SetErr(fmt.Errorf("%v, while writing SAM alignment strings to output", err))
			}
			return data
		})),
	)
}

// WriteAlignments formats and writes alignments outside of a pipeline.
func (f *OutputFile) WriteAlignments(alns []*Alignment) error {
	var buf []byte
	for _, aln := range alns {
		var err error
		if buf, err = f.FormatAlignment(aln, buf[:0]); err != nil {
			return err
		}
		if _, err = f.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
