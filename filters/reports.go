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

package filters

import (
	"bufio"
	"io"
	"log"
	"os"
)

// A report is an auxiliary line-oriented output. A failing report logs
// a warning and stays silent for the rest of the run. A nil report
// discards everything.
type report struct {
	name   string
	w      *bufio.Writer
	closer io.Closer
}

func newReport(name string, w io.Writer) *report {
	r := &report{name: name, w: bufio.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		r.closer = closer
	}
	return r
}

func createReport(kind, name string) *report {
	if name == "" {
		return nil
	}
	f, err := os.Create(name)
	if err != nil {
		log.Printf("Warning: could not create %v output file %v, disabling it: %v", kind, name, err)
		return nil
	}
	return newReport(name, f)
}

func (r *report) writeLine(line string) {
	if r == nil || r.w == nil {
		return
	}
	if _, err := r.w.WriteString(line); err == nil {
		if err = r.w.WriteByte('\n'); err == nil {
			return
		}
	}
	log.Printf("Warning: failed to write to %v, disabling it.", r.name)
	r.w = nil
}

func (r *report) close() error {
	if r == nil {
		return nil
	}
	var err error
	if r.w != nil {
		err = r.w.Flush()
		r.w = nil
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reports are the optional outputs of the realigner: per interval
// statistics, accepted indels, and high-mismatch columns.
type Reports struct {
	stats, indels, snps *report
}

// CreateReports creates the report files with the given names. Empty
// names disable the corresponding report.
func CreateReports(stats, indels, snps string) *Reports {
	return &Reports{
		stats:  createReport("stats", stats),
		indels: createReport("indels", indels),
		snps:   createReport("snps", snps),
	}
}

// NewReports writes reports to the given writers, any of which may be
// nil.
func NewReports(stats, indels, snps io.Writer) *Reports {
	reports := &Reports{}
	if stats != nil {
		reports.stats = newReport("stats", stats)
	}
	if indels != nil {
		reports.indels = newReport("indels", indels)
	}
	if snps != nil {
		reports.snps = newReport("snps", snps)
	}
	return reports
}

// Close flushes and closes all reports. Failures only disable the
// report they belong to and are logged as warnings.
func (reports *Reports) Close() {
	if reports == nil {
		return
	}
	for _, r := range []*report{reports.stats, reports.indels, reports.snps} {
		if err := r.close(); err != nil {
			log.Printf("Warning: failed to close %v: %v", r.name, err)
		}
	}
}
