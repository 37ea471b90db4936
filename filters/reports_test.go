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
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestReportsToFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "reports")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	stats := filepath.Join(dir, "stats.txt")
	reports := CreateReports(stats, "", filepath.Join(dir, "missing", "snps.txt"))
	assert.Nil(t, reports.indels)
	assert.Nil(t, reports.snps)
	reports.stats.writeLine("chr1:1-20\tFAIL\t1.0")
	reports.indels.writeLine("ignored")
	reports.Close()

	content, err := ioutil.ReadFile(stats)
	require.NoError(t, err)
	assert.Equal(t, "chr1:1-20\tFAIL\t1.0\n", string(content))
}

func TestFailingReportIsDisabled(t *testing.T) {
	r := newReport("stats", failingWriter{})
	for i := 0; i < 5000; i++ {
		r.writeLine("chr1:1-20\tCLEAN\t12.5")
	}
	assert.Nil(t, r.w)
	assert.NoError(t, r.close())
}

func TestReportsCloseIgnoresFailingSink(t *testing.T) {
	var snps bytes.Buffer
	reports := NewReports(failingWriter{}, nil, &snps)
	reports.stats.writeLine("chr1:1-20\tCLEAN\t12.5")
	reports.snps.writeLine("chr1:10 SAME_SNP")
	assert.NotPanics(t, reports.Close)
	assert.Nil(t, reports.stats.w)
	assert.Equal(t, "chr1:10 SAME_SNP\n", snps.String())
}
