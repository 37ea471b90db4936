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

package intervals

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDictionary map[string]int32

func (d testDictionary) ContigIndex(contig string) int32 {
	if index, ok := d[contig]; ok {
		return index
	}
	return -1
}

var dictionary = testDictionary{"chr1": 0, "chr2": 1, "chrM": 2}

func TestParseLocus(t *testing.T) {
	tests := []struct {
		in     string
		locus  Locus
		hasErr bool
	}{
		{"chr1:100-200", Locus{"chr1", -1, Interval{100, 200}}, false},
		{"chr1:1,000-2,000", Locus{"chr1", -1, Interval{1000, 2000}}, false},
		{"chr2:15", Locus{"chr2", -1, Interval{15, 15}}, false},
		{"chrM", Locus{"chrM", -1, Interval{1, 500}}, false},
		{"chr1:200-100", Locus{}, true},
		{"chr1:x-100", Locus{}, true},
		{"chr1:0", Locus{}, true},
	}
	for _, test := range tests {
		locus, err := ParseLocus(test.in, 500)
		if test.hasErr {
			assert.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		assert.Equal(t, test.locus, locus, test.in)
	}
	assert.Equal(t, "chr1:100-200", Locus{"chr1", 0, Interval{100, 200}}.String())
}

func TestParseIntervalList(t *testing.T) {
	input := "@HD\tVN:1.6\n# comment\nchr1:10-20\n\nchr2\t5\t9\t+\ttarget\n"
	loci, err := ParseIntervalList(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, loci, 2)
	assert.Equal(t, Interval{10, 20}, loci[0].Interval)
	assert.Equal(t, "chr2", loci[1].Contig)
	assert.Equal(t, Interval{5, 9}, loci[1].Interval)
}

func TestParseBed(t *testing.T) {
	input := "track name=x\nchr1\t0\t10\tname\nchr1\t20\t20\nchr2\t4\t5\n"
	loci, err := ParseBed(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, loci, 2)
	assert.Equal(t, Interval{1, 10}, loci[0].Interval)
	assert.Equal(t, Interval{5, 5}, loci[1].Interval)

	_, err = ParseBed(strings.NewReader("chr1\t5\n"))
	assert.Error(t, err)
}

func TestExtend(t *testing.T) {
	interval := Interval{2, 3}
	assert.True(t, interval.Extend(Interval{4, 5}))
	assert.Equal(t, Interval{2, 5}, interval)
	assert.False(t, interval.Extend(Interval{7, 9}))
	assert.True(t, interval.Extend(Interval{3, 4}))
	assert.Equal(t, Interval{2, 5}, interval)
	assert.True(t, interval.Contains(5))
	assert.False(t, interval.Contains(6))
}

func TestResolveSortMerge(t *testing.T) {
	loci := []Locus{
		{"chr2", -1, Interval{5, 9}},
		{"chr1", -1, Interval{30, 40}},
		{"chr1", -1, Interval{10, 20}},
		{"chr1", -1, Interval{21, 25}},
		{"chrM", -1, Interval{1, 1 << 30}},
		{"chr2", -1, Interval{7, 12}},
		{"chr1", -1, Interval{35, 50}},
	}
	require.NoError(t, Resolve(loci, dictionary, func(contig string) int {
		if contig == "chrM" {
			return 16569
		}
		return 1000000
	}))
	SortLoci(loci)
	merged := Merge(loci)
	assert.Equal(t, []Locus{
		{"chr1", 0, Interval{10, 25}},
		{"chr1", 0, Interval{30, 50}},
		{"chr2", 1, Interval{5, 12}},
		{"chrM", 2, Interval{1, 16569}},
	}, merged)

	assert.Error(t, Resolve([]Locus{{"chrX", -1, Interval{1, 2}}}, dictionary, nil))
	assert.Empty(t, Merge(nil))
}

func TestMergeLargeInput(t *testing.T) {
	loci := make([]Locus, 0x10000)
	loci[0] = Locus{"chr1", 0, Interval{1, 4}}
	for i := 1; i < len(loci); i++ {
		start := loci[i-1].End + 3
		if rand.Intn(100) < 20 {
			start = loci[i-1].End - 1
		}
		loci[i] = Locus{"chr1", 0, Interval{start, start + 3}}
	}
	rand.Shuffle(len(loci), func(i, j int) { loci[i], loci[j] = loci[j], loci[i] })
	SortLoci(loci)
	merged := Merge(loci)
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i].Start > merged[i-1].End+1, "merged loci must be disjoint and not abutting")
	}
}
