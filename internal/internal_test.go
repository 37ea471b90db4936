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

package internal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTempFilename(t *testing.T) {
	name := TempFilename("/data/out/sample.bam")
	assert.Equal(t, "/data/out", filepath.Dir(name))
	assert.Equal(t, ".bam", filepath.Ext(name))
	assert.NotEqual(t, name, TempFilename("/data/out/sample.bam"))
}

func TestRandIsReproducible(t *testing.T) {
	r1, r2 := NewRand(1252863495), NewRand(1252863495)
	for i := 0; i < 100; i++ {
		n := int32(i%17 + 1)
		v := r1.Int31n(n)
		assert.Equal(t, v, r2.Int31n(n))
		assert.True(t, v >= 0 && v < n)
	}
}
