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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHaplotypeTrellis(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	assert.InDelta(t, -10*math.Log10(1-1e-3), trellis.deletionCosts[1], 1e-12)
	sum := 1 + math.Exp(-1)
	assert.InDelta(t, -10*math.Log10(1e-3/sum), trellis.deletionCosts[2], 1e-9)
	assert.InDelta(t, -10*math.Log10(1e-3*math.Exp(-1)/sum), trellis.deletionCosts[3], 1e-9)

	config := DefaultTrellisConfig()
	config.MaxDeletionLength = 0
	_, err = NewHaplotypeTrellis(config)
	assert.Error(t, err)

	config = DefaultTrellisConfig()
	config.InsertionEndProbability = 1
	_, err = NewHaplotypeTrellis(config)
	assert.Error(t, err)
}

func TestTrellisAlignsExactMatch(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	haplotype := []byte("ACGTACGT")
	score, path := trellis.Align(haplotype, haplotype, uniformQuals(len(haplotype), 30))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, path)
	assert.InDelta(t, 8*(trellisMatchCost[30]+trellis.deletionCosts[1]), score, 1e-9)
}

func TestTrellisAlignsDeletion(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	score, path := trellis.Align([]byte("ACGTAGCA"), []byte("ACGTGCA"), uniformQuals(7, 30))
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8}, path)
	expected := 7*trellisMatchCost[30] + 6*trellis.deletionCosts[1] + trellis.deletionCosts[2] + trellis.oneMinusInsertionStart
	assert.InDelta(t, expected, score, 1e-9)
}

func TestTrellisMismatchCost(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	exact, _ := trellis.Align([]byte("ACGTACGT"), []byte("ACGTACGT"), uniformQuals(8, 20))
	mismatch, path := trellis.Align([]byte("ACGTACGT"), []byte("ACGTTCGT"), uniformQuals(8, 20))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, path)
	assert.InDelta(t, exact-trellisMatchCost[20]+20, mismatch, 1e-9)
}

func TestTrellisEmptyRead(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	score, path := trellis.Align([]byte("ACGT"), nil, nil)
	assert.Equal(t, 0.0, score)
	assert.Nil(t, path)
}

func TestTrellisChargesOverhangAsMismatch(t *testing.T) {
	trellis, err := NewHaplotypeTrellis(DefaultTrellisConfig())
	require.NoError(t, err)
	score, path := trellis.Align([]byte("ACGT"), []byte("ACGTAA"), uniformQuals(6, 20))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 5}, path)
	expected := 4*trellisMatchCost[20] + 5*trellis.deletionCosts[1] + 2*20
	assert.InDelta(t, expected, score, 1e-9)

	// sliding off the right end is not cheaper than one mismatch
	_, path = trellis.Align([]byte("ACGTAGCA"), []byte("ACGTAGCT"), uniformQuals(8, 20))
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, path)
}
