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

package cmd

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFiles(t *testing.T) {
	dir, err := ioutil.TempDir("", "elrealign-cmd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	existing := filepath.Join(dir, "known.vcf")
	require.NoError(t, ioutil.WriteFile(existing, []byte("##fileformat=VCFv4.2\n"), 0666))

	assert.True(t, checkExist("--known-indels", existing))
	assert.False(t, checkExist("--known-indels", filepath.Join(dir, "missing.vcf")))
	assert.False(t, checkExist("--known-indels", ""))
	assert.False(t, checkExist("--known-indels", "--stats"))

	created := filepath.Join(dir, "reports", "stats.txt")
	assert.True(t, checkCreate("--stats", created))
	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err))

	files, ok := checkList("--known-indels", existing+","+existing)
	assert.True(t, ok)
	assert.Equal(t, []string{existing, existing}, files)
	_, ok = checkList("--known-indels", existing+","+filepath.Join(dir, "missing.vcf"))
	assert.False(t, ok)
	files, ok = checkList("--known-indels", "")
	assert.True(t, ok)
	assert.Nil(t, files)
}
