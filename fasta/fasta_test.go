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

package fasta

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFasta = ">chr1 first contig\nACGTacgt\nNNryAC\n\n>chr2\nGGGG\n"

func TestParseFasta(t *testing.T) {
	fasta, err := parseFasta(strings.NewReader(testFasta), nil)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGTNNNNAC", string(fasta["chr1"]))
	assert.Equal(t, "GGGG", string(fasta["chr2"]))

	_, err = parseFasta(strings.NewReader("ACGT\n"), nil)
	assert.Error(t, err)
	_, err = parseFasta(strings.NewReader("\n\n"), nil)
	assert.Error(t, err)
}

func TestToUpperAndN(t *testing.T) {
	assert.Equal(t, byte('A'), ToUpperAndN('a'))
	assert.Equal(t, byte('N'), ToUpperAndN('n'))
	assert.Equal(t, byte('N'), ToUpperAndN('R'))
	assert.Equal(t, byte('N'), ToUpperAndN('k'))
	assert.Equal(t, byte('T'), ToUpperAndN('T'))
	assert.Equal(t, byte('-'), ToUpperAndN('-'))
}

func TestReferenceSeq(t *testing.T) {
	fasta, err := parseFasta(strings.NewReader(testFasta), nil)
	require.NoError(t, err)

	seq, err := fasta.Seq("chr1", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "GTAC", string(seq))

	seq, err = fasta.Seq("chr1", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, "NNAC", string(seq))

	_, err = fasta.Seq("chrX", 0, 1)
	assert.Error(t, err)
	_, err = fasta.Seq("chr1", 15, 1)
	assert.Error(t, err)

	assert.Equal(t, 14, fasta.Len("chr1"))
	assert.Equal(t, -1, fasta.Len("chrX"))
}

func TestGzippedFastaAndElfasta(t *testing.T) {
	dir := t.TempDir()
	gzName := filepath.Join(dir, "ref.fa.gz")
	f, err := os.Create(gzName)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(testFasta))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	ref, closeRef, err := OpenReference(gzName)
	require.NoError(t, err)
	seq, err := ref.Seq("chr2", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "GGGG", string(seq))
	require.NoError(t, closeRef())

	fasta, err := ParseFasta(gzName, nil)
	require.NoError(t, err)
	elName := filepath.Join(dir, "ref.elfasta")
	require.NoError(t, ToElfasta(fasta, elName))

	mapped, closeMapped, err := OpenReference(elName)
	require.NoError(t, err)
	for contig, bases := range fasta {
		seq, err := mapped.Seq(contig, 0, len(bases))
		require.NoError(t, err)
		assert.Equal(t, string(bases), string(seq))
		assert.Equal(t, len(bases), mapped.Len(contig))
	}
	assert.NoError(t, closeMapped())
}

func TestOpenElfastaRejectsOtherFiles(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bogus.elfasta")
	require.NoError(t, ioutil.WriteFile(name, []byte(testFasta), 0644))
	assert.Error(t, OpenElfasta(name).Err())
}
