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

// Package sam implements the alignment records that the realigner
// operates on, and reading and writing them from and to .sam and .bam
// files.
//
// InputFile values are pargo pipeline sources that deliver batches of
// raw alignment records. BytesToAlignment and AlignmentToBytes are
// pipeline filters that convert such batches from and to parsed
// Alignment values, so that parsing and formatting can run in parallel
// while the realigner itself consumes alignments in file order. See
// https://godoc.org/github.com/ExaScience/pargo/pipeline for details
// of pargo pipelines.
package sam
