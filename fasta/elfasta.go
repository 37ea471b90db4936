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
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type offsetTableEntry struct {
	contig string
	offset int
}

// ElfastaMagic is the magic byte sequence that every .elfasta file starts with.
var ElfastaMagic = []byte{0x31, 0xFA, 0x57, 0xA1} // 31FA57A1 => ELFASTA1

// ToElfasta stores fasta data into a mmappable .elfasta file. Contigs
// are stored in lexicographic order.
func ToElfasta(fasta Fasta, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	contigs := make([]string, 0, len(fasta))
	for contig := range fasta {
		contigs = append(contigs, contig)
	}
	sort.Strings(contigs)

	write := func(b []byte) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = file.Write(b)
		return n
	}

	offset := write(ElfastaMagic)
	var offsetTable []offsetTableEntry
	for _, contig := range contigs {
		offset += write(append([]byte(contig), '\t'))
		offsetTable = append(offsetTable, offsetTableEntry{contig: contig, offset: offset})
		offset += write(make([]byte, 2*binary.MaxVarintLen64))
	}
	offset += write([]byte{'\n'})
	offsetMap := make(map[string]int)
	for _, contig := range contigs {
		offsetMap[contig] = offset
		offset += write(fasta[contig])
	}
	if err != nil {
		return errors.Wrapf(err, "writing %v", filename)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, offset, unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrapf(err, "mapping %v", filename)
	}
	for _, entry := range offsetTable {
		binary.PutVarint(data[entry.offset:entry.offset+binary.MaxVarintLen64], int64(offsetMap[entry.contig]))
		binary.PutVarint(data[entry.offset+binary.MaxVarintLen64:entry.offset+2*binary.MaxVarintLen64], int64(len(fasta[entry.contig])))
	}
	return errors.Wrapf(unix.Munmap(data), "unmapping %v", filename)
}

// MappedFasta represents the contents of an .elfasta file. The file is
// mapped in the background; accessors wait for the mapping to finish.
type MappedFasta struct {
	wait  sync.WaitGroup
	fasta Fasta
	data  []byte
	file  *os.File
	err   error
}

// OpenElfasta opens a .elfasta file.
func OpenElfasta(filename string) *MappedFasta {
	result := new(MappedFasta)
	result.wait.Add(1)
	go func() {
		defer result.wait.Done()
		result.err = result.load(filename)
	}()
	return result
}

func (fasta *MappedFasta) load(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	size := int(stat.Size())
	if size <= len(ElfastaMagic) {
		_ = file.Close()
		return errors.Errorf("%v is not a .elfasta file: file too short", filename)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "mapping %v", filename)
	}
	fail := func(format string) error {
		_ = unix.Munmap(data)
		_ = file.Close()
		return errors.Errorf(format, filename)
	}
	for i, b := range ElfastaMagic {
		if data[i] != b {
			return fail("%v is not a .elfasta file: invalid magic byte sequence")
		}
	}
	contigs := make(Fasta)
	index := len(ElfastaMagic)
	for index < size && data[index] != '\n' {
		start := index
		for ; index < size && data[index] != '\t'; index++ {
		}
		if index+1+2*binary.MaxVarintLen64 > size {
			return fail("truncated offset table in elfasta file %v")
		}
		contig := string(data[start:index])
		index++
		offset, n := binary.Varint(data[index : index+binary.MaxVarintLen64])
		if n <= 0 {
			return fail("bad number of bytes while parsing offset in elfasta file %v")
		}
		length, n := binary.Varint(data[index+binary.MaxVarintLen64 : index+2*binary.MaxVarintLen64])
		if n <= 0 || int(offset+length) > size {
			return fail("bad number of bytes while parsing size in elfasta file %v")
		}
		contigs[contig] = data[int(offset):int(offset+length)]
		index += 2 * binary.MaxVarintLen64
	}
	fasta.fasta, fasta.data, fasta.file = contigs, data, file
	return nil
}

// Err waits for the mapping and returns any error that occurred.
func (fasta *MappedFasta) Err() error {
	fasta.wait.Wait()
	return fasta.err
}

// Close unmaps and closes the .elfasta file.
func (fasta *MappedFasta) Close() error {
	fasta.wait.Wait()
	if fasta.data == nil {
		return fasta.err
	}
	err := unix.Munmap(fasta.data)
	if nerr := fasta.file.Close(); err == nil {
		err = nerr
	}
	fasta.data, fasta.file, fasta.fasta = nil, nil, nil
	return err
}

// Contig returns the mapped bases of a contig. The result must not be
// modified.
func (fasta *MappedFasta) Contig(contig string) ([]byte, bool) {
	fasta.wait.Wait()
	seq, ok := fasta.fasta[contig]
	return seq, ok
}
