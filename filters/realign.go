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
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/exascience/elrealign/fasta"
	"github.com/exascience/elrealign/internal"
	"github.com/exascience/elrealign/intervals"
	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/vcf"
)

// A ConsensusModel determines where alternate consensuses come from.
type ConsensusModel int

const (
	// KnownsOnly uses known indels only.
	KnownsOnly ConsensusModel = iota
	// UseReads also uses indels already present in the reads.
	UseReads
	// UseSW additionally aligns mismatching reads against the
	// reference with Smith-Waterman.
	UseSW
)

var consensusModelNames = []string{"KNOWNS_ONLY", "USE_READS", "USE_SW"}

func (model ConsensusModel) String() string {
	if model < 0 || int(model) >= len(consensusModelNames) {
		return "ConsensusModel(" + strconv.Itoa(int(model)) + ")"
	}
	return consensusModelNames[model]
}

// ParseConsensusModel parses KNOWNS_ONLY, USE_READS or USE_SW, ignoring
// case.
func ParseConsensusModel(s string) (ConsensusModel, error) {
	for i, name := range consensusModelNames {
		if strings.EqualFold(s, name) {
			return ConsensusModel(i), nil
		}
	}
	return UseSW, fmt.Errorf("unknown consensus model %v", s)
}

// RealignerSeed is the seed of the random generator that samples reads
// for Smith-Waterman.
const RealignerSeed = 1252863495

// referencePadding is added on both sides of the reads of a window to
// handle deletions in narrow windows.
const referencePadding = 30

// RealignerConfig holds the parameters of an IndelRealigner.
type RealignerConfig struct {
	// LODThreshold is the minimum improvement, in units of 10 summed
	// mismatch qualities, for realigning the reads of an interval.
	LODThreshold float64
	// EntropyThreshold is the fraction of quality mass above which a
	// reference column counts as mismatching.
	EntropyThreshold float64

	MaxConsensuses         int
	MaxReadsForConsensuses int
	MaxReadsForRealignment int
	MaxIsizeForMovement    int32
	MaxPositionalMove      int32

	ConsensusModel ConsensusModel

	// TiesFavorAlternate assigns reads that score equally well on the
	// reference and on a consensus to the consensus.
	TiesFavorAlternate bool
	// AllowNegativeShift lets left alignment move an indel as far as
	// the leading aligned block permits instead of refusing the shift.
	AllowNegativeShift bool

	NoOriginalAlignmentTags bool
	RealignBadlyMatedReads  bool
	// CheckEarly skips Smith-Waterman for reads that already match a
	// consensus perfectly.
	CheckEarly bool
}

// DefaultRealignerConfig returns the default realigner parameters.
func DefaultRealignerConfig() RealignerConfig {
	return RealignerConfig{
		LODThreshold:           5.0,
		EntropyThreshold:       0.15,
		MaxConsensuses:         30,
		MaxReadsForConsensuses: 120,
		MaxReadsForRealignment: 20000,
		MaxIsizeForMovement:    3000,
		MaxPositionalMove:      200,
		ConsensusModel:         UseSW,
	}
}

// Validate checks the parameters for consistency.
func (config *RealignerConfig) Validate() error {
	switch {
	case config.LODThreshold < 0:
		return fmt.Errorf("LOD threshold cannot be negative: %v", config.LODThreshold)
	case config.EntropyThreshold <= 0 || config.EntropyThreshold > 1:
		return fmt.Errorf("entropy threshold must be a fraction between 0 and 1: %v", config.EntropyThreshold)
	case config.MaxConsensuses < 1:
		return fmt.Errorf("max consensuses must be positive: %v", config.MaxConsensuses)
	case config.MaxReadsForConsensuses < 1:
		return fmt.Errorf("max reads for consensuses must be positive: %v", config.MaxReadsForConsensuses)
	case config.MaxReadsForRealignment < 1:
		return fmt.Errorf("max reads for realignment must be positive: %v", config.MaxReadsForRealignment)
	case config.MaxIsizeForMovement < 0:
		return fmt.Errorf("max insert size for movement cannot be negative: %v", config.MaxIsizeForMovement)
	case config.MaxPositionalMove < 0:
		return fmt.Errorf("max positional move cannot be negative: %v", config.MaxPositionalMove)
	case config.ConsensusModel < KnownsOnly || config.ConsensusModel > UseSW:
		return fmt.Errorf("invalid consensus model %v", config.ConsensusModel)
	}
	return nil
}

// An OrderingError reports a read that is not in coordinate order.
type OrderingError struct {
	QNAME         string
	RNAME         string
	POS           int32
	PreviousRNAME string
	PreviousPOS   int32
}

func (err *OrderingError) Error() string {
	return fmt.Sprintf("read %v at %v:%v is out of coordinate order, it follows a read at %v:%v; the input must be coordinate sorted",
		err.QNAME, err.RNAME, err.POS, err.PreviousRNAME, err.PreviousPOS)
}

// A WindowCapacityError reports a read that the reference window of
// the current interval cannot cover, because it does not overlap the
// reads before it.
type WindowCapacityError struct {
	QNAME      string
	RNAME      string
	Start, End int32
	Window     intervals.Locus
}

func (err *WindowCapacityError) Error() string {
	return fmt.Sprintf("read %v at %v:%v-%v does not overlap the previous reads in window %v; please ensure that the target intervals were created from the same input",
		err.QNAME, err.RNAME, err.Start, err.End, err.Window)
}

// A readBin collects the reads of one interval and the reference
// window that covers them.
type readBin struct {
	reads  []*sam.Alignment
	contig string
	// start and stop are the 1-based span of the reads.
	start, stop int32

	reference []byte
	// leftmostIndex is the 1-based position of reference[0].
	leftmostIndex int32
}

func readSpan(aln *sam.Alignment) (int32, int32) {
	end := aln.End()
	if end < aln.POS {
		end = aln.POS
	}
	return aln.POS, end
}

func (bin *readBin) add(aln *sam.Alignment) error {
	start, end := readSpan(aln)
	if len(bin.reads) == 0 {
		bin.contig, bin.start, bin.stop = aln.RNAME, start, end
	} else {
		if aln.RNAME != bin.contig || start-1 > bin.stop {
			return &WindowCapacityError{
				QNAME:  aln.QNAME,
				RNAME:  aln.RNAME,
				Start:  start,
				End:    end,
				Window: bin.location(),
			}
		}
		if end > bin.stop {
			bin.stop = end
		}
	}
	bin.reads = append(bin.reads, aln)
	return nil
}

func (bin *readBin) location() intervals.Locus {
	return intervals.Locus{Contig: bin.contig, ContigIndex: -1, Interval: intervals.Interval{Start: bin.start, End: bin.stop}}
}

// fetch loads the padded reference window [start, end] of the bin's
// contig, clamped to the contig.
func (bin *readBin) fetch(reference fasta.Reference, start, end int32) error {
	padLeft := maxInt32(start-referencePadding, 1)
	padRight := end + referencePadding
	if length := reference.Len(bin.contig); length < 0 {
		return fmt.Errorf("contig %v not found in the reference", bin.contig)
	} else if padRight > int32(length) {
		padRight = int32(length)
	}
	seq, err := reference.Seq(bin.contig, int(padLeft-1), int(padRight-padLeft+1))
	if err != nil {
		return errors.Wrapf(err, "while fetching the reference window %v:%v-%v", bin.contig, padLeft, padRight)
	}
	bin.reference, bin.leftmostIndex = seq, padLeft
	return nil
}

func (bin *readBin) getReference(reference fasta.Reference) ([]byte, int32, error) {
	if bin.reference == nil {
		if err := bin.fetch(reference, bin.start, bin.stop); err != nil {
			return nil, 0, err
		}
	}
	return bin.reference, bin.leftmostIndex, nil
}

// cover extends the reference window so that it covers [start, end].
func (bin *readBin) cover(reference fasta.Reference, start, end int32) error {
	neededBasesToLeft := bin.leftmostIndex - start
	neededBasesToRight := end - bin.leftmostIndex - int32(len(bin.reference)) + 1
	if neededBases := maxInt32(neededBasesToLeft, neededBasesToRight); neededBases > 0 {
		return bin.fetch(reference, bin.leftmostIndex-neededBases+referencePadding,
			bin.leftmostIndex+int32(len(bin.reference))+neededBases-referencePadding)
	}
	return nil
}

func (bin *readBin) clear() {
	bin.reads = nil
	bin.reference = nil
	bin.contig = ""
}

// IndelRealigner realigns reads around indels in a coordinate-sorted
// stream of alignments. Reads are only considered in the given target
// intervals.
type IndelRealigner struct {
	config      RealignerConfig
	reference   fasta.Reference
	intervals   []intervals.Locus
	knownIndels *vcf.IndelIndex
	random      *internal.Rand
	reports     *Reports

	currentInterval          int
	sawReadInCurrentInterval bool

	sawRead   bool
	lastRefID int32
	lastRNAME string
	lastPOS   int32

	bin             readBin
	readsNotToClean []*sam.Alignment
	// pending holds emitted reads, sorted by coordinate, until no
	// realignment can move a read in front of them anymore.
	pending []*sam.Alignment

	nofIntervalsCleaned, nofReadsRealigned int
}

// NewIndelRealigner creates a realigner. The intervals must be resolved
// against the header and sorted. knownIndels, random and reports may
// be nil.
func NewIndelRealigner(config RealignerConfig, reference fasta.Reference, targets []intervals.Locus, knownIndels *vcf.IndelIndex, random *internal.Rand, reports *Reports) (*IndelRealigner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if random == nil {
		random = internal.NewRand(RealignerSeed)
	}
	if reports == nil {
		reports = &Reports{}
	}
	return &IndelRealigner{
		config:      config,
		reference:   reference,
		intervals:   targets,
		knownIndels: knownIndels,
		random:      random,
		reports:     reports,
	}, nil
}

// orderKey sorts reads without a reference after all others.
func orderKey(refID int32) int32 {
	if refID < 0 {
		return math.MaxInt32
	}
	return refID
}

func (r *IndelRealigner) checkOrder(aln *sam.Alignment) error {
	if r.sawRead {
		key, lastKey := orderKey(aln.REFID), orderKey(r.lastRefID)
		if key < lastKey || (key == lastKey && aln.REFID >= 0 && aln.POS < r.lastPOS) {
			return &OrderingError{
				QNAME:         aln.QNAME,
				RNAME:         aln.RNAME,
				POS:           aln.POS,
				PreviousRNAME: r.lastRNAME,
				PreviousPOS:   r.lastPOS,
			}
		}
	}
	r.sawRead = true
	r.lastRefID, r.lastRNAME, r.lastPOS = aln.REFID, aln.RNAME, aln.POS
	return nil
}

// Add processes the next read of the stream and returns the reads that
// are ready to be written, in coordinate order.
func (r *IndelRealigner) Add(aln *sam.Alignment) ([]*sam.Alignment, error) {
	if err := r.checkOrder(aln); err != nil {
		return nil, err
	}
	if err := r.process(aln); err != nil {
		return nil, err
	}
	return r.release(aln), nil
}

// Close cleans the last interval and returns all remaining reads.
func (r *IndelRealigner) Close() ([]*sam.Alignment, error) {
	var err error
	if len(r.bin.reads) > 0 {
		err = r.clean()
	}
	r.emitReadLists()
	result := r.pending
	r.pending = nil
	log.Printf("Realigned %v reads in %v intervals.", r.nofReadsRealigned, r.nofIntervalsCleaned)
	return result, err
}

func (r *IndelRealigner) emit(aln *sam.Alignment) {
	r.pending = append(r.pending, aln)
	if n := len(r.pending); n > 1 && sam.CoordinateLess(aln, r.pending[n-2]) {
		sam.By(sam.CoordinateLess).ParallelStableSort(r.pending)
	}
}

func (r *IndelRealigner) emitReadLists() {
	reads := append(r.readsNotToClean, r.bin.reads...)
	sam.By(sam.CoordinateLess).ParallelStableSort(reads)
	r.pending = append(r.pending, reads...)
	sam.By(sam.CoordinateLess).ParallelStableSort(r.pending)
	r.readsNotToClean = nil
	r.bin.clear()
}

// release returns the pending reads that no later realignment can
// overtake, given that aln is the last read seen.
func (r *IndelRealigner) release(aln *sam.Alignment) []*sam.Alignment {
	if len(r.pending) == 0 {
		return nil
	}
	if aln.REFID < 0 && len(r.bin.reads) == 0 && len(r.readsNotToClean) == 0 {
		result := r.pending
		r.pending = nil
		return result
	}
	refID, pos := aln.REFID, aln.POS
	for _, held := range [][]*sam.Alignment{r.readsNotToClean, r.bin.reads} {
		if len(held) > 0 && (held[0].REFID < refID || (held[0].REFID == refID && held[0].POS < pos)) {
			refID, pos = held[0].REFID, held[0].POS
		}
	}
	if refID < 0 {
		return nil
	}
	limit := pos - r.config.MaxPositionalMove
	n := 0
	for _, read := range r.pending {
		if read.REFID < 0 || read.REFID > refID || (read.REFID == refID && read.POS >= limit) {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}
	result := r.pending[:n:n]
	r.pending = r.pending[n:]
	return result
}

func isBefore(aln *sam.Alignment, stop int32, interval intervals.Locus) bool {
	return aln.REFID < interval.ContigIndex || (aln.REFID == interval.ContigIndex && stop < interval.Start)
}

func intervalBefore(interval intervals.Locus, aln *sam.Alignment, start int32) bool {
	return interval.ContigIndex < aln.REFID || (interval.ContigIndex == aln.REFID && interval.End < start)
}

func overlaps(aln *sam.Alignment, start, stop int32, interval intervals.Locus) bool {
	return aln.REFID == interval.ContigIndex && start <= interval.End && interval.Start <= stop
}

func hasBadMate(aln *sam.Alignment) bool {
	return aln.IsMultiple() && !aln.IsNextUnmapped() && aln.RNEXT != "=" && aln.RNEXT != aln.RNAME
}

func (r *IndelRealigner) doNotTryToClean(aln *sam.Alignment) bool {
	return aln.IsUnmapped() ||
		aln.IsSecondary() ||
		aln.IsQCFailed() ||
		aln.MAPQ == 0 ||
		aln.POS == 0 ||
		absInt32(aln.TLEN) > r.config.MaxIsizeForMovement ||
		(!r.config.RealignBadlyMatedReads && hasBadMate(aln)) ||
		len(aln.CIGAR) == 0 ||
		sam.IsClipped(aln.CIGAR) ||
		aln.SEQ == nil || len(aln.QUAL) != len(aln.SEQ)
}

func (r *IndelRealigner) process(aln *sam.Alignment) error {
	if r.currentInterval >= len(r.intervals) {
		r.emit(aln)
		return nil
	}
	if aln.REFID < 0 {
		return r.cleanAndProcess(aln, false)
	}
	start, stop := readSpan(aln)
	interval := r.intervals[r.currentInterval]
	switch {
	case isBefore(aln, stop, interval):
		if !r.sawReadInCurrentInterval {
			r.emit(aln)
		} else {
			r.readsNotToClean = append(r.readsNotToClean, aln)
		}
	case overlaps(aln, start, stop, interval):
		r.sawReadInCurrentInterval = true
		if r.doNotTryToClean(aln) {
			r.readsNotToClean = append(r.readsNotToClean, aln)
		} else if err := r.bin.add(aln); err != nil {
			return err
		}
		if len(r.bin.reads)+len(r.readsNotToClean) >= r.config.MaxReadsForRealignment {
			log.Printf("Not attempting realignment in interval %v because there are too many reads.", interval)
			r.emitReadLists()
			r.currentInterval++
			r.sawReadInCurrentInterval = false
		}
	default:
		return r.cleanAndProcess(aln, true)
	}
	return nil
}

func (r *IndelRealigner) cleanAndProcess(aln *sam.Alignment, mapped bool) error {
	if len(r.bin.reads) > 0 {
		if err := r.clean(); err != nil {
			return err
		}
	}
	r.emitReadLists()
	start, _ := readSpan(aln)
	for r.currentInterval++; r.currentInterval < len(r.intervals); r.currentInterval++ {
		if mapped && !intervalBefore(r.intervals[r.currentInterval], aln, start) {
			break
		}
	}
	r.sawReadInCurrentInterval = false
	return r.process(aln)
}
