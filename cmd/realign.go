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
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"
	"github.com/pkg/errors"

	"github.com/exascience/elrealign/fasta"
	"github.com/exascience/elrealign/filters"
	"github.com/exascience/elrealign/intervals"
	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/utils"
	"github.com/exascience/elrealign/vcf"
)

// RealignHelp is the help string for this command.
const RealignHelp = "realign parameters:\n" +
	"elrealign realign sam-file sam-output-file\n" +
	"--reference elfasta-or-fasta\n" +
	"--target-intervals intervals-file\n" +
	"[--known-indels list]\n" +
	"[--consensus-model [knowns_only | use_reads | use_sw]]\n" +
	"[--lod-threshold nr]\n" +
	"[--entropy-threshold nr]\n" +
	"[--max-consensuses nr]\n" +
	"[--max-reads-for-consensuses nr]\n" +
	"[--max-reads-for-realignment nr]\n" +
	"[--max-isize-for-movement nr]\n" +
	"[--max-positional-move nr]\n" +
	"[--ties-favor-alternate]\n" +
	"[--allow-negative-shift]\n" +
	"[--no-original-alignment-tags]\n" +
	"[--realign-badly-mated-reads]\n" +
	"[--check-early]\n" +
	"[--stats file]\n" +
	"[--indels file]\n" +
	"[--snps file]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// realignmentInputs are the reference data shared by the realign and
// likelihoods commands.
type realignmentInputs struct {
	reference      fasta.Reference
	closeReference func() error
	targets        []intervals.Locus
	knownIndels    *vcf.IndelIndex
}

func loadRealignmentInputs(hdr *sam.Header, referenceFile, targetIntervals string, knownIndelFiles []string) (inputs realignmentInputs, err error) {
	inputs.reference, inputs.closeReference, err = fasta.OpenReference(referenceFile)
	if err != nil {
		return inputs, err
	}
	inputs.targets, err = intervals.Load(targetIntervals, hdr, inputs.reference.Len)
	if err != nil {
		_ = inputs.closeReference()
		return inputs, err
	}
	if len(knownIndelFiles) > 0 {
		inputs.knownIndels, err = vcf.LoadKnownIndels(knownIndelFiles...)
		if err != nil {
			_ = inputs.closeReference()
			return inputs, err
		}
		log.Printf("Loaded %v known indels.", inputs.knownIndels.Len())
	}
	log.Printf("Loaded %v target intervals.", len(inputs.targets))
	return inputs, nil
}

func openInput(fileIn string) (*sam.InputFile, *sam.Header, error) {
	pathname, err := filepath.Abs(fileIn)
	if err != nil {
		return nil, nil, err
	}
	input, err := sam.Open(pathname)
	if err != nil {
		return nil, nil, err
	}
	hdr, err := input.ParseHeader()
	if err != nil {
		_ = input.Close()
		return nil, nil, errors.Wrapf(err, "while reading the header of %v", fileIn)
	}
	if so := hdr.HDSO(); so != "coordinate" {
		log.Printf("Warning: %v declares sorting order %v, reads must be sorted by coordinate.", fileIn, so)
	}
	return input, hdr, nil
}

func runRealigner(fileIn, fileOut, referenceFile, targetIntervals string, knownIndelFiles []string, config filters.RealignerConfig, stats, indels, snps string, timed bool, profile string) error {
	return timedRun(timed, profile, "Realigning reads.", 1, func() (err error) {
		input, hdr, err := openInput(fileIn)
		if err != nil {
			return err
		}
		defer func() {
			if nerr := input.Close(); err == nil {
				err = nerr
			}
		}()

		inputs, err := loadRealignmentInputs(hdr, referenceFile, targetIntervals, knownIndelFiles)
		if err != nil {
			return err
		}
		defer func() {
			if nerr := inputs.closeReference(); err == nil {
				err = nerr
			}
		}()

		reports := filters.CreateReports(stats, indels, snps)
		defer reports.Close()

		realigner, err := filters.NewIndelRealigner(config, inputs.reference, inputs.targets, inputs.knownIndels, nil, reports)
		if err != nil {
			return err
		}

		pathname, err := filepath.Abs(fileOut)
		if err != nil {
			return err
		}
		if err = os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return err
		}
		output, err := sam.Create(pathname)
		if err != nil {
			return err
		}
		defer func() {
			if nerr := output.Close(); err == nil {
				err = nerr
			}
		}()

		hdr.AddPG(utils.ProgramName, utils.ProgramName, utils.ProgramVersion, strings.Join(os.Args, " "))
		if err = output.FormatHeader(hdr); err != nil {
			return err
		}

		p := sam.NewInputPipeline(input)
		p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			var result []*sam.Alignment
			for _, aln := range data.([]*sam.Alignment) {
				released, err := realigner.Add(aln)
				if err != nil {
					p.SetErr(err)
					return result
				}
				result = append(result, released...)
			}
			return result
		})))
		output.AddNodes(p)
		p.Run()
		if err = p.Err(); err != nil {
			return err
		}
		rest, err := realigner.Close()
		if err != nil {
			return err
		}
		return output.WriteAlignments(rest)
	})
}

// Realign implements the elrealign realign command.
func Realign() error {
	var (
		referenceFile, targetIntervals, knownIndels string
		consensusModel                              string
		maxIsizeForMovement, maxPositionalMove      int
		stats, indels, snps                         string
		nrOfThreads                                 int
		timed                                       bool
		profile, logPath                            string
	)

	config := filters.DefaultRealignerConfig()

	var flags flag.FlagSet
	flags.StringVar(&referenceFile, "reference", "", "reference sequence (elfasta or fasta format)")
	flags.StringVar(&targetIntervals, "target-intervals", "", "intervals to realign (interval list or bed format)")
	flags.StringVar(&knownIndels, "known-indels", "", "list of vcf files containing known indels")
	flags.StringVar(&consensusModel, "consensus-model", config.ConsensusModel.String(), "where to find alternate consensuses, one of knowns_only, use_reads, or use_sw")
	flags.Float64Var(&config.LODThreshold, "lod-threshold", config.LODThreshold, "minimum improvement for realigning an interval")
	flags.Float64Var(&config.EntropyThreshold, "entropy-threshold", config.EntropyThreshold, "fraction of mismatching quality for which a column counts as mismatching")
	flags.IntVar(&config.MaxConsensuses, "max-consensuses", config.MaxConsensuses, "maximum number of consensuses to try")
	flags.IntVar(&config.MaxReadsForConsensuses, "max-reads-for-consensuses", config.MaxReadsForConsensuses, "maximum number of reads used for finding consensuses")
	flags.IntVar(&config.MaxReadsForRealignment, "max-reads-for-realignment", config.MaxReadsForRealignment, "maximum number of reads in an interval for realigning it")
	flags.IntVar(&maxIsizeForMovement, "max-isize-for-movement", int(config.MaxIsizeForMovement), "maximum insert size of reads that can be moved")
	flags.IntVar(&maxPositionalMove, "max-positional-move", int(config.MaxPositionalMove), "maximum number of bases a read can be moved")
	flags.BoolVar(&config.TiesFavorAlternate, "ties-favor-alternate", false, "prefer the alternate consensus when a read scores equally well on the reference")
	flags.BoolVar(&config.AllowNegativeShift, "allow-negative-shift", false, "allow left alignment to shift indels past the leading aligned block")
	flags.BoolVar(&config.NoOriginalAlignmentTags, "no-original-alignment-tags", false, "do not store original cigars and positions in OC and OP tags")
	flags.BoolVar(&config.RealignBadlyMatedReads, "realign-badly-mated-reads", false, "also realign reads whose mates map to other contigs")
	flags.BoolVar(&config.CheckEarly, "check-early", false, "skip Smith-Waterman for reads that already match a consensus")
	flags.StringVar(&stats, "stats", "", "write per interval statistics to the specified file")
	flags.StringVar(&indels, "indels", "", "write realigned indels to the specified file")
	flags.StringVar(&snps, "snps", "", "write mismatching columns to the specified file")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, RealignHelp)

	input := getFilename(os.Args[2], RealignHelp)
	output := getFilename(os.Args[3], RealignHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if !checkExist("--reference", referenceFile) {
		sanityChecksFailed = true
	}
	if !checkExist("--target-intervals", targetIntervals) {
		sanityChecksFailed = true
	}
	knownIndelFiles, ok := checkList("--known-indels", knownIndels)
	if !ok {
		sanityChecksFailed = true
	}
	for _, report := range []struct{ flag, file string }{{"--stats", stats}, {"--indels", indels}, {"--snps", snps}, {"--profile", profile}} {
		if report.file != "" && !checkCreate(report.flag, report.file) {
			sanityChecksFailed = true
		}
	}

	model, err := filters.ParseConsensusModel(consensusModel)
	if err != nil {
		log.Println("Error:", err)
		sanityChecksFailed = true
	}
	config.ConsensusModel = model
	config.MaxIsizeForMovement = int32(maxIsizeForMovement)
	config.MaxPositionalMove = int32(maxPositionalMove)
	if err := config.Validate(); err != nil {
		log.Println("Error:", err)
		sanityChecksFailed = true
	}

	if model == filters.KnownsOnly && len(knownIndelFiles) == 0 {
		log.Println("Warning: consensus model knowns_only without --known-indels will not realign any reads.")
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, RealignHelp)
		os.Exit(1)
	}

	// building the command line

	command := []string{utils.ProgramName, "realign", input, output,
		"--reference", referenceFile,
		"--target-intervals", targetIntervals,
		"--consensus-model", model.String(),
	}
	if knownIndels != "" {
		command = append(command, "--known-indels", knownIndels)
	}
	if nrOfThreads > 0 {
		command = append(command, "--nr-of-threads", strconv.Itoa(nrOfThreads))
	}
	log.Println("Executing command:\n", strings.Join(command, " "))

	setThreads(nrOfThreads)

	return runRealigner(input, output, referenceFile, targetIntervals, knownIndelFiles, config, stats, indels, snps, timed, profile)
}
