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
	"strings"

	"github.com/exascience/pargo/pipeline"

	"github.com/exascience/elrealign/filters"
	"github.com/exascience/elrealign/sam"
	"github.com/exascience/elrealign/utils"
)

// LikelihoodsHelp is the help string for this command.
const LikelihoodsHelp = "likelihoods parameters:\n" +
	"elrealign likelihoods sam-file output-file\n" +
	"--reference elfasta-or-fasta\n" +
	"--target-intervals intervals-file\n" +
	"--known-indels list\n" +
	"[--haplotype-size nr]\n" +
	"[--gap-open-penalty nr]\n" +
	"[--gap-continuation-penalty nr]\n" +
	"[--no-context-dependent-gaps]\n" +
	"[--non-affine]\n" +
	"[--viterbi]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

func runLikelihoods(fileIn, fileOut, referenceFile, targetIntervals string, knownIndelFiles []string, hmmConfig filters.PairHMMConfig, haplotypeSize int, timed bool, profile string) error {
	return timedRun(timed, profile, "Computing indel likelihoods.", 1, func() (err error) {
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

		pathname, err := filepath.Abs(fileOut)
		if err != nil {
			return err
		}
		if err = os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return err
		}
		output, err := os.Create(pathname)
		if err != nil {
			return err
		}

		likelihoods, err := filters.NewIndelLikelihoods(inputs.reference, inputs.targets, inputs.knownIndels, filters.NewPairHMM(hmmConfig), haplotypeSize, output)
		if err != nil {
			_ = output.Close()
			return err
		}

		p := sam.NewInputPipeline(input)
		p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			for _, aln := range data.([]*sam.Alignment) {
				if err := likelihoods.Add(aln); err != nil {
					p.SetErr(err)
					break
				}
			}
			return nil
		})))
		p.Run()
		if err = p.Err(); err != nil {
			_ = output.Close()
			return err
		}
		return likelihoods.Close()
	})
}

// Likelihoods implements the elrealign likelihoods command.
func Likelihoods() error {
	var (
		referenceFile, targetIntervals, knownIndels string
		haplotypeSize                               int
		noContextDependentGaps                      bool
		nrOfThreads                                 int
		timed                                       bool
		profile, logPath                            string
	)

	hmmConfig := filters.DefaultPairHMMConfig()

	var flags flag.FlagSet
	flags.StringVar(&referenceFile, "reference", "", "reference sequence (elfasta or fasta format)")
	flags.StringVar(&targetIntervals, "target-intervals", "", "intervals to evaluate (interval list or bed format)")
	flags.StringVar(&knownIndels, "known-indels", "", "list of vcf files containing the indels to evaluate")
	flags.IntVar(&haplotypeSize, "haplotype-size", filters.DefaultHaplotypeSize, "length of the reference window around each indel")
	flags.Float64Var(&hmmConfig.GapOpenPenalty, "gap-open-penalty", hmmConfig.GapOpenPenalty, "phred-scaled gap open penalty")
	flags.Float64Var(&hmmConfig.GapContinuationPenalty, "gap-continuation-penalty", hmmConfig.GapContinuationPenalty, "phred-scaled gap continuation penalty")
	flags.BoolVar(&noContextDependentGaps, "no-context-dependent-gaps", false, "do not lower gap penalties in homopolymer runs")
	flags.BoolVar(&hmmConfig.NonAffine, "non-affine", false, "use the pair-HMM with linear gap costs")
	flags.BoolVar(&hmmConfig.Viterbi, "viterbi", false, "score the best alignment instead of summing over all alignments")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, LikelihoodsHelp)

	input := getFilename(os.Args[2], LikelihoodsHelp)
	output := getFilename(os.Args[3], LikelihoodsHelp)

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
	if knownIndels == "" {
		log.Println("Error: Attempt to compute indel likelihoods without specifying known indels. Please add the --known-indels option to your call.")
		sanityChecksFailed = true
	}
	knownIndelFiles, ok := checkList("--known-indels", knownIndels)
	if !ok {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if hmmConfig.GapOpenPenalty <= 0 || hmmConfig.GapContinuationPenalty <= 0 {
		log.Println("Error: gap penalties must be positive.")
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, LikelihoodsHelp)
		os.Exit(1)
	}

	hmmConfig.ContextDependentGaps = !noContextDependentGaps

	command := []string{utils.ProgramName, "likelihoods", input, output,
		"--reference", referenceFile,
		"--target-intervals", targetIntervals,
		"--known-indels", knownIndels,
	}
	if hmmConfig.NonAffine {
		command = append(command, "--non-affine")
	}
	if hmmConfig.Viterbi {
		command = append(command, "--viterbi")
	}
	log.Println("Executing command:\n", strings.Join(command, " "))

	setThreads(nrOfThreads)

	return runLikelihoods(input, output, referenceFile, targetIntervals, knownIndelFiles, hmmConfig, haplotypeSize, timed, profile)
}
