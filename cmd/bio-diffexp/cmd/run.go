package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/rnaseq/diffexp"
	"github.com/grailbio/rnaseq/encoding/counts"
	"v.io/x/lib/cmdline"
)

type runFlags struct {
	outPrefix      string
	method         string
	contrast       string
	fdrThreshold   float64
	writeCPM       bool
	writeArtifact  bool
	splitDirection bool
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Run the differential expression pipeline",
		ArgsName: "countspath labelspath",
	}
	opts := diffexp.DefaultOpts
	flags := runFlags{}
	cmd.Flags.StringVar(&flags.outPrefix, "out", "bio-diffexp", "Output path prefix")
	cmd.Flags.StringVar(&flags.method, "method", "", "Test method; 'exact' or 'glm'. By default, exact for two classes and glm otherwise")
	cmd.Flags.StringVar(&flags.contrast, "contrast", "", "Class contrast for -method=glm, e.g. 'tumor=1,normal=-1'. Coefficients must sum to zero. Defaults to second class vs first when there are exactly two")
	cmd.Flags.StringVar(&opts.NormMethod, "norm", diffexp.DefaultOpts.NormMethod, "Normalization method; 'tmm', 'rle', 'uq', or 'none'")
	cmd.Flags.Float64Var(&opts.CPMThreshold, "cpm-threshold", diffexp.DefaultOpts.CPMThreshold, "CPM a gene must exceed for a sample to count toward -min-samples")
	cmd.Flags.IntVar(&opts.MinSamples, "min-samples", diffexp.DefaultOpts.MinSamples, "Number of samples that must exceed -cpm-threshold to retain a gene")
	cmd.Flags.Float64Var(&opts.PriorDF, "prior-df", diffexp.DefaultOpts.PriorDF, "Prior degrees of freedom for tagwise dispersion shrinkage")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", 0, "Maximum number of simultaneous fitting jobs; 0 = runtime.NumCPU()")
	cmd.Flags.Float64Var(&flags.fdrThreshold, "fdr", diffexp.DefaultFDRThreshold, "FDR cutoff for the significant gene lists")
	cmd.Flags.BoolVar(&flags.writeCPM, "cpm-output", false, "Also write the normalized CPM matrix")
	cmd.Flags.BoolVar(&flags.writeArtifact, "rio-output", true, "Also write a recordio artifact of the full run")
	cmd.Flags.BoolVar(&flags.splitDirection, "split-direction", false, "Write separate up- and down-regulated significant gene lists")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("run takes countspath labelspath, but got %v", argv)
		}
		return runPipeline(argv[0], argv[1], flags, opts)
	})
	return cmd
}

func runPipeline(countsPath, labelsPath string, flags runFlags, opts diffexp.Opts) error {
	ctx := vcontext.Background()
	m, err := counts.ReadMatrix(ctx, countsPath)
	if err != nil {
		return err
	}
	labels, err := counts.ReadLabels(ctx, labelsPath)
	if err != nil {
		return err
	}
	if labels, err = labels.Align(m.Samples); err != nil {
		return err
	}
	var stats diffexp.Stats
	filtered, err := diffexp.FilterLowExpression(m, opts, &stats)
	if err != nil {
		return err
	}
	log.Printf("filter: kept %d/%d genes", stats.Retained, stats.TotalGenes)
	factors, err := diffexp.NormFactors(filtered, opts, &stats)
	if err != nil {
		return err
	}
	log.Printf("norm (%s): factors %v", opts.NormMethod, factors)
	disp, err := diffexp.EstimateDispersion(filtered, labels, factors, opts, &stats)
	if err != nil {
		return err
	}
	log.Printf("dispersion: common %.4g, %d tagwise fallbacks", disp.Common, stats.DispersionFallbacks)

	method := flags.method
	if method == "" {
		method = diffexp.MethodGLM
		if len(labels.Levels()) == 2 {
			method = diffexp.MethodExact
		}
	}
	var table *diffexp.ResultTable
	switch method {
	case diffexp.MethodExact:
		if flags.contrast != "" {
			return fmt.Errorf("-contrast only applies to -method=glm")
		}
		table, err = diffexp.ExactTest(filtered, labels, factors, disp, opts, &stats)
	case diffexp.MethodGLM:
		contrast, cerr := parseContrast(flags.contrast, labels.Levels())
		if cerr != nil {
			return cerr
		}
		table, err = diffexp.GLMTest(filtered, labels, factors, disp, contrast, opts, &stats)
	default:
		return fmt.Errorf("unknown test method %q", method)
	}
	if err != nil {
		return err
	}
	log.Printf("%s test (%s): %d genes tested, %d fits did not converge",
		table.Method, table.Contrast, stats.TestedGenes, stats.NonConvergedFits)

	if err := counts.WriteResults(ctx, flags.outPrefix+".results.tsv", table); err != nil {
		return err
	}
	if err := counts.WriteRanks(ctx, flags.outPrefix+".rnk", diffexp.RankScores(table)); err != nil {
		return err
	}
	if flags.splitDirection {
		up, down := diffexp.SignificantGenesByDirection(table, flags.fdrThreshold)
		if err := counts.WriteGeneList(ctx, flags.outPrefix+".sig.up.txt", up); err != nil {
			return err
		}
		if err := counts.WriteGeneList(ctx, flags.outPrefix+".sig.down.txt", down); err != nil {
			return err
		}
	} else {
		sig := diffexp.SignificantGenes(table, flags.fdrThreshold)
		if err := counts.WriteGeneList(ctx, flags.outPrefix+".sig.txt", sig); err != nil {
			return err
		}
	}
	if flags.writeCPM {
		if err := counts.WriteCPM(ctx, flags.outPrefix+".cpm.tsv", filtered, factors); err != nil {
			return err
		}
	}
	if flags.writeArtifact {
		a := &diffexp.Artifact{
			Opts:       opts,
			Method:     table.Method,
			Contrast:   table.Contrast,
			Stats:      stats,
			Dispersion: *disp,
			Rows:       table.Rows,
		}
		if err := diffexp.WriteArtifact(ctx, flags.outPrefix+".rio", a); err != nil {
			return err
		}
	}
	return nil
}

// parseContrast turns the -contrast flag into a Contrast. An empty flag
// defaults to second class vs first when exactly two classes exist.
func parseContrast(s string, levels []string) (diffexp.Contrast, error) {
	if s == "" {
		if len(levels) == 2 {
			return diffexp.Contrast{
				Name:   fmt.Sprintf("%s vs %s", levels[1], levels[0]),
				Coeffs: map[string]float64{levels[0]: -1, levels[1]: 1},
			}, nil
		}
		return diffexp.Contrast{}, fmt.Errorf("-contrast is required with %d classes", len(levels))
	}
	coeffs := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return diffexp.Contrast{}, fmt.Errorf("malformed contrast term %q, expect class=coefficient", part)
		}
		class := strings.TrimSpace(kv[0])
		coeff, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return diffexp.Contrast{}, fmt.Errorf("malformed contrast coefficient %q for class %q", kv[1], class)
		}
		if _, dup := coeffs[class]; dup {
			return diffexp.Contrast{}, fmt.Errorf("class %q repeated in contrast", class)
		}
		coeffs[class] = coeff
	}
	return diffexp.Contrast{Name: s, Coeffs: coeffs}, nil
}
