package cmd

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/rnaseq/diffexp"
	"github.com/grailbio/rnaseq/encoding/counts"
	"v.io/x/lib/cmdline"
)

type rankFlags struct {
	outPath        string
	fdrThreshold   float64
	splitDirection bool
}

func newCmdRank() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "rank",
		Short:    "Export GSEA rank and significant gene lists from a finished run",
		ArgsName: "resultspath",
	}
	flags := rankFlags{}
	cmd.Flags.StringVar(&flags.outPath, "out", "", "Output .rnk path. By default, the input path with a .rnk extension")
	cmd.Flags.Float64Var(&flags.fdrThreshold, "fdr", diffexp.DefaultFDRThreshold, "FDR cutoff for the significant gene lists")
	cmd.Flags.BoolVar(&flags.splitDirection, "split-direction", false, "Write separate up- and down-regulated significant gene lists")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("rank takes one results path (.rio or .tsv), but got %v", argv)
		}
		return exportRanks(argv[0], flags)
	})
	return cmd
}

// exportRanks re-derives the rank and significant-gene outputs from a
// stored run, either a recordio artifact or a results TSV, without
// refitting anything.
func exportRanks(path string, flags rankFlags) error {
	ctx := vcontext.Background()
	var table *diffexp.ResultTable
	if strings.HasSuffix(path, ".rio") {
		a, err := diffexp.ReadArtifact(ctx, path)
		if err != nil {
			return err
		}
		table = a.Table()
	} else {
		var err error
		if table, err = counts.ReadResults(ctx, path); err != nil {
			return err
		}
	}
	outPath := flags.outPath
	if outPath == "" {
		outPath = rankOutputPath(path)
	}
	if err := counts.WriteRanks(ctx, outPath, diffexp.RankScores(table)); err != nil {
		return err
	}
	base := strings.TrimSuffix(outPath, ".rnk")
	if flags.splitDirection {
		up, down := diffexp.SignificantGenesByDirection(table, flags.fdrThreshold)
		if err := counts.WriteGeneList(ctx, base+".sig.up.txt", up); err != nil {
			return err
		}
		return counts.WriteGeneList(ctx, base+".sig.down.txt", down)
	}
	return counts.WriteGeneList(ctx, base+".sig.txt", diffexp.SignificantGenes(table, flags.fdrThreshold))
}

func rankOutputPath(path string) string {
	for _, suffix := range []string{".rio", ".tsv.gz", ".tsv"} {
		if strings.HasSuffix(path, suffix) {
			return strings.TrimSuffix(path, suffix) + ".rnk"
		}
	}
	return path + ".rnk"
}
