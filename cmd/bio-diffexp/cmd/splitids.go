package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/rnaseq/geneid"
	"v.io/x/lib/cmdline"
)

func newCmdSplitIDs() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "split-ids",
		Short:    "Decompose SYMBOL|ENTREZID keys from the first column of a file",
		ArgsName: "path",
	}
	outFlag := cmd.Flags.String("out", "", "Output TSV path. By default, the input path with .ids.tsv appended")
	skipHeader := cmd.Flags.Bool("skip-header", false, "Skip the first input line")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("split-ids takes one path, but got %v", argv)
		}
		outPath := *outFlag
		if outPath == "" {
			outPath = argv[0] + ".ids.tsv"
		}
		return splitIDs(argv[0], outPath, *skipHeader)
	})
	return cmd
}

// splitIDs reads the first column of each input line as a compound gene
// key and writes a gene/symbol/entrez TSV. Malformed keys are skipped and
// counted.
func splitIDs(inPath, outPath string, skipHeader bool) (err error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, inPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("gene")
	w.WriteString("symbol")
	w.WriteString("entrez")
	if err = w.EndLine(); err != nil {
		return err
	}
	sc := bufio.NewScanner(inr)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	nSplit, nMalformed := 0, 0
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first && skipHeader {
			first = false
			continue
		}
		first = false
		if line == "" {
			continue
		}
		key := line
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			key = line[:i]
		}
		id, perr := geneid.Parse(key)
		if perr != nil {
			nMalformed++
			continue
		}
		w.WriteString(key)
		w.WriteString(id.Symbol)
		w.WriteString(id.Entrez)
		if err = w.EndLine(); err != nil {
			return err
		}
		nSplit++
	}
	if serr := sc.Err(); serr != nil {
		return serr
	}
	if err = w.Flush(); err != nil {
		return err
	}
	log.Printf("split-ids: %d keys split, %d malformed", nSplit, nMalformed)
	return nil
}
