// Package counts reads and writes the tab-delimited files surrounding a
// differential expression run: raw count matrices, sample class labels,
// CPM matrices, result tables, GSEA .rnk files, and plain gene lists.
// Paths ending in .gz are transparently compressed on write; reads sniff
// compression from the path.
package counts

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/rnaseq/diffexp"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// ReadMatrix loads a count matrix: a header row naming the sample columns
// after the gene ID column, then one row per gene. Counts must be
// nonnegative integers. Structural and value problems are DataErrors; I/O
// problems are returned as is.
func ReadMatrix(ctx context.Context, path string) (_ *diffexp.CountMatrix, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	cr := csv.NewReader(inr)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, diffexp.NewDataError("count matrix %s is empty", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s header", path)
	}
	if len(header) < 2 {
		return nil, diffexp.NewDataError("count matrix %s has no sample columns", path)
	}
	samples := header[1:]
	var (
		genes  []string
		rows   [][]float64
		lineno = 1
	)
	for {
		rec, rerr := cr.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, errors.Wrapf(rerr, "read %s", path)
		}
		lineno++
		if len(rec) != len(header) {
			return nil, diffexp.NewDataError("%s:%d: got %d columns, want %d", path, lineno, len(rec), len(header))
		}
		row := make([]float64, len(rec)-1)
		for i, cell := range rec[1:] {
			v, perr := strconv.ParseFloat(cell, 64)
			if perr != nil {
				return nil, diffexp.NewDataError("%s:%d: bad count %q for gene %s", path, lineno, cell, rec[0])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || math.Trunc(v) != v {
				return nil, diffexp.NewDataError("%s:%d: count %q for gene %s is not a nonnegative integer", path, lineno, cell, rec[0])
			}
			row[i] = v
		}
		genes = append(genes, rec[0])
		rows = append(rows, row)
	}
	return diffexp.NewCountMatrix(genes, samples, rows)
}

type labelRow struct {
	Sample string `tsv:"sample"`
	Class  string `tsv:"class"`
}

// ReadLabels loads a two-column sample-to-class table with a
// "sample<TAB>class" header.
func ReadLabels(ctx context.Context, path string) (_ *diffexp.ClassLabels, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	r := tsv.NewReader(inr)
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var samples, classes []string
	for {
		var row labelRow
		if rerr := r.Read(&row); rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, errors.Wrapf(rerr, "read %s", path)
		}
		samples = append(samples, row.Sample)
		classes = append(classes, row.Class)
	}
	return diffexp.NewClassLabels(samples, classes)
}

// fileWriter pairs a created file with an optional gzip layer selected by
// the path suffix.
type fileWriter struct {
	f  file.File
	gz *gzip.Writer
	w  io.Writer
}

func newFileWriter(ctx context.Context, path string) (*fileWriter, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	fw := &fileWriter{f: f, w: f.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		fw.gz = gzip.NewWriter(fw.w)
		fw.w = fw.gz
	}
	return fw, nil
}

// closeAndReport closes the gzip layer, then the file, reporting the first
// error through err if none is already set.
func (fw *fileWriter) closeAndReport(ctx context.Context, err *error) {
	if fw.gz != nil {
		if e := fw.gz.Close(); e != nil && *err == nil {
			*err = e
		}
	}
	file.CloseAndReport(ctx, fw.f, err)
}

// WriteCPM writes the counts-per-million matrix for m at the given
// normalization factors, in the same layout as the input count matrix.
func WriteCPM(ctx context.Context, path string, m *diffexp.CountMatrix, factors []float64) (err error) {
	cpm, err := diffexp.CPM(m, factors)
	if err != nil {
		return err
	}
	fw, err := newFileWriter(ctx, path)
	if err != nil {
		return err
	}
	defer fw.closeAndReport(ctx, &err)
	w := tsv.NewWriter(fw.w)
	w.WriteString("gene")
	for _, s := range m.Samples {
		w.WriteString(s)
	}
	if err = w.EndLine(); err != nil {
		return err
	}
	for g, row := range cpm {
		w.WriteString(m.Genes[g])
		for _, v := range row {
			w.WriteString(strconv.FormatFloat(v, 'f', 4, 64))
		}
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteResults writes a result table as TSV with a gene/logFC/pValue/FDR
// header. Values round-trip through ReadResults, including NaN p-values
// for genes whose fit failed.
func WriteResults(ctx context.Context, path string, table *diffexp.ResultTable) (err error) {
	fw, err := newFileWriter(ctx, path)
	if err != nil {
		return err
	}
	defer fw.closeAndReport(ctx, &err)
	w := tsv.NewWriter(fw.w)
	w.WriteString("gene")
	w.WriteString("logFC")
	w.WriteString("pValue")
	w.WriteString("FDR")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, r := range table.Rows {
		w.WriteString(r.GeneID)
		w.WriteString(strconv.FormatFloat(r.LogFC, 'g', -1, 64))
		w.WriteString(strconv.FormatFloat(r.PValue, 'g', -1, 64))
		w.WriteString(strconv.FormatFloat(r.FDR, 'g', -1, 64))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

type resultRow struct {
	Gene   string  `tsv:"gene"`
	LogFC  float64 `tsv:"logFC"`
	PValue float64 `tsv:"pValue"`
	FDR    float64 `tsv:"FDR"`
}

// ReadResults loads a table written by WriteResults. The table's Method
// and Contrast are not stored in the TSV and come back empty.
func ReadResults(ctx context.Context, path string) (_ *diffexp.ResultTable, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var inr io.Reader = in.Reader(ctx)
	if u, _ := compress.NewReaderPath(inr, in.Name()); u != nil {
		inr = u
	}
	r := tsv.NewReader(inr)
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	table := &diffexp.ResultTable{}
	for {
		var row resultRow
		if rerr := r.Read(&row); rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, errors.Wrapf(rerr, "read %s", path)
		}
		table.Rows = append(table.Rows, diffexp.Result{
			GeneID: row.Gene,
			LogFC:  row.LogFC,
			PValue: row.PValue,
			FDR:    row.FDR,
		})
	}
	return table, nil
}

// WriteRanks writes a headerless two-column GSEA .rnk file.
func WriteRanks(ctx context.Context, path string, entries []diffexp.RankEntry) (err error) {
	fw, err := newFileWriter(ctx, path)
	if err != nil {
		return err
	}
	defer fw.closeAndReport(ctx, &err)
	w := tsv.NewWriter(fw.w)
	for _, e := range entries {
		w.WriteString(e.GeneID)
		w.WriteString(strconv.FormatFloat(e.Score, 'g', 6, 64))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteGeneList writes one gene ID per line.
func WriteGeneList(ctx context.Context, path string, ids []string) (err error) {
	fw, err := newFileWriter(ctx, path)
	if err != nil {
		return err
	}
	defer fw.closeAndReport(ctx, &err)
	bw := bufio.NewWriter(fw.w)
	for _, id := range ids {
		bw.WriteString(id)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
