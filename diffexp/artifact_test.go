package diffexp

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestArtifactRoundTrip(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "diffexp")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(tmpDir, "run.rio")

	opts := DefaultOpts
	opts.MinSamples = 2
	a := &Artifact{
		Opts:     opts,
		Method:   MethodExact,
		Contrast: "treated vs control",
		Stats:    Stats{TotalGenes: 3, Retained: 3, TestedGenes: 2, NonConvergedFits: 1},
		Dispersion: DispersionModel{
			Common:  0.05,
			Tagwise: []float64{0.04, 0.06, 0.05},
			PriorDF: 10,
		},
		Rows: []Result{
			{GeneID: "MYC|4609", LogFC: -3.2, PValue: 1e-8, FDR: 3e-8},
			{GeneID: "ACTB|60", LogFC: 0.1, PValue: 0.7, FDR: 0.7},
			{GeneID: "GAPDH|2597", LogFC: 0.3, PValue: math.NaN(), FDR: math.NaN()},
		},
	}
	assert.NoError(t, WriteArtifact(ctx, path, a))

	got, err := ReadArtifact(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, got.Opts, a.Opts)
	expect.EQ(t, got.Method, a.Method)
	expect.EQ(t, got.Contrast, a.Contrast)
	expect.EQ(t, got.Stats, a.Stats)
	expect.EQ(t, got.Dispersion, a.Dispersion)
	expect.EQ(t, len(got.Rows), 3)
	expect.EQ(t, got.Rows[0], a.Rows[0])
	expect.EQ(t, got.Rows[1], a.Rows[1])
	expect.EQ(t, got.Rows[2].GeneID, "GAPDH|2597")
	expect.EQ(t, got.Rows[2].LogFC, 0.3)
	expect.True(t, math.IsNaN(got.Rows[2].PValue))
	expect.True(t, math.IsNaN(got.Rows[2].FDR))

	table := got.Table()
	expect.EQ(t, table.Method, MethodExact)
	expect.EQ(t, table.Contrast, "treated vs control")
	expect.EQ(t, len(table.Rows), 3)
}

func TestArtifactEmptyRows(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "diffexp")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(tmpDir, "empty.rio")

	a := &Artifact{Opts: DefaultOpts, Method: MethodGLM, Contrast: "-A+B"}
	assert.NoError(t, WriteArtifact(ctx, path, a))
	got, err := ReadArtifact(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, len(got.Rows), 0)
	expect.EQ(t, got.Method, MethodGLM)
}

func TestArtifactVersionCheck(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "diffexp")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(tmpDir, "bad.rio")

	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{})
	w.AddHeader(artifactVersionKey, "BOGUS_V0")
	assert.NoError(t, w.Finish())
	assert.NoError(t, out.Close(ctx))

	_, err = ReadArtifact(ctx, path)
	expect.True(t, err != nil && strings.Contains(err.Error(), "unsupported artifact version"),
		"got %v", err)
}

func TestArtifactChecksumMismatch(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "diffexp")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(tmpDir, "corrupt.rio")

	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{})
	w.AddHeader(artifactVersionKey, artifactVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	var rbuf bytes.Buffer
	row := Result{GeneID: "MYC|4609", LogFC: -3.2, PValue: 1e-8, FDR: 3e-8}
	assert.NoError(t, gob.NewEncoder(&rbuf).Encode(&row))
	w.Append(rbuf.Bytes())
	var tbuf bytes.Buffer
	trailer := artifactTrailer{Method: MethodExact, NumRows: 1, Checksum: 0xdead}
	assert.NoError(t, gob.NewEncoder(&tbuf).Encode(&trailer))
	w.SetTrailer(tbuf.Bytes())
	assert.NoError(t, w.Finish())
	assert.NoError(t, out.Close(ctx))

	_, err = ReadArtifact(ctx, path)
	expect.True(t, err != nil && strings.Contains(err.Error(), "checksum"),
		"got %v", err)
}

func TestArtifactMissingFile(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "diffexp")
	defer cleanup()
	_, err := ReadArtifact(context.Background(), filepath.Join(tmpDir, "nope.rio"))
	expect.True(t, err != nil, "got %v", err)
}
