package diffexp

import (
	"bytes"
	"context"
	"encoding/gob"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/pkg/errors"
)

// <artifactVersionKey, artifactVersion> is stored in a recordio header.
const (
	artifactVersionKey = "rnaseqversion"
	artifactVersion    = "DIFFEXP_V1"
)

// Artifact is a complete test run dumped to a recordio file: one gob
// record per result row plus a trailer with the run configuration. The
// file lets downstream exports (ranked lists, gene lists) run without
// repeating the fits.
type Artifact struct {
	Opts       Opts
	Method     string
	Contrast   string
	Stats      Stats
	Dispersion DispersionModel
	Rows       []Result
}

// artifactTrailer is stored in the trailer section of the recordio file.
type artifactTrailer struct {
	Opts       Opts
	Method     string
	Contrast   string
	Stats      Stats
	Dispersion DispersionModel
	NumRows    int
	// Checksum is a seahash over the encoded rows in file order.
	Checksum uint64
}

// Table reconstitutes the result table stored in the artifact.
func (a *Artifact) Table() *ResultTable {
	return &ResultTable{Method: a.Method, Contrast: a.Contrast, Rows: a.Rows}
}

// WriteArtifact writes the run to path as a zstd recordio file.
func WriteArtifact(ctx context.Context, path string, a *Artifact) (err error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(artifactVersionKey, artifactVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	h := seahash.New()
	for i := range a.Rows {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&a.Rows[i]); err != nil {
			return errors.Wrap(err, "encode result row")
		}
		h.Write(buf.Bytes())
		w.Append(buf.Bytes())
	}
	var tbuf bytes.Buffer
	t := artifactTrailer{
		Opts:       a.Opts,
		Method:     a.Method,
		Contrast:   a.Contrast,
		Stats:      a.Stats,
		Dispersion: a.Dispersion,
		NumRows:    len(a.Rows),
		Checksum:   h.Sum64(),
	}
	if err := gob.NewEncoder(&tbuf).Encode(&t); err != nil {
		return errors.Wrap(err, "encode trailer")
	}
	w.SetTrailer(tbuf.Bytes())
	if err := w.Finish(); err != nil {
		return errors.Wrapf(err, "finish %s", path)
	}
	return nil
}

// ReadArtifact reads back a file written by WriteArtifact, verifying the
// version, row count, and checksum.
func ReadArtifact(ctx context.Context, path string) (_ *Artifact, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	sc := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	version := ""
	for _, kv := range sc.Header() {
		if kv.Key == artifactVersionKey {
			version, _ = kv.Value.(string)
			break
		}
	}
	if version != artifactVersion {
		return nil, errors.Errorf("%s: unsupported artifact version %q", path, version)
	}
	var t artifactTrailer
	if err := gob.NewDecoder(bytes.NewReader(sc.Trailer())).Decode(&t); err != nil {
		return nil, errors.Wrapf(err, "decode %s trailer", path)
	}
	a := &Artifact{
		Opts:       t.Opts,
		Method:     t.Method,
		Contrast:   t.Contrast,
		Stats:      t.Stats,
		Dispersion: t.Dispersion,
		Rows:       make([]Result, 0, t.NumRows),
	}
	h := seahash.New()
	for sc.Scan() {
		b := sc.Get().([]byte)
		h.Write(b)
		var r Result
		if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
			return nil, errors.Wrapf(err, "decode %s row %d", path, len(a.Rows))
		}
		a.Rows = append(a.Rows, r)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	if len(a.Rows) != t.NumRows {
		return nil, errors.Errorf("%s: got %d rows, trailer says %d", path, len(a.Rows), t.NumRows)
	}
	if got := h.Sum64(); got != t.Checksum {
		return nil, errors.Errorf("%s: row checksum %x does not match trailer %x", path, got, t.Checksum)
	}
	return a, nil
}
