package patchfile

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/patchbay/pkg/graph"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompressedExt marks files written with snappy framing.
const CompressedExt = ".sz"

// snappyMagic opens every snappy framed stream.
const snappyMagic = "\xff\x06\x00\x00sNaPpY"

const filePermissions = 0o644

type options struct {
	compress bool
}

// Option configures Save.
type Option func(*options)

// WithCompression forces snappy compression on or off. By default files
// ending in CompressedExt are compressed.
func WithCompression(on bool) Option {
	return func(o *options) { o.compress = on }
}

// Write encodes doc as indented XML, snappy-framed if compress is set.
func Write(w io.Writer, doc *Document, compress bool) error {
	if compress {
		sw := snappy.NewBufferedWriter(w)
		if err := writeXML(sw, doc); err != nil {
			return err
		}
		return errors.Wrap(sw.Close(), "flush compressed stream")
	}
	return writeXML(w, doc)
}

func writeXML(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode document")
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return errors.Wrap(err, "write trailer")
	}
	return nil
}

// Read decodes a document, detecting snappy framing by its magic bytes.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}
	if bytes.HasPrefix(data, []byte(snappyMagic)) {
		data, err = io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "decompress: %v", err)
		}
	}
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	if doc.Version > FormatVersion {
		return nil, errors.Wrapf(ErrMalformed, "unsupported version %d", doc.Version)
	}
	return &doc, nil
}

// Save writes v to path. The document is fully encoded before the file is
// touched and lands through a rename, so path never holds a partial write.
func Save(path string, v *graph.View, opts ...Option) error {
	o := options{compress: strings.HasSuffix(path, CompressedExt)}
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := Encode(v)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	var buf bytes.Buffer
	if err := Write(&buf, doc, o.compress); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return errors.Wrap(err, "save")
	}
	v.Logger().Info("patch saved", "path", path, "nodes", len(doc.Objects), "compressed", o.compress)
	return nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), filePermissions); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads path and adds its nodes and edges to v. On error v is left
// unchanged.
func Load(path string, reg *graph.Registry, v *graph.View) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, errors.Wrap(err, "load")
	}
	defer f.Close()

	doc, err := Read(f)
	if err != nil {
		return Report{}, errors.Wrapf(err, "load %s", path)
	}
	rep, err := Decode(doc, reg, v)
	if err != nil {
		return rep, errors.Wrapf(err, "load %s", path)
	}
	v.Logger().Info("patch loaded", "path", path, "nodes", rep.Nodes, "edges", rep.Edges, "skipped", len(rep.Skipped))
	return rep, nil
}
