// Package rendersvc renders certificate documents and stores the resulting artifacts.
package rendersvc

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
)

// LocalRenderer writes PDF artifacts to a filesystem, one file per certificate serial.
// References are paths relative to the filesystem root.
type LocalRenderer struct {
	fs  afero.Fs
	dir string
}

var (
	_ certificate.Renderer      = (*LocalRenderer)(nil)
	_ certificate.ArtifactStore = (*LocalRenderer)(nil)
)

func NewLocalRenderer(fs afero.Fs, dir string) *LocalRenderer {
	return &LocalRenderer{fs: fs, dir: dir}
}

func (r *LocalRenderer) Render(ctx context.Context, doc certificate.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating artifact dir")
	}

	content, err := certificatePDF(doc)
	if err != nil {
		return "", errors.Wrap(err, "rendering pdf")
	}
	ref := path.Join(r.dir, doc.Serial+".pdf")
	if err := afero.WriteFile(r.fs, ref, content, 0o644); err != nil {
		return "", errors.Wrap(err, "writing artifact")
	}
	return ref, nil
}

func (r *LocalRenderer) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" || strings.Contains(ref, "..") {
		return nil, certificate.ErrArtifactMissing
	}
	f, err := r.fs.Open(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, certificate.ErrArtifactMissing
		}
		return nil, errors.Wrap(err, "opening artifact")
	}
	return f, nil
}
