package rendersvc

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
)

// RemoteRenderer delegates rendering and artifact storage to a document service:
//
//	POST /render           {learnerName, courseTitle, issueDate, serial} -> {"artifact_ref": "..."}
//	GET  /artifacts/{ref}  -> document bytes, 404 when unknown
type RemoteRenderer struct {
	client *resty.Client
}

var (
	_ certificate.Renderer      = (*RemoteRenderer)(nil)
	_ certificate.ArtifactStore = (*RemoteRenderer)(nil)
)

func NewRemoteRenderer(baseURL string, client ...*http.Client) *RemoteRenderer {
	var c *resty.Client
	if len(client) > 0 && client[0] != nil {
		c = resty.NewWithClient(client[0])
	} else {
		c = resty.New()
	}
	return &RemoteRenderer{client: c.SetBaseURL(baseURL)}
}

func (r *RemoteRenderer) Render(ctx context.Context, doc certificate.Document) (string, error) {
	var out struct {
		ArtifactRef string `json:"artifact_ref"`
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(doc).
		SetResult(&out).
		Post("/render")
	if err != nil {
		return "", errors.Wrap(err, "calling renderer")
	}
	if resp.IsError() {
		return "", errors.Errorf("renderer responded %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ArtifactRef == "" {
		return "", errors.New("renderer returned no artifact reference")
	}
	return out.ArtifactRef, nil
}

func (r *RemoteRenderer) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, certificate.ErrArtifactMissing
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("ref", ref).
		Get("/artifacts/{ref}")
	if err != nil {
		return nil, errors.Wrap(err, "fetching artifact")
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, certificate.ErrArtifactMissing
	case resp.IsError():
		return nil, errors.Errorf("artifact store responded %d", resp.StatusCode())
	}
	return io.NopCloser(bytes.NewReader(resp.Body())), nil
}
