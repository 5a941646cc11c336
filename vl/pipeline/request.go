package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/arceye/vlsdk/utils"
	"github.com/arceye/vlsdk/vl"
)

const (
	// SecretHeader carries the service secret key.
	SecretHeader = "X-ARCEYE-SECRET"

	// JPEGQuality is the encoding quality of query images.
	JPEGQuality = 85
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, errors.Wrap(err, "encoding query image")
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newPostRequest builds a multipart/form-data request with the query image first, followed by
// the string parameters in key order.
func newPostRequest(ctx context.Context, body *vl.RequestBody, jpeg []byte) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(body.ImageFieldName), quoteEscaper.Replace(body.Filename)))
	h.Set("Content-Type", utils.MimeTypeJPEG)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, err
	}
	for _, k := range sortedKeys(body.Parameters) {
		if err := w.WriteField(k, body.Parameters[k]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, body.URL, &buf)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request to %q", body.URL)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	setSecret(req, body)
	return req, nil
}

// newGetRequest carries the parameters in the query string and sends no image.
func newGetRequest(ctx context.Context, body *vl.RequestBody) (*http.Request, error) {
	u, err := url.Parse(body.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing url %q", body.URL)
	}
	q := u.Query()
	for _, k := range sortedKeys(body.Parameters) {
		q.Set(k, body.Parameters[k])
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request to %q", body.URL)
	}
	setSecret(req, body)
	return req, nil
}

func setSecret(req *http.Request, body *vl.RequestBody) {
	if body.Authorization != "" {
		req.Header.Set(SecretHeader, body.Authorization)
	}
}

// do sends req and returns the status code and body text. A zero code means no response arrived.
func do(client *http.Client, req *http.Request) (int, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, string(data), errors.Wrap(err, "reading response body")
	}
	return resp.StatusCode, string(data), nil
}
