package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/arceye/vlsdk/camera/replay"
)

const passBody = `{"status":200,"result":"SUCCESS","pose":"7,q.jpg,1,2,3,1,0,0,0","inlier":523,"total":900,"datasetInfo":"lobby_1F"}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vlsdk.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func sessionConfig(url string) string {
	return fmt.Sprintf(`{
		"log_level": "WARNING",
		"frame_interval": "10ms",
		"tracker": {"use_gps_guide": false},
		"urls": [
			{"location": "lobby", "invoke_url": %q},
			{"location": "old", "invoke_url": "http://old.example.com", "inactive": true}
		]
	}`, url)
}

func run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"vlsdk"}, args...))
	return out.String(), errOut.String(), err
}

func TestValidateConfig(t *testing.T) {
	path := writeConfig(t, sessionConfig("http://127.0.0.1:1/vl"))
	out, _, err := run("config", "validate", "--config", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "config is valid: 1 active urls, gps guide false, quality MEDIUM")
	test.That(t, out, test.ShouldContainSubstring, "http://old.example.com")

	t.Setenv("VL_INTERVAL", "10")
	path = writeConfig(t, `{
		"tracker": {"request_interval_before_localization_ms": ${VL_INTERVAL}},
		"urls": [{"invoke_url": "http://127.0.0.1:1/vl"}]
	}`)
	_, _, err = run("config", "validate", "-c", path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "request_interval_before_localization_ms")
}

func TestDatasetInfo(t *testing.T) {
	dir := t.TempDir()
	var records []replay.Record
	for _, ts := range []int64{1000, 1100, 1300} {
		rec := replay.DefaultRecord()
		rec.Timestamp = ts
		records = append(records, rec)
	}
	var buf bytes.Buffer
	test.That(t, replay.WriteRecords(&buf, records), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(dir, replay.IndexFileName), buf.Bytes(), 0o600), test.ShouldBeNil)

	out, _, err := run("dataset", "info", "--dataset", dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "3 frames, 0.300 seconds")

	_, _, err = run("dataset", "info", "--dataset", t.TempDir())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReplayRequiresSource(t *testing.T) {
	path := writeConfig(t, sessionConfig("http://127.0.0.1:1/vl"))
	_, _, err := run("replay", "-c", path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--dataset")
}

func TestReplayTestMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, passBody) //nolint:errcheck
	}))
	defer server.Close()

	path := writeConfig(t, sessionConfig(server.URL))
	out, errOut, err := run("replay", "-c", path, "--test-mode", "--speed", "10", "--duration", "10s")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errOut, test.ShouldBeEmpty)
	test.That(t, out, test.ShouldContainSubstring, "state VL_PASS")
	test.That(t, out, test.ShouldContainSubstring, "layer lobby_1F")
	test.That(t, out, test.ShouldContainSubstring, "origin ")
	test.That(t, out, test.ShouldContainSubstring, "Success: ")
	test.That(t, out, test.ShouldContainSubstring, "confidence mean 0.523, median 0.523")
}

func TestReplayUnsupportedSpeed(t *testing.T) {
	path := writeConfig(t, sessionConfig("http://127.0.0.1:1/vl"))
	_, errOut, err := run("replay", "-c", path, "--test-mode", "--speed", "3", "--duration", "50ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, errOut, test.ShouldContainSubstring, "unsupported play speed 3, using 5")
}

func TestVersion(t *testing.T) {
	out, _, err := run("version")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldStartWith, "vlsdk ")
}
