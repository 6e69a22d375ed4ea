//go:build integration

//
// mediadrop - End-to-End Test
//
// Purpose:
//   Validates the drop → upload → hosted URL flow against a real MinIO
//   instance started with dockertest. The server runs in-process through
//   httptest with the MinIO provider behind the circuit breaker, files are
//   sent with the widget client, and every returned URL is fetched back.
//
// Usage:
//   Requires Docker available to the test runner. Run:
//     go test -v -tags integration ./tests/integration -run TestDropUploadFetchFlow
//   Optional env:
//     MDROP_MINIO_TEST_TAG  override MinIO image tag for compatibility.

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/prometheus/client_golang/prometheus"

	"mediadrop/internal/provider"
	"mediadrop/internal/server"
	"mediadrop/internal/widget"
)

const (
	accessKey = "minio"
	secretKey = "minio123"
	bucket    = "uploads"
)

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func TestDropUploadFetchFlow(t *testing.T) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	// MinIO (tag can be overridden by MDROP_MINIO_TEST_TAG env var)
	tag := os.Getenv("MDROP_MINIO_TEST_TAG")
	if tag == "" {
		tag = "RELEASE.2024-01-31T20-20-33Z"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "minio/minio",
		Tag:        tag,
		Cmd:        []string{"server", "/data"},
		Env: []string{
			"MINIO_ROOT_USER=" + accessKey,
			"MINIO_ROOT_PASSWORD=" + secretKey,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start minio: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	endpoint := "localhost:" + resource.GetPort("9000/tcp")

	if err := pool.Retry(func() error {
		resp, err := http.Get("http://" + endpoint + "/minio/health/live")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("minio not ready: %d", resp.StatusCode)
		}
		return nil
	}); err != nil {
		t.Fatalf("minio not ready: %v", err)
	}

	ctx := context.Background()
	prepareBucket(ctx, t, endpoint)

	backend, err := provider.NewMinio(ctx, provider.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
	})
	if err != nil {
		t.Fatalf("minio provider: %v", err)
	}

	breaker := provider.NewCircuitBreaker(3, time.Second)
	srv := server.New(server.Config{
		Provider: provider.WithBreaker(backend, breaker),
		Breaker:  breaker,
		Upload:   provider.DefaultOptions("my_uploads", widget.MaxFileSize),
		Images: widget.RemotePattern{
			Protocol: "http",
			Hostname: endpoint,
			Pathname: "/" + bucket + "/**",
		},
		Logger:   server.NewLogger(io.Discard, server.LogLevelError, true),
		Registry: prometheus.NewRegistry(),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("health: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("health status = %d", resp.StatusCode)
		}
	})

	session := widget.NewSession(widget.NewClient(ts.URL + "/api/upload"))

	t.Run("drop and fetch", func(t *testing.T) {
		batch := session.Drop(ctx, []widget.File{
			{Name: "one.png", MediaType: "image/png", Data: pngData},
			{Name: "two.png", MediaType: "image/png", Data: pngData},
		})
		batch.Wait()

		if msg := session.LastError(); msg != "" {
			t.Fatalf("unexpected error: %s", msg)
		}
		results := session.Results()
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}
		if results[0].PublicID == results[1].PublicID {
			t.Errorf("identical payloads share public id %q", results[0].PublicID)
		}

		for _, res := range results {
			if !strings.HasPrefix(res.PublicID, "my_uploads/") {
				t.Errorf("public id %q not in folder", res.PublicID)
			}
			resp, err := http.Get(res.URL)
			if err != nil {
				t.Fatalf("fetch %s: %v", res.URL, err)
			}
			got, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("fetch %s: status %d", res.URL, resp.StatusCode)
			}
			if !bytes.Equal(got, pngData) {
				t.Errorf("fetched payload differs for %s", res.URL)
			}
		}

		var page bytes.Buffer
		if err := (widget.Renderer{Images: widget.RemotePattern{
			Protocol: "http",
			Hostname: endpoint,
			Pathname: "/" + bucket + "/**",
		}}).Render(&page, session.View()); err != nil {
			t.Fatalf("render: %v", err)
		}
		if n := strings.Count(page.String(), "<img "); n != 2 {
			t.Errorf("rendered %d images, want 2", n)
		}
	})

	t.Run("disallowed format", func(t *testing.T) {
		batch := session.Drop(ctx, []widget.File{
			{Name: "notes.pdf", MediaType: "application/pdf", Data: []byte("plain text, not a pdf")},
		})
		batch.Wait()

		if session.LastError() != widget.UploadFailedMessage {
			t.Errorf("LastError = %q, want %q", session.LastError(), widget.UploadFailedMessage)
		}
		if breaker.State() != provider.StateClosed {
			t.Errorf("rejection tripped breaker: %s", breaker.State())
		}
	})
}

// prepareBucket creates the bucket and makes its objects publicly readable.
func prepareBucket(ctx context.Context, t *testing.T, endpoint string) {
	t.Helper()

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("failed to create minio client: %v", err)
	}
	if err := mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, err2 := mc.BucketExists(ctx, bucket)
		if err2 != nil || !exists {
			t.Fatalf("could not create or verify bucket: %v / %v", err, err2)
		}
	}

	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`, bucket)
	if err := mc.SetBucketPolicy(ctx, bucket, policy); err != nil {
		t.Fatalf("set bucket policy: %v", err)
	}
}
