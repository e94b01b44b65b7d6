//go:build integration

// Package testutils provides shared test infrastructure for integration tests.
package testutils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

// PDF is a document served by a PDFServer.
type PDF struct {
	Name string
	Data []byte
}

// GeneratePDF returns size bytes that start like a PDF file. With linearized
// set the first object is a linearization dictionary.
func GeneratePDF(t *testing.T, size int64, linearized bool) []byte {
	t.Helper()

	var head bytes.Buffer
	head.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	if linearized {
		fmt.Fprintf(&head, "1 0 obj\n<< /Linearized 1 /L %d /N 1 >>\nendobj\n", size)
	}
	if int64(head.Len()) > size {
		t.Fatalf("size %d too small for PDF header", size)
	}

	data := make([]byte, size)
	n := copy(data, head.Bytes())
	for i := n; i < len(data); i++ {
		data[i] = byte(i % 251)
	}
	return data
}

// PDFServer serves PDFs over HTTP with byte range support.
type PDFServer struct {
	*httptest.Server
	gets atomic.Int64
}

// GETs returns the number of GET requests served.
func (s *PDFServer) GETs() int64 {
	return s.gets.Load()
}

// URLFor returns the URL of the named document.
func (s *PDFServer) URLFor(name string) string {
	return s.Server.URL + "/" + name
}

// StartPDFServer starts an HTTP server for files. Range requests are answered
// with 206 by http.ServeContent; each document has a stable ETag.
func StartPDFServer(t *testing.T, files ...PDF) *PDFServer {
	t.Helper()

	byPath := make(map[string][]byte, len(files))
	for _, f := range files {
		byPath["/"+f.Name] = f.Data
	}

	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &PDFServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := byPath[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.gets.Add(1)
		}
		w.Header().Set("ETag", fmt.Sprintf(`"%x"`, len(data)))
		w.Header().Set("Content-Type", "application/pdf")
		http.ServeContent(w, r, r.URL.Path, modTime, bytes.NewReader(data))
	}))
	t.Cleanup(s.Close)
	return s
}

// MinioEnv contains connection information for a Minio test environment.
type MinioEnv struct {
	Container testcontainers.Container
	BucketURL string
	Endpoint  string
}

// Close terminates the Minio container.
func (e *MinioEnv) Close(ctx context.Context) error {
	if e.Container != nil {
		return e.Container.Terminate(ctx)
	}
	return nil
}

// OpenBucket opens a gocloud bucket connection to the Minio environment.
func (e *MinioEnv) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, e.BucketURL)
}

// StartMinioContainer starts a Minio container with a pre-created bucket and
// sets the AWS credential variables s3blob reads.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *MinioEnv {
	t.Helper()

	const (
		accessKey = "minioadmin"
		secretKey = "minioadmin"
	)

	networkName := fmt.Sprintf("pdfrange-minio-%d", time.Now().UnixNano())
	network, err := testcontainers.GenericNetwork(ctx, testcontainers.GenericNetworkRequest{
		NetworkRequest: testcontainers.NetworkRequest{
			Name: networkName,
		},
	})
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	t.Cleanup(func() { network.Remove(ctx) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Networks:     []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"minio"},
			},
			Env: map[string]string{
				"MINIO_ROOT_USER":     accessKey,
				"MINIO_ROOT_PASSWORD": secretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio container: %v", err)
	}

	mc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      "minio/mc:latest",
			Networks:   []string{networkName},
			Entrypoint: []string{"/bin/sh", "-c"},
			Cmd: []string{fmt.Sprintf(
				"/usr/bin/mc alias set local http://minio:9000 %s %s && /usr/bin/mc mb local/%s",
				accessKey, secretKey, bucketName,
			)},
			WaitingFor: wait.ForExit(),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	mc.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	t.Setenv("AWS_ACCESS_KEY_ID", accessKey)
	t.Setenv("AWS_SECRET_ACCESS_KEY", secretKey)

	return &MinioEnv{
		Container: container,
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucketName, endpoint),
		Endpoint: endpoint,
	}
}

// AssertReaderEquals reads r to the end and fails t unless it yields want.
func AssertReaderEquals(t *testing.T, r io.Reader, want []byte) {
	t.Helper()

	buf := make([]byte, 256*1024)
	offset := 0
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if offset+n > len(want) {
				t.Fatalf("read past expected end: offset=%d n=%d len=%d", offset, n, len(want))
			}
			if !bytes.Equal(buf[:n], want[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}
	if offset != len(want) {
		t.Fatalf("short read: got %d bytes, want %d", offset, len(want))
	}
}
