package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"insights-backend/internal/components/telemetry"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nnot really a png")

type upload struct {
	key         string
	contentType string
	body        []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
}

func (f *fakeUploader) Upload(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, upload{key: key, contentType: contentType, body: data})
	return "https://cdn.example/" + key, nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	mux.HandleFunc("/logo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpeg"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestProfilePicture(t *testing.T) {
	server := imageServer(t)
	uploader := &fakeUploader{}
	m := New(uploader, WithTelemetry(&telemetry.Recorder{}))

	mirrored, err := m.ProfilePicture(context.Background(), "acme", server.URL+"/logo.png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/profile_pictures/acme.png", mirrored)

	mirrored, err = m.ProfilePicture(context.Background(), "acme", server.URL+"/logo")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/profile_pictures/acme.jpg", mirrored)

	require.Len(t, uploader.uploads, 2)
	require.Equal(t, upload{key: "profile_pictures/acme.png", contentType: "image/png", body: pngBytes}, uploader.uploads[0])
	require.Equal(t, "image/jpeg", uploader.uploads[1].contentType)
}

func TestProfilePictureFailures(t *testing.T) {
	server := imageServer(t)
	uploader := &fakeUploader{}
	recorder := &telemetry.Recorder{}
	m := New(uploader, WithTelemetry(recorder), WithPrefix("images/"))

	for _, path := range []string{"/page", "/missing.png"} {
		_, err := m.ProfilePicture(context.Background(), "acme", server.URL+path)
		require.Error(t, err, path)
	}
	require.Empty(t, uploader.uploads)
	require.Len(t, recorder.Reports("warning", report_mirror), 2)
	require.Equal(t, "images/acme.png", m.Key("acme", "image/png"))
}

func TestOpenWithoutBucket(t *testing.T) {
	m, err := Open(Config{})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestS3(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio",
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "insights",
				"MINIO_ROOT_PASSWORD": "insights-secret",
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	endpoint := fmt.Sprintf("http://%s:%d", host, port.Int())

	sess, err := session.NewSession(aws.NewConfig().
		WithRegion("us-east-1").
		WithEndpoint(endpoint).
		WithS3ForcePathStyle(true).
		WithCredentials(credentials.NewStaticCredentials("insights", "insights-secret", "")))
	require.NoError(t, err)
	client := s3.New(sess)
	_, err = client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String("pictures")})
	require.NoError(t, err)

	m, err := Open(Config{
		Bucket:          "pictures",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "insights",
		SecretAccessKey: "insights-secret",
	})
	require.NoError(t, err)

	server := imageServer(t)
	mirrored, err := m.ProfilePicture(ctx, "acme", server.URL+"/logo.png")
	require.NoError(t, err)
	require.Contains(t, mirrored, "/pictures/profile_pictures/acme.png")

	obj, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String("pictures"),
		Key:    aws.String("profile_pictures/acme.png"),
	})
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.True(t, bytes.Equal(pngBytes, data))
	require.Equal(t, "image/png", aws.StringValue(obj.ContentType))
}
