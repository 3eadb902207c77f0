// Package sink opens render outputs, which may be local files or Cloud Storage
// objects named "gs://bucket/object".
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	googleopt "google.golang.org/api/option"
)

const gcsScheme = "gs://"

// ParseGCSPath splits "gs://bucket/object".  ok is false for paths without
// the scheme, and for GCS paths missing a bucket or an object name.
func ParseGCSPath(path string) (bucket, object string, ok bool) {
	if !strings.HasPrefix(path, gcsScheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, gcsScheme)
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], rest[slash+1:], true
}

// IsGCS reports whether path names a Cloud Storage object.
func IsGCS(path string) bool {
	return strings.HasPrefix(path, gcsScheme)
}

type gcsWriter struct {
	w      *storage.Writer
	client *storage.Client
	span   trace.Span
}

func (g *gcsWriter) Write(p []byte) (int, error) {
	return g.w.Write(p)
}

func (g *gcsWriter) Close() error {
	defer g.span.End()
	defer g.client.Close()

	if err := g.w.Close(); err != nil {
		return fmt.Errorf("while finishing GCS upload: %w", err)
	}
	return nil
}

// Create opens path for writing.  For GCS paths, the object is only created
// once the returned writer is closed successfully; opts configure the storage
// client.
func Create(ctx context.Context, path, contentType string, opts ...googleopt.ClientOption) (io.WriteCloser, error) {
	if !IsGCS(path) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("while creating output file: %w", err)
		}
		return f, nil
	}

	bucket, object, ok := ParseGCSPath(path)
	if !ok {
		return nil, fmt.Errorf("malformed GCS path %q, want gs://bucket/object", path)
	}

	tracer := otel.Tracer("whitted/sink")
	ctx, span := tracer.Start(ctx, "UploadGCS")
	span.SetAttributes(attribute.String("bucket", bucket), attribute.String("object", object))

	gcs, err := storage.NewClient(ctx, opts...)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("while creating GCS client: %w", err)
	}

	obj := gcs.Bucket(bucket).Object(object)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	return &gcsWriter{w: w, client: gcs, span: span}, nil
}
