package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// Compression codecs accepted by OpenSink.
const (
	CompressNone = ""
	CompressZstd = "zstd"
)

// ErrSinkClosed is returned when writing to a committed or aborted sink.
var ErrSinkClosed = errors.New("export: sink closed")

// Sink receives a document. Nothing is visible at the destination until
// Commit succeeds; Abort discards everything written.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
	// Destination describes where Commit publishes, for reports and logs.
	Destination() string
}

// S3Client is the subset of the S3 API used by the S3 sink.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SinkOptions configures OpenSink.
type SinkOptions struct {
	// Compress is CompressNone or CompressZstd. Targets ending in ".zst"
	// are compressed regardless.
	Compress string

	// Stdout receives the document for the "-" target.
	Stdout io.Writer

	// S3 uploads documents for "s3://bucket/key" targets.
	S3 S3Client

	// TempDir holds spool files for stdout and S3 targets. Empty means os.TempDir().
	TempDir string
}

// OpenSink returns the sink for target: "-" for stdout, "s3://bucket/key"
// for object storage, anything else is a file path.
func OpenSink(ctx context.Context, target string, opts SinkOptions) (Sink, error) {
	compress := opts.Compress
	if strings.HasSuffix(target, ".zst") {
		compress = CompressZstd
	}
	if compress != CompressNone && compress != CompressZstd {
		return nil, fmt.Errorf("%w: unsupported compression %q", model.ErrInvalidArgument, compress)
	}

	var (
		sink Sink
		err  error
	)
	switch {
	case target == "" || target == "-":
		if opts.Stdout == nil {
			return nil, fmt.Errorf("%w: no stdout writer for target %q", model.ErrInvalidArgument, target)
		}
		sink, err = NewStreamSink(opts.Stdout, opts.TempDir)
	case strings.HasPrefix(target, "s3://"):
		bucket, key, perr := ParseS3URL(target)
		if perr != nil {
			return nil, perr
		}
		if opts.S3 == nil {
			return nil, fmt.Errorf("%w: no S3 client for target %q", model.ErrInvalidArgument, target)
		}
		contentType := "application/json"
		if compress == CompressZstd {
			contentType = "application/zstd"
		}
		sink, err = NewS3Sink(ctx, opts.S3, bucket, key, contentType, opts.TempDir)
	default:
		sink, err = NewFileSink(target)
	}
	if err != nil {
		return nil, err
	}

	if compress == CompressZstd {
		zs, err := NewZstdSink(sink)
		if err != nil {
			return nil, err
		}
		return zs, nil
	}
	return sink, nil
}

// ParseS3URL splits "s3://bucket/key" into bucket and key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3:// URL", model.ErrInvalidArgument, raw)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.TrimPrefix(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: s3 URL %q needs a bucket and a key", model.ErrInvalidArgument, raw)
	}
	return bucket, key, nil
}

// spool is a temporary file that backs every sink.
type spool struct {
	f      *os.File
	closed bool
}

func newSpool(dir, pattern string) (*spool, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &spool{f: f}, nil
}

func (s *spool) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.f.Write(p)
}

// rewind flushes the spool and positions it for reading.
func (s *spool) rewind() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync spool: %w", err)
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}
	return nil
}

// discard closes and removes the spool file.
func (s *spool) discard() error {
	if s.closed {
		return nil
	}
	s.closed = true
	closeErr := s.f.Close()
	if err := os.Remove(s.f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

// FileSink writes to a temp file next to the target and renames it on Commit.
type FileSink struct {
	*spool
	path string
}

// NewFileSink creates a sink publishing to path.
func NewFileSink(path string) (*FileSink, error) {
	sp, err := newSpool(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &FileSink{spool: sp, path: path}, nil
}

// Commit atomically moves the document into place.
func (s *FileSink) Commit() error {
	if s.closed {
		return ErrSinkClosed
	}
	if err := s.f.Sync(); err != nil {
		s.discard()
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		os.Remove(s.f.Name())
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	if err := os.Rename(s.f.Name(), s.path); err != nil {
		os.Remove(s.f.Name())
		return fmt.Errorf("publish %s: %w", s.path, err)
	}
	return nil
}

// Abort removes the temp file; the target is left untouched.
func (s *FileSink) Abort() error { return s.discard() }

// Destination returns the target path.
func (s *FileSink) Destination() string { return s.path }

// StreamSink spools a document and copies it to w on Commit.
type StreamSink struct {
	*spool
	w io.Writer
}

// NewStreamSink creates a sink publishing to w, spooling in dir.
func NewStreamSink(w io.Writer, dir string) (*StreamSink, error) {
	sp, err := newSpool(dir, "pseval-stdout-*.json")
	if err != nil {
		return nil, err
	}
	return &StreamSink{spool: sp, w: w}, nil
}

// Commit copies the spooled document to the stream.
func (s *StreamSink) Commit() error {
	if s.closed {
		return ErrSinkClosed
	}
	defer s.discard()
	if err := s.rewind(); err != nil {
		return err
	}
	if _, err := io.Copy(s.w, s.f); err != nil {
		return fmt.Errorf("copy document to stream: %w", err)
	}
	return nil
}

// Abort discards the spooled document.
func (s *StreamSink) Abort() error { return s.discard() }

// Destination returns "-".
func (s *StreamSink) Destination() string { return "-" }

// S3Sink spools a document and uploads it with one PutObject on Commit.
type S3Sink struct {
	*spool
	ctx         context.Context
	client      S3Client
	bucket, key string
	contentType string
}

// NewS3Sink creates a sink publishing to s3://bucket/key.
func NewS3Sink(ctx context.Context, client S3Client, bucket, key, contentType, dir string) (*S3Sink, error) {
	sp, err := newSpool(dir, "pseval-s3-*.json")
	if err != nil {
		return nil, err
	}
	return &S3Sink{spool: sp, ctx: ctx, client: client, bucket: bucket, key: key, contentType: contentType}, nil
}

// Commit uploads the spooled document.
func (s *S3Sink) Commit() error {
	if s.closed {
		return ErrSinkClosed
	}
	defer s.discard()
	if err := s.rewind(); err != nil {
		return err
	}
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat spool: %w", err)
	}

	_, err = s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          s.f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(s.contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.Destination(), err)
	}
	return nil
}

// Abort discards the spooled document without uploading.
func (s *S3Sink) Abort() error { return s.discard() }

// Destination returns the s3:// URL.
func (s *S3Sink) Destination() string { return "s3://" + s.bucket + "/" + s.key }

// ZstdSink compresses a document on its way into another sink.
type ZstdSink struct {
	inner  Sink
	enc    *zstd.Encoder
	closed bool
}

// NewZstdSink wraps inner with a zstd encoder.
func NewZstdSink(inner Sink) (*ZstdSink, error) {
	enc, err := zstd.NewWriter(inner)
	if err != nil {
		inner.Abort()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &ZstdSink{inner: inner, enc: enc}, nil
}

func (s *ZstdSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.enc.Write(p)
}

// Commit flushes the compressed stream and commits the inner sink.
func (s *ZstdSink) Commit() error {
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		s.inner.Abort()
		return fmt.Errorf("finish zstd stream: %w", err)
	}
	return s.inner.Commit()
}

// Abort discards the compressed stream and releases the encoder.
func (s *ZstdSink) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.enc.Reset(io.Discard)
	s.enc.Close()
	return s.inner.Abort()
}

// Destination returns the inner sink's destination.
func (s *ZstdSink) Destination() string { return s.inner.Destination() }
