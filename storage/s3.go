// Package storage uploads finished video files to S3-compatible
// object storage.
//
// Uploads are multipart and resumable: a run interrupted mid-upload
// can be resumed with the upload session id and the list of parts
// already committed, so only missing parts are re-sent. Transient
// part failures are retried with exponential backoff inside this
// package; the masking core never retries.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Upload errors.
var (
	// ErrNoBucket indicates the destination bucket is unset.
	ErrNoBucket = errors.New("destination bucket is required")

	// ErrUploadAborted indicates the multipart session was abandoned
	// after exhausting retries.
	ErrUploadAborted = errors.New("multipart upload aborted")
)

// Defaults for multipart behavior.
const (
	DefaultPartSize   = 8 << 20 // 8 MiB
	DefaultMaxRetries = 4
	baseBackoff       = 500 * time.Millisecond
)

// Options configures one upload.
type Options struct {
	// Bucket is the destination bucket. Required.
	Bucket string
	// Region of the bucket.
	Region string
	// Endpoint overrides the S3 endpoint for compatible stores.
	Endpoint string
	// ContentType of the object; defaults to video/mp4.
	ContentType string
	// PartSize in bytes; defaults to 8 MiB.
	PartSize int64
	// MaxRetries per part before the session is aborted.
	MaxRetries int

	// UploadID resumes an interrupted multipart session.
	UploadID string
	// CompletedParts lists parts already committed in the resumed
	// session, keyed by part number.
	CompletedParts map[int64]string // part number -> ETag
}

// Result describes a finished upload.
type Result struct {
	Bucket    string
	Key       string
	ETag      string
	UploadID  string
	SessionID string
	Parts     int
}

// Uploader wraps an S3 client.
type Uploader struct {
	svc *s3.S3
}

// NewUploader builds an uploader for the given options.
func NewUploader(opts Options) (*Uploader, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}

	cfg := aws.NewConfig()
	if opts.Region != "" {
		cfg = cfg.WithRegion(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &Uploader{svc: s3.New(sess)}, nil
}

// Upload sends the file at path to the destination key.
//
// A fresh call opens a new multipart session; passing opts.UploadID
// and opts.CompletedParts resumes one, skipping committed parts. On
// unrecoverable failure the session is aborted server-side.
func (u *Uploader) Upload(ctx context.Context, path, key string, opts Options) (*Result, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}
	if opts.PartSize <= 0 {
		opts.PartSize = DefaultPartSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.ContentType == "" {
		opts.ContentType = "video/mp4"
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening upload source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat upload source: %w", err)
	}

	sessionID := uuid.NewString()
	uploadID := opts.UploadID
	if uploadID == "" {
		created, err := u.svc.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(opts.Bucket),
			Key:         aws.String(key),
			ContentType: aws.String(opts.ContentType),
		})
		if err != nil {
			return nil, fmt.Errorf("creating multipart upload: %w", err)
		}
		uploadID = aws.StringValue(created.UploadId)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Uploader.Upload",
		"bucket":     opts.Bucket,
		"key":        key,
		"size":       info.Size(),
		"part_size":  opts.PartSize,
		"upload_id":  uploadID,
		"session_id": sessionID,
		"resumed":    opts.UploadID != "",
	}).Info("Starting multipart upload")

	partCount := int((info.Size() + opts.PartSize - 1) / opts.PartSize)
	if partCount == 0 {
		partCount = 1
	}

	completed := make([]*s3.CompletedPart, 0, partCount)
	buf := make([]byte, opts.PartSize)

	for part := int64(1); part <= int64(partCount); part++ {
		if etag, ok := opts.CompletedParts[part]; ok {
			completed = append(completed, &s3.CompletedPart{
				ETag:       aws.String(etag),
				PartNumber: aws.Int64(part),
			})
			continue
		}

		offset := (part - 1) * opts.PartSize
		n, err := f.ReadAt(buf, offset)
		if n == 0 && err != nil {
			u.abort(ctx, opts.Bucket, key, uploadID)
			return nil, fmt.Errorf("reading part %d: %w", part, err)
		}

		etag, err := u.uploadPart(ctx, opts, key, uploadID, part, buf[:n])
		if err != nil {
			u.abort(ctx, opts.Bucket, key, uploadID)
			return nil, fmt.Errorf("%w: part %d: %v", ErrUploadAborted, part, err)
		}
		completed = append(completed, &s3.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int64(part),
		})
	}

	out, err := u.svc.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(opts.Bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		u.abort(ctx, opts.Bucket, key, uploadID)
		return nil, fmt.Errorf("completing multipart upload: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Uploader.Upload",
		"bucket":   opts.Bucket,
		"key":      key,
		"etag":     aws.StringValue(out.ETag),
		"parts":    len(completed),
	}).Info("Upload completed")

	return &Result{
		Bucket:    opts.Bucket,
		Key:       key,
		ETag:      aws.StringValue(out.ETag),
		UploadID:  uploadID,
		SessionID: sessionID,
		Parts:     len(completed),
	}, nil
}

// uploadPart sends one part, retrying with exponential backoff.
func (u *Uploader) uploadPart(ctx context.Context, opts Options, key, uploadID string, part int64, data []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << uint(attempt-1)
			logrus.WithFields(logrus.Fields{
				"function": "Uploader.uploadPart",
				"part":     part,
				"attempt":  attempt,
				"backoff":  backoff.String(),
			}).Warn("Retrying part upload")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := u.svc.UploadPartWithContext(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(opts.Bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int64(part),
			Body:       aws.ReadSeekCloser(bytes.NewReader(data)),
		})
		if err == nil {
			return aws.StringValue(out.ETag), nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (u *Uploader) abort(ctx context.Context, bucket, key, uploadID string) {
	_, err := u.svc.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Uploader.abort",
			"bucket":    bucket,
			"key":       key,
			"upload_id": uploadID,
			"error":     err,
		}).Warn("Failed to abort multipart upload")
	}
}
