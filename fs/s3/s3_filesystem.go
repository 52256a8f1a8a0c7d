package fss3

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	s3config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go/aws"
	eel "github.com/bjitd/eel-sdk"
	"github.com/thehivecorporation/log"
)

// New builds a Filesystem over an S3 bucket. Directories are emulated with
// key prefixes and zero-byte marker objects; permission calls are accepted
// and ignored because objects carry no POSIX bits.
func New(cfg *eel.SinkConfig) (eel.Filesystem, error) {
	s3cfg, err := s3config.LoadDefaultConfig(context.TODO(),
		s3config.WithRegion(cfg.S3Config.Region),
		s3config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
	)
	if err != nil {
		return nil, errors.Join(errors.New("error loading S3 config"), err)
	}

	client := s3.NewFromConfig(s3cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &s3Fs{bucket: cfg.S3Config.Bucket, client: client}, nil
}

// NewWithClient is used by tests to inject a preconfigured client, e.g. one
// pointing at a local S3 stand-in.
func NewWithClient(bucket string, client *s3.Client) eel.Filesystem {
	return &s3Fs{bucket: bucket, client: client}
}

type s3Fs struct {
	bucket string
	client *s3.Client
}

const dirMarker = "/.dir"

func key(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (f *s3Fs) Exists(p string) (bool, error) {
	_, err := f.client.HeadObject(context.TODO(), &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key(p)),
	})
	if err == nil {
		return true, nil
	}

	// Fall back to a prefix probe so emulated directories are found
	out, err := f.client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(key(p) + "/"),
		MaxKeys: awsv2.Int32(1),
	})
	if err != nil {
		return false, errors.Join(errors.New("error listing S3 prefix"), err)
	}

	return len(out.Contents) > 0, nil
}

func (f *s3Fs) CreateFile(p string) (io.WriteCloser, error) {
	return &s3Writer{fs: f, key: key(p)}, nil
}

func (f *s3Fs) Open(p string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key(p)),
	})
	if err != nil {
		return nil, errors.Join(errors.New("error getting obj from S3"), eel.ErrFileNotFound, err)
	}

	return out.Body, nil
}

func (f *s3Fs) Mkdir(p string, _ os.FileMode) error {
	_, err := f.client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key(p) + dirMarker),
		Body:   bytes.NewReader(nil),
	})

	return err
}

func (f *s3Fs) MkdirAll(p string, perm os.FileMode) error {
	return f.Mkdir(p, perm)
}

func (f *s3Fs) Delete(p string, recursive bool) error {
	if !recursive {
		_, err := f.client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(key(p)),
		})
		return err
	}

	out, err := f.client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(key(p) + "/"),
	})
	if err != nil {
		return errors.Join(errors.New("error listing S3 prefix"), err)
	}

	for _, obj := range out.Contents {
		if _, err = f.client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    obj.Key,
		}); err != nil {
			return err
		}
	}

	// marker object of the directory itself
	_, _ = f.client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key(p) + dirMarker),
	})

	return nil
}

// Rename is copy+delete. Not atomic, unlike a POSIX rename; staged-write
// users on S3 get best effort publishing only.
func (f *s3Fs) Rename(from, to string) error {
	_, err := f.client.CopyObject(context.TODO(), &s3.CopyObjectInput{
		Bucket:     aws.String(f.bucket),
		CopySource: aws.String(f.bucket + "/" + key(from)),
		Key:        aws.String(key(to)),
	})
	if err != nil {
		return errors.Join(errors.New("error copying S3 object"), err)
	}

	_, err = f.client.DeleteObject(context.TODO(), &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key(from)),
	})

	return err
}

func (f *s3Fs) List(dir string) ([]string, error) {
	out, err := f.client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(key(dir) + "/"),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, errors.Join(errors.New("error listing S3 prefix"), err)
	}

	names := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if strings.HasSuffix(*obj.Key, dirMarker) {
			continue
		}
		names = append(names, "/"+*obj.Key)
	}

	return names, nil
}

func (f *s3Fs) GetPermission(string) (os.FileMode, error) {
	return 0755, nil
}

func (f *s3Fs) SetPermission(string, os.FileMode) error {
	return nil
}

// s3Writer buffers locally and uploads on Close. Objects appear atomically in
// the bucket, so there is nothing extra to do for visibility.
type s3Writer struct {
	fs  *s3Fs
	key string
	buf bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	log.Debugf("Uploading %d bytes to s3://%s/%s", w.buf.Len(), w.fs.bucket, w.key)

	_, err := w.fs.client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: aws.String(w.fs.bucket),
		Key:    aws.String(w.key),
		Body:   bufio.NewReader(&w.buf),
	})
	if err != nil {
		return errors.Join(errors.New("error uploading to S3"), err)
	}

	return nil
}
