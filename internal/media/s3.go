package media

import (
	"bytes"
	"context"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
)

type S3Store struct {
	bucket   string
	baseURL  string
	uploader s3manageriface.UploaderAPI
	client   s3iface.S3API
}

func NewS3Store(bucket, region, baseURL string) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "aws session")
	}
	return NewS3StoreWithClients(bucket, baseURL, s3manager.NewUploader(sess), s3.New(sess)), nil
}

func NewS3StoreWithClients(bucket, baseURL string, uploader s3manageriface.UploaderAPI, client s3iface.S3API) *S3Store {
	return &S3Store{
		bucket:   bucket,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		uploader: uploader,
		client:   client,
	}
}

func (s *S3Store) Save(ctx context.Context, data []byte, filename string) (string, error) {
	key := NewKey(filename)
	input := &s3manager.UploadInput{
		ACL:    aws.String("public-read"),
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return "", errors.Wrapf(err, "upload %s to s3", key)
	}
	return key, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s from s3", ref)
	}
	return nil
}

func (s *S3Store) URL(ref string) string {
	if ref == "" {
		return ""
	}
	if s.baseURL == "" {
		return "https://" + s.bucket + ".s3.amazonaws.com/" + ref
	}
	return s.baseURL + "/" + ref
}
