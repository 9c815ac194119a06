package keysafe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	s3AccessMetadata = "keysafe-access"
	s3DeleteBatch    = 1000
)

// S3API is the part of *s3.Client used by S3Backend.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Backend stores each entry as the object "<prefix><class>/<account>",
// encrypted server side. The access policy travels as object metadata.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Backend(client S3API, bucket, prefix string) *S3Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) classPrefix(class Class) string {
	return b.prefix + url.PathEscape(string(class)) + "/"
}

func (b *S3Backend) objectKey(class Class, account string) string {
	return b.classPrefix(class) + url.PathEscape(account)
}

func (b *S3Backend) putInput(item Item) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(b.objectKey(item.Class, item.Account)),
		Body:                 bytes.NewReader(item.Data),
		ContentType:          aws.String("application/octet-stream"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		Metadata: map[string]string{
			s3AccessMetadata: item.Access.String(),
		},
	}
}

// Insert uses a conditional write so an existing object is never replaced.
func (b *S3Backend) Insert(ctx context.Context, item Item) error {
	input := b.putInput(item)
	input.IfNoneMatch = aws.String("*")

	if _, err := b.client.PutObject(ctx, input); err != nil {
		if isS3Code(err, "PreconditionFailed", "ConditionalRequestConflict") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to put object %s: %w", aws.ToString(input.Key), err)
	}
	return nil
}

func (b *S3Backend) Upsert(ctx context.Context, item Item) error {
	input := b.putInput(item)
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", aws.ToString(input.Key), err)
	}
	return nil
}

func (b *S3Backend) Query(ctx context.Context, class Class, account string) ([]byte, error) {
	key := b.objectKey(class, account)
	object, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer object.Body.Close()

	data, err := io.ReadAll(object.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteByAccount checks the object first because DeleteObject succeeds on
// missing keys.
func (b *S3Backend) DeleteByAccount(ctx context.Context, class Class, account string) error {
	key := b.objectKey(class, account)

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to head object %s: %w", key, err)
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) DeleteByClass(ctx context.Context, class Class) error {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.classPrefix(class)),
	})

	var objects []types.ObjectIdentifier
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for start := 0; start < len(objects); start += s3DeleteBatch {
		end := min(start+s3DeleteBatch, len(objects))

		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{
				Objects: objects[start:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("failed to delete %d objects: %s", len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
	}

	return nil
}

func isS3Code(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
