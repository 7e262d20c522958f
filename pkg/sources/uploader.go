package sources

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"communitybot/pkg/logx"
)

// putObjectAPI is the slice of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes documents to the S3 bucket the knowledge base ingests
// from.
type Uploader struct {
	client putObjectAPI
	bucket string
	logger *logx.Logger
}

// NewUploader creates an uploader targeting the given bucket.
func NewUploader(client *s3.Client, bucket string) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		logger: logx.NewLogger("s3-uploader"),
	}
}

// Upload stores one document and returns its object key.
func (u *Uploader) Upload(ctx context.Context, doc Document) (string, error) {
	key := doc.Key()
	body, err := doc.BedrockJSON()
	if err != nil {
		return "", fmt.Errorf("encode document %s: %w", doc.SourceID, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"source_type": doc.SourceType,
			"category":    doc.Category,
			"timestamp":   doc.Timestamp.Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload document %s: %w", doc.SourceID, err)
	}

	u.logger.Info("uploaded document to s3://%s/%s", u.bucket, key)
	return key, nil
}

// UploadBatch uploads documents one by one. Failures are logged and
// skipped so one bad document does not block the batch; the returned
// keys are the successful uploads.
func (u *Uploader) UploadBatch(ctx context.Context, docs []Document) []string {
	keys := make([]string, 0, len(docs))
	for _, doc := range docs {
		key, err := u.Upload(ctx, doc)
		if err != nil {
			u.logger.Error("failed to upload %s: %v", doc.SourceID, err)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
