package knowledge

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// maxDocumentBytes caps a single fetched document.
const maxDocumentBytes = 5 << 20

type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader pulls knowledge documents from an S3 bucket and feeds them to
// the ingestor.
type S3Loader struct {
	api      s3GetObjectAPI
	bucket   string
	ingestor *Ingestor
	logger   *logging.Logger
}

// NewS3Loader wires the loader.
func NewS3Loader(api s3GetObjectAPI, bucket string, ingestor *Ingestor, logger *logging.Logger) *S3Loader {
	if api == nil {
		panic("knowledge: s3 client cannot be nil")
	}
	if ingestor == nil {
		panic("knowledge: ingestor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Loader{api: api, bucket: bucket, ingestor: ingestor, logger: logger}
}

// IngestObject fetches one object and ingests it for the organization.
// The object's base name, minus extension, becomes the document title.
// It returns the document id assigned by ingestion.
func (l *S3Loader) IngestObject(ctx context.Context, orgID uuid.UUID, key string) (string, error) {
	out, err := l.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("knowledge: fetch s3://%s/%s: %w", l.bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("knowledge: read s3://%s/%s: %w", l.bucket, key, err)
	}
	content := string(raw)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("knowledge: s3://%s/%s is empty", l.bucket, key)
	}

	title := strings.TrimSuffix(path.Base(key), path.Ext(key))
	documentID, err := l.ingestor.IngestDocument(ctx, orgID, title, content)
	if err != nil {
		return "", err
	}

	l.logger.Info("s3 document ingested", "bucket", l.bucket, "key", key,
		"org_id", orgID, "document_id", documentID)
	return documentID, nil
}
