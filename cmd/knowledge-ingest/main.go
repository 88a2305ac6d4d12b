package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/leadflowhq/whatsapp-ai-platform/internal/app/bootstrap"
	appconfig "github.com/leadflowhq/whatsapp-ai-platform/internal/config"
	"github.com/leadflowhq/whatsapp-ai-platform/pkg/logging"
)

// Operator tool: ingest a knowledge document for one organization, from
// a local file or from the configured S3 bucket, or delete a previously
// ingested document.
func main() {
	_ = godotenv.Load()

	var (
		orgFlag    = flag.String("org", "", "organization id (required)")
		fileFlag   = flag.String("file", "", "local file to ingest")
		s3KeyFlag  = flag.String("s3-key", "", "S3 object key to ingest")
		titleFlag  = flag.String("title", "", "document title (defaults to file name)")
		deleteFlag = flag.String("delete", "", "document id to delete")
	)
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	orgID, err := uuid.Parse(*orgFlag)
	if err != nil {
		logger.Error("valid -org is required", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("runtime init failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	_, ingestor := bootstrap.BuildKnowledge(rt)

	switch {
	case *deleteFlag != "":
		if err := ingestor.DeleteDocument(ctx, orgID, *deleteFlag); err != nil {
			logger.Error("delete failed", "error", err)
			os.Exit(1)
		}

	case *s3KeyFlag != "":
		loader := bootstrap.BuildS3Loader(rt, ingestor)
		if loader == nil {
			logger.Error("KNOWLEDGE_DOCUMENTS_BUCKET is not configured")
			os.Exit(2)
		}
		docID, err := loader.IngestObject(ctx, orgID, *s3KeyFlag)
		if err != nil {
			logger.Error("s3 ingest failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ingested", "document_id", docID)

	case *fileFlag != "":
		raw, err := os.ReadFile(*fileFlag)
		if err != nil {
			logger.Error("read file failed", "error", err)
			os.Exit(1)
		}
		title := *titleFlag
		if title == "" {
			title = *fileFlag
		}
		docID, err := ingestor.IngestDocument(ctx, orgID, title, string(raw))
		if err != nil {
			logger.Error("ingest failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ingested", "document_id", docID)

	default:
		logger.Error("one of -file, -s3-key or -delete is required")
		os.Exit(2)
	}
}
