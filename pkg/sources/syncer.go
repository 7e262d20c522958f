package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"

	"communitybot/pkg/logx"
)

// ingestionAPI is the slice of the Bedrock Agent client the syncer needs.
type ingestionAPI interface {
	StartIngestionJob(ctx context.Context, params *bedrockagent.StartIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error)
	GetIngestionJob(ctx context.Context, params *bedrockagent.GetIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error)
}

// Syncer triggers knowledge base ingestion jobs after uploads land in S3.
type Syncer struct {
	client       ingestionAPI
	kbID         string
	dataSourceID string
	logger       *logx.Logger
}

// NewSyncer creates a syncer for one knowledge base data source.
func NewSyncer(client *bedrockagent.Client, knowledgeBaseID, dataSourceID string) *Syncer {
	return &Syncer{
		client:       client,
		kbID:         knowledgeBaseID,
		dataSourceID: dataSourceID,
		logger:       logx.NewLogger("kb-syncer"),
	}
}

// StartSync kicks off an ingestion job and returns its ID.
func (s *Syncer) StartSync(ctx context.Context) (string, error) {
	out, err := s.client.StartIngestionJob(ctx, &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(s.kbID),
		DataSourceId:    aws.String(s.dataSourceID),
	})
	if err != nil {
		return "", fmt.Errorf("start ingestion job: %w", err)
	}
	jobID := aws.ToString(out.IngestionJob.IngestionJobId)
	s.logger.Info("started knowledge base sync job %s", jobID)
	return jobID, nil
}

// SyncStatus describes the state of an ingestion job.
type SyncStatus struct {
	JobID     string
	Status    string
	StartedAt time.Time
	UpdatedAt time.Time
	Scanned   int64
	Indexed   int64
	Failed    int64
}

// GetSyncStatus fetches the current state of an ingestion job.
func (s *Syncer) GetSyncStatus(ctx context.Context, jobID string) (SyncStatus, error) {
	out, err := s.client.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
		KnowledgeBaseId: aws.String(s.kbID),
		DataSourceId:    aws.String(s.dataSourceID),
		IngestionJobId:  aws.String(jobID),
	})
	if err != nil {
		return SyncStatus{}, fmt.Errorf("get ingestion job %s: %w", jobID, err)
	}

	job := out.IngestionJob
	status := SyncStatus{
		JobID:  jobID,
		Status: string(job.Status),
	}
	if job.StartedAt != nil {
		status.StartedAt = *job.StartedAt
	}
	if job.UpdatedAt != nil {
		status.UpdatedAt = *job.UpdatedAt
	}
	if stats := job.Statistics; stats != nil {
		status.Scanned = stats.NumberOfDocumentsScanned
		status.Indexed = stats.NumberOfNewDocumentsIndexed
		status.Failed = stats.NumberOfDocumentsFailed
	}
	return status, nil
}
