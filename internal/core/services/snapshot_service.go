package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/stakelabs/harvest-server/internal/core/config"
	"github.com/stakelabs/harvest-server/internal/core/models"
	"github.com/stakelabs/harvest-server/pkg/logger"
)

// LedgerSnapshot is the exported JSON layout: the full pool list and every
// position, taken atomically from the ledger.
type LedgerSnapshot struct {
	TakenAt   time.Time          `json:"taken_at"`
	Pools     []*models.Pool     `json:"pools"`
	Positions []*models.Position `json:"positions"`
}

// SnapshotService uploads ledger snapshots to S3 as an off-site backup of
// the persisted state.
type SnapshotService struct {
	client     *s3.Client
	bucketName string
	ledger     *LedgerService
}

func NewSnapshotService(cfg *config.Config, ledger *LedgerService) (*SnapshotService, error) {
	if cfg.AWS.AccessKeyID == "" || cfg.AWS.SecretAccessKey == "" {
		return nil, fmt.Errorf("missing required AWS credentials")
	}
	if cfg.AWS.Region == "" {
		return nil, fmt.Errorf("AWS region must be specified")
	}
	if cfg.AWS.BucketName == "" {
		return nil, fmt.Errorf("AWS bucket name must be specified")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AWS.AccessKeyID,
		cfg.AWS.SecretAccessKey,
		"",
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &SnapshotService{
		client:     s3.NewFromConfig(awsCfg),
		bucketName: cfg.AWS.BucketName,
		ledger:     ledger,
	}, nil
}

// Export uploads the current ledger state and returns the object key.
func (s *SnapshotService) Export(ctx context.Context) (string, error) {
	log := logger.WithComponent("snapshot")

	pools, positions := s.ledger.Snapshot()
	snapshot := LedgerSnapshot{
		TakenAt:   time.Now().UTC(),
		Pools:     pools,
		Positions: positions,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := path.Join("snapshots", fmt.Sprintf("ledger-%s.json", uuid.New().String()))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		log.Error().Err(err).
			Str("bucket", s.bucketName).
			Str("key", key).
			Msg("Failed to upload ledger snapshot")
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	log.Info().
		Str("key", key).
		Int("pools", len(pools)).
		Int("positions", len(positions)).
		Msg("Ledger snapshot exported")

	return key, nil
}
