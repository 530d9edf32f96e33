package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ignite/mailerlite-sync/internal/domain"
)

// ReportPartitionKey is the DynamoDB partition holding every run.
const ReportPartitionKey = "SYNC_RUN"

const latestKey = "reports/latest.json"

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// AWSStorage archives reports as S3 objects and indexes them in DynamoDB.
// Either side is skipped when its bucket or table name is empty.
type AWSStorage struct {
	dynamoDB  dynamoAPI
	s3Client  s3API
	tableName string
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

// reportItem is the DynamoDB history row of one run.
type reportItem struct {
	PK  string `dynamodbav:"PK"`
	SK  string `dynamodbav:"SK"`
	TTL int64  `dynamodbav:"TTL,omitempty"`
	domain.SyncReport
}

// NewAWSStorage creates a new AWS storage instance
func NewAWSStorage(ctx context.Context, tableName, bucket, region, profile string, ttlDays int) (*AWSStorage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newAWSStorage(dynamodb.NewFromConfig(cfg), s3.NewFromConfig(cfg), tableName, bucket, ttlDays), nil
}

func newAWSStorage(db dynamoAPI, s3c s3API, tableName, bucket string, ttlDays int) *AWSStorage {
	if ttlDays <= 0 {
		ttlDays = 90
	}
	return &AWSStorage{
		dynamoDB:  db,
		s3Client:  s3c,
		tableName: tableName,
		bucket:    bucket,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// ReportKey is the S3 key of a run's report.
func ReportKey(r *domain.SyncReport) string {
	return fmt.Sprintf("reports/%s/%s.json", r.StartedAt.UTC().Format("2006/01/02"), r.RunID)
}

func (s *AWSStorage) SaveReport(ctx context.Context, r *domain.SyncReport) error {
	if s.bucket != "" {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling report: %w", err)
		}
		for _, key := range []string{ReportKey(r), latestKey} {
			if err := s.putObject(ctx, key, data); err != nil {
				return err
			}
		}
	}

	if s.tableName != "" {
		av, err := attributevalue.MarshalMap(reportItem{
			PK:         ReportPartitionKey,
			SK:         r.StartedAt.UTC().Format(time.RFC3339) + "#" + r.RunID,
			TTL:        s.now().Add(s.ttl).Unix(),
			SyncReport: *r,
		})
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		_, err = s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("putting item to DynamoDB: %w", err)
		}
	}
	return nil
}

func (s *AWSStorage) LatestReport(ctx context.Context) (*domain.SyncReport, error) {
	if s.bucket == "" {
		return nil, ErrNoReport
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(latestKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("getting %s from S3: %w", latestKey, err)
	}
	defer out.Body.Close()

	var r domain.SyncReport
	if err := json.NewDecoder(out.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding latest report: %w", err)
	}
	return &r, nil
}

func (s *AWSStorage) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting %s to S3: %w", key, err)
	}
	return nil
}
