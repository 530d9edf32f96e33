package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailerlite-sync/internal/config"
	"github.com/ignite/mailerlite-sync/internal/domain"
)

func sampleReport() *domain.SyncReport {
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return &domain.SyncReport{
		RunID:       "run-1",
		StartedAt:   started,
		FinishedAt:  started.Add(42 * time.Second),
		Selected:    10,
		Successful:  7,
		Failed:      2,
		Quarantined: 3,
		ByGroup:     map[string]int{"townhouse": 5, "palace": 2},
	}
}

func TestLocalStorage_SaveAndLatest(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.LatestReport(ctx)
	assert.ErrorIs(t, err, ErrNoReport)

	r := sampleReport()
	require.NoError(t, s.SaveReport(ctx, r))

	_, err = os.Stat(filepath.Join(root, "2026-10-18", "run-1.json"))
	require.NoError(t, err)

	got, err := s.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, r.ByGroup, got.ByGroup)
	assert.True(t, r.StartedAt.Equal(got.StartedAt))

	second := sampleReport()
	second.RunID = "run-2"
	require.NoError(t, s.SaveReport(ctx, second))
	got, err = s.LatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, config.ReportConfig{Type: config.ReportNone})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)
	assert.NoError(t, s.SaveReport(ctx, sampleReport()))
	_, err = s.LatestReport(ctx)
	assert.ErrorIs(t, err, ErrNoReport)

	s, err = New(ctx, config.ReportConfig{Type: config.ReportLocal, LocalPath: filepath.Join(t.TempDir(), "reports")})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type fakeDynamo struct {
	items []*dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items = append(f.items, in)
	return &dynamodb.PutItemOutput{}, nil
}

func TestAWSStorage_SaveReport(t *testing.T) {
	s3c := &fakeS3{objects: make(map[string][]byte)}
	db := &fakeDynamo{}
	s := newAWSStorage(db, s3c, "sync-history", "sync-bucket", 0)
	now := time.Date(2026, 10, 18, 9, 1, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	r := sampleReport()
	require.NoError(t, s.SaveReport(context.Background(), r))

	require.Contains(t, s3c.objects, "reports/2026/10/18/run-1.json")
	require.Contains(t, s3c.objects, "reports/latest.json")
	var archived domain.SyncReport
	require.NoError(t, json.Unmarshal(s3c.objects["reports/2026/10/18/run-1.json"], &archived))
	assert.Equal(t, 7, archived.Successful)

	require.Len(t, db.items, 1)
	assert.Equal(t, "sync-history", aws.ToString(db.items[0].TableName))
	var item reportItem
	require.NoError(t, attributevalue.UnmarshalMap(db.items[0].Item, &item))
	assert.Equal(t, ReportPartitionKey, item.PK)
	assert.Equal(t, "2026-10-18T09:00:00Z#run-1", item.SK)
	assert.Equal(t, now.Add(90*24*time.Hour).Unix(), item.TTL)
	assert.Equal(t, "run-1", item.RunID)
	assert.Equal(t, 5, item.ByGroup["townhouse"])

	latest, err := s.LatestReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestAWSStorage_SkipsUnconfiguredSides(t *testing.T) {
	s3c := &fakeS3{objects: make(map[string][]byte)}
	db := &fakeDynamo{}

	require.NoError(t, newAWSStorage(db, s3c, "", "bucket", 30).SaveReport(context.Background(), sampleReport()))
	assert.Empty(t, db.items)
	assert.Len(t, s3c.objects, 2)

	s3c = &fakeS3{objects: make(map[string][]byte)}
	require.NoError(t, newAWSStorage(db, s3c, "table", "", 30).SaveReport(context.Background(), sampleReport()))
	assert.Empty(t, s3c.objects)
	assert.Len(t, db.items, 1)

	_, err := newAWSStorage(db, s3c, "table", "", 30).LatestReport(context.Background())
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestAWSStorage_Errors(t *testing.T) {
	s3c := &fakeS3{objects: make(map[string][]byte), putErr: errors.New("access denied")}
	s := newAWSStorage(&fakeDynamo{}, s3c, "", "bucket", 30)

	err := s.SaveReport(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	_, err = s.LatestReport(context.Background())
	assert.ErrorIs(t, err, ErrNoReport)
}
