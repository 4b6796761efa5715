package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/canopy/blobstore"
	"github.com/hupe1980/canopy/manifest"
)

// ErrConcurrentPublish is returned when another publisher committed a
// release between our read and our conditional write.
var ErrConcurrentPublish = errors.New("concurrent publish detected")

// DDBClient is the subset of the DynamoDB API used by ReleaseStore.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ReleaseStore implements blobstore.Store backed by S3 with DynamoDB for
// atomic release-pointer commits.
//
// S3 has no compare-and-swap, so two publishers racing on the CURRENT
// pointer could silently overwrite each other. DynamoDB conditional writes
// provide the missing primitive: each commit inserts a new monotonically
// increasing version row, and insertion fails if that version already
// exists. All other blobs pass straight through to S3.
//
// Table schema:
//   - Partition key: base_uri (string) - the s3://bucket/prefix of the store
//   - Sort key: version (number) - monotonically increasing release version
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name canopy-releases \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type ReleaseStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewReleaseStore creates an S3+DynamoDB release store.
// baseURI should be "s3://bucket/prefix", used as the partition key.
func NewReleaseStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *ReleaseStore {
	return &ReleaseStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a blob for reading. The CURRENT pointer is resolved from
// DynamoDB instead of S3.
func (s *ReleaseStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name == manifest.CurrentName {
		version, target, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, blobstore.ErrNotFound
		}
		return &pointerBlob{content: []byte(target)}, nil
	}
	return s.s3Store.Open(ctx, name)
}

// Create creates a writable blob in S3.
func (s *ReleaseStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return s.s3Store.Create(ctx, name)
}

// Put writes a blob. For the CURRENT pointer it uses a DynamoDB
// conditional write.
func (s *ReleaseStore) Put(ctx context.Context, name string, data []byte) error {
	if name == manifest.CurrentName {
		return s.commit(ctx, string(data))
	}
	return s.s3Store.Put(ctx, name, data)
}

// Delete deletes a blob from S3.
func (s *ReleaseStore) Delete(ctx context.Context, name string) error {
	return s.s3Store.Delete(ctx, name)
}

// List lists blobs in S3.
func (s *ReleaseStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.s3Store.List(ctx, prefix)
}

// latest queries DynamoDB for the newest committed release.
func (s *ReleaseStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query release table: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in release table")
	}
	targetAttr, ok := item["release_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid release_path attribute in release table")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("parse release version: %w", err)
	}

	return version, targetAttr.Value, nil
}

// commit atomically advances the CURRENT pointer to releasePath.
func (s *ReleaseStore) commit(ctx context.Context, releasePath string) error {
	currentVersion, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	newVersion := currentVersion + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":     &types.AttributeValueMemberS{Value: s.baseURI},
			"version":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"release_path": &types.AttributeValueMemberS{Value: releasePath},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentPublish
		}
		return fmt.Errorf("commit release version: %w", err)
	}

	return nil
}

// pointerBlob is an in-memory blob holding the CURRENT pointer content.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error {
	return nil
}

func (b *pointerBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *pointerBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= int64(len(b.content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.content)) {
		end = int64(len(b.content))
	}
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}
