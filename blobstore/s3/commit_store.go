package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/oriondb/blobstore"
)

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// ErrConcurrentPublish is returned when another writer published a
// newer snapshot generation in the meantime.
var ErrConcurrentPublish = errors.New("s3: concurrent snapshot publish detected")

// ErrNoCurrent is returned when no snapshot generation has been
// published yet.
var ErrNoCurrent = errors.New("s3: no published snapshot")

// CommitStore publishes snapshot generations: the blob goes to the
// underlying store under a versioned name, then a DynamoDB conditional
// write flips the "current" pointer. S3 alone cannot compare-and-swap,
// DynamoDB provides exactly that.
//
// Table schema: partition key `db` (string); attributes `version`
// (number) and `name` (string).
type CommitStore struct {
	blobs blobstore.BlobStore
	ddb   DDBClient
	table string
	dbKey string // partition key value identifying this database
}

// NewCommitStore creates a commit store for one logical database.
func NewCommitStore(blobs blobstore.BlobStore, ddb DDBClient, table, dbKey string) *CommitStore {
	return &CommitStore{blobs: blobs, ddb: ddb, table: table, dbKey: dbKey}
}

// Publish uploads data as generation version and atomically advances
// the current pointer. The conditional write fails with
// ErrConcurrentPublish when the stored version is not older.
func (cs *CommitStore) Publish(ctx context.Context, version uint64, data []byte) (string, error) {
	name := fmt.Sprintf("gen-%020d.odb", version)
	if err := cs.blobs.Put(ctx, name, data); err != nil {
		return "", err
	}

	_, err := cs.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(cs.table),
		Item: map[string]ddbtypes.AttributeValue{
			"db":      &ddbtypes.AttributeValueMemberS{Value: cs.dbKey},
			"version": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"name":    &ddbtypes.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version) OR version < :v"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":v": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return "", ErrConcurrentPublish
		}
		return "", err
	}
	return name, nil
}

// Current returns the blob name and version of the latest published
// generation.
func (cs *CommitStore) Current(ctx context.Context) (string, uint64, error) {
	out, err := cs.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(cs.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"db": &ddbtypes.AttributeValueMemberS{Value: cs.dbKey},
		},
	})
	if err != nil {
		return "", 0, err
	}
	if len(out.Item) == 0 {
		return "", 0, ErrNoCurrent
	}

	nameAttr, ok := out.Item["name"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", 0, fmt.Errorf("s3: malformed commit item: missing name")
	}
	versionAttr, ok := out.Item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return "", 0, fmt.Errorf("s3: malformed commit item: missing version")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("s3: malformed commit item: %w", err)
	}
	return nameAttr.Value, version, nil
}

// OpenCurrent opens the latest published generation for reading.
func (cs *CommitStore) OpenCurrent(ctx context.Context) (blobstore.Blob, error) {
	name, _, err := cs.Current(ctx)
	if err != nil {
		return nil, err
	}
	return cs.blobs.Open(ctx, name)
}
