package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// DefaultMaxSize is the object size limit used when none is configured.
const DefaultMaxSize int64 = 50 * 1024 * 1024

// ErrDuplicate reports that an object with the same key and checksum is
// already in the manifest.
var ErrDuplicate = errors.New("duplicate object")

// PutItemAPI abstracts the DynamoDB PutItem operation.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Entry is one manifest row.
type Entry struct {
	Bucket    string
	Key       string
	SHA256    string
	Size      int64
	RequestID string
	SeenAt    time.Time
}

// ValidateSize returns an error if size exceeds limit.
func ValidateSize(key string, size, limit int64) error {
	if size > limit {
		return fmt.Errorf("object %s too large: %d > %d", key, size, limit)
	}
	return nil
}

// ComputeSHA256 reads r to the end and returns its SHA-256 hex digest and
// the number of bytes read.
func ComputeSHA256(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// PutManifest records e unless the same key was already stored with the
// same checksum, in which case ErrDuplicate is returned.
func PutManifest(ctx context.Context, db PutItemAPI, table string, e Entry) error {
	_, err := db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &table,
		Item: map[string]types.AttributeValue{
			"FileKey":   &types.AttributeValueMemberS{Value: e.Bucket + "/" + e.Key},
			"SHA256":    &types.AttributeValueMemberS{Value: e.SHA256},
			"Size":      &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Size, 10)},
			"RequestId": &types.AttributeValueMemberS{Value: e.RequestID},
			"SeenAt":    &types.AttributeValueMemberS{Value: e.SeenAt.UTC().Format(time.RFC3339)},
			"Processed": &types.AttributeValueMemberBOOL{Value: false},
		},
		ConditionExpression: aws.String("attribute_not_exists(FileKey) OR SHA256 <> :sha"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sha": &types.AttributeValueMemberS{Value: e.SHA256},
		},
	})
	if err != nil {
		var ccfe *types.ConditionalCheckFailedException
		if errors.As(err, &ccfe) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Close closes c and logs any returned error.
func Close(c io.Closer, log *zap.SugaredLogger) {
	if err := c.Close(); err != nil {
		log.Warnw("close body", "error", err)
	}
}
