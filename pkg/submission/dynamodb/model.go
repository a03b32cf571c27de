package dynamodb

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/dynamodbattribute"
	"github.com/pkg/errors"

	"github.com/CrumpLab/vertical/pkg/submission"
)

const (
	tableName    = "xprmntr-submissions"
	putCondition = "attribute_not_exists(id)"

	tableHashKey = "id"

	filenameIndexName     = "filename-index"
	filenameIndexHashKey  = "filename"
	filenameIndexRangeKey = "received_at"
	filenameQuery         = "filename = :filename"
)

var (
	tableNameStr         = aws.String(tableName)
	putConditionStr      = aws.String(putCondition)
	filenameIndexNameStr = aws.String(filenameIndexName)
	filenameQueryStr     = aws.String(filenameQuery)
)

type recordItem struct {
	ID       string `dynamodbav:"id"`
	Filename string `dynamodbav:"filename"`
	Data     string `dynamodbav:"data"`
	// ReceivedAt is the receipt time in unix nanoseconds.
	ReceivedAt int64 `dynamodbav:"received_at"`
}

func toItem(r *submission.Record) (map[string]dynamodb.AttributeValue, error) {
	if r.ID == "" {
		return nil, errors.New("submission id must be set")
	}
	if r.Filename == "" {
		return nil, errors.New("submission filename must be set")
	}

	return dynamodbattribute.MarshalMap(&recordItem{
		ID:         r.ID,
		Filename:   r.Filename,
		Data:       r.Data,
		ReceivedAt: r.ReceivedAt.UnixNano(),
	})
}

func fromItem(item map[string]dynamodb.AttributeValue) (*submission.Record, error) {
	var recordItem recordItem
	if err := dynamodbattribute.UnmarshalMap(item, &recordItem); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal submission item")
	}

	return &submission.Record{
		ID:         recordItem.ID,
		Filename:   recordItem.Filename,
		Data:       recordItem.Data,
		ReceivedAt: time.Unix(0, recordItem.ReceivedAt),
	}, nil
}
