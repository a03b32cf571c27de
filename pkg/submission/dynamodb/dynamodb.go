package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/dynamodbiface"
	dynamodbutil "github.com/kinecosystem/agora-common/aws/dynamodb/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/CrumpLab/vertical/pkg/submission"
)

type db struct {
	log *logrus.Entry
	db  dynamodbiface.ClientAPI
}

// New returns a dynamo-backed submission.Store
func New(client dynamodbiface.ClientAPI) submission.Store {
	return &db{
		log: logrus.StandardLogger().WithField("type", "submission/dynamodb"),
		db:  client,
	}
}

// Put implements submission.Store.Put.
func (d *db) Put(ctx context.Context, r *submission.Record) error {
	item, err := toItem(r)
	if err != nil {
		return err
	}

	_, err = d.db.PutItemRequest(&dynamodb.PutItemInput{
		TableName:           tableNameStr,
		Item:                item,
		ConditionExpression: putConditionStr,
	}).Send(ctx)
	if err != nil {
		if dynamodbutil.IsConditionalCheckFailed(err) {
			return submission.ErrExists
		}

		return errors.Wrap(err, "failed to store submission")
	}

	return nil
}

// Get implements submission.Store.Get.
func (d *db) Get(ctx context.Context, id string) (*submission.Record, error) {
	resp, err := d.db.GetItemRequest(&dynamodb.GetItemInput{
		TableName: tableNameStr,
		Key: map[string]dynamodb.AttributeValue{
			tableHashKey: {S: aws.String(id)},
		},
	}).Send(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get submission")
	}

	if len(resp.Item) == 0 {
		return nil, submission.ErrNotFound
	}

	return fromItem(resp.Item)
}

// List implements submission.Store.List.
func (d *db) List(ctx context.Context, filename string) ([]*submission.Record, error) {
	pager := dynamodb.NewQueryPaginator(d.db.QueryRequest(&dynamodb.QueryInput{
		TableName:              tableNameStr,
		IndexName:              filenameIndexNameStr,
		KeyConditionExpression: filenameQueryStr,
		ExpressionAttributeValues: map[string]dynamodb.AttributeValue{
			":filename": {S: aws.String(filename)},
		},
		ScanIndexForward: aws.Bool(true),
	}))

	records := make([]*submission.Record, 0)
	for pager.Next(ctx) {
		for _, item := range pager.CurrentPage().Items {
			r, err := fromItem(item)
			if err != nil {
				return nil, errors.Wrap(err, "invalid submission")
			}

			records = append(records, r)
		}
	}
	if pager.Err() != nil {
		return nil, errors.Wrap(pager.Err(), "failed to page submissions")
	}

	return records, nil
}
