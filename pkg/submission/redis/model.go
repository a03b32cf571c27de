package redis

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/CrumpLab/vertical/pkg/submission"
)

const (
	recordKeyPrefix   = "xprmntr:submission:"
	filenameKeyPrefix = "xprmntr:filename:"
)

type recordItem struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Data       string    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

func filenameKey(filename string) string {
	return filenameKeyPrefix + filename
}

// score orders records within a filename by receipt time, at millisecond
// resolution so it fits exactly in a float64.
func score(t time.Time) float64 {
	return float64(t.UnixNano() / int64(time.Millisecond))
}

func toItem(r *submission.Record) (string, error) {
	b, err := json.Marshal(&recordItem{
		ID:         r.ID,
		Filename:   r.Filename,
		Data:       r.Data,
		ReceivedAt: r.ReceivedAt,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal submission")
	}
	return string(b), nil
}

func fromItem(raw string) (*submission.Record, error) {
	var item recordItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal submission")
	}

	return &submission.Record{
		ID:         item.ID,
		Filename:   item.Filename,
		Data:       item.Data,
		ReceivedAt: item.ReceivedAt,
	}, nil
}
