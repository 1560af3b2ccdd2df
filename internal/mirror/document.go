package mirror

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/timex"
)

// Well-known document keys.
const (
	FieldID          = "id"
	FieldModifyDate  = "modifyDate"
	FieldCreateDate  = "createDate"
	FieldSyncVersion = "syncVersion"
	FieldDeviceID    = "deviceId"
)

// Document is the flat key/value form of an entity on the mirror.
// Timestamps are unix milliseconds. Values decoded from JSON arrive as
// float64 or []any; the accessors accept both.
type Document map[string]any

func (d Document) ID() string { return d.String(FieldID) }

func (d Document) SyncVersion() int64 { return d.Int(FieldSyncVersion) }

func (d Document) ModifyDate() time.Time { return d.Time(FieldModifyDate) }

// Validate checks the keys every document must carry.
func (d Document) Validate() error {
	if d.ID() == "" {
		return fmt.Errorf("%w: document without id", common.ErrRemoteRejected)
	}
	if _, ok := d[FieldModifyDate]; !ok {
		return fmt.Errorf("%w: document %s without %s", common.ErrRemoteRejected, d.ID(), FieldModifyDate)
	}
	if _, ok := d[FieldSyncVersion]; !ok {
		return fmt.Errorf("%w: document %s without %s", common.ErrRemoteRejected, d.ID(), FieldSyncVersion)
	}
	return nil
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	return maps.Clone(d)
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

func (d Document) Int(key string) int64 {
	switch v := d[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func (d Document) Time(key string) time.Time {
	return timex.FromUnixMilli(d.Int(key))
}

func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetTime stores t as unix milliseconds.
func (d Document) SetTime(key string, t time.Time) {
	d[key] = timex.UnixMilli(t)
}
