package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// Record is the storage form of an entity: sync metadata in columns, kind
// specific fields as a JSON payload. Name, FilterType and ParentID are
// copied out of the payload so they can be indexed.
type Record struct {
	Kind          common.Kind
	ID            string
	Version       int64
	RemoteVersion int64
	Pending       bool
	Deleted       bool
	DeletedAt     *time.Time
	CreateDate    time.Time
	ModifyDate    time.Time
	DeviceID      string
	Name          string
	FilterType    int
	ParentID      string
	Payload       []byte
}

// New returns an empty entity of the given kind.
func New(kind common.Kind) (Entity, error) {
	switch kind {
	case common.KindClip:
		return &Clip{}, nil
	case common.KindFile:
		return &FileRef{}, nil
	case common.KindFilter:
		return &Filter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
}

// Encode converts an entity into its Record.
func Encode(e Entity) (*Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}

	m := e.GetMeta()
	r := &Record{
		Kind:          e.Kind(),
		ID:            m.ID,
		Version:       m.SyncVersion,
		RemoteVersion: m.RemoteVersion,
		Pending:       m.PendingSync,
		Deleted:       m.Deleted,
		DeletedAt:     m.DeletedAt,
		CreateDate:    m.CreateDate,
		ModifyDate:    m.ModifyDate,
		DeviceID:      m.DeviceID,
		Payload:       payload,
	}

	switch v := e.(type) {
	case *Clip:
		r.Name = v.Title
	case *FileRef:
		r.Name = v.Title
		r.ParentID = v.ParentID
	case *Filter:
		r.Name = v.Name
		r.FilterType = int(v.Type)
		r.ParentID = v.FolderID
	}
	return r, nil
}

// Decode converts a Record back into a typed entity.
func Decode(r *Record) (Entity, error) {
	e, err := New(r.Kind)
	if err != nil {
		return nil, err
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, e); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", r.Kind, r.ID, err)
		}
	}

	*e.GetMeta() = Meta{
		ID:            r.ID,
		SyncVersion:   r.Version,
		RemoteVersion: r.RemoteVersion,
		PendingSync:   r.Pending,
		Deleted:       r.Deleted,
		DeletedAt:     r.DeletedAt,
		CreateDate:    r.CreateDate,
		ModifyDate:    r.ModifyDate,
		DeviceID:      r.DeviceID,
	}
	return e, nil
}

// Clone returns a deep copy of e.
func Clone(e Entity) (Entity, error) {
	r, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return Decode(r)
}
