// Package mapper converts entities to and from mirror documents.
//
// A document is the entity's JSON form plus the sync keys of
// mirror.Document (id, createDate, modifyDate, syncVersion, deviceId).
// Local-only state (pending flag, confirmed revision, tombstone marker)
// never leaves the device.
package mapper

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
)

// ErrMalformedDocument is returned for documents that cannot become an
// entity of the requested kind.
var ErrMalformedDocument = errors.New("malformed document")

// ToDocument renders e for the mirror.
func ToDocument(e models.Entity) (mirror.Document, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", e.Kind(), err)
	}
	doc := mirror.Document{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", e.Kind(), err)
	}

	m := e.GetMeta()
	doc[mirror.FieldID] = m.ID
	doc[mirror.FieldSyncVersion] = m.SyncVersion
	doc[mirror.FieldDeviceID] = m.DeviceID
	doc.SetTime(mirror.FieldModifyDate, m.ModifyDate)
	doc.SetTime(mirror.FieldCreateDate, m.CreateDate)
	return doc, nil
}

// FromDocument builds an entity of kind from doc. The result carries the
// document's sync keys; local state is left zero.
func FromDocument(kind common.Kind, doc mirror.Document) (models.Entity, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	e, err := models.New(kind)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := json.Unmarshal(body, e); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrMalformedDocument, kind, doc.ID(), err)
	}

	m := e.GetMeta()
	m.ID = doc.ID()
	m.SyncVersion = doc.SyncVersion()
	m.ModifyDate = doc.ModifyDate()
	m.CreateDate = doc.Time(mirror.FieldCreateDate)
	m.DeviceID = doc.String(mirror.FieldDeviceID)
	return e, nil
}
