package state

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
)

// AddFileType is the kind of item the add-file flow creates.
type AddFileType int

const (
	AddFile AddFileType = iota
	AddNote
	AddAttachment
)

// AddFileHints remembers which onboarding hints the user dismissed.
type AddFileHints struct {
	HideFile       bool `json:"hideFile"`
	HideNote       bool `json:"hideNote"`
	HideAttachment bool `json:"hideAttachment"`
}

type addFileBehavior struct {
	name         string
	canShowHint  func(AddFileHints) bool
	hideHint     func(AddFileHints) AddFileHints
	titleOne     string
	titleMany    string
	describeOne  string
	describeMany string
}

var addFileBehaviors = map[AddFileType]addFileBehavior{
	AddFile: {
		name:         "FILE",
		canShowHint:  func(h AddFileHints) bool { return !h.HideFile },
		hideHint:     func(h AddFileHints) AddFileHints { h.HideFile = true; return h },
		titleOne:     "New file",
		titleMany:    "New files",
		describeOne:  "The file will be uploaded and kept in sync.",
		describeMany: "The files will be uploaded and kept in sync.",
	},
	AddNote: {
		name:         "NOTE",
		canShowHint:  func(h AddFileHints) bool { return !h.HideNote },
		hideHint:     func(h AddFileHints) AddFileHints { h.HideNote = true; return h },
		titleOne:     "New note",
		titleMany:    "New note",
		describeOne:  "The file will be attached to a new note.",
		describeMany: "The files will be attached to a new note.",
	},
	AddAttachment: {
		name:         "ATTACHMENT",
		canShowHint:  func(h AddFileHints) bool { return !h.HideAttachment },
		hideHint:     func(h AddFileHints) AddFileHints { h.HideAttachment = true; return h },
		titleOne:     "New attachment",
		titleMany:    "New attachments",
		describeOne:  "The file will be attached to the current note.",
		describeMany: "The files will be attached to the current note.",
	},
}

func (t AddFileType) behavior() addFileBehavior {
	if b, ok := addFileBehaviors[t]; ok {
		return b
	}
	return addFileBehaviors[AddFile]
}

func (t AddFileType) String() string { return t.behavior().name }

func (t AddFileType) CanShowHint(h AddFileHints) bool { return t.behavior().canShowHint(h) }

func (t AddFileType) HideHint(h AddFileHints) AddFileHints { return t.behavior().hideHint(h) }

func (t AddFileType) Title(files []*models.FileRef) string {
	b := t.behavior()
	if len(files) == 1 {
		return b.titleOne
	}
	return b.titleMany
}

func (t AddFileType) Description(files []*models.FileRef) string {
	b := t.behavior()
	if len(files) == 1 {
		return b.describeOne
	}
	return b.describeMany
}

// ParseAddFileType maps a variant name such as "note" to its AddFileType.
func ParseAddFileType(name string) (AddFileType, error) {
	for _, t := range []AddFileType{AddFile, AddNote, AddAttachment} {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}
	return AddFile, fmt.Errorf("unknown add-file type %q", name)
}
