package models

import "github.com/dmitrijs2005/clipkeeper/internal/common"

// FileRef is a file or folder entry. Folders form a tree through ParentID.
type FileRef struct {
	Meta         `json:"-"`
	Title        string   `json:"title"`
	ParentID     string   `json:"folderId,omitempty"`
	Folder       bool     `json:"folder,omitempty"`
	TagIDs       []string `json:"tagIds,omitempty"`
	Fav          bool     `json:"fav,omitempty"`
	Description  string   `json:"description,omitempty"`
	Abbreviation string   `json:"abbreviation,omitempty"`
	MediaType    string   `json:"mediaType,omitempty"`
	Size         int64    `json:"size,omitempty"`
	URI          string   `json:"uri,omitempty"`
}

func (f *FileRef) Kind() common.Kind { return common.KindFile }
func (f *FileRef) GetTagIDs() []string { return f.TagIDs }
