package models

import "github.com/dmitrijs2005/clipkeeper/internal/common"

// Clip is a captured text snippet or note.
type Clip struct {
	Meta         `json:"-"`
	Text         string   `json:"text"`
	Title        string   `json:"title,omitempty"`
	TagIDs       []string `json:"tagIds,omitempty"`
	Fav          bool     `json:"fav,omitempty"`
	Abbreviation string   `json:"abbreviation,omitempty"`
	Description  string   `json:"description,omitempty"`
}

func (c *Clip) Kind() common.Kind { return common.KindClip }
func (c *Clip) GetTagIDs() []string { return c.TagIDs }
