package models

import (
	"strings"

	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// FilterType discriminates Filter variants. Numeric values are stable on the
// wire.
type FilterType int

const (
	FilterAll        FilterType = 0
	FilterUntagged   FilterType = 1
	FilterStarred    FilterType = 2
	FilterClipboard  FilterType = 3
	FilterDeleted    FilterType = 4
	FilterLast       FilterType = 5
	FilterTag        FilterType = 7
	FilterCustom     FilterType = 9
	FilterNamed      FilterType = 10
	FilterSnippetKit FilterType = 17
	FilterFolder     FilterType = 20
)

var filterTypeNames = map[FilterType]string{
	FilterAll:        "ALL",
	FilterUntagged:   "UNTAGGED",
	FilterStarred:    "STARRED",
	FilterClipboard:  "CLIPBOARD",
	FilterDeleted:    "DELETED",
	FilterLast:       "LAST",
	FilterTag:        "TAG",
	FilterCustom:     "CUSTOM",
	FilterNamed:      "NAMED",
	FilterSnippetKit: "SNIPPET_KIT",
	FilterFolder:     "FOLDER",
}

func (t FilterType) String() string {
	if s, ok := filterTypeNames[t]; ok {
		return s
	}
	return "CUSTOM"
}

// FilterTypeByID maps a wire id onto a FilterType; unknown ids become CUSTOM.
func FilterTypeByID(id int) FilterType {
	t := FilterType(id)
	if _, ok := filterTypeNames[t]; ok {
		return t
	}
	return FilterCustom
}

// ParseFilterType resolves a type name such as "tag" or "SNIPPET_KIT".
func ParseFilterType(s string) (FilterType, bool) {
	for t, name := range filterTypeNames {
		if strings.EqualFold(name, s) {
			return t, true
		}
	}
	return FilterCustom, false
}

// Filter is a tag, folder, snippet kit or saved search.
type Filter struct {
	Meta        `json:"-"`
	Type        FilterType `json:"type"`
	Name        string     `json:"name"`
	Color       string     `json:"color,omitempty"`
	FolderID    string     `json:"folderId,omitempty"`
	Description string     `json:"description,omitempty"`
}

func (f *Filter) Kind() common.Kind { return common.KindFilter }

// IsTag reports whether the filter can be referenced from TagIDs.
func (f *Filter) IsTag() bool { return f.Type == FilterTag }
