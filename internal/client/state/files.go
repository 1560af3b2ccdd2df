package state

import (
	"slices"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/reactive"
)

type ViewMode int

const (
	ViewModeView ViewMode = iota
	ViewModeEdit
	ViewModePreview
)

type FocusMode int

const (
	FocusNone FocusMode = iota
	FocusTitle
	FocusDescription
	FocusAbbreviation
)

// FileScreenState is what the file screen currently shows.
type FileScreenState struct {
	Value     *models.FileRef
	ViewMode  ViewMode
	FocusMode FocusMode
	Title     string
}

func (s *FileScreenState) IsEditMode() bool { return s != nil && s.ViewMode == ViewModeEdit }

// FilesState backs the file list and file details screens. Setting
// ScreenState resets every Changed* cell to the shown file's fields, so
// edits start from a clean baseline.
type FilesState struct {
	Files             *reactive.Value[[]*models.FileRef]
	ScreenState       *reactive.Value[*FileScreenState]
	SelectedFileIndex *reactive.Value[int]

	ChangedFav          *reactive.Value[bool]
	ChangedName         *reactive.Value[string]
	ChangedTags         *reactive.Value[[]string]
	ChangedFolder       *reactive.Value[string]
	ChangedDescription  *reactive.Value[string]
	ChangedAbbreviation *reactive.Value[string]
}

func NewFilesState() *FilesState {
	s := &FilesState{
		Files:               reactive.New(reactive.WithID[[]*models.FileRef]("files")),
		SelectedFileIndex:   reactive.New(reactive.WithID[int]("selected_file_index"), reactive.WithInitial(-1)),
		ChangedFav:          reactive.New(reactive.WithID[bool]("changed_fav")),
		ChangedName:         reactive.New(reactive.WithID[string]("changed_name")),
		ChangedTags:         reactive.New(reactive.WithID[[]string]("changed_tags")),
		ChangedFolder:       reactive.New(reactive.WithID[string]("changed_folder_id")),
		ChangedDescription:  reactive.New(reactive.WithID[string]("changed_description")),
		ChangedAbbreviation: reactive.New(reactive.WithID[string]("changed_abbreviation")),
	}
	s.ScreenState = reactive.New(
		reactive.WithID[*FileScreenState]("screen_state"),
		reactive.WithOnChanged(s.onScreenChanged),
	)
	return s
}

func (s *FilesState) onScreenChanged(_, next *FileScreenState) {
	if next == nil || next.Value == nil {
		s.ChangedFav.ClearValue()
		s.ChangedName.ClearValue()
		s.ChangedTags.ClearValue()
		s.ChangedFolder.ClearValue()
		s.ChangedDescription.ClearValue()
		s.ChangedAbbreviation.ClearValue()
		s.SelectedFileIndex.ClearValue()
		return
	}
	f := next.Value
	s.ChangedFav.SetValue(f.Fav, false)
	s.ChangedName.SetValue(f.Title, false)
	s.ChangedTags.SetValue(slices.Clone(f.TagIDs), false)
	s.ChangedFolder.SetValue(f.ParentID, false)
	s.ChangedDescription.SetValue(f.Description, false)
	s.ChangedAbbreviation.SetValue(f.Abbreviation, false)

	files, _ := s.Files.GetValue()
	s.SelectedFileIndex.SetValue(slices.IndexFunc(files, func(x *models.FileRef) bool { return x.ID == f.ID }), false)
}

func (s *FilesState) SetFiles(files []*models.FileRef) {
	s.Files.SetValue(files, false)
}

// SetState shows fileRef and returns the new screen state.
func (s *FilesState) SetState(fileRef *models.FileRef, view ViewMode, focus FocusMode, title string) *FileScreenState {
	next := &FileScreenState{Value: fileRef, ViewMode: view, FocusMode: focus, Title: title}
	s.ScreenState.SetValue(next, true)
	return next
}

func (s *FilesState) SetViewState(fileRef *models.FileRef, title string) *FileScreenState {
	return s.SetState(fileRef, ViewModeView, FocusNone, title)
}

// UpdateState swaps the shown file, keeping the current modes.
func (s *FilesState) UpdateState(fileRef *models.FileRef) {
	s.ScreenState.UpdateValue(func(cur *FileScreenState, present bool) *FileScreenState {
		if !present || cur == nil {
			return &FileScreenState{Value: fileRef}
		}
		next := *cur
		next.Value = fileRef
		return &next
	}, true)
}

// Edits reports which fields differ from the shown file.
func (s *FilesState) Edits() (fav, name, tags, folder, description, abbreviation bool) {
	cur, ok := s.ScreenState.GetValue()
	if !ok || cur == nil || cur.Value == nil {
		return
	}
	f := cur.Value
	v := func(c *reactive.Value[string], orig string) bool {
		got, _ := c.GetValue()
		return got != orig
	}
	gotFav, _ := s.ChangedFav.GetValue()
	gotTags, _ := s.ChangedTags.GetValue()
	return gotFav != f.Fav,
		v(s.ChangedName, f.Title),
		!slices.Equal(gotTags, f.TagIDs),
		v(s.ChangedFolder, f.ParentID),
		v(s.ChangedDescription, f.Description),
		v(s.ChangedAbbreviation, f.Abbreviation)
}

func (s *FilesState) ClearState() {
	s.ScreenState.ClearValue()
	s.Files.ClearValue()
}
