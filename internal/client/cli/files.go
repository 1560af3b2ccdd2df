package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/clipkeeper/internal/client/models"
	"github.com/dmitrijs2005/clipkeeper/internal/client/state"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
)

// FileEdit holds the fields a files edit command sets. Nil fields are left
// alone.
type FileEdit struct {
	Title        *string
	Description  *string
	Abbreviation *string
	Fav          *bool
}

func filesCommand(app **App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List file entries",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return (*app).Files(cmd.Context()) },
	}

	var as, folder string
	add := &cobra.Command{
		Use:   "add <title>...",
		Short: "Create file entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, titles []string) error {
			t, err := state.ParseAddFileType(as)
			if err != nil {
				return err
			}
			return (*app).AddFiles(cmd.Context(), t, folder, titles)
		},
	}
	add.Flags().StringVar(&as, "as", "file", "file, note or attachment")
	add.Flags().StringVar(&folder, "folder", "", "parent folder id")

	var title, description, abbreviation string
	var fav bool
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the fields of a file entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e FileEdit
			flags := cmd.Flags()
			if flags.Changed("title") {
				e.Title = &title
			}
			if flags.Changed("description") {
				e.Description = &description
			}
			if flags.Changed("abbreviation") {
				e.Abbreviation = &abbreviation
			}
			if flags.Changed("fav") {
				e.Fav = &fav
			}
			return (*app).EditFile(cmd.Context(), args[0], e)
		},
	}
	edit.Flags().StringVar(&title, "title", "", "new title")
	edit.Flags().StringVar(&description, "description", "", "new description")
	edit.Flags().StringVar(&abbreviation, "abbreviation", "", "new abbreviation")
	edit.Flags().BoolVar(&fav, "fav", false, "mark as favorite")

	cmd.AddCommand(add, edit)
	return cmd
}

func (app *App) fileRefs(ctx context.Context) ([]*models.FileRef, error) {
	list, err := app.store.ListActive(ctx, common.KindFile)
	if err != nil {
		return nil, err
	}
	out := make([]*models.FileRef, 0, len(list))
	for _, e := range list {
		out = append(out, e.(*models.FileRef))
	}
	return out, nil
}

// Files prints the active file entries.
func (app *App) Files(ctx context.Context) error {
	files, err := app.fileRefs(ctx)
	if err != nil {
		return err
	}
	fs := state.NewFilesState()
	fs.SetFiles(files)
	shown, _ := fs.Files.GetValue()

	w := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tFAV\tPENDING")
	for _, f := range shown {
		typ := "file"
		if f.Folder {
			typ = "folder"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", f.ID, f.Title, typ, f.Fav, f.PendingSync)
	}
	return w.Flush()
}

// AddFiles creates one entry per title under folder and describes the
// result the way the add-file variant t presents it.
func (app *App) AddFiles(ctx context.Context, t state.AddFileType, folder string, titles []string) error {
	created := make([]*models.FileRef, 0, len(titles))
	for _, title := range titles {
		e, err := app.store.Put(ctx, &models.FileRef{Title: title, ParentID: folder}, 0)
		if err != nil {
			return fmt.Errorf("add %q: %w", title, err)
		}
		created = append(created, e.(*models.FileRef))
	}

	fmt.Fprintf(app.out, "%s: %s\n", t.Title(created), t.Description(created))
	for _, f := range created {
		fmt.Fprintf(app.out, "  %s  %s\n", f.ID, f.Title)
	}
	return nil
}

// EditFile opens id in an edit screen state, applies e to its change cells
// and stores only the fields that differ.
func (app *App) EditFile(ctx context.Context, id string, e FileEdit) error {
	got, err := app.store.Get(ctx, common.KindFile, id)
	if err != nil {
		return err
	}
	f := got.(*models.FileRef)

	fs := state.NewFilesState()
	fs.SetFiles([]*models.FileRef{f})
	fs.SetState(f, state.ViewModeEdit, state.FocusTitle, f.Title)

	if e.Title != nil {
		fs.ChangedName.SetValue(*e.Title, false)
	}
	if e.Description != nil {
		fs.ChangedDescription.SetValue(*e.Description, false)
	}
	if e.Abbreviation != nil {
		fs.ChangedAbbreviation.SetValue(*e.Abbreviation, false)
	}
	if e.Fav != nil {
		fs.ChangedFav.SetValue(*e.Fav, false)
	}

	fav, name, _, _, description, abbreviation := fs.Edits()
	var changed []string
	next := *f
	if name {
		next.Title, _ = fs.ChangedName.GetValue()
		changed = append(changed, "title")
	}
	if fav {
		next.Fav, _ = fs.ChangedFav.GetValue()
		changed = append(changed, "fav")
	}
	if description {
		next.Description, _ = fs.ChangedDescription.GetValue()
		changed = append(changed, "description")
	}
	if abbreviation {
		next.Abbreviation, _ = fs.ChangedAbbreviation.GetValue()
		changed = append(changed, "abbreviation")
	}
	if len(changed) == 0 {
		fmt.Fprintf(app.out, "%s unchanged\n", id)
		return nil
	}

	updated, err := app.store.Put(ctx, &next, f.SyncVersion)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "updated %s to version %d: %s\n", id, updated.GetMeta().SyncVersion, strings.Join(changed, ", "))
	return nil
}
