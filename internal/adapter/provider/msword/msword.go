package msword

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"

	"github.com/hive-corporation/soarbridge/internal/core/domain"
	"github.com/hive-corporation/soarbridge/internal/mailmerge"
)

// imageWidth is the width pictures are scaled to.
const imageWidth units.Inch = 6.25

var tableStyles = []string{"Light List Accent 1", "Light Grid Accent 1", "Light Shading Accent 1"}

// tableStyleIDs maps the Word display names of the table styles to their
// style IDs.
var tableStyleIDs = map[string]string{
	"Light List Accent 1":    "LightList-Accent1",
	"Light Grid Accent 1":    "LightGrid-Accent1",
	"Light Shading Accent 1": "LightShading-Accent1",
}

// MSWord builds Word documents in the shared files dir, chaining actions by
// file name. Merge templates are read from the templates dir.
type MSWord struct {
	filesDir     string
	templatesDir string
}

func New(filesDir, templatesDir string) *MSWord {
	return &MSWord{filesDir: filesDir, templatesDir: templatesDir}
}

func (w *MSWord) Name() string {
	return "MS Word"
}

func (w *MSWord) Description() string {
	return "Creates Word documents, partially based on templates with merge fields, and appends content to them."
}

func (w *MSWord) Actions() []domain.Action {
	docFile := domain.Param{Name: "doc_file", Description: "Document file name, e.g. report.docx", Type: domain.Text}

	return []domain.Action{
		{
			ID:          "create_new_file",
			Name:        "Create New File",
			Description: "Creates a new document with a title",
			Params: []domain.Param{
				docFile,
				{Name: "title", Description: "Document title", Type: domain.Text},
			},
			Run: w.createNewFile,
		},
		{
			ID:          "append_image",
			Name:        "Append Image File",
			Description: "Appends an image file to the document",
			Params: []domain.Param{
				docFile,
				{Name: "image_file", Description: "Image file ID", Type: domain.Text},
			},
			Run: w.appendImage,
		},
		{
			ID:          "append_text",
			Name:        "Append Text",
			Description: "Appends a paragraph to the document",
			Params: []domain.Param{
				docFile,
				{Name: "paragraph", Description: "Paragraph text", Type: domain.Text},
			},
			Run: func(_ context.Context, args domain.Args) (any, error) {
				return w.edit(args, func(d *docx.RootDoc) error {
					text := strings.ReplaceAll(args.Raw("paragraph"), "\r\n", "\n")
					for _, line := range strings.Split(text, "\n") {
						d.AddParagraph(line)
					}
					return nil
				})
			},
		},
		{
			ID:          "append_heading",
			Name:        "Append Heading",
			Description: "Appends a section heading to the document",
			Params: []domain.Param{
				docFile,
				{Name: "heading", Description: "Heading text", Type: domain.Text},
			},
			Run: func(_ context.Context, args domain.Args) (any, error) {
				return w.edit(args, func(d *docx.RootDoc) error {
					_, err := d.AddHeading(args.String("heading"), 1)
					return err
				})
			},
		},
		{
			ID:          "append_table",
			Name:        "Append Table",
			Description: "Appends a table built from a matrix of rows",
			Params: []domain.Param{
				docFile,
				{Name: "columns", Description: "Number of columns", Type: domain.Int},
				{Name: "headers", Description: "Comma separated column headers, e.g. col1,col2", Type: domain.Text},
				{Name: "row_array", Description: "Row data as a matrix, e.g. [['a','b'],['c','d']]", Type: domain.Text},
				{Name: "style", Description: "Word table style", Type: domain.Select, Options: tableStyles, Default: tableStyles[0]},
			},
			Run: w.appendTable,
		},
		{
			ID:          "apply_merge_fields",
			Name:        "Apply Merge Fields",
			Description: "Fills the merge fields of a preloaded template and saves the result as a new document",
			Params: []domain.Param{
				{Name: "doc_file", Description: "Template file name in the templates directory", Type: domain.Text},
				{Name: "new_file", Description: "Name of the document to create", Type: domain.Text},
				{Name: "merge_json", Description: "JSON object of merge field values", Type: domain.JSON},
			},
			Run: w.applyMergeFields,
		},
		{
			ID:          "list_merge_fields",
			Name:        "List Merge Fields",
			Description: "Lists the merge field names of a preloaded template",
			Params: []domain.Param{
				{Name: "doc_file", Description: "Template file name in the templates directory", Type: domain.Text},
			},
			Run: w.listMergeFields,
		},
	}
}

func (w *MSWord) createNewFile(_ context.Context, args domain.Args) (any, error) {
	path, err := resolve(w.filesDir, "doc_file", args.String("doc_file"))
	if err != nil {
		return nil, err
	}
	d, err := godocx.NewDocument()
	if err != nil {
		return nil, err
	}
	if _, err := d.AddHeading(args.String("title"), 0); err != nil {
		return nil, err
	}
	if err := save(d, path); err != nil {
		return nil, err
	}
	return domain.FileResult(filepath.Base(path)), nil
}

func (w *MSWord) appendImage(_ context.Context, args domain.Args) (any, error) {
	imagePath, err := resolve(w.filesDir, "image_file", args.String("image_file"))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return nil, domain.BadArgument("image_file", "is not a PNG, JPEG or GIF image")
	}

	height := imageWidth * units.Inch(cfg.Height) / units.Inch(cfg.Width)
	return w.edit(args, func(d *docx.RootDoc) error {
		_, err := d.AddPicture(imagePath, imageWidth, height)
		return err
	})
}

// appendTable rejects a header or row whose length differs from columns
// and leaves the document untouched in that case.
func (w *MSWord) appendTable(_ context.Context, args domain.Args) (any, error) {
	columns, err := args.Int("columns")
	if err != nil {
		return nil, err
	}
	if columns < 1 {
		return nil, domain.BadArgument("columns", "must be at least 1")
	}

	headers := strings.Split(args.Raw("headers"), ",")
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	if len(headers) != columns {
		return nil, domain.BadArgument("headers", "has %d values, columns is %d", len(headers), columns)
	}

	rows, err := ParseMatrix(args.Raw("row_array"))
	if err != nil {
		return nil, domain.BadArgument("row_array", "%v", err)
	}
	for i, row := range rows {
		if len(row) != columns {
			return nil, domain.BadArgument("row_array", "row %d has %d values, columns is %d", i+1, len(row), columns)
		}
	}

	styleID := tableStyleIDs[args.String("style")]
	return w.edit(args, func(d *docx.RootDoc) error {
		tbl := d.AddTable()
		if styleID != "" {
			tbl.Style(styleID)
		}
		for _, cells := range append([][]string{headers}, rows...) {
			row := tbl.AddRow()
			for _, cell := range cells {
				row.AddCell().AddParagraph(cell)
			}
		}
		return nil
	})
}

func (w *MSWord) applyMergeFields(_ context.Context, args domain.Args) (any, error) {
	template, err := resolve(w.templatesDir, "doc_file", args.String("doc_file"))
	if err != nil {
		return nil, err
	}
	target, err := resolve(w.filesDir, "new_file", args.String("new_file"))
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := args.JSON("merge_json", &fields); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(fields))
	for name, v := range fields {
		values[name] = fieldValue(v)
	}

	d, err := mailmerge.Open(template)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	d.Merge(values)
	if err := d.Save(target); err != nil {
		return nil, err
	}
	return domain.FileResult(filepath.Base(target)), nil
}

func (w *MSWord) listMergeFields(_ context.Context, args domain.Args) (any, error) {
	template, err := resolve(w.templatesDir, "doc_file", args.String("doc_file"))
	if err != nil {
		return nil, err
	}
	d, err := mailmerge.Open(template)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	return domain.Result{"fields": d.MergeFields()}, nil
}

// edit opens doc_file from the files dir, applies fn and saves it in place.
func (w *MSWord) edit(args domain.Args, fn func(*docx.RootDoc) error) (any, error) {
	path, err := resolve(w.filesDir, "doc_file", args.String("doc_file"))
	if err != nil {
		return nil, err
	}
	d, err := godocx.OpenDocument(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	if err := save(d, path); err != nil {
		return nil, err
	}
	return domain.FileResult(filepath.Base(path)), nil
}

// save writes the document next to path and renames it into place.
func save(d *docx.RootDoc, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".soarbridge-*.docx")
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	name := tmp.Name()
	tmp.Close()
	defer os.Remove(name)

	if err := d.SaveTo(name); err != nil {
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return os.Rename(name, path)
}

// resolve keeps file references inside dir; only the base name is used.
func resolve(dir, param, name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", domain.BadArgument(param, "is not a file name")
	}
	return filepath.Join(dir, base), nil
}

func fieldValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		data, _ := json.Marshal(t)
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
