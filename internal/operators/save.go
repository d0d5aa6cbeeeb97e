package operators

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	imageio "photoflow/internal/io"
)

var SaveDef = engine.Definition{
	Type:    "save",
	Name:    "Save",
	Inputs:  []string{"Images"},
	Outputs: []string{"Images"},
}

var saveFormats = []string{"tiff", "png", "jpg"}

// save writes every photo into a directory and passes it through.
type save struct {
	directory *engine.Text
	format    *engine.DropDown

	mu   sync.Mutex
	used map[string]int
}

func NewSave(opts engine.Options) *engine.Operator {
	return engine.NewOperator(SaveDef, opts, func(op *engine.Operator) engine.Kernel {
		return &save{
			directory: engine.NewText(op, "directory", "."),
			format:    engine.NewDropDown(op, "format", saveFormats, 0),
		}
	})
}

func (s *save) AnalyseSources(w *engine.Worker) error {
	if err := os.MkdirAll(s.directory.Text(), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	s.mu.Lock()
	s.used = make(map[string]int)
	s.mu.Unlock()
	return nil
}

// filename derives a unique file name for photo within the run.
func (s *save) filename(photo *core.Photo) string {
	base := photo.Tag(core.TagName)
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(photo.Identity), filepath.Ext(photo.Identity))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.used[base]
	s.used[base] = n + 1
	if n > 0 {
		base = fmt.Sprintf("%s-%d", base, n)
	}
	return base + "." + s.format.Selected()
}

func (s *save) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	path := filepath.Join(s.directory.Text(), s.filename(photo))
	if err := imageio.NewImageLoader(w.Logger()).SavePhoto(photo, path); err != nil {
		return nil, err
	}
	photo.SetTag(core.TagFilename, path)
	return photo, nil
}
