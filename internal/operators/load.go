package operators

import (
	"photoflow/internal/core"
	"photoflow/internal/engine"
	imageio "photoflow/internal/io"
)

var LoadDef = engine.Definition{
	Type:    "load",
	Name:    "Load",
	Outputs: []string{"Images"},
}

// load reads one photo per file, in list order.
type load struct {
	engine.PlayerBase
	files *engine.Strings
}

func NewLoad(opts engine.Options) *engine.Operator {
	return engine.NewOperator(LoadDef, opts, func(op *engine.Operator) engine.Kernel {
		return &load{files: engine.NewStrings(op, "files")}
	})
}

func (l *load) Play(w *engine.Worker) {
	loader := imageio.NewImageLoader(w.Logger())
	files := l.files.Strings()
	for i, path := range files {
		if w.Aborted() {
			w.EmitFailure()
			return
		}
		w.EmitProgress(i, len(files))
		photo, err := loader.LoadPhoto(path)
		if err != nil {
			w.SetError(&core.Photo{Identity: path}, err)
			w.EmitFailure()
			return
		}
		photo.Sequence = i
		w.Push(0, photo)
	}
	w.EmitSuccess()
}
