// Package operators provides the concrete processing steps a pipeline is
// built from, and a registry to instantiate them by type name.
//
// Each operator type declares its ports and iteration strategy in an
// engine.Definition and its parameters in its factory. Per-photo transforms
// run under the engine strategies; generators and joins play their runs
// themselves.
package operators
