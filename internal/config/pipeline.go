package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Pipeline is a parsed pipeline file.
type Pipeline struct {
	Threads   int
	Operators []*OperatorSpec
}

// OperatorSpec declares one operator of a pipeline.
type OperatorSpec struct {
	Type    string
	Name    string
	Threads int
	// Inputs maps an input port to its sources, written "operator" for the
	// first output or "operator.output".
	Inputs          map[string][]string
	DisabledOutputs []string
	Params          map[string]cty.Value
	Range           hcl.Range
}

// Operator returns the declaration named name, or nil.
func (p *Pipeline) Operator(name string) *OperatorSpec {
	for _, op := range p.Operators {
		if op.Name == name {
			return op
		}
	}
	return nil
}

type fileRoot struct {
	Settings  *settingsBlock   `hcl:"settings,block"`
	Operators []*operatorBlock `hcl:"operator,block"`
}

type settingsBlock struct {
	Threads int `hcl:"threads,optional"`
}

type operatorBlock struct {
	Type            string              `hcl:"type,label"`
	Name            string              `hcl:"name,label"`
	Threads         int                 `hcl:"threads,optional"`
	Inputs          map[string][]string `hcl:"inputs,optional"`
	DisabledOutputs []string            `hcl:"disabled_outputs,optional"`
	Params          hcl.Body            `hcl:",remain"`
	DefRange        hcl.Range           `hcl:",def_range"`
}

// evalContext exposes the environment to pipeline expressions as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && hclsyntax.ValidIdentifier(k) {
			vars[k] = cty.StringVal(v)
		}
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": env}}
}

// LoadPipeline parses the HCL pipeline file at path.
func LoadPipeline(path string) (*Pipeline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline %s: %w", path, err)
	}
	return ParsePipeline(src, path)
}

// ParsePipeline parses HCL source; filename is used in diagnostics.
func ParsePipeline(src []byte, filename string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	ctx := evalContext()
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, ctx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	p := &Pipeline{}
	if root.Settings != nil {
		p.Threads = root.Settings.Threads
	}
	for _, b := range root.Operators {
		if p.Operator(b.Name) != nil {
			return nil, fmt.Errorf("%s: duplicate operator name %q", b.DefRange, b.Name)
		}
		params, err := decodeParams(b.Params, ctx)
		if err != nil {
			return nil, fmt.Errorf("operator %q: %w", b.Name, err)
		}
		p.Operators = append(p.Operators, &OperatorSpec{
			Type:            b.Type,
			Name:            b.Name,
			Threads:         b.Threads,
			Inputs:          b.Inputs,
			DisabledOutputs: b.DisabledOutputs,
			Params:          params,
			Range:           b.DefRange,
		})
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeParams(body hcl.Body, ctx *hcl.EvalContext) (map[string]cty.Value, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	params := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parameter %q: %w", name, diags)
		}
		params[name] = v
	}
	return params, nil
}

// SplitSource splits a source reference into operator and output. The
// output is empty when the reference names the operator only.
func SplitSource(ref string) (operator, output string) {
	operator, output, _ = strings.Cut(ref, ".")
	return operator, output
}

// validate checks that every source names a declared operator.
func (p *Pipeline) validate() error {
	for _, op := range p.Operators {
		ports := make([]string, 0, len(op.Inputs))
		for port := range op.Inputs {
			ports = append(ports, port)
		}
		slices.Sort(ports)
		for _, port := range ports {
			for _, ref := range op.Inputs[port] {
				name, _ := SplitSource(ref)
				if name == op.Name {
					return fmt.Errorf("%s: operator %q feeds itself", op.Range, op.Name)
				}
				if p.Operator(name) == nil {
					return fmt.Errorf("%s: input %q of %q references unknown operator %q", op.Range, port, op.Name, name)
				}
			}
		}
	}
	return nil
}

// PortKey normalizes a port name for matching: "Uneven images" and
// "uneven_images" are the same port.
func PortKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
