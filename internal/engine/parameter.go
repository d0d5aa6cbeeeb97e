package engine

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Parameter is a typed, named knob of an operator. Setting a different
// value makes the owner out of date.
type Parameter interface {
	Name() string
	Value() cty.Value
	Set(v cty.Value) error
}

type param struct {
	name  string
	owner *Operator
	mu    sync.RWMutex
}

func (p *param) Name() string { return p.name }

func (p *param) changed() {
	if p.owner != nil {
		p.owner.SetOutOfDate()
	}
}

func (p *param) register(self Parameter) {
	if p.owner != nil {
		p.owner.addParameter(self)
	}
}

func (p *param) decode(v cty.Value, ty cty.Type, target any) error {
	if v.IsNull() || !v.IsWhollyKnown() {
		return fmt.Errorf("%s: value must be known and not null", p.name)
	}
	v, err := convert.Convert(v, ty)
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	if err := gocty.FromCtyValue(v, target); err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// Slider is a bounded number, optionally rounded to integers.
type Slider struct {
	param
	min, max float64
	integer  bool
	value    float64
}

// NewSlider declares a slider on op.
func NewSlider(op *Operator, name string, value, min, max float64, integer bool) *Slider {
	s := &Slider{param: param{name: name, owner: op}, min: min, max: max, integer: integer, value: value}
	s.register(s)
	return s
}

func (s *Slider) Float() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Slider) Int() int {
	return int(math.Round(s.Float()))
}

func (s *Slider) Value() cty.Value {
	return cty.NumberFloatVal(s.Float())
}

func (s *Slider) Set(v cty.Value) error {
	var f float64
	if err := s.decode(v, cty.Number, &f); err != nil {
		return err
	}
	if s.integer {
		f = math.Round(f)
	}
	if f < s.min || f > s.max {
		return fmt.Errorf("%s: %v out of range [%v, %v]", s.name, f, s.min, s.max)
	}
	s.mu.Lock()
	changed := f != s.value
	s.value = f
	s.mu.Unlock()
	if changed {
		s.changed()
	}
	return nil
}

// Toggle is a boolean switch.
type Toggle struct {
	param
	value bool
}

// NewToggle declares a toggle on op.
func NewToggle(op *Operator, name string, value bool) *Toggle {
	t := &Toggle{param: param{name: name, owner: op}, value: value}
	t.register(t)
	return t
}

func (t *Toggle) Bool() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

func (t *Toggle) Value() cty.Value {
	return cty.BoolVal(t.Bool())
}

func (t *Toggle) Set(v cty.Value) error {
	var b bool
	if err := t.decode(v, cty.Bool, &b); err != nil {
		return err
	}
	t.mu.Lock()
	changed := b != t.value
	t.value = b
	t.mu.Unlock()
	if changed {
		t.changed()
	}
	return nil
}

// DropDown selects one of a fixed list of options, by name or by index.
type DropDown struct {
	param
	options []string
	index   int
}

// NewDropDown declares a drop-down on op with options[index] selected.
func NewDropDown(op *Operator, name string, options []string, index int) *DropDown {
	d := &DropDown{param: param{name: name, owner: op}, options: options, index: index}
	d.register(d)
	return d
}

func (d *DropDown) Index() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index
}

func (d *DropDown) Selected() string {
	return d.options[d.Index()]
}

func (d *DropDown) Value() cty.Value {
	return cty.StringVal(d.Selected())
}

func (d *DropDown) Set(v cty.Value) error {
	idx := -1
	if !v.IsNull() && v.Type() == cty.Number {
		if err := d.decode(v, cty.Number, &idx); err != nil {
			return err
		}
	} else {
		var s string
		if err := d.decode(v, cty.String, &s); err != nil {
			return err
		}
		idx = slices.Index(d.options, s)
		if idx < 0 {
			return fmt.Errorf("%s: %q is not one of %s", d.name, s, strings.Join(d.options, ", "))
		}
	}
	if idx < 0 || idx >= len(d.options) {
		return fmt.Errorf("%s: option %d out of range", d.name, idx)
	}
	d.mu.Lock()
	changed := idx != d.index
	d.index = idx
	d.mu.Unlock()
	if changed {
		d.changed()
	}
	return nil
}

// Text is a free-form string, such as a directory.
type Text struct {
	param
	value string
}

// NewText declares a text field on op.
func NewText(op *Operator, name, value string) *Text {
	t := &Text{param: param{name: name, owner: op}, value: value}
	t.register(t)
	return t
}

func (t *Text) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

func (t *Text) Value() cty.Value {
	return cty.StringVal(t.Text())
}

func (t *Text) Set(v cty.Value) error {
	var s string
	if err := t.decode(v, cty.String, &s); err != nil {
		return err
	}
	t.mu.Lock()
	changed := s != t.value
	t.value = s
	t.mu.Unlock()
	if changed {
		t.changed()
	}
	return nil
}

// Strings is an ordered list of strings, such as file names.
type Strings struct {
	param
	values []string
}

// NewStrings declares a string list on op.
func NewStrings(op *Operator, name string, values ...string) *Strings {
	s := &Strings{param: param{name: name, owner: op}, values: values}
	s.register(s)
	return s
}

func (s *Strings) Strings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.values)
}

func (s *Strings) Value() cty.Value {
	values := s.Strings()
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}

func (s *Strings) Set(v cty.Value) error {
	var values []string
	if err := s.decode(v, cty.List(cty.String), &values); err != nil {
		return err
	}
	s.mu.Lock()
	changed := !slices.Equal(values, s.values)
	s.values = values
	s.mu.Unlock()
	if changed {
		s.changed()
	}
	return nil
}

// Selection is the hue window of a selective Lab operator.
type Selection struct {
	Hue      int
	Coverage int
	Strict   bool
}

var selectionType = cty.ObjectWithOptionalAttrs(map[string]cty.Type{
	"hue":      cty.Number,
	"coverage": cty.Number,
	"strict":   cty.Bool,
}, []string{"hue", "coverage", "strict"})

// SelectiveLabParameter holds a Selection. It is set from an object with any
// of the attributes hue, coverage and strict; missing ones keep their value.
type SelectiveLabParameter struct {
	param
	value Selection
}

// NewSelectiveLabParameter declares a selection on op.
func NewSelectiveLabParameter(op *Operator, name string, value Selection) *SelectiveLabParameter {
	s := &SelectiveLabParameter{param: param{name: name, owner: op}, value: value}
	s.register(s)
	return s
}

func (s *SelectiveLabParameter) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *SelectiveLabParameter) Value() cty.Value {
	sel := s.Selection()
	return cty.ObjectVal(map[string]cty.Value{
		"hue":      cty.NumberIntVal(int64(sel.Hue)),
		"coverage": cty.NumberIntVal(int64(sel.Coverage)),
		"strict":   cty.BoolVal(sel.Strict),
	})
}

func (s *SelectiveLabParameter) Set(v cty.Value) error {
	if v.IsNull() || !v.IsWhollyKnown() {
		return fmt.Errorf("%s: value must be known and not null", s.name)
	}
	obj, err := convert.Convert(v, selectionType)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	next := s.Selection()
	if a := obj.GetAttr("hue"); !a.IsNull() {
		if err := gocty.FromCtyValue(a, &next.Hue); err != nil {
			return fmt.Errorf("%s.hue: %w", s.name, err)
		}
	}
	if a := obj.GetAttr("coverage"); !a.IsNull() {
		if err := gocty.FromCtyValue(a, &next.Coverage); err != nil {
			return fmt.Errorf("%s.coverage: %w", s.name, err)
		}
	}
	if a := obj.GetAttr("strict"); !a.IsNull() {
		if err := gocty.FromCtyValue(a, &next.Strict); err != nil {
			return fmt.Errorf("%s.strict: %w", s.name, err)
		}
	}
	if next.Coverage < -360 || next.Coverage > 360 {
		return fmt.Errorf("%s: coverage %d out of range [-360, 360]", s.name, next.Coverage)
	}
	s.mu.Lock()
	changed := next != s.value
	s.value = next
	s.mu.Unlock()
	if changed {
		s.changed()
	}
	return nil
}
