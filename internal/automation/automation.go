// Package automation drives the processor parameters from Lua scripts.
//
// A script defines a global function:
//
//	function automate(t, params)
//	    return {analog_fx = 0.5 + 0.5 * math.sin(t)}
//	end
//
// t is the render time in seconds and params is a table with the
// current values (keyed by their preset JSON names).
// The returned table overrides the listed fields; nil keeps everything.
package automation

import (
	"encoding"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/quasilyte/glitch/processor"
)

const entryPoint = "automate"

// Script is a loaded automation script.
// It's not safe for concurrent use.
type Script struct {
	state *lua.LState
	fn    lua.LValue
	name  string
}

// Load compiles and runs the script file, then resolves its entry point.
func Load(path string) (*Script, error) {
	state := lua.NewState()
	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return newScript(state, path)
}

// LoadString is like Load, but the script source is given directly.
func LoadString(name, src string) (*Script, error) {
	state := lua.NewState()
	if err := state.DoString(src); err != nil {
		state.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return newScript(state, name)
}

func newScript(state *lua.LState, name string) (*Script, error) {
	fn := state.GetGlobal(entryPoint)
	if fn.Type() != lua.LTFunction {
		state.Close()
		return nil, fmt.Errorf("%s: %s is not defined as a function", name, entryPoint)
	}
	return &Script{state: state, fn: fn, name: name}, nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.state.Close()
}

// Apply calls the script for the time t and returns p with the
// script overrides applied. The result is normalized.
// On error, p is returned unchanged.
func (s *Script) Apply(t float64, p processor.Params) (processor.Params, error) {
	L := s.state
	orig := p

	arg := L.NewTable()
	for _, f := range paramFields {
		arg.RawSetString(f.name, f.get(&p))
	}

	err := L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true}, lua.LNumber(t), arg)
	if err != nil {
		return p, fmt.Errorf("%s: %w", s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	switch ret.Type() {
	case lua.LTNil:
		return p, nil
	case lua.LTTable:
		// OK
	default:
		return p, fmt.Errorf("%s: %s returned %s, expected a table", s.name, entryPoint, ret.Type())
	}

	var errs []error
	ret.(*lua.LTable).ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			errs = append(errs, fmt.Errorf("non-string key %s", k))
			return
		}
		f := findField(string(key))
		if f == nil {
			errs = append(errs, fmt.Errorf("unknown param %q", key))
			return
		}
		if err := f.set(&p, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	})
	if len(errs) != 0 {
		return orig, fmt.Errorf("%s: %w", s.name, errors.Join(errs...))
	}
	return p.Normalized(), nil
}

type paramField struct {
	name string
	get  func(p *processor.Params) lua.LValue
	set  func(p *processor.Params, v lua.LValue) error
}

func findField(name string) *paramField {
	for i := range paramFields {
		if paramFields[i].name == name {
			return &paramFields[i]
		}
	}
	return nil
}

var paramFields = []paramField{
	floatField("analog_fx", func(p *processor.Params) *float64 { return &p.AnalogFX }),
	floatField("digital_fx", func(p *processor.Params) *float64 { return &p.DigitalFX }),
	floatField("lofi_fx", func(p *processor.Params) *float64 { return &p.LofiFX }),
	floatField("clock_speed_ms", func(p *processor.Params) *float64 { return &p.ClockSpeed }),
	floatField("buffer_length_ms", func(p *processor.Params) *float64 { return &p.BufferLength }),
	floatField("dry_wet", func(p *processor.Params) *float64 { return &p.DryWet }),
	intField("repeats", func(p *processor.Params) *int { return &p.Repeats }),
	intField("downsampling", func(p *processor.Params) *int { return &p.Downsampling }),
	enumField("clock_mode", func(p *processor.Params) enumValue { return &p.ClockMode }),
	enumField("clock_note", func(p *processor.Params) enumValue { return &p.ClockNote }),
	enumField("distortion", func(p *processor.Params) enumValue { return &p.Distortion }),
	enumField("codec", func(p *processor.Params) enumValue { return &p.Codec }),
}

type enumValue interface {
	fmt.Stringer
	encoding.TextUnmarshaler
}

func floatField(name string, ptr func(p *processor.Params) *float64) paramField {
	return paramField{
		name: name,
		get:  func(p *processor.Params) lua.LValue { return lua.LNumber(*ptr(p)) },
		set: func(p *processor.Params, v lua.LValue) error {
			n, ok := v.(lua.LNumber)
			if !ok {
				return fmt.Errorf("expected a number, found %s", v.Type())
			}
			*ptr(p) = float64(n)
			return nil
		},
	}
}

func intField(name string, ptr func(p *processor.Params) *int) paramField {
	return paramField{
		name: name,
		get:  func(p *processor.Params) lua.LValue { return lua.LNumber(*ptr(p)) },
		set: func(p *processor.Params, v lua.LValue) error {
			n, ok := v.(lua.LNumber)
			if !ok {
				return fmt.Errorf("expected a number, found %s", v.Type())
			}
			*ptr(p) = int(n)
			return nil
		},
	}
}

func enumField(name string, ptr func(p *processor.Params) enumValue) paramField {
	return paramField{
		name: name,
		get:  func(p *processor.Params) lua.LValue { return lua.LString(ptr(p).String()) },
		set: func(p *processor.Params, v lua.LValue) error {
			s, ok := v.(lua.LString)
			if !ok {
				return fmt.Errorf("expected a string, found %s", v.Type())
			}
			return ptr(p).UnmarshalText([]byte(s))
		},
	}
}
