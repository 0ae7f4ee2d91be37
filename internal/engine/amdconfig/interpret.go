package amdconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	domainerrors "amdpack/internal/core/errors"
	"amdpack/internal/core/ports"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

const defaultTimeout = 10 * time.Second

// Options tunes a single evaluation.
type Options struct {
	Filename string
	// Timeout interrupts scripts that never finish. Zero uses 10s.
	Timeout time.Duration
}

// Loaded pairs an interpreted configuration with the raw script it came from.
type Loaded struct {
	Config *LoaderConfig
	Raw    string
	Path   string
}

// LoadFromDir reads FileName from dir and interprets it. Both a missing file
// and a failing script surface as CONFIG_ERROR domain errors.
func LoadFromDir(reader ports.FileReader, dir string, opts Options) (*Loaded, error) {
	path := filepath.Join(dir, FileName)
	raw, err := reader.ReadFile(path)
	if err != nil || len(raw) == 0 {
		de := &domainerrors.DomainError{
			Code:    domainerrors.CodeConfig,
			Message: fmt.Sprintf("Failed reading RequireJS config at path %q", dir),
			Err:     err,
		}
		return nil, de.WithContext(domainerrors.CtxPath, path)
	}

	if opts.Filename == "" {
		opts.Filename = path
	}
	cfg, err := Interpret(string(raw), opts)
	if err != nil {
		de := &domainerrors.DomainError{
			Code:    domainerrors.CodeConfig,
			Message: fmt.Sprintf("Failed evaluating RequireJS config at path %q", dir),
			Err:     err,
		}
		return nil, de.WithContext(domainerrors.CtxPath, path)
	}
	return &Loaded{Config: cfg, Raw: string(raw), Path: path}, nil
}

// Interpret executes a configuration script in an isolated runtime and merges
// every configuration call it makes. The only host globals are a loader stub
// (require, requirejs, define) and an empty window object.
func Interpret(source string, opts Options) (*LoaderConfig, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	filename := opts.Filename
	if filename == "" {
		filename = FileName
	}

	vm := goja.New()
	cfg := newLoaderConfig()
	calls := 0

	loader := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return goja.Undefined()
	}).(*goja.Object)
	configure := func(call goja.FunctionCall) goja.Value {
		calls++
		if obj, ok := call.Argument(0).(*goja.Object); ok {
			mergeCall(vm, cfg, obj)
		}
		return loader
	}
	if err := loader.Set("config", configure); err != nil {
		return nil, err
	}

	define := vm.ToValue(func(goja.FunctionCall) goja.Value {
		return goja.Undefined()
	}).(*goja.Object)
	if err := define.Set("amd", vm.NewObject()); err != nil {
		return nil, err
	}

	globals := map[string]interface{}{
		"require":   loader,
		"requirejs": loader,
		"define":    define,
		"window":    vm.NewObject(),
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return nil, err
		}
	}

	// sourceMappingURL comments are not followed.
	parsed, err := goja.Parse(filename, source, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	program, err := goja.CompileAST(parsed, false)
	if err != nil {
		return nil, err
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(fmt.Sprintf("evaluation exceeded %s", timeout))
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(program); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("interrupted: %v", interrupted.Value())
		}
		return nil, err
	}

	slog.Debug("interpreted loader config", "file", filename, "calls", calls, "deps", len(cfg.Deps))
	return cfg, nil
}

// mergeCall folds one partial configuration object into cfg. Object-valued
// sections merge key by key with later calls winning; deps append.
func mergeCall(vm *goja.Runtime, cfg *LoaderConfig, obj *goja.Object) {
	for _, key := range obj.Keys() {
		value := obj.Get(key)
		switch key {
		case "baseUrl":
			if s, ok := stringValue(value); ok {
				cfg.BaseURL = s
			}
		case "deps":
			cfg.Deps = append(cfg.Deps, stringList(value)...)
		case "paths":
			eachProp(value, func(name string, v goja.Value) {
				if s, ok := stringValue(v); ok {
					cfg.Paths[name] = []string{s}
				} else if list := stringList(v); len(list) > 0 {
					cfg.Paths[name] = list
				}
			})
		case "map":
			eachProp(value, func(issuer string, v goja.Value) {
				entries := cfg.Map[issuer]
				if entries == nil {
					entries = make(map[string]string)
					cfg.Map[issuer] = entries
				}
				eachProp(v, func(from string, to goja.Value) {
					if s, ok := stringValue(to); ok {
						entries[from] = s
					}
				})
			})
		case "shim":
			eachProp(value, func(id string, v goja.Value) {
				cfg.Shim[id] = shimValue(v)
			})
		case "bundles":
			eachProp(value, func(id string, v goja.Value) {
				cfg.Bundles[id] = stringList(v)
			})
		case "config":
			eachProp(value, func(section string, v goja.Value) {
				if section != "mixins" {
					return
				}
				eachProp(v, func(target string, entries goja.Value) {
					eachProp(entries, func(id string, enabled goja.Value) {
						cfg.setMixin(target, id, enabled.ToBoolean())
					})
				})
			})
		}
	}
}

// shimValue normalizes the array shorthand into {deps}.
func shimValue(v goja.Value) Shim {
	obj, ok := v.(*goja.Object)
	if !ok {
		return Shim{}
	}
	if obj.ClassName() == "Array" {
		return Shim{Deps: stringList(obj)}
	}
	shim := Shim{Deps: stringList(obj.Get("deps"))}
	if s, ok := stringValue(obj.Get("exports")); ok {
		shim.Exports = s
	}
	return shim
}

func eachProp(v goja.Value, fn func(key string, value goja.Value)) {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Array" {
		return
	}
	for _, key := range obj.Keys() {
		fn(key, obj.Get(key))
	}
}

func stringValue(v goja.Value) (string, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

// stringList collects the string elements of an array value, skipping others.
func stringList(v goja.Value) []string {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil
	}
	n := obj.Get("length").ToInteger()
	out := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		if s, ok := stringValue(obj.Get(strconv.FormatInt(i, 10))); ok {
			out = append(out, s)
		}
	}
	return out
}
