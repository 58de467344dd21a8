package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"github.com/hashicorp/go-multierror"

	"github.com/marcusrossel/slotted-egraphs/internal/rewrite"
)

// LoadRules loads every CUE file in dir and compiles its rules.
//
// Compile errors do not stop the load: every broken rule is reported in the
// returned error (a *multierror.Error), and the rules that compiled are
// still returned.
func LoadRules(dir string) ([]*rewrite.Rule, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}
	return CompileRules(value)
}

// CompileString compiles the rules of a single CUE source.
func CompileString(src string) ([]*rewrite.Rule, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileRules(value)
}

// CompileRules compiles every field of the "rule" struct of value, in
// declaration order.
func CompileRules(value cue.Value) ([]*rewrite.Rule, error) {
	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, fmt.Errorf("no rules found: missing top-level rule struct")
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var (
		rules  []*rewrite.Rule
		result *multierror.Error
	)
	for iter.Next() {
		r, err := CompileRule(iter.Value())
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		rules = append(rules, r)
	}
	for _, v := range ValidateRules(rules) {
		result = multierror.Append(result, v)
	}
	return rules, result.ErrorOrNil()
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
