package gate

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"

	"github.com/codegate-dev/codegate/pkg/facts"
)

// newConditionEnv builds the CEL environment rule expressions are compiled
// against. Every fact field is exposed as a string attribute; absent fields
// evaluate to the empty string, so expressions stay total.
func newConditionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("kind", types.StringType),
			decls.NewVariable("source", types.StringType),
			decls.NewVariable("path", types.StringType),
			decls.NewVariable("content", types.StringType),
			decls.NewVariable("changeType", types.StringType),
			decls.NewVariable("from", types.StringType),
			decls.NewVariable("to", types.StringType),
			decls.NewVariable("ruleId", types.StringType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("gate: create CEL env: %w", err)
	}
	return env, nil
}

func celInput(f facts.Fact) map[string]interface{} {
	return map[string]interface{}{
		"kind":       string(f.Kind),
		"source":     f.Source,
		"path":       f.Path,
		"content":    f.Content,
		"changeType": string(f.ChangeType),
		"from":       f.From,
		"to":         f.To,
		"ruleId":     f.RuleID,
	}
}

// compileExpr compiles a CEL condition expression into a program.
func compileExpr(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("gate: expression compilation failed: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("gate: program construction failed: %w", err)
	}
	return prg, nil
}

// evalExpr evaluates a compiled program against a fact. A non-boolean
// result is an evaluation error, not a silent non-match.
func evalExpr(prg cel.Program, f facts.Fact) (bool, error) {
	out, _, err := prg.Eval(celInput(f))
	if err != nil {
		return false, fmt.Errorf("gate: expression evaluation failed: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("gate: expression returned %T, want bool", out.Value())
	}
	return matched, nil
}
