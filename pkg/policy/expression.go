package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/contagion/pkg/report"
)

// Expression is a compiled CEL expression evaluated against the latest daily report.
//
// Variables: day (int), incidence (double), new_cases (int), population (int),
// hospitalized (int), location (string).
type Expression struct {
	source  string
	program cel.Program
}

func expressionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("day", cel.IntType),
		cel.Variable("incidence", cel.DoubleType),
		cel.Variable("new_cases", cel.IntType),
		cel.Variable("population", cel.IntType),
		cel.Variable("hospitalized", cel.IntType),
		cel.Variable("location", cel.StringType),
	)
}

// CompileRate compiles an expression that must yield a double.
func CompileRate(source string) (*Expression, error) {
	return compile(source, cel.DoubleType)
}

// CompileTrigger compiles an expression that must yield a bool.
func CompileTrigger(source string) (*Expression, error) {
	return compile(source, cel.BoolType)
}

func compile(source string, want *cel.Type) (*Expression, error) {
	env, err := expressionEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", source, issues.Err())
	}
	if !ast.OutputType().IsExactType(want) {
		return nil, fmt.Errorf("compile %q: result is %s, want %s", source, ast.OutputType(), want)
	}
	prg, err := env.Program(ast, cel.CostLimit(10_000))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", source, err)
	}
	return &Expression{source: source, program: prg}, nil
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.source }

// Vars are the inputs an Expression sees.
type Vars struct {
	Day          int
	Incidence    float64
	NewCases     int
	Population   int
	Hospitalized int
	Location     string
}

// VarsFor derives expression inputs from a report. A nil report yields zero counts.
func VarsFor(day int, r *report.Report, incidence float64, location string) Vars {
	v := Vars{Day: day, Incidence: incidence, Location: location}
	if r == nil {
		return v
	}
	key := location
	if key == "" {
		key = report.TotalKey
	}
	if c, ok := r.Location(key); ok {
		v.NewCases = c.NewSymptomatic
		v.Population = c.Population
		v.Hospitalized = c.Hospitalized
	}
	return v
}

func (v Vars) activation() map[string]any {
	return map[string]any{
		"day":          int64(v.Day),
		"incidence":    v.Incidence,
		"new_cases":    int64(v.NewCases),
		"population":   int64(v.Population),
		"hospitalized": int64(v.Hospitalized),
		"location":     v.Location,
	}
}

// Float evaluates a rate expression.
func (e *Expression) Float(v Vars) (float64, error) {
	out, _, err := e.program.Eval(v.activation())
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	f, ok := out.Value().(float64)
	if !ok {
		return 0, fmt.Errorf("evaluate %q: got %T, want double", e.source, out.Value())
	}
	return f, nil
}

// Bool evaluates a trigger expression.
func (e *Expression) Bool(v Vars) (bool, error) {
	out, _, err := e.program.Eval(v.activation())
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: got %T, want bool", e.source, out.Value())
	}
	return b, nil
}
