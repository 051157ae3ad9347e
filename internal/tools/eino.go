package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/raga-go/internal/apperr"
)

// CalculatorTool adapts a Calculator to Eino's tool interface.
type CalculatorTool struct {
	calc *Calculator
}

// calculatorInput is the JSON input schema for CalculatorTool.
type calculatorInput struct {
	Expression string `json:"expression"`
}

// NewCalculatorTool wraps calc.
func NewCalculatorTool(calc *Calculator) *CalculatorTool {
	return &CalculatorTool{calc: calc}
}

// Name returns the tool name registered with the model.
func (t *CalculatorTool) Name() string { return CalculatorName }

// Description returns the LLM-facing description of this tool.
func (t *CalculatorTool) Description() string {
	return "Evaluates an arithmetic expression. Supports + - * /, parentheses, percentages " +
		"(\"15% of 240\") and the functions sqrt, cbrt, abs, ln, log, exp, sin, cos, tan and pow."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *CalculatorTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"expression": {
				Type:     schema.String,
				Desc:     "The expression to evaluate, in symbols or words, e.g. 'square root of 144 plus 25'.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun evaluates the expression and returns the answer sentence.
func (t *CalculatorTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input calculatorInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", apperr.Wrap(err, apperr.KindValidation, "calculator: invalid input")
	}
	if strings.TrimSpace(input.Expression) == "" {
		return "", apperr.New(apperr.KindValidation, "calculator: expression is required")
	}
	res, err := t.calc.Evaluate(ctx, input.Expression)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// DictionaryTool adapts a Dictionary to Eino's tool interface.
type DictionaryTool struct {
	dict *Dictionary
}

type dictionaryInput struct {
	Term string `json:"term"`
}

// NewDictionaryTool wraps dict.
func NewDictionaryTool(dict *Dictionary) *DictionaryTool {
	return &DictionaryTool{dict: dict}
}

// Name returns the tool name registered with the model.
func (t *DictionaryTool) Name() string { return DictionaryName }

// Description returns the LLM-facing description of this tool.
func (t *DictionaryTool) Description() string {
	return "Looks up the dictionary definition of a word or phrase. " +
		"Falls back to a generated definition, marked as such, when the dictionary has no entry."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *DictionaryTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"term": {
				Type:     schema.String,
				Desc:     "The word or phrase to define.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun defines the term. The output names the definition's source.
func (t *DictionaryTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input dictionaryInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", apperr.Wrap(err, apperr.KindValidation, "dictionary: invalid input")
	}
	def, err := t.dict.Define(ctx, input.Term)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n(source: %s)", def.Text, def.Source), nil
}

// BaseTools returns the tools as Eino base tools. The server exposes them
// under /api/tools.
func BaseTools(calc *Calculator, dict *Dictionary) []tool.BaseTool {
	return []tool.BaseTool{NewCalculatorTool(calc), NewDictionaryTool(dict)}
}
