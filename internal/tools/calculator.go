package tools

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
)

const (
	// maxExpressionLen bounds the text handed to the evaluator.
	maxExpressionLen = 256
	// evalCostLimit caps CEL evaluation cost.
	evalCostLimit = 10_000
)

// Calculation is the outcome of a successful evaluation.
type Calculation struct {
	// Expression is the arithmetic expression extracted from the input.
	Expression string
	// Result is the evaluated value.
	Result float64
}

// String renders the calculation as an answer sentence.
func (c Calculation) String() string {
	return fmt.Sprintf("The result of %s is %s", c.Expression, FormatNumber(c.Result))
}

// FormatNumber renders v without trailing zeros or float noise.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 15, 64)
}

// Calculator evaluates arithmetic found in natural-language text. Evaluation
// runs in a CEL environment that only knows numeric literals, the four
// arithmetic operators, parentheses and a fixed set of math functions.
type Calculator struct {
	env *cel.Env
}

// unaryFuncs are the whitelisted single-argument functions.
var unaryFuncs = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"cbrt": math.Cbrt,
	"abs":  math.Abs,
	"ln":   math.Log,
	"log":  math.Log10,
	"exp":  math.Exp,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
}

// errDivisionByZero is raised by the division overload and mapped to
// KindDivisionByZero.
const errDivisionByZero = "division by zero"

// doubleOp declares a binary operator over doubles only.
func doubleOp(op, id string, fn func(x, y float64) ref.Val) cel.EnvOption {
	return cel.Function(op,
		cel.Overload(id, []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
			cel.BinaryBinding(func(a, b ref.Val) ref.Val {
				x, ok1 := a.(types.Double)
				y, ok2 := b.(types.Double)
				if !ok1 || !ok2 {
					return types.MaybeNoSuchOverloadErr(a)
				}
				return fn(float64(x), float64(y))
			}),
		),
	)
}

// NewCalculator builds the restricted evaluation environment. It starts from
// an empty CEL environment, so the only callable operations are the double
// operators and functions declared here.
func NewCalculator() (*Calculator, error) {
	opts := []cel.EnvOption{
		doubleOp(operators.Add, "add_double", func(x, y float64) ref.Val { return types.Double(x + y) }),
		doubleOp(operators.Subtract, "subtract_double", func(x, y float64) ref.Val { return types.Double(x - y) }),
		doubleOp(operators.Multiply, "multiply_double", func(x, y float64) ref.Val { return types.Double(x * y) }),
		doubleOp(operators.Divide, "divide_double", func(x, y float64) ref.Val {
			if y == 0 {
				return types.NewErr(errDivisionByZero)
			}
			return types.Double(x / y)
		}),
		doubleOp("pow", "pow_double_double", func(x, y float64) ref.Val { return types.Double(math.Pow(x, y)) }),
	}
	unaries := map[string]func(float64) float64{operators.Negate: func(v float64) float64 { return -v }}
	for name, fn := range unaryFuncs {
		unaries[name] = fn
	}
	for name, fn := range unaries {
		opts = append(opts, cel.Function(name,
			cel.Overload(overloadID(name), []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					d, ok := v.(types.Double)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.Double(fn(float64(d)))
				}),
			),
		))
	}
	env, err := cel.NewCustomEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("tools: failed to build calculator environment: %w", err)
	}
	return &Calculator{env: env}, nil
}

func overloadID(name string) string {
	if name == operators.Negate {
		return "negate_double"
	}
	return name + "_double"
}

// Evaluate extracts an arithmetic expression from text and evaluates it with
// floating-point semantics and standard precedence.
func (c *Calculator) Evaluate(ctx context.Context, text string) (Calculation, error) {
	expr, err := ExtractExpression(text)
	if err != nil {
		return Calculation{}, err
	}
	logging.FromContext(ctx).Debug("calculator: extracted expression", "expression", expr)

	ast, iss := c.env.Compile(toDoubles(expr))
	if iss != nil && iss.Err() != nil {
		return Calculation{}, apperr.Wrap(iss.Err(), apperr.KindUnparseableExpression,
			fmt.Sprintf("cannot parse %q", expr))
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return Calculation{}, apperr.Newf(apperr.KindUnparseableExpression, "%q is not numeric", expr)
	}
	prg, err := c.env.Program(ast, cel.CostLimit(evalCostLimit))
	if err != nil {
		return Calculation{}, apperr.Wrap(err, apperr.KindUnparseableExpression, fmt.Sprintf("cannot evaluate %q", expr))
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		if strings.Contains(err.Error(), errDivisionByZero) {
			return Calculation{}, apperr.Newf(apperr.KindDivisionByZero, "division by zero in %q", expr)
		}
		return Calculation{}, apperr.Wrap(err, apperr.KindUnparseableExpression, fmt.Sprintf("cannot evaluate %q", expr))
	}
	v, ok := out.Value().(float64)
	if !ok {
		return Calculation{}, apperr.Newf(apperr.KindUnparseableExpression, "%q did not evaluate to a number", expr)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return Calculation{}, apperr.Newf(apperr.KindUnparseableExpression, "%q has no finite real result", expr)
	}
	return Calculation{Expression: expr, Result: v}, nil
}

const num = `\d+(?:\.\d+)?`

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// phraseRewrites turn spoken arithmetic into operator syntax. Order matters:
// multi-word phrases run before the single words they contain.
var phraseRewrites = []rewrite{
	{regexp.MustCompile(`(\d),(\d{3})`), "$1$2"},
	{regexp.MustCompile(`\*\*`), "^"},
	{regexp.MustCompile(`(\d)\s*[×x]\s*(` + num + `)`), "$1 * $2"},
	{regexp.MustCompile(`÷`), " / "},
	{regexp.MustCompile(`\bsquare\s+root\s+of\b`), "sqrt "},
	{regexp.MustCompile(`\bcube\s+root\s+of\b`), "cbrt "},
	{regexp.MustCompile(`\babsolute\s+value\s+of\b`), "abs "},
	{regexp.MustCompile(`(` + num + `)\s*(?:%|\s+percent)\s+of\b`), "($1/100) * "},
	{regexp.MustCompile(`(` + num + `)\s*(?:%|\s+percent\b)`), "($1/100)"},
	{regexp.MustCompile(`\bdivide\s+(` + num + `)\s+by\s+(` + num + `)`), "$1 / $2"},
	{regexp.MustCompile(`\bmultiply\s+(` + num + `)\s+(?:by|and|with)\s+(` + num + `)`), "$1 * $2"},
	{regexp.MustCompile(`\badd\s+(` + num + `)\s+(?:and|to)\s+(` + num + `)`), "$1 + $2"},
	{regexp.MustCompile(`\bsubtract\s+(` + num + `)\s+from\s+(` + num + `)`), "$2 - $1"},
	{regexp.MustCompile(`\b(?:sum|total)\s+of\s+(` + num + `)\s+and\s+(` + num + `)`), "$1 + $2"},
	{regexp.MustCompile(`\bproduct\s+of\s+(` + num + `)\s+and\s+(` + num + `)`), "$1 * $2"},
	{regexp.MustCompile(`\bdifference\s+between\s+(` + num + `)\s+and\s+(` + num + `)`), "$1 - $2"},
	{regexp.MustCompile(`\bquotient\s+of\s+(` + num + `)\s+and\s+(` + num + `)`), "$1 / $2"},
	{regexp.MustCompile(`(` + num + `)\s+squared\b`), "pow($1, 2)"},
	{regexp.MustCompile(`(` + num + `)\s+cubed\b`), "pow($1, 3)"},
	{regexp.MustCompile(`\bto\s+the\s+power\s+of\b`), "^"},
	{regexp.MustCompile(`\bmultiplied\s+by\b`), "*"},
	{regexp.MustCompile(`\bdivided\s+by\b`), "/"},
	{regexp.MustCompile(`\btimes\b`), "*"},
	{regexp.MustCompile(`\bplus\b`), "+"},
	{regexp.MustCompile(`\bminus\b`), "-"},
	{regexp.MustCompile(`\bover\b`), "/"},
	{regexp.MustCompile(`\b(sqrt|cbrt|abs|ln|log|exp|sin|cos|tan)\s+(` + num + `|pow\([^()]*\))`), "$1($2)"},
}

var (
	funcNames  = regexp.MustCompile(`\b(?:sqrt|cbrt|abs|ln|log|exp|sin|cos|tan|pow)\b`)
	exprRun    = regexp.MustCompile(`(?:[\d.()+\-*/,\s]|\b(?:sqrt|cbrt|abs|ln|log|exp|sin|cos|tan|pow)\b)+`)
	allowed    = regexp.MustCompile(`^[\d.()+\-*/,\s]+$`)
	digit      = regexp.MustCompile(`\d`)
	numLiteral = regexp.MustCompile(`\d*\.\d+|\d+\.?`)
	spaces     = regexp.MustCompile(`\s+`)
)

// ExtractExpression rewrites natural-language arithmetic into operator syntax
// and returns the longest run that looks like an expression. Input that holds
// no such run is an unparseable-expression error.
func ExtractExpression(text string) (string, error) {
	if len(text) > maxExpressionLen {
		return "", apperr.Newf(apperr.KindUnparseableExpression, "expression longer than %d characters", maxExpressionLen)
	}
	s := strings.ToLower(text)
	for _, rw := range phraseRewrites {
		s = rw.re.ReplaceAllString(s, rw.repl)
	}
	s, err := rewritePowers(s)
	if err != nil {
		return "", err
	}

	best := ""
	for _, run := range exprRun.FindAllString(s, -1) {
		// A sentence-final period is punctuation, not a decimal point.
		run = strings.TrimRight(strings.TrimSpace(run), ".,")
		run = strings.TrimSpace(strings.TrimLeft(run, ","))
		if digit.MatchString(run) && len(run) > len(best) {
			best = run
		}
	}
	if best == "" {
		return "", apperr.Newf(apperr.KindUnparseableExpression, "no arithmetic expression found in %q", strings.TrimSpace(text))
	}
	best = spaces.ReplaceAllString(best, " ")
	if !allowed.MatchString(funcNames.ReplaceAllString(best, "")) {
		return "", apperr.Newf(apperr.KindUnparseableExpression, "unsupported characters in %q", best)
	}
	return best, nil
}

// toDoubles rewrites every numeric literal as a double so CEL applies
// floating-point arithmetic throughout.
func toDoubles(expr string) string {
	return numLiteral.ReplaceAllStringFunc(expr, func(n string) string {
		switch {
		case strings.HasPrefix(n, "."):
			return "0" + n
		case strings.HasSuffix(n, "."):
			return n + "0"
		case !strings.Contains(n, "."):
			return n + ".0"
		}
		return n
	})
}

// rewritePowers turns every "a ^ b" into "pow(a, b)". The rightmost operator
// is rewritten first, so chains associate to the right: 2^3^2 is 2^(3^2).
// An operand is a number, a parenthesized group or a function call.
func rewritePowers(s string) (string, error) {
	for {
		i := strings.LastIndexByte(s, '^')
		if i < 0 {
			return s, nil
		}
		start, lok := leftOperand(s, i)
		end, rok := rightOperand(s, i+1)
		if !lok || !rok {
			return "", apperr.Newf(apperr.KindUnparseableExpression, "missing operand for ^ in %q", strings.TrimSpace(s))
		}
		base := strings.TrimSpace(s[start:i])
		exp := strings.TrimSpace(s[i+1 : end])
		s = s[:start] + "pow(" + base + ", " + exp + ")" + s[end:]
	}
}

// leftOperand returns where the operand ending just before s[end] begins.
func leftOperand(s string, end int) (int, bool) {
	j := end
	for j > 0 && s[j-1] == ' ' {
		j--
	}
	if j == 0 {
		return 0, false
	}
	if s[j-1] == ')' {
		depth := 0
		k := j - 1
		for ; k >= 0; k-- {
			switch s[k] {
			case ')':
				depth++
			case '(':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if k < 0 {
			return 0, false
		}
		for k > 0 && isLower(s[k-1]) {
			k--
		}
		return k, true
	}
	k := j
	for k > 0 && isNumByte(s[k-1]) {
		k--
	}
	return k, k < j
}

// rightOperand returns the index just past the operand starting at s[start],
// which may carry a leading minus sign.
func rightOperand(s string, start int) (int, bool) {
	j := start
	for j < len(s) && s[j] == ' ' {
		j++
	}
	if j < len(s) && s[j] == '-' {
		j++
	}
	name := j
	for j < len(s) && isLower(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '(' {
		depth := 0
		for ; j < len(s); j++ {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				return j + 1, true
			}
		}
		return 0, false
	}
	if j > name {
		return 0, false
	}
	k := j
	for k < len(s) && isNumByte(s[k]) {
		k++
	}
	return k, k > j
}

func isLower(b byte) bool   { return b >= 'a' && b <= 'z' }
func isNumByte(b byte) bool { return (b >= '0' && b <= '9') || b == '.' }
