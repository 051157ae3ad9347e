// Package tools implements the query handlers other than document QA: an
// arithmetic calculator and a dictionary with a generative fallback.
// Both are also exposed as Eino tools so they can be bound to a chat model.
package tools

import (
	"github.com/cloudwego/eino/components/tool"
)

// Tool names as recorded in route decisions and responses.
const (
	CalculatorName = "calculator"
	DictionaryName = "dictionary"
)

var (
	_ tool.InvokableTool = (*CalculatorTool)(nil)
	_ tool.InvokableTool = (*DictionaryTool)(nil)
)

// Named is implemented by every tool in this package.
type Named interface {
	// Name returns the unique tool name.
	Name() string
	// Description returns the text sent to the LLM as part of the tool schema.
	Description() string
}
