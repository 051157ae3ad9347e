package tools

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/raga-go/internal/apperr"
)

func TestCalculatorTool_InvokableRun(t *testing.T) {
	t.Parallel()
	ct := NewCalculatorTool(newCalc(t))

	info, err := ct.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CalculatorName, info.Name)

	out, err := ct.InvokableRun(context.Background(), `{"expression":"15% of 240"}`)
	require.NoError(t, err)
	assert.Equal(t, "The result of (15/100) * 240 is 36", out)

	_, err = ct.InvokableRun(context.Background(), `{"expression":"divide 5 by 0"}`)
	assert.True(t, apperr.Is(err, apperr.KindDivisionByZero))

	_, err = ct.InvokableRun(context.Background(), `not-json`)
	assert.Error(t, err)

	_, err = ct.InvokableRun(context.Background(), `{"expression":"  "}`)
	assert.Error(t, err)
}

func TestDictionaryTool_InvokableRun(t *testing.T) {
	t.Parallel()
	d := newDict(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, &fakeCompleter{reply: "noun. A made-up word."})
	dt := NewDictionaryTool(d)

	out, err := dt.InvokableRun(context.Background(), `{"term":"blorft"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Definition of 'blorft':")
	assert.Contains(t, out, "(source: generative)")
}

func TestBaseTools_Describe(t *testing.T) {
	t.Parallel()
	d, err := NewDictionary(DictionaryConfig{Retry: testPolicy()})
	require.NoError(t, err)

	var names []string
	for _, bt := range BaseTools(newCalc(t), d) {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{CalculatorName, DictionaryName}, names)
}

func TestInvokableRun_BadInputIsValidation(t *testing.T) {
	t.Parallel()
	_, err := NewCalculatorTool(newCalc(t)).InvokableRun(context.Background(), `not-json`)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
