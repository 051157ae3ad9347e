package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "urls emails and punctuation",
			in:   "Visit https://example.com now!!!  Contact a@b.com.\n\n\n\n“Quoted”   text..... ok",
			want: "Visit now! Contact .\n\n\"Quoted\" text... ok",
		},
		{
			name: "curly apostrophes",
			in:   "It’s the company’s policy",
			want: "It's the company's policy",
		},
		{
			name: "crlf and tabs",
			in:   "line one\r\n\tline two  \r\n",
			want: "line one\nline two",
		},
		{
			name: "www links",
			in:   "see www.rag.tech/about for more",
			want: "see for more",
		},
		{
			name: "empty",
			in:   "   \n\n  ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}
