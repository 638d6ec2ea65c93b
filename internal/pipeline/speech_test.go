package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeechText(t *testing.T) {
	in := "## Answer\n**Paris** is the capital [1]. See [the source](https://fr.example) or https://x.example.\n```javascript\nplot.bar([],[])\n```\n- `done`"
	assert.Equal(t, "Answer Paris is the capital . See the source or - done", SpeechText(in, 0))

	long := strings.Repeat("a", 1200)
	assert.Len(t, SpeechText(long, 1000), 1000)
}
