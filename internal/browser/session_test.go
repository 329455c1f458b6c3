package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryOptSelectorDispatch(t *testing.T) {
	testCases := []struct {
		name     string
		selector string
		isXPath  bool
	}{
		{"css tag", "button", false},
		{"css attribute", "input[name='email']", false},
		{"css id", "#apply-now", false},
		{"absolute xpath", "//button[contains(text(), 'Submit')]", true},
		{"rooted xpath", "/html/body/div[2]/form", true},
		{"grouped xpath", "(//button)[1]", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.isXPath, isXPath(tc.selector))
			assert.NotNil(t, queryOpt(tc.selector))
		})
	}
}

func TestJSONEncodeEscapesForScriptEmbedding(t *testing.T) {
	assert.Equal(t, `"plain"`, jsonEncode("plain"))
	assert.Equal(t, `"with \"quotes\""`, jsonEncode(`with "quotes"`))
	assert.Equal(t, `"line\nbreak"`, jsonEncode("line\nbreak"))
	// A selector carrying a script-terminator must not break out of the
	// evaluated snippet.
	assert.NotContains(t, jsonEncode("</script>"), "</script>")
}
