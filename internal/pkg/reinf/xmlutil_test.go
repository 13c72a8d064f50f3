package reinf

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomEventID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := RandomEventID(8)
		require.Len(t, id, 8)
		assert.True(t, unicode.IsLetter(rune(id[0])), "first character must be a letter: %s", id)
		for _, r := range id {
			assert.True(t, unicode.IsLetter(r) || unicode.IsDigit(r), id)
		}
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90, "ids should essentially never collide")
}

func TestMinifyXML(t *testing.T) {
	pretty := "<a>\n  <b>text</b>\n  <c/>\n</a>"
	minified := MinifyXML(pretty)
	assert.Equal(t, "<a><b>text</b><c/></a>", minified)

	assert.Equal(t, "not xml <<", MinifyXML("not xml <<"), "invalid input passes through")
}

func TestStripDeclaration(t *testing.T) {
	assert.Equal(t, "<a/>", StripDeclaration(`<?xml version="1.0" encoding="UTF-8"?><a/>`))
	assert.Equal(t, "<a/>", StripDeclaration("  <?xml version=\"1.0\"?>\n<a/>"))
	assert.Equal(t, "<a/>", StripDeclaration("<a/>"))
}

func TestEventTypeCatalogue(t *testing.T) {
	types := EventTypes()
	assert.Equal(t, "1000", types[0].Code)
	assert.Equal(t, "evtInfoContri", types[0].Tag)

	et, err := EventTypeByCode("4020")
	require.NoError(t, err)
	assert.Equal(t, "evtRetPJ", et.Tag)

	_, err = EventTypeByCode("0000")
	var unknown *UnknownEventTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Error(), "0000")

	// mutating the returned slice must not leak into the catalogue
	types[0].Code = "mutated"
	fresh, err := EventTypeByCode("1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", fresh.Code)

	if !strings.HasPrefix(types[len(types)-1].Tag, "evt") {
		t.Fatalf("catalogue tags must be event tags, got %s", types[len(types)-1].Tag)
	}
}
