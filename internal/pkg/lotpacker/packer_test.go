package lotpacker

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseTemplate = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<Reinf xmlns="http://www.reinf.esocial.gov.br/schemas/envioLoteEventosAssincrono/v1_00_00">` +
	`<envioLoteEventos><ideContribuinte><tpInsc>1</tpInsc><nrInsc>00000000000000</nrInsc></ideContribuinte>` +
	`<eventos></eventos></envioLoteEventos></Reinf>`

func writeArchive(t *testing.T, events int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signed.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for i := 0; i < events; i++ {
		member, err := w.Create(fmt.Sprintf("event_%03d_signed.xml", i))
		require.NoError(t, err)
		_, err = member.Write([]byte(fmt.Sprintf(
			`<?xml version="1.0" encoding="UTF-8"?><Reinf><evtRetPJ id="ID%d"/></Reinf>`, i)))
		require.NoError(t, err)
	}
	// non-XML member must be ignored
	extra, err := w.Create("notes.txt")
	require.NoError(t, err)
	_, err = extra.Write([]byte("irrelevant"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestPacker(t *testing.T) *Packer {
	t.Helper()
	tplPath := filepath.Join(t.TempDir(), "envioAssincrono.xml")
	require.NoError(t, os.WriteFile(tplPath, []byte(baseTemplate), 0o644))
	p, err := NewPacker("1", "12345678000199", tplPath)
	require.NoError(t, err)
	return p
}

func TestPackArchiveGroupsOfFifty(t *testing.T) {
	p := newTestPacker(t)
	outDir := filepath.Join(t.TempDir(), "lots")

	paths, err := p.PackArchive(writeArchive(t, 120), outDir)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(outDir, "evento-lote-1.xml"), paths[0])
	assert.Equal(t, filepath.Join(outDir, "evento-lote-3.xml"), paths[2])

	counts := []int{50, 50, 20}
	for i, path := range paths {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(string(data)))
		eventos := doc.FindElement("//eventos")
		require.NotNil(t, eventos)
		assert.Len(t, eventos.ChildElements(), counts[i], "lot %d", i+1)
	}
}

func TestPackSubstitutesContributor(t *testing.T) {
	p := newTestPacker(t)
	outDir := t.TempDir()

	paths, err := p.Pack([]string{`<Reinf><evtRetPJ/></Reinf>`}, outDir)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, content, "<nrInsc>12345678000199</nrInsc>")
	assert.NotContains(t, content, "00000000000000")
}

func TestPackWrapsEachEventWithRandomID(t *testing.T) {
	p := newTestPacker(t)

	paths, err := p.Pack([]string{
		`<?xml version="1.0"?><Reinf><evtRetPJ/></Reinf>`,
		`<Reinf><evtServTom/></Reinf>`,
	}, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(string(data)))
	wrappers := doc.FindElements("//eventos/evento")
	require.Len(t, wrappers, 2)

	seen := map[string]bool{}
	for _, w := range wrappers {
		id := w.SelectAttrValue("Id", "")
		assert.Len(t, id, 8)
		assert.False(t, seen[id], "wrapper ids must differ")
		seen[id] = true
	}
	// the inner declaration must have been stripped before embedding
	assert.NotContains(t, string(data), "<?xml version=\"1.0\"?>")
}

func TestPackArchiveEmpty(t *testing.T) {
	p := newTestPacker(t)

	path := filepath.Join(t.TempDir(), "empty.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())

	_, err = p.PackArchive(path, t.TempDir())
	assert.ErrorContains(t, err, "contains no XML events")
}

func TestNewPackerMissingTemplate(t *testing.T) {
	_, err := NewPacker("1", "12345678000199", filepath.Join(t.TempDir(), "absent.xml"))
	assert.Error(t, err)
}
