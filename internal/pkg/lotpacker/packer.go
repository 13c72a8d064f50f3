package lotpacker

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/internal/pkg/reinf"
)

// Packer turns an archive of externally signed event documents into
// submission-ready lot files: each event is wrapped in an <evento> element
// with a fresh random id, events are grouped up to the lot ceiling, and each
// group is rendered into the asynchronous submission envelope.
type Packer struct {
	TpInsc       string
	NrInsc       string
	BaseTemplate string
}

// NewPacker creates a packer whose envelopes identify the given contributor.
// templatePath points at the base envelope document whose <ideContribuinte>
// and <eventos> regions get substituted.
func NewPacker(tpInsc, nrInsc, templatePath string) (*Packer, error) {
	base, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("read lot template %s: %w", templatePath, err)
	}
	return &Packer{TpInsc: tpInsc, NrInsc: nrInsc, BaseTemplate: string(base)}, nil
}

// PackArchive reads every .xml member of the zip archive at archivePath,
// wraps and groups them, and writes one evento-lote-{i}.xml file per group
// into outputDir. It returns the paths of the written lot files in order.
func (p *Packer) PackArchive(archivePath, outputDir string) ([]string, error) {
	events, err := extractEvents(archivePath)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("archive %s contains no XML events", archivePath)
	}
	return p.Pack(events, outputDir)
}

// Pack wraps the given raw event documents and writes the lot files.
func (p *Packer) Pack(events []string, outputDir string) ([]string, error) {
	members := make([]reinf.LotMember, 0, len(events))
	for _, ev := range events {
		id := reinf.RandomEventID(8)
		members = append(members, reinf.LotMember{
			ID:  id,
			Raw: fmt.Sprintf(`<evento Id="%s">%s</evento>`, id, reinf.StripDeclaration(ev)),
		})
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lot directory %s: %w", outputDir, err)
	}

	renderer := reinf.IngestedLotEnvelope{
		TpInsc:       p.TpInsc,
		NrInsc:       p.NrInsc,
		BaseTemplate: p.BaseTemplate,
	}

	var paths []string
	for i, group := range reinf.ChunkMembers(members, reinf.MaxEventsPerLot) {
		lot, err := renderer.Render(group)
		if err != nil {
			return nil, fmt.Errorf("render lot %d: %w", i+1, err)
		}
		path := filepath.Join(outputDir, fmt.Sprintf("evento-lote-%d.xml", i+1))
		if err := os.WriteFile(path, []byte(lot), 0o644); err != nil {
			return nil, fmt.Errorf("write lot %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	log.Infof("packed %d events into %d lot files under %s", len(members), len(paths), outputDir)
	return paths, nil
}

// extractEvents reads the textual content of every .xml member of the archive,
// in archive order. Non-XML members are skipped.
func extractEvents(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	var events []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive member %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive member %s: %w", f.Name, err)
		}
		events = append(events, string(data))
	}
	return events, nil
}
