package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/book-expert/audiobook-service/internal/core"
)

const containerPath = "META-INF/container.xml"

// errNoPackage marks an EPUB whose container or OPF document is missing or
// malformed; extraction degrades rather than failing.
var errNoPackage = errors.New("no usable package document")

// EPUB container and package (OPF) documents.
type epubContainer struct {
	XMLName   xml.Name       `xml:"container"`
	RootFiles []epubRootFile `xml:"rootfiles>rootfile"`
}

type epubRootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

type epubPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Metadata epubMetadata `xml:"metadata"`
	Manifest epubManifest `xml:"manifest"`
	Spine    epubSpine    `xml:"spine"`
}

type epubMetadata struct {
	Title string `xml:"title"`
}

type epubManifest struct {
	Items []epubItem `xml:"item"`
}

type epubItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type epubSpine struct {
	ItemRefs []epubItemRef `xml:"itemref"`
}

type epubItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// extractEPUB reads an EPUB archive and returns one unit per spine document,
// in spine order. Documents the spine omits are ignored; an EPUB without a
// usable spine falls back to all XHTML entries in lexicographic path order.
func (e *Extractor) extractEPUB(path string) (*core.Extraction, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open EPUB archive: %w", err)
	}
	defer func() { _ = reader.Close() }()

	var (
		docPaths []string
		title    string
	)

	pkg, opfDir, err := readPackage(&reader.Reader)
	if err != nil {
		e.log.Warn("EPUB %s has no usable package manifest (%v); falling back to archive order", path, err)

		docPaths = fallbackDocuments(&reader.Reader)
	} else {
		title = strings.TrimSpace(pkg.Metadata.Title)

		docPaths = spineDocuments(pkg, opfDir)
		if len(docPaths) == 0 {
			e.log.Warn("EPUB %s has no usable spine; falling back to archive order", path)

			docPaths = fallbackDocuments(&reader.Reader)
		}
	}

	entries := make(map[string]*zip.File, len(reader.File))
	for _, file := range reader.File {
		entries[file.Name] = file
	}

	var units []core.ExtractedUnit

	for _, docPath := range docPaths {
		file, ok := entries[docPath]
		if !ok {
			e.log.Warn("EPUB %s: spine references missing document %s", path, docPath)

			continue
		}

		text, heading := extractDocumentText(file)
		if text == "" {
			continue
		}

		units = append(units, core.ExtractedUnit{
			Index:   len(units),
			Name:    docPath,
			Text:    text,
			Heading: heading,
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no readable documents in EPUB", core.ErrNoReadableText)
	}

	return &core.Extraction{
		Units: units,
		Title: title,
	}, nil
}

// readPackage locates and parses the OPF package document via
// META-INF/container.xml. Failure here is not fatal; the caller degrades to
// lexicographic archive order.
func readPackage(reader *zip.Reader) (*epubPackage, string, error) {
	var containerFile *zip.File

	for _, file := range reader.File {
		if file.Name == containerPath {
			containerFile = file

			break
		}
	}

	if containerFile == nil {
		return nil, "", fmt.Errorf("%w: %s not found", errNoPackage, containerPath)
	}

	var container epubContainer

	err := decodeZipXML(containerFile, &container)
	if err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", containerPath, err)
	}

	if len(container.RootFiles) == 0 {
		return nil, "", fmt.Errorf("%w: no rootfile in %s", errNoPackage, containerPath)
	}

	opfPath := container.RootFiles[0].FullPath

	var opfFile *zip.File

	for _, file := range reader.File {
		if file.Name == opfPath {
			opfFile = file

			break
		}
	}

	if opfFile == nil {
		return nil, "", fmt.Errorf("%w: OPF document %s not found", errNoPackage, opfPath)
	}

	var pkg epubPackage

	err = decodeZipXML(opfFile, &pkg)
	if err != nil {
		return nil, "", fmt.Errorf("parse OPF document %s: %w", opfPath, err)
	}

	return &pkg, path.Dir(opfPath), nil
}

func decodeZipXML(file *zip.File, v any) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry: %w", err)
	}
	defer func() { _ = rc.Close() }()

	err = xml.NewDecoder(rc).Decode(v)
	if err != nil {
		return fmt.Errorf("decode XML: %w", err)
	}

	return nil
}

// spineDocuments resolves the spine's idrefs through the manifest into archive
// paths, keeping only XHTML content documents.
func spineDocuments(pkg *epubPackage, opfDir string) []string {
	manifest := make(map[string]epubItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item
	}

	var docs []string

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}

		if !isContentDocument(item.MediaType) {
			continue
		}

		docs = append(docs, path.Join(opfDir, item.Href))
	}

	return docs
}

func isContentDocument(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

func fallbackDocuments(reader *zip.Reader) []string {
	var docs []string

	for _, file := range reader.File {
		ext := strings.ToLower(path.Ext(file.Name))
		if ext == ".xhtml" || ext == ".html" || ext == ".htm" {
			docs = append(docs, file.Name)
		}
	}

	sort.Strings(docs)

	return docs
}

// extractDocumentText parses one XHTML document and returns its text with
// block boundaries as newlines, plus the first h1-h3 heading as a chapter
// title hint.
func extractDocumentText(file *zip.File) (string, string) {
	rc, err := file.Open()
	if err != nil {
		return "", ""
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", ""
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", ""
	}

	var sb strings.Builder

	heading := ""
	collectNodeText(doc, &sb, &heading)

	return strings.TrimSpace(sb.String()), heading
}

// collectNodeText walks the DOM, skipping boilerplate elements and inserting
// newlines at block boundaries.
func collectNodeText(n *html.Node, sb *strings.Builder, heading *string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Header, atom.Footer:
			return
		case atom.H1, atom.H2, atom.H3:
			if *heading == "" {
				*heading = strings.TrimSpace(collectText(n))
			}
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectNodeText(c, sb, heading)
	}

	if n.Type == html.ElementNode && isBlockElement(n.DataAtom) {
		sb.WriteByte('\n')
	}
}

func collectText(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return sb.String()
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Ul, atom.Ol, atom.Br, atom.Tr, atom.Table:
		return true
	default:
		return false
	}
}
