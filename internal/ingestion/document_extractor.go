package ingestion

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Format identifies how a document's bytes should be parsed
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatUnknown Format = ""
)

// docxBodyPart is the zip entry holding the main document body
const docxBodyPart = "word/document.xml"

// ExtractResult is the best-effort text of a document.
// Degraded is set when the container could not be parsed or the format is not supported.
type ExtractResult struct {
	Text     string
	Degraded bool
	Reason   string
}

// FormatFromFilename maps a file extension to a Format
func FormatFromFilename(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	default:
		return FormatUnknown
	}
}

// IsSupportedAttachment reports whether a filename is a resume format we can read
func IsSupportedAttachment(name string) bool {
	return FormatFromFilename(name) != FormatUnknown
}

// ExtractText converts PDF or DOCX bytes to plain text.
// It never returns an error: unreadable pages and paragraphs contribute empty fragments.
func ExtractText(data []byte, format Format) ExtractResult {
	switch format {
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	default:
		return ExtractResult{Degraded: true, Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

// extractPDF folds over every page, substituting "" for pages that fail
func extractPDF(data []byte) (result ExtractResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ExtractResult{Degraded: true, Reason: fmt.Sprintf("pdf parser panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ExtractResult{Degraded: true, Reason: fmt.Sprintf("failed to open pdf: %v", err)}
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		pages = append(pages, pageText(reader, i))
	}

	return ExtractResult{Text: strings.Join(pages, " ")}
}

// pageText returns the plain text of one page, or "" if the page cannot be read
func pageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// documentXML captures the top-level paragraphs of word/document.xml
type documentXML struct {
	Body struct {
		Paragraphs []rawParagraph `xml:"p"`
	} `xml:"body"`
}

type rawParagraph struct {
	Inner []byte `xml:",innerxml"`
}

// extractDOCX joins the text of every body paragraph with a single space
func extractDOCX(data []byte) ExtractResult {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ExtractResult{Degraded: true, Reason: fmt.Sprintf("failed to open docx archive: %v", err)}
	}

	body, err := readZipEntry(reader, docxBodyPart)
	if err != nil {
		return ExtractResult{Degraded: true, Reason: err.Error()}
	}

	var doc documentXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return ExtractResult{Degraded: true, Reason: fmt.Sprintf("failed to parse %s: %v", docxBodyPart, err)}
	}

	paragraphs := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		paragraphs = append(paragraphs, paragraphText(p.Inner))
	}

	return ExtractResult{Text: strings.Join(paragraphs, " ")}
}

// paragraphText concatenates the w:t runs of one paragraph.
// A malformed paragraph yields "".
func paragraphText(inner []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(inner))
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sb.String()
		}
		if err != nil {
			return ""
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br", "cr":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}

func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
