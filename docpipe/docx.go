package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractDocx reads word/document.xml from the archive. Paragraphs become
// lines; the first Title or Heading paragraph becomes the title.
func extractDocx(path string) (string, []Page, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", nil, errors.New("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	title, text, err := docxText(rc)
	if err != nil {
		return "", nil, err
	}
	if title == "" {
		title = firstLine(text)
	}
	return title, singlePage(text), nil
}

func docxText(r io.Reader) (title, text string, err error) {
	dec := xml.NewDecoder(r)
	var out, para strings.Builder
	var inText, heading bool

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				heading = false
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" && isHeadingStyle(a.Value) {
						heading = true
					}
				}
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				line := strings.TrimSpace(para.String())
				if line == "" {
					continue
				}
				if heading && title == "" {
					title = line
				}
				out.WriteString(line)
				out.WriteByte('\n')
			}
		}
	}
	return title, out.String(), nil
}

func isHeadingStyle(style string) bool {
	lower := strings.ToLower(style)
	return lower == "title" || strings.HasPrefix(lower, "heading") || strings.HasPrefix(lower, "titre")
}
