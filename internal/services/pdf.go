package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoPDFText is returned for PDFs without an extractable text layer (scans, images).
var ErrNoPDFText = errors.New("pdf contains no extractable text")

type PDFService struct{}

func NewPDFService() *PDFService {
	return &PDFService{}
}

// ExtractText returns the plain text of every page joined by blank lines, and the page count.
func (s *PDFService) ExtractText(path string) (string, int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return "", 0, fmt.Errorf("pdf has no pages")
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", numPages, fmt.Errorf("read page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", numPages, ErrNoPDFText
	}
	return strings.Join(pages, "\n\n"), numPages, nil
}

// IsPDF reports whether the header carries the %PDF- magic bytes.
func IsPDF(header []byte) bool {
	return bytes.HasPrefix(header, []byte("%PDF-"))
}

// sniffPDF reads enough of src to check the magic bytes and returns a reader
// that replays them.
func sniffPDF(src io.Reader) (io.Reader, bool, error) {
	header := make([]byte, 5)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("read header: %w", err)
	}
	header = header[:n]
	return io.MultiReader(bytes.NewReader(header), src), IsPDF(header), nil
}
