package extractor

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ValidatePDF checks that the upload actually parses as a PDF and returns its
// page count. The document itself goes to the AI service untouched; this only
// rejects junk uploads before we pay for an upstream call.
func ValidatePDF(data []byte) (int, error) {
	reader := bytes.NewReader(data)

	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return 0, fmt.Errorf("PDF has no pages")
	}

	return numPages, nil
}
