// Package pdfdoc inspects uploaded scripts and slices single pages out of them.
package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/mathfe/grader/apperr"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// keep pdfcpu from creating a config dir in $HOME
	model.ConfigPath = "disable"
}

func config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount validates pdf and returns its number of pages.
func PageCount(pdf []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(pdf, "\x00\t\r\n "), []byte("%PDF-")) {
		return 0, apperr.WithMessage(apperr.ErrInvalidPDF, "file is not a PDF")
	}
	n, err := api.PageCount(bytes.NewReader(pdf), config())
	if err != nil {
		return 0, apperr.Wrap(err, apperr.ErrInvalidPDF, "unreadable PDF: "+err.Error())
	}
	if n == 0 {
		return 0, apperr.WithMessage(apperr.ErrInvalidPDF, "PDF has no pages")
	}
	return n, nil
}

// Page extracts the 0-based page idx of pdf as a standalone document.
func Page(pdf []byte, idx, pageCount int) ([]byte, error) {
	if idx < 0 || idx >= pageCount {
		return nil, apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("page %d out of range (%d pages)", idx, pageCount))
	}
	var out bytes.Buffer
	// pdfcpu page selections are 1-based
	if err := api.Trim(bytes.NewReader(pdf), &out, []string{strconv.Itoa(idx + 1)}, config()); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInvalidPDF, "extract page")
	}
	return out.Bytes(), nil
}
