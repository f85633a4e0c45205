package fetcher

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// TableFormat identifies how a downloaded table is encoded.
type TableFormat string

// Supported and recognized table formats.
const (
	FormatCSV  TableFormat = "csv"
	FormatXLSX TableFormat = "xlsx"
	FormatXLS  TableFormat = "xls"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectTableFormat sniffs the leading bytes of a table file. XLSX
// workbooks are zip archives, legacy XLS workbooks are OLE2 compound
// files, anything else is treated as delimited text.
func DetectTableFormat(head []byte) TableFormat {
	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(head, oleMagic):
		return FormatXLS
	default:
		return FormatCSV
	}
}

// DetectFileFormat reads the first bytes of path and calls DetectTableFormat.
func DetectFileFormat(path string) (TableFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	head := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", eris.Wrapf(err, "fetcher: read %s", path)
	}
	return DetectTableFormat(head[:n]), nil
}

// DecodeCharset wraps r so that it yields UTF-8 from the named encoding.
// Empty names and UTF-8 return r unchanged.
func DecodeCharset(r io.Reader, charset string) (io.Reader, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" || name == "utf-8" || name == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
