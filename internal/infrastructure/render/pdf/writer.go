package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
	"time"

	"github.com/mirono/webtrees/pkg/errors"
)

const pdfVersion = "1.4"

// docInfo carries the metadata written into the Info dictionary.
type docInfo struct {
	Title    string
	Subject  string
	Producer string
	Created  time.Time
}

// imageData is one image XObject: pre-filtered bytes plus the dictionary
// attributes describing them.
type imageData struct {
	width      int
	height     int
	colorSpace string
	bitsPer    int
	filter     string
	data       []byte
}

// assembler turns finished page content streams and their shared resources
// into the final PDF file. Object numbering is fixed up front: catalog and
// page tree first, then fonts, image XObjects, per-page stream and page
// pairs, and the Info dictionary last.
type assembler struct {
	compress bool
	faces    []string
	images   []*imageData
	pages    [][]byte
	pageW    float64
	pageH    float64
	info     docInfo
}

func (a *assembler) build() ([]byte, error) {
	if len(a.pages) == 0 {
		return nil, errors.New(errors.ErrCodeRenderFailed, "document has no pages")
	}
	nFaces := len(a.faces)
	nImages := len(a.images)
	firstPageObj := 3 + nFaces + nImages
	total := firstPageObj + 2*len(a.pages)

	objects := make([][]byte, 0, total)

	objects = append(objects, []byte("<< /Type /Catalog /Pages 2 0 R >>"))

	var kids strings.Builder
	kids.WriteByte('[')
	for i := range a.pages {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", firstPageObj+2*i+1)
	}
	kids.WriteByte(']')
	objects = append(objects, []byte(fmt.Sprintf(
		"<< /Type /Pages /Kids %s /Count %d >>", kids.String(), len(a.pages))))

	for _, name := range a.faces {
		objects = append(objects, []byte(fmt.Sprintf(
			"<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", name)))
	}

	for _, im := range a.images {
		dict := fmt.Sprintf(
			"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent %d /Filter /%s /Length %d >>",
			im.width, im.height, im.colorSpace, im.bitsPer, im.filter, len(im.data))
		objects = append(objects, streamObject(dict, im.data))
	}

	resources := a.resourceDict()
	for i, content := range a.pages {
		data := content
		filter := ""
		if a.compress {
			data = zlibCompress(content)
			filter = " /Filter /FlateDecode"
		}
		objects = append(objects, streamObject(
			fmt.Sprintf("<< /Length %d%s >>", len(data), filter), data))
		objects = append(objects, []byte(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources %s /Contents %d 0 R >>",
			a.pageW, a.pageH, resources, firstPageObj+2*i)))
	}

	objects = append(objects, []byte(a.infoDict()))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", pdfVersion)
	// Binary marker comment so transports treat the file as binary.
	buf.WriteString("%\xE2\xE3\xCF\xD3\n")

	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(obj)
		buf.WriteString("\nendobj\n")
	}

	xrefPos := buf.Len()
	buf.WriteString("xref\n")
	fmt.Fprintf(&buf, "0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\n",
		len(objects)+1, len(objects))
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefPos)

	return buf.Bytes(), nil
}

// resourceDict lists every font and image object; sharing one dictionary
// across pages keeps numbering simple at the cost of a few bytes.
func (a *assembler) resourceDict() string {
	var b strings.Builder
	b.WriteString("<< /Font <<")
	for i := range a.faces {
		fmt.Fprintf(&b, " /F%d %d 0 R", i+1, 3+i)
	}
	b.WriteString(" >>")
	if len(a.images) > 0 {
		b.WriteString(" /XObject <<")
		for i := range a.images {
			fmt.Fprintf(&b, " /Im%d %d 0 R", i+1, 3+len(a.faces)+i)
		}
		b.WriteString(" >>")
	}
	b.WriteString(" >>")
	return b.String()
}

func (a *assembler) infoDict() string {
	var b strings.Builder
	b.WriteString("<<")
	if a.info.Title != "" {
		fmt.Fprintf(&b, " /Title (%s)", escapeString(a.info.Title))
	}
	if a.info.Subject != "" {
		fmt.Fprintf(&b, " /Subject (%s)", escapeString(a.info.Subject))
	}
	fmt.Fprintf(&b, " /Producer (%s)", escapeString(a.info.Producer))
	fmt.Fprintf(&b, " /CreationDate (D:%s)", a.info.Created.UTC().Format("20060102150405Z"))
	b.WriteString(" >>")
	return b.String()
}

func streamObject(dict string, data []byte) []byte {
	var b bytes.Buffer
	b.WriteString(dict)
	b.WriteString("\nstream\n")
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes()
}

func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}
