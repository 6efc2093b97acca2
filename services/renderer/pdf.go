package rendersvc

import (
	"bytes"
	"sync"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	appfs "github.com/juniordw/rotasi-lms-sub000/fs"
)

const fontFamily = "dejavu"

type fontSet struct {
	regular, bold []byte
}

var loadFonts = sync.OnceValues(func() (fontSet, error) {
	regular, err := appfs.FS.ReadFile("fonts/DejaVuSans.ttf")
	if err != nil {
		return fontSet{}, errors.Wrap(err, "reading regular font")
	}
	bold, err := appfs.FS.ReadFile("fonts/DejaVuSans-Bold.ttf")
	if err != nil {
		return fontSet{}, errors.Wrap(err, "reading bold font")
	}
	return fontSet{regular: regular, bold: bold}, nil
})

type textLine struct {
	style string
	size  float64
	y     float64
	text  string
}

// certificatePDF lays the document out on a single landscape A4 page.
// Every date written to the file comes from doc, so rendering the same certificate twice
// yields identical bytes.
func certificatePDF(doc certificate.Document) ([]byte, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	issued := doc.IssueDate.UTC()

	pdf := fpdf.New("L", "pt", "A4", "")
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(false)
	pdf.SetProducer("Rotasi LMS", false)
	pdf.SetTitle("Certificate "+doc.Serial, true)
	pdf.SetAuthor(doc.LearnerName, true)
	pdf.AddUTF8FontFromBytes(fontFamily, "", fonts.regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fonts.bold)
	pdf.SetMargins(60, 60, 60)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(32, 64, 128)
	pdf.SetLineWidth(3)
	pdf.Rect(30, 30, w-60, h-60, "D")
	pdf.SetLineWidth(1)
	pdf.Rect(40, 40, w-80, h-80, "D")

	lines := []textLine{
		{style: "B", size: 36, y: 100, text: "Certificate of Completion"},
		{size: 16, y: 175, text: "This certifies that"},
		{style: "B", size: 28, y: 215, text: doc.LearnerName},
		{size: 16, y: 275, text: "has successfully completed the course"},
		{style: "B", size: 24, y: 310, text: doc.CourseTitle},
		{size: 12, y: 430, text: "Issued on " + issued.Format("January 2, 2006")},
		{size: 10, y: 452, text: "Serial " + doc.Serial},
	}
	for _, l := range lines {
		pdf.SetFont(fontFamily, l.style, l.size)
		pdf.SetY(l.y)
		pdf.CellFormat(0, l.size+6, l.text, "", 1, "C", false, 0, "")
	}

	var out bytes.Buffer
	if err = pdf.Output(&out); err != nil {
		return nil, errors.Wrap(err, "writing pdf")
	}
	return out.Bytes(), nil
}
