package export

import (
	"context"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// PDFExporter рендерит срез в PDF-отчет. Формат требует собрать документ
// целиком до записи, потоковости тут нет принципиально.
//
// Для байтовой детерминированности даты создания и модификации документа
// пришпилены к фиксированному моменту: иначе каждый Output дает новые
// метаданные и разный хэш при одинаковом содержимом.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

var pinnedDocDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func (e *PDFExporter) ExportStream(ctx context.Context, records <-chan Record, w io.Writer) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(pinnedDocDate)
	pdf.SetModificationDate(pinnedDocDate)
	pdf.SetTitle("Interaction Audit Export", false)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Interaction Audit Export")
	pdf.Ln(10)

	writeHeader(pdf)

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r, ok := <-records:
			if !ok {
				if count == 0 {
					pdf.SetFont("Helvetica", "I", 9)
					pdf.Cell(0, 6, "No interactions in the requested range.")
				}
				return pdf.Output(w)
			}
			writeRecord(pdf, r)
			count++
		}
	}
}

var pdfColumns = []struct {
	title string
	width float64
}{
	{"ID", 38},
	{"Submitted", 34},
	{"Decided", 34},
	{"Status", 18},
	{"Violation", 24},
	{"Rules", 30},
	{"Conf", 14},
	{"Response", 85},
}

func writeHeader(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 8)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, 6, col.title, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func writeRecord(pdf *fpdf.Fpdf, r Record) {
	pdf.SetFont("Helvetica", "", 7)
	cells := []string{
		r.ID,
		formatTime(r.SubmittedAt),
		formatTime(r.DecidedAt),
		string(r.Status),
		string(r.ViolationType),
		joinRuleIDs(r.MatchedRuleIDs),
		formatConfidence(r.Confidence),
		truncate(r.Response, 110),
	}
	for i, col := range pdfColumns {
		pdf.CellFormat(col.width, 5, cells[i], "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
