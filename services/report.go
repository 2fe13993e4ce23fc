package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yashpalsanam/foresite-sub001/models"
)

var reportColumns = []struct {
	header string
	width  float64
}{
	{"ID", 12},
	{"Title", 70},
	{"City", 35},
	{"Type", 25},
	{"Status", 22},
	{"Price", 30},
	{"Agent", 45},
	{"Views", 18},
}

// RenderPropertyReport lays the listings out as a landscape A4 table.
func RenderPropertyReport(props []models.Property, generatedAt time.Time) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Property listing report", false)
	pdf.SetAuthor("Foresite Realty", false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Property listing report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s - %d listings", generatedAt.UTC().Format("2006-01-02 15:04 MST"), len(props)), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range reportColumns {
			pdf.CellFormat(col.width, 7, col.header, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	header()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, p := range props {
		if pdf.GetY() > 185 {
			pdf.AddPage()
			header()
		}
		agent := ""
		if p.Agent != nil {
			agent = p.Agent.Name
		}
		cells := []string{
			fmt.Sprintf("%d", p.ID),
			clip(p.Title, 45),
			clip(p.Address.City, 22),
			string(p.Type),
			string(p.Status),
			fmt.Sprintf("%.2f", p.Price),
			clip(agent, 28),
			fmt.Sprintf("%d", p.ViewCount),
		}
		for i, col := range reportColumns {
			align := "L"
			if i == 5 || i == 7 {
				align = "R"
			}
			pdf.CellFormat(col.width, 6, tr(cells[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
