// Package pdf renders wallet statements as PDF documents.
package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/payward/payward/internal/models"
)

// Generator renders statements. Kept as an interface so handlers can be
// tested without producing real PDF bytes.
type Generator interface {
	Statement(w io.Writer, data StatementData) error
}

// StatementData is everything a rendered statement needs.
type StatementData struct {
	UserName     string
	UserEmail    string
	From         time.Time
	To           time.Time
	Transactions []*models.Transaction
	Currency     string
}

// DocumentGenerator is the gofpdf-backed Generator.
type DocumentGenerator struct {
	issuer string // company name printed on the document
}

func NewDocumentGenerator(issuer string) *DocumentGenerator {
	return &DocumentGenerator{issuer: issuer}
}

// Statement writes an A4 transaction statement for the period to w.
func (g *DocumentGenerator) Statement(w io.Writer, data StatementData) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Statement %s - %s",
		data.From.Format("2006-01-02"), data.To.Format("2006-01-02")), false)
	pdf.SetAuthor(g.issuer, false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()),
			"", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "ACCOUNT STATEMENT", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	period := fmt.Sprintf("%s  to  %s",
		data.From.Format("Jan 2, 2006"), data.To.Format("Jan 2, 2006"))
	pdf.CellFormat(0, 7, period, "", 1, "C", false, 0, "")
	g.hr(pdf)
	pdf.Ln(3)

	g.sectionTitle(pdf, "Account holder")
	g.kvLine(pdf, "Name", data.UserName)
	g.kvLine(pdf, "Email", data.UserEmail)
	g.kvLine(pdf, "Issued by", g.issuer)
	pdf.Ln(2)
	g.hr(pdf)

	g.sectionTitle(pdf, "Transactions")
	g.tableHeader(pdf)

	// Debit legs carry negative amounts, credit legs positive.
	var credits, debits int64
	for _, tx := range data.Transactions {
		if tx.AmountCents >= 0 {
			credits += tx.AmountCents
		} else {
			debits -= tx.AmountCents
		}

		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(30, 6, tx.CreatedAt.Format("2006-01-02"), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, tx.Type, "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, tx.Status, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, formatCents(tx.AmountCents, data.Currency), "", 1, "R", false, 0, "")
	}
	if len(data.Transactions) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 6, "No transactions in this period.", "", 1, "L", false, 0, "")
	}

	pdf.Ln(2)
	g.hr(pdf)

	g.sectionTitle(pdf, "Summary")
	g.kvLine(pdf, "Total credits", formatCents(credits, data.Currency))
	g.kvLine(pdf, "Total debits", formatCents(debits, data.Currency))
	g.kvLine(pdf, "Net", formatCents(credits-debits, data.Currency))

	return pdf.Output(w)
}

func (g *DocumentGenerator) tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(30, 6, "Date", "", 0, "L", false, 0, "")
	pdf.CellFormat(40, 6, "Type", "", 0, "L", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Amount", "", 1, "R", false, 0, "")
	pdf.SetLineWidth(0.2)
	y := pdf.GetY()
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 1)
}

func (g *DocumentGenerator) sectionTitle(pdf *gofpdf.Fpdf, s string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 7, s, "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
}

func (g *DocumentGenerator) kvLine(pdf *gofpdf.Fpdf, key, val string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(45, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, val, "", 1, "L", false, 0, "")
}

func (g *DocumentGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}

func formatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
