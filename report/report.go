// Package report renders a student's grade breakdown as a PDF.
package report

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/mathfe/grader/grading"
)

type Question struct {
	Number   int
	Marks    int
	Comments []string
}

// GradeReport is the breakdown for one student across their scripts.
type GradeReport struct {
	StudentNumber string
	Total         int
	Questions     []Question
}

// Build collects marks per question for studentNum. Comments are the
// deductions on those questions from every script of the student, not only
// the one the report was requested from, formatted as "description (marks)".
func Build(scripts []grading.Script, scheme grading.Scheme, studentNum string) GradeReport {
	marks := grading.MarksByQuestion(scripts, scheme, studentNum)
	r := GradeReport{StudentNumber: studentNum}
	for _, q := range scheme.QuestionNumbers() {
		sum := 0
		for _, m := range marks[q] {
			sum += m
		}
		r.Total += sum
		question := Question{Number: q, Marks: sum}
		for _, sc := range scripts {
			if studentNum != "" && sc.StudentNumber != studentNum {
				continue
			}
			for _, it := range sc.Items[q] {
				question.Comments = append(question.Comments, fmt.Sprintf("%s (%d)", it.Description, it.Marks))
			}
		}
		r.Questions = append(r.Questions, question)
	}
	return r
}

// Filename is the download name for the report.
func (r GradeReport) Filename() string {
	if r.StudentNumber == "" {
		return "grade.pdf"
	}
	return r.StudentNumber + ".pdf"
}

// Render writes the report as PDF. Text goes through the cp1252 translator
// the core fonts expect; runes outside it are dropped.
func (r GradeReport) Render(w io.Writer) error {
	doc := fpdf.New("P", "in", "Letter", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetTitle("Grade Report", false)
	doc.SetMargins(1, 1, 1)
	doc.AddPage()

	doc.SetY(2)
	doc.SetFont("Times", "B", 16)
	doc.CellFormat(0, 0.3, "Grade Report", "", 1, "C", false, 0, "")
	if r.StudentNumber != "" {
		doc.SetFont("Times", "", 14)
		doc.CellFormat(0, 0.3, tr(r.StudentNumber), "", 1, "C", false, 0, "")
	}
	doc.Ln(0.4)

	doc.SetFont("Helvetica", "B", 12)
	doc.CellFormat(0, 0.25, fmt.Sprintf("Total marks: %d", r.Total), "", 1, "L", false, 0, "")
	doc.Ln(0.1)
	doc.CellFormat(0, 0.25, "Breakdown:", "", 1, "L", false, 0, "")
	doc.Ln(0.05)

	for _, q := range r.Questions {
		doc.SetFont("Helvetica", "", 11)
		doc.SetX(1.15)
		doc.CellFormat(0, 0.22, fmt.Sprintf("- Question %d: %d", q.Number, q.Marks), "", 1, "L", false, 0, "")
		doc.SetX(1.3)
		doc.CellFormat(0, 0.22, "Comments:", "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		for _, c := range q.Comments {
			doc.SetX(1.45)
			doc.MultiCell(0, 0.2, tr("- "+c), "", "L", false)
		}
		doc.Ln(0.1)
	}

	return doc.Output(w)
}
