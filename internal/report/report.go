package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"hydralite/internal/config"
	"hydralite/internal/fileutil"
	"hydralite/internal/language"
	"hydralite/internal/logging"
	"hydralite/internal/services"
	"hydralite/internal/summary"
)

const (
	margin      = 40.0
	coreFont    = "Helvetica"
	unicodeFont = "NotoSans"
	emptyValue  = "—"
	bullet      = "• "
)

type section struct {
	title string
	key   string
	list  bool
	rx    bool
}

var sections = []section{
	{title: "Doctor Summary", key: summary.KeyDoctorSummary},
	{title: "Symptoms", key: summary.KeySymptoms, list: true},
	{title: "Patient History", key: summary.KeyPatientHistory, list: true},
	{title: "Risk Factors", key: summary.KeyRiskFactors, list: true},
	{title: "Prescription", key: summary.KeyPrescription, list: true, rx: true},
	{title: "Advice", key: summary.KeyAdvice, list: true},
	{title: "Recommended Action", key: summary.KeyRecommendedAction},
}

// Renderer draws visit summaries as A4 PDF prescriptions.
type Renderer struct {
	letterhead config.Report
	fontsDir   string
	outDir     string
	logger     *slog.Logger
	now        func() time.Time
}

// NewRenderer constructs a renderer writing into cfg.Paths.ReportDir.
func NewRenderer(cfg *config.Config, logger *slog.Logger) *Renderer {
	return &Renderer{
		letterhead: cfg.Report,
		fontsDir:   cfg.Paths.FontsDir,
		outDir:     cfg.Paths.ReportDir,
		logger:     logging.NewComponentLogger(logger, "report"),
		now:        time.Now,
	}
}

// Path returns pdfs/<base>_summary.pdf under dir.
func Path(dir, base string) string {
	return filepath.Join(dir, base+"_summary.pdf")
}

// Render writes the report for base and returns its path. Languages without
// an installed font fall back to Helvetica.
func (r *Renderer) Render(ctx context.Context, base string, record summary.Record, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrRenderFailed, "generating_pdf", "render", base, err)
	}
	fontPath := r.fontFor(ctx, lang)
	data, err := r.draw(record, fontPath)
	if err != nil && fontPath != "" {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "report font unusable; falling back to Helvetica", "report_font_fallback",
			logging.String("font", fontPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "non-Latin text may not display correctly"),
			logging.String(logging.FieldErrorHint, "replace the font file in the fonts directory"),
		)
		data, err = r.draw(record, "")
	}
	if err != nil {
		return "", services.Wrap(services.ErrRenderFailed, "generating_pdf", "draw", base, err)
	}

	path := Path(r.outDir, base)
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		return "", services.Wrap(services.ErrRenderFailed, "generating_pdf", "write", path, err)
	}
	logging.WithContext(ctx, r.logger).Info("report rendered",
		logging.String("path", path),
		logging.String("language", lang),
		logging.Int("bytes", len(data)),
	)
	return path, nil
}

func (r *Renderer) fontFor(ctx context.Context, lang string) string {
	file := language.FontFile(lang)
	if file == "" {
		return ""
	}
	path := filepath.Join(r.fontsDir, file)
	if _, err := os.Stat(path); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "report font missing; falling back to Helvetica", "report_font_missing",
			logging.String("font", path),
			logging.String("language", lang),
			logging.String(logging.FieldImpact, "non-Latin text may not display correctly"),
			logging.String(logging.FieldErrorHint, "install Noto Sans fonts into the fonts directory"),
		)
		return ""
	}
	return path
}

type writer struct {
	pdf    *fpdf.Fpdf
	family string
	bold   string
	tr     func(string) string
	accent [3]int
}

func (r *Renderer) draw(record summary.Record, fontPath string) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle("Visit Summary", true)
	pdf.SetCreator("hydralite", true)

	w := &writer{pdf: pdf, family: coreFont, bold: "B", accent: parseHexColor(r.letterhead.AccentColor)}
	if fontPath != "" {
		pdf.AddUTF8Font(unicodeFont, "", fontPath)
		if err := pdf.Error(); err != nil {
			return nil, err
		}
		w.family, w.bold = unicodeFont, ""
		w.tr = func(s string) string { return s }
	} else {
		w.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AddPage()
	w.letterhead(r.letterhead)
	for _, s := range sections {
		w.section(s, record)
	}
	w.signature(r.letterhead.DoctorName, r.now())

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *writer) letterhead(info config.Report) {
	pdf := w.pdf
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(w.family, w.bold, 15)
	pdf.CellFormat(0, 20, w.tr(info.DoctorName), "", 1, "C", false, 0, "")
	pdf.SetFont(w.family, "", 10)
	for _, line := range []string{
		info.Qualification,
		info.Clinic,
		fmt.Sprintf("Reg No: %s | %s | %s", info.Registration, info.Phone, info.Address),
	} {
		pdf.CellFormat(0, 13, w.tr(line), "", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
	width, _ := pdf.GetPageSize()
	y := pdf.GetY()
	pdf.SetDrawColor(w.accent[0], w.accent[1], w.accent[2])
	pdf.SetLineWidth(2)
	pdf.Line(margin, y, width-margin, y)
	pdf.Ln(6)
}

func (w *writer) section(s section, record summary.Record) {
	pdf := w.pdf
	pdf.Ln(12)
	pdf.SetTextColor(w.accent[0], w.accent[1], w.accent[2])
	pdf.SetFont(w.family, w.bold, 11)
	pdf.CellFormat(0, 16, w.tr(s.title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(w.family, "", 10)
	if !s.list {
		w.paragraph(record.String(s.key), 0)
		pdf.Ln(14)
		return
	}
	items := record.List(s.key)
	if len(items) == 0 {
		w.paragraph("", 0)
	}
	for _, item := range items {
		if s.rx {
			w.paragraph(bullet+item, 18)
			pdf.Ln(2)
			continue
		}
		w.paragraph(item, 0)
	}
	pdf.Ln(14)
}

func (w *writer) paragraph(text string, indent float64) {
	if strings.TrimSpace(text) == "" {
		text = emptyValue
	}
	if indent > 0 {
		w.pdf.SetX(margin + indent)
	}
	w.pdf.MultiCell(0, 14, w.tr(text), "", "L", false)
	w.pdf.Ln(4)
}

func (w *writer) signature(doctor string, at time.Time) {
	pdf := w.pdf
	const blockHeight = 30 + 14 + 18 + 14 + 22 + 14 + 6 + 14
	_, height := pdf.GetPageSize()
	if pdf.GetY()+blockHeight > height-margin {
		pdf.AddPage()
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(w.family, "", 10)
	pdf.Ln(30)
	pdf.CellFormat(0, 14, w.tr("Date: "+at.Format("02 Jan 2006")), "", 1, "R", false, 0, "")
	pdf.Ln(18)
	pdf.CellFormat(0, 14, w.tr("Signature:"), "", 1, "R", false, 0, "")
	pdf.Ln(22)
	pdf.CellFormat(0, 14, "______________________________", "", 1, "R", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont(w.family, w.bold, 10)
	pdf.CellFormat(0, 14, w.tr(doctor), "", 1, "R", false, 0, "")
}

// parseHexColor converts "#RRGGBB" into RGB components; anything else yields
// the default blue.
func parseHexColor(value string) [3]int {
	fallback := [3]int{0x2F, 0x80, 0xED}
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return fallback
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return fallback
		}
		rgb[i] = int(n)
	}
	return rgb
}
