package export

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"collabcanvas/internal/canvas"
)

const margin = 20.0

// PDF renders the visible part of history as vector strokes. The page is
// sized to fit the drawing; an empty canvas gives a blank A4 page.
func PDF(w io.Writer, history []canvas.Operation, title string) error {
	strokes := canvas.Visible(history)
	minX, minY, maxX, maxY, ok := bounds(strokes)

	var pdf *gofpdf.Fpdf
	if !ok {
		pdf = gofpdf.New("P", "pt", "A4", "")
	} else {
		pdf = gofpdf.NewCustom(&gofpdf.InitType{
			OrientationStr: "P",
			UnitStr:        "pt",
			Size: gofpdf.SizeType{
				Wd: maxX - minX + 2*margin,
				Ht: maxY - minY + 2*margin,
			},
		})
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("collabcanvas", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	dx, dy := margin-minX, margin-minY
	for _, op := range strokes {
		if op.Kind != canvas.KindStroke || len(op.Points) < 2 {
			continue
		}
		r, g, b := parseHex(op.Color)
		pdf.SetDrawColor(r, g, b)
		pdf.SetLineWidth(math.Max(op.Size, 0.1))
		for i := 1; i < len(op.Points); i++ {
			p, q := op.Points[i-1], op.Points[i]
			pdf.Line(p.X+dx, p.Y+dy, q.X+dx, q.Y+dy)
		}
	}
	return pdf.Output(w)
}

// bounds is the bounding box of every stroke, widened by half the stroke
// width.
func bounds(ops []canvas.Operation) (minX, minY, maxX, maxY float64, ok bool) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, op := range ops {
		if op.Kind != canvas.KindStroke {
			continue
		}
		half := op.Size / 2
		for _, p := range op.Points {
			minX = math.Min(minX, p.X-half)
			minY = math.Min(minY, p.Y-half)
			maxX = math.Max(maxX, p.X+half)
			maxY = math.Max(maxY, p.Y+half)
			ok = true
		}
	}
	if !ok {
		return 0, 0, 0, 0, false
	}
	return minX, minY, maxX, maxY, true
}

// parseHex understands #rgb and #rrggbb. Anything else is black.
func parseHex(s string) (r, g, b int) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
