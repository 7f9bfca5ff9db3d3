// Package labels renders printable identification labels for serial
// numbers: a 400x200 PNG per serial with a QR code linking to the
// compliance dashboard, and a multi-page PDF (one label per page) sized for
// thermal label stock.
package labels

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/url"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Label geometry in pixels.
const (
	labelWidth  = 400
	labelHeight = 200
	qrSize      = 160
	qrMargin    = 20
	textLeft    = 200
)

// pdfPageDescription sizes each PDF page to a 2:1 label (4in x 2in at 72
// DPI) with the label image filling the page.
const pdfPageDescription = "dim:288 144, pos:full"

// Renderer builds labels whose QR codes point at the given dashboard.
type Renderer struct {
	dashboardURL string
	host         string
}

// NewRenderer creates a renderer. dashboardURL is the compliance dashboard
// base URL, e.g. https://dashboard.hexmodal.com.
func NewRenderer(dashboardURL string) *Renderer {
	host := dashboardURL
	if u, err := url.Parse(dashboardURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &Renderer{dashboardURL: dashboardURL, host: host}
}

// QRContent returns the URL a label's QR code encodes.
func (r *Renderer) QRContent(serial string) string {
	return fmt.Sprintf("%s/lights/?s=%s", r.dashboardURL, serial)
}

// LabelPNG renders one serial's label as PNG bytes: QR code on the left,
// serial and scan instructions on the right.
func (r *Renderer) LabelPNG(serial string) ([]byte, error) {
	qr, err := qrcode.New(r.QRContent(serial), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("labels: build QR for %s: %w", serial, err)
	}
	qrImg := qr.Image(qrSize)

	canvas := image.NewRGBA(image.Rect(0, 0, labelWidth, labelHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	qrRect := image.Rect(qrMargin, qrMargin, qrMargin+qrSize, qrMargin+qrSize)
	draw.Draw(canvas, qrRect, qrImg, qrImg.Bounds().Min, draw.Src)

	drawText(canvas, serial, color.Black, textLeft, 60)
	drawText(canvas, "Scan for compliance", color.Gray{Y: 0x80}, textLeft, 95)
	drawText(canvas, r.host, color.RGBA{R: 0x00, G: 0x66, B: 0xcc, A: 0xff}, textLeft, 130)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("labels: encode PNG for %s: %w", serial, err)
	}
	return buf.Bytes(), nil
}

// LabelsPDF renders one label page per serial and assembles them into a
// single printable PDF.
func (r *Renderer) LabelsPDF(serials []string) ([]byte, error) {
	if len(serials) == 0 {
		return nil, fmt.Errorf("labels: no serials provided")
	}

	imgs := make([]io.Reader, 0, len(serials))
	for _, serial := range serials {
		b, err := r.LabelPNG(serial)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, bytes.NewReader(b))
	}

	imp, err := api.Import(pdfPageDescription, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("labels: parse page description: %w", err)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, imgs, imp, nil); err != nil {
		return nil, fmt.Errorf("labels: assemble PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func drawText(dst draw.Image, text string, c color.Color, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
