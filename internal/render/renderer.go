// Package render は証明書PDFのレンダリングを提供する。
package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"

	"certificate-service/internal/domain"
	"certificate-service/internal/payload"
)

// DateLayout は証明書に印字する発行日の形式（日 月 年）。
const DateLayout = "2 January 2006"

const (
	producer = "certificate-service renderer v1"

	margin       = 15.0
	cornerSize   = 15.0
	cornerOffset = 5.0

	qrSize    = 35.0 // mm
	qrPadding = 5.0
	qrPixels  = 512

	minFontSize = 10.0

	fontFamily = "GoSans"
)

// 埋め込むフォント。字形の有無の判定にも使う。
var (
	regularFont = mustParseFont(goregular.TTF)
	boldFont    = mustParseFont(gobold.TTF)
)

func mustParseFont(ttf []byte) *sfnt.Font {
	f, err := sfnt.Parse(ttf)
	if err != nil {
		panic(fmt.Sprintf("render: parsing embedded font: %v", err))
	}
	return f
}

type rgb struct{ r, g, b int }

var (
	colorAccent = rgb{41, 128, 185}
	colorText   = rgb{44, 62, 80}
	colorCenter = rgb{240, 240, 250}
	colorEdge   = rgb{255, 255, 255}
)

// Renderer は証明書レコードからPDFを生成する。
// 同じレコードと発行日時からは同じペイロードとPDFが得られる。
type Renderer struct {
	recovery qrcode.RecoveryLevel
	compress bool
}

// NewRenderer は新しいRendererを生成する。
func NewRenderer() *Renderer {
	return &Renderer{recovery: qrcode.Medium, compress: true}
}

// Validate は証明書に印字する項目がすべて埋め込みフォントで描画できるかを確認する。
// 描画できない文字があればdomain.ErrValidationを返す。
func (r *Renderer) Validate(c *domain.Certificate) error {
	fields := []struct {
		name  string
		value string
	}{
		{"student_name", c.StudentName},
		{"course", c.Course},
		{"university", c.University},
		{"identifier", c.Identifier},
	}
	for _, f := range fields {
		if ch, ok := unsupportedRune(f.value); ok {
			return fmt.Errorf("%w: %s contains a character that cannot be printed on the certificate: %q", domain.ErrValidation, f.name, ch)
		}
	}
	return nil
}

// unsupportedRune は通常・太字のどちらかに字形がない最初の文字を返す。
func unsupportedRune(s string) (rune, bool) {
	var buf sfnt.Buffer
	for _, ch := range s {
		for _, f := range []*sfnt.Font{regularFont, boldFont} {
			idx, err := f.GlyphIndex(&buf, ch)
			if err != nil || idx == 0 {
				return ch, true
			}
		}
	}
	return 0, false
}

// Render は証明書PDFを生成する。
// 描画できない文字を含む場合はdomain.ErrValidation、QRコードを生成できない場合はdomain.ErrRenderを返す。
func (r *Renderer) Render(c *domain.Certificate, issuedAt time.Time) (*domain.RenderedDocument, error) {
	if err := r.Validate(c); err != nil {
		return nil, err
	}
	content := payload.Encode(c)

	qr, err := r.qrPNG(content)
	if err != nil {
		return nil, err
	}

	issuedAt = issuedAt.UTC()
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(issuedAt)
	pdf.SetModificationDate(issuedAt)
	pdf.SetCatalogSort(true)
	pdf.SetProducer(producer, false)
	pdf.SetTitle("Certificate of Completion", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(r.compress)
	pdf.AddUTF8FontFromBytes(fontFamily, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", gobold.TTF)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()

	drawBackground(pdf, pageW, pageH)
	drawTitle(pdf, pageW)

	// 本文
	const top = 75.0
	maxW := pageW - 2*(margin+cornerOffset+cornerSize)
	setColor(pdf, colorText)
	pdf.SetFont(fontFamily, "", 16)
	centerText(pdf, pageW, top-10, "This is to certify that")

	setColor(pdf, colorAccent)
	fitFont(pdf, "B", 32, c.StudentName, maxW)
	centerText(pdf, pageW, top+10, c.StudentName)

	setColor(pdf, colorText)
	pdf.SetFont(fontFamily, "", 16)
	centerText(pdf, pageW, top+25, "has successfully completed the course")

	setColor(pdf, colorAccent)
	fitFont(pdf, "B", 28, c.Course, maxW)
	centerText(pdf, pageW, top+45, c.Course)

	setColor(pdf, colorText)
	university := "at " + c.University
	fitFont(pdf, "", 16, university, maxW)
	centerText(pdf, pageW, top+60, university)

	pdf.SetFont(fontFamily, "", 14)
	centerText(pdf, pageW, top+75, "Issued on "+issuedAt.Format(DateLayout))

	setColor(pdf, colorAccent)
	pdf.SetFont(fontFamily, "", 12)
	centerText(pdf, pageW, top+90, "Certificate ID: "+c.Identifier)

	// QRコード（左下、白タイルの上）
	qrX := margin + cornerOffset + cornerSize - qrPadding
	qrY := pageH - 65
	pdf.SetFillColor(255, 255, 255)
	pdf.RoundedRect(qrX-qrPadding, qrY-qrPadding, qrSize+2*qrPadding, qrSize+2*qrPadding, 3, "1234", "F")
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", qrX, qrY, qrSize, qrSize, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: writing PDF: %w", domain.ErrRender, err)
	}

	return &domain.RenderedDocument{
		PDF:     buf.Bytes(),
		Payload: content,
		QRCode:  qr,
	}, nil
}

// qrPNG はペイロードをQRコードPNGに変換する。容量超過はエラーにする。
func (r *Renderer) qrPNG(content string) ([]byte, error) {
	q, err := qrcode.New(content, r.recovery)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding QR (%d bytes): %w", domain.ErrRender, len(content), err)
	}
	png, err := q.PNG(qrPixels)
	if err != nil {
		return nil, fmt.Errorf("%w: writing QR image: %w", domain.ErrRender, err)
	}
	return png, nil
}

// drawBackground は放射グラデーションの背景と枠線を描画する。
func drawBackground(pdf *fpdf.Fpdf, pageW, pageH float64) {
	pdf.RadialGradient(0, 0, pageW, pageH,
		colorCenter.r, colorCenter.g, colorCenter.b,
		colorEdge.r, colorEdge.g, colorEdge.b,
		0.5, 0.5, 0.5, 0.5, 1)

	pdf.SetDrawColor(colorText.r, colorText.g, colorText.b)
	pdf.SetLineWidth(0.3)
	pdf.Rect(margin, margin, pageW-2*margin, pageH-2*margin, "D")

	// 四隅の装飾
	c := margin + cornerOffset
	pdf.Line(c, c, c+cornerSize, c)
	pdf.Line(c, c, c, c+cornerSize)
	pdf.Line(pageW-c-cornerSize, c, pageW-c, c)
	pdf.Line(pageW-c, c, pageW-c, c+cornerSize)
	pdf.Line(c, pageH-c-cornerSize, c, pageH-c)
	pdf.Line(c, pageH-c, c+cornerSize, pageH-c)
	pdf.Line(pageW-c-cornerSize, pageH-c, pageW-c, pageH-c)
	pdf.Line(pageW-c, pageH-c-cornerSize, pageW-c, pageH-c)
}

func drawTitle(pdf *fpdf.Fpdf, pageW float64) {
	setColor(pdf, colorAccent)
	pdf.SetFont(fontFamily, "B", 36)
	centerText(pdf, pageW, 45, "CERTIFICATE OF COMPLETION")

	pdf.SetDrawColor(colorAccent.r, colorAccent.g, colorAccent.b)
	pdf.SetLineWidth(0.5)
	pdf.Line(pageW/4, 55, pageW*3/4, 55)
}

func setColor(pdf *fpdf.Fpdf, c rgb) {
	pdf.SetTextColor(c.r, c.g, c.b)
}

// centerText はyをベースラインとして水平中央に描画する。
func centerText(pdf *fpdf.Fpdf, pageW, y float64, s string) {
	pdf.Text((pageW-pdf.GetStringWidth(s))/2, y, s)
}

// fitFont は文字列がmaxWに収まるまでフォントサイズを下げる。
func fitFont(pdf *fpdf.Fpdf, style string, size float64, s string, maxW float64) {
	pdf.SetFont(fontFamily, style, size)
	for size > minFontSize && pdf.GetStringWidth(s) > maxW {
		size--
		pdf.SetFont(fontFamily, style, size)
	}
}
