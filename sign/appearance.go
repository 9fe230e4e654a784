package sign

import (
	"bytes"
	"fmt"
)

// createAppearance builds the normal appearance stream for a visible
// signature widget. A custom renderer wins when configured; the built-in
// stamp draws "Digitally signed by ... / Timestamp: ..." in Times-Roman.
func (context *SignContext) createAppearance(rect [4]float64) ([]byte, error) {
	if context.SignData.AppearanceRenderer != nil {
		return context.SignData.AppearanceRenderer(context, rect)
	}

	rectWidth := rect[2] - rect[0]
	rectHeight := rect[3] - rect[1]
	if rectWidth < 1 || rectHeight < 1 {
		return nil, fmt.Errorf("invalid rectangle dimensions: width %.2f and height %.2f must be at least 1", rectWidth, rectHeight)
	}

	lines := []string{
		"Digitally signed by " + context.displayName,
		"Timestamp: " + context.signingTime.Format("2006-01-02 15:04:05 -07:00"),
	}

	stream := renderTextStamp(lines, rectWidth, rectHeight)

	var buffer bytes.Buffer
	buffer.WriteString("<<\n")
	buffer.WriteString("  /Type /XObject\n")
	buffer.WriteString("  /Subtype /Form\n")
	fmt.Fprintf(&buffer, "  /BBox [0 0 %f %f]\n", rectWidth, rectHeight)
	buffer.WriteString("  /Matrix [1 0 0 1 0 0]\n")
	buffer.WriteString("  /Resources <<\n")
	buffer.WriteString("   /Font <<\n")
	buffer.WriteString("     /F1 << /Type /Font /Subtype /Type1 /BaseFont /Times-Roman >>\n")
	buffer.WriteString("   >>\n")
	buffer.WriteString("  >>\n")
	buffer.WriteString("  /FormType 1\n")
	fmt.Fprintf(&buffer, "  /Length %d\n", len(stream))
	buffer.WriteString(">>\n")
	buffer.WriteString("stream\n")
	buffer.Write(stream)
	buffer.WriteString("\nendstream\n")

	return buffer.Bytes(), nil
}

func renderTextStamp(lines []string, width, height float64) []byte {
	// Average Times-Roman glyph width is roughly half the font size; fit
	// the longest line horizontally and all lines vertically.
	longest := 1
	for _, line := range lines {
		if len(line) > longest {
			longest = len(line)
		}
	}
	fontSize := width / (0.5 * float64(longest))
	if vertical := height / (1.4 * float64(len(lines))); vertical < fontSize {
		fontSize = vertical
	}
	leading := 1.2 * fontSize

	var stream bytes.Buffer
	stream.WriteString("BT\n")
	fmt.Fprintf(&stream, "/F1 %.2f Tf\n", fontSize)
	fmt.Fprintf(&stream, "%.2f TL\n", leading)
	fmt.Fprintf(&stream, "%.2f %.2f Td\n", 0.05*width, height-leading)
	for i, line := range lines {
		if i > 0 {
			stream.WriteString("T*\n")
		}
		fmt.Fprintf(&stream, "%s Tj\n", pdfString(line))
	}
	stream.WriteString("ET")

	return stream.Bytes()
}
