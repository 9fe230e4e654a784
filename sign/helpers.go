package sign

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"golang.org/x/text/encoding/unicode"
)

// getObjID returns the object ID backing a pdf.Value's pointer.
func getObjID(v pdf.Value) uint32 {
	ptr := v.GetPtr()
	return ptr.GetID()
}

// pdfString serializes text as a PDF string object. ASCII text becomes an
// escaped literal string; anything else is hex-encoded UTF-16BE with a BOM,
// which every conforming reader accepts for text strings.
func pdfString(text string) string {
	ascii := true
	for _, r := range text {
		if r < 0x20 || r > 0x7e {
			ascii = false
			break
		}
	}

	if !ascii {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		utf16be, err := enc.Bytes([]byte(text))
		if err == nil {
			return "<" + strings.ToUpper(hex.EncodeToString(utf16be)) + ">"
		}
		// fall through to a literal string on encoder failure
	}

	text = strings.Replace(text, "\\", "\\\\", -1)
	text = strings.Replace(text, ")", "\\)", -1)
	text = strings.Replace(text, "(", "\\(", -1)
	text = strings.Replace(text, "\r", "\\r", -1)

	return "(" + text + ")"
}

// pdfDateTime formats a PDF date string: D:YYYYMMDDHHMMSS followed by "Z"
// for a zero UTC offset, else a signed HH'MM' offset. The trailing
// apostrophe after the minutes is required by common verifiers.
func pdfDateTime(date time.Time) string {
	dateString := "D:" + date.Format("20060102150405")

	_, offset := date.Zone()
	if offset == 0 {
		return dateString + "Z"
	}

	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60

	return dateString + fmt.Sprintf("%s%02d'%02d'", sign, hours, minutes)
}
