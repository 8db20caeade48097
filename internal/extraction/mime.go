package extraction

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nickimizell/property-dashboard-sub000/internal/domain"
)

var extensionMIME = map[string]string{
	".pdf":  domain.MIMEPDF,
	".docx": domain.MIMEDocx,
	".doc":  domain.MIMEDoc,
	".txt":  domain.MIMEText,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// NormalizeMIME returns a canonical MIME type for the attachment. Declared
// types are trusted unless generic; generic or missing types are sniffed
// from content, then guessed from the filename extension.
func NormalizeMIME(data []byte, declared, filename string) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && mt != "application/octet-stream" && mt != "binary/octet-stream" {
		if mt == "text/plain" || strings.HasPrefix(mt, "text/") {
			return domain.MIMEText
		}
		return mt
	}

	if len(data) > 0 {
		detected := mimetype.Detect(data)
		switch {
		case detected.Is(domain.MIMEPDF):
			return domain.MIMEPDF
		case detected.Is(domain.MIMEDocx):
			return domain.MIMEDocx
		case detected.Is(domain.MIMEDoc):
			return domain.MIMEDoc
		case strings.HasPrefix(detected.String(), "image/"):
			return detected.String()
		case strings.HasPrefix(detected.String(), "text/plain"):
			return domain.MIMEText
		}
	}

	if byExt, ok := extensionMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	if mt == "" {
		return "application/octet-stream"
	}
	return mt
}
