// Package imaging converts selected ledger photos into a format the OCR
// service can decode. The OCR service only reads PNG and JPEG; phones often
// produce HEIC and scanners produce PDF.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// Result is a normalized image ready for upload
type Result struct {
	Data      []byte
	MIMEType  string
	Filename  string
	Converted bool
}

// Normalize returns PNG and JPEG input untouched and converts anything else
// (HEIC/HEIF, PDF first page, GIF) to PNG. The filename extension follows the
// output format.
func Normalize(filename string, data []byte, mimeType string) (Result, error) {
	mimeType = normalizeMIME(mimeType)

	if passthrough(mimeType) && !isHEICFormat(data) {
		return Result{Data: data, MIMEType: mimeType, Filename: filename}, nil
	}

	var (
		out []byte
		err error
	)
	if mimeType == "application/pdf" {
		out, err = pdfToPNG(data)
	} else {
		out, err = imageToPNG(data, mimeType)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data:      out,
		MIMEType:  "image/png",
		Filename:  strings.TrimSuffix(filename, filepath.Ext(filename)) + ".png",
		Converted: true,
	}, nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "image/jpg" {
		return "image/jpeg"
	}
	return mimeType
}

func passthrough(mimeType string) bool {
	return mimeType == "image/png" || mimeType == "image/jpeg"
}

// pdfToPNG renders the first page; a ledger photo is one page per commit
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func imageToPNG(data []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s image: %w", mimeType, err)
		}
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat sniffs the ISO-BMFF ftyp box for HEIC/HEIF brands
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
