package mdict

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// decodeHeader reads the 4-byte big-endian header_length, the UTF-16LE
// XML header itself, parses its root element's attributes, and skips
// the trailing 4-byte checksum.
// Returns the parsed attributes and the total header footprint
// (4 + header_length + 4), which is where the keyword section begins.
func decodeHeader(src Source) (*HeaderAttributes, uint32, error) {
	lenBytes, err := src.ReadRange(0, 4)
	if err != nil {
		return nil, 0, fmt.Errorf("mdict: read header length: %w", err)
	}
	headerLen := beU32(lenBytes)

	raw, err := src.ReadRange(4, headerLen)
	if err != nil {
		return nil, 0, fmt.Errorf("mdict: read header body (%d bytes): %w", headerLen, err)
	}

	utf16Str, err := decodeUTF16LE(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("mdict: header is not valid UTF-16LE: %w: %w", err, ErrInvalidHeader)
	}
	utf16Str = strings.TrimSuffix(utf16Str, "\x00")
	// Some generators emit the older Library_Data root name; normalize it
	// to Dictionary so a single attribute path handles both.
	utf16Str = strings.Replace(utf16Str, "Library_Data", "Dictionary", 1)

	attrs, err := parseXMLHeader(utf16Str)
	if err != nil {
		return nil, 0, fmt.Errorf("mdict: parse header XML: %w: %w", err, ErrInvalidHeader)
	}

	header, err := buildHeaderAttributes(attrs)
	if err != nil {
		return nil, 0, err
	}

	footprint := 4 + headerLen + 4
	header.HeaderFooterEnd = footprint
	return header, footprint, nil
}

// parseXMLHeader is the external XML-attribute collaborator: it consumes
// a decoded string and returns the attribute name/value pairs of the
// root element, which must be named Dictionary (decodeHeader rewrites a
// Library_Data root to Dictionary before calling). Implemented with
// stdlib encoding/xml since a hand-rolled attribute scanner buys nothing
// over the standard parser for a single flat element.
func parseXMLHeader(doc string) (map[string]string, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("no root element found: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "Dictionary" {
			return nil, fmt.Errorf("unexpected root element %q", start.Name.Local)
		}
		attrs := make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			attrs[a.Name.Local] = a.Value
		}
		return attrs, nil
	}
}

func buildHeaderAttributes(attrs map[string]string) (*HeaderAttributes, error) {
	versionStr := attrs["GeneratedByEngineVersion"]
	version, err := strconv.ParseFloat(versionStr, 64)
	if err != nil {
		return nil, fmt.Errorf("mdict: engine version %q: %w: %w", versionStr, err, ErrUnsupportedVersion)
	}
	isV2 := version >= 2.0

	encoding := EncodingUTF16
	switch strings.ToLower(attrs["Encoding"]) {
	case "utf-8", "utf8":
		encoding = EncodingUTF8
	case "gbk", "gb2312", "gb18030":
		encoding = EncodingGBK
	case "big5":
		encoding = EncodingBig5
	case "", "utf-16", "utf16":
		encoding = EncodingUTF16
	}

	encryptedStr := attrs["Encrypted"]
	if encryptedStr == "" {
		encryptedStr = "0"
	}
	encryptedVal, err := strconv.Atoi(encryptedStr)
	if err != nil {
		// Some generators write "Yes"/"No" instead of a bit field;
		// treat "Yes" as keyword-index encryption, matching the format's
		// looser historical usage.
		if strings.EqualFold(encryptedStr, "yes") {
			encryptedVal = int(EncryptKeyIndex)
		} else {
			encryptedVal = 0
		}
	}
	encrypted := EncryptFlag(encryptedVal)
	if encrypted&EncryptHeader != 0 {
		return nil, fmt.Errorf("mdict: keyword header encryption bit set: %w", ErrUnsupportedEncryption)
	}

	keyCaseSensitive := strings.EqualFold(attrs["KeyCaseSensitive"], "yes")

	stripKey := isV2 == false // v1 default true, v2 default false
	if v, ok := attrs["StripKey"]; ok {
		stripKey = strings.EqualFold(v, "yes")
	}

	stylesheet := parseStylesheet(attrs["StyleSheet"])

	return &HeaderAttributes{
		EngineVersion:    version,
		IsV2:             isV2,
		Encoding:         encoding,
		Encrypted:        encrypted,
		KeyCaseSensitive: keyCaseSensitive,
		StripKey:         stripKey,
		Stylesheet:       stylesheet,
		Title:            attrs["Title"],
		Description:      attrs["Description"],
		CreationDate:     attrs["CreationDate"],
	}, nil
}

func beU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
