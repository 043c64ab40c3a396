package mdict

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"unicode/utf16"

	ripemd128 "github.com/c0mm4nd/go-ripemd"
)

// synthDict is the plaintext content behind a buildSynthMDX fixture, kept
// alongside the built bytes so tests can assert against known values
// without re-deriving them from the binary layout.
type synthDict struct {
	bytes        []byte
	appleOffset  uint32
	bananaOffset uint32
	appleDef     string
	bananaDef    string
}

// synthOptions configures buildSynthMDX. Zero value is v1/UTF-8/raw.
type synthOptions struct {
	v2              bool
	styleSheet      string
	linkWord        string // if set, appleDef becomes "@@@LINK=" + linkWord
	encryptKeyIndex bool   // encrypt the keyword-index block; sets Encrypted="2"
	appleDef        string // if set, overrides the default "apple definition" text
}

// synthCodec encodes the version-dependent primitive fields (short, num,
// sized/nul text, block framing) exactly the way scanner.go decodes
// them, so fixture builders don't duplicate that logic ad hoc.
type synthCodec struct {
	v2 bool
}

func (c synthCodec) putNum(v uint32) []byte {
	if c.v2 {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return b
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func (c synthCodec) putShort(v uint32) []byte {
	if c.v2 {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v))
		return b
	}
	return []byte{byte(v)}
}

// nulText encodes a NUL-terminated key-entry word. readNulText scans for
// its own terminator and has no separate text_tail field to skip.
func (c synthCodec) nulText(s string) []byte {
	return append([]byte(s), 0)
}

// sizedText encodes a first_word/last_word value read via
// read_sized_text, which on v2 consumes one extra trailing NUL unit.
func (c synthCodec) sizedText(s string) []byte {
	out := []byte(s)
	if c.v2 {
		out = append(out, 0)
	}
	return out
}

// blockHeader builds the framing bytes readBlock expects ahead of a
// block's payload. A v1 raw (tag 0) block carries only the 1-byte tag;
// every other combination — v2 raw, or any compressed block — carries
// the full 8-byte header (tag + 3 zero bytes + 4-byte checksum).
func (c synthCodec) blockHeader(compType byte, checksum []byte) []byte {
	if compType == 0 && !c.v2 {
		return []byte{compType}
	}
	h := make([]byte, 8)
	h[0] = compType
	copy(h[4:8], checksum)
	return h
}

func encodeUTF16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

func putU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// synthIdxChecksum is the fixed checksum bytes used when a fixture
// encrypts its keyword-index block; it feeds directly into the
// decryptor's key derivation ([checksum]++[0x95,0x36,0,0]).
var synthIdxChecksum = []byte{0x11, 0x22, 0x33, 0x44}

// synthEncryptKeyIndex applies the forward transform of decrypt.go's
// stream cipher (decrypt.go only ever decrypts, matching a real reader,
// so the inverse lives here in the test fixture builder). Derived from
// decryptor.decrypt: decrypting byte i computes
// swap(c[i]) ^ c[i-1] ^ i ^ K[i%16] with c[-1] = 0x36, so encrypting
// inverts that: c[i] = swap(p[i] ^ c[i-1] ^ i ^ K[i%16]).
func synthEncryptKeyIndex(payload []byte, checksum []byte) []byte {
	h := ripemd128.New128()
	key := append(append([]byte{}, checksum...), 0x95, 0x36, 0x00, 0x00)
	h.Write(key)
	permuted := h.Sum(nil)

	out := make([]byte, len(payload))
	prev := byte(0x36)
	for i, p := range payload {
		x := p ^ prev ^ byte(i&0xFF) ^ permuted[i%16]
		c := (x >> 4) | ((x << 4) & 0xF0)
		out[i] = c
		prev = c
	}
	return out
}

// buildIndexBlock frames the keyword-index-of-blocks payload as a block
// readBlock can decode: raw when encrypt is false; zlib-compressed and
// then encrypted under the checksum-derived key when true. Encryption
// only ever wraps a compressed payload in read_block's framing (the raw
// path returns before a decryptor is consulted), so an encrypted index
// is never raw.
func buildIndexBlock(c synthCodec, payload []byte, encrypt bool) (block []byte, decompLen uint32) {
	if !encrypt {
		return append(c.blockHeader(0, nil), payload...), uint32(len(payload))
	}
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, _ = w.Write(payload)
	_ = w.Close()
	ciphertext := synthEncryptKeyIndex(compressed.Bytes(), synthIdxChecksum)
	block = append(c.blockHeader(2, synthIdxChecksum), ciphertext...)
	return block, uint32(len(payload))
}

// buildSynthMDX assembles a minimal but fully valid single-key-block,
// single-record-block MDX byte stream by hand, mirroring exactly the
// byte layout scanner.go/header.go/index.go/keyblockcache.go expect. It
// exists so tests can exercise the whole open/lookup/definition path
// without a checked-in binary fixture.
func buildSynthMDX(opts synthOptions) synthDict {
	c := synthCodec{v2: opts.v2}

	appleDef := "apple definition"
	if opts.appleDef != "" {
		appleDef = opts.appleDef
	}
	if opts.linkWord != "" {
		appleDef = "@@@LINK=" + opts.linkWord
	}
	bananaDef := "banana definition"

	recordContent := []byte(appleDef + "\x00" + bananaDef + "\x00")
	appleOffset := uint32(0)
	bananaOffset := uint32(len(appleDef) + 1)

	// --- key block ---
	var keyBlockContent []byte
	keyBlockContent = append(keyBlockContent, c.putNum(appleOffset)...)
	keyBlockContent = append(keyBlockContent, c.nulText("apple")...)
	keyBlockContent = append(keyBlockContent, c.putNum(bananaOffset)...)
	keyBlockContent = append(keyBlockContent, c.nulText("banana")...)
	keyBlock := append(c.blockHeader(0, nil), keyBlockContent...)

	// --- keyword-index-of-blocks payload (one entry describing keyBlock) ---
	var idxPayload []byte
	idxPayload = append(idxPayload, c.putNum(2)...) // num_entries in this key block
	idxPayload = append(idxPayload, c.putShort(uint32(len("apple")))...)
	idxPayload = append(idxPayload, c.sizedText("apple")...)
	idxPayload = append(idxPayload, c.putShort(uint32(len("banana")))...)
	idxPayload = append(idxPayload, c.sizedText("banana")...)
	idxPayload = append(idxPayload, c.putNum(uint32(len(keyBlock)))...) // comp_size (incl. header)
	idxPayload = append(idxPayload, c.putNum(uint32(len(keyBlockContent)))...)
	idxBlock, idxDecompLen := buildIndexBlock(c, idxPayload, opts.encryptKeyIndex)

	// --- keyword summary ---
	var kwSummary []byte
	kwSummary = append(kwSummary, c.putNum(1)...) // num_blocks
	kwSummary = append(kwSummary, c.putNum(2)...) // num_entries
	if opts.v2 {
		kwSummary = append(kwSummary, c.putNum(idxDecompLen)...) // index_decomp_len
	}
	kwSummary = append(kwSummary, c.putNum(uint32(len(idxBlock)))...) // index_comp_len
	kwSummary = append(kwSummary, c.putNum(uint32(len(keyBlock)))...) // blocks_len
	if opts.v2 {
		kwSummary = append(kwSummary, 0, 0, 0, 0) // checksum
	}

	// --- record block ---
	recordBlock := append(c.blockHeader(0, nil), recordContent...)

	// --- record-block index ---
	var recIndex []byte
	recIndex = append(recIndex, c.putNum(uint32(len(recordBlock)))...)
	recIndex = append(recIndex, c.putNum(uint32(len(recordContent)))...)

	// --- record summary ---
	var recSummary []byte
	recSummary = append(recSummary, c.putNum(1)...) // num_blocks
	recSummary = append(recSummary, c.putNum(2)...) // num_entries (== keyword num_entries)
	recSummary = append(recSummary, c.putNum(uint32(len(recIndex)))...)
	recSummary = append(recSummary, c.putNum(uint32(len(recordBlock)))...)

	// --- header XML ---
	version := "1.2"
	if opts.v2 {
		version = "2.0"
	}
	xml := `<Dictionary GeneratedByEngineVersion="` + version + `" Encoding="UTF-8" KeyCaseSensitive="No" StripKey="Yes"`
	if opts.encryptKeyIndex {
		xml += ` Encrypted="2"`
	}
	if opts.styleSheet != "" {
		xml += ` StyleSheet="` + opts.styleSheet + `"`
	}
	xml += ` Title="Test" Description="A synthetic test dictionary" CreationDate="2020-01-01"/>`
	xml += "\x00"
	headerBytes := encodeUTF16LEBytes(xml)

	var out []byte
	out = append(out, putU32(uint32(len(headerBytes)))...)
	out = append(out, headerBytes...)
	out = append(out, 0, 0, 0, 0) // header checksum, unchecked
	out = append(out, kwSummary...)
	out = append(out, idxBlock...)
	out = append(out, keyBlock...)
	out = append(out, recSummary...)
	out = append(out, recIndex...)
	out = append(out, recordBlock...)

	return synthDict{
		bytes:        out,
		appleOffset:  appleOffset,
		bananaOffset: bananaOffset,
		appleDef:     appleDef,
		bananaDef:    bananaDef,
	}
}

// multiSynthDict is a v1, raw, multi-key-block MDX fixture: words split
// across several key blocks so cross-block continuation in
// seekVanguard/matchKeys is actually exercised, unlike buildSynthMDX's
// single block.
type multiSynthDict struct {
	bytes []byte
	words []string
	defOf map[string]string
}

// buildSynthMultiBlockMDX splits the (assumed pre-sorted) words across
// key blocks of perBlock entries each — the last block holds the
// remainder — backed by one record block holding every definition.
func buildSynthMultiBlockMDX(words []string, perBlock int) multiSynthDict {
	c := synthCodec{v2: false}

	defOf := make(map[string]string, len(words))
	offsets := make(map[string]uint32, len(words))
	var recordContent []byte
	for _, w := range words {
		def := w + " definition"
		defOf[w] = def
		offsets[w] = uint32(len(recordContent))
		recordContent = append(recordContent, []byte(def)...)
		recordContent = append(recordContent, 0)
	}

	var idxPayload []byte
	var keyBlocksBuf []byte
	numBlocks := 0
	for i := 0; i < len(words); i += perBlock {
		end := i + perBlock
		if end > len(words) {
			end = len(words)
		}
		chunk := words[i:end]

		var content []byte
		for _, w := range chunk {
			content = append(content, c.putNum(offsets[w])...)
			content = append(content, c.nulText(w)...)
		}
		block := append(c.blockHeader(0, nil), content...)

		idxPayload = append(idxPayload, c.putNum(uint32(len(chunk)))...)
		idxPayload = append(idxPayload, c.putShort(uint32(len(chunk[0])))...)
		idxPayload = append(idxPayload, c.sizedText(chunk[0])...)
		idxPayload = append(idxPayload, c.putShort(uint32(len(chunk[len(chunk)-1])))...)
		idxPayload = append(idxPayload, c.sizedText(chunk[len(chunk)-1])...)
		idxPayload = append(idxPayload, c.putNum(uint32(len(block)))...)
		idxPayload = append(idxPayload, c.putNum(uint32(len(content)))...)

		keyBlocksBuf = append(keyBlocksBuf, block...)
		numBlocks++
	}
	idxBlock := append(c.blockHeader(0, nil), idxPayload...)

	var kwSummary []byte
	kwSummary = append(kwSummary, c.putNum(uint32(numBlocks))...)
	kwSummary = append(kwSummary, c.putNum(uint32(len(words)))...)
	kwSummary = append(kwSummary, c.putNum(uint32(len(idxBlock)))...)
	kwSummary = append(kwSummary, c.putNum(uint32(len(keyBlocksBuf)))...)

	recordBlock := append(c.blockHeader(0, nil), recordContent...)

	var recIndex []byte
	recIndex = append(recIndex, c.putNum(uint32(len(recordBlock)))...)
	recIndex = append(recIndex, c.putNum(uint32(len(recordContent)))...)

	var recSummary []byte
	recSummary = append(recSummary, c.putNum(1)...)
	recSummary = append(recSummary, c.putNum(uint32(len(words)))...)
	recSummary = append(recSummary, c.putNum(uint32(len(recIndex)))...)
	recSummary = append(recSummary, c.putNum(uint32(len(recordBlock)))...)

	xml := `<Dictionary GeneratedByEngineVersion="1.2" Encoding="UTF-8" KeyCaseSensitive="No" StripKey="Yes" Title="Multi" Description="A synthetic multi-block test dictionary" CreationDate="2020-01-01"/>` + "\x00"
	headerBytes := encodeUTF16LEBytes(xml)

	var out []byte
	out = append(out, putU32(uint32(len(headerBytes)))...)
	out = append(out, headerBytes...)
	out = append(out, 0, 0, 0, 0)
	out = append(out, kwSummary...)
	out = append(out, idxBlock...)
	out = append(out, keyBlocksBuf...)
	out = append(out, recSummary...)
	out = append(out, recIndex...)
	out = append(out, recordBlock...)

	return multiSynthDict{bytes: out, words: words, defOf: defOf}
}

// synthMDD is a minimal single-resource .mdd fixture.
type synthMDD struct {
	bytes    []byte
	path     string // backslash-form key, e.g. `\images\cat.png`
	content  []byte
}

// buildSynthMDD assembles a v1, raw, single-key-block, single-record-block
// .mdd fixture: one resource entry whose payload is raw (non-text) bytes
// read back via read_raw, not NUL-terminated like an .mdx definition.
func buildSynthMDD() synthMDD {
	c := synthCodec{v2: false}

	path := `\images\cat.png`
	content := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

	keyBlockContent := append(c.putNum(0), c.nulText(path)...)
	keyBlock := append(c.blockHeader(0, nil), keyBlockContent...)

	var idxPayload []byte
	idxPayload = append(idxPayload, c.putNum(1)...)
	idxPayload = append(idxPayload, c.putShort(uint32(len(path)))...)
	idxPayload = append(idxPayload, c.sizedText(path)...)
	idxPayload = append(idxPayload, c.putShort(uint32(len(path)))...)
	idxPayload = append(idxPayload, c.sizedText(path)...)
	idxPayload = append(idxPayload, c.putNum(uint32(len(keyBlock)))...)
	idxPayload = append(idxPayload, c.putNum(uint32(len(keyBlockContent)))...)
	idxBlock := append(c.blockHeader(0, nil), idxPayload...)

	var kwSummary []byte
	kwSummary = append(kwSummary, c.putNum(1)...)
	kwSummary = append(kwSummary, c.putNum(1)...)
	kwSummary = append(kwSummary, c.putNum(uint32(len(idxBlock)))...)
	kwSummary = append(kwSummary, c.putNum(uint32(len(keyBlock)))...)

	recordBlock := append(c.blockHeader(0, nil), content...)

	var recIndex []byte
	recIndex = append(recIndex, c.putNum(uint32(len(recordBlock)))...)
	recIndex = append(recIndex, c.putNum(uint32(len(content)))...)

	var recSummary []byte
	recSummary = append(recSummary, c.putNum(1)...)
	recSummary = append(recSummary, c.putNum(1)...)
	recSummary = append(recSummary, c.putNum(uint32(len(recIndex)))...)
	recSummary = append(recSummary, c.putNum(uint32(len(recordBlock)))...)

	xml := `<Dictionary GeneratedByEngineVersion="1.2" Encoding="UTF-8" KeyCaseSensitive="No" StripKey="Yes" Title="Resources" Description="A synthetic mdd fixture" CreationDate="2020-01-01"/>` + "\x00"
	headerBytes := encodeUTF16LEBytes(xml)

	var out []byte
	out = append(out, putU32(uint32(len(headerBytes)))...)
	out = append(out, headerBytes...)
	out = append(out, 0, 0, 0, 0)
	out = append(out, kwSummary...)
	out = append(out, idxBlock...)
	out = append(out, keyBlock...)
	out = append(out, recSummary...)
	out = append(out, recIndex...)
	out = append(out, recordBlock...)

	return synthMDD{bytes: out, path: path, content: content}
}
