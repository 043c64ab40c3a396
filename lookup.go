package mdict

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxLinkDepth bounds @@@LINK= redirection chains.
const maxLinkDepth = 16

const punctuationSet = "()., '/\\@_-"

var wildcardPrefixRe = regexp.MustCompile(`([^?*]+)[?*]+`)

// lookupEngine is the two-tier search / prefix-continuation / wildcard /
// link-following engine. It owns the Trail and mutual-ticket
// cancellation state, which are mutated only on the owning Reader's call
// path.
type lookupEngine struct {
	src      Source
	header   *HeaderAttributes
	dictType DictType
	profile  scannerProfile

	keyBlocks   []KeyBlockIndexEntry
	cache       *keyBlockCache
	recordTable *recordBlockTable

	trail        trail
	mutualTicket uint64
}

func newLookupEngine(src Source, header *HeaderAttributes, dictType DictType, profile scannerProfile, idx *indexData) *lookupEngine {
	return &lookupEngine{
		src:         src,
		header:      header,
		dictType:    dictType,
		profile:     profile,
		keyBlocks:   idx.keyBlocks,
		cache:       newKeyBlockCache(src, profile, idx.keyBlocksOffset),
		recordTable: idx.recordTable,
	}
}

// adaptKey normalizes a keyword for comparison. All comparisons between
// a query and stored words route through this on both sides.
func (e *lookupEngine) adaptKey(word string) string {
	if e.header.KeyCaseSensitive {
		if e.header.StripKey {
			return stripPunctuation(word, e.dictType)
		}
		return word
	}
	lower := strings.ToLower(word)
	if e.header.StripKey {
		return stripPunctuation(lower, e.dictType)
	}
	return lower
}

func stripPunctuation(word string, dictType DictType) string {
	base := word
	if dictType == TypeMDD {
		if idx := strings.LastIndex(word, "."); idx >= 0 {
			base = word[:idx]
		}
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuationSet, r) {
			return -1
		}
		return r
	}, base)
}

// seekVanguard implements the two-tier search: binary search down to the
// first key block that could contain phrase, then binary
// search within that block's decoded entries down to the first matching
// (or greater) entry. Returns the block index, the starting entry index
// within its decoded list, and that list itself. blockIdx == len(keyBlocks)
// means no block can contain the phrase.
func (e *lookupEngine) seekVanguard(phrase string) (int, int, []KeyEntry, error) {
	adapted := e.adaptKey(phrase)
	n := len(e.keyBlocks)

	blockIdx := sort.Search(n, func(i int) bool {
		return e.adaptKey(e.keyBlocks[i].LastWord) >= adapted
	})
	if blockIdx >= n {
		return n, 0, nil, nil
	}
	if e.adaptKey(e.keyBlocks[blockIdx].LastWord) == adapted {
		for blockIdx > 0 && e.adaptKey(e.keyBlocks[blockIdx-1].LastWord) == adapted {
			blockIdx--
		}
	}

	entries, err := e.cache.load(&e.keyBlocks[blockIdx])
	if err != nil {
		return 0, 0, nil, err
	}

	startIdx := sort.Search(len(entries), func(i int) bool {
		return e.adaptKey(entries[i].Word) >= adapted
	})
	for startIdx > 0 && e.adaptKey(entries[startIdx-1].Word) == adapted {
		startIdx--
	}

	return blockIdx, startIdx, entries, nil
}

// lookupExact returns the first entry whose adapted form equals
// adaptKey(word), used by both plain-string GetWordList and @@@LINK=
// resolution.
func (e *lookupEngine) lookupExact(word string) (WordListEntry, bool, error) {
	block, idx, entries, err := e.seekVanguard(word)
	if err != nil {
		return WordListEntry{}, false, err
	}
	if block >= len(e.keyBlocks) || idx >= len(entries) {
		return WordListEntry{}, false, nil
	}
	if e.adaptKey(entries[idx].Word) != e.adaptKey(word) {
		return WordListEntry{}, false, nil
	}
	return WordListEntry{Word: entries[idx].Word, Offset: entries[idx].Offset}, true, nil
}

// exactLookup implements the non-streaming exact-match lookup: reset
// Trail, seek, return the tail of the anchor block's entries from that
// index onward, optionally filtered to a single record
// by offset.
func (e *lookupEngine) exactLookup(query string, offset *uint32) ([]WordListEntry, error) {
	e.trail = trail{}
	block, idx, entries, err := e.seekVanguard(query)
	if err != nil {
		return nil, err
	}
	if block >= len(e.keyBlocks) {
		return nil, nil
	}
	tail := entries[idx:]
	out := make([]WordListEntry, 0, len(tail))
	for _, ent := range tail {
		if offset != nil && ent.Offset != *offset {
			continue
		}
		out = append(out, WordListEntry{Word: ent.Word, Offset: ent.Offset})
	}
	return out, nil
}

// parsedQuery is the result of parsing a structured Query's phrase for
// wildcards, feeding the prefix-enumeration / wildcard match path.
type parsedQuery struct {
	prefix        string
	filter        func(word string) bool
	hasFilter     bool
	plainWord     string
	allowMultiWord bool
}

func parseMatchPhrase(phrase string) parsedQuery {
	allowMultiWord := strings.HasSuffix(phrase, " ")
	trimmedOrig := strings.TrimSpace(phrase)
	trimmedLower := strings.ToLower(trimmedOrig)

	m := wildcardPrefixRe.FindStringSubmatch(trimmedLower)
	if m == nil {
		return parsedQuery{prefix: trimmedOrig, plainWord: trimmedOrig, allowMultiWord: allowMultiWord}
	}

	prefix := m[1]
	re := regexp.MustCompile("^" + globToRegex(trimmedLower) + "$")
	filter := func(word string) bool { return re.MatchString(strings.ToLower(word)) }

	return parsedQuery{
		prefix:         prefix,
		filter:         filter,
		hasFilter:      true,
		plainWord:      trimmedOrig,
		allowMultiWord: allowMultiWord,
	}
}

// globToRegex escapes regex metacharacters other than * and ?, and maps
// * -> .*, ? -> . .
func globToRegex(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '[', ']', '^', '$', '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (q parsedQuery) accepts(word string) bool {
	if q.hasFilter && !q.filter(word) {
		return false
	}
	if !q.allowMultiWord && strings.Contains(word, " ") {
		return false
	}
	return true
}

// matchKeys implements the paged prefix/wildcard enumeration state
// machine, backed by the Trail and mutual-ticket cancellation.
func (e *lookupEngine) matchKeys(q Query) ([]WordListEntry, bool, error) {
	expectedSize := q.Max
	if expectedSize < 10 {
		expectedSize = 10
	}

	pq := parseMatchPhrase(q.Phrase)

	follow := q.Follow
	if follow && e.trail.phrase != q.Phrase {
		follow = false
	}
	if follow && e.trail.exhausted {
		return nil, true, nil
	}

	e.mutualTicket++
	ticket := e.mutualTicket

	var block, startIdx int
	var entries []KeyEntry
	var priorTotal int
	var err error

	if follow {
		block = e.trail.block
		startIdx = e.trail.offset + e.trail.pos
		priorTotal = e.trail.total
		entries, err = e.cache.load(&e.keyBlocks[block])
		if err != nil {
			return nil, false, err
		}
	} else {
		anchor := pq.plainWord
		if pq.hasFilter {
			anchor = pq.prefix
		}
		block, startIdx, entries, err = e.seekVanguard(anchor)
		if err != nil {
			return nil, false, err
		}
		priorTotal = 0
	}

	e.trail = trail{phrase: q.Phrase, block: block, offset: startIdx, pos: 0, count: 0, total: priorTotal}

	if block >= len(e.keyBlocks) {
		e.trail.exhausted = true
		return nil, true, nil
	}

	out, err := e.collectMatches(ticket, block, startIdx, entries, expectedSize, pq)
	if err != nil {
		if errors.Is(err, errCancelled) {
			return nil, false, nil
		}
		return nil, false, err
	}
	e.trail.total += len(out)
	return out, e.trail.exhausted, nil
}

func (e *lookupEngine) collectMatches(ticket uint64, block, startIdx int, entries []KeyEntry, expectedSize int, pq parsedQuery) ([]WordListEntry, error) {
	adaptedPrefix := e.adaptKey(pq.prefix)
	out := make([]WordListEntry, 0, expectedSize)
	idx := startIdx
	pos := 0
	blockStart := startIdx

	for {
		if e.mutualTicket != ticket {
			return nil, errCancelled
		}

		for idx < len(entries) && len(out) < expectedSize {
			w := entries[idx]
			if pq.accepts(w.Word) {
				out = append(out, WordListEntry{Word: w.Word, Offset: w.Offset})
			}
			idx++
			pos++
		}

		e.trail.block = block
		e.trail.offset = blockStart
		e.trail.pos = pos
		e.trail.count = len(out)

		if len(out) >= expectedSize {
			break
		}
		if block+1 >= len(e.keyBlocks) {
			e.trail.exhausted = true
			break
		}
		next := &e.keyBlocks[block+1]
		if pq.hasFilter && !strings.HasPrefix(e.adaptKey(next.FirstWord), adaptedPrefix) {
			break
		}

		block++
		var err error
		entries, err = e.cache.load(&e.keyBlocks[block])
		if err != nil {
			return nil, err
		}
		idx = 0
		pos = 0
		blockStart = 0
	}

	if block == len(e.keyBlocks)-1 && e.trail.offset+e.trail.pos >= int(e.keyBlocks[block].NumEntries) {
		e.trail.exhausted = true
	}
	return out, nil
}

func (e *lookupEngine) resolveEntrySize(entries []KeyEntry, idx int) (uint32, error) {
	if idx+1 < len(entries) {
		return entries[idx+1].Offset - entries[idx].Offset, nil
	}
	desc, ok := e.recordTable.find(entries[idx].Offset)
	if !ok {
		return 0, fmt.Errorf("mdict: entry offset %d: %w", entries[idx].Offset, ErrOutOfRange)
	}
	return desc.DecompOffset + desc.DecompSize - entries[idx].Offset, nil
}

// getDefinition locates the record block, decompresses it, extracts the
// NUL-terminated text, expands its stylesheet spans, and transparently
// follows @@@LINK= redirection.
func (e *lookupEngine) getDefinition(recordOffset uint32) (string, error) {
	return e.getDefinitionAt(recordOffset, 0)
}

func (e *lookupEngine) getDefinitionAt(recordOffset uint32, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", fmt.Errorf("mdict: %w", ErrLinkLoop)
	}

	desc, ok := e.recordTable.find(recordOffset)
	if !ok {
		return "", fmt.Errorf("mdict: record offset %d: %w", recordOffset, ErrOutOfRange)
	}

	raw, err := e.src.ReadRange(desc.CompOffset, desc.CompSize)
	if err != nil {
		return "", fmt.Errorf("mdict: read record block %d: %w", desc.BlockNo, err)
	}
	scanner := newBlockScanner(raw, e.profile)
	decoded, err := scanner.readBlock(desc.CompSize, desc.DecompSize, nil)
	if err != nil {
		return "", fmt.Errorf("mdict: decode record block %d: %w", desc.BlockNo, err)
	}

	decoded.advance(recordOffset - desc.DecompOffset)
	text, err := decoded.readNulText()
	if err != nil {
		return "", fmt.Errorf("mdict: read definition text: %w: %w", err, ErrTruncated)
	}

	if len(e.header.Stylesheet) > 0 {
		text = expandStylesheet(text, e.header.Stylesheet)
	}

	if strings.HasPrefix(text, "@@@LINK=") {
		target := strings.TrimPrefix(text, "@@@LINK=")
		target = strings.TrimRight(target, "\r\n\x00")
		loc, found, err := e.lookupExact(target)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("mdict: link target %q: %w", target, ErrLinkTarget)
		}
		return e.getDefinitionAt(loc.Offset, depth+1)
	}

	return text, nil
}

// getResource does a case-insensitive exact match with backslash-path
// normalization, then a raw byte read bounded by the entry's size.
func (e *lookupEngine) getResource(query string) ([]byte, error) {
	normalized := normalizeResourcePath(query)

	block, idx, entries, err := e.seekVanguard(normalized)
	if err != nil {
		return nil, err
	}
	if block >= len(e.keyBlocks) {
		return nil, fmt.Errorf("mdict: %q: %w", query, ErrResourceNotFound)
	}

	for i := idx; i < len(entries); i++ {
		if strings.ToLower(entries[i].Word) != normalized {
			continue
		}
		size, err := e.resolveEntrySize(entries, i)
		if err != nil {
			return nil, err
		}
		return e.readRecordBytes(entries[i].Offset, size)
	}

	return nil, fmt.Errorf("mdict: %q: %w", query, ErrResourceNotFound)
}

func (e *lookupEngine) readRecordBytes(recordOffset, size uint32) ([]byte, error) {
	desc, ok := e.recordTable.find(recordOffset)
	if !ok {
		return nil, fmt.Errorf("mdict: record offset %d: %w", recordOffset, ErrOutOfRange)
	}
	raw, err := e.src.ReadRange(desc.CompOffset, desc.CompSize)
	if err != nil {
		return nil, fmt.Errorf("mdict: read record block %d: %w", desc.BlockNo, err)
	}
	scanner := newBlockScanner(raw, e.profile)
	decoded, err := scanner.readBlock(desc.CompSize, desc.DecompSize, nil)
	if err != nil {
		return nil, fmt.Errorf("mdict: decode record block %d: %w", desc.BlockNo, err)
	}
	decoded.advance(recordOffset - desc.DecompOffset)
	return decoded.readRaw(size)
}

func normalizeResourcePath(query string) string {
	normalized := strings.ToLower(strings.ReplaceAll(query, "/", `\`))
	if !strings.HasPrefix(normalized, `\`) {
		normalized = `\` + normalized
	}
	return normalized
}
