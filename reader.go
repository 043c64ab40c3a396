//
// Copyright (C) 2023 Quan Chen <chenquan_act@163.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package mdict reads MDX (text dictionary) and MDD (binary resource)
// container files.
package mdict

import (
	"context"
	"fmt"

	"github.com/mdictkit/mdict/cache"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("mdict")

// Reader is an opened MDX or MDD file, ready for lookups. It holds the
// full keyword index in memory; key and record blocks are decoded lazily
// on demand.
type Reader struct {
	src      Source
	dictType DictType
	header   *HeaderAttributes
	idx      *indexData
	engine   *lookupEngine

	defCache *cache.DefinitionCache
	dictID   string

	closed bool
}

// Open decodes src's header and builds its full keyword index, returning
// a Reader ready for GetWordList/GetDefinition/GetResource calls.
// dictType selects the `.mdx`/`.mdd` key-normalization rules; callers
// typically infer it from the file extension before calling Open.
func Open(src Source, dictType DictType) (*Reader, error) {
	header, _, err := decodeHeader(src)
	if err != nil {
		return nil, err
	}
	log.Infof("mdict: opened header: version=%.1f encoding=%d encrypted=%d", header.EngineVersion, header.Encoding, header.Encrypted)

	profile := newScannerProfile(header)
	idx, err := loadIndex(src, header, profile)
	if err != nil {
		return nil, err
	}
	log.Infof("mdict: index built: %d key blocks, %d entries, %d record blocks", len(idx.keyBlocks), idx.numKeyEntries, idx.recordTable.numBlocks())

	engine := newLookupEngine(src, header, dictType, profile, idx)

	dictID := header.Title
	if dictID == "" {
		dictID = "dict"
	}

	return &Reader{
		src:      src,
		dictType: dictType,
		header:   header,
		idx:      idx,
		engine:   engine,
		dictID:   dictID,
	}, nil
}

// OpenPath infers the dictionary type from path's extension (`.mdd` is a
// resource container, anything else is treated as `.mdx`), opens it as a
// FileSource, and returns a ready Reader.
func OpenPath(path string) (*Reader, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return Open(src, dictTypeFromPath(path))
}

func dictTypeFromPath(path string) DictType {
	if len(path) >= 4 && (path[len(path)-4:] == ".mdd" || path[len(path)-4:] == ".MDD") {
		return TypeMDD
	}
	return TypeMDX
}

// WithDefinitionCache attaches an optional shared cache in front of
// GetDefinition. It returns r for chaining.
func (r *Reader) WithDefinitionCache(c *cache.DefinitionCache) *Reader {
	r.defCache = c
	return r
}

// Title returns the dictionary's declared title, or "" if unset.
func (r *Reader) Title() string { return r.header.Title }

// Description returns the dictionary's declared description, or "" if
// unset.
func (r *Reader) Description() string { return r.header.Description }

// Header exposes the fully parsed header attributes.
func (r *Reader) Header() *HeaderAttributes { return r.header }

// GetWordList dispatches on query's dynamic type: a plain
// string runs the non-streaming exact/prefix lookup; a Query (or *Query)
// runs the paged prefix/wildcard enumeration and discards the exhausted
// flag (use GetWordListPage to observe it).
func (r *Reader) GetWordList(query interface{}) ([]WordListEntry, error) {
	switch q := query.(type) {
	case string:
		return r.engine.exactLookup(q, nil)
	case Query:
		out, _, err := r.engine.matchKeys(q)
		return out, err
	case *Query:
		out, _, err := r.engine.matchKeys(*q)
		return out, err
	default:
		return nil, fmt.Errorf("mdict: unsupported GetWordList query type %T", query)
	}
}

// GetWordListAt is the offset-filtered form of the non-streaming lookup:
// it returns at most one entry, the one whose record offset equals
// offset, among the matches for word.
func (r *Reader) GetWordListAt(word string, offset uint32) ([]WordListEntry, error) {
	return r.engine.exactLookup(word, &offset)
}

// GetWordListPage runs the paged prefix/wildcard enumeration and
// reports whether the underlying Trail is now exhausted.
func (r *Reader) GetWordListPage(q Query) ([]WordListEntry, bool, error) {
	return r.engine.matchKeys(q)
}

// GetDefinition returns the (stylesheet-expanded, link-resolved)
// definition text for a record offset. If a
// DefinitionCache is attached, it is consulted first and populated on a
// miss.
func (r *Reader) GetDefinition(recordOffset uint32) (string, error) {
	if r.defCache != nil {
		ctx := context.Background()
		if text, err := r.defCache.Get(ctx, r.dictID, recordOffset); err == nil {
			return text, nil
		}
	}

	text, err := r.engine.getDefinition(recordOffset)
	if err != nil {
		return "", err
	}

	if r.defCache != nil {
		ctx := context.Background()
		if err := r.defCache.Set(ctx, r.dictID, recordOffset, text); err != nil {
			log.Warningf("mdict: definition cache set failed: %v", err)
		}
	}
	return text, nil
}

// GetDefinitionForWord is a convenience combining an exact keyword lookup
// with GetDefinition.
func (r *Reader) GetDefinitionForWord(word string) (string, error) {
	loc, found, err := r.engine.lookupExact(word)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("mdict: %q: %w", word, ErrWordNotFound)
	}
	return r.GetDefinition(loc.Offset)
}

// GetResource returns the raw bytes of an `.mdd` resource by path.
func (r *Reader) GetResource(path string) ([]byte, error) {
	return r.engine.getResource(path)
}

// Close releases the underlying Source (and definition cache, if any).
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.defCache != nil {
		if err := r.defCache.Close(); err != nil {
			log.Warningf("mdict: definition cache close failed: %v", err)
		}
	}
	return r.src.Close()
}

// ReaderDescriptor is a JSON-serializable snapshot of a Reader's
// identity and index shape: a lightweight token a server process can
// hand to a worker without sharing the full in-memory index.
type ReaderDescriptor struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	EngineVersion   float64 `json:"engine_version"`
	IsV2            bool    `json:"is_v2"`
	Encoding        Encoding `json:"encoding"`
	NumEntries      uint32  `json:"num_entries"`
	NumKeyBlocks    int     `json:"num_key_blocks"`
	NumRecordBlocks int     `json:"num_record_blocks"`
}

// Descriptor snapshots r's identity and index shape.
func (r *Reader) Descriptor() ReaderDescriptor {
	return ReaderDescriptor{
		Title:           r.header.Title,
		Description:     r.header.Description,
		EngineVersion:   r.header.EngineVersion,
		IsV2:            r.header.IsV2,
		Encoding:        r.header.Encoding,
		NumEntries:      r.idx.numKeyEntries,
		NumKeyBlocks:    len(r.idx.keyBlocks),
		NumRecordBlocks: r.idx.recordTable.numBlocks(),
	}
}

// RecordLocation is a JSON-serializable (word, offset) pair: the unit a
// client exchanges with a lookup service instead of a bare offset, so a
// resolved definition can be traced back to the word that produced it
// (logging, caching keyed by word, a UI showing "definition of X").
type RecordLocation struct {
	Word   string `json:"word"`
	Offset uint32 `json:"offset"`
}

// Locate resolves word to its RecordLocation without fetching the
// definition text. Callers that need to hand a lookup result across a
// process boundary (a server handing work to a worker, a cache key)
// serialize the returned value and pass it to ResolveLocation later.
func (r *Reader) Locate(word string) (RecordLocation, error) {
	loc, found, err := r.engine.lookupExact(word)
	if err != nil {
		return RecordLocation{}, err
	}
	if !found {
		return RecordLocation{}, fmt.Errorf("mdict: %q: %w", word, ErrWordNotFound)
	}
	return RecordLocation{Word: word, Offset: loc.Offset}, nil
}

// ResolveLocation fetches the definition a previously obtained
// RecordLocation points to.
func (r *Reader) ResolveLocation(loc RecordLocation) (string, error) {
	return r.GetDefinition(loc.Offset)
}

// AllKeywords walks every key block in index order and returns every
// keyword entry in the dictionary. It exists for directory listings
// (fs.go's ReadDir) and small dictionaries; callers enumerating a large
// dictionary should prefer GetWordListPage's paged form instead.
func (r *Reader) AllKeywords() ([]WordListEntry, error) {
	out := make([]WordListEntry, 0, r.idx.numKeyEntries)
	for i := range r.idx.keyBlocks {
		entries, err := r.engine.cache.load(&r.idx.keyBlocks[i])
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			out = append(out, WordListEntry{Word: e.Word, Offset: e.Offset})
		}
	}
	return out, nil
}
