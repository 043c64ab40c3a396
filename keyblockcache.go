package mdict

import "fmt"

// keyBlockCache holds one decoded key block, replaced on miss. A single
// slot suffices because LookupEngine's access pattern is sequential
// forward walks across blocks.
type keyBlockCache struct {
	src             Source
	profile         scannerProfile
	keyBlocksOffset uint32

	pilot   string
	list    []KeyEntry
	hasData bool
}

func newKeyBlockCache(src Source, profile scannerProfile, keyBlocksOffset uint32) *keyBlockCache {
	return &keyBlockCache{src: src, profile: profile, keyBlocksOffset: keyBlocksOffset}
}

// load returns the decoded entries of kdx's key block, decoding and
// caching it first if it isn't already the cached block.
func (c *keyBlockCache) load(kdx *KeyBlockIndexEntry) ([]KeyEntry, error) {
	if c.hasData && c.pilot == kdx.FirstWord {
		return c.list, nil
	}

	raw, err := c.src.ReadRange(c.keyBlocksOffset+kdx.Offset, kdx.CompSize)
	if err != nil {
		return nil, fmt.Errorf("mdict: read key block %d: %w", kdx.Index, err)
	}
	scanner := newBlockScanner(raw, c.profile)
	decoded, err := scanner.readBlock(kdx.CompSize, kdx.DecompSize, nil)
	if err != nil {
		return nil, fmt.Errorf("mdict: decode key block %d: %w", kdx.Index, err)
	}

	entries := make([]KeyEntry, 0, kdx.NumEntries)
	for i := uint32(0); i < kdx.NumEntries; i++ {
		off, err := decoded.readNum()
		if err != nil {
			return nil, fmt.Errorf("mdict: key block %d entry %d: offset: %w", kdx.Index, i, err)
		}
		word, err := decoded.readNulText()
		if err != nil {
			return nil, fmt.Errorf("mdict: key block %d entry %d: word: %w", kdx.Index, i, err)
		}
		entries = append(entries, KeyEntry{Offset: off, Word: word})
	}
	for i := 0; i+1 < len(entries); i++ {
		entries[i].Size = entries[i+1].Offset - entries[i].Offset
	}

	c.pilot = kdx.FirstWord
	c.list = entries
	c.hasData = true
	return entries, nil
}
