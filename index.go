package mdict

import "fmt"

// indexData is everything IndexLoader produces: the in-memory keyword
// index of blocks, a handle to the (not yet decoded) concatenated key
// blocks, and the fully populated record block table. All of it is
// immutable after open.
type indexData struct {
	keyBlocks       []KeyBlockIndexEntry
	keyBlocksOffset uint32 // file offset of the concatenated key-block area
	keyBlocksLen    uint32
	numKeyEntries   uint32

	recordTable *recordBlockTable
}

// loadIndex decodes the keyword summary, the keyword index of blocks
// (raw or compressed, and optionally encrypted), the record summary, and
// the record-block index.
func loadIndex(src Source, header *HeaderAttributes, profile scannerProfile) (*indexData, error) {
	numEntries, keyBlocksMeta, err := readKeywordSummary(src, header, profile)
	if err != nil {
		return nil, err
	}

	keyIndexBuf, err := src.ReadRange(keyBlocksMeta.indexBlockOffset, keyBlocksMeta.indexCompLen)
	if err != nil {
		return nil, fmt.Errorf("mdict: read keyword index block: %w", err)
	}
	idxScanner := newBlockScanner(keyIndexBuf, profile)

	var dec *decryptor
	if header.Encrypted&EncryptKeyIndex != 0 {
		dec = newDecryptor()
	}
	decoded, err := idxScanner.readBlock(keyBlocksMeta.indexCompLen, keyBlocksMeta.indexDecompLen, dec)
	if err != nil {
		return nil, fmt.Errorf("mdict: decode keyword index block: %w", err)
	}

	keyBlocks, err := decodeKeyBlockIndexEntries(decoded, profile, int(keyBlocksMeta.numBlocks))
	if err != nil {
		return nil, err
	}

	var compAccum uint32
	for i := range keyBlocks {
		keyBlocks[i].Offset = compAccum
		keyBlocks[i].Index = i
		compAccum += keyBlocks[i].CompSize
	}
	if compAccum != keyBlocksMeta.blocksLen {
		return nil, fmt.Errorf("mdict: key-block total compressed size mismatch: header says %d, sum is %d", keyBlocksMeta.blocksLen, compAccum)
	}

	var totalEntries uint32
	for _, kb := range keyBlocks {
		totalEntries += kb.NumEntries
	}
	if totalEntries != numEntries {
		return nil, fmt.Errorf("mdict: key-block entry count mismatch: summary says %d, blocks sum to %d", numEntries, totalEntries)
	}

	keyBlocksOffset := keyBlocksMeta.indexBlockOffset + keyBlocksMeta.indexCompLen
	recordSectionStart := keyBlocksOffset + keyBlocksMeta.blocksLen

	recordTable, err := loadRecordBlockIndex(src, header, profile, recordSectionStart, numEntries)
	if err != nil {
		return nil, err
	}

	return &indexData{
		keyBlocks:       keyBlocks,
		keyBlocksOffset: keyBlocksOffset,
		keyBlocksLen:    keyBlocksMeta.blocksLen,
		numKeyEntries:   numEntries,
		recordTable:     recordTable,
	}, nil
}

type keywordSummary struct {
	numBlocks        uint32
	indexDecompLen   uint32
	indexCompLen     uint32
	blocksLen        uint32
	indexBlockOffset uint32
}

func readKeywordSummary(src Source, header *HeaderAttributes, profile scannerProfile) (uint32, keywordSummary, error) {
	// Upper bound: 5 fields * 8 bytes + 4-byte checksum for v2, 4 fields
	// * 4 bytes for v1.
	summaryMax := uint32(16)
	if profile.isV2 {
		summaryMax = 44
	}
	buf, err := src.ReadRange(header.HeaderFooterEnd, summaryMax)
	if err != nil {
		return 0, keywordSummary{}, fmt.Errorf("mdict: read keyword summary: %w", err)
	}
	s := newBlockScanner(buf, profile)

	numBlocks, err := s.readNum()
	if err != nil {
		return 0, keywordSummary{}, err
	}
	numEntries, err := s.readNum()
	if err != nil {
		return 0, keywordSummary{}, err
	}

	var indexDecompLen uint32
	if profile.isV2 {
		indexDecompLen, err = s.readNum()
		if err != nil {
			return 0, keywordSummary{}, err
		}
	}

	indexCompLen, err := s.readNum()
	if err != nil {
		return 0, keywordSummary{}, err
	}
	blocksLen, err := s.readNum()
	if err != nil {
		return 0, keywordSummary{}, err
	}
	if profile.isV2 {
		if err := s.skipChecksum(); err != nil {
			return 0, keywordSummary{}, err
		}
	}

	return numEntries, keywordSummary{
		numBlocks:        numBlocks,
		indexDecompLen:   indexDecompLen,
		indexCompLen:     indexCompLen,
		blocksLen:        blocksLen,
		indexBlockOffset: header.HeaderFooterEnd + s.position(),
	}, nil
}

func decodeKeyBlockIndexEntries(s *blockScanner, profile scannerProfile, numBlocks int) ([]KeyBlockIndexEntry, error) {
	entries := make([]KeyBlockIndexEntry, 0, numBlocks)
	for i := 0; i < numBlocks; i++ {
		numEntries, err := s.readNum()
		if err != nil {
			return nil, fmt.Errorf("mdict: key-block index entry %d: num_entries: %w", i, err)
		}
		firstSize, err := s.readShort()
		if err != nil {
			return nil, err
		}
		firstWord, err := s.readSizedText(firstSize)
		if err != nil {
			return nil, fmt.Errorf("mdict: key-block index entry %d: first_word: %w", i, err)
		}
		lastSize, err := s.readShort()
		if err != nil {
			return nil, err
		}
		lastWord, err := s.readSizedText(lastSize)
		if err != nil {
			return nil, fmt.Errorf("mdict: key-block index entry %d: last_word: %w", i, err)
		}
		compSize, err := s.readNum()
		if err != nil {
			return nil, err
		}
		decompSize, err := s.readNum()
		if err != nil {
			return nil, err
		}
		entries = append(entries, KeyBlockIndexEntry{
			NumEntries: numEntries,
			FirstWord:  firstWord,
			LastWord:   lastWord,
			CompSize:   compSize,
			DecompSize: decompSize,
		})
	}
	_ = profile
	return entries, nil
}

func loadRecordBlockIndex(src Source, header *HeaderAttributes, profile scannerProfile, recordSectionStart uint32, expectedEntries uint32) (*recordBlockTable, error) {
	summaryLen := uint32(16)
	if profile.isV2 {
		summaryLen = 32
	}
	buf, err := src.ReadRange(recordSectionStart, summaryLen)
	if err != nil {
		return nil, fmt.Errorf("mdict: read record summary: %w", err)
	}
	s := newBlockScanner(buf, profile)

	numBlocks, err := s.readNum()
	if err != nil {
		return nil, err
	}
	numEntries, err := s.readNum()
	if err != nil {
		return nil, err
	}
	if numEntries != expectedEntries {
		return nil, fmt.Errorf("mdict: record summary entry count %d does not match keyword entry count %d", numEntries, expectedEntries)
	}
	indexLen, err := s.readNum()
	if err != nil {
		return nil, err
	}
	blocksLen, err := s.readNum()
	if err != nil {
		return nil, err
	}

	indexOffset := recordSectionStart + summaryLen
	blockPos := indexOffset + indexLen

	idxBuf, err := src.ReadRange(indexOffset, indexLen)
	if err != nil {
		return nil, fmt.Errorf("mdict: read record-block index: %w", err)
	}
	idxScanner := newBlockScanner(idxBuf, profile)

	table := newRecordBlockTable(int(numBlocks))
	compAccum := blockPos
	var decompAccum uint32
	for i := uint32(0); i < numBlocks; i++ {
		compSize, err := idxScanner.readNum()
		if err != nil {
			return nil, fmt.Errorf("mdict: record-block index entry %d: comp_size: %w", i, err)
		}
		decompSize, err := idxScanner.readNum()
		if err != nil {
			return nil, fmt.Errorf("mdict: record-block index entry %d: decomp_size: %w", i, err)
		}
		table.put(compAccum, decompAccum)
		compAccum += compSize
		decompAccum += decompSize
	}
	table.put(compAccum, decompAccum)

	if compAccum-blockPos != blocksLen {
		return nil, fmt.Errorf("mdict: record-block total compressed size mismatch: header says %d, sum is %d", blocksLen, compAccum-blockPos)
	}

	table.buildTree()
	return table, nil
}
