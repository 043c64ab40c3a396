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

package mdict

import "errors"

// Sentinel errors, one per error kind in the format's failure model.
// Wrap with fmt.Errorf("...: %w", errX) at the detection site so callers
// can branch with errors.Is.
var (
	// ErrInvalidHeader covers XML parse failure, missing root element, or
	// a missing required header attribute.
	ErrInvalidHeader = errors.New("mdict: invalid header")

	// ErrUnsupportedVersion is returned when engine_version cannot be
	// interpreted as a number.
	ErrUnsupportedVersion = errors.New("mdict: unsupported engine version")

	// ErrUnsupportedEncryption is returned when the keyword-header
	// encryption bit is set; that requires a per-dictionary license key
	// this library does not handle.
	ErrUnsupportedEncryption = errors.New("mdict: unsupported encryption (keyword header)")

	// ErrTruncated is returned when a read came back short, or a v2
	// numeric field's high word was nonzero (file exceeds 4 GiB).
	ErrTruncated = errors.New("mdict: truncated read or field exceeds 32 bits")

	// ErrBadCompressionTag is returned when a block's compression type
	// byte is not 0, 1, or 2.
	ErrBadCompressionTag = errors.New("mdict: unrecognized compression tag")

	// ErrDecompressionFailure covers LZO/zlib decode errors.
	ErrDecompressionFailure = errors.New("mdict: decompression failure")

	// ErrOutOfRange is returned when a record offset is not covered by
	// any record block.
	ErrOutOfRange = errors.New("mdict: record offset out of range")

	// ErrResourceNotFound is returned when an MDD path has no match.
	ErrResourceNotFound = errors.New("mdict: resource not found")

	// ErrWordNotFound is returned when a keyword lookup has no match.
	ErrWordNotFound = errors.New("mdict: word not found")

	// ErrLinkLoop is returned when @@@LINK= redirection exceeds the
	// depth bound.
	ErrLinkLoop = errors.New("mdict: link redirection depth exceeded")

	// ErrLinkTarget is returned when an @@@LINK= target keyword does not
	// exist in the dictionary.
	ErrLinkTarget = errors.New("mdict: link target not found")

	// errCancelled is returned internally when a paged match_keys
	// continuation observes a stale mutual ticket. Never surfaced to
	// callers.
	errCancelled = errors.New("mdict: continuation cancelled by newer query")
)
