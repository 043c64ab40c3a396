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

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// MdictFS wraps a Reader to implement io/fs.FS, so an MDX/MDD file can be
// mounted read-only, for example behind net/http.FileServer.
type MdictFS struct {
	reader *Reader
}

// NewMdictFS wraps reader as an io/fs.FS. reader must not be nil.
func NewMdictFS(reader *Reader) *MdictFS {
	if reader == nil {
		panic("mdict: NewMdictFS: reader is nil")
	}
	return &MdictFS{reader: reader}
}

func (mfs *MdictFS) modTime() time.Time {
	raw := mfs.reader.header.CreationDate
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006.01.02 15:04:05", raw); err == nil {
		return t
	}
	log.Warningf("mdict: MdictFS: could not parse CreationDate %q for ModTime", raw)
	return time.Time{}
}

// Open opens a file: a keyword (`.mdx`) or a resource path (`.mdd`). The
// root directory "." lists every keyword via ReadDir.
func (mfs *MdictFS) Open(name string) (fs.File, error) {
	if name == "." || name == "" || strings.HasSuffix(name, "/") {
		return &MdictFile{
			fsys:  mfs,
			name:  ".",
			isDir: true,
			info:  &MdictFileInfo{name: ".", isDir: true, modTime: mfs.modTime()},
		}, nil
	}

	var content []byte
	var err error
	if mfs.reader.dictType == TypeMDD {
		content, err = mfs.reader.GetResource(name)
	} else {
		var text string
		text, err = mfs.reader.GetDefinitionForWord(name)
		if err == nil {
			content = []byte(text)
		}
	}
	if err != nil {
		if errors.Is(err, ErrWordNotFound) || errors.Is(err, ErrResourceNotFound) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("mdict: MdictFS: open %q: %w", name, err)
	}

	info := &MdictFileInfo{
		name:    path.Base(name),
		size:    int64(len(content)),
		modTime: mfs.modTime(),
	}
	return &MdictFile{
		fsys:    mfs,
		name:    name,
		content: content,
		reader:  bytes.NewReader(content),
		info:    info,
	}, nil
}

// MdictFile implements fs.File and fs.ReadDirFile.
type MdictFile struct {
	fsys    *MdictFS
	name    string
	isDir   bool
	content []byte
	reader  *bytes.Reader
	info    fs.FileInfo
}

func (f *MdictFile) Stat() (fs.FileInfo, error) { return f.info, nil }

func (f *MdictFile) Read(b []byte) (int, error) {
	if f.isDir {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: errors.New("is a directory")}
	}
	if f.reader == nil {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrClosed}
	}
	return f.reader.Read(b)
}

func (f *MdictFile) Close() error {
	f.reader = nil
	f.content = nil
	return nil
}

func (f *MdictFile) Seek(offset int64, whence int) (int64, error) {
	if f.isDir {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: errors.New("is a directory")}
	}
	if f.reader == nil {
		return 0, &fs.PathError{Op: "seek", Path: f.name, Err: fs.ErrClosed}
	}
	return f.reader.Seek(offset, whence)
}

// ReadDir lists every keyword in the dictionary as a flat directory:
// there is no nested directory structure, so MDD backslash paths are
// kept as leaf names, matching how they're looked up.
func (f *MdictFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if !f.isDir || f.name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: errors.New("not a directory")}
	}

	keywords, err := f.fsys.reader.AllKeywords()
	if err != nil {
		return nil, fmt.Errorf("mdict: MdictFS: readdir: %w", err)
	}

	modTime := f.fsys.modTime()
	entries := make([]fs.DirEntry, 0, len(keywords))
	for _, kw := range keywords {
		name := kw.Word
		if f.fsys.reader.dictType == TypeMDD {
			name = strings.TrimLeft(kw.Word, `\/`)
		}
		entries = append(entries, &MdictFileInfo{
			name:    path.Base(name),
			modTime: modTime,
		})
	}
	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries, nil
}

// MdictFileInfo implements fs.FileInfo and fs.DirEntry.
type MdictFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (i *MdictFileInfo) Name() string               { return i.name }
func (i *MdictFileInfo) Size() int64                { return i.size }
func (i *MdictFileInfo) IsDir() bool                { return i.isDir }
func (i *MdictFileInfo) ModTime() time.Time         { return i.modTime }
func (i *MdictFileInfo) Sys() interface{}           { return nil }
func (i *MdictFileInfo) Info() (fs.FileInfo, error) { return i, nil }
func (i *MdictFileInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i *MdictFileInfo) Mode() fs.FileMode {
	if i.isDir {
		return fs.ModeDir | 0555
	}
	return 0444
}

var (
	_ fs.File        = (*MdictFile)(nil)
	_ fs.ReadDirFile = (*MdictFile)(nil)
	_ fs.FS          = (*MdictFS)(nil)
	_ fs.DirEntry    = (*MdictFileInfo)(nil)
)
