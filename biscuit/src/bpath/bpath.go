// Package bpath implements the absolute-path normalization rules used
// throughout the VFS (§4.9). It operates on ustr.Ustr, the reference
// tree's path byte-string type, rather than plain Go strings, so that
// fd.Cwd_t (which already speaks Ustr) can call it directly.
package bpath

import "strings"

import "golang.org/x/text/unicode/norm"

import "ustr"

/// Canonicalize normalizes an absolute or cwd-joined path: it strips
/// empty segments and ".", pops the previous segment on ".." (never
/// escaping above root), and otherwise appends "/"+segment. The empty
/// result normalizes to "/". The input need not already be absolute;
/// callers that require an absolute result should join against a cwd
/// first (see fd.Cwd_t.Fullpath).
//
// Each surviving segment is additionally folded to Unicode NFC (§4.9):
// the overlay and initramfs tables key entries by exact byte string, so
// two visually identical paths built from differently-composed
// codepoints (e.g. an accented letter as one precomposed rune vs. a
// base letter plus combining mark) must collide on lookup rather than
// silently naming two different files.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	segs := strings.Split(string(p), "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, norm.NFC.String(s))
		}
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	return ustr.Ustr("/" + strings.Join(out, "/"))
}

/// StripLeadingSlash returns the canonical path with its leading "/"
/// removed, as used to key the overlay and initramfs tables (which store
/// names without a leading slash). "/" itself becomes "".
func StripLeadingSlash(p ustr.Ustr) string {
	s := string(p)
	return strings.TrimPrefix(s, "/")
}

/// Split returns the normalized parent directory (absolute, with leading
/// slash) and final component of p. Split("/") returns ("/", "").
func Split(p ustr.Ustr) (ustr.Ustr, string) {
	c := Canonicalize(p)
	s := string(c)
	if s == "/" {
		return ustr.MkUstrRoot(), ""
	}
	idx := strings.LastIndexByte(s, '/')
	name := s[idx+1:]
	parent := s[:idx]
	if parent == "" {
		parent = "/"
	}
	return ustr.Ustr(parent), name
}

/// Join joins a parent absolute path and a single component, returning
/// the normalized absolute result.
func Join(parent ustr.Ustr, name string) ustr.Ustr {
	return Canonicalize(parent.ExtendStr(name))
}
