package main

import "bpath"
import "defs"
import "proc"
import "ustr"

// resolvePath reads a NUL-terminated path string out of user memory and
// resolves it against p's cwd into a normalized absolute path (§4.9),
// the same two-step copy_cstr_from_user + resolve_path sequence every
// path-taking syscall in the reference tree performs first.
func resolvePath(p *proc.Proc_t, uva uint64) (string, defs.Err_t) {
	in, err := p.Vm.Userstr(int(uva), defs.MAX_PATH-1)
	if err != 0 {
		return "", err
	}
	rel := ustr.Ustr(in)
	var full ustr.Ustr
	if rel.IsAbsolute() {
		full = rel
	} else {
		full = ustr.Ustr(p.Cwd).ExtendStr(in)
	}
	return bpath.Canonicalize(full).String(), 0
}

// splitParent returns the normalized absolute parent directory and
// final path component of an already-normalized absolute path.
func splitParent(absPath string) (parent string, name string) {
	p, n := bpath.Split(ustr.Ustr(absPath))
	return p.String(), n
}
