package graph

import (
	"strings"

	"github.com/ipamtools/bamsync/internal/model"
)

// CIDRInPath reports whether cidr appears in path as a whole-segment match:
// two consecutive slash-separated segments of path equal to the CIDR's
// address and prefix length. Substring matches are rejected, so 10.0.0.0/8
// never matches inside /IPv4/10.0.0.0/80 or /IPv4/110.0.0.0/8.
func CIDRInPath(cidr, path string) bool {
	addr, bits, ok := strings.Cut(cidr, "/")
	if !ok || addr == "" || bits == "" {
		return false
	}
	segs := splitSlash(path)
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == addr && segs[i+1] == bits {
			return true
		}
	}
	return false
}

func splitSlash(s string) []string {
	parts := strings.Split(s, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitPathAttr turns one path-like attribute into comparable segments:
//   - a plain CIDR (one slash, numeric prefix) stays atomic;
//   - slash paths split on "/", then any {address, digits} segment pair is
//     re-joined so embedded CIDRs stay atomic;
//   - dotted names split on ".";
//   - anything else is a single segment.
func splitPathAttr(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Contains(s, "/") {
		if isCIDR(s) {
			return []string{s}
		}
		return joinCIDRPairs(splitSlash(s))
	}
	if strings.Contains(s, ".") {
		return strings.Split(s, ".")
	}
	return []string{s}
}

func isCIDR(s string) bool {
	addr, bits, ok := strings.Cut(s, "/")
	if !ok || strings.Contains(bits, "/") {
		return false
	}
	return looksLikeIP(addr) && isNumeric(bits)
}

// joinCIDRPairs rejoins consecutive {ip-like, digits} segments so a path
// such as 10.0.0.0/8/10.0.1.0/24 yields two atomic CIDR segments.
func joinCIDRPairs(segs []string) []string {
	out := make([]string, 0, len(segs))
	for i := 0; i < len(segs); i++ {
		if i+1 < len(segs) && looksLikeIP(segs[i]) && isNumeric(segs[i+1]) {
			out = append(out, segs[i]+"/"+segs[i+1])
			i++
			continue
		}
		out = append(out, segs[i])
	}
	return out
}

func looksLikeIP(s string) bool {
	return strings.Contains(s, ".") || strings.Contains(s, ":")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// identitySegments builds a row's hierarchical identity from its path-like
// attributes plus its natural key. Two rows are in a container relationship
// when one identity is a strict prefix of the other.
func identitySegments(row *model.Row) []string {
	if row == nil {
		return nil
	}
	var segs []string
	segs = append(segs, splitPathAttr(row.Config)...)
	segs = append(segs, splitPathAttr(row.ViewPath())...)
	segs = append(segs, splitPathAttr(row.Parent())...)
	segs = append(segs, splitPathAttr(row.NaturalKey())...)
	return segs
}

// childOf reports whether child's identity extends parent's: parent segments
// form a strict prefix of the child segments.
func childOf(child, parent *model.Row) bool {
	cs := identitySegments(child)
	ps := identitySegments(parent)
	if len(ps) == 0 || len(ps) >= len(cs) {
		return false
	}
	for i, seg := range ps {
		if cs[i] != seg {
			return false
		}
	}
	return true
}
