package dfilter

import (
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Prefilter is a fast literal scan over raw record bytes used to skip full
// evaluation. It assumes the literal values a conjunctive filter compares
// against appear verbatim in the raw record; dissectors that normalize or
// re-encode field values break that assumption, so a rejected record should
// be treated as a strong hint rather than a proof of no match. When the
// filter's shape rules out the scan entirely the prefilter is non-selective
// and Match always reports true.
type Prefilter struct {
	selective bool
	ac        ahocorasick.AhoCorasick
}

// NewPrefilter builds a literal prefilter for f. It scans the constant pool
// for string and byte-sequence literals; under the verbatim-bytes assumption
// a record containing none of them does not satisfy a purely conjunctive
// filter. Filters with negation or disjunction get a non-selective
// prefilter.
func NewPrefilter(f *Filter) *Prefilter {
	for _, insn := range f.insns {
		switch insn.Op {
		case OpNot, OpJumpIfTrue:
			return &Prefilter{}
		case OpCompare:
			switch CmpOp(insn.A) {
			case CmpNe, CmpLt, CmpLe, CmpGt, CmpGe, CmpMatches:
				return &Prefilter{}
			}
		case OpIn, OpCall, OpCoerce:
			return &Prefilter{}
		}
	}

	var patterns []string
	for _, v := range f.consts {
		switch v := v.(type) {
		case StringValue:
			if len(v) > 0 {
				patterns = append(patterns, string(v))
			}
		case BytesValue:
			if len(v) > 0 {
				patterns = append(patterns, string(v))
			}
		}
	}
	if len(patterns) == 0 {
		return &Prefilter{}
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		MatchKind: ahocorasick.LeftMostLongestMatch,
		DFA:       true,
	})
	return &Prefilter{
		selective: true,
		ac:        builder.Build(patterns),
	}
}

// Selective reports whether the prefilter can ever reject a record.
func (p *Prefilter) Selective() bool {
	return p.selective
}

// Match reports whether data may satisfy the filter the prefilter was built
// from. Non-selective prefilters always report true.
func (p *Prefilter) Match(data []byte) bool {
	if !p.selective {
		return true
	}
	return len(p.ac.FindAll(string(data))) > 0
}
