/*package format parses the two small languages nbpipe config files use to
name snapshots:

   Input = "snapdir_{%03d,frame}/snap_{%03d,frame}.dat"
   Output = "out/snap_{%03d,frame}.nbp"
   Frames = 0..100 - 63

A file format is fixed text with variables written as {verb,rule}. The verb is
an integer printf verb such as %d or %03d, and the rule is the value printed
with it. "frame" is the only rule: the number of the frame being read or
written. Spaces inside the braces are ignored.

A sequence format is a list of terms joined by "+" and "-". A term is a single
integer, 7, or an inclusive range, 10..20. "+" terms add numbers to the
sequence and "-" terms remove them, and removals happen after every addition,
so "1..17 - 4..13" is 1, 2, 3, 14, 15, 16, 17. A leading "+" may be left out.
Adding a number twice or removing one that isn't there is an error, which
catches most typos in long frame lists.
*/
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// BigNumber is the most elements a sequence may hold at any point while
	// it is built. Longer sequences are assumed to be typos.
	BigNumber = 1<<20
	// FrameRule is the rule of file format variables set to the frame.
	FrameRule = "frame"
)

// seqTerm is one term of a sequence format: the range [lo, hi], which is
// either added to or removed from the sequence.
type seqTerm struct {
	lo, hi int
	remove bool
}

// ExpandSequenceFormat expands a sequence format into a sorted list of
// integers.
func ExpandSequenceFormat(format string) ([]int, error) {
	terms, err := parseSequenceFormat(format)
	if err != nil { return nil, err }

	in := map[int]bool{ }
	for _, term := range terms {
		if term.remove { continue }
		if len(in) + (term.hi - term.lo + 1) > BigNumber {
			return nil, fmt.Errorf("The sequence '%s' has more than %d " +
				"elements, which is almost certainly a typo.",
				format, BigNumber)
		}
		for n := term.lo; n <= term.hi; n++ {
			if in[n] {
				return nil, fmt.Errorf("%d is added to the sequence '%s' " +
					"more than once.", n, format)
			}
			in[n] = true
		}
	}

	for _, term := range terms {
		if !term.remove { continue }
		for n := term.lo; n <= term.hi; n++ {
			if !in[n] {
				return nil, fmt.Errorf("%d is removed from the sequence " +
					"'%s', but was never added to it.", n, format)
			}
			delete(in, n)
		}
	}

	out := make([]int, 0, len(in))
	for n := range in { out = append(out, n) }
	sort.Ints(out)
	return out, nil
}

// parseSequenceFormat splits a sequence format into its terms.
func parseSequenceFormat(format string) ([]seqTerm, error) {
	spaced := strings.NewReplacer("+", " + ", "-", " - ").Replace(format)
	tok := strings.Fields(spaced)
	if len(tok) == 0 {
		return nil, fmt.Errorf("The sequence format is empty.")
	}

	terms := []seqTerm{ }
	remove, wantTerm := false, true
	for i, t := range tok {
		isOp := t == "+" || t == "-"
		switch {
		case isOp && (i == 0 || !wantTerm):
			remove, wantTerm = t == "-", true
		case isOp:
			return nil, fmt.Errorf("In '%s', the '%s' at position %d " +
				"follows another operator instead of a term.", format, t, i+1)
		case !wantTerm:
			return nil, fmt.Errorf("In '%s', '%s' at position %d should be " +
				"a '+' or '-'.", format, t, i+1)
		default:
			lo, hi, err := parseSequenceTerm(t)
			if err != nil {
				return nil, fmt.Errorf("In '%s', the term '%s' at position " +
					"%d is invalid: %s.", format, t, i+1, err.Error())
			}
			terms = append(terms, seqTerm{ lo, hi, remove })
			wantTerm = false
		}
	}

	if wantTerm {
		return nil, fmt.Errorf("The sequence format '%s' ends in an " +
			"operator.", format)
	}
	return terms, nil
}

// parseSequenceTerm parses "n" or "lo..hi".
func parseSequenceTerm(tok string) (lo, hi int, err error) {
	bounds := strings.Split(tok, "..")
	if len(bounds) > 2 {
		return 0, 0, fmt.Errorf("it has more than one '..'")
	}

	if lo, err = strconv.Atoi(bounds[0]); err != nil {
		return 0, 0, fmt.Errorf("'%s' is not an integer", bounds[0])
	}
	hi = lo
	if len(bounds) == 2 {
		if hi, err = strconv.Atoi(bounds[1]); err != nil {
			return 0, 0, fmt.Errorf("'%s' is not an integer", bounds[1])
		} else if hi < lo {
			return 0, 0, fmt.Errorf("the range ends at %d, before it " +
				"starts at %d", hi, lo)
		}
	}
	return lo, hi, nil
}

// ExpandFrameFormat expands the Frames variable. It is a sequence format
// whose elements must be non-negative.
func ExpandFrameFormat(format string) ([]int, error) {
	frames, err := ExpandSequenceFormat(format)
	if err != nil {
		return nil, fmt.Errorf("Frames is invalid: %w", err)
	}
	if len(frames) > 0 && frames[0] < 0 {
		return nil, fmt.Errorf("Frames is '%s', which includes the " +
			"negative frame %d.", format, frames[0])
	}
	return frames, nil
}

// ExpandFileFormat returns the file name format gives for a frame.
func ExpandFileFormat(format string, frame int) (string, error) {
	comp, err := NewFileFormatComponents(format)
	if err != nil { return "", err }
	return comp.Expand(frame), nil
}

// FileFormatComponents is a parsed file format string. Separators has one
// more element than Verbs: the fixed text before, between, and after the
// variables.
type FileFormatComponents struct {
	Separators []string
	Verbs []string
	Rules []string
}

// NewFileFormatComponents parses a file format string.
func NewFileFormatComponents(format string) (*FileFormatComponents, error) {
	comp := &FileFormatComponents{ }

	// open is the index of the '{' of the variable being read, or -1.
	open, sepStart := -1, 0
	for i := 0; i < len(format); i++ {
		switch format[i] {
		case '{':
			if open != -1 {
				return nil, fmt.Errorf("The file format '%s' opens a " +
					"variable at index %d inside the variable which starts " +
					"at index %d. Variables can't be nested.", format, i, open)
			}
			comp.Separators = append(comp.Separators, format[sepStart: i])
			open = i
		case '}':
			if open == -1 {
				return nil, fmt.Errorf("The file format '%s' has a '}' at " +
					"index %d which doesn't close any variable.", format, i)
			}
			if err := comp.addVariable(format, format[open+1: i]); err != nil {
				return nil, err
			}
			open, sepStart = -1, i + 1
		}
	}

	if open != -1 {
		return nil, fmt.Errorf("The file format '%s' has a variable " +
			"starting at index %d which is never closed with a '}'.",
			format, open)
	}
	comp.Separators = append(comp.Separators, format[sepStart:])
	return comp, nil
}

// addVariable parses the text v between a pair of braces.
func (comp *FileFormatComponents) addVariable(format, v string) error {
	tok := strings.Split(v, ",")
	if len(tok) != 2 {
		return fmt.Errorf("The file format '%s' has the variable '{%s}', " +
			"but variables must be a printf verb and a rule separated by a " +
			"comma, e.g. '{%%03d,%s}'.", format, v, FrameRule)
	}

	verb, rule := strings.TrimSpace(tok[0]), strings.TrimSpace(tok[1])
	if !isIntVerb(verb) {
		return fmt.Errorf("The file format '%s' has the variable '{%s}', " +
			"but '%s' is not an integer printf verb like '%%d' or '%%03d'.",
			format, v, verb)
	} else if rule != FrameRule {
		return fmt.Errorf("The file format '%s' has the variable '{%s}', " +
			"but '%s' is not a recognized rule. The only rule is '%s'.",
			format, v, rule, FrameRule)
	}

	comp.Verbs = append(comp.Verbs, verb)
	comp.Rules = append(comp.Rules, rule)
	return nil
}

// Expand returns the file name for the given frame.
func (comp *FileFormatComponents) Expand(frame int) string {
	sb := &strings.Builder{ }
	for i := range comp.Verbs {
		sb.WriteString(comp.Separators[i])
		fmt.Fprintf(sb, comp.Verbs[i], frame)
	}
	sb.WriteString(comp.Separators[len(comp.Separators) - 1])
	return sb.String()
}

// isIntVerb returns true if verb is a single printf verb for an integer, e.g.
// %d, %5d, or %03x.
func isIntVerb(verb string) bool {
	if len(verb) < 2 || verb[0] != '%' { return false }
	switch verb[len(verb) - 1] {
	case 'd', 'x', 'X', 'o', 'b':
	default:
		return false
	}
	for _, c := range verb[1: len(verb) - 1] {
		if c != '-' && c != '+' && c != ' ' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
