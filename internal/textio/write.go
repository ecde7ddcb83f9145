package textio

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/termbase/internal/term"
)

// Write renders terms as Datalog text in name order. The output reads
// back through Read to the same terms.
func Write(w io.Writer, terms []*term.Term) error {
	sorted := append([]*term.Term(nil), terms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	bw := bufio.NewWriter(w)
	for i, t := range sorted {
		if i > 0 {
			bw.WriteString("\n")
		}
		writeTerm(bw, t)
	}
	return bw.Flush()
}

// Format renders one term.
func Format(t *term.Term) string {
	var sb strings.Builder
	bw := bufio.NewWriter(&sb)
	writeTerm(bw, t)
	bw.Flush()
	return sb.String()
}

func writeTerm(w *bufio.Writer, t *term.Term) {
	names := argNames(t)
	fmt.Fprintf(w, "Decl %s(%s)", t.Name, strings.Join(names, ", "))
	var descr []string
	if t.Description != "" {
		descr = append(descr, fmt.Sprintf("doc(%s)", strconv.Quote(t.Description)))
	}
	for i, a := range t.Args {
		if a.Description != "" {
			descr = append(descr, fmt.Sprintf("arg(%s, %s)", names[i], strconv.Quote(a.Description)))
		}
	}
	if len(descr) > 0 {
		fmt.Fprintf(w, " descr [%s]", strings.Join(descr, ", "))
	}
	w.WriteString(".\n")

	for _, f := range t.Facts {
		fmt.Fprintf(w, "%s(%s).\n", t.Name, joinBindings(f.Values))
	}
	for _, r := range t.Rules {
		calls := make([]string, len(r.Body))
		for i, c := range r.Body {
			neg := ""
			if c.Negated {
				neg = "!"
			}
			calls[i] = fmt.Sprintf("%s%s(%s)", neg, c.Term, joinBindings(c.Args))
		}
		fmt.Fprintf(w, "%s(%s) :- %s.\n", t.Name, joinBindings(r.Head), strings.Join(calls, ", "))
	}
}

// argNames returns the declared argument names, inventing positional
// names for unnamed arguments.
func argNames(t *term.Term) []string {
	names := make([]string, len(t.Args))
	for i, a := range t.Args {
		names[i] = a.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("A%d", i)
		}
	}
	return names
}

func joinBindings(bs []term.Binding) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}
