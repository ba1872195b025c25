package ast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for program fingerprints. Version suffix enables future
// encoding migration without colliding with old fingerprints.
const fingerprintDomain = "weft/program/v1"

// Fingerprint computes a content-addressed identity for a program.
//
// Two structurally identical programs produce the same fingerprint
// regardless of how they were constructed; route annotations are
// deliberately EXCLUDED so that tagging a program does not change its
// identity. The trace store keys compile records by this value.
func Fingerprint(p *Program) string {
	var b strings.Builder
	encodeCanonical(&b, p)

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00}) // domain/data boundary
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// encodeCanonical writes a deterministic s-expression-like encoding of
// the tree. Strings are NFC normalized so visually identical source
// (e.g. composed vs decomposed accents in a media path) fingerprints
// identically; floats use the shortest round-trippable form.
func encodeCanonical(b *strings.Builder, n Node) {
	if n == nil {
		b.WriteString("()")
		return
	}
	switch v := n.(type) {
	case *Num:
		fmt.Fprintf(b, "(num %s)", strconv.FormatFloat(v.V, 'g', -1, 64))
	case *Str:
		fmt.Fprintf(b, "(str %q)", canonicalString(v.V))
	case *Var:
		fmt.Fprintf(b, "(var %s)", canonicalString(v.Name))
	case *Me:
		fmt.Fprintf(b, "(me %s)", canonicalString(v.Field))
	case *Binary:
		fmt.Fprintf(b, "(binary %s ", v.Op)
		encodeCanonical(b, v.Left)
		b.WriteByte(' ')
		encodeCanonical(b, v.Right)
		b.WriteByte(')')
	case *Unary:
		fmt.Fprintf(b, "(unary %s ", v.Op)
		encodeCanonical(b, v.Expr)
		b.WriteByte(')')
	case *Call:
		b.WriteString("(call ")
		encodeCanonical(b, v.Name)
		for _, a := range v.Args {
			b.WriteByte(' ')
			encodeCanonical(b, a)
		}
		b.WriteByte(')')
	case *Tuple:
		b.WriteString("(tuple")
		for _, it := range v.Items {
			b.WriteByte(' ')
			encodeCanonical(b, it)
		}
		b.WriteByte(')')
	case *Index:
		b.WriteString("(index ")
		encodeCanonical(b, v.Base)
		b.WriteByte(' ')
		encodeCanonical(b, v.Idx)
		b.WriteByte(')')
	case *StrandAccess:
		b.WriteString("(access ")
		encodeCanonical(b, v.Base)
		b.WriteByte(' ')
		encodeCanonical(b, v.Out)
		b.WriteByte(')')
	case *StrandRemap:
		fmt.Fprintf(b, "(remap %s ", canonicalString(v.Strand))
		encodeCanonical(b, v.Base)
		for _, m := range v.Mappings {
			fmt.Fprintf(b, " (%s ", canonicalString(m.Axis))
			encodeCanonical(b, m.Expr)
			b.WriteByte(')')
		}
		b.WriteByte(')')
	case *If:
		b.WriteString("(if ")
		encodeCanonical(b, v.Cond)
		b.WriteByte(' ')
		encodeCanonical(b, v.Then)
		b.WriteByte(' ')
		encodeCanonical(b, v.Else)
		b.WriteByte(')')
	case *Assignment:
		fmt.Fprintf(b, "(assign %s %s ", canonicalString(v.Name), v.Op)
		encodeCanonical(b, v.Expr)
		b.WriteByte(')')
	case *NamedArg:
		fmt.Fprintf(b, "(named %s ", canonicalString(v.Name))
		encodeCanonical(b, v.Value)
		b.WriteByte(')')
	case *Output:
		fmt.Fprintf(b, "(output %s", canonicalString(v.Kind))
		for _, a := range v.Args {
			b.WriteByte(' ')
			encodeCanonical(b, a)
		}
		for _, name := range sortedKeys(v.Named) {
			fmt.Fprintf(b, " (%s ", canonicalString(name))
			encodeCanonical(b, v.Named[name])
			b.WriteByte(')')
		}
		b.WriteByte(')')
	case *SpindleDef:
		fmt.Fprintf(b, "(spindle %s in[%s] out[%s] ",
			canonicalString(v.Name),
			strings.Join(v.Inputs, ","),
			strings.Join(v.Outputs, ","))
		encodeCanonical(b, v.Body)
		b.WriteByte(')')
	case *InstanceBinding:
		fmt.Fprintf(b, "(instance %s out[%s] ",
			canonicalString(v.Name),
			strings.Join(v.Outputs, ","))
		encodeCanonical(b, v.Expr)
		b.WriteByte(')')
	case *Program:
		b.WriteString("(program")
		for _, s := range v.Statements {
			b.WriteByte(' ')
			encodeCanonical(b, s)
		}
		b.WriteByte(')')
	default:
		panic("ast: unknown node kind in encodeCanonical")
	}
}

func canonicalString(s string) string {
	return norm.NFC.String(s)
}

func sortedKeys(m map[string]Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
