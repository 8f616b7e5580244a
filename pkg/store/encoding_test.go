package store

import (
	"testing"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// mapInterner is a minimal in-memory Interner test double, standing in for
// the txnInterner a real Writer/Reader would supply.
type mapInterner struct {
	values map[[16]byte][]byte
}

func newMapInterner() *mapInterner {
	return &mapInterner{values: make(map[[16]byte][]byte)}
}

func (m *mapInterner) PutHashed(hash [16]byte, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[hash] = cp
	return nil
}

func (m *mapInterner) GetHashed(hash [16]byte) ([]byte, error) {
	v, ok := m.values[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func roundTrip(t *testing.T, term rdf.Term) rdf.Term {
	t.Helper()
	interner := newMapInterner()
	enc := NewEncoder()
	dec := NewDecoder()

	encoded, err := enc.EncodeTerm(interner, term)
	if err != nil {
		t.Fatalf("EncodeTerm(%v): %v", term, err)
	}
	decoded, err := dec.DecodeTerm(interner, encoded)
	if err != nil {
		t.Fatalf("DecodeTerm(%v): %v", term, err)
	}
	return decoded
}

func TestEncodeDecodeNamedNode(t *testing.T) {
	for _, iri := range []string{
		"http://example.org/short",
		"http://example.org/a-rather-long-iri-that-exceeds-the-sixteen-byte-inline-threshold",
	} {
		term := rdf.NewNamedNode(iri)
		got := roundTrip(t, term)
		if !term.Equals(got) {
			t.Errorf("round-trip mismatch for %q: got %v", iri, got)
		}
	}
}

func TestEncodeDecodeBlankNode(t *testing.T) {
	for _, id := range []string{"12345", "b0", "a-named-blank-node-longer-than-inline"} {
		term := rdf.NewBlankNode(id)
		got := roundTrip(t, term)
		if !term.Equals(got) {
			t.Errorf("round-trip mismatch for blank node %q: got %v", id, got)
		}
	}
}

func TestEncodeDecodeStringLiteral(t *testing.T) {
	for _, val := range []string{"", "short", "a value long enough to force the hashed (interned) literal path instead of inline"} {
		term := rdf.NewLiteral(val)
		got := roundTrip(t, term)
		if !term.Equals(got) {
			t.Errorf("round-trip mismatch for literal %q: got %v", val, got)
		}
	}
}

func TestEncodeDecodeLangStringLiteral(t *testing.T) {
	cases := []*rdf.Literal{
		rdf.NewLiteralWithLanguage("hello", "en"),
		rdf.NewLiteralWithLanguage("a longer value that needs interning because it overruns sixteen bytes", "en-US"),
		rdf.NewLiteralWithLanguageAndDirection("hello", "ar", "rtl"),
		rdf.NewLiteralWithLanguageAndDirection("hello", "en", "ltr"),
	}
	for _, lit := range cases {
		got := roundTrip(t, lit)
		if !lit.Equals(got) {
			t.Errorf("round-trip mismatch for %v: got %v", lit, got)
		}
	}
}

func TestEncodeDecodeTypedLiteral(t *testing.T) {
	cases := []*rdf.Literal{
		rdf.NewIntegerLiteral(42),
		rdf.NewIntegerLiteral(-9223372036854775808),
		rdf.NewDoubleLiteral(3.14),
		rdf.NewBooleanLiteral(true),
		rdf.NewBooleanLiteral(false),
		rdf.NewFloatLiteral(1.5),
		rdf.NewLiteralWithDatatype("some-custom-value", rdf.NewNamedNode("http://example.org/myDatatype")),
	}
	for _, lit := range cases {
		got := roundTrip(t, lit)
		if !lit.Equals(got) {
			t.Errorf("round-trip mismatch for %v: got %v", lit, got)
		}
	}
}

func TestEncodeDecodeDateTimeLiteral(t *testing.T) {
	tm, err := time.Parse(time.RFC3339, "2025-06-15T10:30:00Z")
	if err != nil {
		t.Fatalf("parse fixture time: %v", err)
	}
	lit := rdf.NewDateTimeLiteral(tm)
	got, ok := roundTrip(t, lit).(*rdf.Literal)
	if !ok {
		t.Fatalf("expected *rdf.Literal, got %T", got)
	}
	if got.Datatype == nil || got.Datatype.IRI != rdf.XSDDateTime.IRI {
		t.Errorf("expected xsd:dateTime datatype, got %v", got.Datatype)
	}
}

func TestEncodeDecodeDurationLiteral(t *testing.T) {
	lit := rdf.NewDurationLiteral(14, 3906.0)
	got, ok := roundTrip(t, lit).(*rdf.Literal)
	if !ok {
		t.Fatalf("expected *rdf.Literal, got %T", got)
	}
	if got.Datatype == nil || got.Datatype.IRI != rdf.XSDDuration.IRI {
		t.Errorf("expected xsd:duration datatype, got %v", got.Datatype)
	}
}

func TestEncodeDecodeDefaultGraph(t *testing.T) {
	got := roundTrip(t, rdf.NewDefaultGraph())
	if got.Type() != rdf.TermTypeDefaultGraph {
		t.Errorf("expected default graph, got %v", got)
	}
}

func TestEncodeDecodeQuotedTriple(t *testing.T) {
	inner, err := rdf.NewQuotedTriple(
		rdf.NewNamedNode("http://example.org/alice"),
		rdf.NewNamedNode("http://example.org/age"),
		rdf.NewIntegerLiteral(30),
	)
	if err != nil {
		t.Fatalf("NewQuotedTriple: %v", err)
	}
	got, ok := roundTrip(t, inner).(*rdf.QuotedTriple)
	if !ok {
		t.Fatalf("expected *rdf.QuotedTriple, got %T", got)
	}
	if !inner.Equals(got) {
		t.Errorf("round-trip mismatch: got %v", got)
	}
}

func TestEncodedTermSizeConstant(t *testing.T) {
	var term EncodedTerm
	if len(term) != EncodedTermSize {
		t.Errorf("expected EncodedTerm to have %d bytes, got %d", EncodedTermSize, len(term))
	}
	if EncodedTermSize != 33 {
		t.Errorf("expected EncodedTermSize 33, got %d", EncodedTermSize)
	}
}
