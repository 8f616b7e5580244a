package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/zeebo/xxh3"
)

// Interner is the write/read surface a term codec needs from the string
// table: a content-addressed map from a 128-bit hash to the byte string it
// was computed from. Implementations may cache reads in memory since the
// mapping is immutable once written (the hash determines the value).
type Interner interface {
	PutHashed(hash [16]byte, value []byte) error
	GetHashed(hash [16]byte) ([]byte, error)
}

// Hash128 computes the 128-bit xxh3 hash used to key the string interner and
// to identify big (non-inline) term payloads.
func Hash128(b []byte) [16]byte {
	h := xxh3.Hash128(b)
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], h.Hi)
	binary.BigEndian.PutUint64(out[8:16], h.Lo)
	return out
}

// Encoder turns RDF terms into their EncodedTerm wire form, interning any
// string payload too large to store inline.
type Encoder struct{}

func NewEncoder() *Encoder { return &Encoder{} }

// EncodeTerm encodes term, writing any out-of-line string payload (IRI text,
// long literal values, quoted-triple components) to interner.
func (enc *Encoder) EncodeTerm(interner Interner, term rdf.Term) (EncodedTerm, error) {
	var out EncodedTerm
	switch t := term.(type) {
	case *rdf.NamedNode:
		return enc.encodeNamedNode(interner, t)
	case *rdf.BlankNode:
		return enc.encodeBlankNode(interner, t)
	case *rdf.Literal:
		return enc.encodeLiteral(interner, t)
	case *rdf.DefaultGraph:
		out[0] = tagDefaultGraph
		return out, nil
	case *rdf.QuotedTriple:
		return enc.encodeTripleLike(interner, tagTriple, t.Subject, t.Predicate, t.Object)
	case *rdf.TripleTerm:
		return enc.encodeTripleLike(interner, tagTripleTerm, t.Subject, t.Predicate, t.Object)
	case *rdf.ReifiedTriple:
		return enc.encodeTripleLike(interner, tagTriple, t.Triple.Subject, t.Triple.Predicate, t.Triple.Object)
	default:
		return out, fmt.Errorf("store: unknown term type %T", term)
	}
}

func (enc *Encoder) internSlot(interner Interner, payload []byte, small, big byte) (byte, [16]byte, error) {
	if len(payload) <= inlineLimit {
		var buf [16]byte
		copy(buf[:], payload)
		return small, buf, nil
	}
	h := Hash128(payload)
	if err := interner.PutHashed(h, payload); err != nil {
		return 0, h, err
	}
	return big, h, nil
}

func (enc *Encoder) encodeNamedNode(interner Interner, n *rdf.NamedNode) (EncodedTerm, error) {
	var out EncodedTerm
	out[0] = tagNamedNode
	h := Hash128([]byte(n.IRI))
	if err := interner.PutHashed(h, []byte(n.IRI)); err != nil {
		return out, err
	}
	copy(out[1:17], h[:])
	return out, nil
}

func (enc *Encoder) encodeBlankNode(interner Interner, b *rdf.BlankNode) (EncodedTerm, error) {
	var out EncodedTerm
	if num, err := strconv.ParseUint(b.ID, 10, 64); err == nil {
		out[0] = tagNumericBlankNode
		binary.BigEndian.PutUint64(out[1:9], num)
		return out, nil
	}
	tag, payload, err := enc.internSlot(interner, []byte(b.ID), tagSmallBlankNode, tagBigBlankNode)
	if err != nil {
		return out, err
	}
	out[0] = tag
	copy(out[1:17], payload[:])
	return out, nil
}

func (enc *Encoder) encodeLiteral(interner Interner, lit *rdf.Literal) (EncodedTerm, error) {
	if lit.Datatype == nil && lit.Language == "" {
		return enc.encodeStringLiteral(interner, lit.Value)
	}
	if lit.Language != "" {
		return enc.encodeLangStringLiteral(interner, lit)
	}
	switch lit.Datatype.IRI {
	case rdf.XSDBoolean.IRI:
		return enc.encodeBooleanLiteral(lit)
	case rdf.XSDFloat.IRI:
		return enc.encodeFloatLiteral(lit)
	case rdf.XSDDouble.IRI:
		return enc.encodeDoubleLiteral(lit)
	case rdf.XSDInteger.IRI:
		return enc.encodeIntegerLiteral(lit)
	case rdf.XSDDecimal.IRI:
		return enc.encodeDecimalLiteral(lit)
	case rdf.XSDDateTime.IRI:
		return enc.encodeDateTimeLiteral(lit)
	case rdf.XSDDate.IRI:
		return enc.encodeDateLiteral(lit)
	case rdf.XSDDuration.IRI:
		return enc.encodeDurationLiteral(tagDurationLiteral, lit)
	case rdf.XSDYearMonthDuration.IRI:
		return enc.encodeDurationLiteral(tagYearMonthDurationLiteral, lit)
	case rdf.XSDDayTimeDuration.IRI:
		return enc.encodeDurationLiteral(tagDayTimeDurationLiteral, lit)
	case rdf.XSDString.IRI:
		return enc.encodeStringLiteral(interner, lit.Value)
	default:
		return enc.encodeTypedLiteral(interner, lit)
	}
}

func (enc *Encoder) encodeStringLiteral(interner Interner, value string) (EncodedTerm, error) {
	var out EncodedTerm
	tag, payload, err := enc.internSlot(interner, []byte(value), tagSmallStringLiteral, tagBigStringLiteral)
	if err != nil {
		return out, err
	}
	out[0] = tag
	copy(out[1:17], payload[:])
	return out, nil
}

// encodeLangStringLiteral packs the literal's value into bytes[1:17] and its
// language tag (with RDF 1.2 base direction, if any, appended as "--dir")
// into bytes[17:33], each inline when short enough and hashed (interned)
// otherwise -- giving the four small/big x small/big tag variants.
func (enc *Encoder) encodeLangStringLiteral(interner Interner, lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	lang := lit.Language
	if lit.Direction != "" {
		lang += "--" + lit.Direction
	}

	valueTag, valuePayload, err := enc.internSlot(interner, []byte(lit.Value), 0, 1)
	if err != nil {
		return out, err
	}
	langTag, langPayload, err := enc.internSlot(interner, []byte(lang), 0, 1)
	if err != nil {
		return out, err
	}

	switch {
	case lit.Direction == "":
		switch {
		case valueTag == 0 && langTag == 0:
			out[0] = tagSmallSmallLangStringLiteral
		case valueTag == 0 && langTag == 1:
			out[0] = tagSmallBigLangStringLiteral
		case valueTag == 1 && langTag == 0:
			out[0] = tagBigSmallLangStringLiteral
		default:
			out[0] = tagBigBigLangStringLiteral
		}
	case lit.Direction == "ltr":
		out[0] = ltrTag(valueTag, langTag)
	default: // "rtl"
		out[0] = rtlTag(valueTag, langTag)
	}
	copy(out[1:17], valuePayload[:])
	copy(out[17:33], langPayload[:])
	return out, nil
}

func ltrTag(valueTag, langTag byte) byte {
	switch {
	case valueTag == 0 && langTag == 0:
		return tagLTRSmallSmallDirLangString
	case valueTag == 0 && langTag == 1:
		return tagLTRSmallBigDirLangString
	case valueTag == 1 && langTag == 0:
		return tagLTRBigSmallDirLangString
	default:
		return tagLTRBigBigDirLangString
	}
}

func rtlTag(valueTag, langTag byte) byte {
	switch {
	case valueTag == 0 && langTag == 0:
		return tagRTLSmallSmallDirLangString
	case valueTag == 0 && langTag == 1:
		return tagRTLSmallBigDirLangString
	case valueTag == 1 && langTag == 0:
		return tagRTLBigSmallDirLangString
	default:
		return tagRTLBigBigDirLangString
	}
}

func (enc *Encoder) encodeTypedLiteral(interner Interner, lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	valueTag, valuePayload, err := enc.internSlot(interner, []byte(lit.Value), tagSmallTypedLiteral, tagBigTypedLiteral)
	if err != nil {
		return out, err
	}
	dtHash := Hash128([]byte(lit.Datatype.IRI))
	if err := interner.PutHashed(dtHash, []byte(lit.Datatype.IRI)); err != nil {
		return out, err
	}
	out[0] = valueTag
	copy(out[1:17], valuePayload[:])
	copy(out[17:33], dtHash[:])
	return out, nil
}

func (enc *Encoder) encodeBooleanLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	v, err := strconv.ParseBool(lit.Value)
	if err != nil {
		return out, fmt.Errorf("store: invalid boolean literal %q: %w", lit.Value, err)
	}
	if v {
		out[0] = tagBooleanLiteralTrue
	} else {
		out[0] = tagBooleanLiteralFalse
	}
	return out, nil
}

func (enc *Encoder) encodeFloatLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	v, err := strconv.ParseFloat(lit.Value, 32)
	if err != nil {
		return out, fmt.Errorf("store: invalid float literal %q: %w", lit.Value, err)
	}
	out[0] = tagFloatLiteral
	binary.BigEndian.PutUint32(out[1:5], math.Float32bits(float32(v)))
	return out, nil
}

func (enc *Encoder) encodeDoubleLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	v, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		return out, fmt.Errorf("store: invalid double literal %q: %w", lit.Value, err)
	}
	out[0] = tagDoubleLiteral
	binary.BigEndian.PutUint64(out[1:9], math.Float64bits(v))
	return out, nil
}

func (enc *Encoder) encodeIntegerLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	v, err := strconv.ParseInt(lit.Value, 10, 64)
	if err != nil {
		return out, fmt.Errorf("store: invalid integer literal %q: %w", lit.Value, err)
	}
	out[0] = tagIntegerLiteral
	binary.BigEndian.PutUint64(out[1:9], uint64(v)) // #nosec G115 - intentional bit-pattern conversion
	return out, nil
}

// encodeDecimalLiteral stores the value as a float64 bit pattern. This is a
// deliberate simplification of xsd:decimal's arbitrary precision (see
// DESIGN.md); it is sufficient for comparison/arithmetic but can lose digits
// past float64 precision on round-trip through the store.
func (enc *Encoder) encodeDecimalLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	v, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		return out, fmt.Errorf("store: invalid decimal literal %q: %w", lit.Value, err)
	}
	out[0] = tagDecimalLiteral
	binary.BigEndian.PutUint64(out[1:9], math.Float64bits(v))
	return out, nil
}

func (enc *Encoder) encodeDateTimeLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	t, hasTZ, offsetMin, err := parseXSDDateTime(lit.Value)
	if err != nil {
		return out, err
	}
	out[0] = tagDateTimeLiteral
	binary.BigEndian.PutUint64(out[1:9], uint64(t.Unix())) // #nosec G115
	binary.BigEndian.PutUint32(out[9:13], uint32(t.Nanosecond()))
	binary.BigEndian.PutUint16(out[13:15], uint16(int16(offsetMin)))
	if hasTZ {
		out[15] = 1
	}
	return out, nil
}

func (enc *Encoder) encodeDateLiteral(lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	t, err := time.Parse("2006-01-02", strings.TrimSpace(lit.Value))
	if err != nil {
		return out, fmt.Errorf("store: invalid date literal %q: %w", lit.Value, err)
	}
	out[0] = tagDateLiteral
	days := t.Unix() / 86400
	binary.BigEndian.PutUint64(out[1:9], uint64(days)) // #nosec G115
	return out, nil
}

// encodeDurationLiteral packs the xsd:duration month/second components; the
// three duration datatypes share the same wire layout and differ only by tag.
func (enc *Encoder) encodeDurationLiteral(tag byte, lit *rdf.Literal) (EncodedTerm, error) {
	var out EncodedTerm
	months, seconds, err := parseXSDDuration(lit.Value)
	if err != nil {
		return out, err
	}
	out[0] = tag
	binary.BigEndian.PutUint32(out[1:5], uint32(int32(months))) // #nosec G115
	binary.BigEndian.PutUint64(out[5:13], math.Float64bits(seconds))
	return out, nil
}

// encodeTripleLike encodes an RDF-star/RDF-1.2 triple-valued term by
// recursively encoding its components and interning their concatenated
// EncodedTerm bytes, so the term decodes without needing any text parser.
func (enc *Encoder) encodeTripleLike(interner Interner, tag byte, s, p, o rdf.Term) (EncodedTerm, error) {
	var out EncodedTerm
	se, err := enc.EncodeTerm(interner, s)
	if err != nil {
		return out, err
	}
	pe, err := enc.EncodeTerm(interner, p)
	if err != nil {
		return out, err
	}
	oe, err := enc.EncodeTerm(interner, o)
	if err != nil {
		return out, err
	}
	payload := make([]byte, 0, 3*EncodedTermSize)
	payload = append(payload, se[:]...)
	payload = append(payload, pe[:]...)
	payload = append(payload, oe[:]...)
	h := Hash128(payload)
	if err := interner.PutHashed(h, payload); err != nil {
		return out, err
	}
	out[0] = tag
	copy(out[1:17], h[:])
	return out, nil
}

// EncodeQuadKey concatenates encoded terms, in index-column order, into a
// single lexicographically sortable scan key.
func EncodeQuadKey(terms ...EncodedTerm) []byte {
	result := make([]byte, 0, len(terms)*EncodedTermSize)
	for _, t := range terms {
		result = append(result, t[:]...)
	}
	return result
}
