package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Decoder is the inverse of Encoder: it reconstructs rdf.Term values from
// their EncodedTerm wire form, resolving hashed payloads through interner.
type Decoder struct{}

func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) DecodeTerm(interner Interner, enc EncodedTerm) (rdf.Term, error) {
	tag := enc.Tag()
	switch tag {
	case tagNamedNode:
		iri, err := d.resolveHash(interner, enc[1:17])
		if err != nil {
			return nil, fmt.Errorf("store: decode named node: %w", err)
		}
		return rdf.NewNamedNode(string(iri)), nil

	case tagNumericBlankNode:
		num := binary.BigEndian.Uint64(enc[1:9])
		return rdf.NewBlankNode(strconv.FormatUint(num, 10)), nil
	case tagSmallBlankNode:
		return rdf.NewBlankNode(inlineString(enc[1:17])), nil
	case tagBigBlankNode:
		id, err := d.resolveHash(interner, enc[1:17])
		if err != nil {
			return nil, fmt.Errorf("store: decode blank node: %w", err)
		}
		return rdf.NewBlankNode(string(id)), nil

	case tagSmallStringLiteral:
		return rdf.NewLiteral(inlineString(enc[1:17])), nil
	case tagBigStringLiteral:
		v, err := d.resolveHash(interner, enc[1:17])
		if err != nil {
			return nil, fmt.Errorf("store: decode string literal: %w", err)
		}
		return rdf.NewLiteral(string(v)), nil

	case tagSmallSmallLangStringLiteral, tagSmallBigLangStringLiteral,
		tagBigSmallLangStringLiteral, tagBigBigLangStringLiteral,
		tagLTRSmallSmallDirLangString, tagLTRSmallBigDirLangString,
		tagLTRBigSmallDirLangString, tagLTRBigBigDirLangString,
		tagRTLSmallSmallDirLangString, tagRTLSmallBigDirLangString,
		tagRTLBigSmallDirLangString, tagRTLBigBigDirLangString:
		return d.decodeLangString(interner, tag, enc)

	case tagSmallTypedLiteral, tagBigTypedLiteral:
		return d.decodeTypedLiteral(interner, tag, enc)

	case tagBooleanLiteralTrue:
		return rdf.NewBooleanLiteral(true), nil
	case tagBooleanLiteralFalse:
		return rdf.NewBooleanLiteral(false), nil

	case tagFloatLiteral:
		bits := binary.BigEndian.Uint32(enc[1:5])
		return rdf.NewFloatLiteral(math.Float32frombits(bits)), nil
	case tagDoubleLiteral:
		bits := binary.BigEndian.Uint64(enc[1:9])
		return rdf.NewDoubleLiteral(math.Float64frombits(bits)), nil
	case tagIntegerLiteral:
		v := int64(binary.BigEndian.Uint64(enc[1:9])) // #nosec G115
		return rdf.NewIntegerLiteral(v), nil
	case tagDecimalLiteral:
		bits := binary.BigEndian.Uint64(enc[1:9])
		return rdf.NewLiteralWithDatatype(formatDecimal(math.Float64frombits(bits)), rdf.XSDDecimal), nil

	case tagDateTimeLiteral:
		sec := int64(binary.BigEndian.Uint64(enc[1:9])) // #nosec G115
		nanos := binary.BigEndian.Uint32(enc[9:13])
		offsetMin := int(int16(binary.BigEndian.Uint16(enc[13:15]))) // #nosec G115
		hasTZ := enc[15] != 0
		t := time.Unix(sec, int64(nanos)).UTC()
		if !hasTZ {
			return rdf.NewLiteralWithDatatype(t.Format("2006-01-02T15:04:05.999999999"), rdf.XSDDateTime), nil
		}
		t = t.In(time.FixedZone("", offsetMin*60))
		return rdf.NewLiteralWithDatatype(t.Format(time.RFC3339Nano), rdf.XSDDateTime), nil
	case tagDateLiteral:
		days := int64(binary.BigEndian.Uint64(enc[1:9])) // #nosec G115
		t := time.Unix(days*86400, 0).UTC()
		return rdf.NewLiteralWithDatatype(t.Format("2006-01-02"), rdf.XSDDate), nil

	case tagDurationLiteral:
		return d.decodeDuration(enc, rdf.XSDDuration), nil
	case tagYearMonthDurationLiteral:
		return d.decodeDuration(enc, rdf.XSDYearMonthDuration), nil
	case tagDayTimeDurationLiteral:
		return d.decodeDuration(enc, rdf.XSDDayTimeDuration), nil

	case tagDefaultGraph:
		return rdf.NewDefaultGraph(), nil

	case tagTriple:
		s, p, o, err := d.decodeTripleComponents(interner, enc)
		if err != nil {
			return nil, err
		}
		return rdf.NewQuotedTriple(s, p, o)
	case tagTripleTerm:
		s, p, o, err := d.decodeTripleComponents(interner, enc)
		if err != nil {
			return nil, err
		}
		return &rdf.TripleTerm{Subject: s, Predicate: p, Object: o}, nil

	default:
		return nil, fmt.Errorf("store: unknown encoded term tag %d", tag)
	}
}

func (d *Decoder) resolveHash(interner Interner, hashBytes []byte) ([]byte, error) {
	var h [16]byte
	copy(h[:], hashBytes)
	return interner.GetHashed(h)
}

func inlineString(payload []byte) string {
	end := 0
	for end < len(payload) && payload[end] != 0 {
		end++
	}
	return string(payload[:end])
}

func (d *Decoder) decodeLangString(interner Interner, tag byte, enc EncodedTerm) (rdf.Term, error) {
	valueSmall, langSmall, direction := langTagShape(tag)

	value, err := d.resolveSlot(interner, valueSmall, enc[1:17])
	if err != nil {
		return nil, fmt.Errorf("store: decode lang string value: %w", err)
	}
	langRaw, err := d.resolveSlot(interner, langSmall, enc[17:33])
	if err != nil {
		return nil, fmt.Errorf("store: decode lang string language: %w", err)
	}
	lang := string(langRaw)
	// The encoder appends the base direction to the language payload as
	// "--dir"; the LTR/RTL tags also carry it in the tag itself. Strip the
	// suffix in either case.
	if idx := indexSuffix(lang, "--ltr"); idx >= 0 {
		lang, direction = lang[:idx], "ltr"
	} else if idx := indexSuffix(lang, "--rtl"); idx >= 0 {
		lang, direction = lang[:idx], "rtl"
	}
	if direction == "" {
		return rdf.NewLiteralWithLanguage(string(value), lang), nil
	}
	return rdf.NewLiteralWithLanguageAndDirection(string(value), lang, direction), nil
}

func indexSuffix(s, suffix string) int {
	if len(s) < len(suffix) {
		return -1
	}
	if s[len(s)-len(suffix):] == suffix {
		return len(s) - len(suffix)
	}
	return -1
}

// langTagShape reports, for a lang-string tag, whether the value/language
// slots are inline ("small") and the RDF 1.2 base direction the tag encodes.
func langTagShape(tag byte) (valueSmall, langSmall bool, direction string) {
	switch tag {
	case tagSmallSmallLangStringLiteral:
		return true, true, ""
	case tagSmallBigLangStringLiteral:
		return true, false, ""
	case tagBigSmallLangStringLiteral:
		return false, true, ""
	case tagBigBigLangStringLiteral:
		return false, false, ""
	case tagLTRSmallSmallDirLangString:
		return true, true, "ltr"
	case tagLTRSmallBigDirLangString:
		return true, false, "ltr"
	case tagLTRBigSmallDirLangString:
		return false, true, "ltr"
	case tagLTRBigBigDirLangString:
		return false, false, "ltr"
	case tagRTLSmallSmallDirLangString:
		return true, true, "rtl"
	case tagRTLSmallBigDirLangString:
		return true, false, "rtl"
	case tagRTLBigSmallDirLangString:
		return false, true, "rtl"
	default: // tagRTLBigBigDirLangString
		return false, false, "rtl"
	}
}

func (d *Decoder) resolveSlot(interner Interner, small bool, payload []byte) ([]byte, error) {
	if small {
		return []byte(inlineString(payload)), nil
	}
	return d.resolveHash(interner, payload)
}

func (d *Decoder) decodeTypedLiteral(interner Interner, tag byte, enc EncodedTerm) (rdf.Term, error) {
	value, err := d.resolveSlot(interner, tag == tagSmallTypedLiteral, enc[1:17])
	if err != nil {
		return nil, fmt.Errorf("store: decode typed literal value: %w", err)
	}
	dtIRI, err := d.resolveHash(interner, enc[17:33])
	if err != nil {
		return nil, fmt.Errorf("store: decode typed literal datatype: %w", err)
	}
	return rdf.NewLiteralWithDatatype(string(value), rdf.NewNamedNode(string(dtIRI))), nil
}

func (d *Decoder) decodeDuration(enc EncodedTerm, datatype *rdf.NamedNode) rdf.Term {
	months := int32(binary.BigEndian.Uint32(enc[1:5])) // #nosec G115
	seconds := math.Float64frombits(binary.BigEndian.Uint64(enc[5:13]))
	lit := rdf.NewDurationLiteral(int64(months), seconds)
	lit.Datatype = datatype
	return lit
}

func (d *Decoder) decodeTripleComponents(interner Interner, enc EncodedTerm) (rdf.Term, rdf.Term, rdf.Term, error) {
	payload, err := d.resolveHash(interner, enc[1:17])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("store: decode triple term: %w", err)
	}
	if len(payload) != 3*EncodedTermSize {
		return nil, nil, nil, fmt.Errorf("store: corrupt triple term payload (len %d)", len(payload))
	}
	var se, pe, oe EncodedTerm
	copy(se[:], payload[0:EncodedTermSize])
	copy(pe[:], payload[EncodedTermSize:2*EncodedTermSize])
	copy(oe[:], payload[2*EncodedTermSize:3*EncodedTermSize])

	s, err := d.DecodeTerm(interner, se)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := d.DecodeTerm(interner, pe)
	if err != nil {
		return nil, nil, nil, err
	}
	o, err := d.DecodeTerm(interner, oe)
	if err != nil {
		return nil, nil, nil, err
	}
	return s, p, o, nil
}

func formatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}
