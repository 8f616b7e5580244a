package store

// Type tags for EncodedTerm. The numbering follows the source implementation's
// binary encoder exactly (named-node/blank-node block, literal block,
// triple-term block, RDF 1.2 direction-tagged language-string block) and must
// never be renumbered: these values are a persisted file format, and on-disk
// indexes sort lexicographically on the encoded bytes.
const (
	tagNamedNode byte = 1

	tagNumericBlankNode byte = 8
	tagSmallBlankNode   byte = 9
	tagBigBlankNode      byte = 10

	tagSmallStringLiteral byte = 16
	tagBigStringLiteral   byte = 17

	tagSmallSmallLangStringLiteral byte = 20
	tagSmallBigLangStringLiteral   byte = 21
	tagBigSmallLangStringLiteral   byte = 22
	tagBigBigLangStringLiteral     byte = 23

	tagSmallTypedLiteral byte = 24
	tagBigTypedLiteral   byte = 25

	tagBooleanLiteralTrue  byte = 28
	tagBooleanLiteralFalse byte = 29

	tagFloatLiteral   byte = 30
	tagDoubleLiteral  byte = 31
	tagIntegerLiteral byte = 32
	tagDecimalLiteral byte = 33

	tagDateTimeLiteral  byte = 34
	tagTimeLiteral      byte = 35
	tagDateLiteral      byte = 36
	tagGYearMonthLiteral byte = 37
	tagGYearLiteral      byte = 38
	tagGMonthDayLiteral  byte = 39
	tagGDayLiteral       byte = 40
	tagGMonthLiteral     byte = 41

	tagDurationLiteral          byte = 42
	tagYearMonthDurationLiteral byte = 43
	tagDayTimeDurationLiteral   byte = 44

	tagDefaultGraph byte = 47

	tagTripleTerm byte = 48 // RDF-star / RDF 1.2 "triple term" (<<( s p o )>>)
	tagTriple     byte = 49 // quoted triple used as a term (<< s p o >>)

	// RDF 1.2 base-direction language strings: 8 combinations of
	// {ltr,rtl} x {small,big value} x {small,big language tag}.
	tagLTRSmallSmallDirLangString byte = 56
	tagLTRSmallBigDirLangString   byte = 57
	tagLTRBigSmallDirLangString   byte = 58
	tagLTRBigBigDirLangString     byte = 59
	tagRTLSmallSmallDirLangString byte = 60
	tagRTLSmallBigDirLangString   byte = 61
	tagRTLBigSmallDirLangString   byte = 62
	tagRTLBigBigDirLangString     byte = 63
)

// inlineLimit is the maximum number of bytes a string payload may occupy
// inline in an EncodedTerm before it is hashed and stored in the interner.
const inlineLimit = 16

// EncodedTermSize is the fixed wire size of an EncodedTerm: one tag byte
// plus up to two 16-byte hashes (value hash + language/datatype hash for the
// "big" literal variants).
const EncodedTermSize = 1 + 2*16

// EncodedTerm is a tagged, fixed-size binary representation of an RDF term.
// Two encoded terms are equal as byte arrays if and only if the terms they
// represent are RDF-equal, which gives O(1) term equality and lets every
// quad index sort lexicographically on concatenated EncodedTerm bytes.
type EncodedTerm [EncodedTermSize]byte

func (e EncodedTerm) Tag() byte { return e[0] }

// isSmallTag reports whether tag carries its string payload inline
// (no interner lookup needed), among the tags that can be either inline or
// hashed.
func isSmallTag(tag byte) bool {
	switch tag {
	case tagSmallBlankNode, tagSmallStringLiteral,
		tagSmallSmallLangStringLiteral, tagSmallBigLangStringLiteral,
		tagSmallTypedLiteral:
		return true
	}
	return false
}
