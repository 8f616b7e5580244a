package expr

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"math"
	"math/rand"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/store"
)

// regexSizeLimit is §4.4's compiled-pattern size cap; Go's RE2 engine
// doesn't expose a byte-size knob the way Rust's regex crate does, so this
// is enforced on the source pattern length as the closest observable proxy.
const regexSizeLimit = 1_000_000

func (e *Evaluator) evalFunctionCall(n *algebra.FunctionCall, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	name := strings.ToUpper(n.Name)
	args := n.Args

	switch name {
	case "BOUND":
		return e.fnBound(args, tuple)
	case "ISIRI", "ISURI":
		return e.fnIsType(args, tuple, func(t rdf.Term) bool { _, ok := t.(*rdf.NamedNode); return ok })
	case "ISBLANK":
		return e.fnIsType(args, tuple, func(t rdf.Term) bool { _, ok := t.(*rdf.BlankNode); return ok })
	case "ISLITERAL":
		return e.fnIsType(args, tuple, func(t rdf.Term) bool { _, ok := t.(*rdf.Literal); return ok })
	case "ISTRIPLE":
		return e.fnIsType(args, tuple, func(t rdf.Term) bool { _, ok := t.(*rdf.QuotedTriple); return ok })
	case "ISNUMERIC":
		return e.fnIsNumeric(args, tuple)
	case "STR":
		return e.fn1(args, tuple, e.strFn)
	case "LANG":
		return e.fn1(args, tuple, e.langFn)
	case "DATATYPE":
		return e.fn1(args, tuple, e.datatypeFn)
	case "STRLEN":
		return e.fnStrLen(args, tuple)
	case "SUBSTR":
		return e.fnSubStr(args, tuple)
	case "UCASE":
		return e.fnCase(args, tuple, strings.ToUpper)
	case "LCASE":
		return e.fnCase(args, tuple, strings.ToLower)
	case "CONCAT":
		return e.fnConcat(args, tuple)
	case "CONTAINS":
		return e.fnStringPredicate(args, tuple, strings.Contains)
	case "STRSTARTS":
		return e.fnStringPredicate(args, tuple, strings.HasPrefix)
	case "STRENDS":
		return e.fnStringPredicate(args, tuple, strings.HasSuffix)
	case "STRBEFORE":
		return e.fnStrBeforeAfter(args, tuple, true)
	case "STRAFTER":
		return e.fnStrBeforeAfter(args, tuple, false)
	case "STRLANG":
		return e.fnStrLang(args, tuple)
	case "STRDT":
		return e.fnStrDt(args, tuple)
	case "ENCODE_FOR_URI":
		return e.fnEncodeForURI(args, tuple)
	case "REGEX":
		return e.fnRegex(args, tuple)
	case "REPLACE":
		return e.fnReplace(args, tuple)
	case "LANGMATCHES":
		return e.fnLangMatches(args, tuple)
	case "SAMETERM":
		return e.evalSameTerm(&algebra.SameTerm{Left: args[0], Right: args[1]}, tuple)
	case "IRI", "URI":
		return e.fnIri(args, tuple)
	case "BNODE":
		return e.fnBNode(args, tuple)
	case "ABS":
		return e.fnNumeric1(args, tuple, func(n numeric) numeric {
			if n.kind == kindInteger {
				if n.ival < 0 {
					n.ival = -n.ival
				}
				return n
			}
			n.fval = math.Abs(n.fval)
			return n
		})
	case "CEIL":
		return e.fnRound(args, tuple, math.Ceil)
	case "FLOOR":
		return e.fnRound(args, tuple, math.Floor)
	case "ROUND":
		return e.fnRound(args, tuple, math.Round)
	case "YEAR":
		return e.fnTemporalField(args, tuple, func(t time.Time) int64 { return int64(t.Year()) })
	case "MONTH":
		return e.fnTemporalField(args, tuple, func(t time.Time) int64 { return int64(t.Month()) })
	case "DAY":
		return e.fnTemporalField(args, tuple, func(t time.Time) int64 { return int64(t.Day()) })
	case "HOURS":
		return e.fnTemporalField(args, tuple, func(t time.Time) int64 { return int64(t.Hour()) })
	case "MINUTES":
		return e.fnTemporalField(args, tuple, func(t time.Time) int64 { return int64(t.Minute()) })
	case "SECONDS":
		return e.fnSecondsField(args, tuple)
	case "TIMEZONE":
		return e.fnTimezone(args, tuple)
	case "TZ":
		return e.fnTz(args, tuple)
	case "NOW":
		return e.encode(rdf.NewDateTimeLiteral(e.now))
	case "MD5":
		return e.fnHash(args, tuple, md5.New())
	case "SHA1":
		return e.fnHash(args, tuple, sha1.New())
	case "SHA256":
		return e.fnHash(args, tuple, sha256.New())
	case "SHA384":
		return e.fnHash(args, tuple, sha512.New384())
	case "SHA512":
		return e.fnHash(args, tuple, sha512.New())
	case "RAND":
		return e.encode(rdf.NewDoubleLiteral(rand.Float64()))
	case "UUID":
		return e.encode(rdf.NewNamedNode("urn:uuid:" + uuid.New().String()))
	case "STRUUID":
		return e.encode(rdf.NewLiteral(uuid.New().String()))
	case "TRIPLE":
		return e.fnTriple(args, tuple)
	case "SUBJECT":
		return e.fnTripleComponent(args, tuple, func(q *rdf.QuotedTriple) rdf.Term { return q.Subject })
	case "PREDICATE":
		return e.fnTripleComponent(args, tuple, func(q *rdf.QuotedTriple) rdf.Term { return q.Predicate })
	case "OBJECT":
		return e.fnTripleComponent(args, tuple, func(q *rdf.QuotedTriple) rdf.Term { return q.Object })
	default:
		if fn, ok := e.custom[n.Name]; ok {
			return e.fnCustom(fn, args, tuple)
		}
		return store.EncodedTerm{}, exprErrorf("unsupported function: %s", n.Name)
	}
}

func (e *Evaluator) evalCast(n *algebra.Cast, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	enc, err := e.Eval(n.Operand, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}

	var value string
	switch t := term.(type) {
	case *rdf.Literal:
		value = t.Value
	case *rdf.NamedNode:
		value = t.IRI
	default:
		return store.EncodedTerm{}, exprErrorf("cannot cast term of type %T to %s", term, n.Datatype)
	}

	switch n.Datatype {
	case rdf.XSDBoolean.IRI:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1":
			return e.encodeBool(true)
		case "false", "0":
			return e.encodeBool(false)
		default:
			if lit, ok := term.(*rdf.Literal); ok {
				if n, isNum, _ := e.literalNumeric(lit); isNum {
					return e.encodeBool(!n.isZero())
				}
			}
			return store.EncodedTerm{}, exprErrorf("cannot cast %q to xsd:boolean", value)
		}
	case rdf.XSDInteger.IRI:
		var iv int64
		if lit, ok := term.(*rdf.Literal); ok {
			if n, isNum, _ := e.literalNumeric(lit); isNum {
				return e.encodeNumeric(numeric{kind: kindInteger, ival: int64(n.float())})
			}
		}
		if _, err := parseInt(value, &iv); err != nil {
			return store.EncodedTerm{}, exprErrorf("cannot cast %q to xsd:integer", value)
		}
		return e.encodeNumeric(numeric{kind: kindInteger, ival: iv})
	case rdf.XSDDecimal.IRI, rdf.XSDFloat.IRI, rdf.XSDDouble.IRI:
		fv, err := parseFloat(value)
		if err != nil {
			if lit, ok := term.(*rdf.Literal); ok {
				if n, isNum, _ := e.literalNumeric(lit); isNum {
					fv = n.float()
				} else {
					return store.EncodedTerm{}, exprErrorf("cannot cast %q to %s", value, n.Datatype)
				}
			} else {
				return store.EncodedTerm{}, exprErrorf("cannot cast %q to %s", value, n.Datatype)
			}
		}
		kind := kindDouble
		if n.Datatype == rdf.XSDDecimal.IRI {
			kind = kindDecimal
		} else if n.Datatype == rdf.XSDFloat.IRI {
			kind = kindFloat
		}
		return e.encodeNumeric(numeric{kind: kind, fval: fv})
	case rdf.XSDString.IRI:
		return e.encode(rdf.NewLiteral(value))
	default:
		return e.encode(rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(n.Datatype)))
	}
}

// fn1 adapts a single-argument decode-then-transform function.
func (e *Evaluator) fn1(args []algebra.Expression, tuple *algebra.Tuple, f func(rdf.Term) (rdf.Term, error)) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 1 argument, got %d", len(args))
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	result, err := f(term)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encode(result)
}

func (e *Evaluator) strFn(term rdf.Term) (rdf.Term, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return rdf.NewLiteral(t.IRI), nil
	case *rdf.Literal:
		return rdf.NewLiteral(t.Value), nil
	default:
		return nil, exprErrorf("STR cannot be applied to %T", term)
	}
}

func (e *Evaluator) langFn(term rdf.Term) (rdf.Term, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return nil, exprErrorf("LANG requires a literal argument")
	}
	return rdf.NewLiteral(lit.Language), nil
}

func (e *Evaluator) datatypeFn(term rdf.Term) (rdf.Term, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return nil, exprErrorf("DATATYPE requires a literal argument")
	}
	if lit.Language != "" {
		return rdf.RDFDirLangString, nil
	}
	if lit.Datatype != nil {
		return lit.Datatype, nil
	}
	return rdf.XSDString, nil
}

func (e *Evaluator) fnBound(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("BOUND requires exactly 1 argument")
	}
	v, ok := args[0].(*algebra.Var)
	if !ok {
		return store.EncodedTerm{}, exprErrorf("BOUND requires a variable argument")
	}
	_, bound := tuple.Get(v.Slot)
	return e.encodeBool(bound)
}

func (e *Evaluator) fnIsType(args []algebra.Expression, tuple *algebra.Tuple, pred func(rdf.Term) bool) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeBool(pred(term))
}

func (e *Evaluator) fnIsNumeric(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("ISNUMERIC requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return e.encodeBool(false)
	}
	_, isNum, _ := e.literalNumeric(lit)
	return e.encodeBool(isNum)
}

func (e *Evaluator) fnStrLen(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("STRLEN requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	s, err := e.stringOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeNumeric(numeric{kind: kindInteger, ival: int64(len([]rune(s)))})
}

func (e *Evaluator) fnSubStr(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) < 2 || len(args) > 3 {
		return store.EncodedTerm{}, exprErrorf("SUBSTR requires 2 or 3 arguments")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	lit, _ := term.(*rdf.Literal)
	str, err := stringValue(term)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	runes := []rune(str)

	startEnc, err := e.Eval(args[1], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	startNum, err := e.numericOf(startEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	// fn:substring's positions p satisfy start <= p < start+length, so end
	// must be computed from the unclamped start (1-based position minus 1,
	// which can be negative) before either bound is clamped into
	// [0, len(runes)] -- clamping start first would widen the window for a
	// negative start with a length argument (SUBSTR("hello", -1, 3) must
	// yield "h", not "hel").
	start := int(math.Round(startNum.float())) - 1

	end := len(runes)
	if len(args) == 3 {
		lenEnc, err := e.Eval(args[2], tuple)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		lenNum, err := e.numericOf(lenEnc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		end = start + int(math.Round(lenNum.float()))
	}

	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		start = len(runes)
	}
	if end > len(runes) {
		end = len(runes)
	}
	if end < start {
		end = start
	}

	result := string(runes[start:end])
	if lit != nil && lit.Language != "" {
		return e.encode(rdf.NewLiteralWithLanguage(result, lit.Language))
	}
	return e.encode(rdf.NewLiteral(result))
}

func (e *Evaluator) fnCase(args []algebra.Expression, tuple *algebra.Tuple, transform func(string) string) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return store.EncodedTerm{}, exprErrorf("function requires a string-like literal")
	}
	result := rdf.NewLiteral(transform(lit.Value))
	if lit.Language != "" {
		result = rdf.NewLiteralWithLanguage(transform(lit.Value), lit.Language)
	} else if lit.Datatype != nil && lit.Datatype.IRI != rdf.XSDString.IRI {
		result = rdf.NewLiteralWithDatatype(transform(lit.Value), lit.Datatype)
	}
	return e.encode(result)
}

func (e *Evaluator) fnConcat(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) == 0 {
		return e.encode(rdf.NewLiteral(""))
	}
	var b strings.Builder
	commonLang := ""
	first := true
	for _, arg := range args {
		enc, err := e.Eval(arg, tuple)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		term, err := e.decode(enc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		s, err := stringValue(term)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		b.WriteString(s)

		lang := ""
		if lit, ok := term.(*rdf.Literal); ok {
			lang = lit.Language
		}
		if first {
			commonLang, first = lang, false
		} else if commonLang != lang {
			commonLang = ""
		}
	}
	if commonLang != "" {
		return e.encode(rdf.NewLiteralWithLanguage(b.String(), commonLang))
	}
	return e.encode(rdf.NewLiteral(b.String()))
}

func (e *Evaluator) fnStringPredicate(args []algebra.Expression, tuple *algebra.Tuple, pred func(a, b string) bool) (store.EncodedTerm, error) {
	if len(args) != 2 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 2 arguments")
	}
	a, b, _, _, err := e.twoStringArgs(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeBool(pred(a, b))
}

func (e *Evaluator) twoStringArgs(args []algebra.Expression, tuple *algebra.Tuple) (a, b string, la, lb *rdf.Literal, err error) {
	encA, err := e.Eval(args[0], tuple)
	if err != nil {
		return "", "", nil, nil, err
	}
	encB, err := e.Eval(args[1], tuple)
	if err != nil {
		return "", "", nil, nil, err
	}
	termA, err := e.decode(encA)
	if err != nil {
		return "", "", nil, nil, err
	}
	termB, err := e.decode(encB)
	if err != nil {
		return "", "", nil, nil, err
	}
	a, err = stringValue(termA)
	if err != nil {
		return "", "", nil, nil, err
	}
	b, err = stringValue(termB)
	if err != nil {
		return "", "", nil, nil, err
	}
	la, _ = termA.(*rdf.Literal)
	lb, _ = termB.(*rdf.Literal)
	if la != nil && lb != nil && !langCompatible(la, lb) {
		return "", "", nil, nil, exprErrorf("incompatible language tags for string argument")
	}
	return a, b, la, lb, nil
}

func (e *Evaluator) fnStrBeforeAfter(args []algebra.Expression, tuple *algebra.Tuple, before bool) (store.EncodedTerm, error) {
	if len(args) != 2 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 2 arguments")
	}
	a, b, la, _, err := e.twoStringArgs(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	idx := strings.Index(a, b)
	if idx < 0 {
		return e.encode(rdf.NewLiteral(""))
	}
	var result string
	if before {
		result = a[:idx]
	} else {
		result = a[idx+len(b):]
	}
	if la != nil && la.Language != "" {
		return e.encode(rdf.NewLiteralWithLanguage(result, la.Language))
	}
	return e.encode(rdf.NewLiteral(result))
}

func (e *Evaluator) fnStrLang(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 2 {
		return store.EncodedTerm{}, exprErrorf("STRLANG requires exactly 2 arguments")
	}
	val, lang, _, _, err := e.twoStringArgs(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encode(rdf.NewLiteralWithLanguage(val, lang))
}

func (e *Evaluator) fnStrDt(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 2 {
		return store.EncodedTerm{}, exprErrorf("STRDT requires exactly 2 arguments")
	}
	valEnc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	valTerm, err := e.decode(valEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	val, err := stringValue(valTerm)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	dtEnc, err := e.Eval(args[1], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	dtTerm, err := e.decode(dtEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	dt, ok := dtTerm.(*rdf.NamedNode)
	if !ok {
		return store.EncodedTerm{}, exprErrorf("STRDT requires an IRI datatype argument")
	}
	return e.encode(rdf.NewLiteralWithDatatype(val, dt))
}

func (e *Evaluator) fnEncodeForURI(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("ENCODE_FOR_URI requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	s, err := e.stringOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encode(rdf.NewLiteral(url.QueryEscape(s)))
}

// regexFlags translates SPARQL's i/m/s/x/q flags into a Go RE2 pattern
// prefix, mirroring the teacher's evaluateRegex.
func regexFlags(pattern, flags string) (string, error) {
	if flags == "" {
		return pattern, nil
	}
	var quote bool
	var prefix strings.Builder
	prefix.WriteString("(?")
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'x':
			prefix.WriteRune(f)
		case 'q':
			quote = true
		default:
			return "", exprErrorf("unsupported REGEX flag: %c", f)
		}
	}
	prefix.WriteByte(')')
	if quote {
		pattern = regexp.QuoteMeta(pattern)
	}
	if prefix.Len() > 2 {
		pattern = prefix.String() + pattern
	}
	return pattern, nil
}

func (e *Evaluator) fnRegex(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) < 2 || len(args) > 3 {
		return store.EncodedTerm{}, exprErrorf("REGEX requires 2 or 3 arguments")
	}
	re, text, err := e.compileRegexArgs(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeBool(re.MatchString(text))
}

func (e *Evaluator) compileRegexArgs(args []algebra.Expression, tuple *algebra.Tuple) (*regexp.Regexp, string, error) {
	textEnc, err := e.Eval(args[0], tuple)
	if err != nil {
		return nil, "", err
	}
	text, err := e.stringOf(textEnc)
	if err != nil {
		return nil, "", err
	}
	patEnc, err := e.Eval(args[1], tuple)
	if err != nil {
		return nil, "", err
	}
	pattern, err := e.stringOf(patEnc)
	if err != nil {
		return nil, "", err
	}
	flags := ""
	if len(args) == 3 {
		flagsEnc, err := e.Eval(args[2], tuple)
		if err != nil {
			return nil, "", err
		}
		flags, err = e.stringOf(flagsEnc)
		if err != nil {
			return nil, "", err
		}
	}
	if len(pattern) > regexSizeLimit {
		return nil, "", exprErrorf("REGEX pattern exceeds size limit")
	}
	compiled, err := regexFlags(pattern, flags)
	if err != nil {
		return nil, "", err
	}
	re, err := e.compileRegexCached(compiled)
	if err != nil {
		return nil, "", exprErrorf("invalid regex pattern: %v", err)
	}
	return re, text, nil
}

func (e *Evaluator) fnReplace(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) < 3 || len(args) > 4 {
		return store.EncodedTerm{}, exprErrorf("REPLACE requires 3 or 4 arguments")
	}
	textEnc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	text, err := e.stringOf(textEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	patEnc, err := e.Eval(args[1], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	pattern, err := e.stringOf(patEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	replEnc, err := e.Eval(args[2], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	repl, err := e.stringOf(replEnc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	flags := ""
	if len(args) == 4 {
		flagsEnc, err := e.Eval(args[3], tuple)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		flags, err = e.stringOf(flagsEnc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
	}
	compiled, err := regexFlags(pattern, flags)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	re, err := e.compileRegexCached(compiled)
	if err != nil {
		return store.EncodedTerm{}, exprErrorf("invalid regex pattern: %v", err)
	}
	goRepl := convertXPathReplacement(repl)
	return e.encode(rdf.NewLiteral(re.ReplaceAllString(text, goRepl)))
}

// convertXPathReplacement rewrites XPath-style $1 backreferences into Go's
// ${1} form.
func convertXPathReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		if repl[i] == '$' && i+1 < len(repl) && repl[i+1] >= '0' && repl[i+1] <= '9' {
			j := i + 1
			for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
			continue
		}
		b.WriteByte(repl[i])
	}
	return b.String()
}

// fnLangMatches implements BCP-47 range matching per §4.4: "*" matches any
// non-empty tag, otherwise a case-insensitive exact or prefix-with-hyphen
// match. language.Parse canonicalizes both operands first so that casing
// and subtag ordering quirks in the lexical form don't break an otherwise
// valid match, same spirit as the teacher's strings.ToLower normalization
// but grounded on a real BCP-47 parser instead of naive casing.
func (e *Evaluator) fnLangMatches(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 2 {
		return store.EncodedTerm{}, exprErrorf("LANGMATCHES requires exactly 2 arguments")
	}
	tag, langRange, _, _, err := e.twoStringArgs(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if langRange == "*" {
		return e.encodeBool(tag != "")
	}
	tag = canonicalLangTag(tag)
	langRange = canonicalLangTag(langRange)
	if tag == langRange {
		return e.encodeBool(true)
	}
	return e.encodeBool(strings.HasPrefix(tag, langRange+"-"))
}

func canonicalLangTag(tag string) string {
	if tag == "" {
		return ""
	}
	if parsed, err := language.Parse(tag); err == nil {
		return strings.ToLower(parsed.String())
	}
	return strings.ToLower(tag)
}

func (e *Evaluator) fnIri(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("IRI requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	var raw string
	switch t := term.(type) {
	case *rdf.NamedNode:
		raw = t.IRI
	case *rdf.Literal:
		raw = t.Value
	default:
		return store.EncodedTerm{}, exprErrorf("IRI requires an IRI or string argument")
	}
	resolved, err := resolveIRI(e.baseIRI, raw)
	if err != nil {
		return store.EncodedTerm{}, exprErrorf("IRI: %v", err)
	}
	return e.encode(rdf.NewNamedNode(resolved))
}

func (e *Evaluator) fnBNode(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) == 0 {
		return e.encode(rdf.NewBlankNode(uuid.New().String()))
	}
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("BNODE requires 0 or 1 arguments")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	seed, err := e.stringOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	id, ok := e.bnodes[seed]
	if !ok {
		id = uuid.New().String()
		e.bnodes[seed] = id
	}
	return e.encode(rdf.NewBlankNode(id))
}

func (e *Evaluator) fnNumeric1(args []algebra.Expression, tuple *algebra.Tuple, f func(numeric) numeric) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	n, err := e.numericOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeNumeric(f(n))
}

func (e *Evaluator) fnRound(args []algebra.Expression, tuple *algebra.Tuple, op func(float64) float64) (store.EncodedTerm, error) {
	return e.fnNumeric1(args, tuple, func(n numeric) numeric {
		if n.kind == kindInteger {
			return n
		}
		return numeric{kind: n.kind, fval: op(n.fval)}
	})
}

func (e *Evaluator) fnTemporalField(args []algebra.Expression, tuple *algebra.Tuple, f func(time.Time) int64) (store.EncodedTerm, error) {
	t, _, err := e.temporalOf(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encodeNumeric(numeric{kind: kindInteger, ival: f(t)})
}

func (e *Evaluator) fnSecondsField(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	t, _, err := e.temporalOf(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	sec := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return e.encodeNumeric(numeric{kind: kindDecimal, fval: sec})
}

// fnTimezone implements TIMEZONE (fn:timezone-from-dateTime): it errors
// when the argument has no timezone offset, matching
// the source's Option-returning (None-on-missing-offset) behavior rather
// than fabricating a zero duration.
func (e *Evaluator) fnTimezone(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	t, hasTZ, err := e.temporalOf(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if !hasTZ {
		return store.EncodedTerm{}, exprErrorf("TIMEZONE requires an argument with a timezone offset")
	}
	_, offset := t.Zone()
	return e.encode(rdf.NewDurationLiteral(0, float64(offset)))
}

// fnTz returns "" when the argument has no timezone offset, per spec.md
// §9's Open Question decision -- unlike TIMEZONE, TZ never errors on this.
func (e *Evaluator) fnTz(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	t, hasTZ, err := e.temporalOf(args, tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	if !hasTZ {
		return e.encode(rdf.NewLiteral(""))
	}
	_, offset := t.Zone()
	if offset == 0 {
		return e.encode(rdf.NewLiteral("Z"))
	}
	return e.encode(rdf.NewLiteral(t.Format("Z07:00")))
}

func (e *Evaluator) temporalOf(args []algebra.Expression, tuple *algebra.Tuple) (time.Time, bool, error) {
	if len(args) != 1 {
		return time.Time{}, false, exprErrorf("function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return time.Time{}, false, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return time.Time{}, false, err
	}
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return time.Time{}, false, exprErrorf("function requires a date/time literal")
	}
	t, err := parseXSDInstant(lit.Value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, xsdInstantHasTimezone(lit.Value), nil
}

func (e *Evaluator) fnHash(args []algebra.Expression, tuple *algebra.Tuple, h interface{ Write([]byte) (int, error) }) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("hash function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	s, err := e.stringOf(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	h.Write([]byte(s))
	sum, ok := h.(interface{ Sum([]byte) []byte })
	if !ok {
		return store.EncodedTerm{}, exprErrorf("hash function: unexpected hasher type")
	}
	return e.encode(rdf.NewLiteral(hex.EncodeToString(sum.Sum(nil))))
}

func (e *Evaluator) fnTriple(args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	if len(args) != 3 {
		return store.EncodedTerm{}, exprErrorf("TRIPLE requires exactly 3 arguments")
	}
	var terms [3]rdf.Term
	for i, arg := range args {
		enc, err := e.Eval(arg, tuple)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		term, err := e.decode(enc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		terms[i] = term
	}
	qt, err := rdf.NewQuotedTriple(terms[0], terms[1], terms[2])
	if err != nil {
		return store.EncodedTerm{}, exprErrorf("TRIPLE: %v", err)
	}
	return e.encode(qt)
}

func (e *Evaluator) fnTripleComponent(args []algebra.Expression, tuple *algebra.Tuple, pick func(*rdf.QuotedTriple) rdf.Term) (store.EncodedTerm, error) {
	if len(args) != 1 {
		return store.EncodedTerm{}, exprErrorf("function requires exactly 1 argument")
	}
	enc, err := e.Eval(args[0], tuple)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	term, err := e.decode(enc)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	qt, ok := term.(*rdf.QuotedTriple)
	if !ok {
		return store.EncodedTerm{}, exprErrorf("function requires a triple term argument")
	}
	return e.encode(pick(qt))
}

func (e *Evaluator) fnCustom(fn CustomFunction, args []algebra.Expression, tuple *algebra.Tuple) (store.EncodedTerm, error) {
	terms := make([]rdf.Term, len(args))
	for i, arg := range args {
		enc, err := e.Eval(arg, tuple)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		term, err := e.decode(enc)
		if err != nil {
			return store.EncodedTerm{}, err
		}
		terms[i] = term
	}
	result, err := fn(terms)
	if err != nil {
		return store.EncodedTerm{}, err
	}
	return e.encode(result)
}

// resolveIRI resolves ref against base per RFC 3986, the way IRI() must
// for relative arguments.
func resolveIRI(base, ref string) (string, error) {
	if base == "" {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
