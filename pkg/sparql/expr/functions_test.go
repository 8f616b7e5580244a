package expr_test

import (
	"testing"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/algebra"
	"github.com/aleksaelezovic/trigo/pkg/sparql/expr"
)

func call(name string, args ...algebra.Expression) *algebra.FunctionCall {
	return &algebra.FunctionCall{Name: name, Args: args}
}

func TestStrLen(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("STRLEN", constOf(t, interner, rdf.NewLiteral("hello"))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "5" {
		t.Fatalf("STRLEN(\"hello\") = %s, want 5", lit.Value)
	}
}

func TestSubStr(t *testing.T) {
	tests := []struct {
		name   string
		start  int64
		length int64
		has3   bool
		want   string
	}{
		{"no length", 2, 0, false, "ello"},
		{"with length", 2, 3, true, "ell"},
		// fn:substring positions p satisfy start <= p < start+length; for
		// start=-1, length=3 that window is [1, 2), i.e. just "h" -- not
		// "hel", which is what clamping start to 0 before computing end
		// would wrongly produce.
		{"negative start with length", -1, 3, true, "h"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, interner := newFixture(t)
			args := []algebra.Expression{
				constOf(t, interner, rdf.NewLiteral("hello")),
				constOf(t, interner, rdf.NewIntegerLiteral(tc.start)),
			}
			if tc.has3 {
				args = append(args, constOf(t, interner, rdf.NewIntegerLiteral(tc.length)))
			}
			enc, err := ev.Eval(call("SUBSTR", args...), algebra.NewTuple())
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			lit := decodeTerm(t, interner, enc).(*rdf.Literal)
			if lit.Value != tc.want {
				t.Errorf("SUBSTR = %q, want %q", lit.Value, tc.want)
			}
		})
	}
}

func TestConcatPreservesCommonLanguage(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("CONCAT",
		constOf(t, interner, rdf.NewLiteralWithLanguage("foo", "en")),
		constOf(t, interner, rdf.NewLiteralWithLanguage("bar", "en")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "foobar" {
		t.Fatalf("CONCAT value = %q, want foobar", lit.Value)
	}
	if lit.Language != "en" {
		t.Fatalf("CONCAT language = %q, want en", lit.Language)
	}
}

func TestConcatDropsLanguageOnMismatch(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("CONCAT",
		constOf(t, interner, rdf.NewLiteralWithLanguage("foo", "en")),
		constOf(t, interner, rdf.NewLiteralWithLanguage("bar", "fr")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Language != "" {
		t.Fatalf("CONCAT language = %q, want empty on mismatched input languages", lit.Language)
	}
}

func TestStrStartsEndsContains(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		want bool
	}{
		{"starts", "STRSTARTS", true},
		{"ends", "STRENDS", false},
		{"contains", "CONTAINS", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, interner := newFixture(t)
			enc, err := ev.Eval(call(tc.fn,
				constOf(t, interner, rdf.NewLiteral("hello world")),
				constOf(t, interner, rdf.NewLiteral("hello")),
			), algebra.NewTuple())
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			lit := decodeTerm(t, interner, enc).(*rdf.Literal)
			want := "false"
			if tc.want {
				want = "true"
			}
			if lit.Value != want {
				t.Errorf("%s = %s, want %s", tc.fn, lit.Value, want)
			}
		})
	}
}

func TestLangMatchesWildcard(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("LANGMATCHES",
		constOf(t, interner, rdf.NewLiteral("en-US")),
		constOf(t, interner, rdf.NewLiteral("*")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "true" {
		t.Fatalf("LANGMATCHES(en-US, *) = %s, want true", lit.Value)
	}
}

func TestLangMatchesPrefix(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("LANGMATCHES",
		constOf(t, interner, rdf.NewLiteral("en-US")),
		constOf(t, interner, rdf.NewLiteral("en")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "true" {
		t.Fatalf("LANGMATCHES(en-US, en) = %s, want true", lit.Value)
	}
}

func TestLangMatchesMismatch(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("LANGMATCHES",
		constOf(t, interner, rdf.NewLiteral("fr")),
		constOf(t, interner, rdf.NewLiteral("en")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "false" {
		t.Fatalf("LANGMATCHES(fr, en) = %s, want false", lit.Value)
	}
}

func TestRegexWithFlags(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("REGEX",
		constOf(t, interner, rdf.NewLiteral("HELLO")),
		constOf(t, interner, rdf.NewLiteral("^hello$")),
		constOf(t, interner, rdf.NewLiteral("i")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "true" {
		t.Fatalf("REGEX with i flag = %s, want true", lit.Value)
	}
}

// TestTemporalFieldsOnFloatingDateTime exercises YEAR/MONTH/DAY/HOURS/
// MINUTES/SECONDS against a timezone-less xsd:dateTime, the exact lexical
// form pkg/store reconstructs for a dateTime written without an offset --
// previously unparseable here, silently returning None on every accessor.
func TestTemporalFieldsOnFloatingDateTime(t *testing.T) {
	floating := rdf.NewLiteralWithDatatype("2024-03-05T13:45:07.25", rdf.XSDDateTime)
	tests := []struct {
		fn   string
		want string
	}{
		{"YEAR", "2024"},
		{"MONTH", "3"},
		{"DAY", "5"},
		{"HOURS", "13"},
		{"MINUTES", "45"},
		{"SECONDS", "7.25"},
	}
	for _, tc := range tests {
		t.Run(tc.fn, func(t *testing.T) {
			ev, interner := newFixture(t)
			enc, err := ev.Eval(call(tc.fn, constOf(t, interner, floating)), algebra.NewTuple())
			if err != nil {
				t.Fatalf("Eval(%s): %v", tc.fn, err)
			}
			lit := decodeTerm(t, interner, enc).(*rdf.Literal)
			if lit.Value != tc.want {
				t.Fatalf("%s(floating dateTime) = %s, want %s", tc.fn, lit.Value, tc.want)
			}
		})
	}
}

func TestTzReturnsEmptyStringForFloatingDateTime(t *testing.T) {
	ev, interner := newFixture(t)
	floating := rdf.NewLiteralWithDatatype("2024-03-05T13:45:07", rdf.XSDDateTime)
	enc, err := ev.Eval(call("TZ", constOf(t, interner, floating)), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval(TZ): %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "" {
		t.Fatalf("TZ(floating dateTime) = %q, want empty string", lit.Value)
	}
}

func TestTzReturnsZForUTCDateTime(t *testing.T) {
	ev, interner := newFixture(t)
	utc := rdf.NewLiteralWithDatatype("2024-03-05T13:45:07Z", rdf.XSDDateTime)
	enc, err := ev.Eval(call("TZ", constOf(t, interner, utc)), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval(TZ): %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "Z" {
		t.Fatalf("TZ(explicit Z dateTime) = %q, want Z", lit.Value)
	}
}

func TestTimezoneErrorsOnFloatingDateTime(t *testing.T) {
	ev, interner := newFixture(t)
	floating := rdf.NewLiteralWithDatatype("2024-03-05T13:45:07", rdf.XSDDateTime)
	if _, err := ev.Eval(call("TIMEZONE", constOf(t, interner, floating)), algebra.NewTuple()); err == nil {
		t.Fatalf("expected TIMEZONE to error on a dateTime with no timezone offset")
	}
}

func TestRegexCacheReturnsSameMatchResultAcrossCalls(t *testing.T) {
	ev, interner := newFixture(t)
	ev.SetRegexCacheSize(1)

	eval := func(text string) string {
		enc, err := ev.Eval(call("REGEX",
			constOf(t, interner, rdf.NewLiteral(text)),
			constOf(t, interner, rdf.NewLiteral("^a+$")),
		), algebra.NewTuple())
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		return decodeTerm(t, interner, enc).(*rdf.Literal).Value
	}

	if got := eval("aaa"); got != "true" {
		t.Fatalf("REGEX(aaa, ^a+$) = %s, want true", got)
	}
	// The second call reuses the cached "^a+$"; the third call's distinct
	// pattern "^b+$" then evicts it (cache size 1) -- exercising both the
	// cache hit and the FIFO eviction path, not just a single compile.
	if got := eval("bbb"); got != "false" {
		t.Fatalf("REGEX(bbb, ^a+$) = %s, want false", got)
	}
	enc, err := ev.Eval(call("REGEX",
		constOf(t, interner, rdf.NewLiteral("aaa")),
		constOf(t, interner, rdf.NewLiteral("^b+$")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := decodeTerm(t, interner, enc).(*rdf.Literal).Value; got != "false" {
		t.Fatalf("REGEX(aaa, ^b+$) = %s, want false", got)
	}
}

func TestReplace(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(call("REPLACE",
		constOf(t, interner, rdf.NewLiteral("abcabc")),
		constOf(t, interner, rdf.NewLiteral("a")),
		constOf(t, interner, rdf.NewLiteral("X")),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "XbcXbc" {
		t.Fatalf("REPLACE = %q, want XbcXbc", lit.Value)
	}
}

func TestIsTypeFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		term rdf.Term
		want bool
	}{
		{"ISIRI true", "ISIRI", rdf.NewNamedNode("http://example.org/x"), true},
		{"ISIRI false", "ISIRI", rdf.NewLiteral("x"), false},
		{"ISBLANK true", "ISBLANK", rdf.NewBlankNode("b1"), true},
		{"ISLITERAL true", "ISLITERAL", rdf.NewLiteral("x"), true},
		{"ISNUMERIC true", "ISNUMERIC", rdf.NewIntegerLiteral(1), true},
		{"ISNUMERIC false", "ISNUMERIC", rdf.NewLiteral("x"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, interner := newFixture(t)
			enc, err := ev.Eval(call(tc.fn, constOf(t, interner, tc.term)), algebra.NewTuple())
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			lit := decodeTerm(t, interner, enc).(*rdf.Literal)
			want := "false"
			if tc.want {
				want = "true"
			}
			if lit.Value != want {
				t.Errorf("%s = %s, want %s", tc.fn, lit.Value, want)
			}
		})
	}
}

func TestStrAndLangAndDatatype(t *testing.T) {
	ev, interner := newFixture(t)

	strEnc, err := ev.Eval(call("STR", constOf(t, interner, rdf.NewNamedNode("http://example.org/x"))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("STR Eval: %v", err)
	}
	if decodeTerm(t, interner, strEnc).(*rdf.Literal).Value != "http://example.org/x" {
		t.Errorf("STR(iri) did not return the IRI string")
	}

	langEnc, err := ev.Eval(call("LANG", constOf(t, interner, rdf.NewLiteralWithLanguage("x", "en"))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("LANG Eval: %v", err)
	}
	if decodeTerm(t, interner, langEnc).(*rdf.Literal).Value != "en" {
		t.Errorf("LANG did not return the language tag")
	}

	dtEnc, err := ev.Eval(call("DATATYPE", constOf(t, interner, rdf.NewIntegerLiteral(1))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("DATATYPE Eval: %v", err)
	}
	dt, ok := decodeTerm(t, interner, dtEnc).(*rdf.NamedNode)
	if !ok || dt.IRI != rdf.XSDInteger.IRI {
		t.Errorf("DATATYPE(1) = %v, want xsd:integer", dt)
	}
}

func TestAbsAndCeil(t *testing.T) {
	ev, interner := newFixture(t)

	absEnc, err := ev.Eval(call("ABS", constOf(t, interner, rdf.NewIntegerLiteral(-5))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("ABS Eval: %v", err)
	}
	if decodeTerm(t, interner, absEnc).(*rdf.Literal).Value != "5" {
		t.Errorf("ABS(-5) did not return 5")
	}

	ceilEnc, err := ev.Eval(call("CEIL", constOf(t, interner, rdf.NewDoubleLiteral(1.2))), algebra.NewTuple())
	if err != nil {
		t.Fatalf("CEIL Eval: %v", err)
	}
	if decodeTerm(t, interner, ceilEnc).(*rdf.Literal).Value != "2.0" {
		t.Errorf("CEIL(1.2) = %s, want 2.0", decodeTerm(t, interner, ceilEnc).(*rdf.Literal).Value)
	}
}

func TestCastToInteger(t *testing.T) {
	ev, interner := newFixture(t)
	enc, err := ev.Eval(&algebra.Cast{
		Datatype: rdf.XSDInteger.IRI,
		Operand:  constOf(t, interner, rdf.NewLiteral("42")),
	}, algebra.NewTuple())
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	lit := decodeTerm(t, interner, enc).(*rdf.Literal)
	if lit.Value != "42" || lit.Datatype.IRI != rdf.XSDInteger.IRI {
		t.Fatalf("cast to xsd:integer = %v, want 42 xsd:integer", lit)
	}
}

func TestTripleAccessors(t *testing.T) {
	ev, interner := newFixture(t)
	s := rdf.NewNamedNode("http://example.org/s")
	p := rdf.NewNamedNode("http://example.org/p")
	o := rdf.NewLiteral("o")

	tripleEnc, err := ev.Eval(call("TRIPLE",
		constOf(t, interner, s),
		constOf(t, interner, p),
		constOf(t, interner, o),
	), algebra.NewTuple())
	if err != nil {
		t.Fatalf("TRIPLE Eval: %v", err)
	}

	subjEnc, err := ev.Eval(call("SUBJECT", &algebra.Const{Term: tripleEnc}), algebra.NewTuple())
	if err != nil {
		t.Fatalf("SUBJECT Eval: %v", err)
	}
	subj, ok := decodeTerm(t, interner, subjEnc).(*rdf.NamedNode)
	if !ok || subj.IRI != s.IRI {
		t.Fatalf("SUBJECT(TRIPLE(s,p,o)) = %v, want %v", subj, s)
	}
}
