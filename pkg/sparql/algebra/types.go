package algebra

import "github.com/aleksaelezovic/trigo/pkg/store"

// ComparisonOp is the operator of a Compare expression node.
type ComparisonOp int

const (
	CompareEqual ComparisonOp = iota
	CompareNotEqual
	CompareLess
	CompareLessOrEqual
	CompareGreater
	CompareGreaterOrEqual
)

// ArithmeticOp is the operator of an Arithmetic expression node.
type ArithmeticOp int

const (
	ArithAdd ArithmeticOp = iota
	ArithSubtract
	ArithMultiply
	ArithDivide
)

// Expression is the tagged sum §4.4 compiles into a closure
// Tuple -> Option<EncodedTerm>. Every concrete type below is one shape of
// that sum; expressionNode is unexported so no type outside this package can
// implement Expression by accident.
type Expression interface {
	expressionNode()
}

// Var references the value bound to a slot; unbound yields an error per
// §4.4 (None), not a panic.
type Var struct {
	Slot Slot
}

func (*Var) expressionNode() {}

// Const is a plan-time literal already encoded via C1.
type Const struct {
	Term store.EncodedTerm
}

func (*Const) expressionNode() {}

// And and Or implement three-valued logic (§4.4): an error operand is not
// automatically fatal, since Or short-circuits on a true operand and And on
// a false one before the error is ever observed.
type And struct{ Left, Right Expression }

func (*And) expressionNode() {}

type Or struct{ Left, Right Expression }

func (*Or) expressionNode() {}

// Not negates the EBV of its operand.
type Not struct{ Operand Expression }

func (*Not) expressionNode() {}

// Bound tests whether Slot currently holds a value, independent of Var's
// error-on-unbound behavior.
type Bound struct {
	Slot Slot
}

func (*Bound) expressionNode() {}

// If evaluates Cond's EBV and takes the Then or Else branch.
type If struct {
	Cond, Then, Else Expression
}

func (*If) expressionNode() {}

// Coalesce evaluates Args left to right, returning the first that does not
// error.
type Coalesce struct {
	Args []Expression
}

func (*Coalesce) expressionNode() {}

// SameTerm implements the RDF term-identity comparison (no numeric or
// lexical promotion, unlike Compare with CompareEqual).
type SameTerm struct{ Left, Right Expression }

func (*SameTerm) expressionNode() {}

// Compare implements =, !=, <, <=, >, >= via the SPARQL partial order
// (numeric promotion, date/time ordering, lexicographic strings).
type Compare struct {
	Op          ComparisonOp
	Left, Right Expression
}

func (*Compare) expressionNode() {}

// Arithmetic implements +, -, *, / over the numeric promotion lattice and
// the date/time +/- duration families.
type Arithmetic struct {
	Op          ArithmeticOp
	Left, Right Expression
}

func (*Arithmetic) expressionNode() {}

// UnaryMinus and UnaryPlus implement unary +x / -x on numerics and
// durations.
type UnaryMinus struct{ Operand Expression }

func (*UnaryMinus) expressionNode() {}

type UnaryPlus struct{ Operand Expression }

func (*UnaryPlus) expressionNode() {}

// Exists and NotExists re-evaluate Pattern per input tuple, substituting the
// tuple's current bindings as the pattern's initial binding.
type Exists struct {
	Pattern GraphPattern
}

func (*Exists) expressionNode() {}

type NotExists struct {
	Pattern GraphPattern
}

func (*NotExists) expressionNode() {}

// FunctionCall covers the rest of §4.4's function library (Str, Lang,
// LangMatches, Datatype, Concat, SubStr, StrLen, Replace, UCase, LCase,
// EncodeForUri, StrStarts, StrEnds, Contains, StrBefore, StrAfter, StrLang,
// StrDt, Regex, Iri, BNode, IsIri, IsBlank, IsLiteral, IsNumeric, IsTriple,
// Year..Now, Md5..Sha512, Rand, Uuid, StrUuid, Triple/Subject/Predicate/
// Object, casts, and any IRI-registered custom function) as one node shape
// parameterized by Name rather than one Go type per function, since none of
// these need bespoke evaluation control flow the way And/Or/Exists/If do.
type FunctionCall struct {
	Name string
	Args []Expression
}

func (*FunctionCall) expressionNode() {}

// Cast converts Operand to the xsd type named by Datatype (an IRI string),
// e.g. "http://www.w3.org/2001/XMLSchema#integer".
type Cast struct {
	Datatype string
	Operand  Expression
}

func (*Cast) expressionNode() {}

// Path is the recursive sum of §4.5: Path(term) | Reverse | Sequence |
// Alternative | ZeroOrMore | OneOrMore | ZeroOrOne | NegatedPropertySet(set).
type Path interface {
	pathNode()
}

// PathPredicate is the Path(term) base case: a single predicate IRI.
type PathPredicate struct {
	Predicate store.EncodedTerm
}

func (*PathPredicate) pathNode() {}

type PathReverse struct{ Inner Path }

func (*PathReverse) pathNode() {}

type PathSequence struct{ Left, Right Path }

func (*PathSequence) pathNode() {}

type PathAlternative struct{ Left, Right Path }

func (*PathAlternative) pathNode() {}

type PathZeroOrMore struct{ Inner Path }

func (*PathZeroOrMore) pathNode() {}

type PathOneOrMore struct{ Inner Path }

func (*PathOneOrMore) pathNode() {}

type PathZeroOrOne struct{ Inner Path }

func (*PathZeroOrOne) pathNode() {}

// PathNegatedPropertySet matches one hop whose predicate is not in Set.
type PathNegatedPropertySet struct {
	Set []store.EncodedTerm
}

func (*PathNegatedPropertySet) pathNode() {}

// AggregateKind selects the accumulator a Group node instantiates per
// §4.6's Group(keys, aggregates) contract.
type AggregateKind int

const (
	AggregateCount AggregateKind = iota
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
	AggregateSample
	AggregateGroupConcat
	AggregateCustom
)

// Aggregate describes one accumulator slot of a Group node. Expr is nil for
// COUNT(*). Separator only applies to GroupConcat; CustomName only to
// AggregateCustom.
type Aggregate struct {
	Kind       AggregateKind
	Expr       Expression
	Distinct   bool
	Separator  string
	CustomName string
	Output     Slot
}

// OrderKey is one comparator of an OrderBy node's comparator chain.
type OrderKey struct {
	Expr Expression
	Desc bool
}

// GraphPattern is the tagged sum §4.6 compiles into a closure
// Tuple -> Iterator<Result<Tuple>>.
type GraphPattern interface {
	graphPatternNode()
}

// Values materializes a fixed vector of tuples at plan time.
type Values struct {
	Rows []*Tuple
}

func (*Values) graphPatternNode() {}

// QuadPattern is a scan leaf: each of Subject/Predicate/Object/Graph is
// either a bound term (store.EncodedTerm) or an unbound Slot, routed through
// C3/C2 per §4.2's index table.
type QuadPattern struct {
	Subject, Predicate, Object, Graph PatternTerm
}

func (*QuadPattern) graphPatternNode() {}

// PatternTerm is one position of a QuadPattern: either a bound term or a
// variable slot to bind from the matching quad.
type PatternTerm struct {
	Bound   *store.EncodedTerm
	Slot    Slot
	IsSlot  bool
	AnyName bool // true for the unbound, unnamed "graph" position (no GRAPH clause, default graph)
}

// PathScan is a Path-evaluator leaf: a property path between two pattern
// positions within a (possibly unbound) graph, per §4.5.
type PathScan struct {
	Subject, Object, Graph PatternTerm
	Path                   Path
}

func (*PathScan) graphPatternNode() {}

// Join is a hash build-left probe-right equi-join over Keys; an empty Keys
// is a cartesian product (§4.6).
type Join struct {
	Left, Right GraphPattern
	Keys        []Slot
}

func (*Join) graphPatternNode() {}

// LeftJoin is OPTIONAL: build Right, probe Left, keep the filter-passing
// combinations or the lone left tuple if none pass.
type LeftJoin struct {
	Left, Right GraphPattern
	Keys        []Slot
	Filter      Expression // nil means "no filter, always true"
}

func (*LeftJoin) graphPatternNode() {}

// Minus is SPARQL MINUS: build Right, emit Left tuples not
// compatible-and-not-disjoint with any Right tuple.
type Minus struct {
	Left, Right GraphPattern
}

func (*Minus) graphPatternNode() {}

// Union re-runs every child with the same input tuple and concatenates.
type Union struct {
	Children []GraphPattern
}

func (*Union) graphPatternNode() {}

// Lateral is a dependent join: for each Left tuple, Right is evaluated with
// that tuple as its initial binding.
type Lateral struct {
	Left, Right GraphPattern
}

func (*Lateral) graphPatternNode() {}

// ForLoopLeftJoin is the Lateral(LeftJoin(EmptySingleton, right)) special
// case called out in §4.6: for each left tuple, yield every expression-
// passing combination with Right, or the lone left tuple if none pass.
type ForLoopLeftJoin struct {
	Left, Right GraphPattern
	Filter      Expression
}

func (*ForLoopLeftJoin) graphPatternNode() {}

// Filter passes child tuples whose Expr EBV is true; an Expr error is
// equivalent to false.
type Filter struct {
	Child GraphPattern
	Expr  Expression
}

func (*Filter) graphPatternNode() {}

// Extend implements BIND: binds Slot to Expr's value, or leaves it unbound
// on error.
type Extend struct {
	Child GraphPattern
	Slot  Slot
	Expr  Expression
}

func (*Extend) graphPatternNode() {}

// OrderBy fully materializes Child (errors flushed first), then stable
// sorts by Keys using the total SPARQL order.
type OrderBy struct {
	Child GraphPattern
	Keys  []OrderKey
}

func (*OrderBy) graphPatternNode() {}

// Distinct hash-deduplicates the entire stream.
type Distinct struct{ Child GraphPattern }

func (*Distinct) graphPatternNode() {}

// Reduced removes only consecutive duplicates.
type Reduced struct{ Child GraphPattern }

func (*Reduced) graphPatternNode() {}

// Slice implements LIMIT/OFFSET: skip Start then take Length tuples.
// HasLength false means unbounded; Length applies only when HasLength is true.
type Slice struct {
	Child     GraphPattern
	Start     int
	Length    int
	HasLength bool
}

func (*Slice) graphPatternNode() {}

// Project remaps Child's output onto Vars, rejecting tuples that would need
// conflicting bindings on a reused slot.
type Project struct {
	Child GraphPattern
	Vars  []Slot
}

func (*Project) graphPatternNode() {}

// Group buckets Child by Keys and emits one tuple per bucket with the key
// slots and each Aggregate's Output slot bound. Zero Keys always yields
// exactly one output tuple, even over an empty input.
type Group struct {
	Child      GraphPattern
	Keys       []Slot
	Aggregates []Aggregate
}

func (*Group) graphPatternNode() {}

// Service dispatches Inner to the SERVICE handler registered for Name;
// Silent downgrades any resulting error to "pass the input tuple through
// unchanged".
type Service struct {
	Name   Expression
	Inner  GraphPattern
	Silent bool
}

func (*Service) graphPatternNode() {}

// Update is the tagged sum §4.7 drives directly against a QuadStore
// transaction, bypassing GraphPatternEvaluator except for Modify's WHERE
// clause.
type Update interface {
	updateNode()
}

// QuadTemplate is one quad of an update's data block or template, where any
// position may be a bound term or (for Modify's templates) a variable slot
// to substitute per solution.
type QuadTemplate struct {
	Subject, Predicate, Object, Graph PatternTerm
}

// InsertData inserts each ground quad of Quads (§4.7: blank nodes in the
// literal form share identity per-operation).
type InsertData struct {
	Quads []QuadTemplate
}

func (*InsertData) updateNode() {}

// DeleteData removes each ground quad of Quads; blank nodes are illegal
// here per SPARQL.
type DeleteData struct {
	Quads []QuadTemplate
}

func (*DeleteData) updateNode() {}

// Modify is DELETE { Delete } INSERT { Insert } WHERE { Where }: for each
// solution of Where, delete every fully-bound pattern of Delete, then
// insert every pattern of Insert (blank nodes refreshed per solution).
// Deletes apply before inserts, per §4.7.
type Modify struct {
	Delete        []QuadTemplate
	Insert        []QuadTemplate
	Where         GraphPattern
	DefaultGraphs []store.EncodedTerm
	NamedGraphs   []store.EncodedTerm
}

func (*Modify) updateNode() {}

// Load fetches IRI and streams its parsed triples into Into (nil means the
// default graph).
type Load struct {
	IRI    string
	Into   *store.EncodedTerm
	Silent bool
}

func (*Load) updateNode() {}

// Clear empties a graph (or Graph == nil for DEFAULT, or All for
// NAMED/ALL) without removing it from the graphs set.
type Clear struct {
	Graph  *store.EncodedTerm
	All    bool
	Named  bool
	Silent bool
}

func (*Clear) updateNode() {}

// Create declares Graph in the graphs set; an existing graph without
// Silent is an error.
type Create struct {
	Graph  store.EncodedTerm
	Silent bool
}

func (*Create) updateNode() {}

// Drop removes Graph (or Graph == nil for DEFAULT, or All for NAMED/ALL)
// from the graphs set; an absent graph without Silent is an error.
type Drop struct {
	Graph  *store.EncodedTerm
	All    bool
	Named  bool
	Silent bool
}

func (*Drop) updateNode() {}
