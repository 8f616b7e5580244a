// Package sd builds the SPARQL 1.1 Service Description graph spec section 6
// requires an embedding host be able to publish: a small RDF graph rooted at
// a blank node of type sd:Service, naming the endpoint, the supported query/
// update language(s), result formats, optional features, the default
// entailment regime, and any registered extension functions. Grounded on
// cli/src/service_description.rs's generate_service_description, adapted
// from a one-shot Vec<Triple> into a reusable, host-agnostic builder: this
// package has no HTTP surface of its own (spec.md's Non-goals exclude the
// HTTP/CLI layer), only graph construction.
package sd

import (
	"github.com/google/uuid"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
)

// Kind distinguishes a query endpoint's description from an update
// endpoint's: each advertises a different supportedLanguage and feature
// set (EndpointKind in the original).
type Kind int

const (
	Query Kind = iota
	Update
)

const ns = "http://www.w3.org/ns/sparql-service-description#"

var (
	classService          = rdf.NewNamedNode(ns + "Service")
	propEndpoint           = rdf.NewNamedNode(ns + "endpoint")
	propSupportedLanguage  = rdf.NewNamedNode(ns + "supportedLanguage")
	propResultFormat         = rdf.NewNamedNode(ns + "resultFormat")
	propFeature              = rdf.NewNamedNode(ns + "feature")
	propDefaultEntailment    = rdf.NewNamedNode(ns + "defaultEntailmentRegime")
	propExtensionFunction    = rdf.NewNamedNode(ns + "extensionFunction")
	langSPARQL10Query        = rdf.NewNamedNode(ns + "SPARQL10Query")
	langSPARQL11Query        = rdf.NewNamedNode(ns + "SPARQL11Query")
	langSPARQL11Update       = rdf.NewNamedNode(ns + "SPARQL11Update")
	featureEmptyGraphs       = rdf.NewNamedNode(ns + "EmptyGraphs")
	featureUnionDefaultGraph = rdf.NewNamedNode(ns + "UnionDefaultGraph")
	featureBasicFederated    = rdf.NewNamedNode(ns + "BasicFederatedQuery")
	rdfType                  = rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	entailmentSimple         = rdf.NewNamedNode("http://www.w3.org/ns/entailment/Simple")
)

// resultFormatIRIs are the SPARQL Query Results format IRIs, plus the RDF
// serialization IRIs a CONSTRUCT/DESCRIBE result may take -- the exact set
// spec.md §6 names (generate_service_description's two format loops, folded
// into one since both only ever apply to a Query-kind endpoint).
var resultFormatIRIs = []string{
	"http://www.w3.org/ns/formats/SPARQL_Results_JSON",
	"http://www.w3.org/ns/formats/SPARQL_Results_XML",
	"http://www.w3.org/ns/formats/SPARQL_Results_CSV",
	"http://www.w3.org/ns/formats/SPARQL_Results_TSV",
	"http://www.w3.org/ns/formats/N-Triples",
	"http://www.w3.org/ns/formats/N-Quads",
	"http://www.w3.org/ns/formats/Turtle",
	"http://www.w3.org/ns/formats/TriG",
	"http://www.w3.org/ns/formats/N3",
	"http://www.w3.org/ns/formats/RDF_XML",
}

// Options configures one Describe call; every field is optional and
// defaults to the most conservative description (no endpoint IRI, no
// federation, no union default graph, no extension functions).
type Options struct {
	// EndpointIRI, if non-empty, is asserted via sd:endpoint. The original
	// only asserts this for textual serializations (Turtle/TriG/N3/RDF-XML)
	// since a binary format has nowhere to carry a relative IRI against;
	// that choice belongs to the caller serializing this graph, not here.
	EndpointIRI string

	// UnionDefaultGraph advertises sd:UnionDefaultGraph when the store is
	// configured to merge all named graphs into the default graph for
	// queries with no FROM/FROM NAMED (spec.md §3's dataset configuration).
	UnionDefaultGraph bool

	// FederationAvailable advertises sd:BasicFederatedQuery for a Query
	// endpoint once outbound SERVICE requests are actually reachable (the
	// original gates this on a TLS-enabled build; here it is the caller's
	// own federation-handler availability).
	FederationAvailable bool

	// ExtensionFunctions lists the IRIs of custom functions registered into
	// the expr.Evaluator's CustomFunction table, each asserted via
	// sd:extensionFunction.
	ExtensionFunctions []string
}

// Describe builds the Service Description graph for one endpoint of the
// given kind, as a flat list of ground triples rooted at a single fresh
// blank node.
func Describe(kind Kind, opts Options) []*rdf.Triple {
	root := rdf.NewBlankNode(uuid.New().String())
	var triples []*rdf.Triple
	add := func(p, o rdf.Term) {
		triples = append(triples, rdf.NewTriple(root, p, o))
	}

	add(rdfType, classService)
	if opts.EndpointIRI != "" {
		add(propEndpoint, rdf.NewNamedNode(opts.EndpointIRI))
	}

	switch kind {
	case Query:
		add(propSupportedLanguage, langSPARQL10Query)
		add(propSupportedLanguage, langSPARQL11Query)
		for _, iri := range resultFormatIRIs {
			add(propResultFormat, rdf.NewNamedNode(iri))
		}
		if opts.FederationAvailable {
			add(propFeature, featureBasicFederated)
		}
	case Update:
		add(propSupportedLanguage, langSPARQL11Update)
		add(propFeature, featureEmptyGraphs)
	}

	if opts.UnionDefaultGraph {
		add(propFeature, featureUnionDefaultGraph)
	}

	add(propDefaultEntailment, entailmentSimple)

	for _, fn := range opts.ExtensionFunctions {
		add(propExtensionFunction, rdf.NewNamedNode(fn))
	}

	return triples
}
