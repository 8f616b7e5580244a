package sd_test

import (
	"testing"

	"github.com/aleksaelezovic/trigo/pkg/rdf"
	"github.com/aleksaelezovic/trigo/pkg/sparql/sd"
)

func findTriples(triples []*rdf.Triple, predicate string) []*rdf.Triple {
	var out []*rdf.Triple
	for _, t := range triples {
		if nn, ok := t.Predicate.(*rdf.NamedNode); ok && nn.IRI == predicate {
			out = append(out, t)
		}
	}
	return out
}

func objectIRIs(triples []*rdf.Triple) map[string]bool {
	out := map[string]bool{}
	for _, t := range triples {
		if nn, ok := t.Object.(*rdf.NamedNode); ok {
			out[nn.IRI] = true
		}
	}
	return out
}

func TestDescribeQueryEndpointAdvertisesBothQueryLanguagesAndResultFormats(t *testing.T) {
	triples := sd.Describe(sd.Query, sd.Options{EndpointIRI: "http://example.org/sparql"})

	root := triples[0].Subject
	for _, tr := range triples {
		if !tr.Subject.Equals(root) {
			t.Fatalf("expected every triple rooted at the same blank node, got %v", tr.Subject)
		}
	}

	langs := objectIRIs(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#supportedLanguage"))
	if !langs["http://www.w3.org/ns/sparql-service-description#SPARQL10Query"] ||
		!langs["http://www.w3.org/ns/sparql-service-description#SPARQL11Query"] {
		t.Fatalf("expected both SPARQL10Query and SPARQL11Query, got %v", langs)
	}
	if langs["http://www.w3.org/ns/sparql-service-description#SPARQL11Update"] {
		t.Fatalf("a query endpoint must not advertise SPARQL11Update")
	}

	formats := findTriples(triples, "http://www.w3.org/ns/sparql-service-description#resultFormat")
	if len(formats) != 10 {
		t.Fatalf("expected 10 result formats (4 query-results + 6 RDF), got %d", len(formats))
	}

	endpoints := findTriples(triples, "http://www.w3.org/ns/sparql-service-description#endpoint")
	if len(endpoints) != 1 {
		t.Fatalf("expected exactly one sd:endpoint triple, got %d", len(endpoints))
	}
}

func TestDescribeUpdateEndpointAdvertisesEmptyGraphsFeature(t *testing.T) {
	triples := sd.Describe(sd.Update, sd.Options{})

	langs := objectIRIs(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#supportedLanguage"))
	if len(langs) != 1 || !langs["http://www.w3.org/ns/sparql-service-description#SPARQL11Update"] {
		t.Fatalf("expected only SPARQL11Update, got %v", langs)
	}

	features := objectIRIs(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#feature"))
	if !features["http://www.w3.org/ns/sparql-service-description#EmptyGraphs"] {
		t.Fatalf("expected EmptyGraphs feature, got %v", features)
	}

	if len(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#resultFormat")) != 0 {
		t.Fatalf("an update endpoint should not advertise query result formats")
	}
}

func TestDescribeOptionalFeaturesAndExtensionFunctions(t *testing.T) {
	triples := sd.Describe(sd.Query, sd.Options{
		UnionDefaultGraph:    true,
		FederationAvailable:  true,
		ExtensionFunctions:   []string{"http://example.org/fn/double"},
	})

	features := objectIRIs(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#feature"))
	if !features["http://www.w3.org/ns/sparql-service-description#UnionDefaultGraph"] {
		t.Fatalf("expected UnionDefaultGraph feature when configured, got %v", features)
	}
	if !features["http://www.w3.org/ns/sparql-service-description#BasicFederatedQuery"] {
		t.Fatalf("expected BasicFederatedQuery feature when federation is available, got %v", features)
	}

	fns := objectIRIs(findTriples(triples, "http://www.w3.org/ns/sparql-service-description#extensionFunction"))
	if !fns["http://example.org/fn/double"] {
		t.Fatalf("expected the registered extension function IRI, got %v", fns)
	}

	regime := findTriples(triples, "http://www.w3.org/ns/sparql-service-description#defaultEntailmentRegime")
	if len(regime) != 1 {
		t.Fatalf("expected exactly one defaultEntailmentRegime triple, got %d", len(regime))
	}
	if nn, ok := regime[0].Object.(*rdf.NamedNode); !ok || nn.IRI != "http://www.w3.org/ns/entailment/Simple" {
		t.Fatalf("expected the Simple entailment regime, got %v", regime[0].Object)
	}
}

func TestDescribeMintsAFreshRootPerCall(t *testing.T) {
	a := sd.Describe(sd.Query, sd.Options{})
	b := sd.Describe(sd.Query, sd.Options{})
	if a[0].Subject.Equals(b[0].Subject) {
		t.Fatalf("expected two Describe calls to mint distinct root blank nodes")
	}
}
