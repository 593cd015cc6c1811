// Package classify resolves the dialogue stage of an incoming message.
package classify

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/salonlab/concierge/agent/contract"
	"github.com/salonlab/concierge/agent/prompt"
	"github.com/salonlab/concierge/agent/stage"
)

// Classifier asks the reasoning backend for a stage id and validates the
// answer against the catalog. It never fails: any backend or parsing problem
// degrades to stage.Unresolved, which downstream maps to the fallback stage.
type Classifier struct {
	gen     contractx.Generator
	catalog *stage.Catalog
	builder *prompt.Builder
}

func New(gen contractx.Generator, catalog *stage.Catalog, builder *prompt.Builder) *Classifier {
	return &Classifier{gen: gen, catalog: catalog, builder: builder}
}

// Stage classifies message in the context of the recent transcript.
func (c *Classifier) Stage(ctx context.Context, transcript []contractx.Turn, message string) string {
	defs := make([]stage.Definition, 0, len(c.catalog.IDs()))
	for _, id := range c.catalog.IDs() {
		def, _ := c.catalog.Get(id)
		defs = append(defs, def)
	}

	p := c.builder.Classification(defs, transcript, message)
	raw, err := c.gen.Generate(ctx, []contractx.Turn{{Role: contractx.RoleUser, Text: p}})
	if err != nil {
		log.Warn().Err(err).Msg("stage classification failed")
		return stage.Unresolved
	}

	id := normalizeStageID(raw)
	if !c.catalog.Has(id) {
		log.Warn().Str("answer", raw).Msg("classifier returned unknown stage")
		return stage.Unresolved
	}
	return id
}

// normalizeStageID tolerates the usual decoration around a bare id: casing,
// quotes, backticks, trailing punctuation and extra lines.
func normalizeStageID(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "`'\"")
	s = strings.TrimRight(s, ".!,:;")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[len(fields)-1]
	}
	return strings.Trim(s, "`'\"")
}
