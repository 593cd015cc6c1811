package stage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	contractx "github.com/salonlab/concierge/agent/contract"
)

const (
	// Escalation is the distinguished stage id that hands the conversation to
	// a human and bypasses tool execution entirely.
	Escalation = "conflict_escalation"

	// Fallback is the generic continuation stage used when classification
	// comes back unresolved.
	Fallback = "general_conversation"

	// Unresolved marks a failed classification. It is never a catalog member.
	Unresolved = ""
)

//go:embed stages.json
var defaultStagesRaw []byte

// Definition is the static configuration of one dialogue stage.
type Definition struct {
	ID           string   `json:"-"`
	Goal         string   `json:"goal"`
	Thinking     string   `json:"thinking_scenario,omitempty"`
	Synthesis    string   `json:"synthesis_scenario,omitempty"`
	AllowedTools []string `json:"available_tools,omitempty"`
	NeedsFocus   bool     `json:"needs_focus,omitempty"`
}

// Catalog is the loaded-once, read-only stage configuration. It is safe to
// share across sessions without locking.
type Catalog struct {
	stages map[string]Definition
	ids    []string
}

// Load reads the catalog from path, or from the embedded default document
// when path is empty. A load or validation failure is fatal at startup by
// contract, so callers are expected to abort on error.
func Load(path string) (*Catalog, error) {
	raw := defaultStagesRaw
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", contractx.ErrStageCatalog, path, err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc map[string]Definition
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", contractx.ErrStageCatalog, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: no stages defined", contractx.ErrStageCatalog)
	}

	stages := make(map[string]Definition, len(doc))
	ids := make([]string, 0, len(doc))
	for id, def := range doc {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			return nil, fmt.Errorf("%w: empty stage id", contractx.ErrStageCatalog)
		}
		if strings.TrimSpace(def.Goal) == "" {
			return nil, fmt.Errorf("%w: stage %q has no goal", contractx.ErrStageCatalog, id)
		}
		if strings.TrimSpace(def.Thinking) == "" && strings.TrimSpace(def.Synthesis) == "" {
			return nil, fmt.Errorf("%w: stage %q needs a thinking or synthesis scenario", contractx.ErrStageCatalog, id)
		}
		def.ID = id
		stages[id] = def
		ids = append(ids, id)
	}

	for _, required := range []string{Escalation, Fallback} {
		if _, ok := stages[required]; !ok {
			return nil, fmt.Errorf("%w: required stage %q is missing", contractx.ErrStageCatalog, required)
		}
	}

	sort.Strings(ids)
	return &Catalog{stages: stages, ids: ids}, nil
}

// ValidateTools checks that every tool referenced by any stage is known.
// Run once at startup after the tool registry is built.
func (c *Catalog) ValidateTools(known func(name string) bool) error {
	for _, id := range c.ids {
		for _, tool := range c.stages[id].AllowedTools {
			if !known(tool) {
				return fmt.Errorf("%w: stage %q references unknown tool %q", contractx.ErrStageCatalog, id, tool)
			}
		}
	}
	return nil
}

// Get returns a stage definition by id.
func (c *Catalog) Get(id string) (Definition, bool) {
	def, ok := c.stages[id]
	return def, ok
}

// Has reports whether id is a member of the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.stages[id]
	return ok
}

// IDs returns all stage ids in sorted order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}
