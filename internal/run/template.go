package run

import "strings"

// Template placeholders form a closed set. Substitution is verbatim and
// unrecognized placeholders are left untouched by construction.
const (
	PlaceholderInput      = "{INPUT}"
	PlaceholderReplicates = "{REPLICATES}"
	PlaceholderMutations  = "{MUTATIONS}"
)

// TemplateFileName is the rendered run script the engine is pointed at.
const TemplateFileName = "runscript.txt"

// MutationListFileName is the engine's mutation descriptor file, written
// next to the run script for mutate runs.
const MutationListFileName = "individual_list.txt"

// RenderTemplate substitutes the placeholder set into caller-supplied
// template text.
func RenderTemplate(text, input, replicates, mutations string) string {
	return strings.NewReplacer(
		PlaceholderInput, input,
		PlaceholderReplicates, replicates,
		PlaceholderMutations, mutations,
	).Replace(text)
}
