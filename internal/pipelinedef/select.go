// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

// Select picks the step-group list for a ref, following the hosted
// service's match order (SPEC_FULL §C): an explicit custom pipeline
// name always wins; otherwise branch, then tag, then pull-request
// patterns are tried in turn; pipelines.default is the final
// fallback. Patterns are matched by exact name only — glob/regex
// branch patterns are a collaborator concern (the CLI resolves the
// active branch/tag/PR before calling Select) and are out of scope
// for the core.
//
// Returns nil, false if nothing matches.
func Select(doc *Document, custom, branch, tag, pullRequest string) ([]StepGroupDef, bool) {
	if custom != "" {
		if groups, ok := doc.Pipelines.Custom[custom]; ok {
			return groups, true
		}
		return nil, false
	}
	if branch != "" {
		if groups, ok := doc.Pipelines.Branches[branch]; ok {
			return groups, true
		}
	}
	if tag != "" {
		if groups, ok := doc.Pipelines.Tags[tag]; ok {
			return groups, true
		}
	}
	if pullRequest != "" {
		if groups, ok := doc.Pipelines.PullRequests[pullRequest]; ok {
			return groups, true
		}
	}
	if len(doc.Pipelines.Default) > 0 {
		return doc.Pipelines.Default, true
	}
	return nil, false
}

// Names lists every custom pipeline name in the document, for the
// CLI's "list" command.
func Names(doc *Document) []string {
	names := make([]string, 0, len(doc.Pipelines.Custom))
	for name := range doc.Pipelines.Custom {
		names = append(names, name)
	}
	return names
}
